// Package anchors discovers mutual-nearest-neighbor cell pairs spanning a
// reference and a query embedded in one shared low-dimensional space,
// scores them by shared-neighborhood consistency, and packages the result
// as an immutable AnchorSet consumed by the transfer engine.
package anchors

import (
	"github.com/23skdu/quiver/internal/matrix"
	"github.com/23skdu/quiver/internal/neighbors"
	"github.com/23skdu/quiver/internal/reduction"
)

// Anchor is a correspondence between one reference cell and one query
// cell. Indices are positions within each dataset's cell order. Score is a
// weighting signal in [0,1], not a probability.
type Anchor struct {
	RefIndex   int32
	QueryIndex int32
	Score      float64
}

// AnchorSet owns everything the transfer engine needs: the two datasets
// restricted to anchor features, the anchor table, the embeddings used for
// matching (with .l2 variants), the ordered anchor-feature list, and the
// neighbor structures found along the way. Never mutated after
// construction; a new set is produced if parameters change.
type AnchorSet struct {
	Reference *matrix.Dataset
	Query     *matrix.Dataset

	Anchors  []Anchor
	Features []string

	// Reductions holds the matching space by name, including the ".l2"
	// variants when L2 normalization was applied.
	Reductions map[string]*reduction.Reduction

	// RefToQuery[i] lists query neighbors of reference cell i;
	// QueryToRef[j] lists reference neighbors of query cell j.
	RefToQuery *neighbors.Neighbors
	QueryToRef *neighbors.Neighbors
}

// Empty reports whether no anchors survived discovery and filtering.
func (s *AnchorSet) Empty() bool { return len(s.Anchors) == 0 }

// Len returns the anchor count.
func (s *AnchorSet) Len() int { return len(s.Anchors) }
