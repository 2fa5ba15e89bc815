// Package transfer propagates categorical labels and continuous embeddings
// from an annotated reference onto query cells, weighting each query cell's
// nearby anchors by distance kernel and anchor score. One weight
// computation serves any number of transferred fields.
package transfer

import (
	"context"
	"fmt"
	"time"

	"github.com/23skdu/quiver/internal/anchors"
	"github.com/23skdu/quiver/internal/concurrency"
	qerr "github.com/23skdu/quiver/internal/errors"
	"github.com/23skdu/quiver/internal/metrics"
	"github.com/23skdu/quiver/internal/reduction"
	"github.com/23skdu/quiver/internal/simd"
)

// Unassigned is the sentinel label for query cells with no reachable
// anchor. Such cells always receive confidence 0, never an absent entry.
const Unassigned = "unassigned"

// Params controls weight construction.
type Params struct {
	// KWeight is how many nearby anchors weight each query cell.
	KWeight int
	// Chunk bounds the per-cell parallel loops.
	Chunk concurrency.ChunkConfig
}

// DefaultParams mirrors the tutorials' defaults.
func DefaultParams() Params {
	return Params{
		KWeight: 50,
		Chunk:   concurrency.DefaultChunkConfig(),
	}
}

// Weights maps every query cell to its nearest anchors and their
// normalized weights. Immutable once computed.
type Weights struct {
	// AnchorIdx[q] lists positions into the anchor table; Values[q] holds
	// the matching normalized weights (sum 1 for reachable cells, empty
	// for unreachable ones).
	AnchorIdx [][]int32
	Values    [][]float64
	numRef    int
}

// Compute builds anchor weights for every query cell. weightRed is a
// reduction over the query cells used purely for weighting; it may differ
// from the reduction anchors were found in.
func Compute(ctx context.Context, params Params, set *anchors.AnchorSet, weightRed *reduction.Reduction) (*Weights, error) {
	if set.Empty() {
		return nil, qerr.NewDataError("TransferWeights",
			"no anchors: the anchor set is empty; nothing can be transferred")
	}
	nq := set.Query.NumCells()
	if weightRed.NumCells() != nq {
		return nil, qerr.NewValidationError("TransferWeights", "weight.reduction",
			fmt.Sprintf("weight reduction covers %d cells, query has %d", weightRed.NumCells(), nq))
	}
	kWeight := params.KWeight
	if kWeight <= 0 {
		return nil, qerr.NewValidationError("TransferWeights", "k.weight", "k.weight must be positive")
	}
	if kWeight > set.Len() {
		kWeight = set.Len()
	}

	// Anchor positions in the weighting space: each anchor is located at
	// its query cell's coordinates.
	dim := weightRed.NumDims()
	anchorCoords := make([]float32, set.Len()*dim)
	for a, anchor := range set.Anchors {
		copy(anchorCoords[a*dim:(a+1)*dim], weightRed.Embeddings.Row(int(anchor.QueryIndex)))
	}

	w := &Weights{
		AnchorIdx: make([][]int32, nq),
		Values:    make([][]float64, nq),
		numRef:    set.Reference.NumCells(),
	}

	err := concurrency.ParallelFor(ctx, params.Chunk, nq, func(start, end int) {
		dists := make([]float32, set.Len())
		for q := start; q < end; q++ {
			qrow := weightRed.Embeddings.Row(q)
			simd.EuclideanDistanceBatchFlat(qrow, anchorCoords, dim, dists)

			idx, vals := nearestAnchorWeights(dists, set.Anchors, kWeight)
			w.AnchorIdx[q] = idx
			w.Values[q] = vals
		}
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

// nearestAnchorWeights selects the kWeight closest anchors, weights them by
// (1 - d/dMax) * anchorScore, and normalizes. Anchors at the cutoff
// distance contribute nothing; if total weight degenerates to zero the
// cell is reported unreachable (empty lists).
type cand struct {
	idx  int32
	dist float32
}

func nearestAnchorWeights(dists []float32, table []anchors.Anchor, kWeight int) ([]int32, []float64) {
	selected := make([]cand, 0, kWeight)

	// Partial selection keeps ties deterministic by anchor order.
	for i, d := range dists {
		if len(selected) < kWeight {
			selected = append(selected, cand{int32(i), d})
			if len(selected) == kWeight {
				sortCands(selected)
			}
			continue
		}
		if d < selected[kWeight-1].dist {
			selected[kWeight-1] = cand{int32(i), d}
			sortCands(selected)
		}
	}
	if len(selected) < kWeight {
		sortCands(selected)
	}

	dMax := float64(selected[len(selected)-1].dist)
	idx := make([]int32, 0, len(selected))
	vals := make([]float64, 0, len(selected))
	var total float64
	for _, c := range selected {
		var kernel float64
		if dMax > 0 {
			kernel = 1 - float64(c.dist)/dMax
		} else {
			kernel = 1 // all anchors coincide with the cell
		}
		v := kernel * table[c.idx].Score
		if v <= 0 {
			continue
		}
		idx = append(idx, c.idx)
		vals = append(vals, v)
		total += v
	}
	if total == 0 {
		return nil, nil
	}
	for i := range vals {
		vals[i] /= total
	}
	return idx, vals
}

func sortCands(cands []cand) {
	// Insertion sort: kWeight is small and slices are nearly sorted.
	for i := 1; i < len(cands); i++ {
		for j := i; j > 0; j-- {
			a, b := cands[j], cands[j-1]
			if a.dist < b.dist || (a.dist == b.dist && a.idx < b.idx) {
				cands[j], cands[j-1] = b, a
			} else {
				break
			}
		}
	}
}

func observeTransfer(kind string, start time.Time) {
	metrics.TransferDurationSeconds.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}
