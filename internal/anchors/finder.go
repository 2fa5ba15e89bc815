package anchors

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	qerr "github.com/23skdu/quiver/internal/errors"
	"github.com/23skdu/quiver/internal/matrix"
	"github.com/23skdu/quiver/internal/metrics"
	"github.com/23skdu/quiver/internal/neighbors"
	"github.com/23skdu/quiver/internal/reduction"
)

// Params controls anchor discovery.
type Params struct {
	// KAnchor is the neighborhood size for the mutual-nearest-neighbor
	// test.
	KAnchor int
	// KScore is the neighborhood size for shared-neighbor scoring.
	KScore int
	// KFilter is the neighborhood size for feature-space pruning;
	// 0 disables the filter. Values above the available cell count are
	// clamped with a warning.
	KFilter int
	// Search configures the neighbor backend and metric.
	Search neighbors.Config

	// Precomputed neighbor structures skip recomputation when chaining
	// several calls against the same reference. Both must be set together.
	PrecomputedRefToQuery *neighbors.Neighbors
	PrecomputedQueryToRef *neighbors.Neighbors
}

// DefaultParams mirrors the defaults used throughout the tutorials.
func DefaultParams() Params {
	return Params{
		KAnchor: 5,
		KScore:  30,
		KFilter: 200,
		Search:  neighbors.DefaultConfig(),
	}
}

// Inputs bundles the embedded datasets handed to the finder. RefData and
// QueryData are the datasets restricted to anchor features; they are
// required when KFilter > 0 and are carried on the AnchorSet either way.
type Inputs struct {
	RefEmbedding   *reduction.Reduction
	QueryEmbedding *reduction.Reduction
	RefData        *matrix.Dataset
	QueryData      *matrix.Dataset
	Features       []string
}

// Find runs MNN anchor discovery: each side's k.anchor neighborhoods are
// computed in the shared space, mutual pairs are retained, optionally
// pruned in the original feature space, and scored by shared-neighborhood
// overlap. A run with zero surviving anchors returns an empty (non-nil)
// set.
func Find(ctx context.Context, logger *zap.Logger, params Params, in Inputs) (*AnchorSet, error) {
	start := time.Now()
	defer func() {
		metrics.AnchorFindDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	refEmb := in.RefEmbedding.Embeddings
	queryEmb := in.QueryEmbedding.Embeddings
	nr, dr := refEmb.Dims()
	nq, dq := queryEmb.Dims()

	if dr != dq {
		return nil, qerr.NewValidationError("FindAnchors", "embeddings",
			fmt.Sprintf("reference space has %d dims, query space has %d", dr, dq))
	}
	minCells := nr
	if nq < minCells {
		minCells = nq
	}
	if params.KAnchor < 1 {
		return nil, qerr.NewValidationError("FindAnchors", "k.anchor", "k.anchor must be at least 1")
	}
	if params.KAnchor >= minCells {
		return nil, qerr.NewValidationError("FindAnchors", "k.anchor",
			fmt.Sprintf("k.anchor=%d must be below the smaller cell count %d", params.KAnchor, minCells))
	}
	if params.KScore >= minCells {
		return nil, qerr.NewValidationError("FindAnchors", "k.score",
			fmt.Sprintf("k.score=%d must be below the smaller cell count %d", params.KScore, minCells))
	}
	if (params.PrecomputedRefToQuery == nil) != (params.PrecomputedQueryToRef == nil) {
		return nil, qerr.NewValidationError("FindAnchors", "precomputed",
			"precomputed neighbors must be supplied for both directions or neither")
	}

	// Neighborhoods in the shared space, in both directions.
	var refToQuery, queryToRef *neighbors.Neighbors
	var err error
	if params.PrecomputedRefToQuery != nil {
		refToQuery = params.PrecomputedRefToQuery
		queryToRef = params.PrecomputedQueryToRef
		if err := refToQuery.Validate(nr, nq); err != nil {
			return nil, err
		}
		if err := queryToRef.Validate(nq, nr); err != nil {
			return nil, err
		}
	} else {
		refToQuery, err = neighbors.Search(ctx, params.Search, refEmb, queryEmb, params.KAnchor)
		if err != nil {
			return nil, err
		}
		queryToRef, err = neighbors.Search(ctx, params.Search, queryEmb, refEmb, params.KAnchor)
		if err != nil {
			return nil, err
		}
	}

	// Mutual nearest neighbor test. The table stays non-nil even when
	// empty: zero anchors is a reportable result, not an error.
	found := []Anchor{}
	for i := 0; i < nr; i++ {
		for _, j := range refToQuery.Indices[i] {
			if queryToRef.Contains(int(j), int32(i)) {
				found = append(found, Anchor{RefIndex: int32(i), QueryIndex: j})
			}
		}
	}
	metrics.AnchorsFoundTotal.WithLabelValues("mnn").Add(float64(len(found)))
	if logger != nil {
		logger.Info("mutual nearest neighbors found",
			zap.Int("count", len(found)),
			zap.Int("k.anchor", params.KAnchor))
	}

	// Feature-space pruning guards against anchors that are artifacts of
	// the projection alone.
	if params.KFilter > 0 && len(found) > 0 {
		found, err = filterAnchors(ctx, logger, params, in, found)
		if err != nil {
			return nil, err
		}
		metrics.AnchorsFoundTotal.WithLabelValues("filtered").Add(float64(len(found)))
	}

	// Shared-neighborhood scoring over the combined embedding.
	if len(found) > 0 && params.KScore > 0 {
		if err := scoreAnchors(ctx, params, in, found); err != nil {
			return nil, err
		}
		metrics.AnchorsFoundTotal.WithLabelValues("scored").Add(float64(len(found)))
	}

	// A stable order keeps repeated runs byte-identical.
	sort.Slice(found, func(a, b int) bool {
		if found[a].RefIndex != found[b].RefIndex {
			return found[a].RefIndex < found[b].RefIndex
		}
		return found[a].QueryIndex < found[b].QueryIndex
	})

	// The combined space carries the query-side method name ("pcaproject"
	// or "cca"), matching how the matching space is referred to downstream.
	combined := reduction.Concat(in.QueryEmbedding.Name, in.RefEmbedding, in.QueryEmbedding)
	reductions := map[string]*reduction.Reduction{combined.Name: combined}
	if !strings.HasSuffix(combined.Name, reduction.L2Suffix) {
		reductions[combined.Name+reduction.L2Suffix] = combined.L2Normalize()
	}
	set := &AnchorSet{
		Reference:  in.RefData,
		Query:      in.QueryData,
		Anchors:    found,
		Features:   in.Features,
		RefToQuery: refToQuery,
		QueryToRef: queryToRef,
		Reductions: reductions,
	}
	if logger != nil {
		logger.Info("anchor set constructed",
			zap.Int("anchors", set.Len()),
			zap.Int("features", len(set.Features)))
	}
	return set, nil
}

// filterAnchors keeps an anchor only when its endpoints are mutually
// within each other's top-k.filter neighborhoods in the original
// anchor-feature space.
func filterAnchors(ctx context.Context, logger *zap.Logger, params Params, in Inputs, found []Anchor) ([]Anchor, error) {
	if in.RefData == nil || in.QueryData == nil {
		return nil, qerr.NewValidationError("FindAnchors", "k.filter",
			"k.filter requires the anchor-feature expression matrices")
	}

	nr := in.RefData.NumCells()
	nq := in.QueryData.NumCells()
	kFilter := params.KFilter
	if maxK := minInt(nr, nq); kFilter > maxK {
		if logger != nil {
			logger.Warn("k.filter exceeds available cells, clamping",
				zap.Int("k.filter", params.KFilter),
				zap.Int("clamped", maxK))
		}
		metrics.PipelineWarningsTotal.WithLabelValues("filter").Inc()
		kFilter = maxK
	}

	refDense, err := denseView(in.RefData)
	if err != nil {
		return nil, err
	}
	queryDense, err := denseView(in.QueryData)
	if err != nil {
		return nil, err
	}

	queryToRef, err := neighbors.Search(ctx, params.Search, queryDense, refDense, kFilter)
	if err != nil {
		return nil, err
	}
	refToQuery, err := neighbors.Search(ctx, params.Search, refDense, queryDense, kFilter)
	if err != nil {
		return nil, err
	}

	kept := found[:0]
	for _, a := range found {
		if queryToRef.Contains(int(a.QueryIndex), a.RefIndex) &&
			refToQuery.Contains(int(a.RefIndex), a.QueryIndex) {
			kept = append(kept, a)
		}
	}
	if logger != nil {
		logger.Info("anchors filtered in feature space",
			zap.Int("kept", len(kept)),
			zap.Int("removed", len(found)-len(kept)),
			zap.Int("k.filter", kFilter))
	}
	return kept, nil
}

// denseView materializes a dataset's expression matrix as Dense for the
// neighbor backends.
func denseView(ds *matrix.Dataset) (*matrix.Dense, error) {
	if d, ok := ds.Matrix().(*matrix.Dense); ok {
		return d, nil
	}
	n := ds.NumCells()
	p := ds.NumFeatures()
	out := matrix.NewDense(n, p, nil)
	for i := 0; i < n; i++ {
		copy(out.Row(i), ds.Row(i))
	}
	return out, nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
