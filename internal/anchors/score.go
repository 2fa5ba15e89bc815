package anchors

import (
	"context"
	"sort"

	"github.com/23skdu/quiver/internal/neighbors"
	"github.com/23skdu/quiver/internal/reduction"
)

// Quantiles used to rescale raw shared-neighbor overlaps onto [0,1]. The
// exact coefficients are a calibration choice; shape and ordering are what
// downstream weighting relies on.
const (
	scoreQuantileLow  = 0.01
	scoreQuantileHigh = 0.90
)

// scoreAnchors re-scores each anchor by the shared-neighborhood overlap of
// its endpoints: the fraction of the k.score-sized neighborhoods around
// both cells (in the combined embedding) that they have in common. Scores
// are then quantile-rescaled onto [0,1]. Anchors scoring 0 are retained;
// a zero score only means no corroborating local structure.
func scoreAnchors(ctx context.Context, params Params, in Inputs, found []Anchor) error {
	nr := in.RefEmbedding.NumCells()

	combined := reduction.Concat("scoring", in.RefEmbedding, in.QueryEmbedding)
	nn, err := neighbors.SelfSearch(ctx, params.Search, combined.Embeddings, params.KScore)
	if err != nil {
		return err
	}

	raw := make([]float64, len(found))
	for a, anchor := range found {
		refRow := int(anchor.RefIndex)
		queryRow := nr + int(anchor.QueryIndex)

		refSet := make(map[int32]struct{}, params.KScore)
		for _, idx := range nn.Indices[refRow] {
			refSet[idx] = struct{}{}
		}
		shared := 0
		for _, idx := range nn.Indices[queryRow] {
			if _, ok := refSet[idx]; ok {
				shared++
			}
		}
		raw[a] = float64(shared) / float64(params.KScore)
	}

	rescaleScores(raw)
	for a := range found {
		found[a].Score = raw[a]
	}
	return nil
}

// rescaleScores maps raw overlaps through the low/high quantiles and
// clamps to [0,1]. A degenerate spread (all overlaps equal) leaves the raw
// values in place; they are already in [0,1].
func rescaleScores(scores []float64) {
	if len(scores) < 2 {
		return
	}
	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)

	lo := quantile(sorted, scoreQuantileLow)
	hi := quantile(sorted, scoreQuantileHigh)
	if hi <= lo {
		return
	}
	for i, s := range scores {
		v := (s - lo) / (hi - lo)
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		scores[i] = v
	}
}

// quantile returns the linearly interpolated q-quantile of sorted values.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	pos := q * float64(len(sorted)-1)
	lo := int(pos)
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[lo+1]*frac
}
