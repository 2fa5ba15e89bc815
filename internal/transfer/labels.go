package transfer

import (
	"context"
	"fmt"
	"time"

	"github.com/23skdu/quiver/internal/anchors"
	"github.com/23skdu/quiver/internal/concurrency"
	qerr "github.com/23skdu/quiver/internal/errors"
	"github.com/23skdu/quiver/internal/metrics"
)

// LabelResult holds one predicted label and one confidence score per query
// cell, in query cell order. Every cell has an entry; unreachable cells
// carry the Unassigned sentinel with confidence 0.
type LabelResult struct {
	Field  string
	Labels []string
	Scores []float64
}

// Labels propagates a categorical reference field onto the query cells via
// the precomputed anchor weights. refLabels must be in reference cell
// order.
func Labels(ctx context.Context, chunk concurrency.ChunkConfig, set *anchors.AnchorSet, w *Weights, field string, refLabels []string) (*LabelResult, error) {
	defer observeTransfer("labels", time.Now())

	if set.Empty() {
		return nil, qerr.NewDataError("TransferLabels",
			"no anchors: the anchor set is empty; nothing can be transferred")
	}
	if len(refLabels) != set.Reference.NumCells() {
		return nil, qerr.NewValidationError("TransferLabels", "refdata",
			fmt.Sprintf("field %q has %d labels, reference has %d cells",
				field, len(refLabels), set.Reference.NumCells()))
	}
	nq := set.Query.NumCells()
	if len(w.AnchorIdx) != nq {
		return nil, qerr.NewValidationError("TransferLabels", "weights",
			fmt.Sprintf("weights cover %d cells, query has %d", len(w.AnchorIdx), nq))
	}

	res := &LabelResult{
		Field:  field,
		Labels: make([]string, nq),
		Scores: make([]float64, nq),
	}

	err := concurrency.ParallelFor(ctx, chunk, nq, func(start, end int) {
		votes := make(map[string]float64)
		for q := start; q < end; q++ {
			if len(w.AnchorIdx[q]) == 0 {
				res.Labels[q] = Unassigned
				res.Scores[q] = 0
				continue
			}

			clear(votes)
			var total float64
			for i, a := range w.AnchorIdx[q] {
				label := refLabels[set.Anchors[a].RefIndex]
				votes[label] += w.Values[q][i]
				total += w.Values[q][i]
			}

			winner, weight := winningVote(votes)
			res.Labels[q] = winner
			res.Scores[q] = weight / total
		}
	})
	if err != nil {
		return nil, err
	}

	var assigned, unassigned int
	for _, l := range res.Labels {
		if l == Unassigned {
			unassigned++
		} else {
			assigned++
		}
	}
	metrics.TransferCellsTotal.WithLabelValues("assigned").Add(float64(assigned))
	metrics.TransferCellsTotal.WithLabelValues("unassigned").Add(float64(unassigned))
	return res, nil
}

// winningVote returns the label with the highest total weight; ties break
// lexicographically so repeated runs agree.
func winningVote(votes map[string]float64) (string, float64) {
	var winner string
	var best float64
	first := true
	for label, weight := range votes {
		switch {
		case first, weight > best:
			winner, best = label, weight
			first = false
		case weight == best && label < winner:
			winner = label
		}
	}
	return winner, best
}
