package transfer

import (
	"context"
	"fmt"
	"time"

	"github.com/23skdu/quiver/internal/anchors"
	"github.com/23skdu/quiver/internal/concurrency"
	qerr "github.com/23skdu/quiver/internal/errors"
	"github.com/23skdu/quiver/internal/matrix"
)

// Embeddings projects reference target-space coordinates (for example a
// precomputed UMAP layout) onto the query cells as an anchor-weighted
// combination, so new data lands on an existing layout without
// recomputing it. refCoords must be in reference cell order. Unreachable
// query cells receive zero rows; callers pair this with the label result's
// Unassigned sentinel when deciding what to display.
func Embeddings(ctx context.Context, chunk concurrency.ChunkConfig, set *anchors.AnchorSet, w *Weights, refCoords *matrix.Dense) (*matrix.Dense, error) {
	defer observeTransfer("embeddings", time.Now())

	if set.Empty() {
		return nil, qerr.NewDataError("TransferEmbeddings",
			"no anchors: the anchor set is empty; nothing can be transferred")
	}
	rows, dims := refCoords.Dims()
	if rows != set.Reference.NumCells() {
		return nil, qerr.NewValidationError("TransferEmbeddings", "refcoords",
			fmt.Sprintf("coordinates cover %d cells, reference has %d", rows, set.Reference.NumCells()))
	}
	nq := set.Query.NumCells()
	if len(w.AnchorIdx) != nq {
		return nil, qerr.NewValidationError("TransferEmbeddings", "weights",
			fmt.Sprintf("weights cover %d cells, query has %d", len(w.AnchorIdx), nq))
	}

	out := matrix.NewDense(nq, dims, nil)
	err := concurrency.ParallelFor(ctx, chunk, nq, func(start, end int) {
		for q := start; q < end; q++ {
			dst := out.Row(q)
			for i, a := range w.AnchorIdx[q] {
				src := refCoords.Row(int(set.Anchors[a].RefIndex))
				weight := float32(w.Values[q][i])
				for d := 0; d < dims; d++ {
					dst[d] += weight * src[d]
				}
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
