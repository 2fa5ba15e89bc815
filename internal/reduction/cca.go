package reduction

import (
	"context"
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"

	qerr "github.com/23skdu/quiver/internal/errors"
	"github.com/23skdu/quiver/internal/matrix"
	"github.com/23skdu/quiver/internal/metrics"
)

// FitCCA computes a canonical-correlation-style joint decomposition over
// two datasets sharing a feature set: the cross-dataset product matrix
// K = Xr * Xq^T (over standardized features) is decomposed with a thin
// SVD; left singular vectors embed the reference cells and right singular
// vectors embed the query cells in the same canonical space.
//
// Returns per-dataset reductions with key "CC_". CCA embeds cells directly,
// so neither reduction carries loadings.
func FitCCA(ctx context.Context, ref, query *matrix.Dataset, dims int, scale bool) (*Reduction, *Reduction, error) {
	start := time.Now()
	defer func() {
		metrics.ReductionDurationSeconds.WithLabelValues(MethodCCA).Observe(time.Since(start).Seconds())
	}()

	if ref.NumFeatures() != query.NumFeatures() {
		return nil, nil, qerr.NewValidationError("FitCCA", "features",
			fmt.Sprintf("reference has %d features, query has %d; restrict both to a shared set first",
				ref.NumFeatures(), query.NumFeatures()))
	}
	maxDims := minInt(ref.NumCells(), query.NumCells())
	if dims <= 0 {
		return nil, nil, qerr.NewValidationError("FitCCA", "dims", "dims must be positive")
	}
	if dims > maxDims {
		return nil, nil, qerr.NewValidationError("FitCCA", "dims",
			fmt.Sprintf("requested %d dimensions but only %d components are available", dims, maxDims))
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	refScaled, _, err := ref.Standardize(scale)
	if err != nil {
		return nil, nil, err
	}
	queryScaled, _, err := query.Standardize(scale)
	if err != nil {
		return nil, nil, err
	}

	Xr := toGonum(refScaled)   // nr x p
	Xq := toGonum(queryScaled) // nq x p

	var K mat.Dense
	K.Mul(Xr, Xq.T()) // nr x nq

	var svd mat.SVD
	if ok := svd.Factorize(&K, mat.SVDThin); !ok {
		return nil, nil, qerr.NewComputationError("FitCCA", "svd failed to converge")
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	sigma := svd.Values(nil)

	refEmb := matrix.NewDense(ref.NumCells(), dims, nil)
	for i := 0; i < ref.NumCells(); i++ {
		row := refEmb.Row(i)
		for j := 0; j < dims; j++ {
			row[j] = float32(u.At(i, j))
		}
	}
	queryEmb := matrix.NewDense(query.NumCells(), dims, nil)
	for i := 0; i < query.NumCells(); i++ {
		row := queryEmb.Row(i)
		for j := 0; j < dims; j++ {
			row[j] = float32(v.At(i, j))
		}
	}

	stdev := make([]float64, dims)
	copy(stdev, sigma[:dims])

	refRed := &Reduction{
		Name:       MethodCCA,
		Key:        "CC_",
		Embeddings: refEmb,
		Stdev:      stdev,
		Features:   ref.Features(),
	}
	queryRed := &Reduction{
		Name:       MethodCCA,
		Key:        "CC_",
		Embeddings: queryEmb,
		Stdev:      stdev,
		Features:   query.Features(),
	}
	return refRed, queryRed, nil
}
