package reduction

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	qerr "github.com/23skdu/quiver/internal/errors"
	"github.com/23skdu/quiver/internal/matrix"
	"github.com/23skdu/quiver/internal/metrics"
)

// FitPCA fits a linear subspace on the dataset: columns are centered (and
// scaled when scale is true), then decomposed with a thin SVD. Embeddings
// are U*S, loadings are V, stdevs are singular values / sqrt(n-1).
func FitPCA(ctx context.Context, ds *matrix.Dataset, dims int, scale bool) (*Reduction, error) {
	start := time.Now()
	defer func() {
		metrics.ReductionDurationSeconds.WithLabelValues(MethodPCA).Observe(time.Since(start).Seconds())
	}()

	n := ds.NumCells()
	p := ds.NumFeatures()
	maxDims := minInt(n, p)
	if dims <= 0 {
		return nil, qerr.NewValidationError("FitPCA", "dims", "dims must be positive")
	}
	if dims > maxDims {
		return nil, qerr.NewValidationError("FitPCA", "dims",
			fmt.Sprintf("requested %d dimensions but only %d components are available", dims, maxDims))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scaled, _, err := ds.Standardize(scale)
	if err != nil {
		return nil, err
	}

	X := toGonum(scaled)
	var svd mat.SVD
	if ok := svd.Factorize(X, mat.SVDThin); !ok {
		return nil, qerr.NewComputationError("FitPCA", "svd failed to converge")
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	sigma := svd.Values(nil)

	emb := matrix.NewDense(n, dims, nil)
	for i := 0; i < n; i++ {
		row := emb.Row(i)
		for j := 0; j < dims; j++ {
			row[j] = float32(u.At(i, j) * sigma[j])
		}
	}

	loadings := matrix.NewDense(p, dims, nil)
	for i := 0; i < p; i++ {
		row := loadings.Row(i)
		for j := 0; j < dims; j++ {
			row[j] = float32(v.At(i, j))
		}
	}

	stdev := make([]float64, dims)
	for j := 0; j < dims; j++ {
		stdev[j] = sigma[j] / math.Sqrt(float64(n-1))
	}

	return &Reduction{
		Name:       MethodPCA,
		Key:        "PC_",
		Embeddings: emb,
		Loadings:   loadings,
		Stdev:      stdev,
		Features:   ds.Features(),
	}, nil
}

// ProjectPCA projects a query dataset through a reference reduction's
// loadings ("pcaproject"). The query is restricted to the reduction's
// feature set and standardized with its own statistics, then multiplied
// through the loadings.
func ProjectPCA(ctx context.Context, query *matrix.Dataset, ref *Reduction, scale bool) (*Reduction, error) {
	start := time.Now()
	defer func() {
		metrics.ReductionDurationSeconds.WithLabelValues(MethodPCAProject).Observe(time.Since(start).Seconds())
	}()

	if ref.Loadings == nil {
		return nil, qerr.NewValidationError("ProjectPCA", "reference",
			fmt.Sprintf("reduction %q carries no loadings to project through", ref.Name))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sub, err := query.SelectFeatures(ref.Features)
	if err != nil {
		return nil, err
	}
	scaled, _, err := sub.Standardize(scale)
	if err != nil {
		return nil, err
	}

	n := scaled.NumCells()
	p := scaled.NumFeatures()
	dims := ref.NumDims()

	emb := matrix.NewDense(n, dims, nil)
	for i := 0; i < n; i++ {
		row := scaled.Row(i)
		out := emb.Row(i)
		for f := 0; f < p; f++ {
			v := row[f]
			if v == 0 {
				continue
			}
			ld := ref.Loadings.Row(f)
			for j := 0; j < dims; j++ {
				out[j] += v * ld[j]
			}
		}
	}

	return &Reduction{
		Name:       MethodPCAProject,
		Key:        ref.Key,
		Embeddings: emb,
		Loadings:   ref.Loadings,
		Stdev:      ref.Stdev,
		Features:   ref.Features,
	}, nil
}

func toGonum(ds *matrix.Dataset) *mat.Dense {
	n := ds.NumCells()
	p := ds.NumFeatures()
	data := make([]float64, n*p)
	for i := 0; i < n; i++ {
		row := ds.Row(i)
		for j := 0; j < p; j++ {
			data[i*p+j] = float64(row[j])
		}
	}
	return mat.NewDense(n, p, data)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
