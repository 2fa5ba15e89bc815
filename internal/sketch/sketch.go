// Package sketch selects representative cell subsets from large datasets:
// leverage-score sampling biases selection toward rare populations while a
// uniform baseline remains available. The parent dataset is never touched;
// a sketch owns its own in-memory sub-matrix and stays linked to the full
// data only through shared cell indices.
package sketch

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"

	qerr "github.com/23skdu/quiver/internal/errors"
	"github.com/23skdu/quiver/internal/matrix"
	"github.com/23skdu/quiver/internal/metrics"
)

// Method selects the sampling strategy.
type Method string

const (
	MethodLeverage Method = "leverage"
	MethodUniform  Method = "uniform"
)

// projectionDims is the width of the gaussian sketch used to approximate
// leverage scores without a full dimensional reduction.
const projectionDims = 32

// Sketch is a cell subset: positions into the parent dataset's cell order,
// the per-cell scores that drove selection (nil for uniform sampling), and
// the materialized expression sub-matrix.
type Sketch struct {
	Indices []int
	Scores  []float64
	Data    *matrix.Dataset
}

// Sample selects n distinct cells from the dataset. Requesting more cells
// than exist is an error, never a silent clamp.
func Sample(ctx context.Context, ds *matrix.Dataset, n int, method Method, seed int64) (*Sketch, error) {
	start := time.Now()
	defer func() {
		metrics.SketchDurationSeconds.WithLabelValues(string(method)).Observe(time.Since(start).Seconds())
	}()

	total := ds.NumCells()
	if n <= 0 {
		return nil, qerr.NewValidationError("SketchData", "ncells", "ncells must be positive")
	}
	if n > total {
		return nil, qerr.NewValidationError("SketchData", "ncells",
			fmt.Sprintf("requested %d cells but dataset %q has only %d", n, ds.Name(), total))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		indices []int
		scores  []float64
		err     error
	)
	switch method {
	case MethodUniform:
		indices = sampleUniform(total, n, seed)
	case MethodLeverage, "":
		scores, err = LeverageScores(ctx, ds, seed)
		if err != nil {
			return nil, err
		}
		indices = sampleWeighted(scores, n, seed)
	default:
		return nil, qerr.NewValidationError("SketchData", "method",
			fmt.Sprintf("unknown sampling method %q", method))
	}

	// Ascending order keeps the sub-matrix in parent cell order, which the
	// later project-back step relies on.
	sort.Ints(indices)

	sub, err := ds.SelectCells(indices)
	if err != nil {
		return nil, err
	}
	metrics.SketchCellsSampledTotal.Add(float64(n))

	return &Sketch{Indices: indices, Scores: scores, Data: sub}, nil
}

// LeverageScores approximates each cell's statistical leverage via a
// gaussian sketch: Y = X*G for a features x projectionDims gaussian G,
// then the squared row norms of Y's thin-SVD left factor. High scores mark
// cells that carry unusual directions of variation.
func LeverageScores(ctx context.Context, ds *matrix.Dataset, seed int64) ([]float64, error) {
	n := ds.NumCells()
	p := ds.NumFeatures()
	if n == 0 {
		return nil, qerr.NewDataError("LeverageScores", "dataset has no cells")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q := projectionDims
	if q > p {
		q = p
	}
	if q > n {
		q = n
	}

	rng := rand.New(rand.NewSource(seed))
	g := mat.NewDense(p, q, nil)
	for i := 0; i < p; i++ {
		for j := 0; j < q; j++ {
			g.Set(i, j, rng.NormFloat64())
		}
	}

	y := mat.NewDense(n, q, nil)
	for i := 0; i < n; i++ {
		row := ds.Row(i)
		for j := 0; j < q; j++ {
			var sum float64
			for f := 0; f < p; f++ {
				sum += float64(row[f]) * g.At(f, j)
			}
			y.Set(i, j, sum)
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(y, mat.SVDThin); !ok {
		return nil, qerr.NewComputationError("LeverageScores", "svd failed to converge")
	}
	var u mat.Dense
	svd.UTo(&u)

	_, k := u.Dims()
	scores := make([]float64, n)
	for i := 0; i < n; i++ {
		var s float64
		for j := 0; j < k; j++ {
			v := u.At(i, j)
			s += v * v
		}
		scores[i] = s
	}
	return scores, nil
}

// sampleUniform draws n distinct positions without replacement.
func sampleUniform(total, n int, seed int64) []int {
	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(total)
	return perm[:n]
}

// sampleWeighted draws n distinct positions with probability proportional
// to weight, using exponential sort keys (Efraimidis-Spirakis). Zero-weight
// cells can still be drawn once all weighted cells are exhausted.
func sampleWeighted(weights []float64, n int, seed int64) []int {
	rng := rand.New(rand.NewSource(seed))

	type keyed struct {
		idx int
		key float64
	}
	keys := make([]keyed, len(weights))
	for i, w := range weights {
		u := rng.Float64()
		var key float64
		if w > 0 {
			key = math.Pow(u, 1/w)
		} else {
			key = -u // rank zero-weight cells below every weighted cell
		}
		keys[i] = keyed{idx: i, key: key}
	}
	sort.Slice(keys, func(a, b int) bool {
		if keys[a].key != keys[b].key {
			return keys[a].key > keys[b].key
		}
		return keys[a].idx < keys[b].idx
	})

	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = keys[i].idx
	}
	return out
}
