package reduction

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerr "github.com/23skdu/quiver/internal/errors"
	"github.com/23skdu/quiver/internal/matrix"
)

// randomDataset builds a dataset with some correlated structure so PCA has
// something to find.
func randomDataset(t *testing.T, name string, cells, features int, seed int64) *matrix.Dataset {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))

	cellNames := make([]string, cells)
	for i := range cellNames {
		cellNames[i] = fmt.Sprintf("%s-cell-%d", name, i+1)
	}
	featNames := make([]string, features)
	for j := range featNames {
		featNames[j] = fmt.Sprintf("gene-%d", j+1)
	}

	values := make([]float32, cells*features)
	for i := 0; i < cells; i++ {
		// Two latent factors drive all features.
		f1 := rng.NormFloat64()
		f2 := rng.NormFloat64()
		for j := 0; j < features; j++ {
			v := f1*math.Sin(float64(j)) + f2*math.Cos(float64(j)) + 0.1*rng.NormFloat64()
			values[i*features+j] = float32(v)
		}
	}

	ds, err := matrix.NewDataset(name, cellNames, featNames, values, matrix.KindDense)
	require.NoError(t, err)
	return ds
}

func TestFitPCA_Shapes(t *testing.T) {
	ds := randomDataset(t, "ref", 40, 25, 1)

	red, err := FitPCA(context.Background(), ds, 10, true)
	require.NoError(t, err)

	assert.Equal(t, 40, red.NumCells())
	assert.Equal(t, 10, red.NumDims())
	rows, cols := red.Loadings.Dims()
	assert.Equal(t, 25, rows)
	assert.Equal(t, 10, cols)
	assert.Len(t, red.Stdev, 10)
	assert.Equal(t, "PC_1", red.DimNames()[0])
	assert.Equal(t, "PC_10", red.DimNames()[9])
}

func TestFitPCA_StdevDecreasing(t *testing.T) {
	ds := randomDataset(t, "ref", 50, 20, 2)
	red, err := FitPCA(context.Background(), ds, 8, true)
	require.NoError(t, err)

	for j := 1; j < len(red.Stdev); j++ {
		assert.LessOrEqual(t, red.Stdev[j], red.Stdev[j-1])
	}
}

func TestFitPCA_Deterministic(t *testing.T) {
	ds := randomDataset(t, "ref", 30, 15, 3)

	a, err := FitPCA(context.Background(), ds, 5, true)
	require.NoError(t, err)
	b, err := FitPCA(context.Background(), ds, 5, true)
	require.NoError(t, err)

	assert.Equal(t, a.Embeddings.Data(), b.Embeddings.Data())
	assert.Equal(t, a.Loadings.Data(), b.Loadings.Data())
}

func TestFitPCA_TooManyDims(t *testing.T) {
	ds := randomDataset(t, "ref", 10, 6, 4)
	_, err := FitPCA(context.Background(), ds, 11, true)
	require.Error(t, err)
	assert.True(t, qerr.IsType(err, qerr.ErrorTypeValidation))
}

func TestProjectPCA_Shapes(t *testing.T) {
	ref := randomDataset(t, "ref", 40, 25, 5)
	query := randomDataset(t, "query", 33, 25, 6)

	red, err := FitPCA(context.Background(), ref, 10, true)
	require.NoError(t, err)

	proj, err := ProjectPCA(context.Background(), query, red, true)
	require.NoError(t, err)

	assert.Equal(t, 33, proj.NumCells())
	assert.Equal(t, 10, proj.NumDims())
	assert.Equal(t, MethodPCAProject, proj.Name)
	assert.Equal(t, "PC_", proj.Key)
}

func TestProjectPCA_SelfProjectionMatchesFit(t *testing.T) {
	// Projecting the reference through its own loadings must reproduce its
	// embedding (both sides standardized identically).
	ds := randomDataset(t, "ref", 35, 18, 7)

	red, err := FitPCA(context.Background(), ds, 6, true)
	require.NoError(t, err)

	proj, err := ProjectPCA(context.Background(), ds, red, true)
	require.NoError(t, err)

	for i := 0; i < ds.NumCells(); i++ {
		ref := red.Embeddings.Row(i)
		got := proj.Embeddings.Row(i)
		for j := range ref {
			assert.InDelta(t, float64(ref[j]), float64(got[j]), 1e-2,
				"cell %d dim %d", i, j)
		}
	}
}

func TestProjectPCA_NoLoadings(t *testing.T) {
	ds := randomDataset(t, "ref", 20, 10, 8)
	red := &Reduction{
		Name:       "custom",
		Key:        "CU_",
		Embeddings: matrix.NewDense(20, 3, nil),
		Features:   ds.Features(),
	}

	_, err := ProjectPCA(context.Background(), ds, red, true)
	require.Error(t, err)
	assert.True(t, qerr.IsType(err, qerr.ErrorTypeValidation))
}

func TestL2Normalize(t *testing.T) {
	ds := randomDataset(t, "ref", 25, 12, 9)
	red, err := FitPCA(context.Background(), ds, 4, true)
	require.NoError(t, err)

	l2 := red.L2Normalize()
	assert.Equal(t, MethodPCA+L2Suffix, l2.Name)
	assert.Equal(t, red.NumCells(), l2.NumCells())

	for i := 0; i < l2.NumCells(); i++ {
		var norm float64
		for _, v := range l2.Embeddings.Row(i) {
			norm += float64(v) * float64(v)
		}
		assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-4, "cell %d", i)
	}
}

func TestFitCCA_Shapes(t *testing.T) {
	ref := randomDataset(t, "ref", 30, 20, 10)
	query := randomDataset(t, "query", 26, 20, 11)

	refRed, queryRed, err := FitCCA(context.Background(), ref, query, 8, true)
	require.NoError(t, err)

	assert.Equal(t, 30, refRed.NumCells())
	assert.Equal(t, 26, queryRed.NumCells())
	assert.Equal(t, 8, refRed.NumDims())
	assert.Equal(t, 8, queryRed.NumDims())
	assert.Equal(t, "CC_1", refRed.DimNames()[0])
	assert.Nil(t, refRed.Loadings)
}

func TestFitCCA_FeatureMismatch(t *testing.T) {
	ref := randomDataset(t, "ref", 20, 15, 12)
	query := randomDataset(t, "query", 20, 10, 13)

	_, _, err := FitCCA(context.Background(), ref, query, 5, true)
	require.Error(t, err)
	assert.True(t, qerr.IsType(err, qerr.ErrorTypeValidation))
}

func TestConcat(t *testing.T) {
	ref := randomDataset(t, "ref", 12, 10, 14)
	query := randomDataset(t, "query", 9, 10, 15)

	refRed, err := FitPCA(context.Background(), ref, 4, true)
	require.NoError(t, err)
	proj, err := ProjectPCA(context.Background(), query, refRed, true)
	require.NoError(t, err)

	combined := Concat("pcaproject", refRed, proj)
	assert.Equal(t, 21, combined.NumCells())
	assert.Equal(t, refRed.Embeddings.Row(0), combined.Embeddings.Row(0))
	assert.Equal(t, proj.Embeddings.Row(0), combined.Embeddings.Row(12))
}

func TestTruncate(t *testing.T) {
	ds := randomDataset(t, "ref", 20, 15, 16)
	red, err := FitPCA(context.Background(), ds, 10, true)
	require.NoError(t, err)

	cut := red.Truncate(3)
	assert.Equal(t, 3, cut.NumDims())
	assert.Equal(t, red.Embeddings.Row(0)[:3], cut.Embeddings.Row(0))
	assert.Len(t, cut.Stdev, 3)
}
