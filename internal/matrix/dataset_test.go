package matrix

import (
	"fmt"
	"math"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerr "github.com/23skdu/quiver/internal/errors"
)

func makeDataset(t *testing.T, name string, cells, features int, kind Kind) *Dataset {
	t.Helper()
	cellNames := make([]string, cells)
	for i := range cellNames {
		cellNames[i] = fmt.Sprintf("%s-cell-%d", name, i+1)
	}
	featNames := make([]string, features)
	for j := range featNames {
		featNames[j] = fmt.Sprintf("gene-%d", j+1)
	}
	values := make([]float32, cells*features)
	for i := range values {
		values[i] = float32((i*31)%17) / 4.0
	}
	ds, err := NewDataset(name, cellNames, featNames, values, kind)
	require.NoError(t, err)
	return ds
}

func TestNewDataset_DimensionMismatch(t *testing.T) {
	_, err := NewDataset("ref", []string{"c1", "c2"}, []string{"g1"}, []float32{1}, KindDense)
	require.Error(t, err)
	assert.True(t, qerr.IsType(err, qerr.ErrorTypeValidation))
}

func TestNewDataset_DuplicateCellName(t *testing.T) {
	_, err := NewDataset("ref", []string{"c1", "c1"}, []string{"g1"}, []float32{1, 2}, KindDense)
	require.Error(t, err)
	assert.True(t, qerr.IsType(err, qerr.ErrorTypeValidation))
}

func TestSparseMatchesDense(t *testing.T) {
	values := []float32{0, 1.5, 0, 0, 0, 2.5, 3, 0, 0}
	dense, err := NewDataset("a", []string{"c1", "c2", "c3"}, []string{"g1", "g2", "g3"}, values, KindDense)
	require.NoError(t, err)
	sparse, err := NewDataset("a", []string{"c1", "c2", "c3"}, []string{"g1", "g2", "g3"}, values, KindSparse)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		assert.Equal(t, dense.Row(i), sparse.Row(i), "row %d", i)
		for j := 0; j < 3; j++ {
			assert.Equal(t, dense.Matrix().At(i, j), sparse.Matrix().At(i, j))
		}
	}
	assert.Equal(t, 4, sparse.Matrix().(*Sparse).NNZ())
}

func TestSelectFeatures(t *testing.T) {
	ds := makeDataset(t, "ref", 5, 8, KindDense)

	sub, err := ds.SelectFeatures([]string{"gene-3", "gene-1"})
	require.NoError(t, err)

	assert.Equal(t, 5, sub.NumCells())
	assert.Equal(t, []string{"gene-3", "gene-1"}, sub.Features())
	for i := 0; i < 5; i++ {
		assert.Equal(t, ds.Matrix().At(i, 2), sub.Matrix().At(i, 0))
		assert.Equal(t, ds.Matrix().At(i, 0), sub.Matrix().At(i, 1))
	}
}

func TestSelectFeatures_Unknown(t *testing.T) {
	ds := makeDataset(t, "ref", 3, 3, KindDense)
	_, err := ds.SelectFeatures([]string{"gene-99"})
	require.Error(t, err)
	assert.True(t, qerr.IsType(err, qerr.ErrorTypeValidation))
}

func TestSelectCells(t *testing.T) {
	ds := makeDataset(t, "ref", 6, 4, KindDense)

	sub, err := ds.SelectCells([]int{4, 0})
	require.NoError(t, err)
	assert.Equal(t, []string{"ref-cell-5", "ref-cell-1"}, sub.Cells())
	assert.Equal(t, ds.Row(4), sub.Row(0))
	assert.Equal(t, ds.Row(0), sub.Row(1))
}

func TestSelectCells_OutOfRange(t *testing.T) {
	ds := makeDataset(t, "ref", 3, 2, KindDense)
	_, err := ds.SelectCells([]int{3})
	require.Error(t, err)
	assert.True(t, qerr.IsType(err, qerr.ErrorTypeValidation))
}

func TestIntersect_PreservesFirstOrder(t *testing.T) {
	a, err := NewDataset("a", []string{"c1"}, []string{"g1", "g2", "g3"}, []float32{1, 2, 3}, KindDense)
	require.NoError(t, err)
	b, err := NewDataset("b", []string{"c1"}, []string{"g3", "g1", "g9"}, []float32{1, 2, 3}, KindDense)
	require.NoError(t, err)

	assert.Equal(t, []string{"g1", "g3"}, Intersect(a, b))
}

func TestStandardize(t *testing.T) {
	values := []float32{
		1, 10,
		3, 20,
		5, 30,
	}
	ds, err := NewDataset("ref", []string{"c1", "c2", "c3"}, []string{"g1", "g2"}, values, KindDense)
	require.NoError(t, err)

	scaled, stats, err := ds.Standardize(true)
	require.NoError(t, err)

	assert.InDelta(t, 3.0, stats.Means[0], 1e-9)
	assert.InDelta(t, 20.0, stats.Means[1], 1e-9)

	// Column means of the result must be ~0, sample stdev ~1.
	for j := 0; j < 2; j++ {
		var mean, ss float64
		for i := 0; i < 3; i++ {
			mean += float64(scaled.Matrix().At(i, j))
		}
		mean /= 3
		assert.InDelta(t, 0.0, mean, 1e-6)
		for i := 0; i < 3; i++ {
			d := float64(scaled.Matrix().At(i, j)) - mean
			ss += d * d
		}
		assert.InDelta(t, 1.0, math.Sqrt(ss/2), 1e-6)
	}

	// Source dataset is untouched.
	assert.Equal(t, float32(1), ds.Matrix().At(0, 0))
}

func TestStandardize_ZeroVariance(t *testing.T) {
	values := []float32{2, 1, 2, 5, 2, 9}
	ds, err := NewDataset("ref", []string{"c1", "c2", "c3"}, []string{"flat", "g2"}, values, KindDense)
	require.NoError(t, err)

	_, _, err = ds.Standardize(true)
	require.Error(t, err)
	assert.True(t, qerr.IsType(err, qerr.ErrorTypeData))
}

func TestArrowRoundTrip(t *testing.T) {
	ds := makeDataset(t, "ref", 7, 5, KindDense)

	mem := memory.NewGoAllocator()
	rec := ToRecord(mem, ds)
	defer rec.Release()

	back, err := FromRecord(rec)
	require.NoError(t, err)

	assert.Equal(t, ds.Name(), back.Name())
	assert.Equal(t, ds.Cells(), back.Cells())
	assert.Equal(t, ds.Features(), back.Features())
	for i := 0; i < ds.NumCells(); i++ {
		assert.Equal(t, ds.Row(i), back.Row(i))
	}
}
