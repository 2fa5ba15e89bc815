package sketch

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerr "github.com/23skdu/quiver/internal/errors"
	"github.com/23skdu/quiver/internal/matrix"
)

// mixedDataset builds a dataset dominated by one common population with a
// small, strongly distinct rare population at a configurable rate.
func mixedDataset(t *testing.T, name string, n int, rareRate float64, seed int64) (*matrix.Dataset, map[int]bool) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	nFeat := 20

	features := make([]string, nFeat)
	for j := range features {
		features[j] = fmt.Sprintf("gene-%d", j+1)
	}
	cells := make([]string, n)
	values := make([]float32, n*nFeat)
	rare := make(map[int]bool)

	for i := 0; i < n; i++ {
		cells[i] = fmt.Sprintf("%s-cell-%d", name, i+1)
		isRare := rng.Float64() < rareRate
		rare[i] = isRare
		for j := 0; j < nFeat; j++ {
			v := 0.5 * rng.NormFloat64()
			if isRare {
				// Rare cells express a distinct module, far off-axis.
				v += float64(20 * ((j % 4) + 1))
			}
			values[i*nFeat+j] = float32(v)
		}
	}

	ds, err := matrix.NewDataset(name, cells, features, values, matrix.KindDense)
	require.NoError(t, err)
	return ds, rare
}

func TestSample_SizeInvariant(t *testing.T) {
	ds, _ := mixedDataset(t, "big", 500, 0.05, 1)

	for _, method := range []Method{MethodUniform, MethodLeverage} {
		sk, err := Sample(context.Background(), ds, 120, method, 42)
		require.NoError(t, err, string(method))

		require.Len(t, sk.Indices, 120, string(method))
		assert.Equal(t, 120, sk.Data.NumCells())

		seen := make(map[int]bool)
		for _, idx := range sk.Indices {
			assert.GreaterOrEqual(t, idx, 0)
			assert.Less(t, idx, 500)
			assert.False(t, seen[idx], "duplicate index %d", idx)
			seen[idx] = true
		}
	}
}

func TestSample_NTooLarge(t *testing.T) {
	ds, _ := mixedDataset(t, "small", 50, 0, 2)

	_, err := Sample(context.Background(), ds, 51, MethodUniform, 1)
	require.Error(t, err)
	assert.True(t, qerr.IsType(err, qerr.ErrorTypeValidation))
}

func TestSample_Deterministic(t *testing.T) {
	ds, _ := mixedDataset(t, "ds", 300, 0.05, 3)

	a, err := Sample(context.Background(), ds, 80, MethodLeverage, 7)
	require.NoError(t, err)
	b, err := Sample(context.Background(), ds, 80, MethodLeverage, 7)
	require.NoError(t, err)

	assert.Equal(t, a.Indices, b.Indices)
}

func TestSample_ParentUntouched(t *testing.T) {
	ds, _ := mixedDataset(t, "ds", 100, 0, 4)
	before := append([]float32(nil), ds.Row(0)...)

	sk, err := Sample(context.Background(), ds, 30, MethodLeverage, 1)
	require.NoError(t, err)

	assert.Equal(t, before, ds.Row(0))
	// Sketch rows re-address the parent through shared indices.
	assert.Equal(t, ds.Row(sk.Indices[0]), sk.Data.Row(0))
	assert.Equal(t, ds.Cells()[sk.Indices[0]], sk.Data.Cells()[0])
}

func TestSample_LeverageFavorsRarePopulation(t *testing.T) {
	// Under 1% rare cells; leverage sampling must still pick some up.
	ds, rare := mixedDataset(t, "atlas", 3000, 0.008, 5)

	rareTotal := 0
	for _, isRare := range rare {
		if isRare {
			rareTotal++
		}
	}
	require.Greater(t, rareTotal, 0, "fixture produced no rare cells")

	sk, err := Sample(context.Background(), ds, 300, MethodLeverage, 9)
	require.NoError(t, err)

	rareSampled := 0
	for _, idx := range sk.Indices {
		if rare[idx] {
			rareSampled++
		}
	}
	assert.Greater(t, rareSampled, 0, "no rare cells in the sketch")

	// Rare cells must be enriched relative to their prevalence.
	prevalence := float64(rareTotal) / 3000.0
	sampledRate := float64(rareSampled) / 300.0
	assert.Greater(t, sampledRate, prevalence, "leverage sampling did not enrich rare cells")
}

func TestLeverageScores_Positive(t *testing.T) {
	ds, _ := mixedDataset(t, "ds", 150, 0.05, 6)

	scores, err := LeverageScores(context.Background(), ds, 11)
	require.NoError(t, err)
	require.Len(t, scores, 150)
	for i, s := range scores {
		assert.GreaterOrEqual(t, s, 0.0, "cell %d", i)
	}
}

func TestByLayer(t *testing.T) {
	layers := make(map[string]*matrix.Dataset, 4)
	for i := 0; i < 4; i++ {
		ds, _ := mixedDataset(t, fmt.Sprintf("sample-%d", i), 200, 0.02, int64(20+i))
		layers[fmt.Sprintf("sample-%d", i)] = ds
	}

	out, err := ByLayer(context.Background(), layers, 50, MethodLeverage, 1)
	require.NoError(t, err)
	require.Len(t, out, 4)

	total := 0
	for i, ls := range out {
		assert.Len(t, ls.Sketch.Indices, 50)
		total += len(ls.Sketch.Indices)
		if i > 0 {
			assert.Less(t, out[i-1].Layer, ls.Layer, "layers not in sorted order")
		}
	}
	assert.Equal(t, 200, total)
}

func TestByLayer_UndersizedLayerFails(t *testing.T) {
	small, _ := mixedDataset(t, "small", 10, 0, 7)
	layers := map[string]*matrix.Dataset{"small": small}

	_, err := ByLayer(context.Background(), layers, 50, MethodUniform, 1)
	require.Error(t, err)
}
