package neighbors

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerr "github.com/23skdu/quiver/internal/errors"
	"github.com/23skdu/quiver/internal/matrix"
)

func randomEmbedding(rows, dims int, seed int64) *matrix.Dense {
	rng := rand.New(rand.NewSource(seed))
	m := matrix.NewDense(rows, dims, nil)
	for i := 0; i < rows; i++ {
		row := m.Row(i)
		for j := range row {
			row[j] = float32(rng.NormFloat64())
		}
	}
	return m
}

func TestSearch_ExactKnownLayout(t *testing.T) {
	// Reference points on a line; nearest neighbors are unambiguous.
	ref := matrix.NewDense(4, 1, []float32{0, 10, 20, 30})
	query := matrix.NewDense(2, 1, []float32{1, 29})

	nn, err := Search(context.Background(), DefaultConfig(), query, ref, 2)
	require.NoError(t, err)

	assert.Equal(t, []int32{0, 1}, nn.Indices[0])
	assert.Equal(t, []int32{3, 2}, nn.Indices[1])
	assert.InDelta(t, 1.0, float64(nn.Distances[0][0]), 1e-5)
}

func TestSearch_DistancesAscending(t *testing.T) {
	ref := randomEmbedding(200, 10, 1)
	query := randomEmbedding(50, 10, 2)

	nn, err := Search(context.Background(), DefaultConfig(), query, ref, 15)
	require.NoError(t, err)

	for q := 0; q < nn.NumQueries(); q++ {
		require.Len(t, nn.Indices[q], 15)
		for i := 1; i < len(nn.Distances[q]); i++ {
			assert.LessOrEqual(t, nn.Distances[q][i-1], nn.Distances[q][i])
		}
	}
}

func TestSearch_Deterministic(t *testing.T) {
	ref := randomEmbedding(120, 8, 3)
	query := randomEmbedding(40, 8, 4)

	a, err := Search(context.Background(), DefaultConfig(), query, ref, 10)
	require.NoError(t, err)
	b, err := Search(context.Background(), DefaultConfig(), query, ref, 10)
	require.NoError(t, err)

	assert.Equal(t, a.Indices, b.Indices)
	assert.Equal(t, a.Distances, b.Distances)
}

func TestSearch_KTooLarge(t *testing.T) {
	ref := randomEmbedding(10, 4, 5)
	query := randomEmbedding(5, 4, 6)

	_, err := Search(context.Background(), DefaultConfig(), query, ref, 11)
	require.Error(t, err)
	assert.True(t, qerr.IsType(err, qerr.ErrorTypeValidation))
}

func TestSearch_DimMismatch(t *testing.T) {
	ref := randomEmbedding(10, 4, 7)
	query := randomEmbedding(5, 3, 8)

	_, err := Search(context.Background(), DefaultConfig(), query, ref, 2)
	require.Error(t, err)
	assert.True(t, qerr.IsType(err, qerr.ErrorTypeValidation))
}

func TestSearch_CosineOnNormalizedRows(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Metric = MetricCosine

	ref := matrix.NewDense(3, 2, []float32{
		1, 0,
		0, 1,
		-1, 0,
	})
	query := matrix.NewDense(1, 2, []float32{0.9, 0.1})

	nn, err := Search(context.Background(), cfg, query, ref, 3)
	require.NoError(t, err)
	assert.Equal(t, int32(0), nn.Indices[0][0])
	assert.Equal(t, int32(2), nn.Indices[0][2])
}

func TestSearch_HNSWApproximatesExact(t *testing.T) {
	ref := randomEmbedding(300, 16, 9)
	query := randomEmbedding(30, 16, 10)

	exact, err := Search(context.Background(), DefaultConfig(), query, ref, 10)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Backend = BackendHNSW
	approx, err := Search(context.Background(), cfg, query, ref, 10)
	require.NoError(t, err)

	// Recall over all queries should be high even for a small graph.
	var hits, total int
	for q := range exact.Indices {
		truth := make(map[int32]struct{}, 10)
		for _, idx := range exact.Indices[q] {
			truth[idx] = struct{}{}
		}
		for _, idx := range approx.Indices[q] {
			if _, ok := truth[idx]; ok {
				hits++
			}
		}
		total += len(exact.Indices[q])
	}
	recall := float64(hits) / float64(total)
	assert.Greater(t, recall, 0.8, "recall %f too low", recall)
}

func TestSelfSearch_ExcludesSelf(t *testing.T) {
	emb := randomEmbedding(60, 6, 11)

	nn, err := SelfSearch(context.Background(), DefaultConfig(), emb, 5)
	require.NoError(t, err)

	for i := range nn.Indices {
		require.Len(t, nn.Indices[i], 5)
		for _, idx := range nn.Indices[i] {
			assert.NotEqual(t, int32(i), idx, "row %d lists itself", i)
		}
	}
}

func TestSelfSearch_KAtCellCount(t *testing.T) {
	emb := randomEmbedding(10, 3, 12)
	_, err := SelfSearch(context.Background(), DefaultConfig(), emb, 10)
	require.Error(t, err)
	assert.True(t, qerr.IsType(err, qerr.ErrorTypeValidation))
}

func TestNeighbors_Validate(t *testing.T) {
	nn := &Neighbors{
		K:         2,
		Indices:   [][]int32{{0, 1}, {1, 2}},
		Distances: [][]float32{{0.1, 0.2}, {0.3, 0.4}},
	}

	require.NoError(t, nn.Validate(2, 3))
	assert.Error(t, nn.Validate(3, 3))
	assert.Error(t, nn.Validate(2, 2))
}

func TestNeighbors_Contains(t *testing.T) {
	nn := &Neighbors{K: 2, Indices: [][]int32{{4, 7}}}
	assert.True(t, nn.Contains(0, 7))
	assert.False(t, nn.Contains(0, 5))
}
