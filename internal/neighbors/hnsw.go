package neighbors

import (
	"context"
	"sync"

	"github.com/coder/hnsw"

	"github.com/23skdu/quiver/internal/concurrency"
	"github.com/23skdu/quiver/internal/matrix"
)

// searchHNSW is the approximate backend. The graph is built once over the
// reference rows, then queried in parallel. Recall follows the library's
// documented tolerance rather than being exact.
func searchHNSW(ctx context.Context, cfg Config, query, ref *matrix.Dense, k int) (*Neighbors, error) {
	nq, _ := query.Dims()
	nr, _ := ref.Dims()

	graph := hnsw.NewGraph[int32]()
	graph.Distance = cfg.distanceFunc()

	for r := 0; r < nr; r++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		graph.Add(hnsw.MakeNode(int32(r), ref.Row(r)))
	}

	out := &Neighbors{
		K:         k,
		Indices:   make([][]int32, nq),
		Distances: make([][]float32, nq),
	}

	dist := cfg.distanceFunc()
	var mu sync.RWMutex
	err := concurrency.ParallelFor(ctx, concurrency.ChunkConfig{
		Workers:      cfg.Chunk.Workers,
		MinChunkSize: 1,
		MaxChunkSize: cfg.Chunk.MaxChunkSize,
	}, nq, func(start, end int) {
		for q := start; q < end; q++ {
			qrow := query.Row(q)
			mu.RLock()
			nodes := graph.Search(qrow, k)
			mu.RUnlock()

			idx := make([]int32, len(nodes))
			dst := make([]float32, len(nodes))
			for i, n := range nodes {
				idx[i] = n.Key
				dst[i] = dist(qrow, n.Value)
			}
			out.Indices[q] = idx
			out.Distances[q] = dst
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
