package neighbors

import (
	"context"
	"sort"

	"github.com/23skdu/quiver/internal/concurrency"
	"github.com/23skdu/quiver/internal/matrix"
)

// candidate pairs a reference index with its distance to the query point.
type candidate struct {
	idx  int32
	dist float32
}

// maxHeap over candidates so the worst of the current top-k sits at the root.
type maxHeap []candidate

func (h maxHeap) Len() int      { return len(h) }
func (h maxHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h maxHeap) Less(i, j int) bool {
	if h[i].dist != h[j].dist {
		return h[i].dist > h[j].dist
	}
	return h[i].idx > h[j].idx
}

func (h *maxHeap) push(c candidate) {
	*h = append(*h, c)
	i := len(*h) - 1
	for i > 0 {
		parent := (i - 1) / 2
		if h.Less(i, parent) {
			break
		}
		h.Swap(i, parent)
		i = parent
	}
}

func (h *maxHeap) replaceRoot(c candidate) {
	(*h)[0] = c
	i := 0
	n := len(*h)
	for {
		left := 2*i + 1
		if left >= n {
			break
		}
		largest := left
		if right := left + 1; right < n && h.Less(left, right) {
			largest = right
		}
		if !h.Less(i, largest) {
			break
		}
		h.Swap(i, largest)
		i = largest
	}
}

// better reports whether a should replace b in the top-k (ties broken by
// lower index for run-to-run determinism).
func better(a, b candidate) bool {
	if a.dist != b.dist {
		return a.dist < b.dist
	}
	return a.idx < b.idx
}

// searchExact is the brute-force backend: every query row is compared
// against every reference row, parallelized over query rows.
func searchExact(ctx context.Context, cfg Config, query, ref *matrix.Dense, k int) (*Neighbors, error) {
	nq, _ := query.Dims()
	nr, _ := ref.Dims()
	dist := cfg.distanceFunc()

	out := &Neighbors{
		K:         k,
		Indices:   make([][]int32, nq),
		Distances: make([][]float32, nq),
	}

	err := concurrency.ParallelFor(ctx, cfg.Chunk, nq, func(start, end int) {
		for q := start; q < end; q++ {
			qrow := query.Row(q)
			heap := make(maxHeap, 0, k)

			for r := 0; r < nr; r++ {
				c := candidate{idx: int32(r), dist: dist(qrow, ref.Row(r))}
				if len(heap) < k {
					heap.push(c)
				} else if better(c, heap[0]) {
					heap.replaceRoot(c)
				}
			}

			sort.Slice(heap, func(i, j int) bool { return better(heap[i], heap[j]) })

			idx := make([]int32, len(heap))
			dst := make([]float32, len(heap))
			for i, c := range heap {
				idx[i] = c.idx
				dst[i] = c.dist
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
