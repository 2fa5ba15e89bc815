// Package neighbors builds k-nearest-neighbor structures over embedded
// cells, with an exact parallel backend, an approximate HNSW backend, and
// a precomputed passthrough for chaining transfer calls against one
// reference.
package neighbors

import (
	"context"
	"fmt"
	"time"

	"github.com/23skdu/quiver/internal/concurrency"
	qerr "github.com/23skdu/quiver/internal/errors"
	"github.com/23skdu/quiver/internal/matrix"
	"github.com/23skdu/quiver/internal/metrics"
	"github.com/23skdu/quiver/internal/simd"
)

// Backend selects the kNN implementation.
type Backend string

const (
	BackendExact Backend = "exact"
	BackendHNSW  Backend = "hnsw"
)

// Metric selects the distance function. Cosine expects pre-L2-normalized
// rows, in which case euclidean and cosine orderings agree; the metric is
// still applied literally.
type Metric string

const (
	MetricEuclidean Metric = "euclidean"
	MetricCosine    Metric = "cosine"
)

// Config controls a neighbor search.
type Config struct {
	Backend Backend
	Metric  Metric
	Chunk   concurrency.ChunkConfig
}

// DefaultConfig returns an exact euclidean search configuration.
func DefaultConfig() Config {
	return Config{
		Backend: BackendExact,
		Metric:  MetricEuclidean,
		Chunk:   concurrency.DefaultChunkConfig(),
	}
}

func (c Config) distanceFunc() func(a, b []float32) float32 {
	if c.Metric == MetricCosine {
		return simd.CosineDistance
	}
	return simd.EuclideanDistance
}

// Neighbors holds, for each query point, its k nearest reference points in
// ascending distance order. Immutable once built.
type Neighbors struct {
	K         int
	Indices   [][]int32
	Distances [][]float32
}

// NumQueries returns the number of query points covered.
func (n *Neighbors) NumQueries() int { return len(n.Indices) }

// Contains reports whether candidate appears in query row q's list.
func (n *Neighbors) Contains(q int, candidate int32) bool {
	for _, idx := range n.Indices[q] {
		if idx == candidate {
			return true
		}
	}
	return false
}

// Validate checks a precomputed neighbor structure against the expected
// query and reference sizes.
func (n *Neighbors) Validate(numQueries, numRefs int) error {
	if len(n.Indices) != numQueries {
		return qerr.NewValidationError("Neighbors.Validate", "precomputed",
			fmt.Sprintf("structure covers %d queries, expected %d", len(n.Indices), numQueries))
	}
	for q, row := range n.Indices {
		for _, idx := range row {
			if idx < 0 || int(idx) >= numRefs {
				return qerr.NewValidationError("Neighbors.Validate", "precomputed",
					fmt.Sprintf("query %d references out-of-range index %d", q, idx))
			}
		}
	}
	return nil
}

// Search finds the k nearest rows of ref for every row of query.
// k >= ref row count is a validation error raised before computation.
func Search(ctx context.Context, cfg Config, query, ref *matrix.Dense, k int) (*Neighbors, error) {
	nq, dq := query.Dims()
	nr, dr := ref.Dims()

	if k <= 0 {
		return nil, qerr.NewValidationError("neighbors.Search", "k", "k must be positive")
	}
	if k > nr {
		return nil, qerr.NewValidationError("neighbors.Search", "k",
			fmt.Sprintf("k=%d exceeds reference cell count %d", k, nr))
	}
	if dq != dr {
		return nil, qerr.NewValidationError("neighbors.Search", "query",
			fmt.Sprintf("query dimensionality %d does not match reference %d", dq, dr))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	var (
		out *Neighbors
		err error
	)
	switch cfg.Backend {
	case BackendHNSW:
		out, err = searchHNSW(ctx, cfg, query, ref, k)
	case BackendExact, "":
		out, err = searchExact(ctx, cfg, query, ref, k)
	default:
		return nil, qerr.NewValidationError("neighbors.Search", "backend",
			fmt.Sprintf("unknown backend %q", cfg.Backend))
	}
	if err != nil {
		return nil, err
	}

	backend := string(cfg.Backend)
	if backend == "" {
		backend = string(BackendExact)
	}
	metrics.NeighborBuildDurationSeconds.WithLabelValues(backend).Observe(time.Since(start).Seconds())
	metrics.NeighborSearchesTotal.WithLabelValues(backend).Add(float64(nq))
	return out, nil
}

// SelfSearch finds each row's k nearest rows within the same embedding,
// excluding the row itself.
func SelfSearch(ctx context.Context, cfg Config, emb *matrix.Dense, k int) (*Neighbors, error) {
	n, _ := emb.Dims()
	if k >= n {
		return nil, qerr.NewValidationError("neighbors.SelfSearch", "k",
			fmt.Sprintf("k=%d must be below cell count %d", k, n))
	}

	// Search k+1 then drop the self hit.
	full, err := Search(ctx, cfg, emb, emb, k+1)
	if err != nil {
		return nil, err
	}

	out := &Neighbors{
		K:         k,
		Indices:   make([][]int32, n),
		Distances: make([][]float32, n),
	}
	for i := 0; i < n; i++ {
		idx := make([]int32, 0, k)
		dist := make([]float32, 0, k)
		for j, cand := range full.Indices[i] {
			if int(cand) == i {
				continue
			}
			if len(idx) == k {
				break
			}
			idx = append(idx, cand)
			dist = append(dist, full.Distances[i][j])
		}
		// Degenerate duplicates can leave the self hit unmatched; trim to k.
		if len(idx) > k {
			idx = idx[:k]
			dist = dist[:k]
		}
		out.Indices[i] = idx
		out.Distances[i] = dist
	}
	return out, nil
}
