package concurrency

import (
	"context"
	"runtime"
	"sync"
)

// ChunkConfig bounds how work is split across workers.
type ChunkConfig struct {
	Workers      int
	MinChunkSize int
	MaxChunkSize int
}

// DefaultChunkConfig returns chunking defaults sized to the machine.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		Workers:      runtime.NumCPU(),
		MinChunkSize: 64,
		MaxChunkSize: 8192,
	}
}

// ParallelFor runs fn over [0, n) split into contiguous chunks across a
// worker pool. fn receives [start, end) bounds and must not share mutable
// state across chunks; callers assemble results by index so completion
// order does not matter. Cancellation is checked at chunk boundaries.
func ParallelFor(ctx context.Context, cfg ChunkConfig, n int, fn func(start, end int)) error {
	if n <= 0 {
		return ctx.Err()
	}

	numWorkers := cfg.Workers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	targetChunks := numWorkers * 3
	chunkSize := n / targetChunks
	if chunkSize < cfg.MinChunkSize {
		chunkSize = cfg.MinChunkSize
	}
	if cfg.MaxChunkSize > 0 && chunkSize > cfg.MaxChunkSize {
		chunkSize = cfg.MaxChunkSize
	}

	// Not worth the goroutine overhead below two chunks.
	if n < chunkSize*2 {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(0, n)
		return nil
	}

	type chunk struct{ start, end int }
	work := make(chan chunk)
	var wg sync.WaitGroup

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range work {
				if ctx.Err() != nil {
					continue
				}
				fn(c.start, c.end)
			}
		}()
	}

	for start := 0; start < n; start += chunkSize {
		end := start + chunkSize
		if end > n {
			end = n
		}
		work <- chunk{start, end}
	}
	close(work)
	wg.Wait()

	return ctx.Err()
}
