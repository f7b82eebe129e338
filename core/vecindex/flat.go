package vecindex

import (
	"container/heap"
	"fmt"
	"sync"

	"github.com/viterin/vek/vek32"
)

// Flat is an exact index: every search is a full linear scan. Used for
// sets small enough that an inverted-file structure buys nothing.
type Flat struct {
	metric  Metric
	dim     int
	n       int
	data    []float32 // n*dim, row-major
	norms   []float32 // squared norms, used for the L2 metric
	workers int
}

func newFlat(vectors [][]float32, dim int, cfg Config) *Flat {
	flat, norms := storeContiguous(vectors, dim, cfg.workers())
	return &Flat{
		metric:  cfg.Metric,
		dim:     dim,
		n:       len(vectors),
		data:    flat,
		norms:   norms,
		workers: cfg.workers(),
	}
}

func (f *Flat) Metric() Metric { return f.metric }
func (f *Flat) Dim() int       { return f.dim }
func (f *Flat) Count() int     { return f.n }

// Search scans the full set for each query. Queries fan out across the
// worker pool; each query's scan is a single pass with a bounded heap.
func (f *Flat) Search(queries [][]float32, k int) ([][]Hit, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	results := make([][]Hit, len(queries))

	var scanErr error
	var errOnce sync.Once

	parallelChunks(len(queries), f.workers, func(start, end int) {
		h := &hitHeap{metric: f.metric}
		for q := start; q < end; q++ {
			if len(queries[q]) != f.dim {
				errOnce.Do(func() {
					scanErr = fmt.Errorf("%w: query %d has dim %d, index has %d",
						ErrDimMismatch, q, len(queries[q]), f.dim)
				})
				return
			}
			results[q] = f.scan(queries[q], k, h)
		}
	})
	if scanErr != nil {
		return nil, scanErr
	}
	return results, nil
}

func (f *Flat) scan(query []float32, k int, h *hitHeap) []Hit {
	h.hits = h.hits[:0]
	qNorm := vek32.Dot(query, query)

	for i := 0; i < f.n; i++ {
		offset := i * f.dim
		vec := f.data[offset : offset+f.dim]
		score := f.score(query, qNorm, vec, i)

		if h.Len() < k {
			heap.Push(h, Hit{uint32(i), score})
		} else if f.metric.closer(score, h.hits[0].Score) {
			h.hits[0] = Hit{uint32(i), score}
			heap.Fix(h, 0)
		}
	}

	out := make([]Hit, h.Len())
	for i := h.Len() - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(Hit)
	}
	return out
}

func (f *Flat) score(query []float32, qNorm float32, vec []float32, i int) float32 {
	dot := vek32.Dot(query, vec)
	if f.metric == MetricInnerProduct {
		return dot
	}
	// ||q - v||^2 = ||q||^2 + ||v||^2 - 2 q.v, clamped against rounding
	d := qNorm + f.norms[i] - 2*dot
	if d < 0 {
		d = 0
	}
	return d
}

// parallelChunks splits [0, n) into contiguous chunks, one per worker.
func parallelChunks(n, numWorkers int, fn func(start, end int)) {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if numWorkers == 1 || n <= 1 {
		fn(0, n)
		return
	}

	chunkSize := (n + numWorkers - 1) / numWorkers
	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		start := w * chunkSize
		end := min(start+chunkSize, n)
		if start >= end {
			continue
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			fn(start, end)
		}(start, end)
	}
	wg.Wait()
}
