package vecindex

import (
	"container/heap"
	"fmt"
	"math"
	"sync"

	"github.com/viterin/vek/vek32"
)

// IVF is an inverted-file index: vectors are bucketed into cells around
// k-means centroids and a search only scans the cells whose centroids
// are nearest the query.
type IVF struct {
	metric  Metric
	dim     int
	n       int
	data    []float32 // n*dim, row-major, original id order
	norms   []float32 // squared norms
	nCells  int
	nprobe  int
	workers int

	centroids     []float32 // nCells*dim
	centroidNorms []float32
	cells         [][]uint32 // posting lists, cell -> member ids
}

func newIVF(vectors [][]float32, dim, nCells int, cfg Config) (*IVF, error) {
	n := len(vectors)
	flat, norms := storeContiguous(vectors, dim, cfg.workers())

	trained, err := trainCentroids(flat, norms, n, dim, nCells, cfg.Seed, cfg.workers())
	if err != nil {
		return nil, fmt.Errorf("train coarse quantizer: %w", err)
	}

	assignments := assignCells(flat, norms, n, dim, trained, nCells, cfg.workers())

	cells := make([][]uint32, nCells)
	for i, c := range assignments {
		cells[c] = append(cells[c], uint32(i))
	}

	centroids := make([]float32, nCells*dim)
	for i, v := range trained {
		centroids[i] = float32(v)
	}
	centroidNorms := make([]float32, nCells)
	for j := 0; j < nCells; j++ {
		centroidNorms[j] = squaredNorm(centroids[j*dim : (j+1)*dim])
	}

	return &IVF{
		metric:        cfg.Metric,
		dim:           dim,
		n:             n,
		data:          flat,
		norms:         norms,
		nCells:        nCells,
		nprobe:        defaultNProbe(nCells),
		workers:       cfg.workers(),
		centroids:     centroids,
		centroidNorms: centroidNorms,
		cells:         cells,
	}, nil
}

// defaultNProbe probes sqrt(nCells) cells: with C cells of roughly equal
// size, scanning sqrt(C) of them keeps good recall while the scanned
// fraction shrinks as the set grows.
func defaultNProbe(nCells int) int {
	p := int(math.Ceil(math.Sqrt(float64(nCells))))
	if p < 1 {
		p = 1
	}
	if p > nCells {
		p = nCells
	}
	return p
}

func (idx *IVF) Metric() Metric { return idx.metric }
func (idx *IVF) Dim() int       { return idx.dim }
func (idx *IVF) Count() int     { return idx.n }

// NProbe reports how many cells each search scans.
func (idx *IVF) NProbe() int { return idx.nprobe }

// SetNProbe overrides the probed cell count, clamped to [1, nCells].
func (idx *IVF) SetNProbe(p int) {
	if p < 1 {
		p = 1
	}
	if p > idx.nCells {
		p = idx.nCells
	}
	idx.nprobe = p
}

// Search fans queries out across the worker pool. For each query the
// nprobe nearest cells are selected by L2 distance to their centroid --
// the same rule used to assign vectors to cells, so a query equal to an
// indexed vector always probes that vector's own cell.
func (idx *IVF) Search(queries [][]float32, k int) ([][]Hit, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	results := make([][]Hit, len(queries))

	var searchErr error
	var errOnce sync.Once

	parallelChunks(len(queries), idx.workers, func(start, end int) {
		cellHeap := &hitHeap{metric: MetricL2}
		h := &hitHeap{metric: idx.metric}
		for q := start; q < end; q++ {
			if len(queries[q]) != idx.dim {
				errOnce.Do(func() {
					searchErr = fmt.Errorf("%w: query %d has dim %d, index has %d",
						ErrDimMismatch, q, len(queries[q]), idx.dim)
				})
				return
			}
			results[q] = idx.searchOne(queries[q], k, cellHeap, h)
		}
	})
	if searchErr != nil {
		return nil, searchErr
	}
	return results, nil
}

func (idx *IVF) searchOne(query []float32, k int, cellHeap, h *hitHeap) []Hit {
	qNorm := vek32.Dot(query, query)

	cellHeap.hits = cellHeap.hits[:0]
	for j := 0; j < idx.nCells; j++ {
		c := idx.centroids[j*idx.dim : (j+1)*idx.dim]
		dist := qNorm + idx.centroidNorms[j] - 2*vek32.Dot(query, c)
		if cellHeap.Len() < idx.nprobe {
			heap.Push(cellHeap, Hit{uint32(j), dist})
		} else if dist < cellHeap.hits[0].Score {
			cellHeap.hits[0] = Hit{uint32(j), dist}
			heap.Fix(cellHeap, 0)
		}
	}

	h.hits = h.hits[:0]
	for _, cell := range cellHeap.hits {
		for _, id := range idx.cells[cell.ID] {
			offset := int(id) * idx.dim
			vec := idx.data[offset : offset+idx.dim]

			var score float32
			dot := vek32.Dot(query, vec)
			if idx.metric == MetricInnerProduct {
				score = dot
			} else {
				score = qNorm + idx.norms[id] - 2*dot
				if score < 0 {
					score = 0
				}
			}

			if h.Len() < k {
				heap.Push(h, Hit{id, score})
			} else if idx.metric.closer(score, h.hits[0].Score) {
				h.hits[0] = Hit{id, score}
				heap.Fix(h, 0)
			}
		}
	}

	out := make([]Hit, h.Len())
	for i := h.Len() - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(Hit)
	}
	return out
}
