package vecindex

import (
	"fmt"
	"math"

	"github.com/viterin/vek/vek32"
)

// Build constructs a search index over the given embedding set. Sets
// small enough for a single inverted-file cell get an exact flat index;
// larger sets get an inverted-file index whose coarse centroids are
// trained by k-means on the indexed data itself. Training on the data
// being indexed is fine here: clustering runs are offline batch jobs,
// not a live search service.
func Build(vectors [][]float32, cfg Config) (Index, error) {
	dim, err := checkMatrix(vectors)
	if err != nil {
		return nil, err
	}

	nCells := NumCells(len(vectors))
	if nCells == 1 {
		return newFlat(vectors, dim, cfg), nil
	}

	idx, err := newIVF(vectors, dim, nCells, cfg)
	if err != nil {
		return nil, fmt.Errorf("build ivf index: %w", err)
	}
	return idx, nil
}

// Normalize L2-normalizes every vector in place. Zero vectors are left
// untouched. Call this before Build when similarity is inner product.
func Normalize(vectors [][]float32) {
	for _, v := range vectors {
		norm := float32(math.Sqrt(float64(vek32.Dot(v, v))))
		if norm == 0 {
			continue
		}
		vek32.MulNumber_Inplace(v, 1/norm)
	}
}

// storeContiguous copies row vectors into a single flat buffer and
// records squared norms, chunked across workers.
func storeContiguous(vectors [][]float32, dim, numWorkers int) (flat []float32, norms []float32) {
	n := len(vectors)
	flat = make([]float32, n*dim)
	norms = make([]float32, n)

	parallelChunks(n, numWorkers, func(start, end int) {
		for i := start; i < end; i++ {
			offset := i * dim
			copy(flat[offset:offset+dim], vectors[i])
			norms[i] = vek32.Dot(vectors[i], vectors[i])
		}
	})
	return flat, norms
}
