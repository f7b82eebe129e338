// Package knngraph turns an indexed embedding set into the raw
// k-nearest-neighbor lists a sparse similarity graph is assembled from.
package knngraph

import (
	"fmt"
	"math"

	"github.com/adalundhe/pstcluster/core/vecindex"
)

// Result holds per-entity neighbor lists: row i of Idx are the entity
// ids of i's nearest neighbors, row i of Sim their similarities. Rows
// include the guaranteed self-match so downstream assembly can validate
// and strip it; nothing in this package removes it.
type Result struct {
	Sim [][]float32
	Idx [][]uint32
}

// K reports the requested neighbor count, excluding the self column.
func (r Result) K() int {
	if len(r.Idx) == 0 {
		return 0
	}
	return len(r.Idx[0]) - 1
}

// Build queries the index for the k+1 nearest neighbors of every vector
// (the extra slot absorbs the self-match) and converts scores to
// bounded similarities.
//
// Inner-product scores pass through untouched: on normalized vectors
// they already live in [-1, 1] with higher meaning closer. Squared L2
// distances are mapped through a Gaussian kernel,
// sim = exp(-dist / sqrt(dim)), so that graph weights are in (0, 1]
// regardless of which metric the index was built with.
func Build(index vecindex.Index, vectors [][]float32, k int) (Result, error) {
	if k <= 0 {
		return Result{}, vecindex.ErrInvalidK
	}

	hits, err := index.Search(vectors, k+1)
	if err != nil {
		return Result{}, fmt.Errorf("knn search: %w", err)
	}

	scale := 1 / math.Sqrt(float64(index.Dim()))
	gaussian := index.Metric() == vecindex.MetricL2

	res := Result{
		Sim: make([][]float32, len(hits)),
		Idx: make([][]uint32, len(hits)),
	}
	for i, row := range hits {
		sim := make([]float32, len(row))
		idx := make([]uint32, len(row))
		for j, h := range row {
			idx[j] = h.ID
			if gaussian {
				sim[j] = float32(math.Exp(-float64(h.Score) * scale))
			} else {
				sim[j] = h.Score
			}
		}
		res.Sim[i] = sim
		res.Idx[i] = idx
	}
	return res, nil
}
