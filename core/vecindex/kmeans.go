package vecindex

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
)

// Coarse-quantizer training for the inverted-file index.
//
// Distances are computed in blocks via BLAS GEMM (all dot products of a
// row block against every centroid in one call) with precomputed squared
// norms, so the working set stays bounded regardless of input size:
// only one block of rows is ever held in float64 at a time.
//
// Robustness:
//   - k-means++ initialization for small k, distinct random picks for
//     large k where the quadratic ++ seeding would dominate run time
//   - convergence detection on relative objective improvement
//   - empty cells reseeded from the points farthest from their centroid
//   - seeded RNG for reproducible runs

const (
	// kmeansBlockRows bounds the float64 conversion buffer: one block of
	// rows is converted and scored per GEMM call.
	kmeansBlockRows = 4096

	// kmeansPlusPlusMaxK is the largest k that still uses k-means++
	// seeding; beyond it the O(n*k) seeding pass costs more than the
	// Lloyd iterations it saves.
	kmeansPlusPlusMaxK = 1024

	kmeansMaxIterations = 25
)

// kmeansConvergenceThreshold is the relative objective improvement below
// which training stops: 1000 x float32 machine epsilon.
const kmeansConvergenceThreshold = 1000 * 1.1920929e-7

// trainCentroids learns k centroids over the flat row-major data and
// returns them in float64 row-major layout.
func trainCentroids(data []float32, norms []float32, n, dim, k int, seed int64, workers int) ([]float64, error) {
	if k <= 0 || k > n {
		return nil, fmt.Errorf("kmeans: k=%d out of range for n=%d", k, n)
	}

	rng := rand.New(rand.NewSource(seed))
	centroids := initCentroids(data, norms, n, dim, k, rng)

	prevObjective := math.MaxFloat64
	assignments := make([]uint32, n)
	dists := make([]float64, n)

	for iter := 0; iter < kmeansMaxIterations; iter++ {
		objective := assignPass(data, norms, n, dim, centroids, k, workers, assignments, dists)
		counts := updateCentroids(data, n, dim, centroids, k, assignments)
		reseedEmptyCells(data, dim, centroids, counts, assignments, dists)

		if prevObjective < math.MaxFloat64 && objective > 0 {
			if (prevObjective-objective)/objective < kmeansConvergenceThreshold {
				break
			}
		}
		if objective == 0 {
			break
		}
		prevObjective = objective
	}
	return centroids, nil
}

// assignCells assigns every row to its nearest centroid. Used once after
// training to build the posting lists.
func assignCells(data []float32, norms []float32, n, dim int, centroids []float64, k, workers int) []uint32 {
	assignments := make([]uint32, n)
	dists := make([]float64, n)
	assignPass(data, norms, n, dim, centroids, k, workers, assignments, dists)
	return assignments
}

// initCentroids seeds centroids with k-means++ when k is small and with
// distinct random picks otherwise.
func initCentroids(data []float32, norms []float32, n, dim, k int, rng *rand.Rand) []float64 {
	centroids := make([]float64, k*dim)

	if k > kmeansPlusPlusMaxK {
		for c, i := range rng.Perm(n)[:k] {
			copyRow(centroids, c, data, i, dim)
		}
		return centroids
	}

	first := rng.Intn(n)
	copyRow(centroids, 0, data, first, dim)

	best := make([]float64, n)
	for i := range best {
		best[i] = math.MaxFloat64
	}
	dots := make([]float64, n)
	x := make([]float64, dim)

	for c := 1; c < k; c++ {
		prev := centroids[(c-1)*dim : c*dim]
		prevNorm := blas64.Dot(
			blas64.Vector{N: dim, Inc: 1, Data: prev},
			blas64.Vector{N: dim, Inc: 1, Data: prev},
		)

		// best[i] = min(best[i], ||x_i||^2 + ||c||^2 - 2 x_i.c)
		var total float64
		for i := 0; i < n; i++ {
			row := data[i*dim : (i+1)*dim]
			for d, v := range row {
				x[d] = float64(v)
			}
			dots[i] = blas64.Dot(
				blas64.Vector{N: dim, Inc: 1, Data: x},
				blas64.Vector{N: dim, Inc: 1, Data: prev},
			)
			dist := float64(norms[i]) + prevNorm - 2*dots[i]
			if dist < 0 {
				dist = 0
			}
			if dist < best[i] {
				best[i] = dist
			}
			total += best[i]
		}

		if total == 0 {
			copyRow(centroids, c, data, rng.Intn(n), dim)
			continue
		}

		target := rng.Float64() * total
		var cumulative float64
		selected := n - 1
		for i, d := range best {
			cumulative += d
			if cumulative >= target {
				selected = i
				break
			}
		}
		copyRow(centroids, c, data, selected, dim)
	}
	return centroids
}

// assignPass assigns each row to its nearest centroid, filling
// assignments and per-row squared distances, and returns the objective.
// Row blocks fan out across workers; each worker runs its own GEMM.
func assignPass(data []float32, norms []float32, n, dim int, centroids []float64, k, workers int, assignments []uint32, dists []float64) float64 {
	centroidNorms := make([]float64, k)
	for j := 0; j < k; j++ {
		c := centroids[j*dim : (j+1)*dim]
		centroidNorms[j] = blas64.Dot(
			blas64.Vector{N: dim, Inc: 1, Data: c},
			blas64.Vector{N: dim, Inc: 1, Data: c},
		)
	}

	numBlocks := (n + kmeansBlockRows - 1) / kmeansBlockRows
	objectives := make([]float64, numBlocks)

	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for b := 0; b < numBlocks; b++ {
		start := b * kmeansBlockRows
		end := min(start+kmeansBlockRows, n)

		wg.Add(1)
		sem <- struct{}{}
		go func(b, start, end int) {
			defer wg.Done()
			defer func() { <-sem }()

			rows := end - start
			x := make([]float64, rows*dim)
			for i := 0; i < rows; i++ {
				row := data[(start+i)*dim : (start+i+1)*dim]
				for d, v := range row {
					x[i*dim+d] = float64(v)
				}
			}

			// dots = X @ C^T, one GEMM per block
			dots := make([]float64, rows*k)
			blas64.Gemm(blas.NoTrans, blas.Trans,
				1.0,
				blas64.General{Rows: rows, Cols: dim, Stride: dim, Data: x},
				blas64.General{Rows: k, Cols: dim, Stride: dim, Data: centroids},
				0.0,
				blas64.General{Rows: rows, Cols: k, Stride: k, Data: dots},
			)

			var objective float64
			for i := 0; i < rows; i++ {
				xNorm := float64(norms[start+i])
				bestJ := 0
				bestDist := math.MaxFloat64
				for j := 0; j < k; j++ {
					dist := xNorm + centroidNorms[j] - 2*dots[i*k+j]
					if dist < bestDist {
						bestDist = dist
						bestJ = j
					}
				}
				if bestDist < 0 {
					bestDist = 0
				}
				assignments[start+i] = uint32(bestJ)
				dists[start+i] = bestDist
				objective += bestDist
			}
			objectives[b] = objective
		}(b, start, end)
	}
	wg.Wait()

	var total float64
	for _, o := range objectives {
		total += o
	}
	return total
}

// updateCentroids recomputes each centroid as the mean of its assigned
// rows. Returns per-cell counts; empty cells keep their old position
// until reseedEmptyCells moves them.
func updateCentroids(data []float32, n, dim int, centroids []float64, k int, assignments []uint32) []int {
	sums := make([]float64, k*dim)
	counts := make([]int, k)

	for i := 0; i < n; i++ {
		j := int(assignments[i])
		counts[j]++
		row := data[i*dim : (i+1)*dim]
		acc := sums[j*dim : (j+1)*dim]
		for d, v := range row {
			acc[d] += float64(v)
		}
	}

	for j := 0; j < k; j++ {
		if counts[j] == 0 {
			continue
		}
		inv := 1 / float64(counts[j])
		c := centroids[j*dim : (j+1)*dim]
		s := sums[j*dim : (j+1)*dim]
		for d := range c {
			c[d] = s[d] * inv
		}
	}
	return counts
}

// reseedEmptyCells moves each empty centroid onto one of the rows
// farthest from its current centroid, splitting the worst cells.
func reseedEmptyCells(data []float32, dim int, centroids []float64, counts []int, assignments []uint32, dists []float64) {
	var empty []int
	for j, c := range counts {
		if c == 0 {
			empty = append(empty, j)
		}
	}
	if len(empty) == 0 {
		return
	}

	order := make([]int, len(dists))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return dists[order[a]] > dists[order[b]] })

	for rank, j := range empty {
		if rank >= len(order) {
			break
		}
		i := order[rank]
		copyRow(centroids, j, data, i, dim)
		assignments[i] = uint32(j)
		dists[i] = 0
	}
}

func copyRow(dst []float64, dstRow int, src []float32, srcRow, dim int) {
	row := src[srcRow*dim : (srcRow+1)*dim]
	out := dst[dstRow*dim : (dstRow+1)*dim]
	for d, v := range row {
		out[d] = float64(v)
	}
}
