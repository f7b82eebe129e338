package vecindex

import (
	"errors"
	"fmt"
	"runtime"
)

// Metric selects how closeness between vectors is scored.
type Metric int

const (
	// MetricInnerProduct scores by dot product; callers are expected to
	// L2-normalize their vectors first (see Normalize). Higher is closer.
	MetricInnerProduct Metric = iota

	// MetricL2 scores by squared Euclidean distance. Lower is closer.
	MetricL2
)

func (m Metric) String() string {
	switch m {
	case MetricInnerProduct:
		return "inner_product"
	case MetricL2:
		return "l2"
	default:
		return "unknown"
	}
}

// closer reports whether score a beats score b under this metric.
func (m Metric) closer(a, b float32) bool {
	if m == MetricInnerProduct {
		return a > b
	}
	return a < b
}

var (
	ErrEmptySet    = errors.New("vecindex: empty vector set")
	ErrDimMismatch = errors.New("vecindex: dimension mismatch")
	ErrInvalidK    = errors.New("vecindex: k must be positive")
)

// vectorsPerCell controls index topology selection: one inverted-file
// cell is allocated per this many indexed vectors. Sets yielding a
// single cell use an exact flat index instead.
const vectorsPerCell = 39

// Config configures index construction. The worker count is an explicit
// parameter so tests can force deterministic single-threaded execution.
type Config struct {
	Metric     Metric
	NumWorkers int // 0 = GOMAXPROCS
	Seed       int64
}

func (c Config) workers() int {
	if c.NumWorkers <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return c.NumWorkers
}

// Hit is a single search result: the indexed vector's position and its
// score under the index metric.
type Hit struct {
	ID    uint32
	Score float32
}

// Index is a read-only nearest-neighbor search structure over a fixed
// embedding set. Search is safe for concurrent use.
type Index interface {
	// Search returns, for each query, up to k hits ordered best-first.
	Search(queries [][]float32, k int) ([][]Hit, error)

	// Metric reports the scoring metric the index was built with.
	Metric() Metric

	// Dim reports the indexed vector dimension.
	Dim() int

	// Count reports the number of indexed vectors.
	Count() int
}

// NumCells returns the inverted-file cell count used for a set of the
// given size: count/39 with a floor of one cell.
func NumCells(count int) int {
	n := count / vectorsPerCell
	if n < 1 {
		return 1
	}
	return n
}

// hitHeap keeps the worst hit at the root so it can be evicted when a
// better candidate arrives. Ties prefer the smaller ID.
type hitHeap struct {
	hits   []Hit
	metric Metric
}

func (h *hitHeap) Len() int { return len(h.hits) }

func (h *hitHeap) Less(i, j int) bool {
	a, b := h.hits[i], h.hits[j]
	if a.Score != b.Score {
		return h.metric.closer(b.Score, a.Score)
	}
	return a.ID > b.ID
}

func (h *hitHeap) Swap(i, j int) { h.hits[i], h.hits[j] = h.hits[j], h.hits[i] }
func (h *hitHeap) Push(x any)    { h.hits = append(h.hits, x.(Hit)) }
func (h *hitHeap) Pop() any {
	old := h.hits
	x := old[len(old)-1]
	h.hits = old[:len(old)-1]
	return x
}

// squaredNorm computes ||v||^2 without allocating.
func squaredNorm(v []float32) float32 {
	var sum float32
	for _, x := range v {
		sum += x * x
	}
	return sum
}

// checkMatrix validates that all rows share the dimension of the first.
func checkMatrix(vectors [][]float32) (int, error) {
	if len(vectors) == 0 {
		return 0, ErrEmptySet
	}
	dim := len(vectors[0])
	if dim == 0 {
		return 0, fmt.Errorf("%w: zero-dimension vectors", ErrEmptySet)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return 0, fmt.Errorf("%w: row %d has dim %d, want %d", ErrDimMismatch, i, len(v), dim)
		}
	}
	return dim, nil
}
