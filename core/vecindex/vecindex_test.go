package vecindex

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func TestNumCells(t *testing.T) {
	cases := []struct {
		count int
		want  int
	}{
		{1, 1},
		{10, 1},
		{38, 1},
		{39, 1},
		{40, 1},
		{77, 1},
		{78, 2},
		{80, 2},
		{390, 10},
	}
	for _, c := range cases {
		if got := NumCells(c.count); got != c.want {
			t.Errorf("NumCells(%d): got %d, want %d", c.count, got, c.want)
		}
	}
}

func TestBuild_EmptySet(t *testing.T) {
	if _, err := Build(nil, Config{}); !errors.Is(err, ErrEmptySet) {
		t.Fatalf("expected ErrEmptySet, got %v", err)
	}
	if _, err := Build([][]float32{}, Config{}); !errors.Is(err, ErrEmptySet) {
		t.Fatalf("expected ErrEmptySet, got %v", err)
	}
}

func TestBuild_DimMismatch(t *testing.T) {
	vectors := [][]float32{{1, 2}, {3, 4, 5}}
	if _, err := Build(vectors, Config{}); !errors.Is(err, ErrDimMismatch) {
		t.Fatalf("expected ErrDimMismatch, got %v", err)
	}
}

func TestBuild_TopologySelection(t *testing.T) {
	small := randomVectors(10, 4, 1)
	idx, err := Build(small, Config{NumWorkers: 1})
	if err != nil {
		t.Fatalf("build small: %v", err)
	}
	if _, ok := idx.(*Flat); !ok {
		t.Errorf("10 vectors: got %T, want *Flat", idx)
	}

	large := randomVectors(80, 4, 2)
	idx, err = Build(large, Config{NumWorkers: 1})
	if err != nil {
		t.Fatalf("build large: %v", err)
	}
	if _, ok := idx.(*IVF); !ok {
		t.Errorf("80 vectors: got %T, want *IVF", idx)
	}
	if ivf := idx.(*IVF); ivf.nCells != 2 {
		t.Errorf("80 vectors: got %d cells, want 2", ivf.nCells)
	}
}

func TestFlat_SearchL2(t *testing.T) {
	vectors := [][]float32{
		{0, 0},
		{1, 0},
		{0, 1},
		{10, 10},
	}
	idx, err := Build(vectors, Config{Metric: MetricL2, NumWorkers: 1})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	hits, err := idx.Search(vectors, 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != len(vectors) {
		t.Fatalf("got %d result rows, want %d", len(hits), len(vectors))
	}

	// Every vector is its own nearest neighbor at distance 0.
	for i, row := range hits {
		if row[0].ID != uint32(i) {
			t.Errorf("row %d: first hit %d, want self", i, row[0].ID)
		}
		if row[0].Score != 0 {
			t.Errorf("row %d: self distance %v, want 0", i, row[0].Score)
		}
		for j := 1; j < len(row); j++ {
			if row[j].Score < row[j-1].Score {
				t.Errorf("row %d: hits not sorted by distance: %v", i, row)
			}
		}
	}

	// Query at the origin: nearest is 0, then 1 or 2 (tie broken by id).
	origin, err := idx.Search([][]float32{{0, 0}}, 3)
	if err != nil {
		t.Fatalf("origin search: %v", err)
	}
	got := []uint32{origin[0][0].ID, origin[0][1].ID, origin[0][2].ID}
	want := []uint32{0, 1, 2}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("origin neighbors: got %v, want %v", got, want)
		}
	}
}

func TestFlat_SearchInnerProduct(t *testing.T) {
	vectors := [][]float32{
		{1, 0},
		{0, 1},
		{0.8, 0.6},
	}
	Normalize(vectors)
	idx, err := Build(vectors, Config{Metric: MetricInnerProduct, NumWorkers: 1})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	hits, err := idx.Search(vectors, 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for i, row := range hits {
		if row[0].ID != uint32(i) {
			t.Errorf("row %d: first hit %d, want self", i, row[0].ID)
		}
		if math.Abs(float64(row[0].Score)-1) > 1e-5 {
			t.Errorf("row %d: self similarity %v, want 1", i, row[0].Score)
		}
	}
}

func TestFlat_QueryDimMismatch(t *testing.T) {
	idx, err := Build(randomVectors(5, 4, 3), Config{NumWorkers: 1})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, err := idx.Search([][]float32{{1, 2}}, 1); !errors.Is(err, ErrDimMismatch) {
		t.Fatalf("expected ErrDimMismatch, got %v", err)
	}
}

func TestFlat_InvalidK(t *testing.T) {
	idx, err := Build(randomVectors(5, 4, 3), Config{NumWorkers: 1})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, err := idx.Search([][]float32{{1, 2, 3, 4}}, 0); !errors.Is(err, ErrInvalidK) {
		t.Fatalf("expected ErrInvalidK, got %v", err)
	}
}

func TestIVF_SelfRetrieval(t *testing.T) {
	vectors := blobVectors(t, 120, 8, 3, 42)
	idx, err := Build(vectors, Config{Metric: MetricL2, NumWorkers: 1, Seed: 42})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	ivf, ok := idx.(*IVF)
	if !ok {
		t.Fatalf("got %T, want *IVF", idx)
	}
	if ivf.nCells != 3 {
		t.Fatalf("got %d cells, want 3", ivf.nCells)
	}

	hits, err := idx.Search(vectors, 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for i, row := range hits {
		if len(row) == 0 {
			t.Fatalf("row %d: no hits", i)
		}
		if row[0].ID != uint32(i) {
			t.Errorf("row %d: first hit %d, want self", i, row[0].ID)
		}
	}
}

func TestIVF_NeighborsShareBlob(t *testing.T) {
	const perBlob = 40
	vectors := blobVectors(t, 3*perBlob, 8, 3, 7)
	idx, err := Build(vectors, Config{Metric: MetricL2, NumWorkers: 1, Seed: 7})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	hits, err := idx.Search(vectors, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for i, row := range hits {
		blob := i / perBlob
		for _, h := range row {
			if int(h.ID)/perBlob != blob {
				t.Errorf("vector %d (blob %d): neighbor %d from blob %d", i, blob, h.ID, int(h.ID)/perBlob)
			}
		}
	}
}

func TestNormalize(t *testing.T) {
	vectors := [][]float32{{3, 4}, {0, 0}, {1, 1, 1, 1}}
	Normalize(vectors)

	if n := math.Sqrt(float64(squaredNorm(vectors[0]))); math.Abs(n-1) > 1e-6 {
		t.Errorf("norm after Normalize: %v, want 1", n)
	}
	if vectors[1][0] != 0 || vectors[1][1] != 0 {
		t.Errorf("zero vector modified: %v", vectors[1])
	}
	if n := math.Sqrt(float64(squaredNorm(vectors[2]))); math.Abs(n-1) > 1e-6 {
		t.Errorf("norm after Normalize: %v, want 1", n)
	}
}

func TestTrainCentroids_TwoBlobs(t *testing.T) {
	vectors := blobVectors(t, 80, 4, 2, 11)
	flat, norms := storeContiguous(vectors, 4, 1)

	centroids, err := trainCentroids(flat, norms, 80, 4, 2, 11, 1)
	if err != nil {
		t.Fatalf("train: %v", err)
	}

	// Blob centers sit at 0 and 100 on every axis; each centroid must
	// land near one of them, and they must not collapse onto the same.
	near := func(c []float64, target float64) bool {
		for _, v := range c {
			if math.Abs(v-target) > 5 {
				return false
			}
		}
		return true
	}
	a, b := centroids[:4], centroids[4:]
	ok := (near(a, 0) && near(b, 100)) || (near(a, 100) && near(b, 0))
	if !ok {
		t.Errorf("centroids did not separate blobs: %v", centroids)
	}
}

func TestTrainCentroids_BadK(t *testing.T) {
	flat, norms := storeContiguous(randomVectors(4, 2, 1), 2, 1)
	if _, err := trainCentroids(flat, norms, 4, 2, 0, 1, 1); err == nil {
		t.Fatal("expected error for k=0")
	}
	if _, err := trainCentroids(flat, norms, 4, 2, 5, 1, 1); err == nil {
		t.Fatal("expected error for k>n")
	}
}

func randomVectors(n, dim int, seed int64) [][]float32 {
	rng := rand.New(rand.NewSource(seed))
	vectors := make([][]float32, n)
	for i := range vectors {
		v := make([]float32, dim)
		for d := range v {
			v[d] = rng.Float32()
		}
		vectors[i] = v
	}
	return vectors
}

// blobVectors generates n vectors in numBlobs tight clusters spaced 100
// apart on every axis: vectors [0, n/numBlobs) belong to blob 0, etc.
func blobVectors(t *testing.T, n, dim, numBlobs int, seed int64) [][]float32 {
	t.Helper()
	if n%numBlobs != 0 {
		t.Fatalf("n=%d not divisible by numBlobs=%d", n, numBlobs)
	}
	rng := rand.New(rand.NewSource(seed))
	perBlob := n / numBlobs

	vectors := make([][]float32, n)
	for i := range vectors {
		center := float32(100 * (i / perBlob))
		v := make([]float32, dim)
		for d := range v {
			v[d] = center + rng.Float32()
		}
		vectors[i] = v
	}
	return vectors
}
