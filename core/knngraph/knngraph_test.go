package knngraph

import (
	"math"
	"testing"

	"github.com/adalundhe/pstcluster/core/vecindex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildIndex(t *testing.T, vectors [][]float32, metric vecindex.Metric) vecindex.Index {
	t.Helper()
	idx, err := vecindex.Build(vectors, vecindex.Config{Metric: metric, NumWorkers: 1})
	require.NoError(t, err)
	return idx
}

func TestBuild_L2GaussianKernel(t *testing.T) {
	vectors := [][]float32{
		{0, 0, 0, 0},
		{1, 0, 0, 0},
		{0, 2, 0, 0},
	}
	idx := buildIndex(t, vectors, vecindex.MetricL2)

	res, err := Build(idx, vectors, 2)
	require.NoError(t, err)
	require.Len(t, res.Sim, 3)
	require.Len(t, res.Idx, 3)
	assert.Equal(t, 2, res.K())

	scale := 1 / math.Sqrt(4)
	for i, row := range res.Sim {
		require.Len(t, row, 3, "row %d keeps the self slot", i)

		// Self-match first: similarity exp(0) = 1.
		assert.Equal(t, uint32(i), res.Idx[i][0])
		assert.InDelta(t, 1.0, row[0], 1e-6)

		for j, sim := range row {
			assert.Greater(t, sim, float32(0), "weights stay in (0, 1]")
			assert.LessOrEqual(t, sim, float32(1))
			if j > 0 {
				assert.LessOrEqual(t, sim, row[j-1], "similarity decreases with rank")
			}
		}
	}

	// Row 0's nearest non-self neighbor is vector 1 at distance 1.
	assert.Equal(t, uint32(1), res.Idx[0][1])
	assert.InDelta(t, math.Exp(-1*scale), float64(res.Sim[0][1]), 1e-6)
	// Then vector 2 at squared distance 4.
	assert.Equal(t, uint32(2), res.Idx[0][2])
	assert.InDelta(t, math.Exp(-4*scale), float64(res.Sim[0][2]), 1e-6)
}

func TestBuild_InnerProductPassthrough(t *testing.T) {
	vectors := [][]float32{
		{1, 0},
		{0.9, 0.1},
		{0, 1},
	}
	vecindex.Normalize(vectors)
	idx := buildIndex(t, vectors, vecindex.MetricInnerProduct)

	res, err := Build(idx, vectors, 2)
	require.NoError(t, err)

	for i := range vectors {
		assert.Equal(t, uint32(i), res.Idx[i][0], "self-match leads row %d", i)
		assert.InDelta(t, 1.0, res.Sim[i][0], 1e-5)
	}

	// Raw dot products, no kernel applied.
	want := float64(vectors[0][0]*vectors[1][0] + vectors[0][1]*vectors[1][1])
	assert.Equal(t, uint32(1), res.Idx[0][1])
	assert.InDelta(t, want, res.Sim[0][1], 1e-5)
}

func TestBuild_InvalidK(t *testing.T) {
	idx := buildIndex(t, [][]float32{{1, 0}, {0, 1}}, vecindex.MetricL2)
	_, err := Build(idx, [][]float32{{1, 0}}, 0)
	assert.ErrorIs(t, err, vecindex.ErrInvalidK)
}

func TestBuild_SearchErrorPropagates(t *testing.T) {
	idx := buildIndex(t, [][]float32{{1, 0}, {0, 1}}, vecindex.MetricL2)
	_, err := Build(idx, [][]float32{{1, 0, 0}}, 1)
	assert.ErrorIs(t, err, vecindex.ErrDimMismatch)
}
