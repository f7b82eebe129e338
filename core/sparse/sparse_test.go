package sparse

import (
	"testing"

	"github.com/adalundhe/pstcluster/core/knngraph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func knn(idx [][]uint32, sim [][]float32) knngraph.Result {
	return knngraph.Result{Idx: idx, Sim: sim}
}

func TestFromKNN_StripsSelfAndAssembles(t *testing.T) {
	// 3 entities, k=2: each row leads with itself.
	res := knn(
		[][]uint32{
			{0, 1, 2},
			{1, 0, 2},
			{2, 1, 0},
		},
		[][]float32{
			{1, 0.9, 0.5},
			{1, 0.9, 0.4},
			{2, 0.4, 0.5},
		},
	)

	g, err := FromKNN(res)
	require.NoError(t, err)
	assert.Equal(t, 3, g.N)
	assert.Equal(t, 3, g.NumEdges())

	// No diagonal entries survive.
	for u := 0; u < g.N; u++ {
		cols, _ := g.Neighbors(u)
		for _, v := range cols {
			assert.NotEqual(t, uint32(u), v, "self-loop at %d", u)
		}
	}

	// First-seen weight wins: (0,1) was discovered from row 0 first.
	assert.Equal(t, float32(0.9), g.WeightBetween(0, 1))
	assert.Equal(t, float32(0.5), g.WeightBetween(0, 2))
	assert.Equal(t, float32(0.4), g.WeightBetween(1, 2))
}

func TestFromKNN_Symmetry(t *testing.T) {
	res := knn(
		[][]uint32{
			{0, 3, 1},
			{1, 2, 0},
			{2, 1, 3},
			{3, 0, 2},
		},
		[][]float32{
			{1, 0.8, 0.6},
			{1, 0.7, 0.6},
			{1, 0.7, 0.3},
			{1, 0.8, 0.3},
		},
	)
	g, err := FromKNN(res)
	require.NoError(t, err)

	for u := 0; u < g.N; u++ {
		cols, weights := g.Neighbors(u)
		for i, v := range cols {
			assert.Equal(t, weights[i], g.WeightBetween(int(v), u),
				"weight(%d,%d) != weight(%d,%d)", u, v, v, u)
		}
	}
}

func TestFromKNN_PositivityFilter(t *testing.T) {
	res := knn(
		[][]uint32{
			{0, 1, 2},
			{1, 0, 2},
			{2, 0, 1},
		},
		[][]float32{
			{1, 0.5, 0},  // zero weight dropped
			{1, 0.5, -1}, // negative weight dropped
			{1, 0, -0.5},
		},
	)
	g, err := FromKNN(res)
	require.NoError(t, err)

	assert.Equal(t, 1, g.NumEdges())
	for _, w := range g.Weight {
		assert.Greater(t, w, float32(0))
	}
	assert.Equal(t, float32(0.5), g.WeightBetween(0, 1))
}

func TestFromKNN_Idempotence(t *testing.T) {
	res := knn(
		[][]uint32{
			{0, 2, 1},
			{1, 0, 2},
			{2, 0, 1},
		},
		[][]float32{
			{1, 0.9, 0.2},
			{1, 0.2, 0.7},
			{1, 0.9, 0.7},
		},
	)
	a, err := FromKNN(res)
	require.NoError(t, err)
	b, err := FromKNN(res)
	require.NoError(t, err)

	assert.Equal(t, a.RowPtr, b.RowPtr)
	assert.Equal(t, a.Col, b.Col)
	assert.Equal(t, a.Weight, b.Weight)
}

func TestFromKNN_SelfMatchViolations(t *testing.T) {
	// First column is not the row index.
	_, err := FromKNN(knn(
		[][]uint32{{1, 0}},
		[][]float32{{1, 0.5}},
	))
	assert.ErrorIs(t, err, ErrSelfMatch)

	// Row repeats itself past column 0.
	_, err = FromKNN(knn(
		[][]uint32{{0, 1, 0}, {1, 0, 0}},
		[][]float32{{1, 0.5, 0.9}, {1, 0.5, 0.2}},
	))
	assert.ErrorIs(t, err, ErrSelfMatch)
}

func TestFromKNN_RaggedRows(t *testing.T) {
	_, err := FromKNN(knn(
		[][]uint32{{0, 1}, {}},
		[][]float32{{1, 0.5}, {}},
	))
	assert.ErrorIs(t, err, ErrRaggedResult)

	_, err = FromKNN(knn(
		[][]uint32{{0, 1}},
		[][]float32{{1}},
	))
	assert.ErrorIs(t, err, ErrRaggedResult)
}

func TestFromEdges(t *testing.T) {
	g, err := FromEdges(4, []Edge{
		{0, 1, 2.0},
		{1, 2, 1.0},
		{1, 2, 5.0}, // duplicate, first-seen wins
		{2, 3, 0.5},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, g.NumEdges())
	assert.Equal(t, float32(2.0), g.WeightBetween(1, 0))
	assert.Equal(t, float32(1.0), g.WeightBetween(1, 2))
	assert.Equal(t, float32(0.5), g.WeightBetween(3, 2))
	assert.InDelta(t, 3.5, g.TotalWeight(), 1e-6)
	assert.InDelta(t, 3.0, g.Degree(1), 1e-6)
}

func TestFromEdges_Rejections(t *testing.T) {
	_, err := FromEdges(2, []Edge{{0, 0, 1}})
	assert.ErrorIs(t, err, ErrSelfMatch)

	_, err = FromEdges(2, []Edge{{0, 5, 1}})
	assert.Error(t, err)

	_, err = FromEdges(2, []Edge{{0, 1, 0}})
	assert.Error(t, err)
}
