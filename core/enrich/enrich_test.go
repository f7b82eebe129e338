package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPair_Canonical(t *testing.T) {
	assert.Equal(t, NewPair("b", "a"), NewPair("a", "b"))
	assert.Equal(t, "a", NewPair("b", "a").A)
}

func TestBackground_SmallTable(t *testing.T) {
	// Categories A (count 2) and B (count 3): exactly one pair with
	// expected co-occurrence 6.
	bg := Background(map[string]int64{"A": 2, "B": 3})
	require.Len(t, bg, 1)
	assert.Equal(t, 6.0, bg[NewPair("A", "B")])
}

func TestBackground_ExcludesUnknown(t *testing.T) {
	bg := Background(map[string]int64{"A": 2, "B": 3, Unknown: 100, "": 50})
	require.Len(t, bg, 1)
	_, ok := bg[NewPair("A", Unknown)]
	assert.False(t, ok)
}

func TestObserved_PairwiseProducts(t *testing.T) {
	// One cluster with 2xA, 1xB: contributes A-B = 2*1. A second
	// cluster with 1xA, 3xB: contributes A-B = 1*3. Total 5.
	categories := []string{"A", "A", "B", "A", "B", "B", "B"}
	protein := []int64{0, 0, 0, 9, 9, 9, 9}
	genome := []int64{0, 0, 0, 0, 0, 0, 0}

	obs, err := Observed(categories, protein, genome)
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, 5.0, obs[NewPair("A", "B")])
}

func TestObserved_SkipsNonQualifyingClusters(t *testing.T) {
	categories := []string{
		"A",      // cluster 0: single member
		"B", "B", // cluster 1: one distinct category
		"C", Unknown, // cluster 2: one known category after filtering
		"D", "E", // cluster 3: qualifies
	}
	protein := []int64{0, 1, 1, 2, 2, 3, 3}
	genome := []int64{0, 0, 0, 0, 0, 0, 0}

	obs, err := Observed(categories, protein, genome)
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, 1.0, obs[NewPair("D", "E")])
}

func TestObserved_ClustersSplitByGenomeLevel(t *testing.T) {
	// Same protein label in different genome clusters is two clusters.
	categories := []string{"A", "B", "A", "B"}
	protein := []int64{0, 0, 0, 0}
	genome := []int64{0, 0, 1, 1}

	obs, err := Observed(categories, protein, genome)
	require.NoError(t, err)
	assert.Equal(t, 2.0, obs[NewPair("A", "B")], "1*1 from each genome cluster")
}

func TestObserved_LengthMismatch(t *testing.T) {
	_, err := Observed([]string{"A"}, []int64{0, 1}, []int64{0})
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestRatios(t *testing.T) {
	obs := map[Pair]float64{
		NewPair("A", "B"): 8,
		NewPair("A", "C"): 2,
	}
	bg := map[Pair]float64{
		NewPair("A", "B"): 5,
		NewPair("A", "C"): 5,
		NewPair("B", "C"): 5,
	}

	ratios, err := Ratios(obs, bg)
	require.NoError(t, err)

	// Proportions: obs 0.8/0.2, bg 1/3 each.
	assert.InDelta(t, 0.8/(1.0/3), ratios[NewPair("A", "B")], 1e-9)
	assert.InDelta(t, 0.2/(1.0/3), ratios[NewPair("A", "C")], 1e-9)

	// Symmetry is structural: pairs are unordered keys.
	assert.Equal(t, ratios[NewPair("A", "B")], ratios[NewPair("B", "A")])
}

func TestRatios_Errors(t *testing.T) {
	_, err := Ratios(map[Pair]float64{NewPair("A", "B"): 1}, nil)
	assert.ErrorIs(t, err, ErrEmptyBackground)

	_, err = Ratios(
		map[Pair]float64{NewPair("A", "B"): 1},
		map[Pair]float64{NewPair("A", "C"): 1},
	)
	assert.ErrorIs(t, err, ErrMissingBackground)
}

func TestRatios_NoObservations(t *testing.T) {
	ratios, err := Ratios(nil, map[Pair]float64{NewPair("A", "B"): 1})
	require.NoError(t, err)
	assert.Empty(t, ratios)
}

func TestModules_EnrichedPairsShareModule(t *testing.T) {
	// Two strongly enriched pairs (A,B) and (C,D), weak everything
	// else: expect {A,B} and {C,D} modules.
	ratios := map[Pair]float64{
		NewPair("A", "B"): 10,
		NewPair("C", "D"): 10,
		NewPair("A", "C"): 0.1,
		NewPair("B", "D"): 0.1,
	}

	categories, modules, err := Modules(ratios, 1)
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B", "C", "D"}, categories)
	require.Len(t, modules, 4)

	byName := make(map[string]int, 4)
	for i, c := range categories {
		byName[c] = modules[i]
	}
	assert.Equal(t, byName["A"], byName["B"])
	assert.Equal(t, byName["C"], byName["D"])
	assert.NotEqual(t, byName["A"], byName["C"])
}
