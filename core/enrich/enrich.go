// Package enrich tests whether functional categories co-occur within
// protein clusters more often than global category frequencies predict,
// then clusters the resulting enrichment-ratio graph into functional
// modules.
package enrich

import (
	"errors"
	"fmt"
	"sort"

	"github.com/adalundhe/pstcluster/core/leiden"
	"github.com/adalundhe/pstcluster/core/sparse"
)

// Unknown is the sentinel for proteins without a functional assignment.
// Unknown rows are excluded from every count; they are data, not errors.
const Unknown = "unknown"

// moduleResolution is fixed: the category graph has tens of nodes, not
// millions, so the granularity trade-off the protein and genome
// resolutions exist for does not apply here.
const moduleResolution = 1.0

var (
	ErrLengthMismatch    = errors.New("enrich: categories and labels differ in length")
	ErrMissingBackground = errors.New("enrich: observed category pair missing from background")
	ErrEmptyBackground   = errors.New("enrich: background table is empty")
)

// Pair is an unordered category pair, stored with A < B.
type Pair struct {
	A, B string
}

// NewPair orders the two categories canonically.
func NewPair(u, v string) Pair {
	if u > v {
		u, v = v, u
	}
	return Pair{A: u, B: v}
}

func isUnknown(category string) bool {
	return category == "" || category == Unknown
}

// Observed accumulates within-cluster co-occurrence over all qualifying
// clusters. A cluster qualifies when it has 2+ members and 2+ distinct
// known categories; for each unordered pair (u, v) it contributes
// count(u) * count(v), weighting clusters by how many same-category
// members they hold rather than tallying mere co-appearance.
func Observed(categories []string, proteinLabels, genomeLabels []int64) (map[Pair]float64, error) {
	n := len(categories)
	if len(proteinLabels) != n || len(genomeLabels) != n {
		return nil, fmt.Errorf("%w: %d categories, %d protein labels, %d genome labels",
			ErrLengthMismatch, n, len(proteinLabels), len(genomeLabels))
	}

	type clusterKey struct{ genome, protein int64 }
	sizes := make(map[clusterKey]int)
	counts := make(map[clusterKey]map[string]int64)

	for i := 0; i < n; i++ {
		key := clusterKey{genomeLabels[i], proteinLabels[i]}
		sizes[key]++
		if isUnknown(categories[i]) {
			continue
		}
		m := counts[key]
		if m == nil {
			m = make(map[string]int64)
			counts[key] = m
		}
		m[categories[i]]++
	}

	observed := make(map[Pair]float64)
	for key, byCat := range counts {
		if sizes[key] < 2 || len(byCat) < 2 {
			continue
		}
		cats := make([]string, 0, len(byCat))
		for c := range byCat {
			cats = append(cats, c)
		}
		sort.Strings(cats)

		for i := 0; i < len(cats); i++ {
			for j := i + 1; j < len(cats); j++ {
				p := NewPair(cats[i], cats[j])
				observed[p] += float64(byCat[cats[i]] * byCat[cats[j]])
			}
		}
	}
	return observed, nil
}

// Background computes the null expectation from global category counts:
// for every unordered pair of distinct known categories, the product of
// their global occurrence counts, as if category assignment were
// independent of clustering.
func Background(categoryCounts map[string]int64) map[Pair]float64 {
	cats := make([]string, 0, len(categoryCounts))
	for c := range categoryCounts {
		if isUnknown(c) {
			continue
		}
		cats = append(cats, c)
	}
	sort.Strings(cats)

	background := make(map[Pair]float64, len(cats)*(len(cats)-1)/2)
	for i := 0; i < len(cats); i++ {
		for j := i + 1; j < len(cats); j++ {
			background[NewPair(cats[i], cats[j])] =
				float64(categoryCounts[cats[i]] * categoryCounts[cats[j]])
		}
	}
	return background
}

// Ratios normalizes observed and background counts to proportions of
// their own totals and returns observed/expected per pair. A ratio
// above 1 means the pair co-occurs within clusters more than chance
// predicts. Observed pairs absent from the background are a data error:
// the background is built from global frequencies, so any observed
// category must appear in it.
func Ratios(observed, background map[Pair]float64) (map[Pair]float64, error) {
	if len(background) == 0 {
		return nil, ErrEmptyBackground
	}

	var obsTotal, bgTotal float64
	for _, v := range observed {
		obsTotal += v
	}
	for _, v := range background {
		bgTotal += v
	}
	if obsTotal == 0 {
		return map[Pair]float64{}, nil
	}

	ratios := make(map[Pair]float64, len(observed))
	for p, obs := range observed {
		bg, ok := background[p]
		if !ok || bg == 0 {
			return nil, fmt.Errorf("%w: (%s, %s)", ErrMissingBackground, p.A, p.B)
		}
		ratios[p] = (obs / obsTotal) / (bg / bgTotal)
	}
	return ratios, nil
}

// Modules clusters the enrichment-ratio graph and returns the category
// names with their functional module assignment, parallel arrays sorted
// by category name.
func Modules(ratios map[Pair]float64, seed int64) (categories []string, modules []int, err error) {
	seen := make(map[string]int)
	for p := range ratios {
		if _, ok := seen[p.A]; !ok {
			seen[p.A] = 0
			categories = append(categories, p.A)
		}
		if _, ok := seen[p.B]; !ok {
			seen[p.B] = 0
			categories = append(categories, p.B)
		}
	}
	sort.Strings(categories)
	for i, c := range categories {
		seen[c] = i
	}

	edges := make([]sparse.Edge, 0, len(ratios))
	for p, r := range ratios {
		if r <= 0 {
			continue
		}
		edges = append(edges, sparse.Edge{
			U:      uint32(seen[p.A]),
			V:      uint32(seen[p.B]),
			Weight: float32(r),
		})
	}

	g, err := sparse.FromEdges(len(categories), edges)
	if err != nil {
		return nil, nil, fmt.Errorf("enrichment graph: %w", err)
	}
	return categories, leiden.Cluster(g, moduleResolution, seed), nil
}
