// Package sparse assembles directed k-nearest-neighbor lists into the
// undirected weighted graphs community detection runs on.
package sparse

import (
	"errors"
	"fmt"
	"sort"

	"github.com/adalundhe/pstcluster/core/knngraph"
)

var (
	// ErrSelfMatch means a neighbor row failed the self-match integrity
	// check: the first column of every row must be the row's own index.
	// Letting that slide would leak weight-1 self-loops past the
	// positivity filter and silently corrupt clustering weights.
	ErrSelfMatch = errors.New("sparse: self-match integrity violation")

	ErrRaggedResult = errors.New("sparse: empty or ragged knn result row")
)

// Edge is one directed input edge; FromEdges mirrors it.
type Edge struct {
	U, V   uint32
	Weight float32
}

// Graph is an undirected weighted graph in compressed sparse row form.
// Both directions of every edge are stored, so Col[RowPtr[u]:RowPtr[u+1]]
// enumerates all of u's neighbors directly. Invariants: no diagonal
// entries, Weight(u,v) == Weight(v,u), every weight > 0.
type Graph struct {
	N      int
	RowPtr []int64
	Col    []uint32
	Weight []float32
}

// FromKNN validates and assembles a raw KNN result into a graph:
//
//  1. Row i's first neighbor must be i itself (the guaranteed self
//     match); it is stripped. Any other appearance of i in row i is the
//     same integrity failure. Violation is fatal, not skippable.
//  2. Edges with weight <= 0 are dropped.
//  3. Every retained edge is mirrored, then exact (u,v) duplicates are
//     collapsed keeping the first-seen weight, so an edge discovered
//     from both endpoints is stored once per direction.
func FromKNN(res knngraph.Result) (*Graph, error) {
	n := len(res.Idx)
	if len(res.Sim) != n {
		return nil, fmt.Errorf("%w: %d idx rows vs %d sim rows", ErrRaggedResult, n, len(res.Sim))
	}

	edges := make([]Edge, 0, 2*n*maxRowLen(res))
	for i := 0; i < n; i++ {
		idx, sim := res.Idx[i], res.Sim[i]
		if len(idx) == 0 || len(idx) != len(sim) {
			return nil, fmt.Errorf("%w: row %d", ErrRaggedResult, i)
		}
		if idx[0] != uint32(i) {
			return nil, fmt.Errorf("%w: row %d starts with neighbor %d", ErrSelfMatch, i, idx[0])
		}
		for j := 1; j < len(idx); j++ {
			if idx[j] == uint32(i) {
				return nil, fmt.Errorf("%w: row %d repeats itself at rank %d", ErrSelfMatch, i, j)
			}
			if sim[j] <= 0 {
				continue
			}
			edges = append(edges, Edge{uint32(i), idx[j], sim[j]})
			edges = append(edges, Edge{idx[j], uint32(i), sim[j]})
		}
	}
	return assemble(n, edges), nil
}

// FromEdges mirrors, deduplicates, and assembles an explicit edge list.
// Self-edges and non-positive weights are rejected rather than skipped;
// callers own their edge lists, so either is a bug.
func FromEdges(n int, edges []Edge) (*Graph, error) {
	mirrored := make([]Edge, 0, 2*len(edges))
	for _, e := range edges {
		if e.U == e.V {
			return nil, fmt.Errorf("%w: explicit self-edge at %d", ErrSelfMatch, e.U)
		}
		if int(e.U) >= n || int(e.V) >= n {
			return nil, fmt.Errorf("sparse: edge (%d,%d) out of range for n=%d", e.U, e.V, n)
		}
		if e.Weight <= 0 {
			return nil, fmt.Errorf("sparse: non-positive weight %v on edge (%d,%d)", e.Weight, e.U, e.V)
		}
		mirrored = append(mirrored, e, Edge{e.V, e.U, e.Weight})
	}
	return assemble(n, mirrored), nil
}

// assemble sorts mirrored edges by (u, v), collapses duplicates keeping
// the first-seen weight, and packs the survivors into CSR.
func assemble(n int, edges []Edge) *Graph {
	sort.SliceStable(edges, func(a, b int) bool {
		if edges[a].U != edges[b].U {
			return edges[a].U < edges[b].U
		}
		return edges[a].V < edges[b].V
	})

	g := &Graph{
		N:      n,
		RowPtr: make([]int64, n+1),
		Col:    make([]uint32, 0, len(edges)),
		Weight: make([]float32, 0, len(edges)),
	}

	prevU, prevV := uint32(0), uint32(0)
	first := true
	for _, e := range edges {
		if !first && e.U == prevU && e.V == prevV {
			continue
		}
		first = false
		prevU, prevV = e.U, e.V
		g.RowPtr[e.U+1]++
		g.Col = append(g.Col, e.V)
		g.Weight = append(g.Weight, e.Weight)
	}
	for u := 0; u < n; u++ {
		g.RowPtr[u+1] += g.RowPtr[u]
	}
	return g
}

func maxRowLen(res knngraph.Result) int {
	m := 0
	for _, row := range res.Idx {
		if len(row) > m {
			m = len(row)
		}
	}
	return m
}

// NumEdges reports the undirected edge count.
func (g *Graph) NumEdges() int { return len(g.Col) / 2 }

// Neighbors returns u's adjacency as parallel column/weight slices.
// The slices alias the graph's storage and must not be mutated.
func (g *Graph) Neighbors(u int) ([]uint32, []float32) {
	start, end := g.RowPtr[u], g.RowPtr[u+1]
	return g.Col[start:end], g.Weight[start:end]
}

// Degree reports u's weighted degree.
func (g *Graph) Degree(u int) float64 {
	var sum float64
	_, weights := g.Neighbors(u)
	for _, w := range weights {
		sum += float64(w)
	}
	return sum
}

// TotalWeight reports the sum of undirected edge weights.
func (g *Graph) TotalWeight() float64 {
	var sum float64
	for _, w := range g.Weight {
		sum += float64(w)
	}
	return sum / 2
}

// WeightBetween reads the weight of edge (u, v), 0 when absent. Binary
// search over u's sorted columns.
func (g *Graph) WeightBetween(u, v int) float32 {
	cols, weights := g.Neighbors(u)
	lo, hi := 0, len(cols)
	for lo < hi {
		mid := (lo + hi) / 2
		if cols[mid] < uint32(v) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(cols) && cols[lo] == uint32(v) {
		return weights[lo]
	}
	return 0
}
