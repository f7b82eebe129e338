package hierarchy

import "sort"

// Arena is the bidirectional mapping between a genome group's pooled
// protein subset ("local" indices, dense from 0) and global protein
// indices. It replaces inline pointer arithmetic in the per-group
// clustering loop so boundary translation can be tested on its own.
type Arena struct {
	global []int64 // local index -> global index, ascending
}

// NewArena pools the protein ranges of the given genomes. Genome order
// does not matter; locals are always assigned in ascending global
// order.
func NewArena(ptr PointerArray, genomes []int) *Arena {
	sorted := make([]int, len(genomes))
	copy(sorted, genomes)
	sort.Ints(sorted)

	var total int64
	for _, g := range sorted {
		total += ptr.GroupSize(g)
	}

	a := &Arena{global: make([]int64, 0, total)}
	for _, g := range sorted {
		start, end := ptr.Range(g)
		for p := start; p < end; p++ {
			a.global = append(a.global, p)
		}
	}
	return a
}

// Len reports the pooled protein count.
func (a *Arena) Len() int { return len(a.global) }

// Global translates a local index to its global protein index.
func (a *Arena) Global(local int) int64 { return a.global[local] }

// Local translates a global protein index back to its local index;
// ok is false when the protein is not in this arena.
func (a *Arena) Local(global int64) (int, bool) {
	i := sort.Search(len(a.global), func(i int) bool { return a.global[i] >= global })
	if i < len(a.global) && a.global[i] == global {
		return i, true
	}
	return 0, false
}

// Base reports the smallest global index of the pool.
func (a *Arena) Base() int64 {
	if len(a.global) == 0 {
		return 0
	}
	return a.global[0]
}
