// Package leiden implements Leiden community detection under the
// Constant Potts Model objective. CPM's resolution parameter has a
// graph-size-independent meaning, which matters here because the same
// routine runs on graphs ranging from tens of category nodes to
// millions of protein nodes.
package leiden

import (
	"math/rand"
	"sort"

	"github.com/adalundhe/pstcluster/core/sparse"
)

// Cluster partitions the graph and returns one community label per
// node, renumbered densely in order of first appearance. Higher
// resolution produces more, smaller communities. Deterministic for a
// fixed seed.
func Cluster(g *sparse.Graph, resolution float64, seed int64) []int {
	lv := levelFromSparse(g)
	rng := rand.New(rand.NewSource(seed))

	// membership maps original nodes to current-level super-nodes.
	membership := make([]int, g.N)
	for i := range membership {
		membership[i] = i
	}

	// Each level's local move starts from the partition induced by the
	// previous level's aggregation; the first starts from singletons.
	comm := identity(lv.n)

	for {
		moved := lv.localMove(comm, resolution, rng)
		if !moved || countDistinct(comm) == lv.n {
			break
		}

		subComm := lv.refine(comm, resolution, rng)
		next, subDense, induced := lv.aggregate(subComm, comm)

		for i := range membership {
			membership[i] = subDense[subComm[membership[i]]]
		}
		lv = next
		comm = induced
	}

	labels := make([]int, g.N)
	dense := make(map[int]int, lv.n)
	for i := range labels {
		c := comm[membership[i]]
		d, ok := dense[c]
		if !ok {
			d = len(dense)
			dense[c] = d
		}
		labels[i] = d
	}
	return labels
}

// level is one graph in the aggregation hierarchy. Self-loops inside
// super-nodes are constant under any partition of the level, so they
// are not stored.
type level struct {
	n        int
	rowPtr   []int64
	col      []uint32
	weight   []float64
	nodeSize []int // original node count per super-node
}

func levelFromSparse(g *sparse.Graph) *level {
	lv := &level{
		n:        g.N,
		rowPtr:   g.RowPtr,
		col:      g.Col,
		weight:   make([]float64, len(g.Weight)),
		nodeSize: make([]int, g.N),
	}
	for i, w := range g.Weight {
		lv.weight[i] = float64(w)
	}
	for i := range lv.nodeSize {
		lv.nodeSize[i] = 1
	}
	return lv
}

// localMove runs queue-based local moving: nodes are visited in random
// order and greedily moved to the neighboring community with the best
// CPM gain; neighbors of a moved node are re-queued. The CPM gain of
// moving node v into community c is w(v->c) - resolution*|v|*size(c).
// Mutates comm and reports whether any node moved. Community ids in
// comm must be < lv.n.
func (lv *level) localMove(comm []int, resolution float64, rng *rand.Rand) bool {
	commSize := make([]int, lv.n)
	for v, c := range comm {
		commSize[c] += lv.nodeSize[v]
	}

	// Ids that emptied out; reused when a node is best off alone.
	var empties []int
	for c := range commSize {
		if commSize[c] == 0 {
			empties = append(empties, c)
		}
	}

	queue := rng.Perm(lv.n)
	inQueue := make([]bool, lv.n)
	for _, v := range queue {
		inQueue[v] = true
	}

	// Scratch for w(v -> community), reset via the touched list.
	commW := make([]float64, lv.n)
	var touched []int

	moved := false
	for head := 0; head < len(queue); head++ {
		v := queue[head]
		inQueue[v] = false

		touched = touched[:0]
		start, end := lv.rowPtr[v], lv.rowPtr[v+1]
		for e := start; e < end; e++ {
			u := int(lv.col[e])
			c := comm[u]
			if commW[c] == 0 {
				touched = append(touched, c)
			}
			commW[c] += lv.weight[e]
		}

		old := comm[v]
		size := lv.nodeSize[v]
		commSize[old] -= size

		// Staying alone scores zero; candidates must beat both that
		// and the re-evaluated gain of the old community.
		best := old
		bestGain := commW[old] - resolution*float64(size)*float64(commSize[old])
		if bestGain < 0 {
			best, empties = popEmpty(empties, commSize, old)
			bestGain = 0
		}
		for _, c := range touched {
			if c == old {
				continue
			}
			gain := commW[c] - resolution*float64(size)*float64(commSize[c])
			if gain > bestGain {
				best = c
				bestGain = gain
			}
		}

		commSize[best] += size
		comm[v] = best

		for _, c := range touched {
			commW[c] = 0
		}

		if best == old {
			continue
		}
		moved = true
		if commSize[old] == 0 {
			empties = append(empties, old)
		}
		for e := start; e < end; e++ {
			u := int(lv.col[e])
			if comm[u] != best && !inQueue[u] {
				inQueue[u] = true
				queue = append(queue, u)
			}
		}
	}
	return moved
}

// popEmpty pops an empty community id, skipping entries that have been
// refilled since they were pushed. Falls back to old, which is empty
// whenever v was its last member.
func popEmpty(empties []int, commSize []int, old int) (int, []int) {
	for len(empties) > 0 {
		c := empties[len(empties)-1]
		empties = empties[:len(empties)-1]
		if commSize[c] == 0 {
			return c, empties
		}
	}
	return old, empties
}

// refine splits each community into well-connected subcommunities.
// Starting from singletons, a node may only merge with a subcommunity
// of its own community, and only if the node itself is well connected
// to the rest of its community. This is the step that keeps Leiden from
// producing the internally disconnected communities Louvain can emit.
func (lv *level) refine(comm []int, resolution float64, rng *rand.Rand) []int {
	subComm := identity(lv.n)
	subSize := make([]int, lv.n)
	copy(subSize, lv.nodeSize)

	commSize := make([]int, lv.n)
	for v, c := range comm {
		commSize[c] += lv.nodeSize[v]
	}

	subW := make([]float64, lv.n)
	var touched []int

	for _, v := range rng.Perm(lv.n) {
		// Only nodes still in their own singleton may move.
		if subSize[subComm[v]] != lv.nodeSize[v] {
			continue
		}

		c := comm[v]
		size := lv.nodeSize[v]

		touched = touched[:0]
		var external float64
		start, end := lv.rowPtr[v], lv.rowPtr[v+1]
		for e := start; e < end; e++ {
			u := int(lv.col[e])
			if comm[u] != c {
				continue
			}
			external += lv.weight[e]
			s := subComm[u]
			if subW[s] == 0 {
				touched = append(touched, s)
			}
			subW[s] += lv.weight[e]
		}

		// Well-connectedness of v within its community.
		if external < resolution*float64(size)*float64(commSize[c]-size) {
			for _, s := range touched {
				subW[s] = 0
			}
			continue
		}

		best := subComm[v]
		bestGain := 0.0
		for _, s := range touched {
			if s == subComm[v] {
				continue
			}
			gain := subW[s] - resolution*float64(size)*float64(subSize[s])
			if gain > bestGain {
				best = s
				bestGain = gain
			}
		}

		if best != subComm[v] {
			subSize[subComm[v]] -= size
			subSize[best] += size
			subComm[v] = best
		}
		for _, s := range touched {
			subW[s] = 0
		}
	}
	return subComm
}

// aggregate collapses each refined subcommunity into one super-node.
// Returns the next level, the dense renumbering of subcommunity ids,
// and the induced coarse partition over super-nodes (dense, so it is
// valid input for the next local move).
func (lv *level) aggregate(subComm, comm []int) (*level, []int, []int) {
	subDense := make([]int, lv.n)
	for i := range subDense {
		subDense[i] = -1
	}
	var numSuper int
	for v := 0; v < lv.n; v++ {
		if subDense[subComm[v]] == -1 {
			subDense[subComm[v]] = numSuper
			numSuper++
		}
	}

	next := &level{
		n:        numSuper,
		nodeSize: make([]int, numSuper),
	}

	// Coarse communities, renumbered densely over super-nodes. All
	// members of a subcommunity share one coarse community.
	induced := make([]int, numSuper)
	commDense := make(map[int]int, numSuper)
	for v := 0; v < lv.n; v++ {
		s := subDense[subComm[v]]
		next.nodeSize[s] += lv.nodeSize[v]
		d, ok := commDense[comm[v]]
		if !ok {
			d = len(commDense)
			commDense[comm[v]] = d
		}
		induced[s] = d
	}

	type edgeKey struct{ u, v uint32 }
	acc := make(map[edgeKey]float64)
	for v := 0; v < lv.n; v++ {
		sv := uint32(subDense[subComm[v]])
		for e := lv.rowPtr[v]; e < lv.rowPtr[v+1]; e++ {
			su := uint32(subDense[subComm[int(lv.col[e])]])
			if su == sv {
				continue // intra-super-node weight is partition-constant
			}
			acc[edgeKey{sv, su}] += lv.weight[e]
		}
	}

	keys := make([]edgeKey, 0, len(acc))
	for k := range acc {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool {
		if keys[a].u != keys[b].u {
			return keys[a].u < keys[b].u
		}
		return keys[a].v < keys[b].v
	})

	next.rowPtr = make([]int64, numSuper+1)
	next.col = make([]uint32, 0, len(keys))
	next.weight = make([]float64, 0, len(keys))
	for _, k := range keys {
		next.rowPtr[k.u+1]++
		next.col = append(next.col, k.v)
		next.weight = append(next.weight, acc[k])
	}
	for u := 0; u < numSuper; u++ {
		next.rowPtr[u+1] += next.rowPtr[u]
	}
	return next, subDense, induced
}

func identity(n int) []int {
	ids := make([]int, n)
	for i := range ids {
		ids[i] = i
	}
	return ids
}

func countDistinct(comm []int) int {
	seen := make(map[int]struct{}, len(comm))
	for _, c := range comm {
		seen[c] = struct{}{}
	}
	return len(seen)
}
