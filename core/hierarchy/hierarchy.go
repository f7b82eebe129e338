// Package hierarchy runs the two-level genome-then-protein clustering.
// Genomes are clustered first; proteins are only eligible to cluster
// together when their source genomes landed in the same genome cluster,
// so each genome cluster's pooled proteins are clustered independently.
package hierarchy

import (
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"

	"github.com/adalundhe/pstcluster/core/knngraph"
	"github.com/adalundhe/pstcluster/core/leiden"
	"github.com/adalundhe/pstcluster/core/sparse"
	"github.com/adalundhe/pstcluster/core/vecindex"
)

// Config carries the knobs shared by both clustering levels.
type Config struct {
	// K is the neighbor count per entity in the similarity graph.
	K int

	// Normalized declares that similarity is inner product; embeddings
	// are L2-normalized in place before indexing. When false the index
	// uses squared Euclidean distance and the KNN stage maps it through
	// a Gaussian kernel.
	Normalized bool

	// Workers bounds both index parallelism and the per-genome-cluster
	// fan-out. 1 gives fully deterministic sequential group order;
	// 0 means GOMAXPROCS.
	Workers int

	Seed   int64
	Logger *slog.Logger
}

func (c Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func (c Config) workers() int {
	if c.Workers <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return c.Workers
}

// ClusterGenomes clusters genome embeddings and returns one dense label
// per genome. These labels are the top level of the hierarchy.
func ClusterGenomes(embeddings [][]float32, resolution float64, cfg Config) ([]int, error) {
	labels, err := clusterEmbeddings(embeddings, resolution, cfg.Seed, cfg)
	if err != nil {
		return nil, fmt.Errorf("cluster genomes: %w", err)
	}
	return labels, nil
}

// ClusterProteins clusters proteins within each genome cluster and
// returns two parallel arrays of length total-protein-count: the
// protein cluster label and the genome cluster label broadcast to every
// protein of the genome.
//
// Label namespace: a protein cluster's label is the smallest global
// protein index among its members. Clusters are disjoint protein sets,
// so labels can never collide across independent sub-clusterings, and a
// genome cluster with fewer than 2 genomes degenerates to exactly the
// singleton policy: every pooled protein keeps its own global index.
func ClusterProteins(embeddings [][]float32, ptr PointerArray, genomeLabels []int, resolution float64, cfg Config) (proteinOut, genomeOut []int64, err error) {
	total := int64(len(embeddings))
	if err := ptr.Validate(total); err != nil {
		return nil, nil, err
	}
	if len(genomeLabels) != ptr.NumGroups() {
		return nil, nil, fmt.Errorf("hierarchy: %d genome labels for %d genomes",
			len(genomeLabels), ptr.NumGroups())
	}

	proteinOut = make([]int64, total)
	genomeOut = make([]int64, total)
	for g, label := range genomeLabels {
		start, end := ptr.Range(g)
		for p := start; p < end; p++ {
			genomeOut[p] = int64(label)
		}
	}

	groups := groupByLabel(genomeLabels)
	log := cfg.logger()

	var singletons int
	for _, grp := range groups {
		if len(grp.genomes) < 2 {
			singletons++
		}
	}
	log.Info("clustering protein level",
		"genome_clusters", len(groups),
		"singleton_clusters", singletons,
		"proteins", total,
		"workers", cfg.workers(),
	)

	sem := make(chan struct{}, cfg.workers())
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, grp := range groups {
		mu.Lock()
		failed := firstErr != nil
		mu.Unlock()
		if failed {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(grp group) {
			defer wg.Done()
			defer func() { <-sem }()

			// Each group writes only its own pooled protein positions,
			// so output ranges never overlap across goroutines.
			if err := clusterGroup(grp, embeddings, ptr, resolution, cfg, proteinOut); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("genome cluster %d: %w", grp.label, err)
				}
				mu.Unlock()
			}
		}(grp)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, nil, firstErr
	}
	return proteinOut, genomeOut, nil
}

type group struct {
	label   int
	genomes []int
}

// groupByLabel buckets genome indices by cluster label, ordered by
// label so the sequential (Workers=1) schedule is deterministic.
func groupByLabel(genomeLabels []int) []group {
	byLabel := make(map[int][]int)
	for g, label := range genomeLabels {
		byLabel[label] = append(byLabel[label], g)
	}

	labels := make([]int, 0, len(byLabel))
	for label := range byLabel {
		labels = append(labels, label)
	}
	sort.Ints(labels)

	groups := make([]group, 0, len(labels))
	for _, label := range labels {
		groups = append(groups, group{label: label, genomes: byLabel[label]})
	}
	return groups
}

func clusterGroup(grp group, embeddings [][]float32, ptr PointerArray, resolution float64, cfg Config, out []int64) error {
	arena := NewArena(ptr, grp.genomes)

	// A single-genome cluster is degenerate for this analysis: nothing
	// to contextualize against, so every protein keeps its own index.
	if len(grp.genomes) < 2 || arena.Len() < 2 {
		for local := 0; local < arena.Len(); local++ {
			g := arena.Global(local)
			out[g] = g
		}
		return nil
	}

	pooled := make([][]float32, arena.Len())
	for local := range pooled {
		// Copy so in-place normalization cannot touch another group's
		// view of the shared embedding matrix.
		src := embeddings[arena.Global(local)]
		v := make([]float32, len(src))
		copy(v, src)
		pooled[local] = v
	}

	seed := cfg.Seed ^ int64(grp.label+1)
	localLabels, err := clusterEmbeddings(pooled, resolution, seed, cfg)
	if err != nil {
		return err
	}

	// Label = smallest global index in the cluster. Locals ascend in
	// global order, so the first local seen per label is the smallest.
	labelBase := make(map[int]int64, len(localLabels))
	for local, l := range localLabels {
		g := arena.Global(local)
		if _, ok := labelBase[l]; !ok {
			labelBase[l] = g
		}
		out[g] = labelBase[l]
	}
	return nil
}

// clusterEmbeddings is the shared pipeline: index, KNN, sparse
// assembly, Leiden.
func clusterEmbeddings(vectors [][]float32, resolution float64, seed int64, cfg Config) ([]int, error) {
	if cfg.K <= 0 {
		return nil, fmt.Errorf("hierarchy: k must be positive, have %d", cfg.K)
	}

	metric := vecindex.MetricL2
	if cfg.Normalized {
		vecindex.Normalize(vectors)
		metric = vecindex.MetricInnerProduct
	}

	index, err := vecindex.Build(vectors, vecindex.Config{
		Metric:     metric,
		NumWorkers: cfg.Workers,
		Seed:       seed,
	})
	if err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}

	k := cfg.K
	if limit := len(vectors) - 1; k > limit {
		k = limit
	}
	res, err := knngraph.Build(index, vectors, k)
	if err != nil {
		return nil, fmt.Errorf("knn graph: %w", err)
	}

	g, err := sparse.FromKNN(res)
	if err != nil {
		return nil, fmt.Errorf("assemble graph: %w", err)
	}

	return leiden.Cluster(g, resolution, seed), nil
}
