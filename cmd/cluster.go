package cmd

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/adalundhe/pstcluster/core/config"
	"github.com/adalundhe/pstcluster/core/dataset"
	"github.com/adalundhe/pstcluster/core/hierarchy"
	"github.com/spf13/cobra"
)

var clusterConfigPath string

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Cluster genomes, then proteins within each genome cluster",
	Long: `Cluster reads genome and protein embedding matrices plus the
genome-to-protein pointer array, clusters genomes first, then clusters
each genome cluster's pooled proteins independently. The output is a
TSV with one row per protein: index, protein cluster, genome cluster.`,
	RunE: runCluster,
}

func init() {
	clusterCmd.Flags().StringVar(&clusterConfigPath, "config", "", "yaml run configuration")
	rootCmd.AddCommand(clusterCmd)
}

func runCluster(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(clusterConfigPath)
	if err != nil {
		return err
	}
	for name, path := range map[string]string{
		"paths.genome_embeddings":  cfg.Paths.GenomeEmbeddings,
		"paths.protein_embeddings": cfg.Paths.ProteinEmbeddings,
		"paths.pointer":            cfg.Paths.Pointer,
		"paths.output":             cfg.Paths.Output,
	} {
		if path == "" {
			return fmt.Errorf("config: %s is required for cluster", name)
		}
	}

	log := slog.Default()
	start := time.Now()

	genomes, err := dataset.ReadMatrix(cfg.Paths.GenomeEmbeddings)
	if err != nil {
		return err
	}
	proteins, err := dataset.ReadMatrix(cfg.Paths.ProteinEmbeddings)
	if err != nil {
		return err
	}
	rawPtr, err := dataset.ReadPointer(cfg.Paths.Pointer)
	if err != nil {
		return err
	}
	ptr := hierarchy.PointerArray(rawPtr)

	log.Info("loaded inputs",
		"genomes", len(genomes),
		"proteins", len(proteins),
		"dim", len(proteins[0]),
	)

	hcfg := hierarchy.Config{
		K:          cfg.Cluster.K,
		Normalized: cfg.Cluster.Normalized,
		Workers:    cfg.Cluster.Workers,
		Seed:       cfg.Cluster.Seed,
		Logger:     log,
	}

	genomeLabels, err := hierarchy.ClusterGenomes(genomes, cfg.Cluster.GenomeResolution, hcfg)
	if err != nil {
		return err
	}

	proteinLabels, genomeOut, err := hierarchy.ClusterProteins(
		proteins, ptr, genomeLabels, cfg.Cluster.ProteinResolution, hcfg)
	if err != nil {
		return err
	}

	if err := writeLabels(cfg.Paths.Output, proteinLabels, genomeOut); err != nil {
		return err
	}

	log.Info("clustering complete",
		"output", cfg.Paths.Output,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

// writeLabels writes the two parallel label columns as TSV.
func writeLabels(path string, proteinLabels, genomeLabels []int64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := fmt.Fprintln(w, "protein\tprotein_cluster\tgenome_cluster"); err != nil {
		return err
	}
	for i := range proteinLabels {
		if _, err := fmt.Fprintf(w, "%d\t%d\t%d\n", i, proteinLabels[i], genomeLabels[i]); err != nil {
			return fmt.Errorf("write output row %d: %w", i, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return f.Sync()
}

// readLabels reads a TSV written by writeLabels.
func readLabels(path string) (proteinLabels, genomeLabels []int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open labels: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		if line == 1 {
			continue // header
		}
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) != 3 {
			return nil, nil, fmt.Errorf("labels line %d: %d columns, want 3", line, len(fields))
		}
		p, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("labels line %d: %w", line, err)
		}
		g, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("labels line %d: %w", line, err)
		}
		proteinLabels = append(proteinLabels, p)
		genomeLabels = append(genomeLabels, g)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("read labels: %w", err)
	}
	return proteinLabels, genomeLabels, nil
}
