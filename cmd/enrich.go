package cmd

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"

	"github.com/adalundhe/pstcluster/core/annotations"
	"github.com/adalundhe/pstcluster/core/enrich"
	"github.com/spf13/cobra"
)

var (
	enrichLabelsPath string
	enrichDBPath     string
	enrichOutPath    string
	enrichSeed       int64
	enrichRebuildBG  bool
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Test functional co-occurrence enrichment across clusters",
	Long: `Enrich joins cluster labels with the functional annotation table,
compares observed within-cluster category co-occurrence against the
precomputed background, clusters the enrichment-ratio graph, and writes
one functional-module assignment per category.

Annotation rows must be in protein index order, matching the labels
file produced by cluster.`,
	RunE: runEnrich,
}

func init() {
	enrichCmd.Flags().StringVar(&enrichLabelsPath, "labels", "", "cluster label TSV from the cluster command")
	enrichCmd.Flags().StringVar(&enrichDBPath, "annotations", "", "sqlite annotations database")
	enrichCmd.Flags().StringVar(&enrichOutPath, "out", "", "output TSV (category, module)")
	enrichCmd.Flags().Int64Var(&enrichSeed, "seed", 1, "clustering seed")
	enrichCmd.Flags().BoolVar(&enrichRebuildBG, "rebuild-background", false, "recompute the background table from annotations before testing")
	enrichCmd.MarkFlagRequired("labels")
	enrichCmd.MarkFlagRequired("annotations")
	enrichCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(enrichCmd)
}

func runEnrich(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := slog.Default()

	proteinLabels, genomeLabels, err := readLabels(enrichLabelsPath)
	if err != nil {
		return err
	}

	store, err := annotations.Open(enrichDBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	_, categories, err := store.LoadAnnotations(ctx)
	if err != nil {
		return err
	}
	if len(categories) != len(proteinLabels) {
		return fmt.Errorf("enrich: %d annotations for %d labeled proteins",
			len(categories), len(proteinLabels))
	}

	var background map[enrich.Pair]float64
	if enrichRebuildBG {
		background, err = store.BuildBackground(ctx)
	} else {
		background, err = store.LoadBackground(ctx)
	}
	if err != nil {
		return err
	}

	observed, err := enrich.Observed(categories, proteinLabels, genomeLabels)
	if err != nil {
		return err
	}
	ratios, err := enrich.Ratios(observed, background)
	if err != nil {
		return err
	}
	names, modules, err := enrich.Modules(ratios, enrichSeed)
	if err != nil {
		return err
	}

	log.Info("enrichment complete",
		"observed_pairs", len(observed),
		"categories", len(names),
	)

	return writeModules(enrichOutPath, names, modules)
}

func writeModules(path string, categories []string, modules []int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := fmt.Fprintln(w, "category\tmodule"); err != nil {
		return err
	}
	for i, c := range categories {
		if _, err := fmt.Fprintf(w, "%s\t%d\n", c, modules[i]); err != nil {
			return fmt.Errorf("write module row %d: %w", i, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return f.Sync()
}
