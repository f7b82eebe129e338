package cmd

import (
	"log/slog"

	"github.com/adalundhe/pstcluster/core/annotations"
	"github.com/spf13/cobra"
)

var backgroundDBPath string

var backgroundCmd = &cobra.Command{
	Use:   "background",
	Short: "Recompute the background co-occurrence table",
	Long: `Background tallies global category frequencies from the annotation
table and stores, for every unordered pair of distinct categories, the
product of their counts: the expected co-occurrence under the null
hypothesis that category assignment is independent of clustering.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := annotations.Open(backgroundDBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		background, err := store.BuildBackground(cmd.Context())
		if err != nil {
			return err
		}
		slog.Default().Info("background rebuilt", "pairs", len(background))
		return nil
	},
}

func init() {
	backgroundCmd.Flags().StringVar(&backgroundDBPath, "annotations", "", "sqlite annotations database")
	backgroundCmd.MarkFlagRequired("annotations")
	rootCmd.AddCommand(backgroundCmd)
}
