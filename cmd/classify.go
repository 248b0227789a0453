package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/spacematrix/internal/pipeline"
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify a block layer that already carries FSI and GSI",
	Long: "Reads paths.blocks, which must hold FSI and GSI columns (L and n_props are optional), " +
		"assigns a Space Matrix typology to every block and writes the result layer with the typology summary, parameters and note.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return execute(cmd, (*pipeline.Pipeline).Classify)
	},
}

var segmentsCmd = &cobra.Command{
	Use:   "segments",
	Short: "Aggregate street segment metrics per block",
	Long: "Reads paths.blocks and paths.segments and writes per-block street length, " +
		"length-weighted means and percentiles of the configured segment metrics.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return execute(cmd, (*pipeline.Pipeline).Segments)
	},
}

func init() {
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(segmentsCmd)
}
