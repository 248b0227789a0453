package main

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/spacematrix/internal/fetcher"
	"github.com/sells-group/spacematrix/internal/loader"
)

var layersMember string

var layersCmd = &cobra.Command{
	Use:   "layers <file-or-url>",
	Short: "List the layers of an input file",
	Long:  "Prints name, feature count, SRID and data type of every layer in a GeoPackage, or the single layer of a shapefile, GeoJSON or tabular file. URLs and ZIP archives are staged first.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st := fetcher.NewStager(fetcher.Options{
			CacheDir:    cfg.Fetch.CacheDir,
			Timeout:     cfg.Fetch.Timeout,
			RatePerHost: cfg.Fetch.RatePerHost,
			UserAgent:   cfg.Fetch.UserAgent,
		})
		path, err := st.Stage(ctx, args[0], layersMember)
		if err != nil {
			return err
		}
		layers, err := loader.ListLayers(ctx, path)
		if err != nil {
			return err
		}
		return printLayers(cmd.OutOrStdout(), layers)
	},
}

func init() {
	layersCmd.Flags().StringVar(&layersMember, "member", "", "file to open inside a ZIP archive")
	rootCmd.AddCommand(layersCmd)
}

func printLayers(w io.Writer, layers []loader.LayerSummary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LAYER\tFEATURES\tSRID\tTYPE")
	for _, l := range layers {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", l.Name, l.Features, l.SRID, l.DataType)
	}
	return tw.Flush()
}
