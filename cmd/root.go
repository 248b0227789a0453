package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/spacematrix/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "spacematrix",
	Short: "Space Matrix indicators and typologies for city blocks",
	Long: "Attributes building footprints, cadastral points, parcels and street segments to city blocks (manzanas), " +
		"computes FSI, GSI, L and OSR, classifies each block into a Space Matrix typology and writes a GeoPackage with CSV and audit files.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := applyFlags(cmd, c); err != nil {
			return err
		}
		if err := c.Validate(); err != nil {
			return err
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("out-tag", "", "suffix of every output artifact (paths.out_tag)")
	pf.String("output-dir", "", "directory for output artifacts (paths.output_dir)")
	pf.String("output-gpkg", "", "write the result layer into this GeoPackage (paths.output_gpkg)")
	pf.String("geometry-policy", "", "lite or robust (attribution.geometry_policy)")
	pf.String("log-level", "", "log level (log.level)")
}

// applyFlags overrides configuration values with explicitly set flags.
func applyFlags(cmd *cobra.Command, c *config.Config) error {
	flags := cmd.Flags()
	overrides := []struct {
		name   string
		target *string
	}{
		{"out-tag", &c.Paths.OutTag},
		{"output-dir", &c.Paths.OutputDir},
		{"output-gpkg", &c.Paths.OutputGPKG},
		{"geometry-policy", &c.Attribution.GeometryPolicy},
		{"log-level", &c.Log.Level},
	}
	for _, o := range overrides {
		if flags.Lookup(o.name) == nil || !flags.Changed(o.name) {
			continue
		}
		v, err := flags.GetString(o.name)
		if err != nil {
			return fmt.Errorf("flag --%s: %w", o.name, err)
		}
		*o.target = v
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
