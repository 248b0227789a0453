package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/spacematrix/internal/db"
	"github.com/sells-group/spacematrix/internal/export"
	"github.com/sells-group/spacematrix/internal/model"
	"github.com/sells-group/spacematrix/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full block pipeline",
	Long: "Loads blocks, footprints, cadastral points and the optional parcel and street layers, " +
		"aggregates them per block, computes the Space Matrix indicators, classifies every block and exports the results.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return execute(cmd, (*pipeline.Pipeline).Run)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// execute builds the pipeline, runs one mode and prints its result.
func execute(cmd *cobra.Command, mode func(*pipeline.Pipeline, context.Context) (*model.RunResult, error)) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mirror, closeMirror, err := openMirror(ctx)
	if err != nil {
		return err
	}
	defer closeMirror()

	p, err := pipeline.New(cfg, mirror)
	if err != nil {
		return err
	}

	result, err := mode(p, ctx)
	if err != nil {
		return eris.Wrapf(err, "%s", cmd.Name())
	}

	zap.L().Info("run complete",
		zap.String("run_id", result.RunID),
		zap.String("mode", string(result.Mode)),
		zap.Int("blocks", result.Blocks),
		zap.Strings("outputs", result.Outputs),
	)
	return writeRunResult(os.Stdout, result)
}

// openMirror connects to PostGIS when a database URL is configured. The
// returned close function is always safe to call.
func openMirror(ctx context.Context) (*export.Mirror, func(), error) {
	if cfg.PostGIS.DatabaseURL == "" {
		return nil, func() {}, nil
	}
	pool, err := db.Connect(ctx, cfg.PostGIS.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return &export.Mirror{
		Pool:   pool,
		Schema: cfg.PostGIS.Schema,
		Table:  cfg.PostGIS.Table,
	}, pool.Close, nil
}

func writeRunResult(w io.Writer, result *model.RunResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
