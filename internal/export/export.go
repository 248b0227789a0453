package export

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spacematrix/internal/classify"
	"github.com/sells-group/spacematrix/internal/db"
	"github.com/sells-group/spacematrix/internal/gpkg"
	"github.com/sells-group/spacematrix/internal/indicator"
	"github.com/sells-group/spacematrix/internal/model"
)

// Mirror names the optional PostGIS copy of the block table.
type Mirror struct {
	Pool   db.Pool
	Schema string
	Table  string
}

// Exporter writes the artifacts of one run.
type Exporter struct {
	paths      Paths
	lastChange time.Time
	mirror     *Mirror
	log        *zap.Logger
}

// New creates an Exporter. lastChange is stamped into the GeoPackage so
// identical inputs produce identical files; mirror may be nil.
func New(paths Paths, lastChange time.Time, mirror *Mirror) *Exporter {
	return &Exporter{
		paths:      paths,
		lastChange: lastChange,
		mirror:     mirror,
		log:        zap.L().With(zap.String("component", "export")),
	}
}

// Paths returns the artifact locations.
func (e *Exporter) Paths() Paths {
	return e.paths
}

// Blocks writes t as the result layer, its CSV mirror and, when configured,
// the PostGIS table. t.Name is replaced by the configured layer name.
func (e *Exporter) Blocks(ctx context.Context, t *model.Table) error {
	t.Name = e.paths.Layer
	if err := gpkg.WriteTable(ctx, e.paths.GPKG, t, gpkg.WriteOptions{
		LastChange:  e.lastChange,
		Description: "Space Matrix indicators per block",
	}); err != nil {
		return eris.Wrap(err, "export: write block layer")
	}
	if err := WriteCSV(e.paths.CSV, t); err != nil {
		return err
	}
	e.log.Info("block layer written",
		zap.String("gpkg", e.paths.GPKG),
		zap.String("layer", e.paths.Layer),
		zap.String("csv", e.paths.CSV),
		zap.Int("rows", len(t.Rows)),
		zap.Int("columns", len(t.Columns)),
	)

	if e.mirror == nil || e.mirror.Pool == nil {
		return nil
	}
	mirrored := *t
	if e.mirror.Table != "" {
		mirrored.Name = e.mirror.Table
	}
	n, err := db.ReplaceTable(ctx, e.mirror.Pool, e.mirror.Schema, &mirrored)
	if err != nil {
		return eris.Wrap(err, "export: mirror block table")
	}
	e.log.Info("block table mirrored",
		zap.String("schema", e.mirror.Schema),
		zap.String("table", mirrored.Name),
		zap.Int64("rows", n),
	)
	return nil
}

// QC writes the per-municipality data-quality table.
func (e *Exporter) QC(rows []indicator.QCRow) error {
	if err := WriteCSV(e.paths.QC, QCTable(rows)); err != nil {
		return err
	}
	e.log.Info("qc table written", zap.String("path", e.paths.QC), zap.Int("municipalities", len(rows)))
	return nil
}

// Typology writes the classification summary, the parameter audit and the
// explanatory note.
func (e *Exporter) Typology(tag string, c *classify.Classifier, s classify.Summary, params Params) error {
	if err := WriteCSV(e.paths.Summary, SummaryTable(s)); err != nil {
		return err
	}
	params.Params = c.Params()
	if err := WriteParams(e.paths.Params, params); err != nil {
		return err
	}
	if err := WriteNote(e.paths.Note, tag, c, s); err != nil {
		return err
	}
	e.log.Info("typology audit written",
		zap.String("summary", e.paths.Summary),
		zap.String("params", e.paths.Params),
		zap.String("note", e.paths.Note),
	)
	return nil
}
