package gpkg

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spacematrix/internal/model"
	"github.com/sells-group/spacematrix/internal/reproject"
)

// WriteOptions controls how a table is written.
type WriteOptions struct {
	// LastChange is stored in gpkg_contents. Zero means the current time;
	// callers that need reproducible files pass a fixed instant.
	LastChange time.Time
	// Description is stored in gpkg_contents.
	Description string
}

// WriteTable writes t as a layer in the GeoPackage at path, creating the
// file when needed. An existing layer of the same name is replaced; other
// layers in the file are left untouched.
func WriteTable(ctx context.Context, path string, t *model.Table, opts WriteOptions) error {
	if t == nil || t.Name == "" {
		return eris.New("gpkg: table name is required")
	}
	if t.HasGeometry() && len(t.Geoms) != len(t.Rows) {
		return eris.Errorf("gpkg: table %s has %d rows but %d geometries", t.Name, len(t.Rows), len(t.Geoms))
	}

	f, err := create(ctx, path)
	if err != nil {
		return err
	}
	defer f.Close()

	if t.HasGeometry() {
		if err := f.ensureSRS(ctx, t.SRID); err != nil {
			return err
		}
	}

	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "gpkg: begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, stmt := range []string{
		"DELETE FROM gpkg_geometry_columns WHERE table_name = ?",
		"DELETE FROM gpkg_contents WHERE table_name = ?",
	} {
		if _, err := tx.ExecContext(ctx, stmt, t.Name); err != nil {
			return eris.Wrapf(err, "gpkg: unregister %s", t.Name)
		}
	}
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(t.Name)); err != nil {
		return eris.Wrapf(err, "gpkg: drop %s", t.Name)
	}
	if _, err := tx.ExecContext(ctx, createTableSQL(t)); err != nil {
		return eris.Wrapf(err, "gpkg: create %s", t.Name)
	}

	stmt, err := tx.PrepareContext(ctx, insertSQL(t))
	if err != nil {
		return eris.Wrapf(err, "gpkg: prepare insert %s", t.Name)
	}
	defer stmt.Close()

	var minX, minY, maxX, maxY = math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)
	geomType := ""
	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return eris.Errorf("gpkg: row %d of %s has %d values, want %d", i, t.Name, len(row), len(t.Columns))
		}
		args := make([]any, 0, len(row)+1)
		for _, v := range row {
			args = append(args, sqlValue(v))
		}
		if t.HasGeometry() {
			g := t.Geoms[i]
			blob, err := EncodeGeometry(g, t.SRID)
			if err != nil {
				return eris.Wrapf(err, "gpkg: encode row %d of %s", i, t.Name)
			}
			args = append(args, blob)
			if g != nil {
				if b := g.Bounds(); b != nil && !b.IsEmpty() {
					minX, minY = math.Min(minX, b.Min(0)), math.Min(minY, b.Min(1))
					maxX, maxY = math.Max(maxX, b.Max(0)), math.Max(maxY, b.Max(1))
				}
				geomType = mergeGeometryType(geomType, geometryTypeName(g))
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return eris.Wrapf(err, "gpkg: insert row %d of %s", i, t.Name)
		}
	}

	lastChange := opts.LastChange
	if lastChange.IsZero() {
		lastChange = time.Now()
	}
	stamp := lastChange.UTC().Format("2006-01-02T15:04:05.000Z")

	if t.HasGeometry() {
		var bbox []any
		if math.IsInf(minX, 1) {
			bbox = []any{nil, nil, nil, nil}
		} else {
			bbox = []any{minX, minY, maxX, maxY}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO gpkg_contents
				(table_name, data_type, identifier, description, last_change, min_x, min_y, max_x, max_y, srs_id)
			VALUES (?, 'features', ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.Name, t.Name, opts.Description, stamp, bbox[0], bbox[1], bbox[2], bbox[3], t.SRID); err != nil {
			return eris.Wrapf(err, "gpkg: register contents %s", t.Name)
		}
		if geomType == "" {
			geomType = "GEOMETRY"
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO gpkg_geometry_columns
				(table_name, column_name, geometry_type_name, srs_id, z, m)
			VALUES (?, 'geom', ?, ?, 0, 0)`, t.Name, geomType, t.SRID); err != nil {
			return eris.Wrapf(err, "gpkg: register geometry column %s", t.Name)
		}
	} else {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO gpkg_contents (table_name, data_type, identifier, description, last_change)
			VALUES (?, 'attributes', ?, ?, ?)`,
			t.Name, t.Name, opts.Description, stamp); err != nil {
			return eris.Wrapf(err, "gpkg: register contents %s", t.Name)
		}
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrapf(err, "gpkg: commit %s", t.Name)
	}

	zap.L().Debug("gpkg: wrote layer",
		zap.String("path", path),
		zap.String("layer", t.Name),
		zap.Int("rows", len(t.Rows)),
	)
	return nil
}

func createTableSQL(t *model.Table) string {
	defs := []string{`"fid" INTEGER PRIMARY KEY AUTOINCREMENT`}
	for _, c := range t.Columns {
		defs = append(defs, quoteIdent(c.Name)+" "+c.Type.SQLType())
	}
	if t.HasGeometry() {
		defs = append(defs, `"geom" BLOB`)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(t.Name), strings.Join(defs, ", "))
}

func insertSQL(t *model.Table) string {
	names := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		names = append(names, quoteIdent(c.Name))
	}
	if t.HasGeometry() {
		names = append(names, `"geom"`)
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoteIdent(t.Name), strings.Join(names, ", "), marks)
}

// sqlValue maps missing floats to NULL.
func sqlValue(v any) any {
	switch x := v.(type) {
	case float64:
		if model.IsMissing(x) {
			return nil
		}
	case float32:
		if model.IsMissing(float64(x)) {
			return nil
		}
	}
	return v
}

// mergeGeometryType widens the declared type when a layer mixes single and
// multi geometries.
func mergeGeometryType(current, next string) string {
	switch {
	case current == "" || current == next:
		return next
	case "MULTI"+current == next:
		return next
	case current == "MULTI"+next:
		return current
	default:
		return "GEOMETRY"
	}
}

// srsDefinition returns a display name and definition for an EPSG code.
func srsDefinition(srid int) (string, string) {
	name := fmt.Sprintf("EPSG:%d", srid)
	def, err := reproject.Proj4(srid)
	if err != nil {
		return name, "undefined"
	}
	return name, def
}
