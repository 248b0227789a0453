package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/spacematrix/internal/model"
)

// GeometryColumn is the name of the geometry column of mirrored tables.
const GeometryColumn = "geom"

// ReplaceTable drops and recreates schema.name from t and copies every row,
// inside one transaction. Geometries are sent as EWKB carrying t.SRID;
// missing numbers become NULL.
func ReplaceTable(ctx context.Context, pool Pool, schema string, t *model.Table) (int64, error) {
	if len(t.Columns) == 0 {
		return 0, eris.New("db: replace table: no columns specified")
	}
	qualified := t.Name
	if schema != "" {
		qualified = schema + "." + t.Name
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: replace table: begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stmts := []string{}
	if schema != "" {
		stmts = append(stmts, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{schema}.Sanitize())
	}
	stmts = append(stmts,
		"DROP TABLE IF EXISTS "+sanitizeTable(qualified),
		createTableSQL(qualified, t),
	)
	for _, sql := range stmts {
		if _, err := tx.Exec(ctx, sql); err != nil {
			return 0, eris.Wrapf(err, "db: replace table %s", qualified)
		}
	}

	columns := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		columns = append(columns, c.Name)
	}
	if t.HasGeometry() {
		columns = append(columns, GeometryColumn)
	}

	rows := make([][]any, len(t.Rows))
	for i, r := range t.Rows {
		row := make([]any, 0, len(columns))
		for _, v := range r {
			row = append(row, nullable(v))
		}
		if t.HasGeometry() {
			b, err := EWKB(t.Geoms[i], t.SRID)
			if err != nil {
				return 0, eris.Wrapf(err, "db: encode geometry of row %d", i)
			}
			row = append(row, b)
		}
		rows[i] = row
	}

	n, err := CopyFrom(ctx, tx, qualified, columns, rows)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: replace table: commit tx")
	}
	return n, nil
}

func createTableSQL(qualified string, t *model.Table) string {
	defs := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		defs = append(defs, pgx.Identifier{c.Name}.Sanitize()+" "+pgType(c.Type))
	}
	if t.HasGeometry() {
		defs = append(defs, fmt.Sprintf("%s geometry(Geometry, %d)", pgx.Identifier{GeometryColumn}.Sanitize(), t.SRID))
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", sanitizeTable(qualified), strings.Join(defs, ", "))
}

func pgType(t model.ColumnType) string {
	switch t {
	case model.ColumnReal:
		return "double precision"
	case model.ColumnInteger:
		return "bigint"
	default:
		return "text"
	}
}

func nullable(v any) any {
	if f, ok := v.(float64); ok && model.IsMissing(f) {
		return nil
	}
	return v
}

// EWKB encodes g as little-endian EWKB with srid. A nil geometry yields nil.
func EWKB(g geom.T, srid int) ([]byte, error) {
	if g == nil {
		return nil, nil
	}
	if g.SRID() != srid {
		var err error
		if g, err = geom.SetSRID(g, srid); err != nil {
			return nil, err
		}
	}
	return ewkb.Marshal(g, ewkb.NDR)
}

func identifier(table string) pgx.Identifier {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}
	}
	return pgx.Identifier{table}
}

// sanitizeTable handles schema-qualified table names like "public.blocks".
func sanitizeTable(table string) string {
	return identifier(table).Sanitize()
}
