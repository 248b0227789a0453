package gpkg

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spacematrix/internal/model"
)

type columnInfo struct {
	name string
	typ  string
	pk   bool
}

// ReadLayer loads every feature of a layer. The primary key becomes the
// record FID; the registered geometry column is decoded into Geom; all other
// columns land in Props keyed by their source name.
func (f *File) ReadLayer(ctx context.Context, name string) (*model.Layer, error) {
	info, err := f.Resolve(ctx, name)
	if err != nil {
		return nil, err
	}

	cols, err := f.tableColumns(ctx, info.Name)
	if err != nil {
		return nil, err
	}

	layer := &model.Layer{Name: info.Name, SRID: info.SRID}
	selects := make([]string, 0, len(cols))
	pkIdx, geomIdx := -1, -1
	for i, c := range cols {
		selects = append(selects, quoteIdent(c.name))
		switch {
		case c.pk && pkIdx < 0 && strings.EqualFold(c.typ, "INTEGER"):
			pkIdx = i
		case info.GeomColumn != "" && strings.EqualFold(c.name, info.GeomColumn):
			geomIdx = i
		default:
			layer.Fields = append(layer.Fields, c.name)
		}
	}

	q := "SELECT " + strings.Join(selects, ", ") + " FROM " + quoteIdent(info.Name)
	if pkIdx >= 0 {
		q += " ORDER BY " + quoteIdent(cols[pkIdx].name)
	}
	rows, err := f.db.QueryContext(ctx, q)
	if err != nil {
		return nil, eris.Wrapf(err, "gpkg: query layer %s", info.Name)
	}
	defer rows.Close()

	var seq int64
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, eris.Wrapf(err, "gpkg: scan layer %s", info.Name)
		}

		rec := model.Record{FID: seq, Props: make(map[string]any, len(layer.Fields))}
		for i, c := range cols {
			switch i {
			case pkIdx:
				if id, ok := vals[i].(int64); ok {
					rec.FID = id
				}
			case geomIdx:
				blob, _ := vals[i].([]byte)
				g, _, err := DecodeGeometry(blob)
				if err != nil {
					return nil, eris.Wrapf(err, "gpkg: layer %s feature %d", info.Name, rec.FID)
				}
				rec.Geom = g
			default:
				rec.Props[c.name] = normalizeValue(vals[i])
			}
		}
		layer.Records = append(layer.Records, rec)
		seq++
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "gpkg: iterate layer %s", info.Name)
	}
	return layer, nil
}

func (f *File) tableColumns(ctx context.Context, table string) ([]columnInfo, error) {
	rows, err := f.db.QueryContext(ctx, "PRAGMA table_info("+quoteIdent(table)+")")
	if err != nil {
		return nil, eris.Wrapf(err, "gpkg: table info %s", table)
	}
	defer rows.Close()

	var cols []columnInfo
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    any
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, eris.Wrapf(err, "gpkg: scan table info %s", table)
		}
		cols = append(cols, columnInfo{name: name, typ: typ, pk: pk > 0})
	}
	return cols, eris.Wrapf(rows.Err(), "gpkg: iterate table info %s", table)
}

// normalizeValue turns driver byte slices into strings so attribute values
// compare and print predictably.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
