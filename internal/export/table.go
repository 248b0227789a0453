// Package export turns enriched blocks into output tables and writes them
// as a GeoPackage layer, flat CSV mirrors, audit files and an optional
// PostGIS table.
package export

import (
	"strings"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/spacematrix/internal/aggregate"
	"github.com/sells-group/spacematrix/internal/indicator"
	"github.com/sells-group/spacematrix/internal/model"
)

// DefaultIDColumn names the block identifier column when the source layer
// has none.
const DefaultIDColumn = "manzana_id"

// BlockTableOptions selects the column groups of the block table.
type BlockTableOptions struct {
	Name     string
	SRID     int
	IDColumn string
	// SourceFields are the block layer columns carried through unchanged,
	// in order. Columns that collide with computed ones are dropped.
	SourceFields []string
	Indicators   bool
	Typology     bool
	// Streets lists the street value columns; nil omits street metrics.
	Streets []string
}

type computed struct {
	col   model.Column
	value func(b *model.Block) any
}

func realCol(name string, f func(b *model.Block) float64) computed {
	return computed{model.Column{Name: name, Type: model.ColumnReal}, func(b *model.Block) any { return f(b) }}
}

func intCol(name string, f func(b *model.Block) int) computed {
	return computed{model.Column{Name: name, Type: model.ColumnInteger}, func(b *model.Block) any { return int64(f(b)) }}
}

func textCol(name string, f func(b *model.Block) string) computed {
	return computed{model.Column{Name: name, Type: model.ColumnText}, func(b *model.Block) any { return f(b) }}
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

var indicatorColumns = []computed{
	realCol("A_m2", func(b *model.Block) float64 { return b.Area }),
	realCol("B_m2", func(b *model.Block) float64 { return b.Footprint.Area }),
	realCol("B_raw_m2", func(b *model.Block) float64 { return b.Footprint.RawArea }),
	realCol("sup_const_tot_m2", func(b *model.Block) float64 { return b.Cadastre.BuiltArea }),
	realCol("sup_terreno_tot_m2", func(b *model.Block) float64 { return b.Cadastre.LandArea }),
	intCol("n_props", func(b *model.Block) int { return b.Cadastre.PropertyCount }),
	realCol("n_predios", func(b *model.Block) float64 { return b.Parcels.Count }),
	realCol("area_predios_tot_m2", func(b *model.Block) float64 { return b.Parcels.AreaTotal }),
	realCol("area_predio_med_m2", func(b *model.Block) float64 { return b.Parcels.AreaMean }),
	realCol("FSI", func(b *model.Block) float64 { return b.Indices.FSI }),
	realCol("GSI", func(b *model.Block) float64 { return b.Indices.GSI }),
	realCol("L_equiv", func(b *model.Block) float64 { return b.Indices.L }),
	realCol("OSR", func(b *model.Block) float64 { return b.Indices.OSR }),
	intCol("dq_flag", func(b *model.Block) int { return b.Indices.DQFlag }),
	realCol("L_niveles", func(b *model.Block) float64 { return b.Cadastre.Levels }),
	realCol("L_diff_equiv_minus_niveles", indicator.LevelsDiff),
}

var typologyColumns = []computed{
	textCol("typology_code_base", func(b *model.Block) string { return b.Typology.BaseCode }),
	textCol("typology_name_base", func(b *model.Block) string { return b.Typology.BaseName }),
	intCol("flag_mixto_dq", func(b *model.Block) int { return boolInt(b.Typology.DataQuality) }),
	textCol("typology_code_final", func(b *model.Block) string { return b.Typology.Code }),
	textCol("typology_sm_final", func(b *model.Block) string { return b.Typology.Name }),
	intCol("flag_mixto_limite", func(b *model.Block) int { return boolInt(b.Typology.Boundary) }),
	textCol("diag_reason", func(b *model.Block) string { return b.Typology.Reason }),
}

func streetColumns(names []string) []computed {
	cols := []computed{realCol(aggregate.ColStreetLength, func(b *model.Block) float64 {
		if b.Streets == nil {
			return model.Missing
		}
		return b.Streets.Length
	})}
	for _, name := range names {
		cols = append(cols, realCol(name, func(b *model.Block) float64 {
			if b.Streets == nil {
				return model.Missing
			}
			if v, ok := b.Streets.Values[name]; ok {
				return v
			}
			return model.Missing
		}))
	}
	return cols
}

// BlockTable builds the output table of blocks: the source columns, the
// identifier when the source lacks one, then the selected computed groups.
func BlockTable(blocks []*model.Block, opts BlockTableOptions) *model.Table {
	idCol := opts.IDColumn
	if idCol == "" {
		idCol = DefaultIDColumn
	}

	var extra []computed
	if opts.Indicators {
		extra = append(extra, indicatorColumns...)
	}
	if opts.Typology {
		extra = append(extra, typologyColumns...)
	}
	if opts.Streets != nil {
		extra = append(extra, streetColumns(opts.Streets)...)
	}

	reserved := make(map[string]bool, len(extra))
	for _, c := range extra {
		reserved[strings.ToLower(c.col.Name)] = true
	}
	var source []string
	hasID := false
	for _, f := range opts.SourceFields {
		if reserved[strings.ToLower(f)] {
			continue
		}
		if f == idCol {
			hasID = true
		}
		source = append(source, f)
	}

	t := &model.Table{Name: opts.Name, SRID: opts.SRID}
	if !hasID {
		t.Columns = append(t.Columns, model.Column{Name: idCol, Type: model.ColumnText})
	}
	for _, f := range source {
		t.Columns = append(t.Columns, model.Column{Name: f, Type: inferType(blocks, f)})
	}
	for _, c := range extra {
		t.Columns = append(t.Columns, c.col)
	}

	t.Rows = make([][]any, len(blocks))
	t.Geoms = make([]geom.T, len(blocks))
	for i, b := range blocks {
		row := make([]any, 0, len(t.Columns))
		if !hasID {
			row = append(row, b.ID)
		}
		for _, f := range source {
			row = append(row, b.Source.Props[f])
		}
		for _, c := range extra {
			row = append(row, c.value(b))
		}
		t.Rows[i] = row
		t.Geoms[i] = b.Geom
	}
	return t
}

// inferType picks REAL or INTEGER when every non-null value of the column
// is of that kind, TEXT otherwise.
func inferType(blocks []*model.Block, field string) model.ColumnType {
	kind := model.ColumnType(-1)
	for _, b := range blocks {
		var k model.ColumnType
		switch b.Source.Props[field].(type) {
		case nil:
			continue
		case float64, float32:
			k = model.ColumnReal
		case int64, int, int32:
			k = model.ColumnInteger
		default:
			return model.ColumnText
		}
		switch {
		case kind < 0:
			kind = k
		case kind != k:
			kind = model.ColumnReal
		}
	}
	if kind < 0 {
		return model.ColumnText
	}
	return kind
}
