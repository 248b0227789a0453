package export

import (
	"sort"

	"github.com/sells-group/spacematrix/internal/classify"
	"github.com/sells-group/spacematrix/internal/indicator"
	"github.com/sells-group/spacematrix/internal/model"
)

// QC flag column names, one per data-quality pattern.
const (
	QCFlag1 = "flag1_F<=0_B>0"
	QCFlag2 = "flag2_F>0_B<=0"
	QCFlag3 = "flag3_F<=0_B<=0"
)

// QCTable lays out the per-municipality data-quality counts.
func QCTable(rows []indicator.QCRow) *model.Table {
	t := &model.Table{
		Name: "qc_por_mun",
		Columns: []model.Column{
			{Name: "MUN", Type: model.ColumnText},
			{Name: QCFlag1, Type: model.ColumnInteger},
			{Name: QCFlag2, Type: model.ColumnInteger},
			{Name: QCFlag3, Type: model.ColumnInteger},
			{Name: "total", Type: model.ColumnInteger},
			{Name: "n_props_total", Type: model.ColumnInteger},
			{Name: "F_total", Type: model.ColumnReal},
			{Name: "B_total", Type: model.ColumnReal},
			{Name: "pct_" + QCFlag1, Type: model.ColumnReal},
			{Name: "pct_" + QCFlag2, Type: model.ColumnReal},
			{Name: "pct_" + QCFlag3, Type: model.ColumnReal},
		},
	}
	for _, r := range rows {
		t.Rows = append(t.Rows, []any{
			r.Municipality,
			int64(r.Flag1), int64(r.Flag2), int64(r.Flag3),
			int64(r.Total), int64(r.PropsTotal),
			r.FTotal, r.BTotal,
			r.Pct1, r.Pct2, r.Pct3,
		})
	}
	return t
}

// SummaryTable lays out the classification audit as (metric, value) rows:
// the headline counts first, then one row per final code.
func SummaryTable(s classify.Summary) *model.Table {
	t := &model.Table{
		Name: "typology_summary",
		Columns: []model.Column{
			{Name: "metric", Type: model.ColumnText},
			{Name: "value", Type: model.ColumnInteger},
		},
	}
	for _, m := range s.Metrics() {
		t.Rows = append(t.Rows, []any{m[0], int64(m[1].(int))})
	}
	codes := make([]string, 0, len(s.ByCode))
	for code := range s.ByCode {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		t.Rows = append(t.Rows, []any{"code_" + code + "_n", int64(s.ByCode[code])})
	}
	return t
}
