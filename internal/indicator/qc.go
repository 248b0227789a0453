package indicator

import (
	"sort"

	"github.com/sells-group/spacematrix/internal/model"
)

// QCRow summarises data-quality flags for one municipality.
type QCRow struct {
	Municipality string
	Flag1        int
	Flag2        int
	Flag3        int
	Total        int
	PropsTotal   int
	FTotal       float64
	BTotal       float64
	Pct1         float64
	Pct2         float64
	Pct3         float64
}

// QC groups blocks by municipality and counts the three data-quality
// patterns. Rows are ordered by Flag1 descending, then municipality code.
func QC(blocks []*model.Block) []QCRow {
	byMun := make(map[string]*QCRow)
	for _, b := range blocks {
		r, ok := byMun[b.Municipality]
		if !ok {
			r = &QCRow{Municipality: b.Municipality}
			byMun[b.Municipality] = r
		}
		switch DQFlag(b.Cadastre.BuiltArea, b.Footprint.Area) {
		case DQNoBuiltArea:
			r.Flag1++
		case DQNoFootprint:
			r.Flag2++
		case DQNoData:
			r.Flag3++
		}
		r.Total++
		r.PropsTotal += b.Cadastre.PropertyCount
		r.FTotal += model.OrZero(b.Cadastre.BuiltArea)
		r.BTotal += model.OrZero(b.Footprint.Area)
	}

	rows := make([]QCRow, 0, len(byMun))
	for _, r := range byMun {
		r.Pct1 = pct(r.Flag1, r.Total)
		r.Pct2 = pct(r.Flag2, r.Total)
		r.Pct3 = pct(r.Flag3, r.Total)
		rows = append(rows, *r)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Flag1 != rows[j].Flag1 {
			return rows[i].Flag1 > rows[j].Flag1
		}
		return rows[i].Municipality < rows[j].Municipality
	})
	return rows
}

func pct(n, total int) float64 {
	return 100 * model.Div(float64(n), float64(total))
}
