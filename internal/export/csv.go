package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spacematrix/internal/model"
	"github.com/sells-group/spacematrix/internal/schema"
)

// WriteCSV writes the attribute columns of t to path. Geometry is omitted
// and missing numbers become empty cells.
func WriteCSV(path string, t *model.Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "export: create directory for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	header := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c.Name
	}
	if err := w.Write(header); err != nil {
		return eris.Wrapf(err, "export: write header %s", path)
	}
	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return eris.Errorf("export: row %d of %s has %d values, want %d", i, t.Name, len(row), len(t.Columns))
		}
		rec := make([]string, len(row))
		for j, v := range row {
			rec[j] = cell(v)
		}
		if err := w.Write(rec); err != nil {
			return eris.Wrapf(err, "export: write row %d of %s", i, path)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrapf(err, "export: flush %s", path)
	}
	return eris.Wrapf(f.Close(), "export: close %s", path)
}

// cell renders one value with the shortest exact float representation.
func cell(v any) string {
	switch x := v.(type) {
	case float64:
		if model.IsMissing(x) {
			return ""
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		if model.IsMissing(float64(x)) {
			return ""
		}
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case bool:
		if x {
			return "1"
		}
		return "0"
	default:
		return schema.String(v)
	}
}
