package tabular

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/spacematrix/internal/model"
)

// Column names recognised as coordinates when none are configured.
var (
	xCandidates = []string{"x", "coord_x", "x_coord", "lon", "long", "longitud", "longitude", "lng"}
	yCandidates = []string{"y", "coord_y", "y_coord", "lat", "latitud", "latitude"}
)

// PointOptions configures how a table becomes a point layer.
type PointOptions struct {
	XColumn string
	YColumn string
	SRID    int
	Sheet   string // XLSX only
}

// ReadPoints loads a CSV or XLSX file as a point layer. Rows whose
// coordinates do not parse keep a nil geometry. Cells that parse as numbers
// become float64; empty cells become nil.
func ReadPoints(ctx context.Context, path string, opts PointOptions) (*model.Layer, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		rows, err = ReadXLSX(path, XLSXOptions{SheetName: opts.Sheet})
	case ".csv", ".txt":
		f, openErr := os.Open(path)
		if openErr != nil {
			return nil, eris.Wrapf(openErr, "tabular: open %s", path)
		}
		defer f.Close()
		rows, err = ReadCSV(ctx, f, CSVOptions{LazyQuotes: true})
	default:
		return nil, eris.Errorf("tabular: unsupported file type %s", path)
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, eris.Errorf("tabular: %s has no header row", path)
	}

	header := rows[0]
	xi := findColumn(header, opts.XColumn, xCandidates)
	yi := findColumn(header, opts.YColumn, yCandidates)
	if xi < 0 || yi < 0 {
		return nil, eris.Errorf("tabular: %s has no coordinate columns (header: %s)", path, strings.Join(header, ", "))
	}

	layer := &model.Layer{
		Name: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		SRID: opts.SRID,
	}
	for i, h := range header {
		if i != xi && i != yi {
			layer.Fields = append(layer.Fields, h)
		}
	}

	var noCoords int
	for n, row := range rows[1:] {
		rec := model.Record{FID: int64(n), Props: make(map[string]any, len(layer.Fields))}
		for i, h := range header {
			if i == xi || i == yi {
				continue
			}
			rec.Props[h] = parseCell(cell(row, i))
		}
		x, errX := strconv.ParseFloat(cell(row, xi), 64)
		y, errY := strconv.ParseFloat(cell(row, yi), 64)
		if errX == nil && errY == nil {
			rec.Geom = geom.NewPointFlat(geom.XY, []float64{x, y}).SetSRID(opts.SRID)
		} else {
			noCoords++
		}
		layer.Records = append(layer.Records, rec)
	}

	if noCoords > 0 {
		zap.L().Warn("tabular: rows without parseable coordinates",
			zap.String("path", path),
			zap.Int("rows", noCoords),
		)
	}
	return layer, nil
}

func findColumn(header []string, want string, candidates []string) int {
	if want != "" {
		for i, h := range header {
			if strings.EqualFold(h, want) {
				return i
			}
		}
		return -1
	}
	for _, c := range candidates {
		for i, h := range header {
			if strings.EqualFold(h, c) {
				return i
			}
		}
	}
	return -1
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

// parseCell keeps zero-padded codes such as CVEGEO as text.
func parseCell(s string) any {
	if s == "" {
		return nil
	}
	if len(s) > 1 && s[0] == '0' && s[1] != '.' {
		return s
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}
	return s
}
