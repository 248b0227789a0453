// Package shapefile reads ESRI shapefiles into model layers.
package shapefile

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spacematrix/internal/model"
)

// Read loads every record of the shapefile at path. Attribute values are
// trimmed of DBF padding; numeric DBF fields become float64 and empty
// values become nil. srid overrides the CRS sniffed from the .prj sidecar.
func Read(path string, srid int) (*model.Layer, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "shapefile: open %s", path)
	}
	defer func() { _ = reader.Close() }()

	if srid == 0 {
		srid = SniffSRID(path)
	}

	fields := reader.Fields()
	names := make([]string, len(fields))
	numeric := make([]bool, len(fields))
	for i, f := range fields {
		names[i] = strings.TrimRight(f.String(), "\x00")
		numeric[i] = f.Fieldtype == 'N' || f.Fieldtype == 'F'
	}

	layer := &model.Layer{
		Name:   strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		SRID:   srid,
		Fields: names,
	}

	var skipped int
	for reader.Next() {
		n, shape := reader.Shape()
		g := toGeom(shape, srid)
		if g == nil {
			skipped++
		}

		props := make(map[string]any, len(names))
		for i, name := range names {
			val := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			switch {
			case val == "":
				props[name] = nil
			case numeric[i]:
				if fv, err := strconv.ParseFloat(val, 64); err == nil {
					props[name] = fv
				} else {
					props[name] = nil
				}
			default:
				props[name] = val
			}
		}
		layer.Records = append(layer.Records, model.Record{FID: int64(n), Geom: g, Props: props})
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "shapefile: read %s", path)
	}

	if skipped > 0 {
		zap.L().Debug("shapefile: records without usable geometry",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return layer, nil
}

// SniffSRID guesses the EPSG code from the .prj sidecar of a shapefile.
// It recognises the handful of systems used for Mexico City data and
// returns 0 when the file is missing or unrecognised.
func SniffSRID(shpPath string) int {
	prj := strings.TrimSuffix(shpPath, filepath.Ext(shpPath)) + ".prj"
	b, err := os.ReadFile(prj)
	if err != nil {
		return 0
	}
	wkt := strings.ToUpper(string(b))
	switch {
	case strings.Contains(wkt, "UTM_ZONE_14N") || strings.Contains(wkt, "UTM ZONE 14N"):
		return 32614
	case strings.Contains(wkt, "ITRF2008") && strings.Contains(wkt, "LAMBERT"):
		return 6372
	case strings.HasPrefix(wkt, "GEOGCS") && strings.Contains(wkt, "WGS_1984"):
		return 4326
	case strings.HasPrefix(wkt, "GEOGCS") && strings.Contains(wkt, "NORTH_AMERICAN_1983"):
		return 4269
	default:
		return 0
	}
}
