// Package geojson reads GeoJSON feature collections into model layers.
package geojson

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	orbwkb "github.com/paulmach/orb/encoding/wkb"
	orbgeojson "github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	"go.uber.org/zap"

	"github.com/sells-group/spacematrix/internal/model"
)

// DefaultSRID is the CRS mandated by RFC 7946.
const DefaultSRID = 4326

var epsgPattern = regexp.MustCompile(`EPSG:+(\d+)`)

// Read loads a GeoJSON FeatureCollection. The SRID comes from srid when
// non-zero, then from a legacy "crs" member, then defaults to EPSG:4326.
func Read(path string, srid int) (*model.Layer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geojson: read %s", path)
	}
	fc, err := orbgeojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, eris.Wrapf(err, "geojson: parse %s", path)
	}

	if srid == 0 {
		srid = crsSRID(fc.ExtraMembers)
	}

	layer := &model.Layer{
		Name: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		SRID: srid,
	}

	seen := make(map[string]bool)
	var skipped int
	for i, f := range fc.Features {
		rec := model.Record{FID: int64(i), Props: make(map[string]any, len(f.Properties))}
		for k, v := range f.Properties {
			rec.Props[k] = v
			seen[k] = true
		}
		if f.Geometry != nil {
			g, err := toGeom(f.Geometry, srid)
			if err != nil {
				return nil, eris.Wrapf(err, "geojson: feature %d of %s", i, path)
			}
			rec.Geom = g
		} else {
			skipped++
		}
		layer.Records = append(layer.Records, rec)
	}

	for k := range seen {
		layer.Fields = append(layer.Fields, k)
	}
	sort.Strings(layer.Fields)

	if skipped > 0 {
		zap.L().Debug("geojson: features without geometry",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return layer, nil
}

// toGeom converts an orb geometry to go-geom through WKB.
func toGeom(g orb.Geometry, srid int) (geom.T, error) {
	b, err := orbwkb.Marshal(g)
	if err != nil {
		return nil, eris.Wrap(err, "geojson: encode WKB")
	}
	out, err := wkb.Unmarshal(b)
	if err != nil {
		return nil, eris.Wrap(err, "geojson: decode WKB")
	}
	return setSRID(out, srid), nil
}

// crsSRID extracts the EPSG code from a legacy named "crs" member.
func crsSRID(extra orbgeojson.Properties) int {
	crs, ok := extra["crs"].(map[string]any)
	if !ok {
		return DefaultSRID
	}
	props, ok := crs["properties"].(map[string]any)
	if !ok {
		return DefaultSRID
	}
	name, _ := props["name"].(string)
	if strings.Contains(name, "CRS84") {
		return DefaultSRID
	}
	m := epsgPattern.FindStringSubmatch(strings.ToUpper(name))
	if m == nil {
		return DefaultSRID
	}
	code, err := strconv.Atoi(m[1])
	if err != nil {
		return DefaultSRID
	}
	return code
}

func setSRID(g geom.T, srid int) geom.T {
	switch v := g.(type) {
	case *geom.Point:
		return v.SetSRID(srid)
	case *geom.LineString:
		return v.SetSRID(srid)
	case *geom.Polygon:
		return v.SetSRID(srid)
	case *geom.MultiPoint:
		return v.SetSRID(srid)
	case *geom.MultiLineString:
		return v.SetSRID(srid)
	case *geom.MultiPolygon:
		return v.SetSRID(srid)
	case *geom.GeometryCollection:
		return v.SetSRID(srid)
	default:
		return g
	}
}
