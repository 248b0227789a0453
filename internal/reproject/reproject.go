// Package reproject moves go-geom geometries between coordinate reference
// systems so that every layer shares one planar CRS before any area, length
// or distance is measured.
package reproject

import (
	"fmt"

	"github.com/ctessum/geom/proj"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// knownProj4 maps the EPSG codes used for Mexico City data to proj4 strings.
var knownProj4 = map[int]string{
	4326:  "+proj=longlat +datum=WGS84 +no_defs",
	4269:  "+proj=longlat +datum=NAD83 +no_defs",
	3857:  "+proj=merc +a=6378137 +b=6378137 +lat_ts=0 +lon_0=0 +x_0=0 +y_0=0 +k=1 +units=m +nadgrids=@null +no_defs",
	32613: "+proj=utm +zone=13 +datum=WGS84 +units=m +no_defs",
	32614: "+proj=utm +zone=14 +datum=WGS84 +units=m +no_defs",
	32615: "+proj=utm +zone=15 +datum=WGS84 +units=m +no_defs",
	6372:  "+proj=lcc +lat_0=12 +lon_0=-102 +lat_1=17.5 +lat_2=29.5 +x_0=2500000 +y_0=0 +ellps=GRS80 +units=m +no_defs",
	6369:  "+proj=lcc +lat_0=12 +lon_0=-102 +lat_1=17.5 +lat_2=29.5 +x_0=2500000 +y_0=0 +ellps=GRS80 +units=m +no_defs",
}

// Proj4 returns the proj4 definition for an EPSG code.
func Proj4(epsg int) (string, error) {
	def, ok := knownProj4[epsg]
	if !ok {
		return "", eris.Errorf("reproject: no proj4 definition for EPSG:%d (set crs.target_proj4)", epsg)
	}
	return def, nil
}

// IsGeographic reports whether the EPSG code is a longitude/latitude system.
// Areas and distances must never be measured in such a system.
func IsGeographic(epsg int) bool {
	return epsg == 4326 || epsg == 4269
}

// Transformer reprojects geometries from one CRS to another.
type Transformer struct {
	fromSRID int
	toSRID   int
	fn       proj.Transformer
}

// New builds a transformer between two EPSG codes. toProj4 overrides the
// definition of the target system when non-empty.
func New(fromEPSG, toEPSG int, toProj4 string) (*Transformer, error) {
	t := &Transformer{fromSRID: fromEPSG, toSRID: toEPSG}
	if fromEPSG == toEPSG && toProj4 == "" {
		return t, nil
	}

	fromDef, err := Proj4(fromEPSG)
	if err != nil {
		return nil, err
	}
	toDef := toProj4
	if toDef == "" {
		if toDef, err = Proj4(toEPSG); err != nil {
			return nil, err
		}
	}

	src, err := proj.Parse(fromDef)
	if err != nil {
		return nil, eris.Wrapf(err, "reproject: parse source EPSG:%d", fromEPSG)
	}
	dst, err := proj.Parse(toDef)
	if err != nil {
		return nil, eris.Wrap(err, "reproject: parse target definition")
	}
	fn, err := src.NewTransform(dst)
	if err != nil {
		return nil, eris.Wrap(err, "reproject: build transform")
	}
	t.fn = fn
	return t, nil
}

// Identity reports whether the transformer leaves coordinates unchanged.
func (t *Transformer) Identity() bool {
	return t.fn == nil
}

// String describes the transform for logs.
func (t *Transformer) String() string {
	return fmt.Sprintf("EPSG:%d->EPSG:%d", t.fromSRID, t.toSRID)
}

// Apply reprojects g in place and returns it. Only the X/Y ordinates are
// transformed; Z and M values are preserved.
func (t *Transformer) Apply(g geom.T) (geom.T, error) {
	if g == nil || t.fn == nil {
		return g, nil
	}
	if gc, ok := g.(*geom.GeometryCollection); ok {
		for _, child := range gc.Geoms() {
			if _, err := t.Apply(child); err != nil {
				return nil, err
			}
		}
		return gc.SetSRID(t.toSRID), nil
	}
	flat := g.FlatCoords()
	stride := g.Stride()
	if stride < 2 {
		return g, nil
	}
	for i := 0; i+1 < len(flat); i += stride {
		x, y, err := t.fn(flat[i], flat[i+1])
		if err != nil {
			return nil, eris.Wrapf(err, "reproject: transform coordinate %d", i/stride)
		}
		flat[i], flat[i+1] = x, y
	}
	return withSRID(g, t.toSRID), nil
}

// withSRID stamps the target SRID on the concrete go-geom types that carry one.
func withSRID(g geom.T, srid int) geom.T {
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
