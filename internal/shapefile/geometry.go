package shapefile

import (
	"github.com/jonas-p/go-shp"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// toGeom converts a go-shp shape to a go-geom geometry. Unsupported or
// empty shapes yield nil.
func toGeom(shape shp.Shape, srid int) geom.T {
	switch s := shape.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}).SetSRID(srid)
	case *shp.PointZ:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}).SetSRID(srid)
	case *shp.MultiPoint:
		if len(s.Points) == 0 {
			return nil
		}
		return geom.NewMultiPointFlat(geom.XY, flatPoints(s.Points)).SetSRID(srid)
	case *shp.PolyLine:
		return polyLineToMultiLineString(s.Parts, s.Points, srid)
	case *shp.PolyLineZ:
		return polyLineToMultiLineString(s.Parts, s.Points, srid)
	case *shp.Polygon:
		return ringsToMultiPolygon(s.Parts, s.Points, srid)
	case *shp.PolygonZ:
		return ringsToMultiPolygon(s.Parts, s.Points, srid)
	default:
		return nil
	}
}

// partBounds returns the [start, end) point range of each part.
func partBounds(parts []int32, n int) [][2]int {
	out := make([][2]int, 0, len(parts))
	for i, start := range parts {
		end := n
		if i+1 < len(parts) {
			end = int(parts[i+1])
		}
		if int(start) < end && end <= n {
			out = append(out, [2]int{int(start), end})
		}
	}
	return out
}

func polyLineToMultiLineString(parts []int32, pts []shp.Point, srid int) geom.T {
	if len(pts) == 0 {
		return nil
	}
	mls := geom.NewMultiLineString(geom.XY).SetSRID(srid)
	for i, pb := range partBounds(parts, len(pts)) {
		if pb[1]-pb[0] < 2 {
			continue
		}
		ls := geom.NewLineStringFlat(geom.XY, flatPoints(pts[pb[0]:pb[1]]))
		if err := mls.Push(ls); err != nil {
			zap.L().Debug("shapefile: skipping malformed line part", zap.Int("part", i), zap.Error(err))
		}
	}
	if mls.NumLineStrings() == 0 {
		return nil
	}
	return mls
}

// ringsToMultiPolygon assembles shapefile rings into polygons. Shapefile
// outer rings run clockwise and holes counter-clockwise; each hole is
// attached to the outer ring that precedes it. Rings are re-oriented to the
// OGC convention (exterior counter-clockwise) so go-geom areas are positive.
func ringsToMultiPolygon(parts []int32, pts []shp.Point, srid int) geom.T {
	if len(pts) == 0 {
		return nil
	}
	mp := geom.NewMultiPolygon(geom.XY).SetSRID(srid)
	var current *geom.Polygon
	flush := func() {
		if current == nil {
			return
		}
		if err := mp.Push(current); err != nil {
			zap.L().Debug("shapefile: skipping malformed polygon", zap.Error(err))
		}
		current = nil
	}

	for i, pb := range partBounds(parts, len(pts)) {
		ringPts := pts[pb[0]:pb[1]]
		if len(ringPts) < 4 {
			continue
		}
		outer := signedArea(ringPts) <= 0 || current == nil
		flat := flatPoints(ringPts)
		if ccw := signedArea(ringPts) > 0; ccw != outer {
			reverseXY(flat)
		}
		ring := geom.NewLinearRingFlat(geom.XY, flat)
		if outer {
			flush()
			current = geom.NewPolygon(geom.XY)
		}
		if err := current.Push(ring); err != nil {
			zap.L().Debug("shapefile: skipping malformed ring", zap.Int("part", i), zap.Error(err))
		}
	}
	flush()

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// signedArea is positive for counter-clockwise rings.
func signedArea(pts []shp.Point) float64 {
	var sum float64
	for i := 0; i+1 < len(pts); i++ {
		sum += pts[i].X*pts[i+1].Y - pts[i+1].X*pts[i].Y
	}
	return sum / 2
}

// reverseXY reverses the vertex order of flat XY coordinates in place.
func reverseXY(flat []float64) {
	for i, j := 0, len(flat)-2; i < j; i, j = i+2, j-2 {
		flat[i], flat[j] = flat[j], flat[i]
		flat[i+1], flat[j+1] = flat[j+1], flat[i+1]
	}
}

func flatPoints(pts []shp.Point) []float64 {
	flat := make([]float64, 0, len(pts)*2)
	for _, p := range pts {
		flat = append(flat, p.X, p.Y)
	}
	return flat
}
