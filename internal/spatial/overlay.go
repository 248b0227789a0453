package spatial

import (
	"github.com/twpayne/go-geos"
)

// Union folds geoms into a single geometry in slice order. It returns nil
// for an empty slice.
func Union(geoms []*geos.Geom) *geos.Geom {
	var acc *geos.Geom
	for _, g := range geoms {
		if g == nil || g.IsEmpty() {
			continue
		}
		if acc == nil {
			acc = g.Clone()
			continue
		}
		next := acc.Union(g)
		acc.Destroy()
		acc = next
	}
	return acc
}

// Clip intersects target with every indexed shape whose envelope and
// geometry touch it, in ascending index order. Pieces with zero area are
// discarded unless keepLines is set, in which case zero-area pieces with a
// positive length are kept.
func Clip(target *Shape, idx *Index, keepLines bool) ([]int, []*geos.Geom, error) {
	hits, err := idx.Query(target.Bounds, 0)
	if err != nil {
		return nil, nil, err
	}
	var (
		ids    []int
		pieces []*geos.Geom
	)
	for _, i := range hits {
		s := idx.Shape(i)
		if !target.G.Intersects(s.G) {
			continue
		}
		piece := target.G.Intersection(s.G)
		if piece == nil {
			continue
		}
		if piece.IsEmpty() || (piece.Area() <= 0 && (!keepLines || piece.Length() <= 0)) {
			piece.Destroy()
			continue
		}
		ids = append(ids, i)
		pieces = append(pieces, piece)
	}
	return ids, pieces, nil
}

// Destroy releases a slice of GEOS geometries.
func Destroy(geoms []*geos.Geom) {
	for _, g := range geoms {
		if g != nil {
			g.Destroy()
		}
	}
}

// Buffer grows s by width, returning a new shape.
func (e *Engine) Buffer(s *Shape, width float64) (*Shape, error) {
	return e.FromGEOS(s.G.Buffer(width, 8))
}

// Centroid returns the centroid of s as a new shape.
func (e *Engine) Centroid(s *Shape) (*Shape, error) {
	return e.FromGEOS(s.G.Centroid())
}
