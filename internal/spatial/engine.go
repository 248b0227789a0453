// Package spatial wraps GEOS (through go-geos) for the geometry work of the
// pipeline: validity policy, bounding-box indexing, containment and bounded
// nearest-neighbour attribution, overlay and union.
package spatial

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	"github.com/twpayne/go-geos"
)

// Policy decides what happens to invalid geometries.
type Policy string

// Geometry policies.
const (
	// PolicyLite drops invalid geometries.
	PolicyLite Policy = "lite"
	// PolicyRobust repairs invalid geometries with a zero-width buffer.
	PolicyRobust Policy = "robust"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyLite, PolicyRobust:
		return Policy(s), nil
	default:
		return "", eris.Errorf("spatial: unknown geometry policy %q", s)
	}
}

// Outcome reports what Prepare did with a geometry.
type Outcome int

// Prepare outcomes.
const (
	Kept Outcome = iota
	Repaired
	Dropped
)

// Shape is a GEOS geometry together with its planar bounding box.
type Shape struct {
	G      *geos.Geom
	Bounds *geom.Bounds
}

// Engine owns a GEOS context. It is not safe for concurrent use; the
// pipeline drives it from a single goroutine.
type Engine struct {
	ctx    *geos.Context
	policy Policy
}

// NewEngine creates an engine applying policy to invalid input.
func NewEngine(policy Policy) *Engine {
	return &Engine{ctx: geos.NewContext(), policy: policy}
}

// Policy returns the configured geometry policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Convert turns a go-geom geometry into a Shape. A nil geometry yields nil.
func (e *Engine) Convert(g geom.T) (*Shape, error) {
	if g == nil {
		return nil, nil
	}
	b, err := wkb.Marshal(g, wkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "spatial: encode WKB")
	}
	gg, err := e.ctx.NewGeomFromWKB(b)
	if err != nil {
		return nil, eris.Wrap(err, "spatial: decode WKB into GEOS")
	}
	return &Shape{G: gg, Bounds: g.Bounds()}, nil
}

// FromGEOS wraps a GEOS geometry, computing its bounds.
func (e *Engine) FromGEOS(g *geos.Geom) (*Shape, error) {
	if g == nil {
		return nil, nil
	}
	t, err := e.ToGeom(g)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return &Shape{G: g, Bounds: geom.NewBounds(geom.XY)}, nil
	}
	return &Shape{G: g, Bounds: t.Bounds()}, nil
}

// ToGeom converts a GEOS geometry back to go-geom.
func (e *Engine) ToGeom(g *geos.Geom) (geom.T, error) {
	if g == nil || g.IsEmpty() {
		return nil, nil
	}
	t, err := wkb.Unmarshal(g.ToWKB())
	if err != nil {
		return nil, eris.Wrap(err, "spatial: decode GEOS WKB")
	}
	return t, nil
}

// Prepare converts g and applies the validity policy. Empty geometries and,
// under the lite policy, invalid ones are dropped.
func (e *Engine) Prepare(g geom.T) (*Shape, Outcome, error) {
	s, err := e.Convert(g)
	if err != nil {
		return nil, Dropped, err
	}
	if s == nil || s.G.IsEmpty() {
		return nil, Dropped, nil
	}
	if s.G.IsValid() {
		return s, Kept, nil
	}
	if e.policy != PolicyRobust {
		s.G.Destroy()
		return nil, Dropped, nil
	}

	fixed := s.G.Buffer(0, 8)
	s.G.Destroy()
	if fixed == nil || fixed.IsEmpty() {
		return nil, Dropped, nil
	}
	repaired, err := e.FromGEOS(fixed)
	if err != nil {
		return nil, Dropped, err
	}
	return repaired, Repaired, nil
}

// Rect builds a GEOS rectangle covering b expanded by pad on every side.
func (e *Engine) Rect(b *geom.Bounds, pad float64) (*geos.Geom, error) {
	minX, minY := b.Min(0)-pad, b.Min(1)-pad
	maxX, maxY := b.Max(0)+pad, b.Max(1)+pad
	poly := geom.NewPolygonFlat(geom.XY, []float64{
		minX, minY, maxX, minY, maxX, maxY, minX, maxY, minX, minY,
	}, []int{10})
	s, err := e.Convert(poly)
	if err != nil {
		return nil, err
	}
	return s.G, nil
}

// Area returns the planar area of a go-geom geometry measured by GEOS, which
// is independent of ring orientation.
func (e *Engine) Area(g geom.T) (float64, error) {
	s, err := e.Convert(g)
	if err != nil || s == nil {
		return 0, err
	}
	defer s.G.Destroy()
	return s.G.Area(), nil
}
