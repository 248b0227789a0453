package spatial

import (
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geos"
)

// Index is a bounding-box index over a fixed slice of shapes. Query results
// are positions into that slice, always in ascending order so callers can
// break ties by lowest index.
type Index struct {
	engine *Engine
	tree   *geos.STRtree
	shapes []*Shape
	size   int
}

// NewIndex builds an STR-tree over shapes. Nil entries are skipped but keep
// their position.
func (e *Engine) NewIndex(shapes []*Shape) *Index {
	idx := &Index{
		engine: e,
		tree:   e.ctx.NewSTRtree(10),
		shapes: shapes,
	}
	for i, s := range shapes {
		if s == nil || s.G == nil {
			continue
		}
		idx.tree.Insert(s.G, i)
		idx.size++
	}
	return idx
}

// Len returns the number of indexed shapes.
func (idx *Index) Len() int {
	return idx.size
}

// Shape returns the shape stored at position i.
func (idx *Index) Shape(i int) *Shape {
	return idx.shapes[i]
}

// Query returns the positions of shapes whose envelope intersects b grown
// by pad.
func (idx *Index) Query(b *geom.Bounds, pad float64) ([]int, error) {
	if idx.size == 0 || b == nil || b.IsEmpty() {
		return nil, nil
	}
	rect, err := idx.engine.Rect(b, pad)
	if err != nil {
		return nil, eris.Wrap(err, "spatial: build query envelope")
	}
	defer rect.Destroy()

	var hits []int
	idx.tree.Query(rect, func(v any) {
		if i, ok := v.(int); ok {
			hits = append(hits, i)
		}
	})
	sort.Ints(hits)
	return hits, nil
}

// Destroy releases the GEOS tree.
func (idx *Index) Destroy() {
	if idx.tree != nil {
		idx.tree.Destroy()
		idx.tree = nil
	}
}
