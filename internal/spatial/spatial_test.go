package spatial

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/spacematrix/internal/model"
)

func square(x0, y0, x1, y1 float64) *geom.Polygon {
	return geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{
		{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0}},
	})
}

func point(x, y float64) *geom.Point {
	return geom.NewPoint(geom.XY).MustSetCoords(geom.Coord{x, y})
}

func blockIndex(t *testing.T, e *Engine, polys ...*geom.Polygon) *Index {
	t.Helper()
	shapes := make([]*Shape, len(polys))
	for i, p := range polys {
		s, outcome, err := e.Prepare(p)
		require.NoError(t, err)
		require.Equal(t, Kept, outcome)
		shapes[i] = s
	}
	return e.NewIndex(shapes)
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"lite", PolicyLite, false},
		{"robust", PolicyRobust, false},
		{"repair", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePolicy(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrepare_Policy(t *testing.T) {
	bowtie := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{
		{{0, 0}, {10, 10}, {10, 0}, {0, 2}, {0, 0}},
	})

	lite := NewEngine(PolicyLite)
	s, outcome, err := lite.Prepare(bowtie)
	require.NoError(t, err)
	assert.Equal(t, Dropped, outcome)
	assert.Nil(t, s)

	robust := NewEngine(PolicyRobust)
	s, outcome, err = robust.Prepare(bowtie)
	require.NoError(t, err)
	assert.NotEqual(t, Kept, outcome)
	if outcome == Repaired {
		require.NotNil(t, s)
		assert.True(t, s.G.IsValid())
	}

	s, outcome, err = robust.Prepare(square(0, 0, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, Kept, outcome)
	assert.InDelta(t, 1.0, s.G.Area(), 1e-9)

	s, outcome, err = robust.Prepare(nil)
	require.NoError(t, err)
	assert.Equal(t, Dropped, outcome)
	assert.Nil(t, s)
}

func TestEngine_AreaIgnoresOrientation(t *testing.T) {
	e := NewEngine(PolicyLite)
	cw := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{
		{{0, 0}, {0, 4}, {5, 4}, {5, 0}, {0, 0}},
	})
	area, err := e.Area(cw)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, area, 1e-9)
}

func TestIndex_QuerySorted(t *testing.T) {
	e := NewEngine(PolicyLite)
	idx := blockIndex(t, e,
		square(200, 0, 300, 100),
		square(0, 0, 100, 100),
		square(100, 0, 200, 100),
	)
	defer idx.Destroy()
	assert.Equal(t, 3, idx.Len())

	hits, err := idx.Query(point(150, 50).Bounds(), 60)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, hits)

	hits, err = idx.Query(point(50, 50).Bounds(), 0)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, hits)

	hits, err = idx.Query(point(50, 5000).Bounds(), 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestAttribute(t *testing.T) {
	e := NewEngine(PolicyLite)
	idx := blockIndex(t, e,
		square(0, 0, 100, 100),
		square(100, 0, 200, 100),
		square(0, 300, 100, 400),
	)
	defer idx.Destroy()

	features := []geom.T{
		point(50, 50),   // inside block 0
		point(100, 50),  // on the shared edge of 0 and 1
		point(150, -50), // 50 from block 1
		point(50, -160), // 160 from block 0
		point(50, -500), // out of reach
		nil,             // no geometry
		point(100, -50), // equidistant from 0 and 1
	}

	a := NewAttributor(e, idx, AttributorConfig{MaxDist: 120, RescueDist: 200, BatchSize: 2})
	got, stats, err := a.Attribute(context.Background(), features)
	require.NoError(t, err)
	require.Len(t, got, len(features))

	want := []struct {
		block  int
		method model.MatchMethod
		dist   float64
	}{
		{0, model.MatchContained, 0},
		{0, model.MatchContained, 0},
		{1, model.MatchNearest, 50},
		{0, model.MatchRescue, 160},
		{-1, model.MatchNone, -1},
		{-1, model.MatchSkipped, -1},
		{0, model.MatchNearest, 50},
	}
	for i, w := range want {
		assert.Equal(t, i, got[i].Feature)
		assert.Equal(t, w.block, got[i].Block, "feature %d", i)
		assert.Equal(t, w.method, got[i].Method, "feature %d", i)
		if w.dist >= 0 {
			assert.InDelta(t, w.dist, got[i].Distance, 1e-9, "feature %d", i)
		} else {
			assert.True(t, model.IsMissing(got[i].Distance))
		}
	}

	assert.Equal(t, Stats{
		Total:              7,
		Contained:          2,
		Nearest:            2,
		Rescued:            1,
		UnmatchedFirstPass: 2,
		Unmatched:          1,
		Skipped:            1,
	}, stats)
}

func TestAttribute_RescueNeverIncreasesUnmatched(t *testing.T) {
	e := NewEngine(PolicyLite)
	idx := blockIndex(t, e, square(0, 0, 100, 100))
	defer idx.Destroy()

	features := []geom.T{point(50, -130), point(50, -250), point(50, 50)}

	for _, rescue := range []float64{0, 120, 150, 200, 1000} {
		a := NewAttributor(e, idx, AttributorConfig{MaxDist: 120, RescueDist: rescue})
		_, stats, err := a.Attribute(context.Background(), features)
		require.NoError(t, err)
		assert.LessOrEqual(t, stats.Unmatched, stats.UnmatchedFirstPass, "rescue %v", rescue)
		assert.Equal(t, 2, stats.UnmatchedFirstPass)
		if rescue <= 120 {
			assert.Equal(t, 2, stats.Unmatched)
		}
	}
}

func TestAttribute_Cancelled(t *testing.T) {
	e := NewEngine(PolicyLite)
	idx := blockIndex(t, e, square(0, 0, 100, 100))
	defer idx.Destroy()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := NewAttributor(e, idx, AttributorConfig{MaxDist: 120})
	_, _, err := a.Attribute(ctx, []geom.T{point(1, 1)})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNearest_EmptyIndex(t *testing.T) {
	e := NewEngine(PolicyLite)
	idx := e.NewIndex(nil)
	defer idx.Destroy()

	s, _, err := e.Prepare(point(0, 0))
	require.NoError(t, err)
	i, d, err := Nearest(idx, s, 100)
	require.NoError(t, err)
	assert.Equal(t, -1, i)
	assert.True(t, model.IsMissing(d))
}

func TestClipAndUnion(t *testing.T) {
	e := NewEngine(PolicyLite)
	block, _, err := e.Prepare(square(0, 0, 10, 10))
	require.NoError(t, err)

	footprints := blockIndex(t, e,
		square(-5, 0, 5, 5),
		square(2, 0, 7, 5),
		square(50, 50, 60, 60),
		square(10, 0, 12, 2), // touches the block edge only
	)
	defer footprints.Destroy()

	ids, pieces, err := Clip(block, footprints, false)
	require.NoError(t, err)
	defer Destroy(pieces)
	assert.Equal(t, []int{0, 1}, ids)

	raw := 0.0
	for _, p := range pieces {
		raw += p.Area()
	}
	assert.InDelta(t, 50.0, raw, 1e-9)

	u := Union(pieces)
	require.NotNil(t, u)
	assert.InDelta(t, 35.0, u.Area(), 1e-9)
	assert.LessOrEqual(t, u.Area(), raw)

	assert.Nil(t, Union(nil))
}

func TestBufferAndCentroid(t *testing.T) {
	e := NewEngine(PolicyLite)
	s, _, err := e.Prepare(square(0, 0, 10, 10))
	require.NoError(t, err)

	grown, err := e.Buffer(s, 1)
	require.NoError(t, err)
	assert.InDelta(t, -1.0, grown.Bounds.Min(0), 1e-9)
	assert.InDelta(t, 11.0, grown.Bounds.Max(1), 1e-9)
	assert.Greater(t, grown.G.Area(), 100.0)

	c, err := e.Centroid(s)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, c.Bounds.Min(0), 1e-9)
	assert.InDelta(t, 5.0, c.Bounds.Min(1), 1e-9)
}
