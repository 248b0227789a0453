// Package aggregate reduces attributed features into per-block statistics:
// union-based footprint coverage, cadastral sums, parcel counts and areas,
// and length-weighted street segment metrics.
package aggregate

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spacematrix/internal/model"
	"github.com/sells-group/spacematrix/internal/spatial"
)

// Aggregator enriches a fixed set of blocks in place.
type Aggregator struct {
	engine *spatial.Engine
	blocks []*model.Block
	shapes []*spatial.Shape
	index  *spatial.Index
	log    *zap.Logger
}

// New creates an aggregator over blocks and their prepared shapes, which
// must be parallel slices.
func New(e *spatial.Engine, blocks []*model.Block, shapes []*spatial.Shape) (*Aggregator, error) {
	if len(blocks) != len(shapes) {
		return nil, eris.Errorf("aggregate: %d blocks but %d shapes", len(blocks), len(shapes))
	}
	return &Aggregator{
		engine: e,
		blocks: blocks,
		shapes: shapes,
		index:  e.NewIndex(shapes),
		log:    zap.L().With(zap.String("component", "aggregate")),
	}, nil
}

// Blocks returns the blocks being enriched.
func (a *Aggregator) Blocks() []*model.Block {
	return a.blocks
}

// Close releases the block index and the prepared block shapes.
func (a *Aggregator) Close() {
	a.index.Destroy()
	for i, s := range a.shapes {
		if s != nil {
			s.G.Destroy()
			a.shapes[i] = nil
		}
	}
}

// FootprintSummary reports the footprint stage.
type FootprintSummary struct {
	Input         int
	Repaired      int
	Dropped       int
	Slivers       int
	BlocksCovered int
}

// Footprints measures building coverage B per block. Footprints are cleaned
// by the geometry policy, pieces smaller than minArea are discarded, each
// block is intersected with every footprint touching it and the pieces are
// unioned before measuring, so overlapping footprints are counted once.
// B never exceeds the block area.
func (a *Aggregator) Footprints(ctx context.Context, features []*model.Feature, minArea float64, batchSize int) (FootprintSummary, error) {
	sum := FootprintSummary{Input: len(features)}

	shapes := make([]*spatial.Shape, len(features))
	for i, f := range features {
		s, outcome, err := a.engine.Prepare(f.Geom)
		if err != nil {
			return sum, eris.Wrapf(err, "aggregate: prepare footprint %d", i)
		}
		switch outcome {
		case spatial.Dropped:
			sum.Dropped++
			continue
		case spatial.Repaired:
			sum.Repaired++
		}
		if s.G.Area() < minArea {
			sum.Slivers++
			s.G.Destroy()
			continue
		}
		shapes[i] = s
	}
	idx := a.engine.NewIndex(shapes)
	defer idx.Destroy()

	err := a.eachBatch(ctx, batchSize, "footprints", func(i int) error {
		b := a.blocks[i]
		b.Footprint = model.FootprintStats{}
		if a.shapes[i] == nil {
			return nil
		}
		_, pieces, err := spatial.Clip(a.shapes[i], idx, false)
		if err != nil {
			return err
		}
		defer spatial.Destroy(pieces)

		raw := 0.0
		for _, p := range pieces {
			raw += p.Area()
		}
		area := 0.0
		if u := spatial.Union(pieces); u != nil {
			area = u.Area()
			u.Destroy()
		}
		b.Footprint = model.FootprintStats{Area: area, RawArea: raw, Pieces: len(pieces)}
		if area > 0 {
			sum.BlocksCovered++
		}
		return nil
	})
	for _, s := range shapes {
		if s != nil {
			s.G.Destroy()
		}
	}
	if err != nil {
		return sum, err
	}

	a.log.Info("footprint coverage computed",
		zap.Int("footprints", sum.Input),
		zap.Int("repaired", sum.Repaired),
		zap.Int("dropped", sum.Dropped),
		zap.Int("slivers", sum.Slivers),
		zap.Int("blocks_with_b", sum.BlocksCovered),
	)
	return sum, nil
}

// eachBatch calls fn for every block index in fixed-size sequential batches,
// checking for cancellation between batches.
func (a *Aggregator) eachBatch(ctx context.Context, batchSize int, stage string, fn func(i int) error) error {
	if batchSize <= 0 {
		batchSize = len(a.blocks)
	}
	for start := 0; start < len(a.blocks); start += batchSize {
		if err := ctx.Err(); err != nil {
			return eris.Wrapf(err, "aggregate: %s cancelled", stage)
		}
		end := min(start+batchSize, len(a.blocks))
		for i := start; i < end; i++ {
			if err := fn(i); err != nil {
				return eris.Wrapf(err, "aggregate: %s block %d", stage, i)
			}
		}
		a.log.Debug("batch done",
			zap.String("stage", stage),
			zap.Int("from", start),
			zap.Int("to", end),
			zap.Int("total", len(a.blocks)),
		)
	}
	return nil
}
