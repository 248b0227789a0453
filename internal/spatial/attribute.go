package spatial

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/spacematrix/internal/model"
)

// AttributorConfig controls feature-to-block attribution.
type AttributorConfig struct {
	// MaxDist bounds the nearest-neighbour fallback. Zero disables it.
	MaxDist float64
	// RescueDist bounds the second pass over features still unmatched.
	// It only runs when larger than MaxDist.
	RescueDist float64
	// BatchSize is the number of features handled between cancellation checks.
	BatchSize int
}

// Stats summarises one attribution run.
type Stats struct {
	Total              int
	Contained          int
	Nearest            int
	Rescued            int
	UnmatchedFirstPass int
	Unmatched          int
	Skipped            int
}

// Attributor assigns features to at most one target block.
type Attributor struct {
	engine *Engine
	index  *Index
	cfg    AttributorConfig
	log    *zap.Logger
}

// NewAttributor creates an attributor over an index of target blocks.
func NewAttributor(e *Engine, targets *Index, cfg AttributorConfig) *Attributor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	return &Attributor{
		engine: e,
		index:  targets,
		cfg:    cfg,
		log:    zap.L().With(zap.String("component", "attributor")),
	}
}

// Attribute resolves the block of every feature. A feature covered by
// several blocks goes to the lowest-indexed one; otherwise it goes to the
// nearest block within MaxDist, and features still unmatched get a second
// chance within RescueDist. Equal distances resolve to the lowest index.
// The returned slice is parallel to features.
func (a *Attributor) Attribute(ctx context.Context, features []geom.T) ([]model.Attribution, Stats, error) {
	out := make([]model.Attribution, len(features))
	stats := Stats{Total: len(features)}
	shapes := make([]*Shape, len(features))

	for start := 0; start < len(features); start += a.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, stats, eris.Wrap(err, "spatial: attribution cancelled")
		}
		end := min(start+a.cfg.BatchSize, len(features))

		for i := start; i < end; i++ {
			out[i] = model.Attribution{Feature: i, Block: -1, Distance: model.Missing, Method: model.MatchNone}

			s, outcome, err := a.engine.Prepare(features[i])
			if err != nil {
				return nil, stats, eris.Wrapf(err, "spatial: prepare feature %d", i)
			}
			if outcome == Dropped {
				out[i].Method = model.MatchSkipped
				stats.Skipped++
				continue
			}
			shapes[i] = s

			block, err := a.contained(s)
			if err != nil {
				return nil, stats, err
			}
			if block >= 0 {
				out[i].Block, out[i].Distance, out[i].Method = block, 0, model.MatchContained
				stats.Contained++
				continue
			}

			if a.cfg.MaxDist > 0 {
				block, dist, err := a.nearest(s, a.cfg.MaxDist)
				if err != nil {
					return nil, stats, err
				}
				if block >= 0 {
					out[i].Block, out[i].Distance, out[i].Method = block, dist, model.MatchNearest
					stats.Nearest++
					continue
				}
			}
			stats.UnmatchedFirstPass++
		}

		a.log.Debug("attribution batch done",
			zap.Int("from", start),
			zap.Int("to", end),
			zap.Int("total", len(features)),
		)
	}

	stats.Unmatched = stats.UnmatchedFirstPass
	if a.cfg.RescueDist > a.cfg.MaxDist && stats.UnmatchedFirstPass > 0 {
		for i := range out {
			if out[i].Method != model.MatchNone {
				continue
			}
			if i%a.cfg.BatchSize == 0 {
				if err := ctx.Err(); err != nil {
					return nil, stats, eris.Wrap(err, "spatial: rescue cancelled")
				}
			}
			block, dist, err := a.nearest(shapes[i], a.cfg.RescueDist)
			if err != nil {
				return nil, stats, err
			}
			if block >= 0 {
				out[i].Block, out[i].Distance, out[i].Method = block, dist, model.MatchRescue
				stats.Rescued++
				stats.Unmatched--
			}
		}
	}

	for _, s := range shapes {
		if s != nil {
			s.G.Destroy()
		}
	}

	a.log.Info("attribution complete",
		zap.Int("total", stats.Total),
		zap.Int("contained", stats.Contained),
		zap.Int("nearest", stats.Nearest),
		zap.Int("rescued", stats.Rescued),
		zap.Int("unmatched_first_pass", stats.UnmatchedFirstPass),
		zap.Int("unmatched", stats.Unmatched),
		zap.Int("skipped", stats.Skipped),
	)
	return out, stats, nil
}

// contained returns the lowest-indexed block covering s, or -1.
func (a *Attributor) contained(s *Shape) (int, error) {
	hits, err := a.index.Query(s.Bounds, 0)
	if err != nil {
		return -1, err
	}
	for _, i := range hits {
		if s.G.CoveredBy(a.index.Shape(i).G) {
			return i, nil
		}
	}
	return -1, nil
}

// nearest returns the closest block within radius, or -1.
func (a *Attributor) nearest(s *Shape, radius float64) (int, float64, error) {
	return Nearest(a.index, s, radius)
}

// Nearest returns the position of the indexed shape closest to s within
// radius, and its distance. Ties go to the lowest position. It returns -1
// and Missing when nothing lies within radius.
func Nearest(idx *Index, s *Shape, radius float64) (int, float64, error) {
	hits, err := idx.Query(s.Bounds, radius)
	if err != nil {
		return -1, model.Missing, err
	}
	best, bestDist := -1, math.Inf(1)
	for _, i := range hits {
		d := s.G.Distance(idx.Shape(i).G)
		if d <= radius && d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return -1, model.Missing, nil
	}
	return best, bestDist, nil
}
