package aggregate

import (
	"context"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spacematrix/internal/model"
	"github.com/sells-group/spacematrix/internal/spatial"
)

// Street output columns that do not depend on the metric list.
const (
	ColStreetLength = "street_len_in_manz_m"
	ColHazardNear   = "peligro_cat_near"
	ColNearDist     = "near_dist_m"
)

// SegmentConfig controls street segment aggregation.
type SegmentConfig struct {
	// EdgeBuffer grows each block before intersecting segments, so streets
	// running along the block edge are counted.
	EdgeBuffer float64
	// NearestRescue bounds the nearest-segment lookup for blocks that no
	// segment reaches.
	NearestRescue    float64
	BatchSize        int
	Metrics          []string
	HazardCategories []int
	// HasHazard enables the per-category shares and means.
	HasHazard bool
}

// SegmentSummary reports the segment stage.
type SegmentSummary struct {
	Segments          int
	Dropped           int
	BlocksWithStreets int
	Rescued           int
	Unreached         int
}

// SegmentColumns lists the value columns produced for cfg, in output order.
// The street length column comes first and is not included.
func SegmentColumns(cfg SegmentConfig) []string {
	var cols []string
	for _, m := range cfg.Metrics {
		cols = append(cols, m+"_lenw_mean", m+"_p90")
	}
	if cfg.HasHazard {
		for _, k := range cfg.HazardCategories {
			cols = append(cols, shareColumn(k))
		}
		for _, m := range cfg.Metrics {
			for _, k := range cfg.HazardCategories {
				cols = append(cols, hazardMeanColumn(m, k))
			}
		}
	}
	for _, m := range cfg.Metrics {
		cols = append(cols, m+"_near")
	}
	if cfg.HasHazard {
		cols = append(cols, ColHazardNear)
	}
	return append(cols, ColNearDist)
}

func shareColumn(k int) string {
	return "len_share_p" + strconv.Itoa(k)
}

func hazardMeanColumn(metric string, k int) string {
	return metric + "_p" + strconv.Itoa(k) + "_lenw_mean"
}

// Segments aggregates street segments onto blocks. Each block is grown by
// EdgeBuffer and every segment touching it is clipped; the clipped length is
// the weight of that segment for the block. A segment may contribute to
// several neighbouring blocks. Blocks no segment reaches take the values of
// the nearest segment within NearestRescue of their centroid.
func (a *Aggregator) Segments(ctx context.Context, features []*model.Feature, cfg SegmentConfig) (SegmentSummary, error) {
	sum := SegmentSummary{Segments: len(features)}
	columns := SegmentColumns(cfg)

	shapes := make([]*spatial.Shape, len(features))
	for i, f := range features {
		s, outcome, err := a.engine.Prepare(f.Geom)
		if err != nil {
			return sum, eris.Wrapf(err, "aggregate: prepare segment %d", i)
		}
		if outcome == spatial.Dropped {
			sum.Dropped++
			continue
		}
		shapes[i] = s
	}
	idx := a.engine.NewIndex(shapes)
	defer idx.Destroy()
	defer func() {
		for _, s := range shapes {
			if s != nil {
				s.G.Destroy()
			}
		}
	}()

	err := a.eachBatch(ctx, cfg.BatchSize, "segments", func(i int) error {
		st := &model.StreetStats{Values: make(map[string]float64, len(columns))}
		for _, c := range columns {
			st.Values[c] = model.Missing
		}
		a.blocks[i].Streets = st
		if a.shapes[i] == nil {
			return nil
		}

		target := a.shapes[i]
		if cfg.EdgeBuffer > 0 {
			grown, err := a.engine.Buffer(target, cfg.EdgeBuffer)
			if err != nil {
				return err
			}
			defer grown.G.Destroy()
			target = grown
		}
		ids, pieces, err := spatial.Clip(target, idx, true)
		if err != nil {
			return err
		}
		weights := make([]float64, 0, len(pieces))
		segs := make([]*model.Feature, 0, len(pieces))
		for j, p := range pieces {
			if w := p.Length(); w > 0 {
				weights = append(weights, w)
				segs = append(segs, features[ids[j]])
			}
		}
		spatial.Destroy(pieces)

		if len(segs) == 0 {
			return a.rescueStreets(st, i, idx, features, cfg, &sum)
		}
		sum.BlocksWithStreets++
		fillStreetStats(st, segs, weights, cfg)
		return nil
	})
	if err != nil {
		return sum, err
	}

	a.log.Info("street segments aggregated",
		zap.Int("segments", sum.Segments),
		zap.Int("dropped", sum.Dropped),
		zap.Int("blocks_with_streets", sum.BlocksWithStreets),
		zap.Int("rescued", sum.Rescued),
		zap.Int("unreached", sum.Unreached),
		zap.Strings("metrics", cfg.Metrics),
	)
	return sum, nil
}

func fillStreetStats(st *model.StreetStats, segs []*model.Feature, weights []float64, cfg SegmentConfig) {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	st.Length = total

	xs := make([]float64, len(segs))
	for _, m := range cfg.Metrics {
		for j, f := range segs {
			xs[j] = f.Values[m]
		}
		st.Values[m+"_lenw_mean"] = weightedMean(xs, weights)
		st.Values[m+"_p90"] = quantile(0.9, xs)
	}
	if !cfg.HasHazard {
		return
	}

	for _, k := range cfg.HazardCategories {
		var lenK float64
		sub := make([]float64, len(weights))
		for j, f := range segs {
			if f.Hazard == k {
				lenK += weights[j]
				sub[j] = weights[j]
			}
		}
		share := 0.0
		if total > 0 {
			share = lenK / total
		}
		st.Values[shareColumn(k)] = share

		for _, m := range cfg.Metrics {
			for j, f := range segs {
				xs[j] = f.Values[m]
			}
			st.Values[hazardMeanColumn(m, k)] = weightedMean(xs, sub)
		}
	}
}

func (a *Aggregator) rescueStreets(st *model.StreetStats, i int, idx *spatial.Index, features []*model.Feature, cfg SegmentConfig, sum *SegmentSummary) error {
	if cfg.NearestRescue <= 0 {
		sum.Unreached++
		return nil
	}
	c, err := a.engine.Centroid(a.shapes[i])
	if err != nil {
		return err
	}
	defer c.G.Destroy()

	j, dist, err := spatial.Nearest(idx, c, cfg.NearestRescue)
	if err != nil {
		return err
	}
	if j < 0 {
		sum.Unreached++
		return nil
	}
	f := features[j]
	for _, m := range cfg.Metrics {
		st.Values[m+"_near"] = f.Values[m]
	}
	if cfg.HasHazard && f.Hazard >= 0 {
		st.Values[ColHazardNear] = float64(f.Hazard)
	}
	st.Values[ColNearDist] = dist
	st.Rescued = true
	sum.Rescued++
	return nil
}
