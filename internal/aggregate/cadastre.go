package aggregate

import (
	"context"

	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/spacematrix/internal/model"
	"github.com/sells-group/spacematrix/internal/spatial"
)

// Cadastre attributes cadastral points to blocks and sums their built and
// land areas (F) per block. Blocks without any attributed value get 0, and
// n_props counts every attributed point whether or not it carried areas.
func (a *Aggregator) Cadastre(ctx context.Context, features []*model.Feature, cfg spatial.AttributorConfig) (spatial.Stats, error) {
	attrs, stats, err := a.attribute(ctx, features, cfg)
	if err != nil {
		return stats, err
	}

	built := make([][]float64, len(a.blocks))
	land := make([][]float64, len(a.blocks))
	levels := make([][]float64, len(a.blocks))
	counts := make([]int, len(a.blocks))
	for _, at := range attrs {
		if !at.Matched() {
			continue
		}
		f := features[at.Feature]
		built[at.Block] = append(built[at.Block], f.BuiltArea)
		land[at.Block] = append(land[at.Block], f.LandArea)
		levels[at.Block] = append(levels[at.Block], f.Levels)
		counts[at.Block]++
	}

	withF, props := 0, 0
	for i, b := range a.blocks {
		b.Cadastre = model.CadastreStats{
			BuiltArea:     model.OrZero(sumMinCount(built[i])),
			LandArea:      model.OrZero(sumMinCount(land[i])),
			PropertyCount: counts[i],
			Levels:        meanMinCount(levels[i]),
		}
		if b.Cadastre.BuiltArea > 0 {
			withF++
		}
		props += counts[i]
	}

	a.log.Info("cadastral areas aggregated",
		zap.Int("blocks_with_f", withF),
		zap.Int("n_props", props),
	)
	return stats, nil
}

// ParcelCentroids counts parcel centroids per block (n_predios) within
// radius. Blocks without centroids get a count of 0.
func (a *Aggregator) ParcelCentroids(ctx context.Context, features []*model.Feature, radius float64, batchSize int) (spatial.Stats, error) {
	attrs, stats, err := a.attribute(ctx, features, spatial.AttributorConfig{MaxDist: radius, BatchSize: batchSize})
	if err != nil {
		return stats, err
	}
	counts := make([]float64, len(a.blocks))
	for _, at := range attrs {
		if at.Matched() {
			counts[at.Block]++
		}
	}
	for i, b := range a.blocks {
		b.Parcels.Count = counts[i]
		b.Parcels.AreaMean = model.Div(b.Parcels.AreaTotal, b.Parcels.Count)
	}
	return stats, nil
}

// Parcels sums parcel polygon areas per block, joining each parcel through
// its centroid within radius. Invalid parcels are skipped regardless of the
// geometry policy. Blocks without parcels keep a Missing total; the mean
// parcel area divides by n_predios when that count is known.
func (a *Aggregator) Parcels(ctx context.Context, features []*model.Feature, radius float64, batchSize int) (spatial.Stats, error) {
	areas := make([]float64, len(features))
	centroids := make([]geom.T, len(features))
	invalid := 0
	for i, f := range features {
		s, err := a.engine.Convert(f.Geom)
		if err != nil {
			return spatial.Stats{}, err
		}
		if s == nil {
			invalid++
			continue
		}
		if s.G.IsEmpty() || !s.G.IsValid() {
			s.G.Destroy()
			invalid++
			continue
		}
		areas[i] = s.G.Area()
		cg := s.G.Centroid()
		s.G.Destroy()
		c, err := a.engine.ToGeom(cg)
		cg.Destroy()
		if err != nil {
			return spatial.Stats{}, err
		}
		centroids[i] = c
	}

	attrs, stats, err := a.attributeGeoms(ctx, centroids, spatial.AttributorConfig{MaxDist: radius, BatchSize: batchSize})
	if err != nil {
		return stats, err
	}
	perBlock := make([][]float64, len(a.blocks))
	for _, at := range attrs {
		if at.Matched() {
			perBlock[at.Block] = append(perBlock[at.Block], areas[at.Feature])
		}
	}
	for i, b := range a.blocks {
		b.Parcels.AreaTotal = sumMinCount(perBlock[i])
		b.Parcels.AreaMean = model.Div(b.Parcels.AreaTotal, b.Parcels.Count)
	}

	a.log.Info("parcel areas aggregated",
		zap.Int("parcels", len(features)),
		zap.Int("invalid", invalid),
		zap.Int("matched", stats.Total-stats.Unmatched-stats.Skipped),
	)
	return stats, nil
}

func (a *Aggregator) attribute(ctx context.Context, features []*model.Feature, cfg spatial.AttributorConfig) ([]model.Attribution, spatial.Stats, error) {
	geoms := make([]geom.T, len(features))
	for i, f := range features {
		geoms[i] = f.Geom
	}
	return a.attributeGeoms(ctx, geoms, cfg)
}

func (a *Aggregator) attributeGeoms(ctx context.Context, geoms []geom.T, cfg spatial.AttributorConfig) ([]model.Attribution, spatial.Stats, error) {
	return spatial.NewAttributor(a.engine, a.index, cfg).Attribute(ctx, geoms)
}
