package pipeline

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spacematrix/internal/aggregate"
	"github.com/sells-group/spacematrix/internal/classify"
	"github.com/sells-group/spacematrix/internal/config"
	"github.com/sells-group/spacematrix/internal/export"
	"github.com/sells-group/spacematrix/internal/indicator"
	"github.com/sells-group/spacematrix/internal/model"
	"github.com/sells-group/spacematrix/internal/schema"
	"github.com/sells-group/spacematrix/internal/spatial"
)

// Run executes the full pipeline: blocks, footprints and cadastral points
// are required; parcel centroids, parcels and street segments are used when
// configured.
func (p *Pipeline) Run(ctx context.Context) (*model.RunResult, error) {
	t := p.start(model.RunModeFull)
	refs, err := p.refs(
		[]string{InputBlocks, InputBuildings, InputCadastre},
		InputParcelCentroids, InputParcels, InputSegments,
	)
	if err != nil {
		return t.result, err
	}

	layers, err := p.load(ctx, t, refs)
	if err != nil {
		return t.result, err
	}

	agg, idCol, err := p.blocks(t, layers[InputBlocks])
	if err != nil {
		return t.result, err
	}
	defer agg.Close()
	blocks := agg.Blocks()
	attr := p.cfg.Attribution

	err = t.phase(PhaseFootprints, func() (map[string]any, error) {
		features := aggregate.BuildFeatures(layers[InputBuildings], model.KindFootprint, p.registry)
		sum, err := agg.Footprints(ctx, features, attr.MinFootprintArea, attr.BatchSize)
		return map[string]any{
			"footprints":     sum.Input,
			"repaired":       sum.Repaired,
			"dropped":        sum.Dropped,
			"slivers":        sum.Slivers,
			"blocks_covered": sum.BlocksCovered,
		}, err
	})
	if err != nil {
		return t.result, err
	}

	err = t.phase(PhaseCadastre, func() (map[string]any, error) {
		features := aggregate.BuildFeatures(layers[InputCadastre], model.KindCadastralPoint, p.registry)
		stats, err := agg.Cadastre(ctx, features, spatial.AttributorConfig{
			MaxDist:    attr.MaxJoinDist,
			RescueDist: attr.RescueJoinDist,
			BatchSize:  attr.BatchSize,
		})
		return statsMeta(stats), err
	})
	if err != nil {
		return t.result, err
	}

	if layer, ok := layers[InputParcelCentroids]; ok {
		err = t.phase(PhaseParcelCentroids, func() (map[string]any, error) {
			features := aggregate.BuildFeatures(layer, model.KindParcelCentroid, p.registry)
			stats, err := agg.ParcelCentroids(ctx, features, attr.ParcelJoinDist, attr.BatchSize)
			return statsMeta(stats), err
		})
		if err != nil {
			return t.result, err
		}
	} else {
		t.skip(PhaseParcelCentroids, "paths.parcel_centroids not configured")
	}

	if layer, ok := layers[InputParcels]; ok {
		err = t.phase(PhaseParcels, func() (map[string]any, error) {
			features := aggregate.BuildFeatures(layer, model.KindParcel, p.registry)
			stats, err := agg.Parcels(ctx, features, attr.ParcelJoinDist, attr.BatchSize)
			return statsMeta(stats), err
		})
		if err != nil {
			return t.result, err
		}
	} else {
		t.skip(PhaseParcels, "paths.parcels not configured")
	}

	var streets []string
	var segCfg *config.SegmentsConfig
	if layer, ok := layers[InputSegments]; ok {
		streets, err = p.segments(ctx, t, agg, layer)
		if err != nil {
			return t.result, err
		}
		segCfg = &p.cfg.Segments
	} else {
		t.skip(PhaseSegments, "paths.segments not configured")
	}

	_ = t.phase(PhaseIndicators, func() (map[string]any, error) {
		indicator.Apply(blocks)
		flags := map[int]int{}
		for _, b := range blocks {
			flags[b.Indices.DQFlag]++
		}
		return map[string]any{
			"dq_ok":           flags[indicator.DQOK],
			"dq_no_built":     flags[indicator.DQNoBuiltArea],
			"dq_no_footprint": flags[indicator.DQNoFootprint],
			"dq_no_data":      flags[indicator.DQNoData],
		}, nil
	})

	summary := p.classify(t, blocks)

	exp := p.exporter()
	err = t.phase(PhaseExport, func() (map[string]any, error) {
		tbl := export.BlockTable(blocks, export.BlockTableOptions{
			SRID:         p.loader.TargetSRID(),
			IDColumn:     idCol,
			SourceFields: layers[InputBlocks].Fields,
			Indicators:   true,
			Typology:     true,
			Streets:      streets,
		})
		if err := exp.Blocks(ctx, tbl); err != nil {
			return nil, err
		}
		if err := exp.QC(indicator.QC(blocks)); err != nil {
			return nil, err
		}
		err := exp.Typology(p.cfg.Paths.OutTag, p.classifier, summary, export.Params{
			CRS:         p.cfg.CRS,
			Attribution: p.cfg.Attribution,
			Segments:    segCfg,
			Inputs:      refs,
		})
		return map[string]any{"layer": exp.Paths().Layer, "columns": len(tbl.Columns)}, err
	})
	if err != nil {
		return t.result, err
	}

	paths := exp.Paths()
	return t.done(paths.GPKG, paths.CSV, paths.QC, paths.Summary, paths.Params, paths.Note), nil
}

// load reads the selected inputs concurrently.
func (p *Pipeline) load(ctx context.Context, t *tracker, refs map[string]config.LayerRef) (map[string]*model.Layer, error) {
	var layers map[string]*model.Layer
	err := t.phase(PhaseLoad, func() (map[string]any, error) {
		var err error
		layers, err = p.loader.LoadAll(ctx, refs)
		if err != nil {
			return nil, err
		}
		meta := make(map[string]any, len(layers))
		for name, l := range layers {
			meta[name] = l.Len()
		}
		return meta, nil
	})
	return layers, err
}

// blocks prepares the block layer and returns an aggregator over it along
// with the identifier column to export.
func (p *Pipeline) blocks(t *tracker, layer *model.Layer) (*aggregate.Aggregator, string, error) {
	var agg *aggregate.Aggregator
	idCol := export.DefaultIDColumn
	err := t.phase(PhaseBlocks, func() (map[string]any, error) {
		blocks, shapes, err := aggregate.BuildBlocks(p.engine, layer, p.registry)
		if err != nil {
			return nil, err
		}
		agg, err = aggregate.New(p.engine, blocks, shapes)
		if err != nil {
			destroyShapes(shapes)
			return nil, err
		}
		if col, ok := p.registry.Resolve(layer, schema.BlockID); ok {
			idCol = col
		}
		t.result.Blocks = len(blocks)
		return map[string]any{"blocks": len(blocks), "id_column": idCol}, nil
	})
	if err != nil {
		return nil, "", eris.Wrap(err, "pipeline: prepare blocks")
	}
	return agg, idCol, nil
}

// segments aggregates street segments onto the blocks of agg and returns
// the street value columns produced.
func (p *Pipeline) segments(ctx context.Context, t *tracker, agg *aggregate.Aggregator, layer *model.Layer) ([]string, error) {
	var columns []string
	err := t.phase(PhaseSegments, func() (map[string]any, error) {
		sc := p.cfg.Segments
		features, metrics, hasHazard := aggregate.BuildSegments(layer, p.registry, aggregate.SegmentFields{
			Metrics:           sc.Metrics,
			HazardColumn:      sc.HazardColumn,
			TemperatureColumn: sc.TemperatureColumn,
			HazardThresholds:  sc.HazardThresholds,
		})
		cfg := aggregate.SegmentConfig{
			EdgeBuffer:       sc.EdgeBuffer,
			NearestRescue:    sc.NearestRescue,
			BatchSize:        sc.BatchSize,
			Metrics:          metrics,
			HazardCategories: sc.HazardCategories,
			HasHazard:        hasHazard,
		}
		sum, err := agg.Segments(ctx, features, cfg)
		if err != nil {
			return nil, err
		}
		columns = aggregate.SegmentColumns(cfg)
		return map[string]any{
			"segments":            sum.Segments,
			"dropped":             sum.Dropped,
			"metrics":             len(metrics),
			"hazard":              hasHazard,
			"blocks_with_streets": sum.BlocksWithStreets,
			"rescued":             sum.Rescued,
			"unreached":           sum.Unreached,
		}, nil
	})
	return columns, err
}

func (p *Pipeline) classify(t *tracker, blocks []*model.Block) classify.Summary {
	var s classify.Summary
	_ = t.phase(PhaseClassify, func() (map[string]any, error) {
		s = p.classifier.Apply(blocks)
		meta := make(map[string]any, len(s.Metrics()))
		for _, m := range s.Metrics() {
			meta[m[0].(string)] = m[1]
		}
		return meta, nil
	})
	return s
}
