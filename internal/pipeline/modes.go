package pipeline

import (
	"context"

	"github.com/sells-group/spacematrix/internal/aggregate"
	"github.com/sells-group/spacematrix/internal/export"
	"github.com/sells-group/spacematrix/internal/model"
	"github.com/sells-group/spacematrix/internal/schema"
)

// Classify assigns typologies to a block layer that already carries FSI and
// GSI, and optionally L_equiv and n_props. The source columns are kept and
// the typology columns appended.
func (p *Pipeline) Classify(ctx context.Context) (*model.RunResult, error) {
	t := p.start(model.RunModeClassify)
	refs, err := p.refs([]string{InputBlocks})
	if err != nil {
		return t.result, err
	}
	layers, err := p.load(ctx, t, refs)
	if err != nil {
		return t.result, err
	}
	layer := layers[InputBlocks]

	var blocks []*model.Block
	idCol := export.DefaultIDColumn
	err = t.phase(PhaseBlocks, func() (map[string]any, error) {
		fsiCol, err := p.registry.Require(layer, schema.FSI)
		if err != nil {
			return nil, err
		}
		gsiCol, err := p.registry.Require(layer, schema.GSI)
		if err != nil {
			return nil, err
		}
		lCol, hasL := p.registry.Resolve(layer, schema.L)
		nCol, hasN := p.registry.Resolve(layer, schema.PropertyCount)
		if !hasN {
			t.log.Warn("block layer has no n_props column, assuming no linked properties")
		}
		if col, ok := p.registry.Resolve(layer, schema.BlockID); ok {
			idCol = col
		}

		built, shapes, err := aggregate.BuildBlocks(p.engine, layer, p.registry)
		if err != nil {
			return nil, err
		}
		destroyShapes(shapes)
		blocks = built

		for i, b := range blocks {
			props := layer.Records[i].Props
			b.Indices.FSI = schema.Float(props[fsiCol])
			b.Indices.GSI = schema.Float(props[gsiCol])
			if hasL {
				b.Indices.L = schema.Float(props[lCol])
			}
			if hasN {
				b.Cadastre.PropertyCount = schema.Int(props[nCol], 0)
			}
		}
		t.result.Blocks = len(blocks)
		return map[string]any{"blocks": len(blocks), "has_l": hasL, "has_n_props": hasN}, nil
	})
	if err != nil {
		return t.result, err
	}

	summary := p.classify(t, blocks)

	exp := p.exporter()
	err = t.phase(PhaseExport, func() (map[string]any, error) {
		tbl := export.BlockTable(blocks, export.BlockTableOptions{
			SRID:         p.loader.TargetSRID(),
			IDColumn:     idCol,
			SourceFields: layer.Fields,
			Typology:     true,
		})
		if err := exp.Blocks(ctx, tbl); err != nil {
			return nil, err
		}
		err := exp.Typology(p.cfg.Paths.OutTag, p.classifier, summary, export.Params{
			CRS:         p.cfg.CRS,
			Attribution: p.cfg.Attribution,
			Inputs:      refs,
		})
		return map[string]any{"layer": exp.Paths().Layer, "columns": len(tbl.Columns)}, err
	})
	if err != nil {
		return t.result, err
	}

	paths := exp.Paths()
	return t.done(paths.GPKG, paths.CSV, paths.Summary, paths.Params, paths.Note), nil
}

// Segments aggregates street segments onto blocks and writes the block
// layer with the street metrics appended.
func (p *Pipeline) Segments(ctx context.Context) (*model.RunResult, error) {
	t := p.start(model.RunModeSegments)
	refs, err := p.refs([]string{InputBlocks, InputSegments})
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

	streets, err := p.segments(ctx, t, agg, layers[InputSegments])
	if err != nil {
		return t.result, err
	}

	exp := p.exporter()
	err = t.phase(PhaseExport, func() (map[string]any, error) {
		tbl := export.BlockTable(agg.Blocks(), export.BlockTableOptions{
			SRID:         p.loader.TargetSRID(),
			IDColumn:     idCol,
			SourceFields: layers[InputBlocks].Fields,
			Streets:      streets,
		})
		if err := exp.Blocks(ctx, tbl); err != nil {
			return nil, err
		}
		return map[string]any{"layer": exp.Paths().Layer, "columns": len(tbl.Columns)}, nil
	})
	if err != nil {
		return t.result, err
	}

	paths := exp.Paths()
	return t.done(paths.GPKG, paths.CSV), nil
}

