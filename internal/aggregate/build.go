package aggregate

import (
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/spacematrix/internal/model"
	"github.com/sells-group/spacematrix/internal/schema"
	"github.com/sells-group/spacematrix/internal/spatial"
)

// AllMunicipalities is the municipality code used when blocks carry no
// CVEGEO column.
const AllMunicipalities = "ALL"

// Municipality extracts the three-digit municipality code from a CVEGEO key,
// left-padding the key with zeros to 16 characters first.
func Municipality(cvegeo string) string {
	cvegeo = strings.TrimSpace(cvegeo)
	if len(cvegeo) < 16 {
		cvegeo = strings.Repeat("0", 16-len(cvegeo)) + cvegeo
	}
	return cvegeo[2:5]
}

// BuildBlocks turns the block layer into blocks and their prepared shapes.
// Blocks without a block_id column are identified by their row position.
// A block whose geometry is dropped by the geometry policy keeps its row but
// gets a nil shape, so nothing is ever attributed to it.
func BuildBlocks(e *spatial.Engine, layer *model.Layer, reg *schema.Registry) ([]*model.Block, []*spatial.Shape, error) {
	log := zap.L().With(zap.String("component", "aggregate"))

	idCol, hasID := reg.Resolve(layer, schema.BlockID)
	if !hasID {
		log.Warn("block layer has no identifier column, using row position",
			zap.String("layer", layer.Name),
		)
	}
	cveCol, hasCVE := reg.Resolve(layer, schema.CVEGEO)

	blocks := make([]*model.Block, len(layer.Records))
	shapes := make([]*spatial.Shape, len(layer.Records))
	dropped := 0
	for i, rec := range layer.Records {
		id := strconv.Itoa(i)
		if hasID {
			if v := schema.String(rec.Props[idCol]); v != "" {
				id = v
			}
		}

		s, outcome, err := e.Prepare(rec.Geom)
		if err != nil {
			return nil, nil, err
		}
		area := model.Missing
		if outcome == spatial.Dropped {
			dropped++
			if a, err := e.Area(rec.Geom); err == nil && rec.Geom != nil {
				area = a
			}
		} else {
			area = s.G.Area()
		}

		b := model.NewBlock(i, id, rec.Geom, area, rec)
		b.Municipality = AllMunicipalities
		if hasCVE {
			b.Municipality = Municipality(schema.String(rec.Props[cveCol]))
		}
		blocks[i] = b
		shapes[i] = s
	}

	log.Info("blocks prepared",
		zap.Int("blocks", len(blocks)),
		zap.Int("geometry_dropped", dropped),
		zap.String("policy", string(e.Policy())),
	)
	return blocks, shapes, nil
}

// BuildFeatures converts a source layer into features of the given kind,
// coercing the canonical numeric columns it carries. Zero cadastral areas are
// treated as missing. Absent optional columns are logged and left Missing.
func BuildFeatures(layer *model.Layer, kind model.FeatureKind, reg *schema.Registry) []*model.Feature {
	log := zap.L().With(zap.String("component", "aggregate"), zap.String("layer", layer.Name))

	var builtCol, landCol, levelsCol string
	var hasBuilt, hasLand, hasLevels bool
	if kind == model.KindCadastralPoint {
		builtCol, hasBuilt = reg.Resolve(layer, schema.BuiltArea)
		landCol, hasLand = reg.Resolve(layer, schema.LandArea)
		levelsCol, hasLevels = reg.Resolve(layer, schema.Levels)
		if !hasBuilt {
			log.Warn("cadastral layer has no built area column, F will be zero", zap.Strings("aliases", aliases(reg, schema.BuiltArea)))
		}
		if !hasLand {
			log.Warn("cadastral layer has no land area column", zap.Strings("aliases", aliases(reg, schema.LandArea)))
		}
	}

	out := make([]*model.Feature, len(layer.Records))
	for i, rec := range layer.Records {
		f := model.NewFeature(i, kind, rec.Geom)
		if hasBuilt {
			f.BuiltArea = schema.PositiveOrMissing(rec.Props[builtCol])
		}
		if hasLand {
			f.LandArea = schema.PositiveOrMissing(rec.Props[landCol])
		}
		if hasLevels {
			f.Levels = schema.Float(rec.Props[levelsCol])
		}
		out[i] = f
	}
	return out
}

// SegmentFields describes which columns feed street segment metrics.
type SegmentFields struct {
	Metrics           []string
	HazardColumn      string
	TemperatureColumn string
	// HazardThresholds are the lower bounds of hazard categories 1 and 2
	// when the category is derived from temperature.
	HazardThresholds []float64
}

// BuildSegments converts a street segment layer into features. It returns
// the metrics actually present in the layer, in configured order; absent
// metrics are skipped with a warning. Hazard is read from the hazard column,
// or derived from the temperature column when only that exists, and is -1
// when neither is available.
func BuildSegments(layer *model.Layer, reg *schema.Registry, fields SegmentFields) ([]*model.Feature, []string, bool) {
	log := zap.L().With(zap.String("component", "aggregate"), zap.String("layer", layer.Name))

	resolve := func(name string) (string, bool) {
		if name == "" {
			return "", false
		}
		if col, ok := reg.Resolve(layer, name); ok {
			return col, true
		}
		adhoc := schema.NewRegistry([]schema.Field{{Key: name, Aliases: []string{name}}})
		return adhoc.Resolve(layer, name)
	}

	metrics := make([]string, 0, len(fields.Metrics))
	columns := make(map[string]string, len(fields.Metrics))
	for _, m := range fields.Metrics {
		col, ok := resolve(m)
		if !ok {
			log.Warn("segment metric column missing, skipping", zap.String("metric", m))
			continue
		}
		metrics = append(metrics, m)
		columns[m] = col
	}

	hazardCol, hasHazard := reg.Resolve(layer, schema.Hazard)
	if !hasHazard {
		hazardCol, hasHazard = resolve(fields.HazardColumn)
	}
	tempCol, hasTemp := reg.Resolve(layer, schema.Temperature)
	if !hasTemp {
		tempCol, hasTemp = resolve(fields.TemperatureColumn)
	}
	deriveHazard := !hasHazard && hasTemp && len(fields.HazardThresholds) == 2
	if !hasHazard && !deriveHazard {
		log.Warn("segment layer has no hazard or temperature column, hazard shares skipped")
	}

	out := make([]*model.Feature, len(layer.Records))
	for i, rec := range layer.Records {
		f := model.NewFeature(i, model.KindSegment, rec.Geom)
		f.Values = make(map[string]float64, len(metrics))
		for _, m := range metrics {
			f.Values[m] = schema.Float(rec.Props[columns[m]])
		}
		switch {
		case hasHazard:
			f.Hazard = schema.Int(rec.Props[hazardCol], -1)
		case deriveHazard:
			f.Hazard = HazardFromTemperature(schema.Float(rec.Props[tempCol]), fields.HazardThresholds[0], fields.HazardThresholds[1])
		default:
			f.Hazard = -1
		}
		out[i] = f
	}
	return out, metrics, hasHazard || deriveHazard
}

// HazardFromTemperature maps an air temperature to a hazard category:
// 1 for lo <= t < hi, 2 for t >= hi, 0 otherwise. Missing temperatures
// yield -1.
func HazardFromTemperature(t, lo, hi float64) int {
	switch {
	case model.IsMissing(t):
		return -1
	case t >= hi:
		return 2
	case t >= lo:
		return 1
	default:
		return 0
	}
}

func aliases(reg *schema.Registry, key string) []string {
	if f := reg.ByKey(key); f != nil {
		return f.Aliases
	}
	return nil
}
