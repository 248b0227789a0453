// Package pipeline wires the loader, aggregation, indicator, classification
// and export stages into runs.
package pipeline

import (
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spacematrix/internal/classify"
	"github.com/sells-group/spacematrix/internal/config"
	"github.com/sells-group/spacematrix/internal/export"
	"github.com/sells-group/spacematrix/internal/fetcher"
	"github.com/sells-group/spacematrix/internal/loader"
	"github.com/sells-group/spacematrix/internal/model"
	"github.com/sells-group/spacematrix/internal/schema"
	"github.com/sells-group/spacematrix/internal/spatial"
)

// Phase names.
const (
	PhaseLoad            = "load"
	PhaseBlocks          = "blocks"
	PhaseFootprints      = "footprints"
	PhaseCadastre        = "cadastre"
	PhaseParcelCentroids = "parcel_centroids"
	PhaseParcels         = "parcels"
	PhaseSegments        = "segments"
	PhaseIndicators      = "indicators"
	PhaseClassify        = "classify"
	PhaseExport          = "export"
)

// Input layer names, as used in configuration and the params audit.
const (
	InputBlocks          = "blocks"
	InputBuildings       = "buildings"
	InputCadastre        = "cadastre"
	InputParcelCentroids = "parcel_centroids"
	InputParcels         = "parcels"
	InputSegments        = "segments"
)

// Pipeline runs the stages for one configuration. It is not safe for
// concurrent use.
type Pipeline struct {
	cfg        *config.Config
	loader     *loader.Loader
	registry   *schema.Registry
	engine     *spatial.Engine
	classifier *classify.Classifier
	mirror     *export.Mirror
}

// New validates the configuration-derived components. mirror may be nil.
func New(cfg *config.Config, mirror *export.Mirror) (*Pipeline, error) {
	policy, err := spatial.ParsePolicy(cfg.Attribution.GeometryPolicy)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: geometry policy")
	}
	ld, err := loader.New(cfg.CRS, loader.WithStager(fetcher.NewStager(fetcher.Options{
		CacheDir:    cfg.Fetch.CacheDir,
		Timeout:     cfg.Fetch.Timeout,
		RatePerHost: cfg.Fetch.RatePerHost,
		UserAgent:   cfg.Fetch.UserAgent,
	})))
	if err != nil {
		return nil, err
	}
	cl, err := classify.FromConfig(cfg.Classify)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		cfg:        cfg,
		loader:     ld,
		registry:   schema.NewDefaultRegistry(cfg.Schema.Aliases),
		engine:     spatial.NewEngine(policy),
		classifier: cl,
		mirror:     mirror,
	}, nil
}

// Classifier returns the classifier built from configuration.
func (p *Pipeline) Classifier() *classify.Classifier {
	return p.classifier
}

// Paths returns the artifact locations of a run with the configured tag.
func (p *Pipeline) Paths() export.Paths {
	return export.OutputPaths(p.cfg.Paths.OutputDir, p.cfg.Paths.OutputGPKG, p.cfg.Paths.OutTag)
}

func (p *Pipeline) inputs() map[string]config.LayerRef {
	return map[string]config.LayerRef{
		InputBlocks:          p.cfg.Paths.Blocks,
		InputBuildings:       p.cfg.Paths.Buildings,
		InputCadastre:        p.cfg.Paths.Cadastre,
		InputParcelCentroids: p.cfg.Paths.ParcelCentroids,
		InputParcels:         p.cfg.Paths.Parcels,
		InputSegments:        p.cfg.Paths.Segments,
	}
}

// refs selects the named inputs, failing fast on required ones that are not
// configured.
func (p *Pipeline) refs(required []string, optional ...string) (map[string]config.LayerRef, error) {
	all := p.inputs()
	out := make(map[string]config.LayerRef, len(required)+len(optional))
	for _, name := range required {
		if !all[name].IsSet() {
			return nil, eris.Errorf("pipeline: paths.%s is required", name)
		}
		out[name] = all[name]
	}
	for _, name := range optional {
		if all[name].IsSet() {
			out[name] = all[name]
		}
	}
	return out, nil
}

func (p *Pipeline) exporter() *export.Exporter {
	return export.New(p.Paths(), p.loader.NewestInput(), p.mirror)
}

// tracker records phase outcomes of one run.
type tracker struct {
	result *model.RunResult
	log    *zap.Logger
}

func (p *Pipeline) start(mode model.RunMode) *tracker {
	id := uuid.NewString()
	log := zap.L().With(
		zap.String("component", "pipeline"),
		zap.String("run_id", id),
		zap.String("mode", string(mode)),
	)
	log.Info("pipeline: starting run", zap.String("tag", p.cfg.Paths.OutTag))
	return &tracker{
		result: &model.RunResult{RunID: id, Mode: mode, Tag: p.cfg.Paths.OutTag},
		log:    log,
	}
}

// phase runs fn and records its duration, status and metadata.
func (t *tracker) phase(name string, fn func() (map[string]any, error)) error {
	start := time.Now()
	meta, err := fn()
	pr := model.PhaseResult{
		Name:     name,
		Duration: time.Since(start).Milliseconds(),
		Metadata: meta,
	}
	if err != nil {
		pr.Status = model.PhaseStatusFailed
		pr.Error = err.Error()
		t.log.Error("pipeline: phase failed",
			zap.String("phase", name),
			zap.Int64("duration_ms", pr.Duration),
			zap.Error(err),
		)
	} else {
		pr.Status = model.PhaseStatusComplete
		t.log.Info("pipeline: phase complete",
			zap.String("phase", name),
			zap.Int64("duration_ms", pr.Duration),
			zap.Any("metadata", meta),
		)
	}
	t.result.Phases = append(t.result.Phases, pr)
	return err
}

func (t *tracker) skip(name, reason string) {
	t.log.Info("pipeline: phase skipped", zap.String("phase", name), zap.String("reason", reason))
	t.result.Phases = append(t.result.Phases, model.PhaseResult{
		Name:     name,
		Status:   model.PhaseStatusSkipped,
		Metadata: map[string]any{"reason": reason},
	})
}

func (t *tracker) done(outputs ...string) *model.RunResult {
	t.result.Outputs = outputs
	t.log.Info("pipeline: run complete",
		zap.Int("blocks", t.result.Blocks),
		zap.Strings("outputs", outputs),
	)
	return t.result
}

func statsMeta(s spatial.Stats) map[string]any {
	return map[string]any{
		"features":             s.Total,
		"contained":            s.Contained,
		"nearest":              s.Nearest,
		"rescued":              s.Rescued,
		"unmatched_first_pass": s.UnmatchedFirstPass,
		"unmatched":            s.Unmatched,
		"skipped":              s.Skipped,
	}
}

func destroyShapes(shapes []*spatial.Shape) {
	for _, s := range shapes {
		if s != nil {
			s.G.Destroy()
		}
	}
}
