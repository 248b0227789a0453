// Package loader reads input layers from GeoPackage, shapefile, GeoJSON and
// tabular files and reprojects them into the common planar CRS.
package loader

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/spacematrix/internal/config"
	"github.com/sells-group/spacematrix/internal/geojson"
	"github.com/sells-group/spacematrix/internal/gpkg"
	"github.com/sells-group/spacematrix/internal/model"
	"github.com/sells-group/spacematrix/internal/reproject"
	"github.com/sells-group/spacematrix/internal/shapefile"
	"github.com/sells-group/spacematrix/internal/tabular"
)

// maxConcurrentReads bounds how many input files are decoded at once.
const maxConcurrentReads = 4

// Stager turns a configured location (URL, archive or path) into a local
// file path.
type Stager interface {
	Stage(ctx context.Context, location, member string) (string, error)
}

// Option configures a Loader.
type Option func(*Loader)

// WithStager resolves every input through s before opening it.
func WithStager(s Stager) Option {
	return func(l *Loader) {
		l.stager = s
	}
}

// Loader reads layers into a single target CRS.
type Loader struct {
	targetEPSG  int
	targetProj4 string
	stager      Stager

	mu     sync.Mutex
	newest time.Time
}

// New returns a Loader for the configured target CRS. Geographic targets are
// rejected because areas and distances would be measured in degrees.
func New(crs config.CRSConfig, opts ...Option) (*Loader, error) {
	if crs.TargetProj4 == "" && reproject.IsGeographic(crs.TargetEPSG) {
		return nil, eris.Errorf("loader: target EPSG:%d is geographic; choose a planar CRS", crs.TargetEPSG)
	}
	l := &Loader{targetEPSG: crs.TargetEPSG, targetProj4: crs.TargetProj4}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// TargetSRID is the SRID stamped on every loaded geometry.
func (l *Loader) TargetSRID() int {
	return l.targetEPSG
}

// NewestInput returns the latest modification time among the files loaded so
// far. Writers use it as a reproducible timestamp.
func (l *Loader) NewestInput() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.newest
}

// Load reads one layer and reprojects it.
func (l *Loader) Load(ctx context.Context, ref config.LayerRef) (*model.Layer, error) {
	if !ref.IsSet() {
		return nil, eris.New("loader: no file configured")
	}
	if l.stager != nil {
		local, err := l.stager.Stage(ctx, ref.File, ref.Member)
		if err != nil {
			return nil, eris.Wrapf(err, "loader: stage %s", ref.File)
		}
		ref.File = local
	}
	info, err := os.Stat(ref.File)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: stat %s", ref.File)
	}
	l.touch(info.ModTime())

	start := time.Now()
	layer, err := read(ctx, ref)
	if err != nil {
		return nil, err
	}

	srcSRID := layer.SRID
	if ref.SourceEPSG != 0 {
		srcSRID = ref.SourceEPSG
	}
	if srcSRID == 0 {
		zap.L().Warn("loader: source CRS unknown, assuming target CRS",
			zap.String("file", ref.File),
			zap.Int("target_epsg", l.targetEPSG),
		)
		srcSRID = l.targetEPSG
	}

	tr, err := reproject.New(srcSRID, l.targetEPSG, l.targetProj4)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: %s", ref.File)
	}
	for i := range layer.Records {
		g, err := tr.Apply(layer.Records[i].Geom)
		if err != nil {
			return nil, eris.Wrapf(err, "loader: reproject feature %d of %s", layer.Records[i].FID, ref.File)
		}
		layer.Records[i].Geom = g
	}
	layer.SRID = l.targetEPSG

	zap.L().Info("loader: layer loaded",
		zap.String("file", ref.File),
		zap.String("layer", layer.Name),
		zap.Int("features", layer.Len()),
		zap.String("transform", tr.String()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return layer, nil
}

// LoadAll reads every configured layer concurrently. Unset refs are skipped
// and absent from the result. Only file decoding runs in parallel; all
// geometry work downstream stays sequential.
func (l *Loader) LoadAll(ctx context.Context, refs map[string]config.LayerRef) (map[string]*model.Layer, error) {
	names := make([]string, 0, len(refs))
	for name, ref := range refs {
		if ref.IsSet() {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	results := make([]*model.Layer, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentReads)
	for i, name := range names {
		g.Go(func() error {
			layer, err := l.Load(gctx, refs[name])
			if err != nil {
				return eris.Wrapf(err, "loader: %s", name)
			}
			results[i] = layer
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]*model.Layer, len(names))
	for i, name := range names {
		out[name] = results[i]
	}
	return out, nil
}

func (l *Loader) touch(t time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t.After(l.newest) {
		l.newest = t
	}
}

func read(ctx context.Context, ref config.LayerRef) (*model.Layer, error) {
	switch strings.ToLower(filepath.Ext(ref.File)) {
	case ".gpkg":
		f, err := gpkg.Open(ref.File)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return f.ReadLayer(ctx, ref.Layer)
	case ".shp":
		return shapefile.Read(ref.File, ref.SourceEPSG)
	case ".geojson", ".json":
		return geojson.Read(ref.File, ref.SourceEPSG)
	case ".csv", ".txt", ".xlsx":
		return tabular.ReadPoints(ctx, ref.File, tabular.PointOptions{
			SRID:  ref.SourceEPSG,
			Sheet: ref.Layer,
		})
	default:
		return nil, eris.Errorf("loader: unsupported input format %s", ref.File)
	}
}

// LayerSummary describes one layer available in an input file.
type LayerSummary struct {
	Name     string
	Features int64
	SRID     int
	DataType string
}

// ListLayers enumerates the layers of a file. Single-layer formats report
// one entry named after the file.
func ListLayers(ctx context.Context, path string) ([]LayerSummary, error) {
	if strings.EqualFold(filepath.Ext(path), ".gpkg") {
		f, err := gpkg.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		infos, err := f.Layers(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]LayerSummary, len(infos))
		for i, li := range infos {
			out[i] = LayerSummary{Name: li.Name, Features: li.Count, SRID: li.SRID, DataType: li.DataType}
		}
		return out, nil
	}

	layer, err := read(ctx, config.LayerRef{File: path})
	if err != nil {
		return nil, err
	}
	return []LayerSummary{{Name: layer.Name, Features: int64(layer.Len()), SRID: layer.SRID, DataType: "features"}}, nil
}
