package pipeline

import (
	"archive/zip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/spacematrix/internal/config"
	"github.com/sells-group/spacematrix/internal/gpkg"
	"github.com/sells-group/spacematrix/internal/model"
	"github.com/sells-group/spacematrix/internal/schema"
)

const srid = 32614

func rect(x0, y0, x1, y1 float64) *geom.Polygon {
	return geom.NewPolygonFlat(geom.XY, []float64{
		x0, y0, x1, y0, x1, y1, x0, y1, x0, y0,
	}, []int{10})
}

func pt(x, y float64) *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{x, y})
}

func writeLayer(t *testing.T, path, name string, cols []model.Column, rows [][]any, geoms []geom.T) {
	t.Helper()
	require.NoError(t, gpkg.WriteTable(context.Background(), path, &model.Table{
		Name:    name,
		SRID:    srid,
		Columns: cols,
		Rows:    rows,
		Geoms:   geoms,
	}, gpkg.WriteOptions{LastChange: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}))
}

// writeInputs creates a GeoPackage holding two blocks: A (10000 m²) with a
// 6000 m² footprint and 18000 m² of built area, and B (10000 m²) with a
// 3000 m² footprint and no cadastral points.
func writeInputs(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "inputs.gpkg")

	writeLayer(t, path, "manzanas",
		[]model.Column{{Name: "manzana_id", Type: model.ColumnText}, {Name: "CVEGEO", Type: model.ColumnText}},
		[][]any{{"A", "0900200010010001"}, {"B", "0901500010010002"}},
		[]geom.T{rect(0, 0, 100, 100), rect(200, 0, 300, 100)},
	)
	writeLayer(t, path, "edificios",
		[]model.Column{{Name: "altura", Type: model.ColumnReal}},
		[][]any{{9.0}, {6.0}, {3.0}},
		[]geom.T{rect(0, 0, 60, 100), rect(10, 10, 50, 50), rect(200, 0, 230, 100)},
	)
	writeLayer(t, path, "catastro",
		[]model.Column{
			{Name: "superficie_construccion", Type: model.ColumnReal},
			{Name: "superficie_terreno", Type: model.ColumnReal},
		},
		[][]any{{9000.0, 5000.0}, {9000.0, 5000.0}, {400.0, 0.0}},
		[]geom.T{pt(10, 10), pt(50, 50), pt(5000, 5000)},
	)
	writeLayer(t, path, "vialidades",
		[]model.Column{{Name: "NACHr500m", Type: model.ColumnReal}},
		[][]any{{2.0}},
		[]geom.T{geom.NewLineStringFlat(geom.XY, []float64{0, -5, 100, -5})},
	)
	return path
}

func testConfig(dir, inputs string) *config.Config {
	cfg := &config.Config{}
	cfg.Paths.Blocks = config.LayerRef{File: inputs, Layer: "manzanas"}
	cfg.Paths.Buildings = config.LayerRef{File: inputs, Layer: "edificios"}
	cfg.Paths.Cadastre = config.LayerRef{File: inputs, Layer: "catastro"}
	cfg.Paths.OutputDir = dir
	cfg.Paths.OutTag = "test"
	cfg.Fetch.CacheDir = filepath.Join(dir, "cache")
	cfg.CRS.TargetEPSG = srid
	cfg.Attribution = config.AttributionConfig{
		MaxJoinDist:      120,
		RescueJoinDist:   200,
		ParcelJoinDist:   20,
		MinFootprintArea: 10,
		GeometryPolicy:   "lite",
		BatchSize:        1000,
	}
	cfg.Segments = config.SegmentsConfig{
		EdgeBuffer:       15,
		NearestRescue:    40,
		BatchSize:        12000,
		Metrics:          []string{"NACHr500m"},
		HazardColumn:     "peligro_cat",
		HazardCategories: []int{1, 2},
	}
	cfg.Classify = config.ClassifyConfig{EpsGSI: 0.02, EpsFSI: 0.10, EpsL: 0.5}
	return cfg
}

func readOutput(t *testing.T, path, layer string) *model.Layer {
	t.Helper()
	f, err := gpkg.Open(path)
	require.NoError(t, err)
	defer f.Close()
	l, err := f.ReadLayer(context.Background(), layer)
	require.NoError(t, err)
	return l
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir, writeInputs(t, dir))
	cfg.Paths.Segments = config.LayerRef{File: cfg.Paths.Blocks.File, Layer: "vialidades"}

	p, err := New(cfg, nil)
	require.NoError(t, err)
	result, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, model.RunModeFull, result.Mode)
	assert.Equal(t, 2, result.Blocks)
	assert.Len(t, result.Outputs, 6)
	assert.Equal(t, model.PhaseStatusSkipped, result.Phase(PhaseParcels).Status)
	assert.Equal(t, model.PhaseStatusComplete, result.Phase(PhaseSegments).Status)
	assert.Equal(t, 1, result.Phase(PhaseCadastre).Metadata["unmatched"])

	out := readOutput(t, p.Paths().GPKG, "manzanas_test")
	require.Len(t, out.Records, 2)
	assert.Equal(t, srid, out.SRID)

	a := out.Records[0].Props
	assert.Equal(t, "A", a["manzana_id"])
	assert.InDelta(t, 6000.0, a["B_m2"], 1e-6, "overlapping footprints count once")
	assert.InDelta(t, 7600.0, a["B_raw_m2"], 1e-6)
	assert.InDelta(t, 18000.0, a["sup_const_tot_m2"], 1e-6)
	assert.InDelta(t, 1.8, a["FSI"], 1e-9)
	assert.InDelta(t, 0.6, a["GSI"], 1e-9)
	assert.InDelta(t, 3.0, a["L_equiv"], 1e-9)
	assert.Equal(t, int64(2), a["n_props"])
	assert.Equal(t, int64(0), a["dq_flag"])
	assert.Equal(t, "04", a["typology_code_final"])
	assert.InDelta(t, 100.0, a["street_len_in_manz_m"], 1e-6)
	assert.InDelta(t, 2.0, a["NACHr500m_lenw_mean"], 1e-9)
	assert.Nil(t, a["n_predios"])

	b := out.Records[1].Props
	assert.InDelta(t, 0.0, b["FSI"], 1e-9)
	assert.InDelta(t, 0.3, b["GSI"], 1e-9)
	assert.Equal(t, int64(1), b["dq_flag"])
	assert.Equal(t, "10", b["typology_code_base"])
	assert.Equal(t, "0P", b["typology_code_final"])
	assert.Equal(t, int64(1), b["flag_mixto_dq"])
	assert.InDelta(t, 0.0, b["street_len_in_manz_m"], 1e-9)

	for _, path := range result.Outputs {
		_, err := os.Stat(path)
		assert.NoError(t, err, path)
	}
	qc, err := os.ReadFile(p.Paths().QC)
	require.NoError(t, err)
	assert.Contains(t, string(qc), "015,1,0,0,1,0,0,3000")
}

func TestRunIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	inputs := writeInputs(t, dir)

	// The third run rewrites the first run's outputs in place.
	var csvs, params [][]byte
	var layers []*model.Layer
	for _, sub := range []string{"one", "two", "one"} {
		cfg := testConfig(filepath.Join(dir, sub), inputs)
		p, err := New(cfg, nil)
		require.NoError(t, err)
		_, err = p.Run(context.Background())
		require.NoError(t, err)

		c, err := os.ReadFile(p.Paths().CSV)
		require.NoError(t, err)
		y, err := os.ReadFile(p.Paths().Params)
		require.NoError(t, err)
		csvs = append(csvs, c)
		params = append(params, y)
		layers = append(layers, readOutput(t, p.Paths().GPKG, "manzanas_test"))
	}
	for i := 1; i < len(csvs); i++ {
		assert.Equal(t, csvs[0], csvs[i])
		assert.Equal(t, params[0], params[i])
		assert.Equal(t, layers[0], layers[i])
	}
}

func TestRunRequiresInputs(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir, writeInputs(t, dir))
	cfg.Paths.Buildings = config.LayerRef{}

	p, err := New(cfg, nil)
	require.NoError(t, err)
	_, err = p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "paths.buildings is required")
}

func TestRunLayerNotFound(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir, writeInputs(t, dir))
	cfg.Paths.Blocks.Layer = "manzana"

	p, err := New(cfg, nil)
	require.NoError(t, err)
	result, err := p.Run(context.Background())
	require.Error(t, err)

	var notFound *gpkg.LayerNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "manzanas", notFound.Suggestion)
	assert.Equal(t, model.PhaseStatusFailed, result.Phase(PhaseLoad).Status)
}

func TestRunCancelled(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir, writeInputs(t, dir))

	p, err := New(cfg, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir, "unused.gpkg")
	cfg.Attribution.GeometryPolicy = "fix"
	_, err := New(cfg, nil)
	require.Error(t, err)

	cfg = testConfig(dir, "unused.gpkg")
	cfg.CRS.TargetEPSG = 4326
	_, err = New(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "geographic")
}

func TestClassifyExistingLayer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "indicadores.gpkg")
	writeLayer(t, path, "manzanas_ind",
		[]model.Column{
			{Name: "manzana_id", Type: model.ColumnText},
			{Name: "FSI", Type: model.ColumnReal},
			{Name: "GSI", Type: model.ColumnReal},
			{Name: "L_equiv", Type: model.ColumnReal},
			{Name: "n_props", Type: model.ColumnInteger},
		},
		[][]any{
			{"A", 1.8, 0.6, 3.0, int64(2)},
			{"B", 0.0, 0.3, nil, int64(0)},
			{"C", nil, 0.4, nil, int64(1)},
		},
		[]geom.T{rect(0, 0, 10, 10), rect(20, 0, 30, 10), rect(40, 0, 50, 10)},
	)

	cfg := testConfig(dir, path)
	cfg.Paths.Blocks.Layer = "manzanas_ind"
	cfg.Paths.OutputGPKG = path
	cfg.Paths.OutTag = "tipo"

	p, err := New(cfg, nil)
	require.NoError(t, err)
	result, err := p.Classify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.RunModeClassify, result.Mode)
	assert.Equal(t, 3, result.Blocks)

	out := readOutput(t, path, "manzanas_tipo")
	require.Len(t, out.Records, 3)
	assert.Equal(t, "04", out.Records[0].Props["typology_code_final"])
	assert.InDelta(t, 1.8, out.Records[0].Props["FSI"], 1e-9, "source columns are kept")
	assert.Equal(t, "0P", out.Records[1].Props["typology_code_final"])
	assert.Equal(t, "00", out.Records[2].Props["typology_code_final"])
	assert.Equal(t, "Sin datos", out.Records[2].Props["typology_sm_final"])

	// The input layer is left in place.
	assert.Len(t, readOutput(t, path, "manzanas_ind").Records, 3)
}

func TestClassifyMissingGSI(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "indicadores.gpkg")
	writeLayer(t, path, "manzanas_ind",
		[]model.Column{{Name: "FSI", Type: model.ColumnReal}},
		[][]any{{1.0}},
		[]geom.T{rect(0, 0, 10, 10)},
	)
	cfg := testConfig(dir, path)
	cfg.Paths.Blocks.Layer = "manzanas_ind"

	p, err := New(cfg, nil)
	require.NoError(t, err)
	_, err = p.Classify(context.Background())
	require.Error(t, err)

	var missing *schema.MissingFieldError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, schema.GSI, missing.Field)
}

func TestSegmentsOnly(t *testing.T) {
	dir := t.TempDir()
	inputs := writeInputs(t, dir)
	cfg := testConfig(dir, inputs)
	cfg.Paths.Segments = config.LayerRef{File: inputs, Layer: "vialidades"}
	cfg.Paths.OutTag = "calles"

	p, err := New(cfg, nil)
	require.NoError(t, err)
	result, err := p.Segments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.RunModeSegments, result.Mode)
	assert.Len(t, result.Outputs, 2)
	assert.Equal(t, 1, result.Phase(PhaseSegments).Metadata["blocks_with_streets"])

	out := readOutput(t, p.Paths().GPKG, "manzanas_calles")
	require.Len(t, out.Records, 2)
	a := out.Records[0].Props
	assert.InDelta(t, 100.0, a["street_len_in_manz_m"], 1e-6)
	assert.InDelta(t, 2.0, a["NACHr500m_lenw_mean"], 1e-9)
	assert.InDelta(t, 2.0, a["NACHr500m_p90"], 1e-9)
	assert.NotContains(t, a, "FSI")
	assert.Nil(t, out.Records[1].Props["NACHr500m_lenw_mean"])
}

func TestSegmentsRequiresSegmentLayer(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir, writeInputs(t, dir))

	p, err := New(cfg, nil)
	require.NoError(t, err)
	_, err = p.Segments(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "paths.segments is required")
}

func zipFile(t *testing.T, src, dst string) {
	t.Helper()
	out, err := os.Create(dst)
	require.NoError(t, err)
	defer out.Close()
	in, err := os.Open(src)
	require.NoError(t, err)
	defer in.Close()

	w := zip.NewWriter(out)
	fw, err := w.Create("datos/" + filepath.Base(src))
	require.NoError(t, err)
	_, err = io.Copy(fw, in)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func TestRunFromArchive(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "marco.zip")
	zipFile(t, writeInputs(t, dir), archive)

	cfg := testConfig(dir, archive)
	for _, ref := range []*config.LayerRef{&cfg.Paths.Blocks, &cfg.Paths.Buildings, &cfg.Paths.Cadastre} {
		ref.Member = "inputs.gpkg"
	}

	p, err := New(cfg, nil)
	require.NoError(t, err)
	result, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Blocks)

	out := readOutput(t, p.Paths().GPKG, "manzanas_test")
	require.Len(t, out.Records, 2)
	assert.InDelta(t, 1.8, out.Records[0].Props["FSI"], 1e-9)

	extracted, err := filepath.Glob(filepath.Join(dir, "cache", "unzipped", "*", "datos", "inputs.gpkg"))
	require.NoError(t, err)
	assert.Len(t, extracted, 1)
}
