package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 32614, cfg.CRS.TargetEPSG)
	assert.InDelta(t, 120.0, cfg.Attribution.MaxJoinDist, 0.001)
	assert.InDelta(t, 200.0, cfg.Attribution.RescueJoinDist, 0.001)
	assert.InDelta(t, 20.0, cfg.Attribution.ParcelJoinDist, 0.001)
	assert.InDelta(t, 10.0, cfg.Attribution.MinFootprintArea, 0.001)
	assert.Equal(t, "lite", cfg.Attribution.GeometryPolicy)
	assert.Equal(t, 1000, cfg.Attribution.BatchSize)
	assert.InDelta(t, 15.0, cfg.Segments.EdgeBuffer, 0.001)
	assert.InDelta(t, 40.0, cfg.Segments.NearestRescue, 0.001)
	assert.Equal(t, 12000, cfg.Segments.BatchSize)
	assert.Len(t, cfg.Segments.Metrics, 8)
	assert.Equal(t, "peligro_cat", cfg.Segments.HazardColumn)
	assert.Equal(t, []int{1, 2}, cfg.Segments.HazardCategories)
	assert.InDelta(t, 0.02, cfg.Classify.EpsGSI, 0.0001)
	assert.InDelta(t, 0.10, cfg.Classify.EpsFSI, 0.0001)
	assert.InDelta(t, 0.5, cfg.Classify.EpsL, 0.0001)
	assert.Equal(t, "block_spacematrix", cfg.PostGIS.Table)
	assert.Empty(t, cfg.PostGIS.DatabaseURL)
	assert.Equal(t, ".spacematrix-cache", cfg.Fetch.CacheDir)
	assert.Equal(t, 5*time.Minute, cfg.Fetch.Timeout)
	assert.InDelta(t, 2.0, cfg.Fetch.RatePerHost, 0.001)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
paths:
  blocks:
    file: manzanas.gpkg
    layer: manzanas
  out_tag: fixBF
attribution:
  geometry_policy: robust
  rescue_join_dist: 250
log:
  level: debug
  format: console
schema:
  aliases:
    built_area: [superficie_construccion, sup_const]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "manzanas.gpkg", cfg.Paths.Blocks.File)
	assert.Equal(t, "manzanas", cfg.Paths.Blocks.Layer)
	assert.True(t, cfg.Paths.Blocks.IsSet())
	assert.False(t, cfg.Paths.Segments.IsSet())
	assert.Equal(t, "fixBF", cfg.Paths.OutTag)
	assert.Equal(t, "robust", cfg.Attribution.GeometryPolicy)
	assert.InDelta(t, 250.0, cfg.Attribution.RescueJoinDist, 0.001)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"superficie_construccion", "sup_const"}, cfg.Schema.Aliases["built_area"])
	// Defaults still apply for unset values
	assert.InDelta(t, 120.0, cfg.Attribution.MaxJoinDist, 0.001)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("SPACEMATRIX_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("SPACEMATRIX_CRS_TARGET_EPSG", "6372")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 6372, cfg.CRS.TargetEPSG)
}

func TestLoadInvalidPolicy(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("SPACEMATRIX_ATTRIBUTION_GEOMETRY_POLICY", "repair-everything")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "geometry_policy")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.CRS.TargetEPSG = 32614
	cfg.Attribution.GeometryPolicy = "lite"
	cfg.Attribution.MaxJoinDist = 120
	cfg.Attribution.RescueJoinDist = 200
	cfg.Attribution.BatchSize = 1000
	cfg.Segments.BatchSize = 12000
	cfg.Segments.HazardThresholds = []float64{26, 28}
	cfg.Classify.EpsGSI = 0.02
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	assert.NoError(t, validDefaults().Validate())
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := validDefaults()
	cfg.Attribution.GeometryPolicy = "fix"
	cfg.Attribution.BatchSize = 0
	cfg.Classify.EpsFSI = -1
	cfg.CRS.TargetEPSG = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "geometry_policy")
	assert.Contains(t, err.Error(), "attribution.batch_size must be > 0")
	assert.Contains(t, err.Error(), "classify tolerances")
	assert.Contains(t, err.Error(), "crs.target_epsg")
}

func TestValidate_Proj4WithoutEPSG(t *testing.T) {
	cfg := validDefaults()
	cfg.CRS.TargetEPSG = 0
	cfg.CRS.TargetProj4 = "+proj=utm +zone=14 +datum=WGS84 +units=m +no_defs"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_HazardThresholds(t *testing.T) {
	cfg := validDefaults()
	cfg.Segments.HazardThresholds = []float64{26}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hazard_thresholds")
}

func TestLoadArchiveMember(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
paths:
  blocks:
    file: https://example.org/mg_2020_09.zip
    member: conjunto_de_datos/09m.shp
fetch:
  timeout: 30s
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/mg_2020_09.zip", cfg.Paths.Blocks.File)
	assert.Equal(t, "conjunto_de_datos/09m.shp", cfg.Paths.Blocks.Member)
	assert.Equal(t, 30*time.Second, cfg.Fetch.Timeout)
}

func TestValidate_FetchRate(t *testing.T) {
	cfg := validDefaults()
	cfg.Fetch.RatePerHost = -1
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch.rate_per_host")
}
