package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Paths       PathsConfig       `yaml:"paths" mapstructure:"paths"`
	CRS         CRSConfig         `yaml:"crs" mapstructure:"crs"`
	Attribution AttributionConfig `yaml:"attribution" mapstructure:"attribution"`
	Segments    SegmentsConfig    `yaml:"segments" mapstructure:"segments"`
	Classify    ClassifyConfig    `yaml:"classify" mapstructure:"classify"`
	Schema      SchemaConfig      `yaml:"schema" mapstructure:"schema"`
	Fetch       FetchConfig       `yaml:"fetch" mapstructure:"fetch"`
	PostGIS     PostGISConfig     `yaml:"postgis" mapstructure:"postgis"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// LayerRef points at one layer inside a geospatial file. Layer may be empty
// for single-layer formats (shapefile, GeoJSON, CSV) or single-layer GeoPackages.
// File may also be an http(s) or ftp URL, or a ZIP archive; Member then
// names the file to use inside the archive.
type LayerRef struct {
	File   string `yaml:"file" mapstructure:"file"`
	Layer  string `yaml:"layer" mapstructure:"layer"`
	Member string `yaml:"member,omitempty" mapstructure:"member"`
	// SourceEPSG overrides the CRS declared by the file (CSV/XLSX inputs have none).
	SourceEPSG int `yaml:"source_epsg" mapstructure:"source_epsg"`
}

// IsSet reports whether a file was configured.
func (r LayerRef) IsSet() bool {
	return strings.TrimSpace(r.File) != ""
}

// PathsConfig lists the input layers and the output location.
type PathsConfig struct {
	Blocks          LayerRef `yaml:"blocks" mapstructure:"blocks"`
	Buildings       LayerRef `yaml:"buildings" mapstructure:"buildings"`
	Cadastre        LayerRef `yaml:"cadastre" mapstructure:"cadastre"`
	ParcelCentroids LayerRef `yaml:"parcel_centroids" mapstructure:"parcel_centroids"`
	Parcels         LayerRef `yaml:"parcels" mapstructure:"parcels"`
	Segments        LayerRef `yaml:"segments" mapstructure:"segments"`
	OutputDir       string   `yaml:"output_dir" mapstructure:"output_dir"`
	// OutputGPKG writes the result layer into this GeoPackage (possibly the
	// blocks file itself) instead of a new file under OutputDir.
	OutputGPKG string `yaml:"output_gpkg" mapstructure:"output_gpkg"`
	OutTag     string `yaml:"out_tag" mapstructure:"out_tag"`
}

// CRSConfig selects the common planar coordinate system.
type CRSConfig struct {
	TargetEPSG  int    `yaml:"target_epsg" mapstructure:"target_epsg"`
	TargetProj4 string `yaml:"target_proj4" mapstructure:"target_proj4"`
}

// AttributionConfig configures feature-to-block attribution.
type AttributionConfig struct {
	MaxJoinDist      float64 `yaml:"max_join_dist" mapstructure:"max_join_dist"`
	RescueJoinDist   float64 `yaml:"rescue_join_dist" mapstructure:"rescue_join_dist"`
	ParcelJoinDist   float64 `yaml:"parcel_join_dist" mapstructure:"parcel_join_dist"`
	MinFootprintArea float64 `yaml:"min_footprint_area" mapstructure:"min_footprint_area"`
	GeometryPolicy   string  `yaml:"geometry_policy" mapstructure:"geometry_policy"`
	BatchSize        int     `yaml:"batch_size" mapstructure:"batch_size"`
}

// SegmentsConfig configures street segment aggregation.
type SegmentsConfig struct {
	EdgeBuffer        float64   `yaml:"edge_buffer" mapstructure:"edge_buffer"`
	NearestRescue     float64   `yaml:"nearest_rescue" mapstructure:"nearest_rescue"`
	BatchSize         int       `yaml:"batch_size" mapstructure:"batch_size"`
	Metrics           []string  `yaml:"metrics" mapstructure:"metrics"`
	HazardColumn      string    `yaml:"hazard_column" mapstructure:"hazard_column"`
	TemperatureColumn string    `yaml:"temperature_column" mapstructure:"temperature_column"`
	HazardThresholds  []float64 `yaml:"hazard_thresholds" mapstructure:"hazard_thresholds"`
	HazardCategories  []int     `yaml:"hazard_categories" mapstructure:"hazard_categories"`
}

// ClassifyConfig configures the typology classifier.
type ClassifyConfig struct {
	EpsGSI   float64      `yaml:"eps_gsi" mapstructure:"eps_gsi"`
	EpsFSI   float64      `yaml:"eps_fsi" mapstructure:"eps_fsi"`
	EpsL     float64      `yaml:"eps_l" mapstructure:"eps_l"`
	Priority []string     `yaml:"priority" mapstructure:"priority"`
	Rules    []RuleConfig `yaml:"rules" mapstructure:"rules"`
}

// RuleConfig overrides one typology rule. Ranges are [min, max] pairs.
type RuleConfig struct {
	Code string    `yaml:"code" mapstructure:"code"`
	Name string    `yaml:"name" mapstructure:"name"`
	GSI  []float64 `yaml:"gsi" mapstructure:"gsi"`
	FSI  []float64 `yaml:"fsi" mapstructure:"fsi"`
	L    []float64 `yaml:"l" mapstructure:"l"`
}

// SchemaConfig holds column alias lists per canonical field name.
type SchemaConfig struct {
	Aliases map[string][]string `yaml:"aliases" mapstructure:"aliases"`
}

// FetchConfig configures staging of remote and archived inputs.
type FetchConfig struct {
	CacheDir    string        `yaml:"cache_dir" mapstructure:"cache_dir"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RatePerHost float64       `yaml:"rate_per_host" mapstructure:"rate_per_host"`
	UserAgent   string        `yaml:"user_agent" mapstructure:"user_agent"`
}

// PostGISConfig configures the optional database mirror of the block table.
type PostGISConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Schema      string `yaml:"schema" mapstructure:"schema"`
	Table       string `yaml:"table" mapstructure:"table"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SPACEMATRIX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("paths.output_dir", ".")
	v.SetDefault("paths.out_tag", "v3lite")
	v.SetDefault("crs.target_epsg", 32614)
	v.SetDefault("attribution.max_join_dist", 120.0)
	v.SetDefault("attribution.rescue_join_dist", 200.0)
	v.SetDefault("attribution.parcel_join_dist", 20.0)
	v.SetDefault("attribution.min_footprint_area", 10.0)
	v.SetDefault("attribution.geometry_policy", "lite")
	v.SetDefault("attribution.batch_size", 1000)
	v.SetDefault("segments.edge_buffer", 15.0)
	v.SetDefault("segments.nearest_rescue", 40.0)
	v.SetDefault("segments.batch_size", 12000)
	v.SetDefault("segments.metrics", []string{
		"NACHr500m", "NACHr1000m", "NACHr1500m", "NACHr5000m",
		"NAINr500m", "NAINr1000m", "NAINr1500m", "NAINr5000m",
	})
	v.SetDefault("segments.hazard_column", "peligro_cat")
	v.SetDefault("segments.temperature_column", "Ta_mean")
	v.SetDefault("segments.hazard_thresholds", []float64{26, 28})
	v.SetDefault("segments.hazard_categories", []int{1, 2})
	v.SetDefault("classify.eps_gsi", 0.02)
	v.SetDefault("classify.eps_fsi", 0.10)
	v.SetDefault("classify.eps_l", 0.5)
	v.SetDefault("fetch.cache_dir", ".spacematrix-cache")
	v.SetDefault("fetch.timeout", "5m")
	v.SetDefault("fetch.rate_per_host", 2.0)
	v.SetDefault("fetch.user_agent", "spacematrix/1.0")
	v.SetDefault("postgis.schema", "public")
	v.SetDefault("postgis.table", "block_spacematrix")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks value ranges that would otherwise surface as confusing
// failures deep inside a pipeline stage. All problems are reported at once.
func (c *Config) Validate() error {
	var problems []string

	switch c.Attribution.GeometryPolicy {
	case "lite", "robust":
	default:
		problems = append(problems, fmt.Sprintf("attribution.geometry_policy must be lite or robust, got %q", c.Attribution.GeometryPolicy))
	}
	if c.Attribution.MaxJoinDist < 0 || c.Attribution.RescueJoinDist < 0 || c.Attribution.ParcelJoinDist < 0 {
		problems = append(problems, "attribution join distances must be >= 0")
	}
	if c.Attribution.BatchSize <= 0 {
		problems = append(problems, "attribution.batch_size must be > 0")
	}
	if c.Segments.BatchSize <= 0 {
		problems = append(problems, "segments.batch_size must be > 0")
	}
	if c.Segments.EdgeBuffer < 0 || c.Segments.NearestRescue < 0 {
		problems = append(problems, "segments distances must be >= 0")
	}
	if len(c.Segments.HazardThresholds) != 0 && len(c.Segments.HazardThresholds) != 2 {
		problems = append(problems, "segments.hazard_thresholds must hold exactly two values")
	}
	if c.Classify.EpsGSI < 0 || c.Classify.EpsFSI < 0 || c.Classify.EpsL < 0 {
		problems = append(problems, "classify tolerances must be >= 0")
	}
	if c.Fetch.RatePerHost < 0 || c.Fetch.Timeout < 0 {
		problems = append(problems, "fetch.rate_per_host and fetch.timeout must be >= 0")
	}
	if c.CRS.TargetEPSG == 0 && c.CRS.TargetProj4 == "" {
		problems = append(problems, "crs.target_epsg or crs.target_proj4 is required")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
