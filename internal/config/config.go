package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Analysis AnalysisConfig `yaml:"analysis" mapstructure:"analysis"`
	LandUse  LandUseConfig  `yaml:"landuse" mapstructure:"landuse"`
	Cache    CacheConfig    `yaml:"cache" mapstructure:"cache"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// AnalysisConfig holds the tunable parameters of the analysis core.
type AnalysisConfig struct {
	GridCellSizeM        float64 `yaml:"grid_cell_size_m" mapstructure:"grid_cell_size_m"`
	CloudCoverThreshold  float64 `yaml:"cloud_cover_threshold" mapstructure:"cloud_cover_threshold"`
	HotspotPercentile    float64 `yaml:"hotspot_percentile" mapstructure:"hotspot_percentile"`
	MinClusterSize       int     `yaml:"min_cluster_size" mapstructure:"min_cluster_size"`
	MoranAlpha           float64 `yaml:"moran_alpha" mapstructure:"moran_alpha"`
	MinCategorySamples   int     `yaml:"min_category_samples" mapstructure:"min_category_samples"`
	CorrelationThreshold float64 `yaml:"correlation_threshold" mapstructure:"correlation_threshold"`
	IncludeWeather       bool    `yaml:"include_weather" mapstructure:"include_weather"`
	TimeoutSecs          int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// LandUseConfig configures the land-use joiner.
type LandUseConfig struct {
	// Grouped collapses the detailed CORINE types into the six grouped
	// categories used for reporting.
	Grouped bool `yaml:"grouped" mapstructure:"grouped"`
	// CoefficientsFile optionally points at a YAML file overriding the
	// built-in imperviousness coefficients.
	CoefficientsFile string `yaml:"coefficients_file" mapstructure:"coefficients_file"`
}

// CacheConfig configures the result cache.
type CacheConfig struct {
	Dir          string `yaml:"dir" mapstructure:"dir"`
	MaxAgeDays   int    `yaml:"max_age_days" mapstructure:"max_age_days"`
	MaxSizeBytes int64  `yaml:"max_size_bytes" mapstructure:"max_size_bytes"`
	Disabled     bool   `yaml:"disabled" mapstructure:"disabled"`
}

// MaxAge returns the configured entry max age as a duration.
func (c CacheConfig) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeDays) * 24 * time.Hour
}

// StoreConfig configures the run-history database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// presets are parameter bundles trading resolution for speed. Values track
// the documented performance modes of the analysis methodology.
var presets = map[string]AnalysisConfig{
	"preview": {
		GridCellSizeM:       300,
		CloudCoverThreshold: 40,
		HotspotPercentile:   0.85,
		MinClusterSize:      3,
		IncludeWeather:      false,
	},
	"fast": {
		GridCellSizeM:       200,
		CloudCoverThreshold: 30,
		HotspotPercentile:   0.9,
		MinClusterSize:      5,
		IncludeWeather:      false,
	},
	"standard": {
		GridCellSizeM:       100,
		CloudCoverThreshold: 20,
		HotspotPercentile:   0.9,
		MinClusterSize:      5,
		IncludeWeather:      true,
	},
	"detailed": {
		GridCellSizeM:       50,
		CloudCoverThreshold: 20,
		HotspotPercentile:   0.95,
		MinClusterSize:      10,
		IncludeWeather:      true,
	},
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("HEATSENSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults (standard performance mode)
	v.SetDefault("analysis.grid_cell_size_m", 100.0)
	v.SetDefault("analysis.cloud_cover_threshold", 20.0)
	v.SetDefault("analysis.hotspot_percentile", 0.9)
	v.SetDefault("analysis.min_cluster_size", 5)
	v.SetDefault("analysis.moran_alpha", 0.05)
	v.SetDefault("analysis.min_category_samples", 3)
	v.SetDefault("analysis.correlation_threshold", 0.5)
	v.SetDefault("analysis.include_weather", true)
	v.SetDefault("analysis.timeout_secs", 600)
	v.SetDefault("landuse.grouped", true)
	v.SetDefault("cache.dir", ".heatsense-cache")
	v.SetDefault("cache.max_age_days", 30)
	v.SetDefault("cache.max_size_bytes", int64(5)<<30)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "heatsense.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

	return &cfg, nil
}

// ApplyPreset overwrites the resolution/threshold parameters with a named
// performance preset, keeping significance and sample-count settings.
func (c *Config) ApplyPreset(name string) error {
	p, ok := presets[name]
	if !ok {
		return eris.Errorf("config: unknown preset %q", name)
	}
	c.Analysis.GridCellSizeM = p.GridCellSizeM
	c.Analysis.CloudCoverThreshold = p.CloudCoverThreshold
	c.Analysis.HotspotPercentile = p.HotspotPercentile
	c.Analysis.MinClusterSize = p.MinClusterSize
	c.Analysis.IncludeWeather = p.IncludeWeather
	return nil
}

// Validate checks parameter ranges. A violation is a caller input error and
// is never retried.
func (c *Config) Validate() error {
	a := c.Analysis
	if a.GridCellSizeM <= 0 {
		return eris.Errorf("config: grid_cell_size_m must be positive, got %v", a.GridCellSizeM)
	}
	if a.HotspotPercentile <= 0 || a.HotspotPercentile >= 1 {
		return eris.Errorf("config: hotspot_percentile must be in (0,1), got %v", a.HotspotPercentile)
	}
	if a.MinClusterSize < 1 {
		return eris.Errorf("config: min_cluster_size must be >= 1, got %d", a.MinClusterSize)
	}
	if a.MoranAlpha <= 0 || a.MoranAlpha >= 1 {
		return eris.Errorf("config: moran_alpha must be in (0,1), got %v", a.MoranAlpha)
	}
	if a.MinCategorySamples < 1 {
		return eris.Errorf("config: min_category_samples must be >= 1, got %d", a.MinCategorySamples)
	}
	if c.Cache.MaxAgeDays <= 0 {
		return eris.Errorf("config: cache.max_age_days must be positive, got %d", c.Cache.MaxAgeDays)
	}
	if c.Cache.MaxSizeBytes <= 0 {
		return eris.Errorf("config: cache.max_size_bytes must be positive, got %d", c.Cache.MaxSizeBytes)
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
