package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Source     SourceConfig     `yaml:"source" mapstructure:"source"`
	Countries  CountriesConfig  `yaml:"countries" mapstructure:"countries"`
	Population PopulationConfig `yaml:"population" mapstructure:"population"`
	Forecast   ForecastConfig   `yaml:"forecast" mapstructure:"forecast"`
	Calibrate  CalibrateConfig  `yaml:"calibrate" mapstructure:"calibrate"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// SourceConfig locates the raw time-series tables.
type SourceConfig struct {
	BaseURL string            `yaml:"base_url" mapstructure:"base_url"`
	Files   map[string]string `yaml:"files" mapstructure:"files"` // metric -> file name
}

// CountriesConfig locates the reference table and the override allow-list.
type CountriesConfig struct {
	ReferenceURL  string `yaml:"reference_url" mapstructure:"reference_url"`
	OverridesPath string `yaml:"overrides_path" mapstructure:"overrides_path"` // empty = embedded default
}

// PopulationConfig configures the optional population table.
type PopulationConfig struct {
	Path           string  `yaml:"path" mapstructure:"path"` // .csv or .xlsx; empty = reference table only
	ISO3Column     string  `yaml:"iso3_column" mapstructure:"iso3_column"`
	ValueColumn    string  `yaml:"value_column" mapstructure:"value_column"`
	PerInhabitants float64 `yaml:"per_inhabitants" mapstructure:"per_inhabitants"`
	SkipRows       int     `yaml:"skip_rows" mapstructure:"skip_rows"` // xlsx rows above the header
}

// ForecastConfig selects the serving window and display rules.
type ForecastConfig struct {
	Metric           string  `yaml:"metric" mapstructure:"metric"`
	WindowShape      string  `yaml:"window_shape" mapstructure:"window_shape"` // exp | ramp
	WindowSize       int     `yaml:"window_size" mapstructure:"window_size"`
	Growth           float64 `yaml:"growth" mapstructure:"growth"`           // exp windows
	RampMiddle       int     `yaml:"ramp_middle" mapstructure:"ramp_middle"` // ramp windows
	Horizon          int     `yaml:"horizon" mapstructure:"horizon"`
	ConfidenceLevel  float64 `yaml:"confidence_level" mapstructure:"confidence_level"`
	HistoryDays      int     `yaml:"history_days" mapstructure:"history_days"`
	DisplayThreshold float64 `yaml:"display_threshold" mapstructure:"display_threshold"`
}

// CalibrateConfig configures the historical replay sweep.
type CalibrateConfig struct {
	Metric      string    `yaml:"metric" mapstructure:"metric"`
	Threshold   float64   `yaml:"threshold" mapstructure:"threshold"`
	Horizon     int       `yaml:"horizon" mapstructure:"horizon"`
	Concurrency int       `yaml:"concurrency" mapstructure:"concurrency"`
	RampStarts  []int     `yaml:"ramp_starts" mapstructure:"ramp_starts"`
	ExpStarts   []int     `yaml:"exp_starts" mapstructure:"exp_starts"`
	ExpGrowths  []float64 `yaml:"exp_growths" mapstructure:"exp_growths"`
	OutputDir   string    `yaml:"output_dir" mapstructure:"output_dir"`
}

// CacheConfig configures memoization of expensive calls.
type CacheConfig struct {
	Driver   string `yaml:"driver" mapstructure:"driver"` // sqlite | redis | none
	Path     string `yaml:"path" mapstructure:"path"`
	RedisURL string `yaml:"redis_url" mapstructure:"redis_url"`
	TTLHours int    `yaml:"ttl_hours" mapstructure:"ttl_hours"`
}

// StoreConfig configures where the prediction artifact is persisted.
type StoreConfig struct {
	Driver       string `yaml:"driver" mapstructure:"driver"` // file | postgres
	ArtifactPath string `yaml:"artifact_path" mapstructure:"artifact_path"`
	DatabaseURL  string `yaml:"database_url" mapstructure:"database_url"`
}

// FetchConfig configures the HTTP transport.
type FetchConfig struct {
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts int    `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// ServerConfig configures the data API.
type ServerConfig struct {
	Port               int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins     []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	ReloadIntervalSecs int      `yaml:"reload_interval_secs" mapstructure:"reload_interval_secs"` // 0 = never reload
}

// MonitoringConfig configures the background alert checker run by serve.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	StaleAfterHours      int     `yaml:"stale_after_hours" mapstructure:"stale_after_hours"`
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
	v.SetEnvPrefix("CASECAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("source.base_url", "https://raw.githubusercontent.com/CSSEGISandData/COVID-19/master/csse_covid_19_data/csse_covid_19_time_series/")
	v.SetDefault("source.files", map[string]string{
		"confirmed": "time_series_covid19_confirmed_global.csv",
		"death":     "time_series_covid19_deaths_global.csv",
		"recovered": "time_series_covid19_recovered_global.csv",
	})
	v.SetDefault("countries.reference_url", "https://gist.githubusercontent.com/tadast/8827699/raw/7255fdfbf292c592b75cf5f7a19c16ea59735f74/countries_codes_and_coordinates.csv")
	v.SetDefault("population.iso3_column", "Country Code")
	v.SetDefault("population.value_column", "Population")
	v.SetDefault("population.per_inhabitants", 100000)
	v.SetDefault("forecast.metric", "confirmed")
	v.SetDefault("forecast.window_shape", "exp")
	v.SetDefault("forecast.window_size", 17)
	v.SetDefault("forecast.growth", 1.6)
	v.SetDefault("forecast.ramp_middle", 10)
	v.SetDefault("forecast.horizon", 7)
	v.SetDefault("forecast.confidence_level", 0.75)
	v.SetDefault("forecast.history_days", 10)
	v.SetDefault("forecast.display_threshold", 50)
	v.SetDefault("calibrate.metric", "confirmed")
	v.SetDefault("calibrate.threshold", 50)
	v.SetDefault("calibrate.horizon", 4)
	v.SetDefault("calibrate.concurrency", 4)
	v.SetDefault("calibrate.ramp_starts", []int{8, 9, 10, 11, 12, 13})
	v.SetDefault("calibrate.exp_starts", []int{12, 13, 14, 15, 16, 17})
	v.SetDefault("calibrate.exp_growths", []float64{1.4, 1.5, 1.6, 1.7, 1.8, 1.9})
	v.SetDefault("calibrate.output_dir", "calibration")
	v.SetDefault("cache.driver", "sqlite")
	v.SetDefault("cache.path", ".casecast-cache.db")
	v.SetDefault("cache.ttl_hours", 12)
	v.SetDefault("store.driver", "file")
	v.SetDefault("store.artifact_path", "predictions.json")
	v.SetDefault("fetch.user_agent", "casecast/1.0")
	v.SetDefault("fetch.timeout_secs", 60)
	v.SetDefault("fetch.max_attempts", 1)
	v.SetDefault("server.port", 8050)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.reload_interval_secs", 600)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 72)
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.stale_after_hours", 36)

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
