package config

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks the settings required by the given command mode
// ("refresh", "serve", "calibrate"). All problems are reported at once.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "refresh", "serve":
		errs = append(errs, c.validateForecast()...)
		errs = append(errs, c.validateStore()...)
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if mode == "serve" && c.Server.ReloadIntervalSecs < 0 {
			errs = append(errs, "server.reload_interval_secs must be >= 0")
		}
		if mode == "serve" && c.Monitoring.Enabled && c.Store.Driver != "postgres" {
			errs = append(errs, "monitoring requires the postgres store (it reads the refresh log)")
		}
	case "calibrate":
		if c.Calibrate.Horizon < 1 {
			errs = append(errs, "calibrate.horizon must be >= 1")
		}
		if c.Calibrate.Threshold < 0 {
			errs = append(errs, "calibrate.threshold must be >= 0")
		}
		if c.Calibrate.Concurrency < 1 || c.Calibrate.Concurrency > 64 {
			errs = append(errs, "calibrate.concurrency must be between 1 and 64")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Cache.Driver {
	case "sqlite", "none", "":
	case "redis":
		if c.Cache.RedisURL == "" {
			errs = append(errs, "cache.redis_url is required for the redis cache driver")
		}
	default:
		errs = append(errs, "cache.driver must be one of sqlite, redis, none")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateForecast() []string {
	var errs []string
	f := c.Forecast
	if f.WindowSize < 1 {
		errs = append(errs, "forecast.window_size must be >= 1")
	}
	if f.Horizon < 0 {
		errs = append(errs, "forecast.horizon must be >= 0")
	}
	switch f.WindowShape {
	case "exp":
		if f.Growth <= 0 {
			errs = append(errs, "forecast.growth must be > 0")
		}
	case "ramp":
		if f.RampMiddle < 1 || f.RampMiddle > f.WindowSize {
			errs = append(errs, "forecast.ramp_middle must be between 1 and window_size")
		}
	default:
		errs = append(errs, "forecast.window_shape must be exp or ramp")
	}
	if f.ConfidenceLevel <= 0 || f.ConfidenceLevel >= 1 {
		errs = append(errs, "forecast.confidence_level must be in (0, 1)")
	}
	return errs
}

func (c *Config) validateStore() []string {
	switch c.Store.Driver {
	case "file":
		if c.Store.ArtifactPath == "" {
			return []string{"store.artifact_path is required for the file store"}
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required for the postgres store"}
		}
	default:
		return []string{"store.driver must be file or postgres"}
	}
	return nil
}
