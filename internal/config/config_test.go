package config

import (
	"os"
	"path/filepath"
	"testing"

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
	assert.Equal(t, 8050, cfg.Server.Port)
	assert.Equal(t, "confirmed", cfg.Forecast.Metric)
	assert.Equal(t, "exp", cfg.Forecast.WindowShape)
	assert.Equal(t, 17, cfg.Forecast.WindowSize)
	assert.InDelta(t, 1.6, cfg.Forecast.Growth, 0.001)
	assert.Equal(t, 7, cfg.Forecast.Horizon)
	assert.InDelta(t, 0.75, cfg.Forecast.ConfidenceLevel, 0.001)
	assert.Equal(t, 10, cfg.Forecast.HistoryDays)
	assert.InDelta(t, 50, cfg.Forecast.DisplayThreshold, 0.001)
	assert.Equal(t, 4, cfg.Calibrate.Horizon)
	assert.Equal(t, []int{8, 9, 10, 11, 12, 13}, cfg.Calibrate.RampStarts)
	assert.Len(t, cfg.Calibrate.ExpGrowths, 6)
	assert.Equal(t, "sqlite", cfg.Cache.Driver)
	assert.Equal(t, 12, cfg.Cache.TTLHours)
	assert.Equal(t, "file", cfg.Store.Driver)
	assert.Equal(t, "predictions.json", cfg.Store.ArtifactPath)
	assert.Equal(t, 1, cfg.Fetch.MaxAttempts)
	assert.Contains(t, cfg.Source.Files["confirmed"], "confirmed_global")
	assert.Contains(t, cfg.Source.Files, "recovered")
	assert.Empty(t, cfg.Countries.OverridesPath)
	assert.False(t, cfg.Monitoring.Enabled)
	assert.Equal(t, 36, cfg.Monitoring.StaleAfterHours)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/casecast
log:
  level: debug
  format: console
forecast:
  window_shape: ramp
  window_size: 10
  ramp_middle: 10
countries:
  overrides_path: /etc/casecast/overrides.yaml
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "ramp", cfg.Forecast.WindowShape)
	assert.Equal(t, 10, cfg.Forecast.WindowSize)
	assert.Equal(t, "/etc/casecast/overrides.yaml", cfg.Countries.OverridesPath)
	// Defaults still apply for unset values
	assert.Equal(t, 7, cfg.Forecast.Horizon)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: file
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("CASECAST_STORE_DRIVER", "postgres")
	t.Setenv("CASECAST_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("CASECAST_SERVER_PORT", "3000")
	t.Setenv("CASECAST_FORECAST_WINDOW_SIZE", "14")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 14, cfg.Forecast.WindowSize)
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
	cfg.Forecast.WindowShape = "exp"
	cfg.Forecast.WindowSize = 17
	cfg.Forecast.Growth = 1.6
	cfg.Forecast.Horizon = 7
	cfg.Forecast.ConfidenceLevel = 0.75
	cfg.Store.Driver = "file"
	cfg.Store.ArtifactPath = "predictions.json"
	cfg.Calibrate.Horizon = 4
	cfg.Calibrate.Concurrency = 4
	cfg.Cache.Driver = "sqlite"
	cfg.Server.Port = 8050
	return cfg
}

func TestValidateRefresh_Defaults(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("refresh"))
}

func TestValidateRefresh_BadWindow(t *testing.T) {
	cfg := validDefaults()
	cfg.Forecast.WindowSize = 0
	cfg.Forecast.Growth = 0
	cfg.Forecast.ConfidenceLevel = 1

	err := cfg.Validate("refresh")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forecast.window_size must be >= 1")
	assert.Contains(t, err.Error(), "forecast.growth must be > 0")
	assert.Contains(t, err.Error(), "confidence_level")
}

func TestValidateRefresh_RampMiddle(t *testing.T) {
	cfg := validDefaults()
	cfg.Forecast.WindowShape = "ramp"
	cfg.Forecast.RampMiddle = 30

	err := cfg.Validate("refresh")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ramp_middle")

	cfg.Forecast.RampMiddle = 10
	assert.NoError(t, cfg.Validate("refresh"))
}

func TestValidateStore_Postgres(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"

	err := cfg.Validate("refresh")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/casecast"
	assert.NoError(t, cfg.Validate("refresh"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateServe_MonitoringNeedsPostgres(t *testing.T) {
	cfg := validDefaults()
	cfg.Monitoring.Enabled = true

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring requires the postgres store")

	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = "postgres://localhost/casecast"
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateCalibrate(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("calibrate"))

	cfg.Calibrate.Horizon = 0
	cfg.Calibrate.Concurrency = 100
	err := cfg.Validate("calibrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "calibrate.horizon must be >= 1")
	assert.Contains(t, err.Error(), "calibrate.concurrency must be between 1 and 64")
}

func TestValidateCacheDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Cache.Driver = "redis"
	err := cfg.Validate("refresh")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache.redis_url")

	cfg.Cache.Driver = "memcached"
	err = cfg.Validate("refresh")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache.driver")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
