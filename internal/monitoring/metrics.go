// Package monitoring exposes Prometheus metrics for the pipeline and runs a
// background checker that alerts on failed or stale refreshes.
package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	RefreshDuration     prometheus.Histogram
	RefreshTotal        *prometheus.CounterVec
	LastRefreshSuccess  prometheus.Gauge
	ArtifactAge         prometheus.Gauge
	Forecasts           prometheus.Gauge
	Skipped             prometheus.Gauge
	CacheHits           *prometheus.CounterVec
	CacheMisses         *prometheus.CounterVec
	CalibrationDuration prometheus.Histogram
	HTTPRequests        *prometheus.CounterVec
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "casecast_refresh_duration_seconds",
			Help:    "Duration of a full refresh in seconds",
			Buckets: []float64{1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		RefreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "casecast_refresh_total",
			Help: "Refresh runs by result",
		}, []string{"result"}),
		LastRefreshSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "casecast_last_refresh_success_timestamp_seconds",
			Help: "Unix time of the last successful refresh",
		}),
		ArtifactAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "casecast_artifact_age_seconds",
			Help: "Age of the served prediction artifact",
		}),
		Forecasts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "casecast_forecast_countries",
			Help: "Countries forecast in the last refresh",
		}),
		Skipped: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "casecast_forecast_skipped_countries",
			Help: "Countries skipped for insufficient history in the last refresh",
		}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "casecast_cache_hits_total",
			Help: "Memoized call hits by call name",
		}, []string{"name"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "casecast_cache_misses_total",
			Help: "Memoized call misses by call name",
		}, []string{"name"}),
		CalibrationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "casecast_calibration_duration_seconds",
			Help:    "Duration of a calibration sweep in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "casecast_http_requests_total",
			Help: "Data API requests by route and status",
		}, []string{"route", "status"}),
	}

	m.registry.MustRegister(
		m.RefreshDuration,
		m.RefreshTotal,
		m.LastRefreshSuccess,
		m.ArtifactAge,
		m.Forecasts,
		m.Skipped,
		m.CacheHits,
		m.CacheMisses,
		m.CalibrationDuration,
		m.HTTPRequests,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRefresh records a finished refresh.
func (m *Metrics) ObserveRefresh(err error, d time.Duration, forecasts, skipped int) {
	if m == nil {
		return
	}
	m.RefreshDuration.Observe(d.Seconds())
	if err != nil {
		m.RefreshTotal.WithLabelValues("failed").Inc()
		return
	}
	m.RefreshTotal.WithLabelValues("complete").Inc()
	m.LastRefreshSuccess.SetToCurrentTime()
	m.Forecasts.Set(float64(forecasts))
	m.Skipped.Set(float64(skipped))
}

// CacheHit records a memoized call served from the cache.
func (m *Metrics) CacheHit(name string) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(name).Inc()
}

// CacheMiss records a memoized call that had to be computed.
func (m *Metrics) CacheMiss(name string) {
	if m == nil {
		return
	}
	m.CacheMisses.WithLabelValues(name).Inc()
}

// ObserveCalibration records the duration of a calibration sweep.
func (m *Metrics) ObserveCalibration(d time.Duration) {
	if m == nil {
		return
	}
	m.CalibrationDuration.Observe(d.Seconds())
}

// ObserveRequest counts one data API request.
func (m *Metrics) ObserveRequest(route string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// SetArtifactGeneratedAt updates the artifact age gauge.
func (m *Metrics) SetArtifactGeneratedAt(t time.Time) {
	if m == nil || t.IsZero() {
		return
	}
	m.ArtifactAge.Set(time.Since(t).Seconds())
}
