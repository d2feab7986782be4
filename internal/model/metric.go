// Package model holds the shared domain types of the case pipeline.
package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Metric identifies one case-count series type.
type Metric string

const (
	MetricConfirmed Metric = "confirmed"
	MetricDeath     Metric = "death"
	MetricRecovered Metric = "recovered"

	// MetricActive is derived as confirmed - (death + recovered).
	MetricActive Metric = "active"
)

// RawMetrics returns the metrics reported directly by sources, in block order.
func RawMetrics() []Metric {
	return []Metric{MetricConfirmed, MetricDeath, MetricRecovered}
}

// AllMetrics returns the raw metrics followed by the derived ones.
func AllMetrics() []Metric {
	return []Metric{MetricConfirmed, MetricDeath, MetricRecovered, MetricActive}
}

// IsDerived reports whether the metric is computed rather than fetched.
func (m Metric) IsDerived() bool {
	return m == MetricActive
}

// ParseMetric converts a user-supplied name ("confirmed", "deaths", ...) into a Metric.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "confirmed":
		return MetricConfirmed, nil
	case "death", "deaths":
		return MetricDeath, nil
	case "recovered":
		return MetricRecovered, nil
	case "active":
		return MetricActive, nil
	default:
		return "", eris.Errorf("unknown metric: %q (valid: confirmed, death, recovered, active)", s)
	}
}
