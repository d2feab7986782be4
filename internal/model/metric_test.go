package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMetric(t *testing.T) {
	tests := []struct {
		in   string
		want Metric
	}{
		{"confirmed", MetricConfirmed},
		{"Deaths", MetricDeath},
		{"death", MetricDeath},
		{" recovered ", MetricRecovered},
		{"ACTIVE", MetricActive},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMetric(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseMetric_Unknown(t *testing.T) {
	_, err := ParseMetric("hospitalized")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown metric")
}

func TestMetricSets(t *testing.T) {
	assert.Len(t, RawMetrics(), 3)
	assert.Equal(t, MetricActive, AllMetrics()[3])
	assert.True(t, MetricActive.IsDerived())
	assert.False(t, MetricConfirmed.IsDerived())
}

func TestSeriesKeyCountry(t *testing.T) {
	k := SeriesKey{Metric: MetricDeath, ISO3: "FRA", Name: "France"}
	assert.Equal(t, CountryKey{ISO3: "FRA", Name: "France"}, k.Country())

	id := CountryIdentity{Name: "France", ISO3: "FRA", ISO2: "FR"}
	assert.Equal(t, k.Country(), id.Key())
}

func TestDay(t *testing.T) {
	in := time.Date(2020, 3, 14, 17, 45, 0, 0, time.FixedZone("X", 3600))
	assert.Equal(t, time.Date(2020, 3, 14, 0, 0, 0, 0, time.UTC), Day(in))
}
