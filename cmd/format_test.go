package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covid19-dash/casecast/internal/calibrate"
	"github.com/covid19-dash/casecast/internal/countries"
	"github.com/covid19-dash/casecast/internal/forecast"
	"github.com/covid19-dash/casecast/internal/model"
	"github.com/covid19-dash/casecast/internal/population"
	"github.com/covid19-dash/casecast/internal/series"
	"github.com/covid19-dash/casecast/internal/store"
)

func TestFormatScores(t *testing.T) {
	scores := []calibrate.Score{
		{Window: "exp-17-1.6", Size: 17, Errors: []float64{0.01, 0.02, 0.03, 0.04}},
		{Window: "ramp-12-10", Size: 12, Errors: []float64{0.02, 0.03, 0.05, 0.08}},
		{Window: "exp-12-1.4", Size: 12, Errors: []float64{0.05, 0.07, 0.09, 0.12}},
	}

	var buf bytes.Buffer
	formatScores(&buf, scores, 2)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "DAY_4")
	assert.Contains(t, lines[1], "exp-17-1.6")
	assert.Contains(t, lines[1], "0.0400")
	assert.Contains(t, lines[2], "ramp-12-10")

	buf.Reset()
	formatScores(&buf, scores, 0)
	assert.Len(t, strings.Split(strings.TrimSpace(buf.String()), "\n"), 4)
}

func TestFormatScores_Empty(t *testing.T) {
	var buf bytes.Buffer
	formatScores(&buf, nil, 10)
	assert.Equal(t, "RANK  WINDOW  SIZE\n", buf.String())
}

func TestFormatSnapshot(t *testing.T) {
	day := time.Date(2020, 4, 10, 0, 0, 0, 0, time.UTC)
	perCapita := 182.46
	a := &store.Artifact{
		RunDate:     day,
		Metric:      model.MetricConfirmed,
		Window:      forecast.Window{Name: "exp-17-1.6"},
		GrowthRates: []store.GrowthRate{{ISO3: "ITA", Name: "Italy", Rate: 1.034}},
		Snapshot: []population.Row{
			{TidyRow: series.TidyRow{ISO3: "ITA", Name: "Italy", Date: day, Value: 147577}, Population: 80881000, PerCapita: &perCapita},
			{TidyRow: series.TidyRow{ISO3: "VAT", Name: "Holy See", Date: day, Value: 8}},
			{TidyRow: series.TidyRow{ISO3: "AND", Name: "Andorra", Date: day, Value: 3}},
		},
	}

	var buf bytes.Buffer
	formatSnapshot(&buf, a, 2)
	out := buf.String()

	assert.Contains(t, out, "confirmed as of 2020-04-10 (window exp-17-1.6)")
	assert.Contains(t, out, "147577")
	assert.Contains(t, out, "182.5")
	assert.Contains(t, out, "1.034")
	assert.Contains(t, out, "Holy See")
	assert.NotContains(t, out, "Andorra")
}

func TestTopRows(t *testing.T) {
	a := &store.Artifact{Snapshot: make([]population.Row, 5)}
	assert.Len(t, topRows(a, 3), 3)
	assert.Len(t, topRows(a, 0), 5)
	assert.Len(t, topRows(a, 50), 5)
}

func TestFormatCoverage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"ok", nil, "Coverage:\tok"},
		{"unresolved", &countries.UnresolvedCountryError{Names: []string{"Atlantis", "Narnia"}}, "Unresolved:\tAtlantis, Narnia"},
		{"missing", &countries.CoverageGapError{Resolved: 150, Min: 143, Missing: []string{"China"}}, "Missing:\tChina"},
		{"too few", &countries.CoverageGapError{Resolved: 100, Min: 143}, "100 countries, need 143"},
		{"other", errors.New("boom"), "Error:\tboom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			formatCoverage(&buf, 190, 185, tt.err, nil)
			assert.Contains(t, buf.String(), "Source names:\t190")
			assert.Contains(t, buf.String(), tt.want)
		})
	}
}

func TestFormatCoverage_NoPopulation(t *testing.T) {
	var buf bytes.Buffer
	formatCoverage(&buf, 2, 2, nil, []string{"KOS", "TWN"})
	assert.Contains(t, buf.String(), "No population:\t2 (KOS, TWN)")
}

func TestFormatRunsList(t *testing.T) {
	started := time.Date(2020, 4, 10, 6, 0, 0, 0, time.UTC)
	done := started.Add(95 * time.Second)
	runs := []model.RefreshRun{
		{ID: "0f8fad5b-d9cb-469f-a165-70867728950e", Metric: model.MetricConfirmed, Status: model.RefreshComplete, StartedAt: started, CompletedAt: &done, Forecasts: 120, Skipped: 3},
		{ID: "7c9e6679-7425-40de-944b-e07fc1f90ae7", Metric: model.MetricConfirmed, Status: model.RefreshFailed, StartedAt: started, CompletedAt: &done,
			Error: "countries: coverage gap: missing required: China, South Korea"},
		{ID: "short", Metric: model.MetricDeath, Status: model.RefreshRunning, StartedAt: started},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)
	out := buf.String()

	assert.Contains(t, out, "0f8fad5b")
	assert.NotContains(t, out, "0f8fad5b-d9cb")
	assert.Contains(t, out, "1m35s")
	assert.Contains(t, out, "countries: coverage gap: missing requ...")
	assert.Contains(t, out, "short")
	assert.Contains(t, out, "running")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "0f8fad5b", truncateID("0f8fad5b-d9cb-469f-a165-70867728950e"))
	assert.Equal(t, "abc", truncateID("abc"))
}
