package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/covid19-dash/casecast/internal/model"
)

// MetricsSnapshot holds a point-in-time view of refresh health.
type MetricsSnapshot struct {
	// Refresh runs within the lookback window.
	RefreshTotal    int     `json:"refresh_total"`
	RefreshComplete int     `json:"refresh_complete"`
	RefreshFailed   int     `json:"refresh_failed"`
	RefreshRunning  int     `json:"refresh_running"`
	RefreshFailRate float64 `json:"refresh_fail_rate"`

	// LastSuccess is zero when no run ever completed.
	LastSuccess time.Time `json:"last_success"`
	LastError   string    `json:"last_error,omitempty"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister abstracts the refresh log methods needed by the collector.
type RunLister interface {
	ListAll(ctx context.Context) ([]model.RefreshRun, error)
}

// Collector gathers refresh health from the run log.
type Collector struct {
	runs RunLister
}

// NewCollector creates a new metrics collector.
func NewCollector(runs RunLister) *Collector {
	return &Collector{runs: runs}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}
	cutoff := snap.CollectedAt.Add(-time.Duration(lookbackHours) * time.Hour)

	entries, err := c.runs.ListAll(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list refresh runs")
	}

	var lastFailed time.Time
	for _, e := range entries {
		if e.Status == model.RefreshComplete && e.CompletedAt != nil && e.CompletedAt.After(snap.LastSuccess) {
			snap.LastSuccess = *e.CompletedAt
		}
		if e.Status == model.RefreshFailed && e.StartedAt.After(lastFailed) {
			lastFailed = e.StartedAt
			snap.LastError = e.Error
		}
		if e.StartedAt.Before(cutoff) {
			continue
		}
		snap.RefreshTotal++
		switch e.Status {
		case model.RefreshComplete:
			snap.RefreshComplete++
		case model.RefreshFailed:
			snap.RefreshFailed++
		case model.RefreshRunning:
			snap.RefreshRunning++
		}
	}

	if finished := snap.RefreshComplete + snap.RefreshFailed; finished > 0 {
		snap.RefreshFailRate = float64(snap.RefreshFailed) / float64(finished)
	}
	return snap, nil
}
