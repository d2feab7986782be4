package model

import "time"

// RefreshStatus is the lifecycle state of a refresh run.
type RefreshStatus string

const (
	RefreshRunning  RefreshStatus = "running"
	RefreshComplete RefreshStatus = "complete"
	RefreshFailed   RefreshStatus = "failed"
)

// RefreshRun records one execution of the refresh pipeline.
type RefreshRun struct {
	ID          string        `json:"id"`
	Metric      Metric        `json:"metric"`
	Status      RefreshStatus `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Forecasts   int           `json:"forecasts"`
	Skipped     int           `json:"skipped"`
	Error       string        `json:"error,omitempty"`
}
