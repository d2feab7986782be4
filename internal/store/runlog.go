package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/covid19-dash/casecast/internal/db"
	"github.com/covid19-dash/casecast/internal/model"
)

// RunLog provides read/write access to the casecast.refresh_runs table.
type RunLog struct {
	pool db.Querier
}

// NewRunLog creates a RunLog backed by the given pool.
func NewRunLog(pool db.Querier) *RunLog {
	return &RunLog{pool: pool}
}

// Start records the beginning of a refresh and returns its run ID.
func (l *RunLog) Start(ctx context.Context, metric model.Metric) (string, error) {
	id := uuid.New().String()
	_, err := l.pool.Exec(ctx,
		`INSERT INTO casecast.refresh_runs (id, metric, status, started_at)
		 VALUES ($1, $2, 'running', now())`,
		id, string(metric),
	)
	if err != nil {
		return "", eris.Wrapf(err, "runlog: start refresh of %s", metric)
	}
	return id, nil
}

// Complete marks a run as successfully completed.
func (l *RunLog) Complete(ctx context.Context, runID string, forecasts, skipped int) error {
	_, err := l.pool.Exec(ctx,
		`UPDATE casecast.refresh_runs
		 SET status = 'complete', completed_at = now(), forecasts = $1, skipped = $2
		 WHERE id = $3`,
		forecasts, skipped, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: complete run %s", runID)
	}
	return nil
}

// Fail marks a run as failed with an error message.
func (l *RunLog) Fail(ctx context.Context, runID string, errMsg string) error {
	_, err := l.pool.Exec(ctx,
		`UPDATE casecast.refresh_runs
		 SET status = 'failed', completed_at = now(), error = $1
		 WHERE id = $2`,
		errMsg, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: fail run %s", runID)
	}
	return nil
}

// LastSuccess returns the start time of the most recent completed run, or
// nil when no run has completed.
func (l *RunLog) LastSuccess(ctx context.Context) (*time.Time, error) {
	var t time.Time
	err := l.pool.QueryRow(ctx,
		`SELECT started_at FROM casecast.refresh_runs
		 WHERE status = 'complete'
		 ORDER BY started_at DESC LIMIT 1`,
	).Scan(&t)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "runlog: last success")
	}
	return &t, nil
}

// ListAll returns every run, most recent first.
func (l *RunLog) ListAll(ctx context.Context) ([]model.RefreshRun, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id::text, metric, status, started_at, completed_at, forecasts, skipped, error
		 FROM casecast.refresh_runs ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: list all")
	}
	defer rows.Close()

	var runs []model.RefreshRun
	for rows.Next() {
		var (
			r              model.RefreshRun
			metric, status string
			errStr         *string
		)
		if err := rows.Scan(&r.ID, &metric, &status, &r.StartedAt, &r.CompletedAt, &r.Forecasts, &r.Skipped, &errStr); err != nil {
			return nil, eris.Wrap(err, "runlog: scan run")
		}
		r.Metric = model.Metric(metric)
		r.Status = model.RefreshStatus(status)
		if errStr != nil {
			r.Error = *errStr
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
