package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/covid19-dash/casecast/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRefreshFailureRate AlertType = "refresh_failure_rate"
	AlertStaleArtifact      AlertType = "stale_artifact"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	// Failure rate needs a few finished runs to mean anything.
	finished := snap.RefreshComplete + snap.RefreshFailed
	if finished >= 3 && a.cfg.FailureRateThreshold > 0 && snap.RefreshFailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertRefreshFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Refresh failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				snap.RefreshFailRate*100, a.cfg.FailureRateThreshold*100,
				snap.RefreshFailed, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.RefreshFailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.RefreshFailed,
				"finished":     finished,
				"last_error":   snap.LastError,
			},
			Timestamp: now,
		})
	}

	if a.cfg.StaleAfterHours > 0 {
		limit := time.Duration(a.cfg.StaleAfterHours) * time.Hour
		switch {
		case snap.LastSuccess.IsZero():
			alerts = append(alerts, Alert{
				Type:      AlertStaleArtifact,
				Severity:  "high",
				Message:   "No refresh has ever completed",
				Timestamp: now,
			})
		case snap.CollectedAt.Sub(snap.LastSuccess) > limit:
			age := snap.CollectedAt.Sub(snap.LastSuccess)
			alerts = append(alerts, Alert{
				Type:     AlertStaleArtifact,
				Severity: "medium",
				Message: fmt.Sprintf(
					"Last successful refresh was %.0fh ago (limit %dh)",
					age.Hours(), a.cfg.StaleAfterHours,
				),
				Details: map[string]any{
					"last_success": snap.LastSuccess,
					"age_hours":    age.Hours(),
				},
				Timestamp: now,
			})
		}
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
