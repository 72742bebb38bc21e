// Package monitoring watches the run log and posts webhook alerts.
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

	"github.com/hyperke/client-health/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailureRate AlertType = "run_failure_rate"
	AlertStaleSnapshot  AlertType = "stale_snapshot"
	AlertLeadFetch      AlertType = "lead_fetch_degraded"
	AlertRedShare       AlertType = "red_share"
)

// Alert is one webhook payload.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds.
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

// Evaluate returns the alerts the snapshot triggers.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := snap.CollectedAt

	finished := snap.RunsComplete + snap.RunsFailed
	if finished > 0 && snap.RunsFailed > 0 && snap.FailRate >= a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertRunFailureRate,
			Severity: "high",
			Message: fmt.Sprintf("%d of %d runs failed in the last %dh",
				snap.RunsFailed, finished, snap.LookbackHours),
			Details: map[string]any{
				"failed":    snap.RunsFailed,
				"finished":  finished,
				"fail_rate": snap.FailRate,
				"threshold": a.cfg.FailureRateThreshold,
			},
			Timestamp: now,
		})
	}

	if a.cfg.StaleAfterHours > 0 {
		limit := time.Duration(a.cfg.StaleAfterHours) * time.Hour
		if snap.LastSuccess.IsZero() || now.Sub(snap.LastSuccess) > limit {
			msg := "no successful scoring run on record"
			if !snap.LastSuccess.IsZero() {
				msg = fmt.Sprintf("last successful scoring run finished %s ago", now.Sub(snap.LastSuccess).Truncate(time.Minute))
			}
			alerts = append(alerts, Alert{
				Type:      AlertStaleSnapshot,
				Severity:  "high",
				Message:   msg,
				Details:   map[string]any{"last_success": snap.LastSuccess, "stale_after_hours": a.cfg.StaleAfterHours},
				Timestamp: now,
			})
		}
	}

	if snap.LeadCampaigns > 0 && snap.LeadFailureRate > a.cfg.LeadFailureThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertLeadFetch,
			Severity: "medium",
			Message: fmt.Sprintf("%d of %d SmartLead campaigns failed to count; affected clients kept prior not-contacted values",
				snap.LeadCampaignsFailed, snap.LeadCampaigns),
			Details: map[string]any{
				"failed":    snap.LeadCampaignsFailed,
				"campaigns": snap.LeadCampaigns,
				"threshold": a.cfg.LeadFailureThreshold,
			},
			Timestamp: now,
		})
	}

	if a.cfg.RedShareThreshold > 0 && snap.ScoredClients > 0 {
		share := float64(snap.RedClients) / float64(snap.ScoredClients)
		if share > a.cfg.RedShareThreshold {
			alerts = append(alerts, Alert{
				Type:     AlertRedShare,
				Severity: "medium",
				Message:  fmt.Sprintf("%d of %d clients are Red", snap.RedClients, snap.ScoredClients),
				Details: map[string]any{
					"red":       snap.RedClients,
					"scored":    snap.ScoredClients,
					"threshold": a.cfg.RedShareThreshold,
				},
				Timestamp: now,
			})
		}
	}

	return alerts
}

// SendAlerts posts alerts to the webhook and returns how many were delivered.
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
