package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/hyperke/client-health/internal/model"
)

// RunLister is the slice of the store the collector reads.
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)
}

// MetricsSnapshot is a point-in-time view of run health.
type MetricsSnapshot struct {
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	RunsRunning  int     `json:"runs_running"`
	FailRate     float64 `json:"fail_rate"`

	// LastSuccess is the finish time of the newest complete scoring run
	// (full or quick), zero if none is on record.
	LastSuccess time.Time `json:"last_success"`

	// From the newest complete run that fetched lead counts.
	LeadCampaigns       int     `json:"lead_campaigns"`
	LeadCampaignsFailed int     `json:"lead_campaigns_failed"`
	LeadFailureRate     float64 `json:"lead_failure_rate"`

	RedClients    int `json:"red_clients"`
	ScoredClients int `json:"scored_clients"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector summarizes the run log.
type Collector struct {
	runs  RunLister
	limit int
	now   func() time.Time
}

// NewCollector creates a collector over the most recent runs.
func NewCollector(runs RunLister) *Collector {
	return &Collector{runs: runs, limit: 500, now: time.Now}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{LookbackHours: lookbackHours, CollectedAt: now}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.runs.ListRuns(ctx, c.limit)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	var leadsSeen, scoreSeen bool
	// Runs come newest first.
	for _, r := range runs {
		if r.Status == model.RunStatusComplete && r.Mode != model.RunModeNotContacted && !scoreSeen {
			scoreSeen = true
			if r.FinishedAt != nil {
				snap.LastSuccess = *r.FinishedAt
			}
			if r.Summary != nil {
				snap.ScoredClients = r.Summary.Snapshots
				snap.RedClients = r.Summary.Status[model.RAGRed]
			}
		}
		if r.Status == model.RunStatusComplete && !leadsSeen && r.Summary != nil && !r.Summary.LeadFetchSkipped && r.Mode != model.RunModeQuick {
			leadsSeen = true
			snap.LeadCampaigns = r.Summary.LeadCampaigns
			snap.LeadCampaignsFailed = r.Summary.LeadCampaignsFailed
			snap.LeadFailureRate = r.Summary.LeadFailureRate()
		}

		if r.StartedAt.Before(cutoff) {
			continue
		}
		snap.RunsTotal++
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusRunning:
			snap.RunsRunning++
		}
	}

	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.FailRate = float64(snap.RunsFailed) / float64(finished)
	}
	return snap, nil
}
