package model

import "time"

// RunStatus represents the state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// RunMode describes what a run refreshed.
type RunMode string

const (
	RunModeFull         RunMode = "full"          // ingest + score + lead counts
	RunModeQuick        RunMode = "quick"         // ingest + score, lead counts preserved
	RunModeNotContacted RunMode = "not_contacted" // lead counts only
)

// Run is one recorded pipeline invocation.
type Run struct {
	ID         string      `json:"id"`
	Mode       RunMode     `json:"mode"`
	Status     RunStatus   `json:"status"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	Summary    *RunSummary `json:"summary,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// RunSummary holds the counts a run produced.
type RunSummary struct {
	WindowStart           string            `json:"window_start,omitempty"`
	WindowEnd             string            `json:"window_end,omitempty"`
	DaysInPeriod          int               `json:"days_in_period,omitempty"`
	Clients               int               `json:"clients"`
	PerformanceRows       int               `json:"performance_rows"`
	Associations          int               `json:"associations"`
	Snapshots             int               `json:"snapshots"`
	HistoricalSnapshots   int               `json:"historical_snapshots"`
	UnmatchedClients      int               `json:"unmatched_clients"`
	UnmatchedLabels       int               `json:"unmatched_labels"`
	Status                map[RAGStatus]int `json:"status"`
	NotContactedFresh     int               `json:"not_contacted_fresh"`
	NotContactedPreserved int               `json:"not_contacted_preserved"`
	LeadCampaigns         int               `json:"lead_campaigns"`
	LeadCampaignsFailed   int               `json:"lead_campaigns_failed"`
	LeadFetchSkipped      bool              `json:"lead_fetch_skipped,omitempty"`
}

// LeadFailureRate is the share of campaigns whose lead count failed.
func (s *RunSummary) LeadFailureRate() float64 {
	if s == nil || s.LeadCampaigns == 0 {
		return 0
	}
	return float64(s.LeadCampaignsFailed) / float64(s.LeadCampaigns)
}
