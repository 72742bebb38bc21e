package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/hyperke/client-health/internal/model"
)

// ErrNotFound is returned by single-row dashboard lookups.
var ErrNotFound = eris.New("store: not found")

// SnapshotFilter narrows the dashboard listing. Empty fields do not filter.
type SnapshotFilter struct {
	RelationshipStatus string `json:"relationship_status,omitempty"`
	RAGStatus          string `json:"rag_status,omitempty"`
	AccountManager     string `json:"assigned_account_manager_name,omitempty"`
	InboxManager       string `json:"assigned_inbox_manager_name,omitempty"`
	SDR                string `json:"assigned_sdr_name,omitempty"`
	Deliverability     *bool  `json:"deliverability_flag,omitempty"`
	Volume             *bool  `json:"volume_flag,omitempty"`
	MMF                *bool  `json:"mmf_flag,omitempty"`
	DataMissing        *bool  `json:"data_missing_flag,omitempty"`
	CodeSearch         string `json:"client_code_search,omitempty"`
}

// FilterOptions lists the distinct values the dashboard can filter on.
type FilterOptions struct {
	RelationshipStatuses []string `json:"relationship_statuses"`
	AccountManagers      []string `json:"account_managers"`
	InboxManagers        []string `json:"inbox_managers"`
	SDRs                 []string `json:"sdrs"`
}

// WeekInfo describes one stored historical week.
type WeekInfo struct {
	WeekNumber  int       `json:"week_number"`
	Start       time.Time `json:"period_start"`
	End         time.Time `json:"period_end"`
	DisplayName string    `json:"display_name"`
	RecordCount int       `json:"record_count"`
}

// Store is the local write destination and the dashboard's read model.
// Every Replace* call swaps the whole table inside one transaction.
type Store interface {
	// Ingest
	UpsertClients(ctx context.Context, clients []model.Client) (int64, error)
	ReplacePerformance(ctx context.Context, cutoff time.Time, records []model.PerformanceRecord) (int64, error)
	ReplaceNameMap(ctx context.Context, assocs []model.NameAssociation) error

	// Scoring output
	ReplaceSnapshots(ctx context.Context, snaps []model.HealthSnapshot) error
	ReplaceHistorical(ctx context.Context, snaps []model.HealthSnapshot) error
	ReplaceUnmatched(ctx context.Context, entries []model.UnmatchedEntry) error

	// Not-contacted counts on the current snapshot, keyed by client id.
	// A present key with a nil value is a stored NULL.
	NotContactedCounts(ctx context.Context) (map[int64]*int64, error)
	UpdateNotContacted(ctx context.Context, counts map[int64]*int64) (int64, error)

	// Run log
	StartRun(ctx context.Context, mode model.RunMode) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, summary *model.RunSummary) error
	FailRun(ctx context.Context, runID string, runErr error) error
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)

	// Dashboard reads
	ListSnapshots(ctx context.Context, filter SnapshotFilter) ([]model.HealthSnapshot, error)
	GetSnapshot(ctx context.Context, clientCode string) (*model.HealthSnapshot, error)
	FilterOptions(ctx context.Context) (*FilterOptions, error)
	ListUnmatched(ctx context.Context) ([]model.UnmatchedEntry, error)
	ListWeeks(ctx context.Context) ([]WeekInfo, error)
	ListHistorical(ctx context.Context, weeks []int) ([]model.HealthSnapshot, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// WeekDisplayName renders "Week 1 (Feb 7 - Feb 13)".
func WeekDisplayName(week int, start, end time.Time) string {
	return fmt.Sprintf("Week %d (%s - %s)", week, start.Format("Jan 2"), end.Format("Jan 2"))
}
