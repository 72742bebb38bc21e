package model

import "time"

// RAGStatus is the external health verdict. Amber is published as Yellow.
type RAGStatus string

const (
	RAGRed    RAGStatus = "Red"
	RAGYellow RAGStatus = "Yellow"
	RAGGreen  RAGStatus = "Green"
)

// Signal is a single-metric verdict. SignalNone means there was not enough
// data to judge and is stored as NULL.
type Signal string

const (
	SignalNone  Signal = ""
	SignalRed   Signal = "Red"
	SignalAmber Signal = "Amber"
	SignalGreen Signal = "Green"
)

// Signals holds the five independent metric verdicts.
type Signals struct {
	ReplyRate       Signal `json:"rr_rag"`
	PositiveRate    Signal `json:"prr_rag"`
	CostPerPositive Signal `json:"pcpl_rag"`
	BounceRate      Signal `json:"br_rag"`
	Volume          Signal `json:"volume_rag"`
}

// All returns the signals in a fixed order.
func (s Signals) All() []Signal {
	return []Signal{s.ReplyRate, s.PositiveRate, s.CostPerPositive, s.BounceRate, s.Volume}
}

// Count returns how many signals equal v.
func (s Signals) Count(v Signal) int {
	n := 0
	for _, sig := range s.All() {
		if sig == v {
			n++
		}
	}
	return n
}

// Flags are boolean risk markers surfaced next to the verdict.
type Flags struct {
	Deliverability bool `json:"deliverability_flag"`
	Volume         bool `json:"volume_flag"`
	MMF            bool `json:"mmf_flag"`
	DataMissing    bool `json:"data_missing_flag"`
	DataStale      bool `json:"data_stale_flag"`
}

// HealthSnapshot is the scored state of one active client for one period.
// Counters are nil when the client has no name association.
type HealthSnapshot struct {
	ClientID                int64    `json:"client_id"`
	ClientCode              string   `json:"client_code"`
	ClientName              *string  `json:"client_name"`
	CompanyName             *string  `json:"client_company_name"`
	RelationshipStatus      *string  `json:"relationship_status"`
	AccountManagerName      *string  `json:"assigned_account_manager_name"`
	InboxManagerName        *string  `json:"assigned_inbox_manager_name"`
	SDRName                 *string  `json:"assigned_sdr_name"`
	WeeklyTargetInt         *int64   `json:"weekly_target_int"`
	WeeklyTargetMissing     bool     `json:"weekly_target_missing"`
	Closelix                bool     `json:"closelix"`
	BonusPoolMonthly        *float64 `json:"bonus_pool_monthly"`
	WeekendSendingEffective bool     `json:"weekend_sending_effective"`

	Period RollupPeriod `json:"period"`

	Contacted         *int64   `json:"contacted_7d"`
	Replies           *int64   `json:"replies_7d"`
	Positives         *int64   `json:"positives_7d"`
	Bounces           *int64   `json:"bounces_7d"`
	NewLeadsReached   *int64   `json:"new_leads_reached_7d"`
	ReplyRate         *float64 `json:"reply_rate_7d"`
	PositiveReplyRate *float64 `json:"positive_reply_rate_7d"`
	BouncePct         *float64 `json:"bounce_pct_7d"`

	ProratedTarget    *float64 `json:"prorated_target"`
	VolumeAttainment  *float64 `json:"volume_attainment"`
	PCPLProxy         *float64 `json:"pcpl_proxy_7d"`
	NotContactedLeads *int64   `json:"not_contacted_leads"`

	Signals Signals `json:"signals"`
	Flags   Flags   `json:"flags"`

	RAGStatus RAGStatus `json:"rag_status"`
	RAGReason string    `json:"rag_reason"`

	MostRecentEndDate *time.Time `json:"most_recent_reporting_end_date"`
	ComputedAt        time.Time  `json:"computed_at"`
}

// UnmatchedKind distinguishes the two unmatched listings.
type UnmatchedKind string

const (
	UnmatchedClient UnmatchedKind = "client_without_reporting"
	UnmatchedLabel  UnmatchedKind = "reporting_without_client"
)

// UnmatchedEntry is one row of the unmatched report.
type UnmatchedEntry struct {
	Kind        UnmatchedKind `json:"match_type"`
	ClientCode  *string       `json:"client_code"`
	LabelNorm   string        `json:"client_name_norm"`
	LastSeen    time.Time     `json:"last_seen_date"`
	RecordCount int64         `json:"record_count"`
}
