package model

import "time"

// PerformanceRecord is one campaign reporting row. ClientLabel is free text
// entered in the sending platform, not an identifier.
type PerformanceRecord struct {
	CampaignDateKey  string    `json:"campaign_date_key"`
	CampaignID       string    `json:"campaign_id"`
	ParentCampaignID *string   `json:"parent_campaign_id,omitempty"`
	CampaignName     string    `json:"campaign_name"`
	ClientLabel      string    `json:"client_name"`
	Status           *string   `json:"status,omitempty"`
	StartDate        time.Time `json:"start_date"`
	EndDate          time.Time `json:"end_date"`
	TotalSent        int64     `json:"total_sent"`
	NewLeadsReached  int64     `json:"new_leads_reached"`
	RepliesCount     int64     `json:"replies_count"`
	PositiveReply    int64     `json:"positive_reply"`
	BounceCount      int64     `json:"bounce_count"`
	AccountName      *string   `json:"smartlead_account_name,omitempty"`
}

// MatchConfidence describes how a name association was made.
type MatchConfidence string

// MatchExact is the only tier: normalized code equals normalized label.
const MatchExact MatchConfidence = "exact"

// NameAssociation links a client to the normalized label used in
// performance records.
type NameAssociation struct {
	ClientID   int64           `json:"client_id"`
	ClientCode string          `json:"client_code"`
	CodeNorm   string          `json:"client_code_norm"`
	LabelNorm  string          `json:"client_name_norm"`
	Confidence MatchConfidence `json:"match_confidence"`
}
