package model

import "time"

// RollupPeriod is an inclusive date window. WeekNumber is 0 for the current
// window and 1..n for completed historical weeks (1 = most recent).
type RollupPeriod struct {
	Start      time.Time `json:"start_date"`
	End        time.Time `json:"end_date"`
	WeekNumber int       `json:"week_number,omitempty"`
}

// Days returns the number of calendar days in the period.
func (p RollupPeriod) Days() int {
	return int(p.End.Sub(p.Start).Hours()/24) + 1
}

// Contains reports whether d falls inside the period, inclusive.
func (p RollupPeriod) Contains(d time.Time) bool {
	return !d.Before(p.Start) && !d.After(p.End)
}

// ClientRollup holds summed counters and derived ratios for one client over
// one period. A nil ratio means its denominator was zero.
type ClientRollup struct {
	ClientID          int64        `json:"client_id"`
	ClientCode        string       `json:"client_code"`
	Period            RollupPeriod `json:"period"`
	Contacted         int64        `json:"contacted"`
	Replies           int64        `json:"replies"`
	Positives         int64        `json:"positives"`
	Bounces           int64        `json:"bounces"`
	NewLeadsReached   int64        `json:"new_leads_reached"`
	ReplyRate         *float64     `json:"reply_rate"`
	PositiveReplyRate *float64     `json:"positive_reply_rate"`
	BouncePct         *float64     `json:"bounce_pct"`
	MostRecentEndDate *time.Time   `json:"most_recent_reporting_end_date"`
}
