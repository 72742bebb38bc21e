package store

import (
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/hyperke/client-health/internal/model"
)

// Table names shared by both backends.
const (
	tableClients     = "clients"
	tablePerformance = "campaign_reporting"
	tableNameMap     = "client_name_map"
	tableSnapshots   = "client_health_snapshots"
	tableHistory     = "client_health_history"
	tableUnmatched   = "unmatched_mappings"
	tableRuns        = "runs"
)

var clientColumns = []string{
	"client_id", "client_code", "client_name", "client_company_name", "relationship_status",
	"assigned_account_manager_id", "assigned_account_manager_name",
	"assigned_inbox_manager_id", "assigned_inbox_manager_name",
	"assigned_sdr_id", "assigned_sdr_name",
	"weekly_target", "weekly_target_int", "weekly_target_missing",
	"closelix", "onboarding_date", "exit_date", "bonus_pool_monthly",
	"weekend_sending_effective", "updated_at",
}

func clientValues(c model.Client, now time.Time) []any {
	return []any{
		c.ID, c.Code, c.Name, c.CompanyName, c.RelationshipStatus,
		c.AccountManagerID, c.AccountManagerName,
		c.InboxManagerID, c.InboxManagerName,
		c.SDRID, c.SDRName,
		c.WeeklyTargetRaw, c.WeeklyTargetInt, c.WeeklyTargetMissing,
		c.Closelix, c.OnboardingDate, c.ExitDate, c.BonusPoolMonthly,
		c.WeekendSendingEffective, now,
	}
}

var performanceColumns = []string{
	"campaign_date_key", "campaign_id", "parent_campaign_id", "campaign_name",
	"client_name", "client_name_norm", "status", "start_date", "end_date",
	"total_sent", "new_leads_reached", "replies_count", "positive_reply",
	"bounce_count", "smartlead_account_name",
}

func performanceValues(r model.PerformanceRecord, norm string) []any {
	return []any{
		r.CampaignDateKey, r.CampaignID, r.ParentCampaignID, r.CampaignName,
		r.ClientLabel, norm, r.Status, r.StartDate, r.EndDate,
		r.TotalSent, r.NewLeadsReached, r.RepliesCount, r.PositiveReply,
		r.BounceCount, r.AccountName,
	}
}

var nameMapColumns = []string{"client_id", "client_code", "client_code_norm", "client_name_norm", "match_confidence"}

func nameMapValues(a model.NameAssociation) []any {
	return []any{a.ClientID, a.ClientCode, a.CodeNorm, a.LabelNorm, string(a.Confidence)}
}

var unmatchedColumns = []string{"match_type", "client_code", "client_name_norm", "last_seen_date", "record_count"}

func unmatchedValues(u model.UnmatchedEntry) []any {
	return []any{string(u.Kind), u.ClientCode, u.LabelNorm, u.LastSeen, u.RecordCount}
}

// snapshotColumns is the column order of both snapshot tables.
var snapshotColumns = []string{
	"client_id", "client_code", "client_name", "client_company_name", "relationship_status",
	"assigned_account_manager_name", "assigned_inbox_manager_name", "assigned_sdr_name",
	"weekly_target_int", "weekly_target_missing", "closelix", "bonus_pool_monthly", "weekend_sending_effective",
	"period_start", "period_end", "week_number",
	"contacted_7d", "replies_7d", "positives_7d", "bounces_7d", "new_leads_reached_7d",
	"reply_rate_7d", "positive_reply_rate_7d", "bounce_pct_7d",
	"prorated_target", "volume_attainment", "pcpl_proxy_7d", "not_contacted_leads",
	"rr_rag", "prr_rag", "pcpl_rag", "br_rag", "volume_rag",
	"deliverability_flag", "volume_flag", "mmf_flag", "data_missing_flag", "data_stale_flag",
	"rag_status", "rag_reason", "most_recent_reporting_end_date", "computed_at",
}

func snapshotValues(s model.HealthSnapshot) []any {
	return []any{
		s.ClientID, s.ClientCode, s.ClientName, s.CompanyName, s.RelationshipStatus,
		s.AccountManagerName, s.InboxManagerName, s.SDRName,
		s.WeeklyTargetInt, s.WeeklyTargetMissing, s.Closelix, s.BonusPoolMonthly, s.WeekendSendingEffective,
		s.Period.Start, s.Period.End, s.Period.WeekNumber,
		s.Contacted, s.Replies, s.Positives, s.Bounces, s.NewLeadsReached,
		s.ReplyRate, s.PositiveReplyRate, s.BouncePct,
		s.ProratedTarget, s.VolumeAttainment, s.PCPLProxy, s.NotContactedLeads,
		signalValue(s.Signals.ReplyRate), signalValue(s.Signals.PositiveRate), signalValue(s.Signals.CostPerPositive),
		signalValue(s.Signals.BounceRate), signalValue(s.Signals.Volume),
		s.Flags.Deliverability, s.Flags.Volume, s.Flags.MMF, s.Flags.DataMissing, s.Flags.DataStale,
		string(s.RAGStatus), s.RAGReason, s.MostRecentEndDate, s.ComputedAt,
	}
}

// signalValue stores SignalNone as NULL.
func signalValue(s model.Signal) any {
	if s == model.SignalNone {
		return nil
	}
	return string(s)
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scannable) (model.HealthSnapshot, error) {
	var s model.HealthSnapshot
	var rr, prr, pcpl, br, vol *string
	var status string

	err := row.Scan(
		&s.ClientID, &s.ClientCode, &s.ClientName, &s.CompanyName, &s.RelationshipStatus,
		&s.AccountManagerName, &s.InboxManagerName, &s.SDRName,
		&s.WeeklyTargetInt, &s.WeeklyTargetMissing, &s.Closelix, &s.BonusPoolMonthly, &s.WeekendSendingEffective,
		&s.Period.Start, &s.Period.End, &s.Period.WeekNumber,
		&s.Contacted, &s.Replies, &s.Positives, &s.Bounces, &s.NewLeadsReached,
		&s.ReplyRate, &s.PositiveReplyRate, &s.BouncePct,
		&s.ProratedTarget, &s.VolumeAttainment, &s.PCPLProxy, &s.NotContactedLeads,
		&rr, &prr, &pcpl, &br, &vol,
		&s.Flags.Deliverability, &s.Flags.Volume, &s.Flags.MMF, &s.Flags.DataMissing, &s.Flags.DataStale,
		&status, &s.RAGReason, &s.MostRecentEndDate, &s.ComputedAt,
	)
	if err != nil {
		return s, err
	}
	s.Signals = model.Signals{
		ReplyRate:       signalFrom(rr),
		PositiveRate:    signalFrom(prr),
		CostPerPositive: signalFrom(pcpl),
		BounceRate:      signalFrom(br),
		Volume:          signalFrom(vol),
	}
	s.RAGStatus = model.RAGStatus(status)
	return s, nil
}

func signalFrom(p *string) model.Signal {
	if p == nil {
		return model.SignalNone
	}
	return model.Signal(*p)
}

func scanUnmatched(row scannable) (model.UnmatchedEntry, error) {
	var u model.UnmatchedEntry
	var kind string
	err := row.Scan(&kind, &u.ClientCode, &u.LabelNorm, &u.LastSeen, &u.RecordCount)
	u.Kind = model.UnmatchedKind(kind)
	return u, err
}

// backfillStatements fill missing manager names from another client with
// the same manager id. Written in SQL both backends accept.
func backfillStatements() []string {
	stmts := make([]string, 0, 3)
	for _, role := range []string{"assigned_account_manager", "assigned_inbox_manager", "assigned_sdr"} {
		stmts = append(stmts, strings.NewReplacer("{role}", role, "{table}", tableClients).Replace(
			`UPDATE {table} SET {role}_name = (
	SELECT c2.{role}_name FROM {table} c2
	WHERE c2.{role}_id = {table}.{role}_id AND COALESCE(c2.{role}_name, '') <> ''
	ORDER BY c2.client_id LIMIT 1
)
WHERE {role}_id IS NOT NULL AND COALESCE({role}_name, '') = ''`))
	}
	return stmts
}

// applyFilter filters snapshots in memory and orders them by new leads
// reached descending with NULLs last, then by client code.
func applyFilter(snaps []model.HealthSnapshot, f SnapshotFilter) []model.HealthSnapshot {
	search := strings.ToLower(strings.TrimSpace(f.CodeSearch))
	out := make([]model.HealthSnapshot, 0, len(snaps))
	for _, s := range snaps {
		if !matchString(s.RelationshipStatus, f.RelationshipStatus) ||
			!matchString(s.AccountManagerName, f.AccountManager) ||
			!matchString(s.InboxManagerName, f.InboxManager) ||
			!matchString(s.SDRName, f.SDR) {
			continue
		}
		if f.RAGStatus != "" && string(s.RAGStatus) != f.RAGStatus {
			continue
		}
		if !matchBool(s.Flags.Deliverability, f.Deliverability) ||
			!matchBool(s.Flags.Volume, f.Volume) ||
			!matchBool(s.Flags.MMF, f.MMF) ||
			!matchBool(s.Flags.DataMissing, f.DataMissing) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(s.ClientCode), search) {
			continue
		}
		out = append(out, s)
	}
	sortByNewLeads(out)
	return out
}

func sortByNewLeads(snaps []model.HealthSnapshot) {
	sort.SliceStable(snaps, func(i, j int) bool {
		a, b := snaps[i].NewLeadsReached, snaps[j].NewLeadsReached
		switch {
		case a == nil && b == nil:
			return snaps[i].ClientCode < snaps[j].ClientCode
		case a == nil:
			return false
		case b == nil:
			return true
		case *a != *b:
			return *a > *b
		default:
			return snaps[i].ClientCode < snaps[j].ClientCode
		}
	})
}

func matchString(v *string, want string) bool {
	if want == "" {
		return true
	}
	return v != nil && *v == want
}

func matchBool(v bool, want *bool) bool {
	return want == nil || v == *want
}

func filterOptions(snaps []model.HealthSnapshot) *FilterOptions {
	return &FilterOptions{
		RelationshipStatuses: distinct(snaps, func(s model.HealthSnapshot) *string { return s.RelationshipStatus }),
		AccountManagers:      distinct(snaps, func(s model.HealthSnapshot) *string { return s.AccountManagerName }),
		InboxManagers:        distinct(snaps, func(s model.HealthSnapshot) *string { return s.InboxManagerName }),
		SDRs:                 distinct(snaps, func(s model.HealthSnapshot) *string { return s.SDRName }),
	}
}

func distinct(snaps []model.HealthSnapshot, get func(model.HealthSnapshot) *string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, s := range snaps {
		v := get(s)
		if v == nil || *v == "" {
			continue
		}
		if _, ok := seen[*v]; ok {
			continue
		}
		seen[*v] = struct{}{}
		out = append(out, *v)
	}
	sort.Strings(out)
	return out
}

// validateWeeks rejects an empty week list; callers normalize the list
// before it reaches the store.
func validateWeeks(weeks []int) error {
	if len(weeks) == 0 {
		return eris.New("store: no weeks requested")
	}
	return nil
}

func sortInt64s(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
