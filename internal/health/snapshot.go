package health

import (
	"sort"
	"time"

	"github.com/hyperke/client-health/internal/model"
)

// Score builds one snapshot per active client for period. rollups is keyed
// by client id; a client missing from it has no association and its
// counters stay nil. Results are ordered by client code.
func Score(clients []model.Client, rollups map[int64]model.ClientRollup, period model.RollupPeriod, th Thresholds, now time.Time) []model.HealthSnapshot {
	out := make([]model.HealthSnapshot, 0, len(clients))
	for _, c := range clients {
		if !c.Active() {
			continue
		}
		var r *model.ClientRollup
		if v, ok := rollups[c.ID]; ok {
			r = &v
		}
		out = append(out, ScoreClient(c, r, period, th, now))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ClientCode < out[j].ClientCode })
	return out
}

// ScoreClient scores a single client. A nil rollup means no data.
func ScoreClient(c model.Client, r *model.ClientRollup, period model.RollupPeriod, th Thresholds, now time.Time) model.HealthSnapshot {
	s := model.HealthSnapshot{
		ClientID:                c.ID,
		ClientCode:              c.Code,
		ClientName:              c.Name,
		CompanyName:             c.CompanyName,
		RelationshipStatus:      c.RelationshipStatus,
		AccountManagerName:      c.AccountManagerName,
		InboxManagerName:        c.InboxManagerName,
		SDRName:                 c.SDRName,
		WeeklyTargetInt:         c.WeeklyTargetInt,
		WeeklyTargetMissing:     c.WeeklyTargetMissing,
		Closelix:                c.Closelix,
		BonusPoolMonthly:        c.BonusPoolMonthly,
		WeekendSendingEffective: c.WeekendSendingEffective,
		Period:                  period,
		ComputedAt:              now,
	}

	if r != nil {
		s.Contacted = ptr(r.Contacted)
		s.Replies = ptr(r.Replies)
		s.Positives = ptr(r.Positives)
		s.Bounces = ptr(r.Bounces)
		s.NewLeadsReached = ptr(r.NewLeadsReached)
		s.ReplyRate = r.ReplyRate
		s.PositiveReplyRate = r.PositiveReplyRate
		s.BouncePct = r.BouncePct
		s.MostRecentEndDate = r.MostRecentEndDate
		if r.Positives > 0 {
			v := round(float64(r.NewLeadsReached)/float64(r.Positives), 2)
			s.PCPLProxy = &v
		}
	}

	p := Prorate(c.WeeklyTargetInt, c.WeekendSendingEffective, period, s.NewLeadsReached)
	s.ProratedTarget = p.ProratedTarget
	s.VolumeAttainment = p.Attainment

	s.Signals = EvaluateSignals(&s, th)
	s.Flags = EvaluateFlags(&s, th)
	s.RAGStatus, _ = Decide(&s, th)
	s.RAGReason = Reason(&s, th)
	return s
}

func ptr[T any](v T) *T { return &v }

var statusRank = map[model.RAGStatus]int{model.RAGGreen: 1, model.RAGYellow: 2, model.RAGRed: 3}

// CombineWeeks merges one client's weekly snapshots into a single view:
// counters are summed, rates averaged over weeks that have them, flags
// OR-ed, and the worst status wins along with its reason.
func CombineWeeks(weeks []model.HealthSnapshot) model.HealthSnapshot {
	if len(weeks) == 0 {
		return model.HealthSnapshot{}
	}
	out := weeks[0]
	if len(weeks) == 1 {
		return out
	}

	out.Contacted = sumInt(weeks, func(s model.HealthSnapshot) *int64 { return s.Contacted })
	out.Replies = sumInt(weeks, func(s model.HealthSnapshot) *int64 { return s.Replies })
	out.Positives = sumInt(weeks, func(s model.HealthSnapshot) *int64 { return s.Positives })
	out.Bounces = sumInt(weeks, func(s model.HealthSnapshot) *int64 { return s.Bounces })
	out.NewLeadsReached = sumInt(weeks, func(s model.HealthSnapshot) *int64 { return s.NewLeadsReached })
	out.ReplyRate = avgFloat(weeks, func(s model.HealthSnapshot) *float64 { return s.ReplyRate })
	out.PositiveReplyRate = avgFloat(weeks, func(s model.HealthSnapshot) *float64 { return s.PositiveReplyRate })
	out.BouncePct = avgFloat(weeks, func(s model.HealthSnapshot) *float64 { return s.BouncePct })
	out.VolumeAttainment = avgFloat(weeks, func(s model.HealthSnapshot) *float64 { return s.VolumeAttainment })
	out.PCPLProxy = avgFloat(weeks, func(s model.HealthSnapshot) *float64 { return s.PCPLProxy })

	out.Period = model.RollupPeriod{Start: weeks[0].Period.Start, End: weeks[0].Period.End}
	for _, w := range weeks[1:] {
		if w.Period.Start.Before(out.Period.Start) {
			out.Period.Start = w.Period.Start
		}
		if w.Period.End.After(out.Period.End) {
			out.Period.End = w.Period.End
		}
		out.Flags.Deliverability = out.Flags.Deliverability || w.Flags.Deliverability
		out.Flags.Volume = out.Flags.Volume || w.Flags.Volume
		out.Flags.MMF = out.Flags.MMF || w.Flags.MMF
		out.Flags.DataMissing = out.Flags.DataMissing || w.Flags.DataMissing
		out.Flags.DataStale = out.Flags.DataStale || w.Flags.DataStale
		if statusRank[w.RAGStatus] > statusRank[out.RAGStatus] {
			out.RAGStatus = w.RAGStatus
			out.RAGReason = w.RAGReason
		}
		if w.MostRecentEndDate != nil && (out.MostRecentEndDate == nil || w.MostRecentEndDate.After(*out.MostRecentEndDate)) {
			out.MostRecentEndDate = w.MostRecentEndDate
		}
	}
	out.Period.WeekNumber = 0
	return out
}

func sumInt(weeks []model.HealthSnapshot, get func(model.HealthSnapshot) *int64) *int64 {
	var total int64
	seen := false
	for _, w := range weeks {
		if v := get(w); v != nil {
			total += *v
			seen = true
		}
	}
	if !seen {
		return nil
	}
	return &total
}

func avgFloat(weeks []model.HealthSnapshot, get func(model.HealthSnapshot) *float64) *float64 {
	var total float64
	n := 0
	for _, w := range weeks {
		if v := get(w); v != nil {
			total += *v
			n++
		}
	}
	if n == 0 {
		return nil
	}
	avg := round(total/float64(n), 4)
	return &avg
}
