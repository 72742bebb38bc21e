package health

import (
	"math"

	"github.com/hyperke/client-health/internal/model"
)

// RecordIndex groups performance records by normalized label.
type RecordIndex map[string][]model.PerformanceRecord

// IndexRecords builds a RecordIndex.
func IndexRecords(records []model.PerformanceRecord) RecordIndex {
	idx := make(RecordIndex)
	for _, r := range records {
		key := Normalize(r.ClientLabel)
		idx[key] = append(idx[key], r)
	}
	return idx
}

// Aggregate computes one rollup per association over the period. Clients
// without an association are absent from the result, which callers must
// treat as "no data" rather than zero activity.
func Aggregate(assocs []model.NameAssociation, idx RecordIndex, period model.RollupPeriod) map[int64]model.ClientRollup {
	out := make(map[int64]model.ClientRollup, len(assocs))
	for _, a := range assocs {
		if _, dup := out[a.ClientID]; dup {
			continue
		}
		out[a.ClientID] = rollupOne(a, idx[a.LabelNorm], period)
	}
	return out
}

func rollupOne(a model.NameAssociation, records []model.PerformanceRecord, period model.RollupPeriod) model.ClientRollup {
	r := model.ClientRollup{
		ClientID:   a.ClientID,
		ClientCode: a.ClientCode,
		Period:     period,
	}
	for _, rec := range records {
		end := Day(rec.EndDate)
		if !period.Contains(end) {
			continue
		}
		r.Contacted += rec.TotalSent
		r.Replies += rec.RepliesCount
		r.Positives += rec.PositiveReply
		r.Bounces += rec.BounceCount
		r.NewLeadsReached += rec.NewLeadsReached
		if r.MostRecentEndDate == nil || end.After(*r.MostRecentEndDate) {
			e := end
			r.MostRecentEndDate = &e
		}
	}

	r.ReplyRate = ratio(r.Replies, r.NewLeadsReached, 4)
	r.PositiveReplyRate = ratio(r.Positives, r.Replies, 4)
	r.BouncePct = ratio(r.Bounces, r.Contacted, 4)
	return r
}

// ratio returns num/den rounded to places, or nil when den is not positive.
func ratio(num, den int64, places int) *float64 {
	if den <= 0 {
		return nil
	}
	v := round(float64(num)/float64(den), places)
	return &v
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
