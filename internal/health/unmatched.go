package health

import (
	"sort"
	"time"

	"github.com/hyperke/client-health/internal/model"
)

// Unmatched lists active clients that resolved to no label and recent labels
// that no client resolved to. Labels are grouped by normalized form; only
// records whose end date is on or after today-lookbackDays are considered.
func Unmatched(clients []model.Client, assocs []model.NameAssociation, records []model.PerformanceRecord, today time.Time, lookbackDays int) []model.UnmatchedEntry {
	today = Day(today)
	byClient := AssociationsByClient(assocs)
	usedLabels := make(map[string]struct{}, len(assocs))
	for _, a := range assocs {
		usedLabels[a.LabelNorm] = struct{}{}
	}

	var out []model.UnmatchedEntry
	for _, c := range clients {
		if !c.Active() {
			continue
		}
		if _, ok := byClient[c.ID]; ok {
			continue
		}
		code := c.Code
		out = append(out, model.UnmatchedEntry{
			Kind:        model.UnmatchedClient,
			ClientCode:  &code,
			LabelNorm:   Normalize(c.Code),
			LastSeen:    today,
			RecordCount: 1,
		})
	}

	cutoff := today.AddDate(0, 0, -lookbackDays)
	type agg struct {
		last  time.Time
		count int64
	}
	labels := make(map[string]*agg)
	for _, r := range records {
		end := Day(r.EndDate)
		if end.Before(cutoff) {
			continue
		}
		norm := Normalize(r.ClientLabel)
		if norm == "" {
			continue
		}
		if _, ok := usedLabels[norm]; ok {
			continue
		}
		a, ok := labels[norm]
		if !ok {
			a = &agg{}
			labels[norm] = a
		}
		a.count++
		if end.After(a.last) {
			a.last = end
		}
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, model.UnmatchedEntry{
			Kind:        model.UnmatchedLabel,
			LabelNorm:   k,
			LastSeen:    labels[k].last,
			RecordCount: labels[k].count,
		})
	}
	return out
}
