package health

import (
	"sort"

	"github.com/hyperke/client-health/internal/model"
)

// Resolve associates each client with the performance label whose
// normalized form equals the normalized client code. Labels are scanned in
// sorted order and the first match wins, so the result is deterministic.
// Clients without a match get no association.
func Resolve(clients []model.Client, records []model.PerformanceRecord) []model.NameAssociation {
	labels := DistinctLabels(records)

	assocs := make([]model.NameAssociation, 0, len(clients))
	for _, c := range clients {
		codeNorm := Normalize(c.Code)
		if codeNorm == "" {
			continue
		}
		i := sort.SearchStrings(labels, codeNorm)
		if i == len(labels) || labels[i] != codeNorm {
			continue
		}
		assocs = append(assocs, model.NameAssociation{
			ClientID:   c.ID,
			ClientCode: c.Code,
			CodeNorm:   codeNorm,
			LabelNorm:  labels[i],
			Confidence: model.MatchExact,
		})
	}
	return assocs
}

// DistinctLabels returns the sorted set of normalized performance labels.
func DistinctLabels(records []model.PerformanceRecord) []string {
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		seen[Normalize(r.ClientLabel)] = struct{}{}
	}
	labels := make([]string, 0, len(seen))
	for l := range seen {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// AssociationsByClient indexes associations by client id.
func AssociationsByClient(assocs []model.NameAssociation) map[int64]model.NameAssociation {
	out := make(map[int64]model.NameAssociation, len(assocs))
	for _, a := range assocs {
		if _, ok := out[a.ClientID]; !ok {
			out[a.ClientID] = a
		}
	}
	return out
}
