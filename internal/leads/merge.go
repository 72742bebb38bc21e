package leads

import (
	"github.com/hyperke/client-health/internal/health"
	"github.com/hyperke/client-health/internal/model"
)

// MergeStats counts where each merged value came from.
type MergeStats struct {
	Fresh     int
	Preserved int
	Unknown   int
}

// Merge joins fresh counts against the prior snapshot. A client takes the
// fresh count under its normalized name, else under its normalized code,
// else keeps its prior value. A nil fresh map preserves everything.
func Merge(snaps []model.HealthSnapshot, fresh map[string]int64, prior map[int64]*int64) (map[int64]*int64, MergeStats) {
	out := make(map[int64]*int64, len(snaps))
	var st MergeStats

	for _, s := range snaps {
		if v, ok := lookup(s, fresh); ok {
			out[s.ClientID] = &v
			st.Fresh++
			continue
		}
		if p := prior[s.ClientID]; p != nil {
			v := *p
			out[s.ClientID] = &v
			st.Preserved++
			continue
		}
		out[s.ClientID] = nil
		st.Unknown++
	}
	return out, st
}

// Apply writes merged counts onto the snapshots.
func Apply(snaps []model.HealthSnapshot, counts map[int64]*int64) {
	for i := range snaps {
		snaps[i].NotContactedLeads = counts[snaps[i].ClientID]
	}
}

func lookup(s model.HealthSnapshot, fresh map[string]int64) (int64, bool) {
	if len(fresh) == 0 {
		return 0, false
	}
	name := s.ClientCode
	if s.ClientName != nil && *s.ClientName != "" {
		name = *s.ClientName
	}
	if v, ok := fresh[health.Normalize(name)]; ok {
		return v, true
	}
	v, ok := fresh[health.Normalize(s.ClientCode)]
	return v, ok
}
