package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hyperke/client-health/internal/leads"
	"github.com/hyperke/client-health/internal/metrics"
	"github.com/hyperke/client-health/internal/model"
	"github.com/hyperke/client-health/internal/store"
)

// notContacted refreshes only the not-contacted column of the current
// snapshot, with the same preserve-when-absent merge as a full run.
func (p *Pipeline) notContacted(ctx context.Context, m *metrics.Run, log *zap.Logger) (*model.RunSummary, error) {
	if p.leads == nil {
		return nil, eris.New("pipeline: not-contacted refresh without a lead fetcher")
	}
	summary := &model.RunSummary{Status: map[model.RAGStatus]int{}}

	var res *leads.Result
	err := stage(log, m, "leads", func() error {
		var err error
		res, err = p.leads.Fetch(ctx)
		return eris.Wrap(err, "pipeline: fetch lead counts")
	})
	if err != nil {
		return summary, err
	}
	summary.LeadCampaigns = len(res.Campaigns)
	summary.LeadCampaignsFailed = res.Failed()

	err = stage(log, m, "persist", func() error {
		snaps, err := p.store.ListSnapshots(ctx, store.SnapshotFilter{})
		if err != nil {
			return eris.Wrap(err, "pipeline: list snapshots")
		}
		prior, err := p.store.NotContactedCounts(ctx)
		if err != nil {
			return eris.Wrap(err, "pipeline: read prior not-contacted")
		}

		counts, st := leads.Merge(snaps, res.Fresh(), prior)
		n, err := p.store.UpdateNotContacted(ctx, counts)
		if err != nil {
			return eris.Wrap(err, "pipeline: update not-contacted")
		}
		summary.Snapshots = len(snaps)
		summary.NotContactedFresh = st.Fresh
		summary.NotContactedPreserved = st.Preserved
		for _, s := range snaps {
			summary.Status[s.RAGStatus]++
		}
		log.Info("pipeline: not-contacted updated",
			zap.Int64("rows", n),
			zap.Int("fresh", st.Fresh),
			zap.Int("preserved", st.Preserved),
			zap.Int("unknown", st.Unknown),
		)
		return nil
	})
	return summary, err
}
