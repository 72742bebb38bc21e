package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hyperke/client-health/internal/health"
	"github.com/hyperke/client-health/internal/leads"
	"github.com/hyperke/client-health/internal/metrics"
	"github.com/hyperke/client-health/internal/model"
)

// cutoff is the earliest end date to ingest: days_back before today, moved
// earlier when needed so the oldest historical week is fully covered.
func cutoff(today time.Time, daysBack int, weeks []model.RollupPeriod) time.Time {
	c := today.AddDate(0, 0, -daysBack)
	for _, w := range weeks {
		if w.Start.Before(c) {
			c = w.Start
		}
	}
	return c
}

func (p *Pipeline) score(ctx context.Context, mode model.RunMode, m *metrics.Run, log *zap.Logger) (*model.RunSummary, error) {
	if p.clients == nil || p.perf == nil {
		return nil, eris.New("pipeline: scoring run without sources")
	}

	now := p.now()
	today := health.Day(now)
	period := health.CurrentWindow(today)
	var weeks []model.RollupPeriod
	if p.cfg.HistoricalWeeks > 0 {
		weeks = health.HistoricalWeeks(today, p.cfg.HistoricalWeeks)
	}
	since := cutoff(today, p.cfg.DaysBack, weeks)

	summary := &model.RunSummary{
		WindowStart:  period.Start.Format(time.DateOnly),
		WindowEnd:    period.End.Format(time.DateOnly),
		DaysInPeriod: period.Days(),
		Status:       map[model.RAGStatus]int{},
	}
	log = log.With(zap.String("window_start", summary.WindowStart), zap.String("window_end", summary.WindowEnd))

	var (
		clients []model.Client
		records []model.PerformanceRecord
		assocs  []model.NameAssociation
		snaps   []model.HealthSnapshot
		history []model.HealthSnapshot
	)

	err := stage(log, m, "ingest", func() error {
		var err error
		if clients, err = p.clients.Clients(ctx); err != nil {
			return eris.Wrap(err, "pipeline: read clients")
		}
		if records, err = p.perf.Performance(ctx, since); err != nil {
			return eris.Wrap(err, "pipeline: read performance")
		}
		var filled int
		clients, filled = health.BackfillManagers(clients)
		if _, err = p.store.UpsertClients(ctx, clients); err != nil {
			return eris.Wrap(err, "pipeline: upsert clients")
		}
		if _, err = p.store.ReplacePerformance(ctx, since, records); err != nil {
			return eris.Wrap(err, "pipeline: replace performance")
		}
		summary.Clients = len(clients)
		summary.PerformanceRows = len(records)
		log.Info("pipeline: ingested",
			zap.Int("clients", len(clients)),
			zap.Int("performance_rows", len(records)),
			zap.Int("manager_names_filled", filled),
			zap.Time("cutoff", since),
		)
		return nil
	})
	if err != nil {
		return summary, err
	}

	err = stage(log, m, "resolve", func() error {
		assocs = health.Resolve(clients, records)
		summary.Associations = len(assocs)
		return eris.Wrap(p.store.ReplaceNameMap(ctx, assocs), "pipeline: replace name map")
	})
	if err != nil {
		return summary, err
	}

	err = stage(log, m, "score", func() error {
		idx := health.IndexRecords(records)
		snaps = health.Score(clients, health.Aggregate(assocs, idx, period), period, p.cfg.Thresholds, now)
		for _, w := range weeks {
			history = append(history, health.Score(clients, health.Aggregate(assocs, idx, w), w, p.cfg.Thresholds, now)...)
		}
		for _, s := range snaps {
			summary.Status[s.RAGStatus]++
		}
		summary.Snapshots = len(snaps)
		summary.HistoricalSnapshots = len(history)
		return nil
	})
	if err != nil {
		return summary, err
	}

	var fresh map[string]int64
	if mode == model.RunModeFull && p.leads != nil {
		_ = stage(log, m, "leads", func() error {
			res, err := p.leads.Fetch(ctx)
			if err != nil {
				// Counts are preserved below; the scoring run still lands.
				log.Warn("pipeline: lead counts unavailable, keeping prior values", zap.Error(err))
				return nil
			}
			fresh = res.Fresh()
			summary.LeadCampaigns = len(res.Campaigns)
			summary.LeadCampaignsFailed = res.Failed()
			return nil
		})
		if ctx.Err() != nil {
			return summary, eris.Wrap(ctx.Err(), "pipeline: cancelled")
		}
	} else {
		summary.LeadFetchSkipped = true
		log.Info("pipeline: skipping SmartLead, keeping prior not-contacted values")
	}

	err = stage(log, m, "persist", func() error {
		prior, err := p.store.NotContactedCounts(ctx)
		if err != nil {
			return eris.Wrap(err, "pipeline: read prior not-contacted")
		}
		counts, st := leads.Merge(snaps, fresh, prior)
		leads.Apply(snaps, counts)
		summary.NotContactedFresh = st.Fresh
		summary.NotContactedPreserved = st.Preserved

		if err := p.store.ReplaceSnapshots(ctx, snaps); err != nil {
			return eris.Wrap(err, "pipeline: replace snapshots")
		}
		if p.cfg.HistoricalWeeks > 0 {
			if err := p.store.ReplaceHistorical(ctx, history); err != nil {
				return eris.Wrap(err, "pipeline: replace historical")
			}
		}
		return nil
	})
	if err != nil {
		return summary, err
	}

	err = stage(log, m, "unmatched", func() error {
		entries := health.Unmatched(clients, assocs, records, today, p.cfg.UnmatchedLookbackDays)
		for _, e := range entries {
			if e.Kind == model.UnmatchedClient {
				summary.UnmatchedClients++
			} else {
				summary.UnmatchedLabels++
			}
		}
		if summary.UnmatchedClients+summary.UnmatchedLabels > 0 {
			log.Warn("pipeline: unmatched names",
				zap.Int("clients_without_reporting", summary.UnmatchedClients),
				zap.Int("labels_without_client", summary.UnmatchedLabels),
			)
		}
		return eris.Wrap(p.store.ReplaceUnmatched(ctx, entries), "pipeline: replace unmatched")
	})
	return summary, err
}
