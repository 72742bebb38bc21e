// Package pipeline runs one scoring pass: ingest, resolve, roll up, score,
// and persist, plus the standalone not-contacted refresh.
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
	"github.com/hyperke/client-health/internal/source"
	"github.com/hyperke/client-health/internal/store"
)

// Config is everything a run needs besides its collaborators.
type Config struct {
	DaysBack              int
	UnmatchedLookbackDays int
	// HistoricalWeeks of zero skips the historical table.
	HistoricalWeeks int
	Thresholds      health.Thresholds
}

// LeadFetcher produces fresh not-contacted counts.
type LeadFetcher interface {
	Fetch(ctx context.Context) (*leads.Result, error)
}

// Pipeline wires sources, store, and lead fetcher together.
type Pipeline struct {
	cfg     Config
	clients source.ClientReader
	perf    source.PerformanceReader
	store   store.Store
	leads   LeadFetcher
	pusher  *metrics.Pusher
	now     func() time.Time
}

// New creates a Pipeline. clients and perf may be nil for a pipeline that
// only refreshes not-contacted counts; fetcher may be nil when every run
// skips SmartLead; pusher may be nil.
func New(
	cfg Config,
	clients source.ClientReader,
	perf source.PerformanceReader,
	st store.Store,
	fetcher LeadFetcher,
	pusher *metrics.Pusher,
) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		clients: clients,
		perf:    perf,
		store:   st,
		leads:   fetcher,
		pusher:  pusher,
		now:     time.Now,
	}
}

// Run executes one invocation in the given mode, records it in the run log,
// and pushes its metrics.
func (p *Pipeline) Run(ctx context.Context, mode model.RunMode) (*model.RunSummary, error) {
	log := zap.L().With(zap.String("mode", string(mode)))

	run, err := p.store.StartRun(ctx, mode)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: start run")
	}
	log = log.With(zap.String("run_id", run.ID))
	log.Info("pipeline: run started")

	m := metrics.NewRun()
	start := p.now()

	var summary *model.RunSummary
	switch mode {
	case model.RunModeFull, model.RunModeQuick:
		summary, err = p.score(ctx, mode, m, log)
	case model.RunModeNotContacted:
		summary, err = p.notContacted(ctx, m, log)
	default:
		err = eris.Errorf("pipeline: unknown mode %q", mode)
	}
	m.Stage("total", p.now().Sub(start))
	m.Summary(summary)
	m.Finish(err, p.now())

	// The run row and metrics are written even if ctx was cancelled.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()

	if err != nil {
		log.Error("pipeline: run failed", zap.Error(err))
		if failErr := p.store.FailRun(wctx, run.ID, err); failErr != nil {
			log.Warn("pipeline: failed to record run failure", zap.Error(failErr))
		}
	} else if doneErr := p.store.CompleteRun(wctx, run.ID, summary); doneErr != nil {
		err = eris.Wrap(doneErr, "pipeline: complete run")
	}

	if pushErr := p.pusher.Push(wctx, m, mode); pushErr != nil {
		log.Warn("pipeline: metrics push failed", zap.Error(pushErr))
	}

	if err != nil {
		return summary, err
	}
	log.Info("pipeline: run complete",
		zap.Int("snapshots", summary.Snapshots),
		zap.Duration("elapsed", p.now().Sub(start)),
	)
	return summary, nil
}

// stage times fn under name and logs its outcome.
func stage(log *zap.Logger, m *metrics.Run, name string, fn func() error) error {
	start := time.Now()
	err := m.Time(name, fn)
	if err != nil {
		log.Error("pipeline: stage failed", zap.String("stage", name), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return err
	}
	log.Info("pipeline: stage complete", zap.String("stage", name), zap.Duration("elapsed", time.Since(start)))
	return nil
}
