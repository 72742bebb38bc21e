package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hyperke/client-health/internal/db"
	"github.com/hyperke/client-health/internal/health"
	"github.com/hyperke/client-health/internal/leads"
	"github.com/hyperke/client-health/internal/metrics"
	"github.com/hyperke/client-health/internal/pipeline"
	"github.com/hyperke/client-health/internal/resilience"
	"github.com/hyperke/client-health/internal/runlock"
	"github.com/hyperke/client-health/internal/source"
	"github.com/hyperke/client-health/internal/store"
	"github.com/hyperke/client-health/pkg/smartlead"
)

// initStore opens the configured store backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "client_health.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{MaxConns: cfg.Store.MaxConns})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initMigratedStore opens the store and applies its schema.
func initMigratedStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// sources holds the read-only upstream pools.
type sources struct {
	reader  *source.Postgres
	closers []func()
}

func (s *sources) Close() {
	for _, c := range s.closers {
		c()
	}
}

// initSources connects both upstream databases read-only. When both URLs
// are equal a single pool is shared.
func initSources(ctx context.Context) (*sources, error) {
	opts := db.PoolOptions{MaxConns: cfg.Sources.MaxConns, ReadOnly: true}

	clients, err := db.Open(ctx, cfg.Sources.ClientsURL, opts)
	if err != nil {
		return nil, eris.Wrap(err, "connect clients source")
	}
	s := &sources{closers: []func(){clients.Close}}

	reporting := clients
	if cfg.Sources.ReportingURL != cfg.Sources.ClientsURL {
		reporting, err = db.Open(ctx, cfg.Sources.ReportingURL, opts)
		if err != nil {
			s.Close()
			return nil, eris.Wrap(err, "connect reporting source")
		}
		s.closers = append(s.closers, reporting.Close)
	}
	s.reader = source.NewPostgres(clients, reporting)
	return s, nil
}

// initLeadFetcher builds the SmartLead client and its worker pool.
func initLeadFetcher() *leads.Fetcher {
	sl := cfg.SmartLead
	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		Name:      "smartlead",
		Threshold: sl.BreakerThreshold,
		Cooldown:  time.Duration(sl.BreakerCooldownSec) * time.Second,
	})
	retry := resilience.DefaultRetryConfig().WithRetries(sl.MaxRetries)
	retry.OnRetry = resilience.RetryLogger("smartlead", "request")

	client := smartlead.NewClient(sl.APIKey,
		smartlead.WithBaseURL(sl.BaseURL),
		smartlead.WithTimeout(time.Duration(sl.RequestTimeoutSecs)*time.Second),
		smartlead.WithPageSize(sl.PageSize),
		smartlead.WithRateLimit(sl.RatePerSec),
		smartlead.WithRetry(retry),
		smartlead.WithBreaker(breaker),
	)
	return leads.NewFetcher(client, leads.Config{
		MaxWorkers:  sl.MaxWorkers,
		TaskTimeout: time.Duration(sl.TaskTimeoutSecs) * time.Second,
	})
}

// loadThresholds returns the defaults unless a thresholds file is set.
func loadThresholds() (health.Thresholds, error) {
	if cfg.Scoring.ThresholdsFile == "" {
		return health.DefaultThresholds(), nil
	}
	th, err := health.LoadThresholds(cfg.Scoring.ThresholdsFile)
	if err != nil {
		return th, eris.Wrap(err, "load thresholds")
	}
	zap.L().Info("loaded scoring thresholds", zap.String("path", cfg.Scoring.ThresholdsFile))
	return th, nil
}

func pipelineConfig(th health.Thresholds) pipeline.Config {
	return pipeline.Config{
		DaysBack:              cfg.Ingest.DaysBack,
		UnmatchedLookbackDays: cfg.Ingest.UnmatchedLookbackDays,
		HistoricalWeeks:       cfg.Ingest.HistoricalWeeks,
		Thresholds:            th,
	}
}

func initPusher() *metrics.Pusher {
	return metrics.NewPusher(cfg.Metrics.PushgatewayURL, cfg.Metrics.Job)
}

// withRunLock runs fn under the configured run lock, renewing the lease at
// a third of its TTL.
func withRunLock(ctx context.Context, fn func(ctx context.Context) error) error {
	ttl := time.Duration(cfg.Lock.TTLSecs) * time.Second
	locker, closeFn, err := runlock.New(cfg.Lock.RedisURL, cfg.Lock.Name, ttl)
	if err != nil {
		return err
	}
	defer closeFn() //nolint:errcheck

	err = runlock.Hold(ctx, locker, ttl/3, fn)
	if eris.Is(err, runlock.ErrHeld) {
		zap.L().Error("another run holds the lock", zap.String("lock", cfg.Lock.Name))
	}
	return err
}
