// Package metrics records per-run gauges and pushes them to a Prometheus
// Pushgateway. Batch runs exit before any scrape, so push is the only path.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hyperke/client-health/internal/model"
)

const namespace = "client_health"

// Run holds the collectors for one pipeline invocation.
type Run struct {
	reg *prometheus.Registry

	clients        *prometheus.GaugeVec
	unmatched      *prometheus.GaugeVec
	leadCampaigns  *prometheus.GaugeVec
	notContacted   *prometheus.GaugeVec
	stageDuration  *prometheus.GaugeVec
	lastSuccess    prometheus.Gauge
	lastRunSuccess prometheus.Gauge
}

// NewRun registers a fresh set of collectors.
func NewRun() *Run {
	r := &Run{
		reg: prometheus.NewRegistry(),
		clients: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clients",
			Help:      "Clients scored in the current snapshot by RAG status.",
		}, []string{"status"}),
		unmatched: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unmatched",
			Help:      "Unmatched clients and reporting labels.",
		}, []string{"kind"}),
		leadCampaigns: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lead_campaigns",
			Help:      "SmartLead campaigns counted, by outcome.",
		}, []string{"outcome"}),
		notContacted: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "not_contacted_clients",
			Help:      "Clients by source of their not-contacted count.",
		}, []string{"source"}),
		stageDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of each pipeline stage.",
		}, []string{"stage"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
		lastRunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 if the last run succeeded, 0 otherwise.",
		}),
	}
	r.reg.MustRegister(r.clients, r.unmatched, r.leadCampaigns, r.notContacted, r.stageDuration, r.lastRunSuccess)
	return r
}

// Registry exposes the underlying registry.
func (r *Run) Registry() *prometheus.Registry { return r.reg }

// Stage records how long a stage took.
func (r *Run) Stage(name string, d time.Duration) {
	r.stageDuration.WithLabelValues(name).Set(d.Seconds())
}

// Time runs fn and records its duration under name.
func (r *Run) Time(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	r.Stage(name, time.Since(start))
	return err
}

// Summary copies the run counts into gauges.
func (r *Run) Summary(s *model.RunSummary) {
	if s == nil {
		return
	}
	for _, st := range []model.RAGStatus{model.RAGGreen, model.RAGYellow, model.RAGRed} {
		r.clients.WithLabelValues(string(st)).Set(float64(s.Status[st]))
	}
	r.unmatched.WithLabelValues(string(model.UnmatchedClient)).Set(float64(s.UnmatchedClients))
	r.unmatched.WithLabelValues(string(model.UnmatchedLabel)).Set(float64(s.UnmatchedLabels))
	r.leadCampaigns.WithLabelValues("ok").Set(float64(s.LeadCampaigns - s.LeadCampaignsFailed))
	r.leadCampaigns.WithLabelValues("failed").Set(float64(s.LeadCampaignsFailed))
	r.notContacted.WithLabelValues("fresh").Set(float64(s.NotContactedFresh))
	r.notContacted.WithLabelValues("preserved").Set(float64(s.NotContactedPreserved))
}

// Finish marks the run outcome. The success timestamp is only registered
// on success, so pushing a failed run leaves the gateway's value alone.
func (r *Run) Finish(err error, at time.Time) {
	if err != nil {
		r.lastRunSuccess.Set(0)
		return
	}
	r.lastRunSuccess.Set(1)
	r.lastSuccess.Set(float64(at.Unix()))
	if regErr := r.reg.Register(r.lastSuccess); regErr != nil {
		zap.L().Debug("metrics: last success already registered", zap.Error(regErr))
	}
}

// Pusher delivers a Run to a Pushgateway.
type Pusher struct {
	url string
	job string
}

// NewPusher returns nil when url is empty; a nil Pusher's Push is a no-op.
func NewPusher(url, job string) *Pusher {
	if url == "" {
		return nil
	}
	if job == "" {
		job = namespace
	}
	return &Pusher{url: url, job: job}
}

// Push adds r to the job's group for mode. Metrics r does not carry keep
// their previous values in the gateway.
func (p *Pusher) Push(ctx context.Context, r *Run, mode model.RunMode) error {
	if p == nil || r == nil {
		return nil
	}
	err := push.New(p.url, p.job).
		Gatherer(r.reg).
		Grouping("mode", string(mode)).
		AddContext(ctx)
	if err != nil {
		return eris.Wrap(err, "metrics: push")
	}
	zap.L().Debug("metrics pushed", zap.String("job", p.job), zap.String("mode", string(mode)))
	return nil
}
