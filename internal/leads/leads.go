// Package leads counts not-yet-contacted SmartLead leads per client.
package leads

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperke/client-health/internal/health"
	"github.com/hyperke/client-health/pkg/smartlead"
)

// UnknownClient labels campaigns with no client name anywhere.
const UnknownClient = "Unknown"

// Config bounds the campaign fan-out.
type Config struct {
	MaxWorkers  int
	TaskTimeout time.Duration
}

// CampaignResult is the outcome of counting one campaign.
type CampaignResult struct {
	CampaignID   int64
	CampaignName string
	ClientName   string
	Counts       smartlead.LeadCounts
	Err          error
}

// ClientSummary consolidates every campaign that belongs to one client name.
type ClientSummary struct {
	ClientName      string
	TotalLeads      int64
	NotContacted    int64
	Campaigns       int
	FailedCampaigns int
}

// Complete reports whether every campaign of the client was counted.
func (s ClientSummary) Complete() bool { return s.FailedCampaigns == 0 }

// Result is a finished fetch.
type Result struct {
	Campaigns []CampaignResult
	Clients   []ClientSummary
}

// Failed returns the number of campaigns that could not be counted.
func (r *Result) Failed() int {
	n := 0
	for _, c := range r.Campaigns {
		if c.Err != nil {
			n++
		}
	}
	return n
}

// Fresh maps normalized client name to not-contacted count, leaving out
// any client with a failed campaign.
func (r *Result) Fresh() map[string]int64 {
	out := make(map[string]int64, len(r.Clients))
	partial := make(map[string]bool)
	for _, s := range r.Clients {
		key := health.Normalize(s.ClientName)
		if !s.Complete() {
			partial[key] = true
			continue
		}
		out[key] += s.NotContacted
	}
	for key := range partial {
		delete(out, key)
	}
	return out
}

// Fetcher fans campaign lead counts out over a bounded worker pool.
type Fetcher struct {
	client smartlead.Client
	cfg    Config
}

// NewFetcher returns a Fetcher with defaults of 10 workers and a 10 minute task timeout.
func NewFetcher(client smartlead.Client, cfg Config) *Fetcher {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 10
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 10 * time.Minute
	}
	return &Fetcher{client: client, cfg: cfg}
}

// Fetch counts leads for every active campaign. Only a failure to list
// campaigns is returned as an error; per-campaign failures are recorded
// on the result.
func (f *Fetcher) Fetch(ctx context.Context) (*Result, error) {
	log := zap.L().With(zap.String("component", "leads"))
	start := time.Now()

	campaigns, err := f.client.ActiveCampaigns(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "leads: active campaigns")
	}
	if len(campaigns) == 0 {
		log.Warn("no active campaigns")
		return &Result{}, nil
	}

	clientMap, err := f.client.Clients(ctx)
	if err != nil {
		log.Warn("client list unavailable, using campaign client names only", zap.Error(err))
		clientMap = nil
	}

	log.Info("counting campaign leads",
		zap.Int("campaigns", len(campaigns)),
		zap.Int("workers", f.cfg.MaxWorkers),
	)

	results := make([]CampaignResult, len(campaigns))
	var (
		mu   sync.Mutex
		done int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.MaxWorkers)

	for i, cp := range campaigns {
		i, cp := i, cp
		g.Go(func() error {
			res := f.countCampaign(gctx, cp, clientMap)
			results[i] = res

			mu.Lock()
			done++
			n := done
			mu.Unlock()

			if res.Err != nil {
				log.Warn("campaign lead count failed",
					zap.Int64("campaign_id", cp.ID),
					zap.String("client", res.ClientName),
					zap.Error(res.Err),
				)
			} else if n%50 == 0 {
				log.Debug("campaign progress", zap.Int("done", n), zap.Int("total", len(campaigns)))
			}
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		return nil, eris.Wrap(ctx.Err(), "leads: fetch cancelled")
	}

	r := &Result{Campaigns: results, Clients: Consolidate(results)}
	log.Info("campaign lead counts complete",
		zap.Int("campaigns", len(results)),
		zap.Int("failed", r.Failed()),
		zap.Int("clients", len(r.Clients)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return r, nil
}

func (f *Fetcher) countCampaign(ctx context.Context, cp smartlead.Campaign, clients map[int64]smartlead.ClientInfo) CampaignResult {
	res := CampaignResult{
		CampaignID:   cp.ID,
		CampaignName: cp.Name,
		ClientName:   ClientName(cp, clients),
	}

	tctx, cancel := context.WithTimeout(ctx, f.cfg.TaskTimeout)
	defer cancel()

	counts, err := f.client.CampaignLeads(tctx, cp.ID)
	if err != nil {
		res.Err = err
		return res
	}
	res.Counts = *counts
	return res
}

// ClientName picks the campaign's own client name, then the SmartLead
// client record, then UnknownClient.
func ClientName(cp smartlead.Campaign, clients map[int64]smartlead.ClientInfo) string {
	if cp.ClientName != "" {
		return cp.ClientName
	}
	if cp.ClientID != nil {
		if ci, ok := clients[*cp.ClientID]; ok && ci.Name != "" {
			return ci.Name
		}
	}
	return UnknownClient
}

// Consolidate groups campaign results by client name, sorted by name.
func Consolidate(results []CampaignResult) []ClientSummary {
	byName := make(map[string]*ClientSummary)
	for _, r := range results {
		s, ok := byName[r.ClientName]
		if !ok {
			s = &ClientSummary{ClientName: r.ClientName}
			byName[r.ClientName] = s
		}
		s.Campaigns++
		if r.Err != nil {
			s.FailedCampaigns++
			continue
		}
		s.TotalLeads += r.Counts.Total
		s.NotContacted += r.Counts.NotContacted()
	}

	out := make([]ClientSummary, 0, len(byName))
	for _, s := range byName {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientName < out[j].ClientName })
	return out
}
