// Package source reads clients and campaign performance from the upstream
// systems of record. Every statement goes through db.ReadOnly.
package source

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hyperke/client-health/internal/db"
	"github.com/hyperke/client-health/internal/health"
	"github.com/hyperke/client-health/internal/model"
)

// ClientReader returns every client configuration row.
type ClientReader interface {
	Clients(ctx context.Context) ([]model.Client, error)
}

// PerformanceReader returns performance rows ending on or after cutoff.
type PerformanceReader interface {
	Performance(ctx context.Context, cutoff time.Time) ([]model.PerformanceRecord, error)
}

const clientsQuery = `SELECT
	client_id, client_code, client_name, client_company_name, relationship_status,
	assigned_account_manager_id::text, assigned_account_manager_name,
	assigned_inbox_manager_id::text, assigned_inbox_manager_name,
	assigned_sdr_id::text, assigned_sdr_name,
	weekly_target, COALESCE(closelix, false), onboarding_date, exit_date,
	bonus_pool_monthly::float8, COALESCE(weekend_sending, false)
FROM public.clients
ORDER BY client_id`

const performanceQuery = `SELECT
	campaign_date_key, campaign_id::text, parent_campaign_id::text, COALESCE(campaign_name, ''),
	COALESCE(client_name, ''), status, start_date, end_date,
	COALESCE(total_sent, 0)::bigint, COALESCE(new_leads_reached, 0)::bigint,
	COALESCE(replies_count, 0)::bigint, COALESCE(positive_reply, 0)::bigint,
	COALESCE(bounce_count, 0)::bigint, smartlead_account_name
FROM public.campaign_reporting
WHERE end_date >= $1`

// Postgres reads both sources over read-only connections.
type Postgres struct {
	clients   *db.ReadOnly
	reporting *db.ReadOnly
}

// NewPostgres wraps the client and reporting connections. They may be the
// same pool.
func NewPostgres(clients, reporting db.Querier) *Postgres {
	return &Postgres{
		clients:   db.NewReadOnly(clients),
		reporting: db.NewReadOnly(reporting),
	}
}

// Clients implements ClientReader. The weekly target is parsed here so the
// rest of the pipeline only sees the derived value and missing flag.
func (p *Postgres) Clients(ctx context.Context) ([]model.Client, error) {
	rows, err := p.clients.Query(ctx, clientsQuery)
	if err != nil {
		return nil, eris.Wrap(err, "source: query clients")
	}

	clients, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Client, error) {
		var c model.Client
		err := row.Scan(
			&c.ID, &c.Code, &c.Name, &c.CompanyName, &c.RelationshipStatus,
			&c.AccountManagerID, &c.AccountManagerName,
			&c.InboxManagerID, &c.InboxManagerName,
			&c.SDRID, &c.SDRName,
			&c.WeeklyTargetRaw, &c.Closelix, &c.OnboardingDate, &c.ExitDate,
			&c.BonusPoolMonthly, &c.WeekendSendingEffective,
		)
		return c, err
	})
	if err != nil {
		return nil, eris.Wrap(err, "source: scan clients")
	}

	missing := 0
	for i := range clients {
		clients[i].WeeklyTargetInt, clients[i].WeeklyTargetMissing = health.ParseWeeklyTarget(clients[i].WeeklyTargetRaw)
		if clients[i].WeeklyTargetMissing {
			missing++
		}
	}

	zap.L().Info("source: fetched clients",
		zap.Int("count", len(clients)),
		zap.Int("weekly_target_missing", missing),
	)
	return clients, nil
}

// Performance implements PerformanceReader.
func (p *Postgres) Performance(ctx context.Context, cutoff time.Time) ([]model.PerformanceRecord, error) {
	rows, err := p.reporting.Query(ctx, performanceQuery, health.Day(cutoff))
	if err != nil {
		return nil, eris.Wrap(err, "source: query campaign reporting")
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.PerformanceRecord, error) {
		var r model.PerformanceRecord
		err := row.Scan(
			&r.CampaignDateKey, &r.CampaignID, &r.ParentCampaignID, &r.CampaignName,
			&r.ClientLabel, &r.Status, &r.StartDate, &r.EndDate,
			&r.TotalSent, &r.NewLeadsReached,
			&r.RepliesCount, &r.PositiveReply,
			&r.BounceCount, &r.AccountName,
		)
		return r, err
	})
	if err != nil {
		return nil, eris.Wrap(err, "source: scan campaign reporting")
	}

	zap.L().Info("source: fetched campaign reporting",
		zap.Int("count", len(records)),
		zap.Time("cutoff", cutoff),
	)
	return records, nil
}
