package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hyperke/client-health/internal/db"
	"github.com/hyperke/client-health/internal/health"
	"github.com/hyperke/client-health/internal/model"
)

// snapshotLockKey serializes writers of the snapshot tables across
// processes via pg_advisory_xact_lock.
const snapshotLockKey int64 = 0x63685f736e6170 // "ch_snap"

// PostgresStore implements Store on a pgx pool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
}

// NewPostgres connects to the local store database.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	opts := db.PoolOptions{MaxConns: 10}
	if poolCfg != nil && poolCfg.MaxConns > 0 {
		opts.MaxConns = poolCfg.MaxConns
	}
	pool, err := db.Open(ctx, connString, opts)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: open store")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool; tests pass pgxmock here.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

var postgresMigration = `
CREATE TABLE IF NOT EXISTS clients (
	client_id                     BIGINT PRIMARY KEY,
	client_code                   TEXT NOT NULL,
	client_name                   TEXT,
	client_company_name           TEXT,
	relationship_status           TEXT,
	assigned_account_manager_id   TEXT,
	assigned_account_manager_name TEXT,
	assigned_inbox_manager_id     TEXT,
	assigned_inbox_manager_name   TEXT,
	assigned_sdr_id               TEXT,
	assigned_sdr_name             TEXT,
	weekly_target                 TEXT,
	weekly_target_int             BIGINT,
	weekly_target_missing         BOOLEAN NOT NULL DEFAULT false,
	closelix                      BOOLEAN NOT NULL DEFAULT false,
	onboarding_date               DATE,
	exit_date                     DATE,
	bonus_pool_monthly            DOUBLE PRECISION,
	weekend_sending_effective     BOOLEAN NOT NULL DEFAULT false,
	updated_at                    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS campaign_reporting (
	campaign_date_key      TEXT NOT NULL,
	campaign_id            TEXT NOT NULL,
	parent_campaign_id     TEXT,
	campaign_name          TEXT NOT NULL DEFAULT '',
	client_name            TEXT NOT NULL DEFAULT '',
	client_name_norm       TEXT NOT NULL DEFAULT '',
	status                 TEXT,
	start_date             DATE,
	end_date               DATE NOT NULL,
	total_sent             BIGINT NOT NULL DEFAULT 0,
	new_leads_reached      BIGINT NOT NULL DEFAULT 0,
	replies_count          BIGINT NOT NULL DEFAULT 0,
	positive_reply         BIGINT NOT NULL DEFAULT 0,
	bounce_count           BIGINT NOT NULL DEFAULT 0,
	smartlead_account_name TEXT
);

CREATE INDEX IF NOT EXISTS idx_campaign_reporting_end_date ON campaign_reporting(end_date);
CREATE INDEX IF NOT EXISTS idx_campaign_reporting_norm ON campaign_reporting(client_name_norm);

CREATE TABLE IF NOT EXISTS client_name_map (
	client_id        BIGINT PRIMARY KEY,
	client_code      TEXT NOT NULL,
	client_code_norm TEXT NOT NULL,
	client_name_norm TEXT NOT NULL,
	match_confidence TEXT NOT NULL
);
` + snapshotTableDDL(tableSnapshots, "PRIMARY KEY (client_id)") +
	snapshotTableDDL(tableHistory, "PRIMARY KEY (week_number, client_id)") + `
CREATE TABLE IF NOT EXISTS unmatched_mappings (
	match_type       TEXT NOT NULL,
	client_code      TEXT,
	client_name_norm TEXT NOT NULL,
	last_seen_date   DATE NOT NULL,
	record_count     BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	mode        TEXT NOT NULL,
	status      TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ,
	summary     JSONB,
	error       TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC);
`

func snapshotTableDDL(table, pk string) string {
	return `
CREATE TABLE IF NOT EXISTS ` + table + ` (
	client_id                      BIGINT NOT NULL,
	client_code                    TEXT NOT NULL,
	client_name                    TEXT,
	client_company_name            TEXT,
	relationship_status            TEXT,
	assigned_account_manager_name  TEXT,
	assigned_inbox_manager_name    TEXT,
	assigned_sdr_name              TEXT,
	weekly_target_int              BIGINT,
	weekly_target_missing          BOOLEAN NOT NULL DEFAULT false,
	closelix                       BOOLEAN NOT NULL DEFAULT false,
	bonus_pool_monthly             DOUBLE PRECISION,
	weekend_sending_effective      BOOLEAN NOT NULL DEFAULT false,
	period_start                   DATE NOT NULL,
	period_end                     DATE NOT NULL,
	week_number                    INTEGER NOT NULL DEFAULT 0,
	contacted_7d                   BIGINT,
	replies_7d                     BIGINT,
	positives_7d                   BIGINT,
	bounces_7d                     BIGINT,
	new_leads_reached_7d           BIGINT,
	reply_rate_7d                  DOUBLE PRECISION,
	positive_reply_rate_7d         DOUBLE PRECISION,
	bounce_pct_7d                  DOUBLE PRECISION,
	prorated_target                DOUBLE PRECISION,
	volume_attainment              DOUBLE PRECISION,
	pcpl_proxy_7d                  DOUBLE PRECISION,
	not_contacted_leads            BIGINT,
	rr_rag                         TEXT,
	prr_rag                        TEXT,
	pcpl_rag                       TEXT,
	br_rag                         TEXT,
	volume_rag                     TEXT,
	deliverability_flag            BOOLEAN NOT NULL DEFAULT false,
	volume_flag                    BOOLEAN NOT NULL DEFAULT false,
	mmf_flag                       BOOLEAN NOT NULL DEFAULT false,
	data_missing_flag              BOOLEAN NOT NULL DEFAULT false,
	data_stale_flag                BOOLEAN NOT NULL DEFAULT false,
	rag_status                     TEXT NOT NULL,
	rag_reason                     TEXT NOT NULL,
	most_recent_reporting_end_date DATE,
	computed_at                    TIMESTAMPTZ NOT NULL,
	` + pk + `
);
`
}

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

// Migrate creates the schema if needed.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// UpsertClients upserts every client and backfills manager names in one
// transaction.
func (s *PostgresStore) UpsertClients(ctx context.Context, clients []model.Client) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, len(clients))
	for i, c := range clients {
		rows[i] = clientValues(c, now)
	}

	var n int64
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		n, err = db.BulkUpsert(ctx, tx, db.UpsertConfig{
			Table:        tableClients,
			Columns:      clientColumns,
			ConflictKeys: []string{"client_id"},
		}, rows)
		if err != nil {
			return err
		}
		for _, stmt := range backfillStatements() {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return eris.Wrap(err, "postgres: backfill manager names")
			}
		}
		return nil
	})
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert clients")
	}
	return n, nil
}

// ReplacePerformance deletes rows ending on or after cutoff and inserts records.
func (s *PostgresStore) ReplacePerformance(ctx context.Context, cutoff time.Time, records []model.PerformanceRecord) (int64, error) {
	rows := make([][]any, len(records))
	for i, r := range records {
		rows[i] = performanceValues(r, health.Normalize(r.ClientLabel))
	}

	var n int64
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM campaign_reporting WHERE end_date >= $1`, health.Day(cutoff)); err != nil {
			return eris.Wrap(err, "postgres: delete campaign reporting")
		}
		var err error
		n, err = db.CopyFrom(ctx, tx, tablePerformance, performanceColumns, rows)
		return err
	})
	if err != nil {
		return 0, eris.Wrap(err, "postgres: replace performance")
	}
	return n, nil
}

// ReplaceNameMap swaps the name association table.
func (s *PostgresStore) ReplaceNameMap(ctx context.Context, assocs []model.NameAssociation) error {
	rows := make([][]any, len(assocs))
	for i, a := range assocs {
		rows[i] = nameMapValues(a)
	}
	return eris.Wrap(s.replaceTable(ctx, tableNameMap, nameMapColumns, rows, false), "postgres: replace name map")
}

// ReplaceSnapshots swaps the current snapshot. Readers never see a partial
// table and concurrent writers are serialized by an advisory lock.
func (s *PostgresStore) ReplaceSnapshots(ctx context.Context, snaps []model.HealthSnapshot) error {
	return eris.Wrap(s.replaceTable(ctx, tableSnapshots, snapshotColumns, snapshotRows(snaps), true), "postgres: replace snapshots")
}

// ReplaceHistorical swaps the historical snapshot table.
func (s *PostgresStore) ReplaceHistorical(ctx context.Context, snaps []model.HealthSnapshot) error {
	return eris.Wrap(s.replaceTable(ctx, tableHistory, snapshotColumns, snapshotRows(snaps), true), "postgres: replace historical")
}

// ReplaceUnmatched swaps the unmatched report.
func (s *PostgresStore) ReplaceUnmatched(ctx context.Context, entries []model.UnmatchedEntry) error {
	rows := make([][]any, len(entries))
	for i, u := range entries {
		rows[i] = unmatchedValues(u)
	}
	return eris.Wrap(s.replaceTable(ctx, tableUnmatched, unmatchedColumns, rows, false), "postgres: replace unmatched")
}

func snapshotRows(snaps []model.HealthSnapshot) [][]any {
	rows := make([][]any, len(snaps))
	for i, sn := range snaps {
		rows[i] = snapshotValues(sn)
	}
	return rows
}

func (s *PostgresStore) replaceTable(ctx context.Context, table string, columns []string, rows [][]any, lock bool) error {
	return db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		if lock {
			if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, snapshotLockKey); err != nil {
				return eris.Wrap(err, "advisory lock")
			}
		}
		if _, err := tx.Exec(ctx, "DELETE FROM "+pgx.Identifier{table}.Sanitize()); err != nil {
			return eris.Wrapf(err, "delete %s", table)
		}
		_, err := db.CopyFrom(ctx, tx, table, columns, rows)
		return err
	})
}

// NotContactedCounts returns the stored count per client on the current snapshot.
func (s *PostgresStore) NotContactedCounts(ctx context.Context) (map[int64]*int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT client_id, not_contacted_leads FROM client_health_snapshots`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query not contacted")
	}
	defer rows.Close()

	out := make(map[int64]*int64)
	for rows.Next() {
		var id int64
		var n *int64
		if err := rows.Scan(&id, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan not contacted")
		}
		out[id] = n
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate not contacted")
}

// UpdateNotContacted writes counts onto existing snapshot rows.
func (s *PostgresStore) UpdateNotContacted(ctx context.Context, counts map[int64]*int64) (int64, error) {
	var updated int64
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, snapshotLockKey); err != nil {
			return eris.Wrap(err, "advisory lock")
		}
		for _, id := range sortedIDs(counts) {
			tag, err := tx.Exec(ctx,
				`UPDATE client_health_snapshots SET not_contacted_leads = $1 WHERE client_id = $2`,
				counts[id], id,
			)
			if err != nil {
				return eris.Wrapf(err, "update client %d", id)
			}
			updated += tag.RowsAffected()
		}
		return nil
	})
	if err != nil {
		return 0, eris.Wrap(err, "postgres: update not contacted")
	}
	return updated, nil
}

// StartRun records a new running run.
func (s *PostgresStore) StartRun(ctx context.Context, mode model.RunMode) (*model.Run, error) {
	r := &model.Run{
		ID:        uuid.New().String(),
		Mode:      mode,
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, mode, status, started_at) VALUES ($1, $2, $3, $4)`,
		r.ID, string(r.Mode), string(r.Status), r.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return r, nil
}

// CompleteRun marks a run complete with its summary.
func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, summary *model.RunSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal summary")
	}
	return s.finishRun(ctx, runID, model.RunStatusComplete, summaryJSON, "")
}

// FailRun marks a run failed.
func (s *PostgresStore) FailRun(ctx context.Context, runID string, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	return s.finishRun(ctx, runID, model.RunStatusFailed, nil, msg)
}

func (s *PostgresStore) finishRun(ctx context.Context, runID string, status model.RunStatus, summary []byte, msg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, summary = $2, error = $3, finished_at = $4 WHERE id = $5`,
		string(status), summary, msg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

// ListRuns returns the most recent runs first.
func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, mode, status, started_at, finished_at, summary, error FROM runs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var summary []byte
		if err := rows.Scan(&r.ID, &r.Mode, &r.Status, &r.StartedAt, &r.FinishedAt, &summary, &r.Error); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if len(summary) > 0 {
			r.Summary = &model.RunSummary{}
			if err := json.Unmarshal(summary, r.Summary); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal summary")
			}
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) selectSnapshots(ctx context.Context, table, where string, args ...any) ([]model.HealthSnapshot, error) {
	query := "SELECT " + strings.Join(snapshotColumns, ", ") + " FROM " + pgx.Identifier{table}.Sanitize()
	if where != "" {
		query += " WHERE " + where
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: query %s", table)
	}
	defer rows.Close()

	var out []model.HealthSnapshot
	for rows.Next() {
		sn, err := scanSnapshot(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: scan %s", table)
		}
		out = append(out, sn)
	}
	return out, eris.Wrapf(rows.Err(), "postgres: iterate %s", table)
}

// ListSnapshots returns the filtered current snapshot.
func (s *PostgresStore) ListSnapshots(ctx context.Context, filter SnapshotFilter) ([]model.HealthSnapshot, error) {
	snaps, err := s.selectSnapshots(ctx, tableSnapshots, "")
	if err != nil {
		return nil, err
	}
	return applyFilter(snaps, filter), nil
}

// GetSnapshot returns one client's current snapshot, matching the code
// case-insensitively.
func (s *PostgresStore) GetSnapshot(ctx context.Context, clientCode string) (*model.HealthSnapshot, error) {
	snaps, err := s.selectSnapshots(ctx, tableSnapshots, "lower(client_code) = lower($1)", clientCode)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, eris.Wrapf(ErrNotFound, "client %s", clientCode)
	}
	return &snaps[0], nil
}

// FilterOptions returns distinct filter values from the current snapshot.
func (s *PostgresStore) FilterOptions(ctx context.Context) (*FilterOptions, error) {
	snaps, err := s.selectSnapshots(ctx, tableSnapshots, "")
	if err != nil {
		return nil, err
	}
	return filterOptions(snaps), nil
}

// ListUnmatched returns the unmatched report.
func (s *PostgresStore) ListUnmatched(ctx context.Context) ([]model.UnmatchedEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+strings.Join(unmatchedColumns, ", ")+` FROM unmatched_mappings ORDER BY match_type, last_seen_date DESC, client_name_norm`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list unmatched")
	}
	defer rows.Close()

	var out []model.UnmatchedEntry
	for rows.Next() {
		u, err := scanUnmatched(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan unmatched")
		}
		out = append(out, u)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate unmatched")
}

// ListWeeks returns the stored historical weeks.
func (s *PostgresStore) ListWeeks(ctx context.Context) ([]WeekInfo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT week_number, period_start, period_end, COUNT(*) FROM client_health_history
		 GROUP BY week_number, period_start, period_end ORDER BY week_number`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list weeks")
	}
	defer rows.Close()

	var out []WeekInfo
	for rows.Next() {
		var w WeekInfo
		if err := rows.Scan(&w.WeekNumber, &w.Start, &w.End, &w.RecordCount); err != nil {
			return nil, eris.Wrap(err, "postgres: scan week")
		}
		w.DisplayName = WeekDisplayName(w.WeekNumber, w.Start, w.End)
		out = append(out, w)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate weeks")
}

// ListHistorical returns the stored rows for the given weeks.
func (s *PostgresStore) ListHistorical(ctx context.Context, weeks []int) ([]model.HealthSnapshot, error) {
	if err := validateWeeks(weeks); err != nil {
		return nil, err
	}
	snaps, err := s.selectSnapshots(ctx, tableHistory, "week_number = ANY($1) ORDER BY client_code, week_number", weeks)
	if err != nil {
		return nil, err
	}
	zap.L().Debug("postgres: historical rows", zap.Ints("weeks", weeks), zap.Int("rows", len(snaps)))
	return snaps, nil
}

func sortedIDs(m map[int64]*int64) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sortInt64s(ids)
	return ids
}

// IsNotFound reports whether err wraps ErrNotFound or pgx.ErrNoRows.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, pgx.ErrNoRows)
}
