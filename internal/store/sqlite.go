package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/hyperke/client-health/internal/health"
	"github.com/hyperke/client-health/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// A single writer connection keeps whole-table replaces serialized.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

var sqliteMigration = `
CREATE TABLE IF NOT EXISTS clients (
	client_id                     INTEGER PRIMARY KEY,
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
	weekly_target_int             INTEGER,
	weekly_target_missing         BOOLEAN NOT NULL DEFAULT 0,
	closelix                      BOOLEAN NOT NULL DEFAULT 0,
	onboarding_date               DATE,
	exit_date                     DATE,
	bonus_pool_monthly            REAL,
	weekend_sending_effective     BOOLEAN NOT NULL DEFAULT 0,
	updated_at                    DATETIME NOT NULL DEFAULT (datetime('now'))
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
	total_sent             INTEGER NOT NULL DEFAULT 0,
	new_leads_reached      INTEGER NOT NULL DEFAULT 0,
	replies_count          INTEGER NOT NULL DEFAULT 0,
	positive_reply         INTEGER NOT NULL DEFAULT 0,
	bounce_count           INTEGER NOT NULL DEFAULT 0,
	smartlead_account_name TEXT
);

CREATE INDEX IF NOT EXISTS idx_campaign_reporting_end_date ON campaign_reporting(end_date);

CREATE TABLE IF NOT EXISTS client_name_map (
	client_id        INTEGER PRIMARY KEY,
	client_code      TEXT NOT NULL,
	client_code_norm TEXT NOT NULL,
	client_name_norm TEXT NOT NULL,
	match_confidence TEXT NOT NULL
);
` + sqliteSnapshotDDL(tableSnapshots, "PRIMARY KEY (client_id)") +
	sqliteSnapshotDDL(tableHistory, "PRIMARY KEY (week_number, client_id)") + `
CREATE TABLE IF NOT EXISTS unmatched_mappings (
	match_type       TEXT NOT NULL,
	client_code      TEXT,
	client_name_norm TEXT NOT NULL,
	last_seen_date   DATE NOT NULL,
	record_count     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	mode        TEXT NOT NULL,
	status      TEXT NOT NULL,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME,
	summary     TEXT,
	error       TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

// sqliteSnapshotDDL mirrors the Postgres snapshot schema with SQLite types.
func sqliteSnapshotDDL(table, pk string) string {
	ddl := snapshotTableDDL(table, pk)
	return strings.NewReplacer(
		"BIGINT", "INTEGER",
		"DOUBLE PRECISION", "REAL",
		"TIMESTAMPTZ", "DATETIME",
		"DEFAULT false", "DEFAULT 0",
	).Replace(ddl)
}

// Ping checks connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

// Migrate creates the schema if needed.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tx")
}

// insertRows runs one prepared INSERT per row.
func insertRows(ctx context.Context, tx *sql.Tx, table string, columns []string, rows [][]any, conflict string) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	query := "INSERT INTO " + table + " (" + strings.Join(columns, ", ") + ") VALUES (" + placeholders + ")" + conflict

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: prepare insert %s", table)
	}
	defer stmt.Close() //nolint:errcheck

	var n int64
	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return n, eris.Wrapf(err, "sqlite: insert %s", table)
		}
		n++
	}
	return n, nil
}

// UpsertClients upserts every client and backfills manager names.
func (s *SQLiteStore) UpsertClients(ctx context.Context, clients []model.Client) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, len(clients))
	for i, c := range clients {
		rows[i] = clientValues(c, now)
	}

	sets := make([]string, 0, len(clientColumns)-1)
	for _, c := range clientColumns[1:] {
		sets = append(sets, c+" = excluded."+c)
	}
	conflict := " ON CONFLICT (client_id) DO UPDATE SET " + strings.Join(sets, ", ")

	var n int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if n, err = insertRows(ctx, tx, tableClients, clientColumns, rows, conflict); err != nil {
			return err
		}
		for _, stmt := range backfillStatements() {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return eris.Wrap(err, "sqlite: backfill manager names")
			}
		}
		return nil
	})
	return n, eris.Wrap(err, "sqlite: upsert clients")
}

// ReplacePerformance deletes rows ending on or after cutoff and inserts records.
func (s *SQLiteStore) ReplacePerformance(ctx context.Context, cutoff time.Time, records []model.PerformanceRecord) (int64, error) {
	rows := make([][]any, len(records))
	for i, r := range records {
		rows[i] = performanceValues(r, health.Normalize(r.ClientLabel))
	}

	var n int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM campaign_reporting WHERE end_date >= ?`, health.Day(cutoff)); err != nil {
			return eris.Wrap(err, "sqlite: delete campaign reporting")
		}
		var err error
		n, err = insertRows(ctx, tx, tablePerformance, performanceColumns, rows, "")
		return err
	})
	return n, eris.Wrap(err, "sqlite: replace performance")
}

func (s *SQLiteStore) replaceTable(ctx context.Context, table string, columns []string, rows [][]any) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return eris.Wrapf(err, "sqlite: delete %s", table)
		}
		_, err := insertRows(ctx, tx, table, columns, rows, "")
		return err
	})
}

// ReplaceNameMap swaps the name association table.
func (s *SQLiteStore) ReplaceNameMap(ctx context.Context, assocs []model.NameAssociation) error {
	rows := make([][]any, len(assocs))
	for i, a := range assocs {
		rows[i] = nameMapValues(a)
	}
	return s.replaceTable(ctx, tableNameMap, nameMapColumns, rows)
}

// ReplaceSnapshots swaps the current snapshot.
func (s *SQLiteStore) ReplaceSnapshots(ctx context.Context, snaps []model.HealthSnapshot) error {
	return s.replaceTable(ctx, tableSnapshots, snapshotColumns, snapshotRows(snaps))
}

// ReplaceHistorical swaps the historical snapshot table.
func (s *SQLiteStore) ReplaceHistorical(ctx context.Context, snaps []model.HealthSnapshot) error {
	return s.replaceTable(ctx, tableHistory, snapshotColumns, snapshotRows(snaps))
}

// ReplaceUnmatched swaps the unmatched report.
func (s *SQLiteStore) ReplaceUnmatched(ctx context.Context, entries []model.UnmatchedEntry) error {
	rows := make([][]any, len(entries))
	for i, u := range entries {
		rows[i] = unmatchedValues(u)
	}
	return s.replaceTable(ctx, tableUnmatched, unmatchedColumns, rows)
}

// NotContactedCounts returns the stored count per client on the current snapshot.
func (s *SQLiteStore) NotContactedCounts(ctx context.Context) (map[int64]*int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT client_id, not_contacted_leads FROM client_health_snapshots`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query not contacted")
	}
	defer rows.Close() //nolint:errcheck

	out := make(map[int64]*int64)
	for rows.Next() {
		var id int64
		var n *int64
		if err := rows.Scan(&id, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan not contacted")
		}
		out[id] = n
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate not contacted")
}

// UpdateNotContacted writes counts onto existing snapshot rows.
func (s *SQLiteStore) UpdateNotContacted(ctx context.Context, counts map[int64]*int64) (int64, error) {
	var updated int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, id := range sortedIDs(counts) {
			res, err := tx.ExecContext(ctx,
				`UPDATE client_health_snapshots SET not_contacted_leads = ? WHERE client_id = ?`,
				counts[id], id,
			)
			if err != nil {
				return eris.Wrapf(err, "sqlite: update client %d", id)
			}
			n, _ := res.RowsAffected()
			updated += n
		}
		return nil
	})
	return updated, eris.Wrap(err, "sqlite: update not contacted")
}

// StartRun records a new running run.
func (s *SQLiteStore) StartRun(ctx context.Context, mode model.RunMode) (*model.Run, error) {
	r := &model.Run{
		ID:        uuid.New().String(),
		Mode:      mode,
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, mode, status, started_at) VALUES (?, ?, ?, ?)`,
		r.ID, string(r.Mode), string(r.Status), r.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return r, nil
}

// CompleteRun marks a run complete with its summary.
func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, summary *model.RunSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal summary")
	}
	return s.finishRun(ctx, runID, model.RunStatusComplete, sql.NullString{String: string(summaryJSON), Valid: true}, "")
}

// FailRun marks a run failed.
func (s *SQLiteStore) FailRun(ctx context.Context, runID string, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	return s.finishRun(ctx, runID, model.RunStatusFailed, sql.NullString{}, msg)
}

func (s *SQLiteStore) finishRun(ctx context.Context, runID string, status model.RunStatus, summary sql.NullString, msg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, summary = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(status), summary, msg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

// ListRuns returns the most recent runs first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, mode, status, started_at, finished_at, summary, error FROM runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var mode, status string
		var summary sql.NullString
		if err := rows.Scan(&r.ID, &mode, &status, &r.StartedAt, &r.FinishedAt, &summary, &r.Error); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		r.Mode = model.RunMode(mode)
		r.Status = model.RunStatus(status)
		if summary.Valid {
			r.Summary = &model.RunSummary{}
			if err := json.Unmarshal([]byte(summary.String), r.Summary); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal summary")
			}
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) selectSnapshots(ctx context.Context, table, where string, args ...any) ([]model.HealthSnapshot, error) {
	query := "SELECT " + strings.Join(snapshotColumns, ", ") + " FROM " + table
	if where != "" {
		query += " WHERE " + where
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query %s", table)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.HealthSnapshot
	for rows.Next() {
		sn, err := scanSnapshot(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan %s", table)
		}
		out = append(out, sn)
	}
	return out, eris.Wrapf(rows.Err(), "sqlite: iterate %s", table)
}

// ListSnapshots returns the filtered current snapshot.
func (s *SQLiteStore) ListSnapshots(ctx context.Context, filter SnapshotFilter) ([]model.HealthSnapshot, error) {
	snaps, err := s.selectSnapshots(ctx, tableSnapshots, "")
	if err != nil {
		return nil, err
	}
	return applyFilter(snaps, filter), nil
}

// GetSnapshot returns one client's current snapshot.
func (s *SQLiteStore) GetSnapshot(ctx context.Context, clientCode string) (*model.HealthSnapshot, error) {
	snaps, err := s.selectSnapshots(ctx, tableSnapshots, "lower(client_code) = lower(?)", clientCode)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, eris.Wrapf(ErrNotFound, "client %s", clientCode)
	}
	return &snaps[0], nil
}

// FilterOptions returns distinct filter values from the current snapshot.
func (s *SQLiteStore) FilterOptions(ctx context.Context) (*FilterOptions, error) {
	snaps, err := s.selectSnapshots(ctx, tableSnapshots, "")
	if err != nil {
		return nil, err
	}
	return filterOptions(snaps), nil
}

// ListUnmatched returns the unmatched report.
func (s *SQLiteStore) ListUnmatched(ctx context.Context) ([]model.UnmatchedEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+strings.Join(unmatchedColumns, ", ")+` FROM unmatched_mappings ORDER BY match_type, last_seen_date DESC, client_name_norm`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list unmatched")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.UnmatchedEntry
	for rows.Next() {
		u, err := scanUnmatched(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan unmatched")
		}
		out = append(out, u)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate unmatched")
}

// ListWeeks returns the stored historical weeks.
func (s *SQLiteStore) ListWeeks(ctx context.Context) ([]WeekInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT week_number, MIN(period_start), MAX(period_end), COUNT(*) FROM client_health_history
		 GROUP BY week_number ORDER BY week_number`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list weeks")
	}
	defer rows.Close() //nolint:errcheck

	var out []WeekInfo
	for rows.Next() {
		var w WeekInfo
		var start, end string
		if err := rows.Scan(&w.WeekNumber, &start, &end, &w.RecordCount); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan week")
		}
		if w.Start, err = parseSQLiteTime(start); err != nil {
			return nil, err
		}
		if w.End, err = parseSQLiteTime(end); err != nil {
			return nil, err
		}
		w.DisplayName = WeekDisplayName(w.WeekNumber, w.Start, w.End)
		out = append(out, w)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate weeks")
}

// ListHistorical returns the stored rows for the given weeks.
func (s *SQLiteStore) ListHistorical(ctx context.Context, weeks []int) ([]model.HealthSnapshot, error) {
	if err := validateWeeks(weeks); err != nil {
		return nil, err
	}
	args := make([]any, len(weeks))
	for i, w := range weeks {
		args[i] = w
	}
	where := "week_number IN (" + strings.TrimSuffix(strings.Repeat("?, ", len(weeks)), ", ") + ") ORDER BY client_code, week_number"
	return s.selectSnapshots(ctx, tableHistory, where, args...)
}

// parseSQLiteTime parses the text form aggregate functions return, since
// MIN/MAX lose the column's declared DATE type.
func parseSQLiteTime(v string) (time.Time, error) {
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999999 -0700 MST",
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02T15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, eris.Errorf("sqlite: unparseable time %q", v)
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}
