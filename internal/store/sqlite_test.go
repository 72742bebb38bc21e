package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperke/client-health/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st := newTestSQLite(t)
	return st.(*SQLiteStore)
}

func TestSQLite_UpsertClientsBackfillsManagerNames(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	clients := []model.Client{
		{ID: 1, Code: "ACME", AccountManagerID: strp("am-1"), AccountManagerName: strp("Alice"), SDRID: strp("sdr-1")},
		{ID: 2, Code: "GLOBEX", AccountManagerID: strp("am-1"), SDRID: strp("sdr-1"), SDRName: strp("")},
		{ID: 3, Code: "INITECH", SDRID: strp("sdr-1"), SDRName: strp("Sam")},
	}
	n, err := st.UpsertClients(ctx, clients)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	var am, sdr *string
	require.NoError(t, st.db.QueryRowContext(ctx,
		`SELECT assigned_account_manager_name, assigned_sdr_name FROM clients WHERE client_id = 2`,
	).Scan(&am, &sdr))
	require.NotNil(t, am)
	assert.Equal(t, "Alice", *am)
	require.NotNil(t, sdr)
	assert.Equal(t, "Sam", *sdr)

	// Second upsert updates in place.
	clients[0].Code = "ACME2"
	_, err = st.UpsertClients(ctx, clients[:1])
	require.NoError(t, err)

	var code string
	var count int
	require.NoError(t, st.db.QueryRowContext(ctx, `SELECT client_code FROM clients WHERE client_id = 1`).Scan(&code))
	require.NoError(t, st.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM clients`).Scan(&count))
	assert.Equal(t, "ACME2", code)
	assert.Equal(t, 3, count)
}

func TestSQLite_ReplacePerformanceKeepsOlderRows(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := func(key string, end int) model.PerformanceRecord {
		d := day(2025, 2, end)
		return model.PerformanceRecord{CampaignDateKey: key, CampaignID: key, ClientLabel: " Acme ", StartDate: d, EndDate: d, TotalSent: 10}
	}

	_, err := st.ReplacePerformance(ctx, day(2025, 2, 1), []model.PerformanceRecord{rec("a", 1), rec("b", 5), rec("c", 9)})
	require.NoError(t, err)

	n, err := st.ReplacePerformance(ctx, day(2025, 2, 5), []model.PerformanceRecord{rec("d", 6)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rows, err := st.db.QueryContext(ctx, `SELECT campaign_date_key, client_name_norm FROM campaign_reporting ORDER BY campaign_date_key`)
	require.NoError(t, err)
	defer rows.Close() //nolint:errcheck

	var keys []string
	for rows.Next() {
		var k, norm string
		require.NoError(t, rows.Scan(&k, &norm))
		assert.Equal(t, "acme", norm)
		keys = append(keys, k)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"a", "d"}, keys)
}

func TestSQLite_ReplaceNameMap(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.ReplaceNameMap(ctx, []model.NameAssociation{
		{ClientID: 1, ClientCode: "ACME", CodeNorm: "acme", LabelNorm: "acme", Confidence: model.MatchExact},
	}))
	require.NoError(t, st.ReplaceNameMap(ctx, nil))

	var count int
	require.NoError(t, st.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM client_name_map`).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestSQLite_Ping(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.Ping(context.Background()))
}

func TestSQLite_MigrateFreshStore(t *testing.T) {
	s, err := NewSQLite(filepath.Join(t.TempDir(), "fresh.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck

	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))
	// Re-running against an existing schema is a no-op.
	require.NoError(t, s.Migrate(ctx))

	for _, table := range []string{
		"clients", "campaign_reporting", "client_name_map",
		tableSnapshots, tableHistory, "unmatched_mappings", "runs",
	} {
		var n int
		require.NoError(t, s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n))
		assert.Equal(t, 1, n, table)
	}

	var pk int
	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pragma_table_info('`+tableHistory+`') WHERE pk > 0`).Scan(&pk))
	assert.Equal(t, 2, pk)
}
