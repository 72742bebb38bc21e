package source

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperke/client-health/internal/db"
)

var clientCols = []string{
	"client_id", "client_code", "client_name", "client_company_name", "relationship_status",
	"assigned_account_manager_id", "assigned_account_manager_name",
	"assigned_inbox_manager_id", "assigned_inbox_manager_name",
	"assigned_sdr_id", "assigned_sdr_name",
	"weekly_target", "closelix", "onboarding_date", "exit_date",
	"bonus_pool_monthly", "weekend_sending",
}

func strp(s string) *string { return &s }

func TestClients(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	exit := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	bonus := 1500.0
	mock.ExpectQuery(`SELECT(.|\n)+FROM public.clients`).
		WillReturnRows(pgxmock.NewRows(clientCols).
			AddRow(int64(1), "ACME", strp("Acme"), strp("Acme Inc"), strp("active"),
				strp("am-1"), strp("Alice"), nil, nil, nil, nil,
				strp("5,000 emails"), true, nil, nil, &bonus, false).
			AddRow(int64(2), "GLOBEX", nil, nil, nil,
				nil, nil, nil, nil, nil, nil,
				strp("tbd"), false, nil, &exit, nil, true))

	src := NewPostgres(mock, mock)
	clients, err := src.Clients(context.Background())
	require.NoError(t, err)
	require.Len(t, clients, 2)

	assert.Equal(t, "ACME", clients[0].Code)
	require.NotNil(t, clients[0].WeeklyTargetInt)
	assert.Equal(t, int64(5000), *clients[0].WeeklyTargetInt)
	assert.False(t, clients[0].WeeklyTargetMissing)
	assert.True(t, clients[0].Closelix)
	assert.True(t, clients[0].Active())

	assert.Nil(t, clients[1].WeeklyTargetInt)
	assert.True(t, clients[1].WeeklyTargetMissing)
	assert.True(t, clients[1].WeekendSendingEffective)
	assert.False(t, clients[1].Active())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClients_QueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM public.clients`).WillReturnError(fmt.Errorf("connection reset"))

	_, err = NewPostgres(mock, mock).Clients(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source: query clients")
}

func TestPerformance(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cutoff := time.Date(2025, 1, 10, 15, 30, 0, 0, time.UTC)
	end := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM public.campaign_reporting\s+WHERE end_date >= \$1`).
		WithArgs(time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)).
		WillReturnRows(pgxmock.NewRows([]string{
			"campaign_date_key", "campaign_id", "parent_campaign_id", "campaign_name",
			"client_name", "status", "start_date", "end_date",
			"total_sent", "new_leads_reached", "replies_count", "positive_reply",
			"bounce_count", "smartlead_account_name",
		}).AddRow("2025-02-10_1", "1", nil, "Outbound Q1", "Acme ", strp("ACTIVE"), end, end,
			int64(500), int64(400), int64(10), int64(2), int64(3), nil))

	records, err := NewPostgres(mock, mock).Performance(context.Background(), cutoff)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Acme ", records[0].ClientLabel)
	assert.Equal(t, int64(400), records[0].NewLeadsReached)
	assert.Equal(t, end, records[0].EndDate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadOnlyGuardIsApplied(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	src := NewPostgres(mock, mock)
	_, err = src.reporting.Query(context.Background(), "DELETE FROM public.campaign_reporting")
	assert.ErrorIs(t, err, db.ErrNotReadOnly)
	assert.NoError(t, mock.ExpectationsWereMet())
}
