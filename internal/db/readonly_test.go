package db

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckReadOnly(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		sql  string
		ok   bool
	}{
		{"select", "SELECT * FROM clients", true},
		{"lowercase select", "  select id from clients", true},
		{"trailing semicolon", "SELECT 1;", true},
		{"leading comments", "-- clients\n/* all */ SELECT 1", true},
		{"cte", "WITH x AS (SELECT 1) SELECT * FROM x", true},
		{"insert", "INSERT INTO clients VALUES (1)", false},
		{"update", "update clients set name = 'x'", false},
		{"delete", "DELETE FROM clients", false},
		{"ddl", "DROP TABLE clients", false},
		{"stacked", "SELECT 1; DELETE FROM clients", false},
		{"modifying cte", "WITH d AS (DELETE FROM clients RETURNING *) SELECT * FROM d", false},
		{"empty", "  ", false},
		{"only comment", "-- nothing", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := CheckReadOnly(tt.sql)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrNotReadOnly))
		})
	}
}

func TestReadOnly_Query(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT id FROM clients").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(1)))

	ro := NewReadOnly(mock)
	rows, err := ro.Query(context.Background(), "SELECT id FROM clients")
	require.NoError(t, err)
	rows.Close()

	_, err = ro.Query(context.Background(), "DELETE FROM clients")
	assert.ErrorIs(t, err, ErrNotReadOnly)

	var id int64
	err = ro.QueryRow(context.Background(), "TRUNCATE clients").Scan(&id)
	assert.ErrorIs(t, err, ErrNotReadOnly)

	assert.NoError(t, mock.ExpectationsWereMet())
}
