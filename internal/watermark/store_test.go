package watermark

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datalift/searchsync/internal/models"
	"github.com/datalift/searchsync/internal/pgpool"
)

func newStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(pgpool.NewFromDB(db, zerolog.Nop())), mock
}

func TestGetReturnsStoredTime(t *testing.T) {
	store, mock := newStore(t)
	want := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT last_sync_time FROM sync_status").
		WithArgs("orders").
		WillReturnRows(sqlmock.NewRows([]string{"last_sync_time"}).AddRow(want))

	got, err := store.Get(context.Background(), "orders")
	require.NoError(t, err)
	assert.True(t, want.Equal(got))
}

func TestGetDefaultsToEpoch(t *testing.T) {
	store, mock := newStore(t)

	mock.ExpectQuery("SELECT last_sync_time FROM sync_status").
		WithArgs("orders").
		WillReturnRows(sqlmock.NewRows([]string{"last_sync_time"}))

	got, err := store.Get(context.Background(), "orders")
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Unix(0, 0)), "first cycle must start from the epoch")
}

func TestUpsertWritesBoundary(t *testing.T) {
	store, mock := newStore(t)
	ts := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO sync_status").
		WithArgs("orders", ts).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Upsert(context.Background(), models.Watermark{TableName: "orders", LastSyncTime: ts}))
	assert.NoError(t, mock.ExpectationsWereMet())
}
