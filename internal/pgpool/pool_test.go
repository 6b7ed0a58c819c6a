package pgpool

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPool(t *testing.T) (*Pool, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewFromDB(db, zerolog.Nop()), mock
}

func TestAcquireRelease(t *testing.T) {
	pool, mock := newMockPool(t)

	conn, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	require.NotNil(t, conn)
	pool.Release(conn)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithReleasesOnError(t *testing.T) {
	pool, _ := newMockPool(t)

	boom := errors.New("boom")
	err := pool.With(context.Background(), func(conn *sql.Conn) error {
		return boom
	})
	require.ErrorIs(t, err, boom)

	// The borrowed connection must be back in the pool despite the error.
	conn, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	pool.Release(conn)
}

func TestWithPassesLiveConnection(t *testing.T) {
	pool, mock := newMockPool(t)
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	err := pool.With(context.Background(), func(conn *sql.Conn) error {
		var one int
		return conn.QueryRowContext(context.Background(), "SELECT 1").Scan(&one)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
