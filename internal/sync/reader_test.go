package sync

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datalift/searchsync/internal/config"
	"github.com/datalift/searchsync/internal/models"
	"github.com/datalift/searchsync/internal/pgpool"
)

var testTable = config.TableConfig{
	Name:            "orders",
	IndexName:       "orders",
	TimestampColumn: "updated_at",
	PrimaryKey:      "id",
}

func orderRows(ts ...time.Time) *sqlmock.Rows {
	rows := sqlmock.NewRowsWithColumnDefinition(
		sqlmock.NewColumn("id").OfType("INT8", int64(0)),
		sqlmock.NewColumn("title").OfType("TEXT", ""),
		sqlmock.NewColumn("updated_at").OfType("TIMESTAMPTZ", time.Time{}),
	)
	for i, t := range ts {
		rows.AddRow(int64(i+1), "item", t)
	}
	return rows
}

func TestReaderStreamsBatchesInTimestampOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	pool := pgpool.NewFromDB(db, zerolog.Nop())

	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`DECLARE sync_[0-9a-f]+ NO SCROLL CURSOR`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FETCH FORWARD 2 FROM sync_").
		WillReturnRows(orderRows(t0, t0.Add(time.Minute)))
	mock.ExpectQuery("FETCH FORWARD 2 FROM sync_").
		WillReturnRows(orderRows(t0.Add(2*time.Minute), t0.Add(3*time.Minute)))
	mock.ExpectQuery("FETCH FORWARD 2 FROM sync_").
		WillReturnRows(orderRows())
	mock.ExpectExec("CLOSE sync_").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	reader, err := OpenReader(context.Background(), pool, testTable, time.Unix(0, 0), 2, zerolog.Nop())
	require.NoError(t, err)

	var prevMax time.Time
	for {
		batch, err := reader.Next(context.Background())
		require.NoError(t, err)
		if len(batch) == 0 {
			break
		}
		for _, row := range batch {
			ts := row.Get("updated_at")
			require.Equal(t, models.KindTime, ts.Kind)
			assert.False(t, ts.Time.Before(prevMax), "rows regressed across batches")
		}
		prevMax = batchMaxTimestamp(batch, "updated_at")
	}

	require.NoError(t, reader.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReaderBuildsTypedRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	pool := pgpool.NewFromDB(db, zerolog.Nop())

	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectExec("DECLARE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FETCH FORWARD 1 FROM sync_").WillReturnRows(orderRows(ts))
	mock.ExpectExec("CLOSE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	reader, err := OpenReader(context.Background(), pool, testTable, time.Unix(0, 0), 1, zerolog.Nop())
	require.NoError(t, err)
	defer reader.Close()

	batch, err := reader.Next(context.Background())
	require.NoError(t, err)
	require.Len(t, batch, 1)

	row := batch[0]
	assert.Equal(t, []string{"id", "title", "updated_at"}, row.Columns)
	assert.Equal(t, models.IntValue(1), row.Get("id"))
	assert.Equal(t, models.StringValue("item"), row.Get("title"))
	assert.Equal(t, "1", row.Get("id").String())
}

func TestReaderReleasesConnectionOnDeclareFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	pool := pgpool.NewFromDB(db, zerolog.Nop())

	mock.ExpectBegin()
	mock.ExpectExec("DECLARE").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err = OpenReader(context.Background(), pool, testTable, time.Unix(0, 0), 10, zerolog.Nop())
	require.Error(t, err)

	// The pool must still hand out a connection afterwards.
	conn, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	pool.Release(conn)
}

func TestConvertValueTaggedKinds(t *testing.T) {
	assert.Equal(t, models.NullValue(), convertValue("TEXT", nil))
	assert.Equal(t, models.IntValue(7), convertValue("INT4", int64(7)))
	assert.Equal(t, models.FloatValue(1.5), convertValue("FLOAT8", 1.5))
	assert.Equal(t, models.BoolValue(true), convertValue("BOOL", true))
	assert.Equal(t, models.FloatValue(12.34), convertValue("NUMERIC", []byte("12.34")))
	assert.Equal(t, models.IntValue(42), convertValue("INT8", []byte("42")))
	assert.Equal(t, models.BoolValue(true), convertValue("BOOL", []byte("t")))

	v := convertValue("JSONB", []byte(`{"a":1}`))
	assert.Equal(t, models.KindJSON, v.Kind)
	assert.Equal(t, json.RawMessage(`{"a":1}`), v.JSON)

	ts := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, models.TimeValue(ts), convertValue("TIMESTAMPTZ", ts))
}
