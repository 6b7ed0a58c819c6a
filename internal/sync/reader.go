package sync

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/datalift/searchsync/internal/config"
	"github.com/datalift/searchsync/internal/models"
	"github.com/datalift/searchsync/internal/pgpool"
)

// RowIterator pulls successive chunks of unsynced rows. An empty chunk ends
// the table's cycle.
type RowIterator interface {
	Next(ctx context.Context) ([]models.Row, error)
	Close() error
}

// Reader streams unsynced rows through a server-side cursor, ordered
// ascending by the timestamp column so every row in a chunk has a timestamp
// no later than any row in a later chunk. The full result set is never
// materialized.
type Reader struct {
	pool      *pgpool.Pool
	conn      *sql.Conn
	tx        *sql.Tx
	cursor    string
	batchSize int
	logger    zerolog.Logger
}

// OpenReader declares one forward-only cursor for the table, filtered to rows
// past the watermark. The cursor lives inside a read-only transaction pinned
// to one pooled connection; Close releases both.
func OpenReader(ctx context.Context, pool *pgpool.Pool, table config.TableConfig, since time.Time, batchSize int, logger zerolog.Logger) (*Reader, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := conn.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		pool.Release(conn)
		return nil, errors.Wrap(err, "begin cursor transaction")
	}

	// DECLARE is a utility statement and cannot carry bind parameters, so the
	// watermark is inlined as a quoted literal.
	cursor := "sync_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	declare := fmt.Sprintf(
		"DECLARE %s NO SCROLL CURSOR FOR SELECT * FROM %s WHERE %s > %s::timestamptz ORDER BY %s ASC",
		cursor,
		pq.QuoteIdentifier(table.Name),
		pq.QuoteIdentifier(table.TimestampColumn),
		pq.QuoteLiteral(since.UTC().Format(time.RFC3339Nano)),
		pq.QuoteIdentifier(table.TimestampColumn),
	)
	if _, err := tx.ExecContext(ctx, declare); err != nil {
		tx.Rollback()
		pool.Release(conn)
		return nil, errors.Wrapf(err, "declare cursor for %s", table.Name)
	}

	return &Reader{
		pool:      pool,
		conn:      conn,
		tx:        tx,
		cursor:    cursor,
		batchSize: batchSize,
		logger:    logger,
	}, nil
}

// Next fetches the next chunk. A nil slice means the cursor is drained.
func (r *Reader) Next(ctx context.Context) ([]models.Row, error) {
	rows, err := r.tx.QueryContext(ctx, fmt.Sprintf("FETCH FORWARD %d FROM %s", r.batchSize, r.cursor))
	if err != nil {
		return nil, errors.Wrap(err, "fetch from cursor")
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "read cursor columns")
	}
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, errors.Wrap(err, "read cursor column types")
	}

	var batch []models.Row
	for rows.Next() {
		raw := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(err, "scan cursor row")
		}

		row := models.Row{
			Columns: append([]string(nil), columns...),
			Values:  make(map[string]models.Value, len(columns)),
		}
		for i, col := range columns {
			row.Values[col] = convertValue(columnTypes[i].DatabaseTypeName(), raw[i])
		}
		batch = append(batch, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate cursor rows")
	}
	return batch, nil
}

// Close ends the cursor and returns the pinned connection to the pool. Safe
// to call on every exit path.
func (r *Reader) Close() error {
	if r.tx != nil {
		if _, err := r.tx.Exec(fmt.Sprintf("CLOSE %s", r.cursor)); err != nil {
			r.logger.Debug().Err(err).Msg("Cursor already closed")
		}
		if err := r.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			r.logger.Warn().Err(err).Msg("Failed to end cursor transaction")
		}
		r.tx = nil
	}
	if r.conn != nil {
		r.pool.Release(r.conn)
		r.conn = nil
	}
	return nil
}

// convertValue turns a scanned driver value into the tagged variant, guided
// by the column's reported database type.
func convertValue(dbType string, v interface{}) models.Value {
	if v == nil {
		return models.NullValue()
	}
	switch tv := v.(type) {
	case int64:
		return models.IntValue(tv)
	case float64:
		return models.FloatValue(tv)
	case bool:
		return models.BoolValue(tv)
	case time.Time:
		return models.TimeValue(tv)
	case string:
		return convertText(dbType, tv)
	case []byte:
		return convertText(dbType, string(tv))
	default:
		return models.StringValue(fmt.Sprintf("%v", tv))
	}
}

func convertText(dbType, s string) models.Value {
	switch strings.ToUpper(dbType) {
	case "JSON", "JSONB":
		return models.JSONValue(json.RawMessage(s))
	case "NUMERIC", "DECIMAL", "FLOAT4", "FLOAT8":
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return models.FloatValue(f)
		}
		return models.StringValue(s)
	case "INT2", "INT4", "INT8":
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return models.IntValue(n)
		}
		return models.StringValue(s)
	case "BOOL":
		return models.BoolValue(s == "t" || s == "true")
	default:
		return models.StringValue(s)
	}
}
