package watermark

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/datalift/searchsync/internal/models"
	"github.com/datalift/searchsync/internal/pgpool"
)

// Store persists, per table, the timestamp boundary below which all rows are
// known synced. It is the single source of truth for the resume position; no
// other component caches it across batches.
type Store struct {
	pool *pgpool.Pool
}

func NewStore(pool *pgpool.Pool) *Store {
	return &Store{pool: pool}
}

// Get returns the last sync time for a table. With no record yet it returns
// the Unix epoch, so the very first cycle performs a full extraction.
func (s *Store) Get(ctx context.Context, table string) (time.Time, error) {
	var ts time.Time
	err := s.pool.With(ctx, func(conn *sql.Conn) error {
		row := conn.QueryRowContext(ctx,
			`SELECT last_sync_time FROM sync_status WHERE table_name = $1`, table)
		if err := row.Scan(&ts); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				ts = time.Unix(0, 0).UTC()
				return nil
			}
			return errors.Wrap(err, "read sync_status")
		}
		return nil
	})
	if err != nil {
		return time.Time{}, err
	}
	return ts, nil
}

// Upsert atomically records the new boundary for a table. Called after every
// acknowledged batch, not once per table, so a crash mid-cycle reprocesses at
// most one in-flight batch.
func (s *Store) Upsert(ctx context.Context, wm models.Watermark) error {
	return s.pool.With(ctx, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, `
			INSERT INTO sync_status (table_name, last_sync_time)
			VALUES ($1, $2)
			ON CONFLICT (table_name)
			DO UPDATE SET last_sync_time = EXCLUDED.last_sync_time`,
			wm.TableName, wm.LastSyncTime.UTC())
		return errors.Wrap(err, "upsert sync_status")
	})
}
