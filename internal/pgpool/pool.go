package pgpool

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/datalift/searchsync/internal/models"
	"github.com/datalift/searchsync/internal/retry"
)

// Pool is a bounded pool of source connections. Callers borrow with Acquire
// and must return the connection on every exit path; With does the pairing
// mechanically.
type Pool struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Setup opens the pool and verifies the source is reachable, retrying per the
// given policy because the destination services may not be up yet at startup.
func Setup(ctx context.Context, dsn string, size int, policy retry.Policy, logger zerolog.Logger) (*Pool, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, &models.ConnectionError{Err: errors.Wrap(err, "open postgres")}
	}
	if size < 1 {
		size = 1
	}
	db.SetMaxOpenConns(size)
	db.SetMaxIdleConns(size)

	if err := policy.Do(ctx, func() error {
		if err := db.PingContext(ctx); err != nil {
			logger.Warn().Err(err).Msg("Postgres not reachable yet")
			return err
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, &models.ConnectionError{Err: errors.Wrap(err, "ping postgres")}
	}

	logger.Info().Int("pool_size", size).Msg("Connected to PostgreSQL")
	return &Pool{db: db, logger: logger}, nil
}

// NewFromDB wraps an existing handle. Used by tests to inject a mock driver.
func NewFromDB(db *sql.DB, logger zerolog.Logger) *Pool {
	return &Pool{db: db, logger: logger}
}

// Acquire borrows a dedicated connection, blocking while the pool is
// exhausted and at capacity.
func (p *Pool) Acquire(ctx context.Context) (*sql.Conn, error) {
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, &models.ConnectionError{Err: errors.Wrap(err, "acquire connection")}
	}
	return conn, nil
}

// Release returns a borrowed connection to the pool.
func (p *Pool) Release(conn *sql.Conn) {
	if conn == nil {
		return
	}
	if err := conn.Close(); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to release connection")
	}
}

// With runs fn with a borrowed connection and releases it on every exit path.
func (p *Pool) With(ctx context.Context, fn func(*sql.Conn) error) error {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(conn)
	return fn(conn)
}

// DB exposes the underlying handle for migrations.
func (p *Pool) DB() *sql.DB { return p.db }

// Close tears the pool down.
func (p *Pool) Close() error { return p.db.Close() }
