package sync

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/datalift/searchsync/internal/config"
	"github.com/datalift/searchsync/internal/mapping"
	"github.com/datalift/searchsync/internal/pgpool"
	"github.com/datalift/searchsync/internal/retry"
	"github.com/datalift/searchsync/internal/schema"
	"github.com/datalift/searchsync/internal/search"
	"github.com/datalift/searchsync/internal/watermark"
)

// cooldown is the fixed wait after a failed cycle before retrying.
const cooldown = 5 * time.Second

// Daemon is the outer driver: open connections, run one full cycle over all
// tables, close, sleep, repeat forever until the context is canceled. A
// failure opening connections is fatal to the cycle, never to the process.
type Daemon struct {
	cfg    *config.Config
	logger zerolog.Logger
}

func NewDaemon(cfg *config.Config, logger zerolog.Logger) *Daemon {
	return &Daemon{cfg: cfg, logger: logger}
}

// Run loops cycles until ctx is canceled. The sleep between cycles aborts
// promptly on cancellation; since watermarks only move after an acknowledged
// batch, interruption mid-cycle is safe to resume from.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Info().Msg("Starting Postgres to Elasticsearch sync process")
	for {
		wait := d.cfg.Sync.Interval
		if err := d.runCycle(ctx); err != nil {
			if ctx.Err() != nil {
				d.logger.Info().Msg("Sync process stopped")
				return ctx.Err()
			}
			d.logger.Error().Err(err).Msg("Error during sync cycle")
			wait = cooldown
		}

		select {
		case <-ctx.Done():
			d.logger.Info().Msg("Sync process stopped")
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// runCycle opens fresh connections, syncs every table once, and tears the
// connections down again.
func (d *Daemon) runCycle(ctx context.Context) error {
	pool, err := pgpool.Setup(ctx, d.cfg.Postgres.DSN(), d.cfg.Sync.PoolSize, retry.ConnectPolicy(), d.logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	es, err := search.Connect(
		ctx,
		d.cfg.Elasticsearch.Address(),
		d.cfg.Elasticsearch.User,
		d.cfg.Elasticsearch.Password,
		retry.ConnectPolicy(),
		d.logger,
	)
	if err != nil {
		return err
	}

	orch := NewOrchestrator(
		schema.NewIntrospector(pool),
		mapping.BuildMapping,
		es,
		watermark.NewStore(pool),
		NewPlanner(pool, d.cfg.Sync.MinBatchSize, d.cfg.Sync.MaxBatchSize),
		NewWriter(es, RateLimit{Capacity: d.cfg.Sync.RateLimit, Window: time.Minute}, d.logger),
		func(ctx context.Context, table config.TableConfig, since time.Time, batchSize int) (RowIterator, error) {
			return OpenReader(ctx, pool, table, since, batchSize, d.logger)
		},
		d.logger,
	)

	orch.RunCycle(ctx, d.cfg.Sync.Tables)
	return ctx.Err()
}
