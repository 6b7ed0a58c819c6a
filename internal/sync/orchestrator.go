package sync

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/datalift/searchsync/internal/config"
	"github.com/datalift/searchsync/internal/models"
)

// SchemaSource reads a table's current columns from the metadata catalog.
type SchemaSource interface {
	GetSchema(ctx context.Context, table string) (models.SchemaMap, error)
}

// Indexer applies a field mapping to the destination index.
type Indexer interface {
	EnsureIndex(ctx context.Context, index string, m models.FieldMapping) error
}

// MarkStore persists per-table watermarks.
type MarkStore interface {
	Get(ctx context.Context, table string) (time.Time, error)
	Upsert(ctx context.Context, wm models.Watermark) error
}

// BatchPlanner sizes the next round of fetches.
type BatchPlanner interface {
	Plan(ctx context.Context, table, timestampColumn string, since time.Time) (int, error)
}

// BatchWriter loads one batch of actions into the index.
type BatchWriter interface {
	Write(ctx context.Context, actions []models.BulkAction) (models.BatchResult, error)
}

// ReaderFactory opens a row iterator for one table sync pass.
type ReaderFactory func(ctx context.Context, table config.TableConfig, since time.Time, batchSize int) (RowIterator, error)

// Translator derives the index mapping from a table schema.
type Translator func(models.SchemaMap) models.FieldMapping

// Orchestrator drives one table at a time through introspection, mapping,
// planning, and the fetch/write/advance loop. Tables are strictly sequential:
// watermark advancement needs a happens-before chain from batch commit to the
// next batch's lower bound, so batches never overlap within a table.
type Orchestrator struct {
	schema    SchemaSource
	translate Translator
	index     Indexer
	marks     MarkStore
	planner   BatchPlanner
	writer    BatchWriter
	open      ReaderFactory
	logger    zerolog.Logger
}

func NewOrchestrator(
	schema SchemaSource,
	translate Translator,
	index Indexer,
	marks MarkStore,
	planner BatchPlanner,
	writer BatchWriter,
	open ReaderFactory,
	logger zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		schema:    schema,
		translate: translate,
		index:     index,
		marks:     marks,
		planner:   planner,
		writer:    writer,
		open:      open,
		logger:    logger,
	}
}

// RunCycle syncs every configured table once. A table's failure is logged and
// isolated; the remaining tables still sync in the same cycle.
func (o *Orchestrator) RunCycle(ctx context.Context, tables []config.TableConfig) {
	for _, table := range tables {
		if ctx.Err() != nil {
			return
		}
		o.logger.Info().Str("table", table.Name).Msg("Syncing table")
		if err := o.SyncTable(ctx, table); err != nil {
			o.logger.Error().Err(err).Str("table", table.Name).Msg("Error syncing table")
			continue
		}
		o.logger.Info().Str("table", table.Name).Msg("Table sync complete")
	}
}

// SyncTable replicates one table's backlog into its index.
func (o *Orchestrator) SyncTable(ctx context.Context, table config.TableConfig) error {
	schema, err := o.schema.GetSchema(ctx, table.Name)
	if err != nil {
		return err
	}

	fieldMapping := o.translate(schema)
	if err := o.index.EnsureIndex(ctx, table.IndexName, fieldMapping); err != nil {
		return err
	}

	since, err := o.marks.Get(ctx, table.Name)
	if err != nil {
		return err
	}

	batchSize, err := o.planner.Plan(ctx, table.Name, table.TimestampColumn, since)
	if err != nil {
		return err
	}
	if batchSize == 0 {
		o.logger.Debug().Str("table", table.Name).Msg("Backlog empty, nothing to sync")
		return nil
	}
	o.logger.Info().
		Str("table", table.Name).
		Int("batch_size", batchSize).
		Msg("Using batch size for table")

	reader, err := o.open(ctx, table, since, batchSize)
	if err != nil {
		return err
	}
	defer reader.Close()

	for {
		rows, err := reader.Next(ctx)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		actions := make([]models.BulkAction, 0, len(rows))
		for _, row := range rows {
			actions = append(actions, models.BulkAction{
				Index:      table.IndexName,
				DocumentID: row.Get(table.PrimaryKey).String(),
				Document:   row,
			})
		}

		result, err := o.writer.Write(ctx, actions)
		if err != nil {
			return err
		}
		o.logger.Info().
			Str("table", table.Name).
			Int("synced", result.Succeeded).
			Msg("Synced documents for table")

		// Rows arrive in ascending timestamp order, so the batch maximum is a
		// safe resume boundary even with documents from this batch rejected.
		boundary := batchMaxTimestamp(rows, table.TimestampColumn)
		if boundary.IsZero() {
			continue
		}
		if err := o.marks.Upsert(ctx, models.Watermark{TableName: table.Name, LastSyncTime: boundary}); err != nil {
			return err
		}
	}
}

func batchMaxTimestamp(rows []models.Row, column string) time.Time {
	var max time.Time
	for _, row := range rows {
		v := row.Get(column)
		if v.Kind == models.KindTime && v.Time.After(max) {
			max = v.Time
		}
	}
	return max
}
