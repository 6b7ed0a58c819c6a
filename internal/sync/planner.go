package sync

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/datalift/searchsync/internal/pgpool"
)

// Planner computes the row count to fetch per round from the size of the
// remaining backlog.
type Planner struct {
	pool *pgpool.Pool
	min  int
	max  int
}

func NewPlanner(pool *pgpool.Pool, minBatch, maxBatch int) *Planner {
	return &Planner{pool: pool, min: minBatch, max: maxBatch}
}

// Plan counts rows past the watermark and sizes the batch. A zero return
// means the backlog is empty and the table's sync short-circuits.
func (p *Planner) Plan(ctx context.Context, table, timestampColumn string, since time.Time) (int, error) {
	var remaining int
	err := p.pool.With(ctx, func(conn *sql.Conn) error {
		query := fmt.Sprintf(
			"SELECT COUNT(*) FROM %s WHERE %s > $1",
			pq.QuoteIdentifier(table), pq.QuoteIdentifier(timestampColumn),
		)
		return conn.QueryRowContext(ctx, query, since.UTC()).Scan(&remaining)
	})
	if err != nil {
		return 0, errors.Wrapf(err, "count backlog for %s", table)
	}
	return PlanSize(remaining, p.min, p.max), nil
}

// PlanSize is the sizing policy. Small backlogs get one pass at the floor,
// medium backlogs drain in a single batch, and huge backlogs get a size that
// grows with log10 of the backlog but never exceeds the ceiling.
func PlanSize(remaining, minBatch, maxBatch int) int {
	switch {
	case remaining == 0:
		return 0
	case remaining <= minBatch:
		return minBatch
	case remaining <= maxBatch:
		return remaining
	default:
		scaled := int(float64(minBatch) * math.Log10(float64(remaining)))
		if scaled > maxBatch {
			return maxBatch
		}
		return scaled
	}
}
