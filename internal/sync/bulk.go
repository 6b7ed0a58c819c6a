package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/datalift/searchsync/internal/models"
)

// RateLimit caps bulk throughput at Capacity documents per Window. Callers
// exceeding the limit block until capacity frees up instead of erroring.
type RateLimit struct {
	Capacity int
	Window   time.Duration
}

// DefaultRateLimit is 1000 documents per minute.
func DefaultRateLimit() RateLimit {
	return RateLimit{Capacity: 1000, Window: time.Minute}
}

// BulkClient is the slice of the index service the writer needs.
type BulkClient interface {
	Bulk(ctx context.Context, body io.Reader) (models.BatchResult, error)
}

// Writer performs rate-limited bulk upserts keyed by document id. Re-sending
// an unwatermarked batch overwrites identical documents, so repeated delivery
// is idempotent.
type Writer struct {
	client  BulkClient
	limiter *rate.Limiter
	logger  zerolog.Logger
}

func NewWriter(client BulkClient, limit RateLimit, logger zerolog.Logger) *Writer {
	perSecond := rate.Limit(float64(limit.Capacity) / limit.Window.Seconds())
	return &Writer{
		client:  client,
		limiter: rate.NewLimiter(perSecond, limit.Capacity),
		logger:  logger,
	}
}

// Write upserts one batch of actions. A transport-level failure comes back as
// a BatchWriteError; per-document rejections land in the result's Failed list
// and never abort the remainder of the batch.
func (w *Writer) Write(ctx context.Context, actions []models.BulkAction) (models.BatchResult, error) {
	if len(actions) == 0 {
		return models.BatchResult{}, nil
	}

	if err := w.waitCapacity(ctx, len(actions)); err != nil {
		return models.BatchResult{}, &models.BatchWriteError{Err: err}
	}

	body, err := encodeActions(actions)
	if err != nil {
		return models.BatchResult{}, &models.BatchWriteError{Err: err}
	}

	result, err := w.client.Bulk(ctx, body)
	if err != nil {
		return models.BatchResult{}, &models.BatchWriteError{Err: err}
	}

	if len(result.Failed) > 0 {
		w.logger.Error().
			Int("failed", len(result.Failed)).
			Int("succeeded", result.Succeeded).
			Msg("Partial document failure in bulk write")
	}
	return result, nil
}

// waitCapacity blocks until n tokens are available, chunking requests larger
// than the limiter burst.
func (w *Writer) waitCapacity(ctx context.Context, n int) error {
	burst := w.limiter.Burst()
	for n > 0 {
		take := n
		if take > burst {
			take = burst
		}
		if err := w.limiter.WaitN(ctx, take); err != nil {
			return errors.Wrap(err, "wait for rate limit")
		}
		n -= take
	}
	return nil
}

func encodeActions(actions []models.BulkAction) (io.Reader, error) {
	var buf bytes.Buffer
	for _, action := range actions {
		meta := map[string]map[string]string{
			"index": {"_index": action.Index, "_id": action.DocumentID},
		}
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return nil, errors.Wrap(err, "marshal bulk action metadata")
		}
		docJSON, err := json.Marshal(action.Document)
		if err != nil {
			return nil, errors.Wrapf(err, "marshal document %s", action.DocumentID)
		}
		buf.Write(metaJSON)
		buf.WriteByte('\n')
		buf.Write(docJSON)
		buf.WriteByte('\n')
	}
	return &buf, nil
}
