package retry

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Policy retries an operation with exponential backoff. Waits start at Min,
// double on every attempt, and are clamped to Max.
type Policy struct {
	MaxAttempts int
	Min         time.Duration
	Max         time.Duration
}

// ConnectPolicy matches the startup behavior for unreachable destinations:
// three attempts with waits growing from 4s to 10s.
func ConnectPolicy() Policy {
	return Policy{MaxAttempts: 3, Min: 4 * time.Second, Max: 10 * time.Second}
}

// Do runs fn until it succeeds, attempts are exhausted, or ctx is canceled.
// The last error is returned wrapped with the attempt count.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	wait := p.Min
	var last error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if last = fn(); last == nil {
			return nil
		}
		if attempt == p.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
		if wait > p.Max {
			wait = p.Max
		}
	}
	return errors.Wrapf(last, "after %d attempts", p.MaxAttempts)
}
