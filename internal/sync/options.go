// Package sync implements the repository and environment sync
// orchestrators: batch drivers that walk every discovered workflow,
// resolve its identity and lifecycle status, and persist the result.
package sync

import (
	"context"
	"log"
	"time"
)

// Options bound a sync pass: batch sizing keeps memory flat, concurrency
// bounds pressure on the runtime API, and the timeout applies to each
// reader call.
type Options struct {
	BatchSize     int
	Concurrency   int
	ReaderTimeout time.Duration
	RetryAttempts int
	RetryBackoff  time.Duration
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 50
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 8
	}
	if o.ReaderTimeout <= 0 {
		o.ReaderTimeout = 30 * time.Second
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = 3
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 500 * time.Millisecond
	}
	return o
}

// withRetry runs fn under the reader timeout, retrying transient failures
// up to the configured attempt count.
func withRetry(ctx context.Context, opts Options, what string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= opts.RetryAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, opts.ReaderTimeout)
		err = fn(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt < opts.RetryAttempts {
			log.Printf("sync: %s failed (attempt %d/%d): %v", what, attempt, opts.RetryAttempts, err)
			select {
			case <-time.After(opts.RetryBackoff * time.Duration(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return err
}

// batches splits items into consecutive chunks of size n.
func batches[T any](items []T, n int) [][]T {
	var out [][]T
	for start := 0; start < len(items); start += n {
		end := start + n
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}

// sameInstant compares runtime timestamps after normalizing timezone and
// fractional seconds. A false skip hides real drift, so the comparison
// tolerates representation differences rather than requiring exact
// equality.
func sameInstant(a, b time.Time) bool {
	return a.UTC().Truncate(time.Second).Equal(b.UTC().Truncate(time.Second))
}
