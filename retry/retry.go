// Package retry provides the shared bounded-retry policy used by the upstream
// HTTP transport, the poll scheduler, and the metrics sink.
package retry

import (
	"context"
	"time"
)

// Policy describes a bounded exponential backoff: Attempts tries total, with
// delays BaseDelay, 2*BaseDelay, 4*BaseDelay, ... capped at MaxDelay between
// them.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// Delay returns the wait before the given 1-based retry attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// Do runs fn up to p.Attempts times, sleeping the policy delay between
// attempts. It returns nil on the first success, the last error once the
// attempts are exhausted, or ctx.Err() if the context ends while waiting.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(p.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}
