package retry

import (
	"context"
	"fmt"
	"time"
)

const (
	DefaultAttempts    = 3
	DefaultWaitTimeout = 3 * time.Second
	DefaultDelay       = 250 * time.Millisecond
)

// Policy bounds retries of interactions that race a re-rendering page.
type Policy struct {
	Attempts    int
	// WaitTimeout bounds how long one attempt waits for its target.
	WaitTimeout time.Duration
	// Delay separates attempts.
	Delay       time.Duration
}

func DefaultPolicy() Policy {
	return Policy{Attempts: DefaultAttempts, WaitTimeout: DefaultWaitTimeout, Delay: DefaultDelay}
}

// InteractionError reports that every attempt failed.
type InteractionError struct {
	Operation string
	Attempts  int
	Last      error
}

func (e *InteractionError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Operation, e.Attempts, e.Last)
}

func (e *InteractionError) Unwrap() error {
	return e.Last
}

func (p Policy) normalized() Policy {
	if p.Attempts <= 0 {
		p.Attempts = DefaultAttempts
	}
	if p.WaitTimeout <= 0 {
		p.WaitTimeout = DefaultWaitTimeout
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	return p
}

// Do runs fn until it succeeds or the attempts run out. fn receives the
// per-attempt wait timeout. Context cancellation stops the loop immediately.
func (p Policy) Do(ctx context.Context, operation string, fn func(ctx context.Context, waitTimeout time.Duration) error) error {
	p = p.normalized()

	var last error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		last = fn(ctx, p.WaitTimeout)
		if last == nil {
			return nil
		}
		if attempt == p.Attempts {
			break
		}

		timer := time.NewTimer(p.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return &InteractionError{Operation: operation, Attempts: p.Attempts, Last: last}
}
