package resilience

import (
	"context"
	"fmt"
	"time"
)

// TimeoutError reports that an operation outlived its limit. It unwraps to
// context.DeadlineExceeded.
type TimeoutError struct {
	Op    string
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: no response within %v", e.Op, e.Limit)
}

func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }

// WithTimeout gives op at most limit to finish. The caller is released as
// soon as the limit passes even if op ignores its context; a parent
// cancellation is returned as a Permanent error so Retry gives up at once.
// A non-positive limit calls op directly.
func WithTimeout(ctx context.Context, limit time.Duration, op string, fn func(ctx context.Context) error) error {
	if limit <= 0 {
		return fn(ctx)
	}
	opCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(opCtx) }()

	var err error
	select {
	case err = <-done:
		if err == nil {
			return nil
		}
	case <-opCtx.Done():
	}
	switch {
	case ctx.Err() != nil:
		return Permanent(fmt.Errorf("%s: %w", op, ctx.Err()))
	case opCtx.Err() != nil:
		return &TimeoutError{Op: op, Limit: limit}
	}
	return err
}
