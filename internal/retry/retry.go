// Package retry runs an operation a bounded number of times with a linear
// delay between attempts, retrying only errors a predicate accepts.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy configures Do.
type Policy struct {
	// Attempts is the total number of calls, including the first. Values
	// below 1 are treated as 1.
	Attempts int
	// BaseDelay is the linear step: the delay before attempt n (n >= 2) is
	// (n-1) * BaseDelay.
	BaseDelay time.Duration
	// Retryable decides whether a failed attempt may be repeated. A nil
	// predicate retries nothing.
	Retryable func(error) bool
	// OnRetry is called before each delay with the failed attempt number.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// linear is a backoff.BackOff returning step, 2*step, 3*step, ...
type linear struct {
	step time.Duration
	n    int
}

func (l *linear) NextBackOff() time.Duration {
	l.n++
	return time.Duration(l.n) * l.step
}

func (l *linear) Reset() { l.n = 0 }

// Do calls op until it succeeds, returns a non-retryable error, or the attempts
// run out. The last error is returned unchanged. Cancelling ctx stops the wait
// between attempts and returns ctx.Err().
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(&linear{step: p.BaseDelay}, uint64(attempts-1)),
		ctx,
	)

	attempt := 0
	operation := func() error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if p.Retryable == nil || !p.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	var notify backoff.Notify
	if p.OnRetry != nil {
		notify = func(err error, delay time.Duration) {
			p.OnRetry(attempt, err, delay)
		}
	}
	return backoff.RetryNotify(operation, b, notify)
}

// Value is Do for operations returning a result.
func Value[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, p, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
