package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var (
	errBusy  = errors.New("busy")
	errFatal = errors.New("fatal")
)

func isBusy(err error) bool { return errors.Is(err, errBusy) }

func TestDoRetriesWithLinearDelay(t *testing.T) {
	var delays []time.Duration
	calls := 0
	p := Policy{
		Attempts:  3,
		BaseDelay: 10 * time.Millisecond,
		Retryable: isBusy,
		OnRetry: func(_ int, _ error, d time.Duration) {
			delays = append(delays, d)
		},
	}

	start := time.Now()
	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		if calls < 3 {
			return errBusy
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, delays)
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestDoStopsAfterAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{Attempts: 3, BaseDelay: time.Millisecond, Retryable: isBusy},
		func(context.Context) error {
			calls++
			return errBusy
		})
	require.ErrorIs(t, err, errBusy)
	require.Equal(t, 3, calls)
}

func TestDoDoesNotRetryFatal(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{Attempts: 3, BaseDelay: time.Millisecond, Retryable: isBusy},
		func(context.Context) error {
			calls++
			return errFatal
		})
	require.ErrorIs(t, err, errFatal)
	require.Equal(t, 1, calls)
}

func TestDoSingleAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{Retryable: isBusy}, func(context.Context) error {
		calls++
		return errBusy
	})
	require.ErrorIs(t, err, errBusy)
	require.Equal(t, 1, calls)
}

func TestDoContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Policy{Attempts: 3, BaseDelay: time.Hour, Retryable: isBusy}, func(context.Context) error {
		calls++
		cancel()
		return errBusy
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}

func TestValue(t *testing.T) {
	calls := 0
	v, err := Value(context.Background(), Policy{Attempts: 2, BaseDelay: time.Millisecond, Retryable: isBusy},
		func(context.Context) (string, error) {
			calls++
			if calls == 1 {
				return "", errBusy
			}
			return "ok", nil
		})
	require.NoError(t, err)
	require.Equal(t, "ok", v)
}
