package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(5), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoReturnsLastErrorWhenExhausted(t *testing.T) {
	calls := 0
	lastErr := errors.New("still failing")
	err := Do(context.Background(), fastConfig(5), func(ctx context.Context) error {
		calls++
		if calls == 5 {
			return lastErr
		}
		return errors.New("earlier failure")
	})
	require.Error(t, err)
	assert.Equal(t, 5, calls)
	assert.Equal(t, lastErr, err)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	calls := 0
	cause := errors.New("bad request")
	err := Do(context.Background(), fastConfig(5), func(ctx context.Context) error {
		calls++
		return Permanent(cause)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, cause, err)
}

func TestDoRespectsRetryablePredicate(t *testing.T) {
	calls := 0
	cfg := fastConfig(5)
	cfg.Retryable = func(err error) bool { return false }
	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		return errors.New("nope")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{
		MaxAttempts:  5,
		InitialDelay: time.Hour,
		MaxDelay:     time.Hour,
		Multiplier:   2.0,
	}
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := Do(ctx, cfg, func(ctx context.Context) error {
		return errors.New("transient")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoffDelayIsCapped(t *testing.T) {
	cfg := Config{
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
	// Attempt 10 would be 1024s without the cap; jitter adds at most 30%.
	d := backoffDelay(10, cfg)
	assert.LessOrEqual(t, d, time.Duration(float64(30*time.Second)*1.3))
	assert.GreaterOrEqual(t, d, 30*time.Second)
}

func TestOnRetryCallbackCounts(t *testing.T) {
	retries := 0
	cfg := fastConfig(4)
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) { retries++ }
	_ = Do(context.Background(), cfg, func(ctx context.Context) error {
		return errors.New("transient")
	})
	// 4 attempts means 3 sleeps between them.
	assert.Equal(t, 3, retries)
}
