// Package retry implements the backoff policy shared by the external
// report fetchers: exponential delay with jitter, capped, giving up
// after a fixed attempt budget.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/classplay/novodash/internal/config"
)

// Config controls the retry loop.
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Retryable decides whether an error is transient. Nil retries
	// everything.
	Retryable func(error) bool
	// OnRetry is invoked before each sleep, for logging/metrics.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultConfig returns the fetcher policy: 5 attempts, 1s base delay
// doubling up to 30s, with jitter.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  5,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// FromFetchConfig builds a retry policy from the service configuration.
func FromFetchConfig(fc config.FetchConfig) Config {
	cfg := DefaultConfig()
	if fc.MaxAttempts > 0 {
		cfg.MaxAttempts = fc.MaxAttempts
	}
	if fc.InitialDelay > 0 {
		cfg.InitialDelay = fc.InitialDelay
	}
	if fc.MaxDelay > 0 {
		cfg.MaxDelay = fc.MaxDelay
	}
	return cfg
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks an error as not retryable; Do returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do runs fn until it succeeds, the attempt budget is exhausted, or the
// context is canceled. The last error is returned unwrapped so callers
// can inspect it.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if cfg.Retryable != nil && !cfg.Retryable(err) {
			return err
		}

		lastErr = err
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		delay := backoffDelay(attempt, cfg)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, delay, err)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// backoffDelay computes delay for the given zero-based attempt with up
// to 30% additive jitter.
func backoffDelay(attempt int, cfg Config) time.Duration {
	mult := cfg.Multiplier
	if mult <= 0 {
		mult = 2.0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(mult, float64(attempt))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	delay += rand.Float64() * 0.3 * delay
	return time.Duration(delay)
}
