// Package retry runs a call with exponential backoff.
//
//	err := retry.Do(ctx, retry.DefaultConfig, func() error {
//	    return client.Call(ctx)
//	})
//
// fn marks an error final by wrapping it with Permanent, and can ask for a
// specific wait (such as an HTTP Retry-After) by wrapping it with After.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Config controls the retry behaviour.
type Config struct {
	// MaxAttempts counts the first call. Values below 1 mean one attempt.
	MaxAttempts int
	// InitialDelay is the wait before the second attempt; later waits
	// double up to MaxDelay.
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultConfig suits short HTTP calls to third-party APIs.
var DefaultConfig = Config{
	MaxAttempts:  3,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     10 * time.Second,
}

type permanent struct{ err error }

func (p *permanent) Error() string { return p.err.Error() }
func (p *permanent) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. Do returns err unwrapped.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanent{err: err}
}

type after struct {
	err  error
	wait time.Duration
}

func (a *after) Error() string { return a.err.Error() }
func (a *after) Unwrap() error { return a.err }

// After asks Do to wait d (capped at MaxDelay) before the next attempt.
func After(err error, d time.Duration) error {
	if err == nil {
		return nil
	}
	return &after{err: err, wait: d}
}

// Do calls fn until it succeeds, returns a Permanent error, attempts run out
// or ctx ends. It returns the last error seen.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultConfig.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultConfig.MaxDelay
	}

	delay := cfg.InitialDelay
	var last error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Join(last, err)
		}

		err := fn()
		if err == nil {
			return nil
		}
		var p *permanent
		if errors.As(err, &p) {
			return p.err
		}
		last = err
		if attempt >= cfg.MaxAttempts {
			return last
		}

		wait := delay
		var a *after
		if errors.As(err, &a) && a.wait > 0 {
			wait = a.wait
			last = a.err
		}
		if wait > cfg.MaxDelay {
			wait = cfg.MaxDelay
		}
		slog.Debug("retry: attempt failed", "attempt", attempt, "max", cfg.MaxAttempts, "err", err, "wait", wait)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return errors.Join(last, ctx.Err())
		case <-t.C:
		}

		delay *= 2
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
}
