// Package guard holds the checks a chat message passes before any model
// work: a per-actor cooldown and an input length bound.
package guard

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bdobrica/ilji/internal/ilji/text"
)

const (
	// DefaultStandardCooldown applies to ordinary chat modes.
	DefaultStandardCooldown = 5 * time.Second

	// DefaultHeavyCooldown applies to modes served by the larger model.
	DefaultHeavyCooldown = 10 * time.Second

	// DefaultMaxInput is the rune bound past which input is truncated.
	DefaultMaxInput = 4000
)

// ErrEmptyInput is returned by Check for empty or whitespace-only text.
var ErrEmptyInput = errors.New("guard: empty message")

// RateLimitedError reports a rejected request and how long the actor must
// wait before the next one is accepted.
type RateLimitedError struct {
	Remaining time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("guard: rate limited, retry in %s", e.Remaining.Round(100*time.Millisecond))
}

// Limiter enforces a cooldown between accepted requests of one actor.
//
// Allow never blocks on I/O; it holds a mutex only around a map lookup.
// It is safe for concurrent use.
type Limiter struct {
	mu   sync.Mutex
	last map[string]time.Time // actor → last accepted request
	now  func() time.Time
}

// NewLimiter returns a Limiter using the wall clock.
func NewLimiter() *Limiter {
	return NewLimiterWithClock(time.Now)
}

// NewLimiterWithClock returns a Limiter driven by now.
func NewLimiterWithClock(now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	return &Limiter{last: make(map[string]time.Time), now: now}
}

// Allow accepts the actor's request when at least window has passed since
// its last accepted one, recording the current time. A rejection leaves the
// recorded time untouched and returns the wait still remaining.
func (l *Limiter) Allow(actor string, window time.Duration) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if last, ok := l.last[actor]; ok {
		if elapsed := now.Sub(last); elapsed < window {
			return window - elapsed, false
		}
	}
	l.last[actor] = now
	return 0, true
}

// Sweep forgets actors idle for longer than olderThan and returns how many
// were dropped.
func (l *Limiter) Sweep(olderThan time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-olderThan)
	n := 0
	for actor, t := range l.last {
		if t.Before(cutoff) {
			delete(l.last, actor)
			n++
		}
	}
	return n
}

// Len returns the number of tracked actors.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.last)
}

// Input bounds message length.
type Input struct {
	// MaxRunes is the truncation bound. Default: 4000.
	MaxRunes int
}

// Check rejects blank text and truncates text longer than MaxRunes.
// Truncation is reported, not an error.
func (g Input) Check(s string) (string, bool, error) {
	if text.IsBlank(s) {
		return "", false, ErrEmptyInput
	}
	max := g.MaxRunes
	if max <= 0 {
		max = DefaultMaxInput
	}
	out, cut := text.Truncate(s, max)
	return out, cut, nil
}
