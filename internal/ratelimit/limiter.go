// Package ratelimit implements a sliding-window attempt counter keyed by (action, identifier).
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/safar/storefront-api/internal/metrics"
)

// Timestamps older than this are dropped from every bucket on each write.
const housekeepingAge = time.Hour

type Rule struct {
	MaxAttempts int
	Window      time.Duration
}

var DefaultRule = Rule{MaxAttempts: 5, Window: 300 * time.Second}

// Store persists buckets of attempt timestamps.
type Store interface {
	// Attempt drops timestamps at or before now-window from the bucket and records now when
	// fewer than rule.MaxAttempts remain. It reports whether the attempt was recorded.
	Attempt(ctx context.Context, key string, now time.Time, rule Rule) (bool, error)
	// Count returns the number of timestamps in the bucket newer than now-window.
	Count(ctx context.Context, key string, now time.Time, window time.Duration) (int, error)
}

type TooManyAttemptsError struct {
	Action     string
	RetryAfter time.Duration
}

func (e *TooManyAttemptsError) Error() string {
	return fmt.Sprintf("too many %s attempts, retry after %s", e.Action, e.RetryAfter)
}

type Limiter struct {
	store   Store
	now     func() time.Time
	metrics *metrics.Metrics
}

type Option func(*Limiter)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) { l.metrics = m }
}

func New(store Store, opts ...Option) *Limiter {
	l := &Limiter{
		store:   store,
		now:     time.Now,
		metrics: metrics.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Key is the stable bucket key for an (action, identifier) pair.
func Key(action, identifier string) string {
	sum := sha256.Sum256([]byte(action + ":" + identifier))
	return hex.EncodeToString(sum[:])
}

// CheckLimit records an attempt and reports whether it is allowed. A denied attempt is not
// recorded.
func (l *Limiter) CheckLimit(ctx context.Context, identifier, action string, rule Rule) (bool, error) {
	allowed, err := l.store.Attempt(ctx, Key(action, identifier), l.now(), rule)
	if err != nil {
		return false, fmt.Errorf("rate limit %s: %w", action, err)
	}
	if !allowed {
		l.metrics.RateLimitDenied.WithLabelValues(action).Inc()
	}
	return allowed, nil
}

// Enforce is CheckLimit returning *TooManyAttemptsError when the attempt is denied.
func (l *Limiter) Enforce(ctx context.Context, identifier, action string, rule Rule) error {
	allowed, err := l.CheckLimit(ctx, identifier, action, rule)
	if err != nil {
		return err
	}
	if !allowed {
		return &TooManyAttemptsError{Action: action, RetryAfter: rule.Window}
	}
	return nil
}

// Exceeded reports whether the next attempt would be denied, without recording anything.
func (l *Limiter) Exceeded(ctx context.Context, identifier, action string, rule Rule) (bool, error) {
	n, err := l.store.Count(ctx, Key(action, identifier), l.now(), rule.Window)
	if err != nil {
		return false, fmt.Errorf("rate limit %s: %w", action, err)
	}
	return n >= rule.MaxAttempts, nil
}

// prune returns the timestamps newer than cutoff, reusing ts.
func prune(ts []time.Time, cutoff time.Time) []time.Time {
	kept := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
