// Package pacing spaces outbound provider calls and honors retry hints.
package pacing

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultInterval is the gap between consecutive provider calls.
	DefaultInterval = 2 * time.Second
	// DefaultMaxPenalty caps how long a provider retry hint can stall the
	// pipeline.
	DefaultMaxPenalty = 60 * time.Second
)

// Pacer throttles sequential provider calls. It is a token bucket with a
// penalty window on top: errors widen the gap before the next call, and
// provider retry hints are honored up to DefaultMaxPenalty.
type Pacer struct {
	mu           sync.Mutex
	limiter      *rate.Limiter
	penaltyUntil time.Time

	interval   time.Duration
	maxPenalty time.Duration

	// injected clock and sleeper for tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a pacer that spaces calls by interval. Non-positive intervals
// fall back to DefaultInterval.
func New(interval time.Duration) *Pacer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Pacer{
		limiter:    rate.NewLimiter(rate.Every(interval), 1),
		interval:   interval,
		maxPenalty: DefaultMaxPenalty,
		now:        time.Now,
		sleep:      Sleep,
	}
}

// Wait blocks until the next call may start. A pending penalty window is
// served first, then the token bucket.
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	until := p.penaltyUntil
	p.mu.Unlock()

	if d := until.Sub(p.now()); d > 0 {
		if err := p.sleep(ctx, d); err != nil {
			return err
		}
	}
	return p.limiter.Wait(ctx)
}

// RecordError doubles the gap before the next call.
func (p *Pacer) RecordError() {
	p.setPenalty(2 * p.interval)
}

// RecordRateLimit schedules a penalty from a provider retry hint. Hints are
// capped at the max penalty; a missing hint gets the full cap.
func (p *Pacer) RecordRateLimit(retryAfter time.Duration) {
	if retryAfter <= 0 || retryAfter > p.maxPenalty {
		retryAfter = p.maxPenalty
	}
	p.setPenalty(retryAfter)
}

// setPenalty extends the penalty window; it never shortens one already set.
func (p *Pacer) setPenalty(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	until := p.now().Add(d)
	if until.After(p.penaltyUntil) {
		p.penaltyUntil = until
	}
}

// Sleep blocks for d or until the context is canceled.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
