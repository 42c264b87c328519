// Package limiter paces protocol calls with a token bucket plus an
// adaptive error delay, so an unattended run stays well under the
// account-wide flood limits instead of provoking them.
package limiter

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Limiter is a token-bucket pacer with an adaptive penalty delay.
// The bucket bounds steady-state request rate; the penalty delay grows
// on failures (x1.5, capped) and decays on successes (x0.9, floored),
// and is applied after recent failures only.
type Limiter struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time

	delay       time.Duration
	minDelay    time.Duration
	maxDelay    time.Duration
	lastFailure time.Time
}

// New creates a Limiter allowing ratePerMinute calls per minute with
// the given burst, and an adaptive delay capped at maxDelay.
func New(ratePerMinute, burst int, maxDelay time.Duration) *Limiter {
	if ratePerMinute < 1 {
		ratePerMinute = 1
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		tokens:     float64(burst),
		maxTokens:  float64(burst),
		refillRate: float64(ratePerMinute) / 60.0,
		lastRefill: time.Now(),
		delay:      time.Second,
		minDelay:   time.Second,
		maxDelay:   maxDelay,
	}
}

// Wait blocks until a token is available, honoring ctx. After a recent
// failure it additionally sleeps the jittered penalty delay.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		l.refill()
		if l.tokens >= 1 {
			l.tokens--
			penalty := l.penalty()
			l.mu.Unlock()
			if penalty > 0 {
				if err := sleep(ctx, penalty); err != nil {
					return err
				}
			}
			return nil
		}
		wait := time.Duration((1 - l.tokens) / l.refillRate * float64(time.Second))
		l.mu.Unlock()
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// RecordSuccess decays the penalty delay.
func (l *Limiter) RecordSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.delay = time.Duration(float64(l.delay) * 0.9)
	if l.delay < l.minDelay {
		l.delay = l.minDelay
	}
}

// RecordFailure grows the penalty delay. A non-zero hint (e.g. a
// server-provided retry-after) seeds the growth.
func (l *Limiter) RecordFailure(hint time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	base := l.delay
	if hint > base {
		base = hint
	}
	l.delay = time.Duration(float64(base) * 1.5)
	if l.delay > l.maxDelay {
		l.delay = l.maxDelay
	}
	l.lastFailure = time.Now()
}

// Delay returns the current penalty delay. Exposed for tests and logs.
func (l *Limiter) Delay() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.delay
}

// penalty returns the jittered delay to apply, or 0 when the last
// failure is old enough that normal pacing suffices. Caller holds mu.
func (l *Limiter) penalty() time.Duration {
	if l.lastFailure.IsZero() || time.Since(l.lastFailure) > 10*l.delay {
		return 0
	}
	jitter := 0.5 + rand.Float64() // [0.5, 1.5)
	return time.Duration(float64(l.delay) * jitter)
}

// refill adds tokens for elapsed time. Caller holds mu.
func (l *Limiter) refill() {
	now := time.Now()
	elapsed := now.Sub(l.lastRefill).Seconds()
	l.tokens += elapsed * l.refillRate
	if l.tokens > l.maxTokens {
		l.tokens = l.maxTokens
	}
	l.lastRefill = now
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
