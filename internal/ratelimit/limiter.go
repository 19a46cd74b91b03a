// Package ratelimit spaces out calls to an external service so that no two
// permits are issued closer together than a fixed interval.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter issues permits no faster than one per interval. The first permit is
// immediate; there are no bursts.
type Limiter struct {
	mu             sync.Mutex
	nextPermitTime time.Time
	interval       time.Duration
	now            func() time.Time
}

// New creates a Limiter with the given minimum spacing between permits.
// A non-positive interval disables pacing.
func New(interval time.Duration) *Limiter {
	if interval < 0 {
		interval = 0
	}
	return &Limiter{
		nextPermitTime: time.Now(),
		interval:       interval,
		now:            time.Now,
	}
}

// Wait blocks until a permit is available or the context is cancelled.
// A cancelled wait hands its slot back if no later permit was issued.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	now := l.now()
	if l.nextPermitTime.Before(now) {
		l.nextPermitTime = now
	}
	permitTime := l.nextPermitTime
	l.nextPermitTime = permitTime.Add(l.interval)
	l.mu.Unlock()

	waitDuration := permitTime.Sub(now)
	if waitDuration <= 0 {
		return nil
	}

	timer := time.NewTimer(waitDuration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		l.mu.Lock()
		if l.nextPermitTime.Equal(permitTime.Add(l.interval)) {
			l.nextPermitTime = permitTime
		}
		l.mu.Unlock()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
