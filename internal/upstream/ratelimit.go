package upstream

import (
	"context"
	"sync"
	"time"
)

// Limiter enforces a minimum inter-request spacing for one upstream
// target. All concurrent callers hitting the same target share one
// Limiter instance; only dispatch timing is serialized, never the
// requests themselves.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time // time the most recent slot was handed out
}

// NewLimiter builds a limiter from a requests-per-second budget.
// A non-positive budget disables spacing entirely.
func NewLimiter(perSecond float64) *Limiter {
	if perSecond <= 0 {
		return &Limiter{}
	}
	return &Limiter{interval: time.Duration(float64(time.Second) / perSecond)}
}

// Acquire blocks until the caller may dispatch. Each caller reserves the
// next free slot under the lock and then sleeps outside it, so N waiters
// end up spaced one interval apart rather than stampeding on wake-up.
func (l *Limiter) Acquire(ctx context.Context) error {
	if l.interval <= 0 {
		return ctx.Err()
	}

	l.mu.Lock()
	now := time.Now()
	slot := l.last.Add(l.interval)
	if slot.Before(now) {
		slot = now
	}
	l.last = slot
	l.mu.Unlock()

	return SleepWithContext(ctx, time.Until(slot))
}

// SleepWithContext blocks for the given duration, returning early if the
// context is cancelled.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
