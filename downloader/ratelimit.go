package downloader

import (
	"context"
	"sync"
	"time"
)

// HostLimiter enforces a minimum delay between successive requests to the
// same host. Shared by every worker in the pool; each host gets its own
// schedule so two sources never throttle each other.
type HostLimiter struct {
	mu    sync.Mutex
	delay time.Duration
	next  map[string]time.Time
}

// NewHostLimiter creates a limiter with the given minimum inter-request
// delay per host.
func NewHostLimiter(delay time.Duration) *HostLimiter {
	return &HostLimiter{
		delay: delay,
		next:  make(map[string]time.Time),
	}
}

// Wait blocks until the host's next request slot, or until ctx is done.
// The slot is reserved before sleeping, so concurrent waiters queue up at
// delay-sized intervals instead of stampeding when the first one wakes.
func (l *HostLimiter) Wait(ctx context.Context, host string) error {
	l.mu.Lock()
	now := time.Now()
	at := l.next[host]
	if at.Before(now) {
		at = now
	}
	l.next[host] = at.Add(l.delay)
	l.mu.Unlock()

	wait := time.Until(at)
	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Delay returns the configured per-host delay.
func (l *HostLimiter) Delay() time.Duration {
	return l.delay
}
