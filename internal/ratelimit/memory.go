package ratelimit

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter keeps counters in process memory. Counters are not shared
// between instances.
type MemoryLimiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (l *MemoryLimiter) WithClock(now func() time.Time) *MemoryLimiter {
	l.now = now
	return l
}

func (l *MemoryLimiter) Check(_ context.Context, key string, max int, window time.Duration) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, exists := l.entries[key]
	if !exists || !now.Before(e.resetAt) {
		l.entries[key] = &entry{count: 1, resetAt: now.Add(window)}
		return Result{Allowed: true}, nil
	}

	if e.count >= max {
		return Result{Allowed: false, RetryAfter: retryAfterSeconds(e.resetAt.Sub(now))}, nil
	}

	e.count++
	return Result{Allowed: true}, nil
}

// Sweep drops entries whose window has elapsed and returns how many were
// removed.
func (l *MemoryLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for k, e := range l.entries {
		if !now.Before(e.resetAt) {
			delete(l.entries, k)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (l *MemoryLimiter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

func (l *MemoryLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
