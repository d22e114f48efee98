package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// MemoryLimiter is a per-key token bucket held entirely in process
// memory. Suited to single-instance deployments; with multiple replicas
// each instance enforces its own budget independently.
type MemoryLimiter struct {
	rate  float64 // sustained allowance, requests per second
	burst float64 // bucket capacity

	mu      sync.Mutex
	clients map[string]*clientBucket

	closeOnce sync.Once
	closing   chan struct{}
}

// clientBucket tracks one key's remaining allowance. The token level is
// recomputed lazily on each Allow call from the time elapsed since the
// previous one.
type clientBucket struct {
	level  float64
	seenAt time.Time
}

const (
	sweepInterval = time.Minute
	idleEviction  = 10 * time.Minute
)

// NewMemoryLimiter creates a limiter allowing rate requests per second
// per key with bursts up to burst. A janitor goroutine evicts keys idle
// longer than ten minutes so the map stays bounded by the active client
// set; Close stops it.
func NewMemoryLimiter(rate float64, burst int) *MemoryLimiter {
	l := &MemoryLimiter{
		rate:    rate,
		burst:   float64(burst),
		clients: make(map[string]*clientBucket),
		closing: make(chan struct{}),
	}
	go l.janitor()
	return l
}

// Allow takes one token for key, creating a full bucket on first sight.
// The error return is always nil; it exists for limiter backends that
// can fail.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.clients[key]
	if !ok {
		l.clients[key] = &clientBucket{level: l.burst - 1, seenAt: now}
		return true, nil
	}

	c.level = math.Min(l.burst, c.level+now.Sub(c.seenAt).Seconds()*l.rate)
	c.seenAt = now
	if c.level < 1 {
		return false, nil
	}
	c.level--
	return true, nil
}

// Close stops the janitor goroutine. Safe to call more than once.
func (l *MemoryLimiter) Close() error {
	l.closeOnce.Do(func() { close(l.closing) })
	return nil
}

func (l *MemoryLimiter) janitor() {
	t := time.NewTicker(sweepInterval)
	defer t.Stop()

	for {
		select {
		case <-l.closing:
			return
		case now := <-t.C:
			l.sweep(now)
		}
	}
}

func (l *MemoryLimiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, c := range l.clients {
		if now.Sub(c.seenAt) > idleEviction {
			delete(l.clients, key)
		}
	}
}
