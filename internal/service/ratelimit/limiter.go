package ratelimit

import (
	"sync"
	"time"
)

type bucket struct {
	tokens float64
	last   time.Time
}

// Limiter is a per-key token bucket. Buckets are created on first use
// and refilled lazily on each check.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	nowFn   func() time.Time
}

func New() *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		nowFn:   time.Now,
	}
}

// Allow consumes one token for key if available. capacity bounds the
// burst size; refillPerSec is the sustained rate.
func (l *Limiter) Allow(key string, capacity, refillPerSec float64) bool {
	now := l.nowFn()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: capacity, last: now}
		l.buckets[key] = b
	}

	b.tokens += now.Sub(b.last).Seconds() * refillPerSec
	if b.tokens > capacity {
		b.tokens = capacity
	}
	b.last = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
