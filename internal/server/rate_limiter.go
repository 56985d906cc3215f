package server

import (
	"context"
	"sync"
	"time"

	"github.com/slotline/slotline/internal/ratelimit"
)

// rateLimiter enforces a per-caller request budget. With redis configured the
// budget is shared across instances through the token bucket; without it, or
// when redis is unreachable, a fixed-window in-process counter covers the
// single instance.
type rateLimiter struct {
	bucket *ratelimit.TokenBucket
	name   string
	rate   float64
	burst  int

	mu      sync.Mutex
	limit   int
	window  time.Duration
	started time.Time
	counts  map[string]int
}

func newRateLimiter(bucket *ratelimit.TokenBucket, name string, limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		bucket:  bucket,
		name:    name,
		rate:    float64(limit) / window.Seconds(),
		burst:   limit,
		limit:   limit,
		window:  window,
		started: time.Now(),
		counts:  make(map[string]int),
	}
}

func (l *rateLimiter) Allow(ctx context.Context, key string) bool {
	if l.bucket != nil {
		allowed, err := l.bucket.Allow(ctx, "ratelimit:"+l.name+":"+key, l.rate, l.burst)
		if err == nil {
			return allowed
		}
	}
	return l.allowLocal(key)
}

func (l *rateLimiter) allowLocal(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.started) >= l.window {
		l.started = now
		l.counts = make(map[string]int)
	}

	if l.counts[key] >= l.limit {
		return false
	}
	l.counts[key]++
	return true
}
