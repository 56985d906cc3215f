package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// deduper answers whether a click for (code, session) was already counted
// inside the dedup window.
type deduper interface {
	FirstSeen(ctx context.Context, code, sessionKey string, window time.Duration) (bool, error)
}

func clickKey(code, sessionKey string) string {
	return fmt.Sprintf("track:click:%s:%s", code, sessionKey)
}

type redisDeduper struct {
	client *redis.Client
}

func (d *redisDeduper) FirstSeen(ctx context.Context, code, sessionKey string, window time.Duration) (bool, error) {
	return d.client.SetNX(ctx, clickKey(code, sessionKey), 1, window).Result()
}

// memoryDeduper is the single-replica fallback when redis is not configured.
type memoryDeduper struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

func newMemoryDeduper() *memoryDeduper {
	return &memoryDeduper{seen: make(map[string]time.Time)}
}

func (d *memoryDeduper) FirstSeen(_ context.Context, code, sessionKey string, window time.Duration) (bool, error) {
	now := time.Now()
	key := clickKey(code, sessionKey)

	d.mu.Lock()
	defer d.mu.Unlock()

	for k, expiry := range d.seen {
		if now.After(expiry) {
			delete(d.seen, k)
		}
	}

	if expiry, ok := d.seen[key]; ok && now.Before(expiry) {
		return false, nil
	}
	d.seen[key] = now.Add(window)
	return true, nil
}
