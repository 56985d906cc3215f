package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterFallsBackWithoutRedis(t *testing.T) {
	limiter := newRateLimiter(nil, "intent", 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow(ctx, "10.0.0.1"))
	}
	assert.False(t, limiter.Allow(ctx, "10.0.0.1"))

	// Budgets are per caller.
	assert.True(t, limiter.Allow(ctx, "10.0.0.2"))
}

func TestRateLimiterWindowResets(t *testing.T) {
	limiter := newRateLimiter(nil, "click", 1, 10*time.Millisecond)
	ctx := context.Background()

	assert.True(t, limiter.Allow(ctx, "10.0.0.1"))
	assert.False(t, limiter.Allow(ctx, "10.0.0.1"))

	limiter.mu.Lock()
	limiter.started = limiter.started.Add(-limiter.window)
	limiter.mu.Unlock()

	assert.True(t, limiter.Allow(ctx, "10.0.0.1"))
}
