package engine

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestRL(t *testing.T, perSecond int) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	rl := NewRateLimiter(client, perSecond, logger)
	return rl, mr
}

func TestRateLimiter_AllowsWithinLimit(t *testing.T) {
	rl, _ := setupTestRL(t, 5)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if !rl.Allow(ctx, "api.example.com") {
			t.Errorf("attempt %d should be allowed (limit=5)", i+1)
		}
	}
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	rl, _ := setupTestRL(t, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rl.Allow(ctx, "api.example.com")
	}

	if rl.Allow(ctx, "api.example.com") {
		t.Error("attempt should be blocked when over limit")
	}
}

func TestRateLimiter_ZeroLimit_AllowsAll(t *testing.T) {
	rl, _ := setupTestRL(t, 0)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		if !rl.Allow(ctx, "api.example.com") {
			t.Errorf("attempt %d should be allowed with limit=0 (unlimited)", i+1)
		}
	}
}

func TestRateLimiter_IsolationBetweenHosts(t *testing.T) {
	rl, _ := setupTestRL(t, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		rl.Allow(ctx, "busy.example.com")
	}

	if rl.Allow(ctx, "busy.example.com") {
		t.Error("busy host should be blocked")
	}
	if !rl.Allow(ctx, "quiet.example.com") {
		t.Error("quiet host should be allowed, limits are per-host")
	}
}
