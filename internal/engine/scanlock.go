package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const scanLockKey = "webhook:scan_lock"

// CycleLock makes a scan cycle exclusive across replicas via SET NX with
// a TTL. The TTL covers the query-and-claim phase; deliveries themselves
// run outside the lock and are already guarded by the per-event claim.
type CycleLock struct {
	redisClient *redis.Client
	ttl         time.Duration
	logger      *slog.Logger
}

func NewCycleLock(redisClient *redis.Client, ttl time.Duration, logger *slog.Logger) *CycleLock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CycleLock{redisClient: redisClient, ttl: ttl, logger: logger}
}

// TryAcquire attempts to take the cycle lock. Redis failures fail open so
// a broken lock never stalls the scanner; the scan itself stays safe
// through the atomic per-event claim.
func (l *CycleLock) TryAcquire(ctx context.Context) bool {
	ok, err := l.redisClient.SetNX(ctx, scanLockKey, "1", l.ttl).Result()
	if err != nil {
		l.logger.Error("scan lock acquire failed", "error", err)
		return true
	}
	return ok
}

// Release frees the lock early so the next cycle does not wait out the TTL.
func (l *CycleLock) Release(ctx context.Context) {
	if err := l.redisClient.Del(ctx, scanLockKey).Err(); err != nil {
		l.logger.Error("scan lock release failed", "error", err)
	}
}
