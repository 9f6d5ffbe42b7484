package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter caps delivery attempts per destination host with a Redis
// sliding window. A Lua script atomically trims expired entries, checks
// the count, and records the new attempt.
type RateLimiter struct {
	redisClient *redis.Client
	logger      *slog.Logger
	perSecond   int
	script      *redis.Script
}

var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

local count = redis.call('ZCARD', key)

if count < limit then
    redis.call('ZADD', key, now, member)
    redis.call('EXPIRE', key, window / 1000 + 1)
    return 1
else
    return 0
end
`)

// NewRateLimiter creates a limiter allowing perSecond attempts per host.
// perSecond <= 0 disables limiting.
func NewRateLimiter(redisClient *redis.Client, perSecond int, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		redisClient: redisClient,
		logger:      logger,
		perSecond:   perSecond,
		script:      slidingWindowScript,
	}
}

// Allow reports whether an attempt to the host fits the rate limit.
// Redis failures fail open.
func (rl *RateLimiter) Allow(ctx context.Context, host string) bool {
	if rl.perSecond <= 0 {
		return true
	}

	now := time.Now().UnixMilli()
	member := fmt.Sprintf("%d:%d", now, time.Now().UnixNano()%10000)

	result, err := rl.script.Run(ctx, rl.redisClient, []string{"webhook:rl:" + host},
		now, int64(1000), rl.perSecond, member,
	).Int64()
	if err != nil {
		rl.logger.Error("rate limiter script failed", "error", err, "host", host)
		return true
	}

	if result == 0 {
		rl.logger.Debug("delivery rate limited", "host", host, "limit", rl.perSecond)
		return false
	}
	return true
}
