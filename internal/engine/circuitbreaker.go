package engine

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Circuit breaker states.
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half-open"
)

// CircuitBreaker tracks failures per destination host in Redis and stops
// hammering endpoints that keep failing. Transitions:
// closed → open (threshold reached) → half-open (cooldown elapsed) →
// closed on a successful probe, back to open on a failed one.
type CircuitBreaker struct {
	redisClient      *redis.Client
	logger           *slog.Logger
	failureThreshold int
	cooldown         time.Duration
}

// BreakerState is the externally visible circuit state for a host.
type BreakerState struct {
	State        string `json:"state"`
	Failures     int    `json:"failures"`
	LastFailedAt string `json:"last_failed_at,omitempty"`
}

func NewCircuitBreaker(redisClient *redis.Client, failureThreshold int, cooldown time.Duration, logger *slog.Logger) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	return &CircuitBreaker{
		redisClient:      redisClient,
		logger:           logger,
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
	}
}

func breakerKey(host string) string {
	return "webhook:cb:" + host
}

// Allow reports whether a delivery attempt to the host may proceed.
// Redis errors fail open: a broken breaker never blocks deliveries.
func (cb *CircuitBreaker) Allow(ctx context.Context, host string) bool {
	data, err := cb.redisClient.HGetAll(ctx, breakerKey(host)).Result()
	if err != nil || len(data) == 0 {
		return true
	}

	switch data["state"] {
	case StateOpen:
		lastFailedAt, _ := strconv.ParseInt(data["last_failed_at"], 10, 64)
		if time.Now().Unix()-lastFailedAt >= int64(cb.cooldown.Seconds()) {
			// Cooldown elapsed: allow one probe.
			cb.redisClient.HSet(ctx, breakerKey(host), "state", StateHalfOpen)
			cb.logger.Info("circuit breaker half-open", "host", host)
			return true
		}
		return false
	default:
		return true
	}
}

// ReportSuccess closes the circuit for the host.
func (cb *CircuitBreaker) ReportSuccess(ctx context.Context, host string) {
	key := breakerKey(host)
	prev, _ := cb.redisClient.HGet(ctx, key, "state").Result()

	cb.redisClient.HSet(ctx, key, "state", StateClosed, "failures", 0)

	if prev == StateHalfOpen {
		cb.logger.Info("circuit breaker closed, endpoint recovered", "host", host)
	}
}

// ReportFailure counts a failed attempt and opens the circuit when the
// threshold is reached or a half-open probe fails.
func (cb *CircuitBreaker) ReportFailure(ctx context.Context, host string) {
	key := breakerKey(host)

	failures, err := cb.redisClient.HIncrBy(ctx, key, "failures", 1).Result()
	if err != nil {
		cb.logger.Error("failed to record circuit breaker failure", "error", err, "host", host)
		return
	}
	cb.redisClient.HSet(ctx, key, "last_failed_at", time.Now().Unix())

	prev, _ := cb.redisClient.HGet(ctx, key, "state").Result()

	switch {
	case prev == StateHalfOpen:
		cb.redisClient.HSet(ctx, key, "state", StateOpen)
		cb.logger.Warn("circuit breaker re-opened, probe failed", "host", host)
	case failures >= int64(cb.failureThreshold):
		cb.redisClient.HSet(ctx, key, "state", StateOpen)
		cb.logger.Warn("circuit breaker opened",
			"host", host,
			"failures", failures,
			"threshold", cb.failureThreshold,
		)
	case prev == "":
		cb.redisClient.HSet(ctx, key, "state", StateClosed)
	}
}

// State returns the current circuit state for a host.
func (cb *CircuitBreaker) State(ctx context.Context, host string) BreakerState {
	data, err := cb.redisClient.HGetAll(ctx, breakerKey(host)).Result()
	if err != nil || len(data) == 0 {
		return BreakerState{State: StateClosed}
	}

	state := data["state"]
	if state == "" {
		state = StateClosed
	}
	failures, _ := strconv.Atoi(data["failures"])
	lastFailedAt, _ := strconv.ParseInt(data["last_failed_at"], 10, 64)

	if state == StateOpen && time.Now().Unix()-lastFailedAt >= int64(cb.cooldown.Seconds()) {
		state = StateHalfOpen
	}

	out := BreakerState{State: state, Failures: failures}
	if lastFailedAt > 0 {
		out.LastFailedAt = time.Unix(lastFailedAt, 0).Format(time.RFC3339)
	}
	return out
}
