// Package worker executes webhook deliveries: request building, the HTTP
// call under a timeout, the bounded retry chain, and ledger recording.
package worker

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/plannerhq/webhook-engine/internal/domain"
	"github.com/plannerhq/webhook-engine/internal/engine"
	ws "github.com/plannerhq/webhook-engine/internal/websocket"
)

// Ledger is the append-only execution log. Writes are best-effort from
// the executor's point of view: a failed write never fails a delivery.
type Ledger interface {
	InsertWebhookLog(ctx context.Context, entry *domain.WebhookLogEntry) error
}

// TriggerMarker records confirmed successful deliveries on the owning
// entity (last-triggered timestamp and trigger counter).
type TriggerMarker interface {
	RecordEventTriggerSuccess(ctx context.Context, id string, at time.Time) error
	RecordTaskTriggerSuccess(ctx context.Context, id string, at time.Time) error
}

// Config tunes the executor.
type Config struct {
	// Timeout bounds each production delivery attempt.
	Timeout time.Duration
	// TestTimeout bounds test deliveries.
	TestTimeout time.Duration
	// UserAgent identifies outbound requests.
	UserAgent string
}

// Deliverer builds and executes outbound webhook requests.
type Deliverer struct {
	httpClient *http.Client
	ledger     Ledger
	marker     TriggerMarker
	breaker    *engine.CircuitBreaker
	limiter    *engine.RateLimiter
	hub        *ws.Hub
	cfg        Config
	logger     *slog.Logger
}

// NewDeliverer creates an executor. breaker, limiter, and hub are
// optional; ledger and marker are required in production but may be nil
// in tests exercising pure HTTP mechanics.
func NewDeliverer(cfg Config, ledger Ledger, marker TriggerMarker, breaker *engine.CircuitBreaker, limiter *engine.RateLimiter, hub *ws.Hub, logger *slog.Logger) *Deliverer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.TestTimeout <= 0 {
		cfg.TestTimeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Planner-Webhook/1.0"
	}
	return &Deliverer{
		httpClient: &http.Client{},
		ledger:     ledger,
		marker:     marker,
		breaker:    breaker,
		limiter:    limiter,
		hub:        hub,
		cfg:        cfg,
		logger:     logger,
	}
}

// attemptOutcome captures one executed attempt for recording.
type attemptOutcome struct {
	statusCode *int
	response   string
	errMsg     string
	durationMs int64
	success    bool
	headers    map[string]string
	body       map[string]any
}

// Deliver runs the full retry chain for one triggering occurrence.
// Attempts are strictly sequential with a fixed delay between them; every
// executed attempt lands in the ledger. Returns true when any attempt
// succeeded.
func (d *Deliverer) Deliver(ctx context.Context, job engine.DeliveryJob) bool {
	maxRetries := job.Config.RetryPolicy.MaxRetries
	host := hostOf(job.Config.URL)
	idempotencyKey := "wh_" + uuid.New().String()

	for attempt := 0; ; attempt++ {
		outcome := d.attempt(ctx, job, attempt, host, idempotencyKey, d.cfg.Timeout, d.cfg.UserAgent)
		d.record(ctx, job, outcome, attempt)
		d.broadcast(job, outcome, attempt)

		if outcome.success {
			d.markSuccess(ctx, job)
			d.logger.Info("webhook delivered",
				"kind", string(job.Kind),
				"entity_id", job.EntityID,
				"attempt", attempt,
				"status_code", outcome.statusCode,
				"duration_ms", outcome.durationMs,
			)
			return true
		}

		d.logger.Warn("webhook delivery attempt failed",
			"kind", string(job.Kind),
			"entity_id", job.EntityID,
			"attempt", attempt,
			"max_retries", maxRetries,
			"error", outcome.errMsg,
			"status_code", outcome.statusCode,
		)

		if attempt >= maxRetries {
			d.logger.Warn("webhook retries exhausted",
				"kind", string(job.Kind),
				"entity_id", job.EntityID,
				"attempts", attempt+1,
			)
			return false
		}

		select {
		case <-time.After(job.Config.RetryPolicy.Delay()):
		case <-ctx.Done():
			// Shutdown mid-chain: the ledger keeps what was written,
			// nothing needs rollback.
			return false
		}
	}
}

// TestResult is the outcome of a one-shot test delivery.
type TestResult struct {
	Success      bool   `json:"success"`
	StatusCode   *int   `json:"status_code,omitempty"`
	ResponseBody string `json:"response_body,omitempty"`
	Error        string `json:"error,omitempty"`
	DurationMs   int64  `json:"duration_ms"`
}

// Test executes a single attempt with the shorter test timeout and no
// retries. Trigger markers are never written; a ledger row is written
// when the job names an entity.
func (d *Deliverer) Test(ctx context.Context, job engine.DeliveryJob) TestResult {
	host := hostOf(job.Config.URL)
	idempotencyKey := "wh_test_" + uuid.New().String()

	outcome := d.attempt(ctx, job, 0, host, idempotencyKey, d.cfg.TestTimeout, d.cfg.UserAgent+"-Test")
	if job.EntityID != "" {
		d.record(ctx, job, outcome, 0)
	}

	return TestResult{
		Success:      outcome.success,
		StatusCode:   outcome.statusCode,
		ResponseBody: outcome.response,
		Error:        outcome.errMsg,
		DurationMs:   outcome.durationMs,
	}
}

// attempt performs one HTTP call. Breaker and limiter denials short-
// circuit without touching the network but still count as attempts.
func (d *Deliverer) attempt(ctx context.Context, job engine.DeliveryJob, attempt int, host, idempotencyKey string, timeout time.Duration, userAgent string) attemptOutcome {
	body := buildPayload(job, attempt, idempotencyKey)
	headers := buildHeaders(job.Config, userAgent)

	out := attemptOutcome{
		headers: redactHeaders(headers, job.Config.Authentication),
		body:    body,
	}

	if d.breaker != nil && !d.breaker.Allow(ctx, host) {
		out.errMsg = fmt.Sprintf("circuit breaker open for %s", host)
		return out
	}
	if d.limiter != nil && !d.limiter.Allow(ctx, host) {
		out.errMsg = fmt.Sprintf("delivery to %s rate limited", host)
		return out
	}

	start := time.Now()

	var reqBody io.Reader
	if job.Config.Method != http.MethodGet {
		data, err := json.Marshal(body)
		if err != nil {
			out.errMsg = fmt.Sprintf("encoding payload: %v", err)
			return out
		}
		reqBody = bytes.NewReader(data)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, job.Config.Method, job.Config.URL, reqBody)
	if err != nil {
		out.errMsg = fmt.Sprintf("building request: %v", err)
		return out
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := d.httpClient.Do(req)
	out.durationMs = time.Since(start).Milliseconds()
	if err != nil {
		out.errMsg = fmt.Sprintf("request failed: %v", err)
		if d.breaker != nil {
			d.breaker.ReportFailure(ctx, host)
		}
		return out
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, domain.MaxLoggedResponseBody))
	out.statusCode = &resp.StatusCode
	out.response = string(respBody)
	out.success = resp.StatusCode >= 200 && resp.StatusCode < 300

	if d.breaker != nil {
		if out.success {
			d.breaker.ReportSuccess(ctx, host)
		} else {
			d.breaker.ReportFailure(ctx, host)
		}
	}
	if !out.success {
		out.errMsg = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}

	return out
}

// record appends the attempt to the execution ledger. Failures here are
// logged and swallowed: a broken ledger must never abort a delivery.
func (d *Deliverer) record(ctx context.Context, job engine.DeliveryJob, out attemptOutcome, attempt int) {
	if d.ledger == nil {
		return
	}

	entry := &domain.WebhookLogEntry{
		EntityKind:  job.Kind,
		EntityID:    job.EntityID,
		TriggeredAt: time.Now(),
		Method:      job.Config.Method,
		URL:         job.Config.URL,
		Headers:     out.headers,
		Body:        out.body,
		StatusCode:  out.statusCode,
		RetryCount:  attempt,
		Success:     out.success,
	}
	if out.response != "" {
		resp := truncate(out.response, domain.MaxLoggedResponseBody)
		entry.Response = &resp
	}
	if out.errMsg != "" {
		msg := out.errMsg
		entry.Error = &msg
	}

	if err := d.ledger.InsertWebhookLog(ctx, entry); err != nil {
		d.logger.Error("failed to record webhook attempt",
			"error", err,
			"kind", string(job.Kind),
			"entity_id", job.EntityID,
			"attempt", attempt,
		)
	}
}

// markSuccess updates the owning entity's trigger state after a
// confirmed success.
func (d *Deliverer) markSuccess(ctx context.Context, job engine.DeliveryJob) {
	if d.marker == nil {
		return
	}

	now := time.Now()
	var err error
	switch job.Kind {
	case domain.KindEvent:
		err = d.marker.RecordEventTriggerSuccess(ctx, job.EntityID, now)
	case domain.KindTask:
		err = d.marker.RecordTaskTriggerSuccess(ctx, job.EntityID, now)
	}
	if err != nil {
		d.logger.Error("failed to update trigger state",
			"error", err,
			"kind", string(job.Kind),
			"entity_id", job.EntityID,
		)
	}
}

func (d *Deliverer) broadcast(job engine.DeliveryJob, out attemptOutcome, attempt int) {
	if d.hub == nil {
		return
	}
	d.hub.Broadcast(ws.AttemptEvent{
		Kind:         string(job.Kind),
		EntityID:     job.EntityID,
		TriggerEvent: string(job.Trigger.Event),
		URL:          job.Config.URL,
		Attempt:      attempt,
		StatusCode:   out.statusCode,
		Error:        out.errMsg,
		DurationMs:   out.durationMs,
		Success:      out.success,
		Timestamp:    time.Now(),
	})
}

// buildPayload constructs the default body (entity snapshot + trigger
// metadata) and shallow-merges the configured overrides over it: user
// fields win on key collisions.
func buildPayload(job engine.DeliveryJob, attempt int, idempotencyKey string) map[string]any {
	payload := make(map[string]any, len(job.Snapshot)+4)
	for k, v := range job.Snapshot {
		payload[k] = v
	}

	payload["triggeredAt"] = time.Now().UTC().Format(time.RFC3339)
	payload["retryCount"] = attempt
	payload["idempotencyKey"] = idempotencyKey

	if job.Kind == domain.KindTask {
		payload["event"] = map[string]any{
			"type":           string(job.Trigger.Event),
			"previousStatus": job.Trigger.PreviousStatus,
			"newStatus":      job.Trigger.NewStatus,
			"timestamp":      job.Trigger.Timestamp.UTC().Format(time.RFC3339),
		}
	}

	for k, v := range job.Config.Body {
		payload[k] = v
	}

	return payload
}

// buildHeaders merges the configured headers with the fixed transport
// headers and exactly one credential header derived from the structured
// authentication.
func buildHeaders(cfg domain.WebhookConfig, userAgent string) map[string]string {
	headers := make(map[string]string, len(cfg.Headers)+3)
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	headers["Content-Type"] = "application/json"
	headers["User-Agent"] = userAgent

	auth := cfg.Authentication
	switch auth.Type {
	case domain.AuthBearer:
		headers["Authorization"] = "Bearer " + auth.Token
	case domain.AuthBasic:
		creds := base64.StdEncoding.EncodeToString([]byte(auth.Username + ":" + auth.Password))
		headers["Authorization"] = "Basic " + creds
	case domain.AuthAPIKey:
		headers[auth.APIKeyHeader] = auth.APIKey
	}

	return headers
}

// redactHeaders returns the header snapshot stored in the ledger with
// credential values masked.
func redactHeaders(headers map[string]string, auth domain.Authentication) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		out[k] = v
	}
	if _, ok := out["Authorization"]; ok {
		out["Authorization"] = "[redacted]"
	}
	if auth.Type == domain.AuthAPIKey && auth.APIKeyHeader != "" {
		if _, ok := out[auth.APIKeyHeader]; ok {
			out[auth.APIKeyHeader] = "[redacted]"
		}
	}
	return out
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Hostname()
}
