package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/plannerhq/webhook-engine/internal/curl"
	"github.com/plannerhq/webhook-engine/internal/domain"
	"github.com/plannerhq/webhook-engine/internal/endpoint"
	"github.com/plannerhq/webhook-engine/internal/engine"
	"github.com/plannerhq/webhook-engine/internal/store"
	"github.com/plannerhq/webhook-engine/internal/worker"
)

// WebhookHandler exposes the webhook authoring and inspection surface:
// curl translation, configure, status, disable, test.
type WebhookHandler struct {
	store     *store.PostgresStore
	deliverer *worker.Deliverer
	logger    *slog.Logger
}

func NewWebhookHandler(s *store.PostgresStore, d *worker.Deliverer, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{store: s, deliverer: d, logger: logger}
}

type parseCurlRequest struct {
	Command string `json:"command"`
}

// ParseCurl translates a raw curl command into a configuration draft.
func (h *WebhookHandler) ParseCurl(w http.ResponseWriter, r *http.Request) {
	var req parseCurlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Command == "" {
		respondError(w, http.StatusBadRequest, "command is required")
		return
	}

	draft, err := curl.Parse(req.Command)
	if err != nil {
		var perr *curl.ParseError
		if errors.As(err, &perr) {
			respondError(w, http.StatusBadRequest, perr.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to parse command")
		return
	}

	// The draft still has to clear the endpoint gate before it can be
	// persisted; surface that verdict alongside the translation.
	if err := endpoint.Validate(draft.URL); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, draft)
}

type testWebhookRequest struct {
	Config     domain.WebhookConfig `json:"config"`
	EntityKind string               `json:"entity_kind,omitempty"`
	EntityID   string               `json:"entity_id,omitempty"`
	Sample     map[string]any       `json:"sample,omitempty"`
}

// Test fires a single delivery with the short timeout and no retries.
func (h *WebhookHandler) Test(w http.ResponseWriter, r *http.Request) {
	var req testWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cfg := req.Config
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := endpoint.Validate(cfg.URL); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	kind := domain.EntityKind(req.EntityKind)
	if kind != domain.KindEvent && kind != domain.KindTask {
		kind = domain.KindEvent
	}

	result := h.deliverer.Test(r.Context(), engine.DeliveryJob{
		Kind:     kind,
		EntityID: req.EntityID,
		Snapshot: req.Sample,
		Config:   cfg,
		Trigger: domain.TriggerContext{
			Kind:      kind,
			Event:     domain.TriggerTest,
			Timestamp: time.Now(),
		},
	})

	respondJSON(w, http.StatusOK, result)
}

type configureResponse struct {
	Message     string `json:"message"`
	TriggerTime string `json:"trigger_time,omitempty"`
}

// ConfigureEvent attaches or replaces the webhook configuration on an
// event and returns a trigger-time preview.
func (h *WebhookHandler) ConfigureEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	cfg, ok := decodeConfig(w, r)
	if !ok {
		return
	}

	ev, err := h.store.GetEvent(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load event")
		return
	}
	if ev == nil {
		respondError(w, http.StatusNotFound, "event not found")
		return
	}

	if err := h.store.SetEventWebhookConfig(r.Context(), id, cfg); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to save webhook configuration")
		return
	}

	trigger := ev.StartDate.Add(-time.Duration(cfg.TriggerOffsetMinutes) * time.Minute)
	respondJSON(w, http.StatusOK, configureResponse{
		Message:     "webhook configured",
		TriggerTime: trigger.UTC().Format(time.RFC3339),
	})
}

// ConfigureTask attaches or replaces the webhook configuration on a task.
func (h *WebhookHandler) ConfigureTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	cfg, ok := decodeConfig(w, r)
	if !ok {
		return
	}
	if len(cfg.TriggerEvents) == 0 {
		respondError(w, http.StatusBadRequest, "task webhooks require at least one trigger event")
		return
	}

	task, err := h.store.GetTask(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load task")
		return
	}
	if task == nil {
		respondError(w, http.StatusNotFound, "task not found")
		return
	}

	if err := h.store.SetTaskWebhookConfig(r.Context(), id, cfg); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to save webhook configuration")
		return
	}

	respondJSON(w, http.StatusOK, configureResponse{Message: "webhook configured"})
}

// decodeConfig parses and validates a webhook configuration from the
// request body, writing the error response itself on failure.
func decodeConfig(w http.ResponseWriter, r *http.Request) (*domain.WebhookConfig, bool) {
	var cfg domain.WebhookConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	if err := endpoint.Validate(cfg.URL); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	return &cfg, true
}

type webhookStatusResponse struct {
	Enabled       bool                     `json:"enabled"`
	Config        domain.WebhookConfig     `json:"config"`
	LastTriggered *time.Time               `json:"last_triggered,omitempty"`
	TriggerCount  int                      `json:"trigger_count"`
	RecentLogs    []domain.WebhookLogEntry `json:"recent_logs"`
}

// EventStatus reports the webhook state for an event, secrets redacted.
func (h *WebhookHandler) EventStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ev, err := h.store.GetEvent(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load event")
		return
	}
	if ev == nil {
		respondError(w, http.StatusNotFound, "event not found")
		return
	}
	if ev.WebhookConfig == nil {
		respondError(w, http.StatusNotFound, "event has no webhook configured")
		return
	}

	h.respondStatus(w, r, domain.KindEvent, id, ev.WebhookConfig, ev.WebhookLastTriggered, ev.WebhookTriggerCount)
}

// TaskStatus reports the webhook state for a task, secrets redacted.
func (h *WebhookHandler) TaskStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	task, err := h.store.GetTask(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load task")
		return
	}
	if task == nil {
		respondError(w, http.StatusNotFound, "task not found")
		return
	}
	if task.WebhookConfig == nil {
		respondError(w, http.StatusNotFound, "task has no webhook configured")
		return
	}

	h.respondStatus(w, r, domain.KindTask, id, task.WebhookConfig, task.WebhookLastTriggered, task.WebhookTriggerCount)
}

func (h *WebhookHandler) respondStatus(w http.ResponseWriter, r *http.Request, kind domain.EntityKind, id string, cfg *domain.WebhookConfig, lastTriggered *time.Time, count int) {
	logs, err := h.store.ListWebhookLogs(r.Context(), kind, id, 10)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load webhook logs")
		return
	}

	respondJSON(w, http.StatusOK, webhookStatusResponse{
		Enabled:       cfg.Enabled,
		Config:        cfg.Redacted(),
		LastTriggered: lastTriggered,
		TriggerCount:  count,
		RecentLogs:    logs,
	})
}

// DisableEvent flips enabled=false, preserving history.
func (h *WebhookHandler) DisableEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.DisableEventWebhook(r.Context(), id); err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "webhook disabled"})
}

// DisableTask flips enabled=false, preserving history.
func (h *WebhookHandler) DisableTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.DisableTaskWebhook(r.Context(), id); err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "webhook disabled"})
}

// EventLogs lists ledger entries for an event, most recent first.
func (h *WebhookHandler) EventLogs(w http.ResponseWriter, r *http.Request) {
	h.respondLogs(w, r, domain.KindEvent)
}

// TaskLogs lists ledger entries for a task, most recent first.
func (h *WebhookHandler) TaskLogs(w http.ResponseWriter, r *http.Request) {
	h.respondLogs(w, r, domain.KindTask)
}

func (h *WebhookHandler) respondLogs(w http.ResponseWriter, r *http.Request, kind domain.EntityKind) {
	id := chi.URLParam(r, "id")

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	logs, err := h.store.ListWebhookLogs(r.Context(), kind, id, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load webhook logs")
		return
	}
	respondJSON(w, http.StatusOK, logs)
}
