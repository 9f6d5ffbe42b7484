package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/plannerhq/webhook-engine/internal/domain"
	"github.com/plannerhq/webhook-engine/internal/store"
)

type EventHandler struct {
	store  *store.PostgresStore
	logger *slog.Logger
}

func NewEventHandler(s *store.PostgresStore, logger *slog.Logger) *EventHandler {
	return &EventHandler{store: s, logger: logger}
}

func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	var ev domain.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if ev.Title == "" {
		respondError(w, http.StatusBadRequest, "title is required")
		return
	}
	if ev.StartDate.IsZero() {
		respondError(w, http.StatusBadRequest, "start_date is required")
		return
	}
	if ev.Status == "" {
		ev.Status = domain.EventStatusScheduled
	}

	created, err := h.store.CreateEvent(r.Context(), &ev)
	if err != nil {
		h.logger.Error("failed to create event", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to create event")
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
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
	respondJSON(w, http.StatusOK, ev)
}
