package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/plannerhq/webhook-engine/internal/domain"
	"github.com/plannerhq/webhook-engine/internal/engine"
	"github.com/plannerhq/webhook-engine/internal/store"
)

type TaskHandler struct {
	store    *store.PostgresStore
	triggers *engine.TaskTriggers
	logger   *slog.Logger
}

func NewTaskHandler(s *store.PostgresStore, triggers *engine.TaskTriggers, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{store: s, triggers: triggers, logger: logger}
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var task domain.Task
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if task.Title == "" {
		respondError(w, http.StatusBadRequest, "title is required")
		return
	}
	if task.Status == "" {
		task.Status = domain.TaskStatusPending
	}

	created, err := h.store.CreateTask(r.Context(), &task)
	if err != nil {
		h.logger.Error("failed to create task", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to create task")
		return
	}

	h.triggers.TaskCreated(created)
	respondJSON(w, http.StatusCreated, created)
}

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
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
	respondJSON(w, http.StatusOK, task)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus transitions a task and fires any reactive webhook triggers
// the transition matches.
func (h *TaskHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !domain.TaskStatusValid(req.Status) {
		respondError(w, http.StatusBadRequest, "invalid task status")
		return
	}

	current, err := h.store.GetTask(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load task")
		return
	}
	if current == nil {
		respondError(w, http.StatusNotFound, "task not found")
		return
	}

	previous := current.Status
	updated, err := h.store.UpdateTaskStatus(r.Context(), id, req.Status)
	if err != nil {
		h.logger.Error("failed to update task status", "task_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to update task status")
		return
	}
	if updated == nil {
		respondError(w, http.StatusNotFound, "task not found")
		return
	}

	if previous != updated.Status {
		h.triggers.TaskStatusChanged(updated, previous)
	}
	respondJSON(w, http.StatusOK, updated)
}
