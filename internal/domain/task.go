package domain

import "time"

// Task statuses.
const (
	TaskStatusPending    = "pending"
	TaskStatusInProgress = "in_progress"
	TaskStatusCompleted  = "completed"
	TaskStatusCancelled  = "cancelled"
)

// TaskStatusValid reports whether s is one of the known task statuses.
func TaskStatusValid(s string) bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusCancelled:
		return true
	}
	return false
}

// Task is a to-do item whose status transitions may fire a webhook.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Priority    string     `json:"priority,omitempty"`

	WebhookConfig        *WebhookConfig `json:"webhook_config,omitempty"`
	WebhookLastTriggered *time.Time     `json:"webhook_last_triggered,omitempty"`
	WebhookTriggerCount  int            `json:"webhook_trigger_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot returns the entity's public fields for the delivery payload.
func (t *Task) Snapshot() map[string]any {
	snap := map[string]any{
		"id":     t.ID,
		"title":  t.Title,
		"status": t.Status,
	}
	if t.Description != "" {
		snap["description"] = t.Description
	}
	if t.DueDate != nil {
		snap["due_date"] = t.DueDate.UTC().Format(time.RFC3339)
	}
	if t.Priority != "" {
		snap["priority"] = t.Priority
	}
	return snap
}
