package domain

import "time"

// Event statuses.
const (
	EventStatusScheduled = "scheduled"
	EventStatusCancelled = "cancelled"
	EventStatusDone      = "done"
)

// Event is a scheduled calendar entry that may carry a webhook
// configuration fired ahead of its start time.
type Event struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	StartDate   time.Time  `json:"start_date"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	Status      string     `json:"status"`

	WebhookConfig        *WebhookConfig `json:"webhook_config,omitempty"`
	WebhookLastTriggered *time.Time     `json:"webhook_last_triggered,omitempty"`
	WebhookTriggerCount  int            `json:"webhook_trigger_count"`
	WebhookClaimedAt     *time.Time     `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TriggerTime is the moment the webhook should fire: start_date minus the
// configured offset.
func (e *Event) TriggerTime() time.Time {
	if e.WebhookConfig == nil {
		return e.StartDate
	}
	return e.StartDate.Add(-time.Duration(e.WebhookConfig.TriggerOffsetMinutes) * time.Minute)
}

// Snapshot returns the entity's public fields for the delivery payload.
func (e *Event) Snapshot() map[string]any {
	snap := map[string]any{
		"id":         e.ID,
		"title":      e.Title,
		"start_date": e.StartDate.UTC().Format(time.RFC3339),
		"status":     e.Status,
	}
	if e.Description != "" {
		snap["description"] = e.Description
	}
	if e.EndDate != nil {
		snap["end_date"] = e.EndDate.UTC().Format(time.RFC3339)
	}
	return snap
}
