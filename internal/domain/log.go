package domain

import "time"

// EntityKind distinguishes the two webhook owners.
type EntityKind string

const (
	KindEvent EntityKind = "event"
	KindTask  EntityKind = "task"
)

// MaxLoggedResponseBody bounds the response snapshot stored per attempt.
const MaxLoggedResponseBody = 5000

// WebhookLogEntry is one row of the append-only execution ledger: exactly
// one per executed attempt, success or failure. Entries are never mutated.
type WebhookLogEntry struct {
	ID          string            `json:"id"`
	EntityKind  EntityKind        `json:"entity_kind"`
	EntityID    string            `json:"entity_id"`
	TriggeredAt time.Time         `json:"triggered_at"`
	Method      string            `json:"request_method"`
	URL         string            `json:"request_url"`
	Headers     map[string]string `json:"request_headers,omitempty"`
	Body        map[string]any    `json:"request_body,omitempty"`
	StatusCode  *int              `json:"response_status,omitempty"`
	Response    *string           `json:"response_body,omitempty"`
	Error       *string           `json:"error,omitempty"`
	RetryCount  int               `json:"retry_count"`
	Success     bool              `json:"success"`
	CreatedAt   time.Time         `json:"created_at"`
}

// TriggerContext describes why a delivery is happening. It is embedded in
// the outbound payload and in ledger rows.
type TriggerContext struct {
	Kind           EntityKind   `json:"kind"`
	Event          TriggerEvent `json:"event"`
	PreviousStatus string       `json:"previous_status,omitempty"`
	NewStatus      string       `json:"new_status,omitempty"`
	Timestamp      time.Time    `json:"timestamp"`
}
