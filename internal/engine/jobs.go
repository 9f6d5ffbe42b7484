// Package engine decides when webhooks fire: the periodic trigger scanner
// for scheduled events, reactive triggers for task mutations, and the
// per-destination delivery shaping (circuit breaker, rate limiter).
package engine

import (
	"context"

	"github.com/plannerhq/webhook-engine/internal/domain"
)

// DeliveryJob is everything the delivery executor needs to attempt one
// triggering occurrence: the entity snapshot, its webhook configuration,
// and the trigger context explaining why it fires.
type DeliveryJob struct {
	Kind     domain.EntityKind
	EntityID string
	Snapshot map[string]any
	Config   domain.WebhookConfig
	Trigger  domain.TriggerContext
}

// Deliverer executes a delivery job including its bounded retry chain and
// reports whether any attempt succeeded.
type Deliverer interface {
	Deliver(ctx context.Context, job DeliveryJob) bool
}
