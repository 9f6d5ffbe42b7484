package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/plannerhq/webhook-engine/internal/domain"
)

// TaskTriggers evaluates task mutations reactively and dispatches
// deliveries for matching trigger events. Dispatch is fire-and-forget
// relative to the mutating request: the user-facing update never blocks
// on webhook completion.
type TaskTriggers struct {
	deliverer Deliverer
	logger    *slog.Logger
	wg        sync.WaitGroup
}

func NewTaskTriggers(deliverer Deliverer, logger *slog.Logger) *TaskTriggers {
	return &TaskTriggers{deliverer: deliverer, logger: logger}
}

// Wait blocks until all in-flight task deliveries finish. Used by the
// process shutdown path and by tests.
func (t *TaskTriggers) Wait() {
	t.wg.Wait()
}

// TaskStatusChanged fires webhooks for a task whose status just moved
// from previous to task.Status. Applicable trigger events are
// status_changed, plus completed when the new status is completed.
func (t *TaskTriggers) TaskStatusChanged(task *domain.Task, previous string) {
	triggers := []domain.TriggerEvent{domain.TriggerStatusChanged}
	if task.Status == domain.TaskStatusCompleted {
		triggers = append(triggers, domain.TriggerCompleted)
	}
	t.fire(task, triggers, previous, task.Status)
}

// TaskCreated fires webhooks subscribed to the created trigger event.
func (t *TaskTriggers) TaskCreated(task *domain.Task) {
	t.fire(task, []domain.TriggerEvent{domain.TriggerCreated}, "", task.Status)
}

// TaskUpdated fires webhooks subscribed to the updated trigger event for
// non-status mutations.
func (t *TaskTriggers) TaskUpdated(task *domain.Task) {
	t.fire(task, []domain.TriggerEvent{domain.TriggerUpdated}, "", task.Status)
}

// TaskDeleted fires webhooks subscribed to the deleted trigger event.
func (t *TaskTriggers) TaskDeleted(task *domain.Task) {
	t.fire(task, []domain.TriggerEvent{domain.TriggerDeleted}, task.Status, task.Status)
}

func (t *TaskTriggers) fire(task *domain.Task, triggers []domain.TriggerEvent, previous, current string) {
	cfg := task.WebhookConfig
	if cfg == nil || !cfg.Enabled {
		return
	}

	now := time.Now()
	for _, trigger := range triggers {
		if !cfg.WantsEvent(trigger) {
			continue
		}
		if !cfg.AllowsStatus(current) {
			continue
		}

		ok, err := evalCondition(cfg.Condition, task, trigger, previous, current)
		if err != nil {
			t.logger.Error("webhook condition evaluation failed",
				"error", err,
				"task_id", task.ID,
				"trigger_event", string(trigger),
			)
			continue
		}
		if !ok {
			continue
		}

		job := DeliveryJob{
			Kind:     domain.KindTask,
			EntityID: task.ID,
			Snapshot: task.Snapshot(),
			Config:   *cfg,
			Trigger: domain.TriggerContext{
				Kind:           domain.KindTask,
				Event:          trigger,
				PreviousStatus: previous,
				NewStatus:      current,
				Timestamp:      now,
			},
		}

		t.wg.Add(1)
		go func() {
			// Detached from the request context: the mutating HTTP
			// request finishes long before a retry chain does.
			defer t.wg.Done()
			t.deliverer.Deliver(context.Background(), job)
		}()
	}
}

// evalCondition runs the optional expression against the task snapshot
// and trigger metadata. Empty condition always fires.
func evalCondition(condition string, task *domain.Task, trigger domain.TriggerEvent, previous, current string) (bool, error) {
	if condition == "" {
		return true, nil
	}

	env := map[string]any{
		"record":          task.Snapshot(),
		"event":           string(trigger),
		"previous_status": previous,
		"new_status":      current,
	}

	prog, err := expr.Compile(condition, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("compiling webhook condition: %w", err)
	}
	result, err := expr.Run(prog, env)
	if err != nil {
		return false, fmt.Errorf("evaluating webhook condition: %w", err)
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("webhook condition did not return a boolean")
	}
	return b, nil
}
