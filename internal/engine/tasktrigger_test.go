package engine

import (
	"testing"

	"github.com/plannerhq/webhook-engine/internal/domain"
)

func taskWithConfig(status string, cfg *domain.WebhookConfig) *domain.Task {
	return &domain.Task{
		ID:            "task-1",
		Title:         "Write report",
		Status:        status,
		WebhookConfig: cfg,
	}
}

func taskConfig(events ...domain.TriggerEvent) *domain.WebhookConfig {
	return &domain.WebhookConfig{
		Enabled:       true,
		URL:           "https://hooks.example.com/tasks",
		Method:        "POST",
		TriggerEvents: events,
		RetryPolicy:   domain.RetryPolicy{MaxRetries: 0, RetryDelayMs: 1},
	}
}

func TestTaskStatusChanged_CompletedFiresBoth(t *testing.T) {
	deliverer := &recordingDeliverer{}
	tt := NewTaskTriggers(deliverer, scannerLogger())

	cfg := taskConfig(domain.TriggerCompleted, domain.TriggerStatusChanged)
	task := taskWithConfig(domain.TaskStatusCompleted, cfg)

	tt.TaskStatusChanged(task, domain.TaskStatusInProgress)
	tt.Wait()

	jobs := deliverer.delivered()
	if len(jobs) != 2 {
		t.Fatalf("delivered %d jobs, want 2 (status_changed and completed)", len(jobs))
	}
	seen := map[domain.TriggerEvent]bool{}
	for _, job := range jobs {
		seen[job.Trigger.Event] = true
		if job.Trigger.PreviousStatus != domain.TaskStatusInProgress {
			t.Errorf("previous status %q, want in_progress", job.Trigger.PreviousStatus)
		}
		if job.Trigger.NewStatus != domain.TaskStatusCompleted {
			t.Errorf("new status %q, want completed", job.Trigger.NewStatus)
		}
	}
	if !seen[domain.TriggerCompleted] || !seen[domain.TriggerStatusChanged] {
		t.Errorf("trigger events %v, want completed and status_changed", seen)
	}
}

func TestTaskStatusChanged_CompletedOnlySubscription(t *testing.T) {
	deliverer := &recordingDeliverer{}
	tt := NewTaskTriggers(deliverer, scannerLogger())

	cfg := taskConfig(domain.TriggerCompleted)
	task := taskWithConfig(domain.TaskStatusCompleted, cfg)

	tt.TaskStatusChanged(task, domain.TaskStatusPending)
	tt.Wait()

	jobs := deliverer.delivered()
	if len(jobs) != 1 {
		t.Fatalf("delivered %d jobs, want 1", len(jobs))
	}
	if jobs[0].Trigger.Event != domain.TriggerCompleted {
		t.Errorf("trigger event %q, want completed", jobs[0].Trigger.Event)
	}
}

func TestTaskStatusChanged_NonCompletedTransition(t *testing.T) {
	deliverer := &recordingDeliverer{}
	tt := NewTaskTriggers(deliverer, scannerLogger())

	cfg := taskConfig(domain.TriggerCompleted)
	task := taskWithConfig(domain.TaskStatusInProgress, cfg)

	tt.TaskStatusChanged(task, domain.TaskStatusPending)
	tt.Wait()

	if len(deliverer.delivered()) != 0 {
		t.Error("completed-only webhook fired for a non-completed transition")
	}
}

func TestTaskStatusChanged_StatusFilter(t *testing.T) {
	deliverer := &recordingDeliverer{}
	tt := NewTaskTriggers(deliverer, scannerLogger())

	cfg := taskConfig(domain.TriggerStatusChanged)
	cfg.TriggerStatuses = []string{domain.TaskStatusCancelled}
	task := taskWithConfig(domain.TaskStatusCompleted, cfg)

	tt.TaskStatusChanged(task, domain.TaskStatusPending)
	tt.Wait()

	if len(deliverer.delivered()) != 0 {
		t.Error("webhook fired for a status outside the filter")
	}

	task = taskWithConfig(domain.TaskStatusCancelled, cfg)
	tt.TaskStatusChanged(task, domain.TaskStatusPending)
	tt.Wait()

	if len(deliverer.delivered()) != 1 {
		t.Error("webhook did not fire for the filtered-in status")
	}
}

func TestTaskTriggers_DisabledNeverFires(t *testing.T) {
	deliverer := &recordingDeliverer{}
	tt := NewTaskTriggers(deliverer, scannerLogger())

	cfg := taskConfig(domain.TriggerStatusChanged, domain.TriggerCompleted, domain.TriggerCreated)
	cfg.Enabled = false
	task := taskWithConfig(domain.TaskStatusCompleted, cfg)

	tt.TaskCreated(task)
	tt.TaskStatusChanged(task, domain.TaskStatusPending)
	tt.Wait()

	if len(deliverer.delivered()) != 0 {
		t.Error("disabled webhook fired")
	}
}

func TestTaskCreated_FiresSubscribed(t *testing.T) {
	deliverer := &recordingDeliverer{}
	tt := NewTaskTriggers(deliverer, scannerLogger())

	task := taskWithConfig(domain.TaskStatusPending, taskConfig(domain.TriggerCreated))
	tt.TaskCreated(task)
	tt.Wait()

	jobs := deliverer.delivered()
	if len(jobs) != 1 {
		t.Fatalf("delivered %d jobs, want 1", len(jobs))
	}
	if jobs[0].Trigger.Event != domain.TriggerCreated {
		t.Errorf("trigger event %q, want created", jobs[0].Trigger.Event)
	}
}

func TestTaskTriggers_ConditionFilters(t *testing.T) {
	deliverer := &recordingDeliverer{}
	tt := NewTaskTriggers(deliverer, scannerLogger())

	cfg := taskConfig(domain.TriggerStatusChanged)
	cfg.Condition = `new_status == "completed" && previous_status != "completed"`

	task := taskWithConfig(domain.TaskStatusInProgress, cfg)
	tt.TaskStatusChanged(task, domain.TaskStatusPending)
	tt.Wait()

	if len(deliverer.delivered()) != 0 {
		t.Error("condition evaluated true for a non-matching transition")
	}

	task = taskWithConfig(domain.TaskStatusCompleted, cfg)
	tt.TaskStatusChanged(task, domain.TaskStatusInProgress)
	tt.Wait()

	if len(deliverer.delivered()) != 1 {
		t.Fatalf("delivered %d jobs, want 1 for the matching transition", len(deliverer.delivered()))
	}
}

func TestTaskTriggers_ConditionOnRecordFields(t *testing.T) {
	deliverer := &recordingDeliverer{}
	tt := NewTaskTriggers(deliverer, scannerLogger())

	cfg := taskConfig(domain.TriggerCreated)
	cfg.Condition = `record.title == "Write report"`

	tt.TaskCreated(taskWithConfig(domain.TaskStatusPending, cfg))
	tt.Wait()

	if len(deliverer.delivered()) != 1 {
		t.Errorf("delivered %d jobs, want 1", len(deliverer.delivered()))
	}
}

func TestTaskTriggers_BrokenConditionSkips(t *testing.T) {
	deliverer := &recordingDeliverer{}
	tt := NewTaskTriggers(deliverer, scannerLogger())

	cfg := taskConfig(domain.TriggerCreated)
	cfg.Condition = `this is not an expression`

	tt.TaskCreated(taskWithConfig(domain.TaskStatusPending, cfg))
	tt.Wait()

	if len(deliverer.delivered()) != 0 {
		t.Error("delivery dispatched despite an unparseable condition")
	}
}
