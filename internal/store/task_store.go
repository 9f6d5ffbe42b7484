package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/plannerhq/webhook-engine/internal/domain"
)

const taskColumns = `id, title, description, status, due_date, priority,
	webhook_config, webhook_last_triggered, webhook_trigger_count,
	created_at, updated_at`

func scanTask(row pgx.Row) (*domain.Task, error) {
	var t domain.Task
	var cfg []byte
	err := row.Scan(
		&t.ID, &t.Title, &t.Description, &t.Status, &t.DueDate, &t.Priority,
		&cfg, &t.WebhookLastTriggered, &t.WebhookTriggerCount,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(cfg) > 0 {
		var wc domain.WebhookConfig
		if err := json.Unmarshal(cfg, &wc); err != nil {
			return nil, fmt.Errorf("decoding webhook config: %w", err)
		}
		t.WebhookConfig = &wc
	}
	return &t, nil
}

func (s *PostgresStore) CreateTask(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	created, err := scanTask(s.pool.QueryRow(ctx, `
		INSERT INTO tasks (title, description, status, due_date, priority)
		VALUES ($1, $2, COALESCE(NULLIF($3, ''), 'pending'), $4, $5)
		RETURNING `+taskColumns,
		task.Title, task.Description, task.Status, task.DueDate, task.Priority))
	if err != nil {
		return nil, fmt.Errorf("inserting task: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	task, err := scanTask(s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying task: %w", err)
	}
	return task, nil
}

// UpdateTaskStatus transitions a task and returns the updated row; the
// caller owns firing any reactive webhook trigger with the old status.
func (s *PostgresStore) UpdateTaskStatus(ctx context.Context, id, status string) (*domain.Task, error) {
	task, err := scanTask(s.pool.QueryRow(ctx, `
		UPDATE tasks SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+taskColumns, id, status))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("updating task status: %w", err)
	}
	return task, nil
}

func (s *PostgresStore) RecordTaskTriggerSuccess(ctx context.Context, id string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE tasks
		SET webhook_last_triggered = $2,
		    webhook_trigger_count = webhook_trigger_count + 1
		WHERE id = $1
	`, id, at)
	if err != nil {
		return fmt.Errorf("recording task trigger success: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetTaskWebhookConfig(ctx context.Context, id string, cfg *domain.WebhookConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding webhook config: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE tasks SET webhook_config = $2, updated_at = NOW() WHERE id = $1
	`, id, data)
	if err != nil {
		return fmt.Errorf("setting task webhook config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task %s not found", id)
	}
	return nil
}

func (s *PostgresStore) DisableTaskWebhook(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tasks
		SET webhook_config = jsonb_set(webhook_config, '{enabled}', 'false'),
		    updated_at = NOW()
		WHERE id = $1 AND webhook_config IS NOT NULL
	`, id)
	if err != nil {
		return fmt.Errorf("disabling task webhook: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task %s not found or has no webhook", id)
	}
	return nil
}
