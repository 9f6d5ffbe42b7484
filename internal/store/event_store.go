package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/plannerhq/webhook-engine/internal/domain"
)

const eventColumns = `id, title, description, start_date, end_date, status,
	webhook_config, webhook_last_triggered, webhook_trigger_count, webhook_claimed_at,
	created_at, updated_at`

func scanEvent(row pgx.Row) (*domain.Event, error) {
	var e domain.Event
	var cfg []byte
	err := row.Scan(
		&e.ID, &e.Title, &e.Description, &e.StartDate, &e.EndDate, &e.Status,
		&cfg, &e.WebhookLastTriggered, &e.WebhookTriggerCount, &e.WebhookClaimedAt,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(cfg) > 0 {
		var wc domain.WebhookConfig
		if err := json.Unmarshal(cfg, &wc); err != nil {
			return nil, fmt.Errorf("decoding webhook config: %w", err)
		}
		e.WebhookConfig = &wc
	}
	return &e, nil
}

func (s *PostgresStore) CreateEvent(ctx context.Context, ev *domain.Event) (*domain.Event, error) {
	created, err := scanEvent(s.pool.QueryRow(ctx, `
		INSERT INTO events (title, description, start_date, end_date, status)
		VALUES ($1, $2, $3, $4, COALESCE(NULLIF($5, ''), 'scheduled'))
		RETURNING `+eventColumns,
		ev.Title, ev.Description, ev.StartDate, ev.EndDate, ev.Status))
	if err != nil {
		return nil, fmt.Errorf("inserting event: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	ev, err := scanEvent(s.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying event: %w", err)
	}
	return ev, nil
}

// ListDueEvents returns scheduled events with an enabled webhook whose
// start date falls within [now, now+lookahead] and which have not been
// triggered or claimed inside the suppression window before their start.
func (s *PostgresStore) ListDueEvents(ctx context.Context, now time.Time, lookahead, suppression time.Duration) ([]domain.Event, error) {
	suppressionMins := int(suppression.Minutes())

	rows, err := s.pool.Query(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE status = 'scheduled'
		  AND webhook_config IS NOT NULL
		  AND (webhook_config->>'enabled')::boolean = true
		  AND start_date >= $1
		  AND start_date <= $2
		  AND (webhook_last_triggered IS NULL
		       OR webhook_last_triggered < start_date - make_interval(mins => $3))
		  AND (webhook_claimed_at IS NULL
		       OR webhook_claimed_at < start_date - make_interval(mins => $3))
		ORDER BY start_date ASC
	`, now, now.Add(lookahead), suppressionMins)
	if err != nil {
		return nil, fmt.Errorf("querying due events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning due event: %w", err)
		}
		events = append(events, *ev)
	}

	return events, rows.Err()
}

// ClaimEventTrigger atomically claims the current occurrence for delivery.
// The conditional update only succeeds while the claim column is still
// outside the suppression window, so two concurrent scans cannot both fire.
func (s *PostgresStore) ClaimEventTrigger(ctx context.Context, id string, startDate, now time.Time, suppression time.Duration) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE events
		SET webhook_claimed_at = $2
		WHERE id = $1
		  AND (webhook_claimed_at IS NULL OR webhook_claimed_at < $3)
	`, id, now, startDate.Add(-suppression))
	if err != nil {
		return false, fmt.Errorf("claiming event trigger: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RecordEventTriggerSuccess marks a confirmed successful delivery: bumps
// the trigger counter and sets the last-triggered timestamp. Called only
// by the delivery executor.
func (s *PostgresStore) RecordEventTriggerSuccess(ctx context.Context, id string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE events
		SET webhook_last_triggered = $2,
		    webhook_trigger_count = webhook_trigger_count + 1
		WHERE id = $1
	`, id, at)
	if err != nil {
		return fmt.Errorf("recording event trigger success: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetEventWebhookConfig(ctx context.Context, id string, cfg *domain.WebhookConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding webhook config: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE events SET webhook_config = $2, updated_at = NOW() WHERE id = $1
	`, id, data)
	if err != nil {
		return fmt.Errorf("setting event webhook config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("event %s not found", id)
	}
	return nil
}

// DisableEventWebhook flips enabled=false in place, preserving the rest
// of the configuration and all history.
func (s *PostgresStore) DisableEventWebhook(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE events
		SET webhook_config = jsonb_set(webhook_config, '{enabled}', 'false'),
		    updated_at = NOW()
		WHERE id = $1 AND webhook_config IS NOT NULL
	`, id)
	if err != nil {
		return fmt.Errorf("disabling event webhook: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("event %s not found or has no webhook", id)
	}
	return nil
}
