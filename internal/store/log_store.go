package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/plannerhq/webhook-engine/internal/domain"
)

func logTable(kind domain.EntityKind) (table, fkColumn string, err error) {
	switch kind {
	case domain.KindEvent:
		return "event_webhook_logs", "event_id", nil
	case domain.KindTask:
		return "task_webhook_logs", "task_id", nil
	default:
		return "", "", fmt.Errorf("unknown entity kind %q", kind)
	}
}

// InsertWebhookLog appends one execution ledger row. Rows are never
// updated or deleted afterwards.
func (s *PostgresStore) InsertWebhookLog(ctx context.Context, entry *domain.WebhookLogEntry) error {
	table, fk, err := logTable(entry.EntityKind)
	if err != nil {
		return err
	}

	var headers, body []byte
	if entry.Headers != nil {
		headers, err = json.Marshal(entry.Headers)
		if err != nil {
			return fmt.Errorf("encoding request headers: %w", err)
		}
	}
	if entry.Body != nil {
		body, err = json.Marshal(entry.Body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
	}

	_, err = s.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (%s, triggered_at, request_method, request_url,
			request_headers, request_body, response_status, response_body,
			error, retry_count, success)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, table, fk),
		entry.EntityID, entry.TriggeredAt, entry.Method, entry.URL,
		headers, body, entry.StatusCode, entry.Response,
		entry.Error, entry.RetryCount, entry.Success)
	if err != nil {
		return fmt.Errorf("inserting webhook log: %w", err)
	}
	return nil
}

// ListWebhookLogs returns ledger rows for an entity, most recent first.
func (s *PostgresStore) ListWebhookLogs(ctx context.Context, kind domain.EntityKind, entityID string, limit int) ([]domain.WebhookLogEntry, error) {
	table, fk, err := logTable(kind)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, %s, triggered_at, request_method, request_url,
			request_headers, request_body, response_status, response_body,
			error, retry_count, success, created_at
		FROM %s
		WHERE %s = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, fk, table, fk), entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying webhook logs: %w", err)
	}
	defer rows.Close()

	var entries []domain.WebhookLogEntry
	for rows.Next() {
		var e domain.WebhookLogEntry
		var headers, body []byte
		err := rows.Scan(
			&e.ID, &e.EntityID, &e.TriggeredAt, &e.Method, &e.URL,
			&headers, &body, &e.StatusCode, &e.Response,
			&e.Error, &e.RetryCount, &e.Success, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning webhook log: %w", err)
		}
		e.EntityKind = kind
		if len(headers) > 0 {
			if err := json.Unmarshal(headers, &e.Headers); err != nil {
				return nil, fmt.Errorf("decoding request headers: %w", err)
			}
		}
		if len(body) > 0 {
			if err := json.Unmarshal(body, &e.Body); err != nil {
				return nil, fmt.Errorf("decoding request body: %w", err)
			}
		}
		entries = append(entries, e)
	}

	if entries == nil {
		entries = []domain.WebhookLogEntry{}
	}

	return entries, rows.Err()
}
