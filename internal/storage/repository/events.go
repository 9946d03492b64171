package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pomogator/pomogator-backend/internal/models"
)

// AppendEvent дописывает запись в журнал событий.
func (s *Storage) AppendEvent(ctx context.Context, userUID string, eventType models.EventType, payload map[string]any) error {
	const op = "storage.AppendEvent"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	query := `INSERT INTO event_log (user_uid, type, payload) VALUES ($1, $2, $3)`
	if _, err := s.DB.ExecContext(ctx, query, userUID, string(eventType), raw); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ListUserEvents возвращает последние события пользователя.
func (s *Storage) ListUserEvents(ctx context.Context, userUID string, limit int) ([]*models.EventLogEntry, error) {
	const op = "storage.ListUserEvents"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, user_uid, type, payload, created_at
			  FROM event_log
			  WHERE user_uid = $1
			  ORDER BY created_at DESC
			  LIMIT $2`
	rows, err := s.DB.QueryContext(ctx, query, userUID, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.EventLogEntry
	for rows.Next() {
		var e models.EventLogEntry
		var raw []byte
		if err := rows.Scan(&e.ID, &e.UserUID, &e.Type, &raw, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &e.Payload); err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
		}
		result = append(result, &e)
	}
	return result, rows.Err()
}
