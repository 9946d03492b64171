// Package eventlog ведёт журнал событий продукта. Запись best-effort:
// отказ журнала логируется и проглатывается, основная операция из-за него
// никогда не прерывается.
package eventlog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pomogator/pomogator-backend/internal/lib/sl"
	"github.com/pomogator/pomogator-backend/internal/models"
)

// EventRepository определяет методы хранилища журнала событий.
type EventRepository interface {
	AppendEvent(ctx context.Context, userUID string, eventType models.EventType, payload map[string]any) error
	ListUserEvents(ctx context.Context, userUID string, limit int) ([]*models.EventLogEntry, error)
}

// Service сервис журнала событий.
type Service struct {
	repo EventRepository
	log  *slog.Logger
}

// New создает новый экземпляр Service.
func New(repo EventRepository, log *slog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log,
	}
}

// Log дописывает событие. Ошибка записи не возвращается вызывающему.
func (s *Service) Log(ctx context.Context, userUID string, eventType models.EventType, payload map[string]any) {
	if !eventType.Valid() {
		s.log.Warn("unknown event type, skipping",
			slog.String("type", string(eventType)),
			slog.String("user_uid", userUID))
		return
	}
	if err := s.repo.AppendEvent(ctx, userUID, eventType, payload); err != nil {
		s.log.Warn("failed to append event",
			slog.String("type", string(eventType)),
			slog.String("user_uid", userUID),
			sl.Err(err))
	}
}

// ListUserEvents возвращает последние события пользователя.
func (s *Service) ListUserEvents(ctx context.Context, userUID string, limit int) ([]*models.EventLogEntry, error) {
	const op = "eventlog.ListUserEvents"
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	events, err := s.repo.ListUserEvents(ctx, userUID, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return events, nil
}
