// Package access содержит бизнес-логику жизненного цикла доступа:
// выдачу пробного периода, активацию и отмену подписки, проверку доступа
// и пакетный перевод истёкших записей в EXPIRED.
package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pomogator/pomogator-backend/internal/lib/sl"
	"github.com/pomogator/pomogator-backend/internal/models"
	"github.com/pomogator/pomogator-backend/internal/storage/repository"
)

// Длительности периодов и горизонт напоминаний.
const (
	TrialDuration        = 3 * 24 * time.Hour
	SubscriptionDuration = 30 * 24 * time.Hour
	DefaultRemindHorizon = 6 * time.Hour
)

// AccessRepository определяет методы для работы с записями о доступе в хранилище.
type AccessRepository interface {
	// GetAccess возвращает запись о доступе пользователя.
	GetAccess(ctx context.Context, userUID string) (*models.Access, error)
	// UpsertTrial переводит запись в TRIAL, создавая её при отсутствии.
	UpsertTrial(ctx context.Context, userUID string, startedAt, endsAt time.Time) error
	// ActivateAccess переводит запись в ACTIVE и запоминает инвойс активации.
	ActivateAccess(ctx context.Context, userUID string, endsAt time.Time, invoiceID string) error
	// UpdateAccessStatus меняет только статус записи.
	UpdateAccessStatus(ctx context.Context, userUID, status string) error
	// ListExpiredTrials пакетно переводит истёкшие триалы в EXPIRED.
	ListExpiredTrials(ctx context.Context, now time.Time) ([]string, error)
	// ListExpiredActive пакетно переводит истёкшие оплаченные периоды в EXPIRED.
	ListExpiredActive(ctx context.Context, now time.Time) ([]string, error)
	// ListExpiringTrials возвращает триалы, истекающие в [now, now+horizon].
	ListExpiringTrials(ctx context.Context, now time.Time, horizon time.Duration) ([]*models.NotificationJob, error)
}

// Cache описывает методы для кэширования снимков доступа.
type Cache interface {
	Get(key string, result any) (bool, error)
	Set(key string, value any, expiration time.Duration) error
	Invalidate(key string) error
}

// Info снимок доступа пользователя на момент проверки.
type Info struct {
	HasAccess bool       `json:"hasAccess"`
	Status    string     `json:"status"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

const cacheTTL = time.Minute

// Service реализует операции над записями о доступе. Мутации одного
// пользователя сериализуются через mutex по userUID: хранилище даёт
// только построчную атомарность, а порядок «отмена против активации
// по вебхуку» должен быть определённым.
type Service struct {
	repo  AccessRepository
	cache Cache
	log   *slog.Logger
	now   func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New создает новый экземпляр Service. now == nil означает time.Now.
func New(repo AccessRepository, cache Cache, log *slog.Logger, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:  repo,
		cache: cache,
		log:   log,
		now:   now,
		locks: make(map[string]*sync.Mutex),
	}
}

func (s *Service) userLock(userUID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[userUID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[userUID] = lock
	}
	return lock
}

func cacheKey(userUID string) string {
	return "access:" + userUID
}

func (s *Service) invalidate(userUID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(cacheKey(userUID)); err != nil {
		s.log.Warn("failed to invalidate access cache", slog.String("user_uid", userUID), sl.Err(err))
	}
}

// StartTrial выдаёт пробный период на TrialDuration. Отклоняется, если
// статус уже TRIAL или ACTIVE; после EXPIRED и CANCELED выдача возможна
// повторно (поведение исходной системы сохранено намеренно).
func (s *Service) StartTrial(ctx context.Context, userUID string) (time.Time, error) {
	const op = "access.StartTrial"

	lock := s.userLock(userUID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := s.repo.GetAccess(ctx, userUID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	if existing != nil {
		switch existing.Status {
		case models.AccessStatusTrial:
			trialEnds := s.now()
			if existing.TrialEndsAt != nil {
				trialEnds = *existing.TrialEndsAt
			}
			return time.Time{}, &AlreadyTrialError{TrialEndsAt: trialEnds}
		case models.AccessStatusActive:
			return time.Time{}, ErrAlreadyActive
		}
	}

	now := s.now()
	trialEndsAt := now.Add(TrialDuration)
	if err := s.repo.UpsertTrial(ctx, userUID, now, trialEndsAt); err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	s.invalidate(userUID)

	s.log.Info("trial started",
		slog.String("user_uid", userUID),
		slog.Time("trial_ends_at", trialEndsAt))
	return trialEndsAt, nil
}

// ActivateSubscription переводит доступ в ACTIVE на SubscriptionDuration
// и сбрасывает дату окончания триала. Идемпотентна по инвойсу: повторная
// доставка вебхука с тем же invoiceID не продлевает период второй раз.
func (s *Service) ActivateSubscription(ctx context.Context, userUID, invoiceID string) error {
	const op = "access.ActivateSubscription"

	lock := s.userLock(userUID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := s.repo.GetAccess(ctx, userUID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if existing != nil && invoiceID != "" && existing.LastInvoiceID == invoiceID {
		s.log.Info("activation already applied for invoice, skipping",
			slog.String("user_uid", userUID),
			slog.String("invoice_id", invoiceID))
		return nil
	}

	endsAt := s.now().Add(SubscriptionDuration)
	if err := s.repo.ActivateAccess(ctx, userUID, endsAt, invoiceID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.invalidate(userUID)

	s.log.Info("subscription activated",
		slog.String("user_uid", userUID),
		slog.String("invoice_id", invoiceID),
		slog.Time("subscription_ends_at", endsAt))
	return nil
}

// CancelSubscription помечает подписку отменённой. Доступ сохраняется до
// subscription_ends_at: отмена лишь останавливает продление. Возвращает
// дату фактической деактивации.
func (s *Service) CancelSubscription(ctx context.Context, userUID string) (*time.Time, error) {
	const op = "access.CancelSubscription"

	lock := s.userLock(userUID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := s.repo.GetAccess(ctx, userUID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccessNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if existing.Status == models.AccessStatusCanceled {
		return nil, ErrAlreadyCanceled
	}

	if err := s.repo.UpdateAccessStatus(ctx, userUID, models.AccessStatusCanceled); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.invalidate(userUID)

	s.log.Info("subscription canceled",
		slog.String("user_uid", userUID))
	return existing.SubscriptionEndsAt, nil
}

// CheckAccess возвращает снимок доступа на текущий момент. Чтение чистое:
// фактический статус вычисляется через models.EffectiveStatus, запись
// EXPIRED в хранилище выполняет только sweep.
func (s *Service) CheckAccess(ctx context.Context, userUID string) (*Info, error) {
	const op = "access.CheckAccess"

	if s.cache != nil {
		var cached Info
		found, err := s.cache.Get(cacheKey(userUID), &cached)
		if err != nil {
			s.log.Warn("failed to read access cache", slog.String("user_uid", userUID), sl.Err(err))
		}
		if found {
			// Снимок мог попасть в кеш до конца оплаченного или пробного
			// периода: срок перепроверяется на каждом чтении, TTL кеша не
			// продлевает доступ.
			if cached.ExpiresAt != nil && !s.now().Before(*cached.ExpiresAt) {
				return &Info{Status: models.AccessStatusExpired}, nil
			}
			return &cached, nil
		}
	}

	record, err := s.repo.GetAccess(ctx, userUID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now()
	effective := models.EffectiveStatus(record, now)
	info := &Info{Status: effective}
	if expiresAt := record.ExpiresAt(); expiresAt != nil &&
		(effective == models.AccessStatusTrial || effective == models.AccessStatusActive ||
			effective == models.AccessStatusCanceled) {
		info.ExpiresAt = expiresAt
		info.HasAccess = now.Before(*expiresAt)
	}

	if s.cache != nil {
		if err := s.cache.Set(cacheKey(userUID), info, cacheTTL); err != nil {
			s.log.Warn("failed to cache access info", slog.String("user_uid", userUID), sl.Err(err))
		}
	}
	return info, nil
}

// ExpireTrials пакетно переводит истёкшие триалы в EXPIRED и возвращает
// их пользователей. Предикат истечения строго тот же, что у CheckAccess.
func (s *Service) ExpireTrials(ctx context.Context) ([]string, error) {
	const op = "access.ExpireTrials"
	uids, err := s.repo.ListExpiredTrials(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	for _, uid := range uids {
		s.invalidate(uid)
	}
	return uids, nil
}

// ExpireSubscriptions переводит в EXPIRED записи ACTIVE/CANCELED с
// закончившимся оплаченным периодом.
func (s *Service) ExpireSubscriptions(ctx context.Context) ([]string, error) {
	const op = "access.ExpireSubscriptions"
	uids, err := s.repo.ListExpiredActive(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	for _, uid := range uids {
		s.invalidate(uid)
	}
	return uids, nil
}

// ListExpiringTrials возвращает триалы, истекающие в ближайший horizon.
// Только чтение, используется для напоминаний.
func (s *Service) ListExpiringTrials(ctx context.Context, horizon time.Duration) ([]*models.NotificationJob, error) {
	const op = "access.ListExpiringTrials"
	if horizon <= 0 {
		horizon = DefaultRemindHorizon
	}
	jobs, err := s.repo.ListExpiringTrials(ctx, s.now(), horizon)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return jobs, nil
}
