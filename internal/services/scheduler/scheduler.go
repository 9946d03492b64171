// Package scheduler реализует периодическую сверку: поиск истекающих и
// истёкших триалов и зависших платежей с публикацией заданий на
// уведомления в RabbitMQ.
package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/pomogator/pomogator-backend/internal/lib/rabbitmq"
	"github.com/pomogator/pomogator-backend/internal/lib/sl"
	"github.com/pomogator/pomogator-backend/internal/models"
	"github.com/pomogator/pomogator-backend/internal/paymentprovider"
)

// Периоды задач сверки.
const (
	ExpiringTrialsPeriod  = time.Hour
	ExpiredTrialsPeriod   = 6 * time.Hour
	PendingPaymentsPeriod = 2 * time.Hour

	// Платёж считается зависшим, если он в PENDING дольше этого срока.
	pendingPaymentAge = 2 * time.Hour
)

// AccessLedger операции доступа, нужные сверке.
type AccessLedger interface {
	ExpireTrials(ctx context.Context) ([]string, error)
	ExpireSubscriptions(ctx context.Context) ([]string, error)
	ListExpiringTrials(ctx context.Context, horizon time.Duration) ([]*models.NotificationJob, error)
}

// SweepRepository доступ к хранилищу для данных, не покрытых AccessLedger.
type SweepRepository interface {
	GetTgID(ctx context.Context, userUID string) (string, error)
	ListStalePendingPayments(ctx context.Context, olderThan time.Time) ([]*models.PendingPaymentInfo, error)
}

// EventLogger best-effort журнал событий.
type EventLogger interface {
	Log(ctx context.Context, userUID string, eventType models.EventType, payload map[string]any)
}

// GatewayStatusChecker читает текущий статус платежа на стороне шлюза.
type GatewayStatusChecker interface {
	GetPayment(invoiceID string) (*paymentprovider.CreatePaymentResponse, error)
}

// Service планировщик сверки. Три независимые задачи на своих периодах,
// каждая с защитой от наложения запусков: если предыдущий запуск ещё
// идёт, очередной пропускается.
type Service struct {
	access  AccessLedger
	repo    SweepRepository
	events  EventLogger
	gateway GatewayStatusChecker
	log     *slog.Logger
	now     func() time.Time

	expiringRunning atomic.Bool
	expiredRunning  atomic.Bool
	pendingRunning  atomic.Bool
}

// New создает новый экземпляр Service. now == nil означает time.Now,
// gateway == nil отключает сверку статуса платежей со шлюзом.
func New(access AccessLedger, repo SweepRepository, events EventLogger, gateway GatewayStatusChecker, log *slog.Logger, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		access:  access,
		repo:    repo,
		events:  events,
		gateway: gateway,
		log:     log,
		now:     now,
	}
}

func runLoop(ctx context.Context, period time.Duration, run func()) {
	run()

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			run()
		case <-ctx.Done():
			return
		}
	}
}

// RunExpiringTrials ежечасно ищет триалы, истекающие в ближайшие 6 часов,
// и публикует напоминания.
func (s *Service) RunExpiringTrials(ctx context.Context, ch rabbitmq.Channel) {
	runLoop(ctx, ExpiringTrialsPeriod, func() {
		s.sweepExpiringTrials(ctx, ch)
	})
}

// RunExpiredTrials раз в 6 часов переводит истёкшие записи в EXPIRED
// и публикует уведомления об окончании триала.
func (s *Service) RunExpiredTrials(ctx context.Context, ch rabbitmq.Channel) {
	runLoop(ctx, ExpiredTrialsPeriod, func() {
		s.sweepExpiredTrials(ctx, ch)
	})
}

// RunPendingPayments раз в 2 часа напоминает о незавершённых платежах.
// Только чтение и уведомление, платежи не отменяются.
func (s *Service) RunPendingPayments(ctx context.Context, ch rabbitmq.Channel) {
	runLoop(ctx, PendingPaymentsPeriod, func() {
		s.sweepPendingPayments(ctx, ch)
	})
}

func (s *Service) sweepExpiringTrials(ctx context.Context, ch rabbitmq.Channel) {
	const task = "expiring_trials"
	if !s.expiringRunning.CompareAndSwap(false, true) {
		sweepSkipped.WithLabelValues(task).Inc()
		s.log.Warn("previous expiring trials sweep still running, skipping")
		return
	}
	defer s.expiringRunning.Store(false)
	sweepRuns.WithLabelValues(task).Inc()

	s.log.Info("starting expiring trials sweep")
	jobs, err := s.access.ListExpiringTrials(ctx, 0)
	if err != nil {
		s.log.Error("failed to list expiring trials", sl.Err(err))
		return
	}
	if len(jobs) == 0 {
		s.log.Info("no expiring trials found")
		return
	}
	s.log.Info("found expiring trials", slog.Int("count", len(jobs)))
	for _, job := range jobs {
		if err := rabbitmq.PublishMessage(ch, rabbitmq.NotificationsExchange, "trial.expiring", job); err != nil {
			s.log.Error("failed to publish trial reminder", slog.String("user_uid", job.UserUID), sl.Err(err))
			continue
		}
		jobsPublished.WithLabelValues(task).Inc()
		s.events.Log(ctx, job.UserUID, models.EventTrialReminder, map[string]any{
			"trialEndsAt": job.TrialEnds,
		})
	}
}

func (s *Service) sweepExpiredTrials(ctx context.Context, ch rabbitmq.Channel) {
	const task = "expired_trials"
	if !s.expiredRunning.CompareAndSwap(false, true) {
		sweepSkipped.WithLabelValues(task).Inc()
		s.log.Warn("previous expired trials sweep still running, skipping")
		return
	}
	defer s.expiredRunning.Store(false)
	sweepRuns.WithLabelValues(task).Inc()

	s.log.Info("starting expired trials sweep")
	uids, err := s.access.ExpireTrials(ctx)
	if err != nil {
		s.log.Error("failed to expire trials", sl.Err(err))
		return
	}
	for _, uid := range uids {
		tgID, err := s.repo.GetTgID(ctx, uid)
		if err != nil {
			s.log.Error("failed to resolve tg id", slog.String("user_uid", uid), sl.Err(err))
			continue
		}
		job := &models.NotificationJob{UserUID: uid, TgID: tgID}
		if err := rabbitmq.PublishMessage(ch, rabbitmq.NotificationsExchange, "trial.expired", job); err != nil {
			s.log.Error("failed to publish trial expired notice", slog.String("user_uid", uid), sl.Err(err))
			continue
		}
		jobsPublished.WithLabelValues(task).Inc()
		s.events.Log(ctx, uid, models.EventTrialExpired, nil)
	}
	if len(uids) > 0 {
		s.log.Info("expired trials processed", slog.Int("count", len(uids)))
	}

	// Попутно приводим в порядок записи с закончившимся оплаченным
	// периодом: уведомления по ним не рассылаются.
	expired, err := s.access.ExpireSubscriptions(ctx)
	if err != nil {
		s.log.Error("failed to expire subscriptions", sl.Err(err))
		return
	}
	if len(expired) > 0 {
		s.log.Info("expired subscriptions processed", slog.Int("count", len(expired)))
	}
}

// settledAtGateway перепроверяет зависший платёж на стороне ЮKassa.
// Ошибка шлюза трактуется как "всё ещё pending": лучше лишний раз
// напомнить, чем промолчать из-за сетевого сбоя.
func (s *Service) settledAtGateway(invoiceID string) bool {
	if s.gateway == nil {
		return false
	}
	remote, err := s.gateway.GetPayment(invoiceID)
	if err != nil {
		s.log.Warn("failed to recheck payment at gateway",
			slog.String("invoice_id", invoiceID), sl.Err(err))
		return false
	}
	return remote.Status != paymentprovider.RemoteStatusPending &&
		remote.Status != paymentprovider.RemoteStatusWaitingForCapture
}

func (s *Service) sweepPendingPayments(ctx context.Context, ch rabbitmq.Channel) {
	const task = "pending_payments"
	if !s.pendingRunning.CompareAndSwap(false, true) {
		sweepSkipped.WithLabelValues(task).Inc()
		s.log.Warn("previous pending payments sweep still running, skipping")
		return
	}
	defer s.pendingRunning.Store(false)
	sweepRuns.WithLabelValues(task).Inc()

	s.log.Info("starting pending payments sweep")
	pending, err := s.repo.ListStalePendingPayments(ctx, s.now().Add(-pendingPaymentAge))
	if err != nil {
		s.log.Error("failed to list pending payments", sl.Err(err))
		return
	}
	if len(pending) == 0 {
		s.log.Info("no stale pending payments found")
		return
	}
	s.log.Info("found stale pending payments", slog.Int("count", len(pending)))
	for _, info := range pending {
		if s.settledAtGateway(info.InvoiceID) {
			// Шлюз уже знает исход платежа: напоминание бессмысленно,
			// запись приведёт в порядок вебхук. Сверка только читает.
			s.log.Info("pending payment already settled at gateway",
				slog.String("invoice_id", info.InvoiceID))
			continue
		}
		job := &models.NotificationJob{
			UserUID:   info.UserUID,
			TgID:      info.TgID,
			InvoiceID: info.InvoiceID,
			Amount:    info.Amount,
			Currency:  info.Currency,
		}
		if err := rabbitmq.PublishMessage(ch, rabbitmq.NotificationsExchange, "payment.pending", job); err != nil {
			s.log.Error("failed to publish payment reminder", slog.String("user_uid", info.UserUID), sl.Err(err))
			continue
		}
		jobsPublished.WithLabelValues(task).Inc()
		s.events.Log(ctx, info.UserUID, models.EventPaymentReminder, map[string]any{
			"paymentId": info.PaymentID,
		})
	}
}
