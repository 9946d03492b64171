// Package payment содержит бизнес-логику платежей: создание платежа в
// ЮKassa и сверку статусов по вебхукам шлюза.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/pomogator/pomogator-backend/internal/models"
	"github.com/pomogator/pomogator-backend/internal/paymentprovider"
	"github.com/pomogator/pomogator-backend/internal/storage/repository"
)

// Ошибки платёжного сервиса.
var (
	// ErrUserNotFound пользователь, для которого создаётся платёж, не существует.
	ErrUserNotFound = errors.New("user not found")
	// ErrPaymentNotFound платёж с таким инвойсом неизвестен.
	ErrPaymentNotFound = errors.New("payment not found")
)

// DefaultDescription назначение платежа по умолчанию.
const DefaultDescription = "Помогатор: месячная подписка"

// PaymentRepository определяет методы хранилища для платежей.
type PaymentRepository interface {
	GetUser(ctx context.Context, userUID string) (*models.User, error)
	SavePayment(ctx context.Context, p models.Payment) (int, error)
	GetPayment(ctx context.Context, id int) (*models.Payment, error)
	GetPaymentByInvoiceID(ctx context.Context, invoiceID string) (*models.Payment, error)
	UpdatePaymentStatus(ctx context.Context, id int, status string, rawPayload []byte) error
	ListUserPayments(ctx context.Context, userUID string, limit int) ([]*models.Payment, error)
}

// ProviderClient определяет интерфейс для работы с платежным провайдером.
type ProviderClient interface {
	CreatePayment(reqParams paymentprovider.CreatePaymentRequest) (*paymentprovider.CreatePaymentResponse, error)
}

// AccessActivator активирует подписку после подтверждённого платежа.
type AccessActivator interface {
	ActivateSubscription(ctx context.Context, userUID, invoiceID string) error
}

// EventLogger best-effort журнал событий.
type EventLogger interface {
	Log(ctx context.Context, userUID string, eventType models.EventType, payload map[string]any)
}

// Service реализует бизнес-логику платежей.
type Service struct {
	repo      PaymentRepository
	provider  ProviderClient
	access    AccessActivator
	events    EventLogger
	returnURL string
	log       *slog.Logger
}

// New создает новый экземпляр Service.
func New(repo PaymentRepository, provider ProviderClient, access AccessActivator,
	events EventLogger, returnURL string, log *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		provider:  provider,
		access:    access,
		events:    events,
		returnURL: returnURL,
		log:       log,
	}
}

// CreateResult результат создания платежа.
type CreateResult struct {
	PaymentID  int     `json:"paymentId"`
	InvoiceID  string  `json:"invoiceId"`
	PaymentURL string  `json:"paymentUrl"`
	Amount     float64 `json:"amount"`
	Currency   string  `json:"currency"`
	Status     string  `json:"status"`
}

// CreatePayment создаёт платёж в ЮKassa и сохраняет локальную запись со
// статусом PENDING. Локальная запись создаётся только после успешного
// ответа шлюза: упавший запрос к ЮKassa не оставляет неоднозначного
// состояния. Сумма передаётся строкой с фиксированной точкой — формат
// сумм ЮKassa.
func (s *Service) CreatePayment(ctx context.Context, userUID string, amount float64, currency, description string) (*CreateResult, error) {
	const op = "payment.CreatePayment"

	user, err := s.repo.GetUser(ctx, userUID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if description == "" {
		description = DefaultDescription
	}

	providerResp, err := s.provider.CreatePayment(paymentprovider.CreatePaymentRequest{
		Amount: paymentprovider.Amount{
			Value:    strconv.FormatFloat(amount, 'f', 2, 64),
			Currency: currency,
		},
		Description: description,
		Capture:     true,
		Confirmation: &paymentprovider.Confirmation{
			Type:      "redirect",
			ReturnURL: s.returnURL,
		},
		Metadata: map[string]string{
			"user_uid": user.UID,
			"type":     "subscription",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rawPayload, err := json.Marshal(providerResp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	paymentID, err := s.repo.SavePayment(ctx, models.Payment{
		InvoiceID:  providerResp.ID,
		UserUID:    user.UID,
		Amount:     amount,
		Currency:   currency,
		Status:     models.PaymentStatusPending,
		RawPayload: rawPayload,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.events.Log(ctx, user.UID, models.EventPaymentCreated, map[string]any{
		"paymentId": paymentID,
		"amount":    amount,
		"currency":  currency,
	})

	s.log.Info("payment created",
		slog.Int("payment_id", paymentID),
		slog.String("invoice_id", providerResp.ID),
		slog.String("user_uid", user.UID))

	var paymentURL string
	if providerResp.Confirmation != nil {
		paymentURL = providerResp.Confirmation.ConfirmationURL
	}
	return &CreateResult{
		PaymentID:  paymentID,
		InvoiceID:  providerResp.ID,
		PaymentURL: paymentURL,
		Amount:     amount,
		Currency:   currency,
		Status:     models.PaymentStatusPending,
	}, nil
}

// GetPayment возвращает платёж по внутреннему идентификатору.
func (s *Service) GetPayment(ctx context.Context, id int) (*models.Payment, error) {
	p, err := s.repo.GetPayment(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return p, nil
}

// ListUserPayments возвращает последние платежи пользователя.
func (s *Service) ListUserPayments(ctx context.Context, userUID string, limit int) ([]*models.Payment, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	return s.repo.ListUserPayments(ctx, userUID, limit)
}
