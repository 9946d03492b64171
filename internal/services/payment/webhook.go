package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pomogator/pomogator-backend/internal/models"
	"github.com/pomogator/pomogator-backend/internal/paymentprovider"
	"github.com/pomogator/pomogator-backend/internal/storage/repository"
)

// WebhookPayload конверт события вебхука ЮKassa.
type WebhookPayload struct {
	Event  string `json:"event"`
	Type   string `json:"type"`
	Object struct {
		ID     string `json:"id"`     // invoice id
		Status string `json:"status"` // статус платежа на стороне шлюза
		Amount struct {
			Value    string `json:"value"`    // сумма в строке, например "999.00"
			Currency string `json:"currency"` // валюта
		} `json:"amount"`
		Metadata map[string]string `json:"metadata"`
	} `json:"object"`
	Raw []byte `json:"-"` // сырое тело запроса, сохраняется как снимок
}

func mapRemoteStatus(remote string) string {
	switch remote {
	case paymentprovider.RemoteStatusSucceeded:
		return models.PaymentStatusSucceeded
	case paymentprovider.RemoteStatusCanceled:
		return models.PaymentStatusCanceled
	default:
		// pending, waiting_for_capture и всё незнакомое остаётся PENDING.
		return models.PaymentStatusPending
	}
}

// ProcessWebhookEvent сверяет платёж со статусом из вебхука. Доставка
// вебхуков at-least-once: повторная обработка уже подтверждённого платежа
// не активирует подписку второй раз и не продлевает оплаченный период.
func (s *Service) ProcessWebhookEvent(ctx context.Context, payload *WebhookPayload) error {
	const op = "payment.ProcessWebhookEvent"
	log := s.log.With(
		slog.String("op", op),
		slog.String("invoice_id", payload.Object.ID),
		slog.String("remote_status", payload.Object.Status))

	p, err := s.repo.GetPaymentByInvoiceID(ctx, payload.Object.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPaymentNotFound
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	newStatus := mapRemoteStatus(payload.Object.Status)

	if p.Status == models.PaymentStatusSucceeded {
		// Повторная доставка: платёж уже подтверждён, менять нечего.
		log.Info("payment already succeeded, ignoring replay")
		return nil
	}

	if err := s.repo.UpdatePaymentStatus(ctx, p.ID, newStatus, payload.Raw); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	switch {
	case newStatus == models.PaymentStatusSucceeded:
		if err := s.access.ActivateSubscription(ctx, p.UserUID, p.InvoiceID); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		s.events.Log(ctx, p.UserUID, models.EventPaymentSucceeded, map[string]any{
			"paymentId": p.ID,
			"amount":    p.Amount,
			"currency":  p.Currency,
		})
		log.Info("payment succeeded, subscription activated",
			slog.String("user_uid", p.UserUID))
	case newStatus == models.PaymentStatusCanceled && p.Status != models.PaymentStatusCanceled:
		s.events.Log(ctx, p.UserUID, models.EventPaymentFailed, map[string]any{
			"paymentId": p.ID,
			"reason":    "canceled",
		})
		log.Info("payment canceled", slog.String("user_uid", p.UserUID))
	default:
		log.Info("payment status unchanged")
	}

	return nil
}
