// Package paymentwebhook принимает уведомления ЮKassa о смене статуса платежа.
package paymentwebhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/pomogator/pomogator-backend/internal/lib/sl"
	"github.com/pomogator/pomogator-backend/internal/services/payment"
)

// Service определяет интерфейс платёжного сервиса.
type Service interface {
	ProcessWebhookEvent(ctx context.Context, payload *payment.WebhookPayload) error
}

// SignatureVerifier проверяет подпись тела вебхука.
type SignatureVerifier interface {
	VerifySignature(body []byte, signature string) bool
}

// Handler обрабатывает вебхуки платёжного шлюза.
type Handler struct {
	log      *slog.Logger
	service  Service
	verifier SignatureVerifier
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service, verifier SignatureVerifier) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		verifier: verifier,
	}
}

// ServeHTTP godoc
// @Summary Вебхук ЮKassa
// @Description Принимает уведомление о смене статуса платежа, проверяет подпись и сверяет локальную запись
// @Tags Payments
// @Accept  json
// @Produce  json
// @Param X-Api-Signature header string true "HMAC-SHA256 подпись тела (base64)"
// @Success 200 {object} map[string]string "status: ok"
// @Failure 400 {object} response.ErrorResponse "Некорректное тело запроса"
// @Failure 401 {object} response.ErrorResponse "Невалидная подпись"
// @Failure 404 {object} response.ErrorResponse "Платеж с таким инвойсом неизвестен"
// @Failure 500 {object} response.ErrorResponse "Ошибка обработки"
// @Router /payments/webhook [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.webhook"
	log := h.log.With(slog.String("op", op))

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	defer func() { _ = r.Body.Close() }()

	signature := r.Header.Get("X-Api-Signature")
	if signature == "" || !h.verifier.VerifySignature(body, signature) {
		log.Error("invalid or missing webhook signature")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var payload payment.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Error("failed to unmarshal webhook payload", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	payload.Raw = body

	if payload.Object.ID == "" {
		log.Error("webhook payload without payment id")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.service.ProcessWebhookEvent(r.Context(), &payload); err != nil {
		if errors.Is(err, payment.ErrPaymentNotFound) {
			log.Error("unknown invoice in webhook", slog.String("invoice_id", payload.Object.ID))
			w.WriteHeader(http.StatusNotFound)
			return
		}
		log.Error("failed to process webhook event", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	log.Info("webhook processed",
		slog.String("event", payload.Event),
		slog.String("invoice_id", payload.Object.ID))
	render.JSON(w, r, map[string]string{"status": "ok"})
}
