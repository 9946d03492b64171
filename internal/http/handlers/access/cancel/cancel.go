// Package cancel обрабатывает отмену подписки.
package cancel

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"github.com/pomogator/pomogator-backend/internal/http/middlewarectx"
	"github.com/pomogator/pomogator-backend/internal/http/response"
	"github.com/pomogator/pomogator-backend/internal/lib/sl"
	"github.com/pomogator/pomogator-backend/internal/models"
	"github.com/pomogator/pomogator-backend/internal/services/access"
)

// Service определяет интерфейс сервиса доступа.
type Service interface {
	CancelSubscription(ctx context.Context, userUID string) (*time.Time, error)
}

// EventLogger best-effort журнал событий.
type EventLogger interface {
	Log(ctx context.Context, userUID string, eventType models.EventType, payload map[string]any)
}

// Handler обрабатывает запросы на отмену подписки.
type Handler struct {
	log     *slog.Logger
	service Service
	events  EventLogger
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service, events EventLogger) *Handler {
	return &Handler{
		log:     log,
		service: service,
		events:  events,
	}
}

// Result представляет результат отмены подписки.
type Result struct {
	Success          bool       `json:"success"`
	Message          string     `json:"message"`
	DeactivationDate *time.Time `json:"deactivationDate,omitempty"`
}

// ServeHTTP godoc
// @Summary Отменить подписку
// @Description Останавливает продление подписки, доступ сохраняется до конца оплаченного периода
// @Tags Access
// @Produce  json
// @Success 200 {object} Result "Подписка отменена"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 409 {object} Result "Подписка уже отменена"
// @Failure 404 {object} response.ErrorResponse "Запись о доступе не найдена"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /access/cancel-subscription [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.access.cancel"
	log := h.log.With(slog.String("op", op))

	userUID, ok := r.Context().Value(middlewarectx.UserUID).(string)
	if !ok || userUID == "" {
		log.Error("user UID not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	deactivationDate, err := h.service.CancelSubscription(r.Context(), userUID)
	if err != nil {
		switch {
		case errors.Is(err, access.ErrAccessNotFound):
			log.Info("access record not found", slog.String("user_uid", userUID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("access record not found"))
		case errors.Is(err, access.ErrAlreadyCanceled):
			log.Info("subscription already canceled", slog.String("user_uid", userUID))
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, Result{
				Success: false,
				Message: "Подписка уже отменена",
			})
		default:
			log.Error("failed to cancel subscription", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("internal error"))
		}
		return
	}

	payload := map[string]any{}
	if deactivationDate != nil {
		payload["deactivationDate"] = deactivationDate.Format(time.RFC3339)
	}
	h.events.Log(r.Context(), userUID, models.EventSubscriptionCanceled, payload)

	log.Info("subscription canceled", slog.String("user_uid", userUID))
	render.JSON(w, r, Result{
		Success:          true,
		Message:          "Подписка отменена",
		DeactivationDate: deactivationDate,
	})
}
