// Package starttrial обрабатывает выдачу пробного периода.
package starttrial

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
	StartTrial(ctx context.Context, userUID string) (time.Time, error)
}

// EventLogger best-effort журнал событий.
type EventLogger interface {
	Log(ctx context.Context, userUID string, eventType models.EventType, payload map[string]any)
}

// Handler обрабатывает запросы на выдачу пробного периода.
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

// Result представляет результат выдачи пробного периода.
type Result struct {
	Success     bool       `json:"success"`
	Message     string     `json:"message"`
	TrialEndsAt *time.Time `json:"trialEndsAt,omitempty"`
}

// ServeHTTP godoc
// @Summary Начать пробный период
// @Description Выдаёт пользователю пробный период на 72 часа
// @Tags Access
// @Produce  json
// @Success 200 {object} Result "Пробный период выдан"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 409 {object} Result "Пробный период или подписка уже активны"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /access/start-trial [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.access.starttrial"
	log := h.log.With(slog.String("op", op))

	userUID, ok := r.Context().Value(middlewarectx.UserUID).(string)
	if !ok || userUID == "" {
		log.Error("user UID not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	trialEndsAt, err := h.service.StartTrial(r.Context(), userUID)
	if err != nil {
		var alreadyTrial *access.AlreadyTrialError
		switch {
		case errors.As(err, &alreadyTrial):
			log.Info("trial already active", slog.String("user_uid", userUID))
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, Result{
				Success:     false,
				Message:     "Пробный период уже активен",
				TrialEndsAt: &alreadyTrial.TrialEndsAt,
			})
		case errors.Is(err, access.ErrAlreadyActive):
			log.Info("subscription already active", slog.String("user_uid", userUID))
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, Result{
				Success: false,
				Message: "Подписка уже активна",
			})
		default:
			log.Error("failed to start trial", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("internal error"))
		}
		return
	}

	h.events.Log(r.Context(), userUID, models.EventTrialStarted, map[string]any{
		"trialEndsAt": trialEndsAt.Format(time.RFC3339),
	})

	log.Info("trial started", slog.String("user_uid", userUID))
	render.JSON(w, r, Result{
		Success:     true,
		Message:     "Пробный период активирован",
		TrialEndsAt: &trialEndsAt,
	})
}
