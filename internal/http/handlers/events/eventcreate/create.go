// Package eventcreate обрабатывает запись события в журнал от клиента.
package eventcreate

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/pomogator/pomogator-backend/internal/http/middlewarectx"
	"github.com/pomogator/pomogator-backend/internal/http/response"
	"github.com/pomogator/pomogator-backend/internal/lib/sl"
	"github.com/pomogator/pomogator-backend/internal/models"
)

// Request представляет запрос на запись события.
type Request struct {
	Type    string         `json:"type" validate:"required"`
	Payload map[string]any `json:"payload"`
}

// Service определяет интерфейс журнала событий.
type Service interface {
	Log(ctx context.Context, userUID string, eventType models.EventType, payload map[string]any)
}

// Handler обрабатывает запросы на запись события.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Записать событие
// @Description Дописывает событие пользователя в журнал. Запись best-effort
// @Tags Events
// @Accept  json
// @Produce  json
// @Param request body Request true "Тип события и произвольные данные"
// @Success 200 {object} response.Response "Событие принято"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON или неизвестный тип события"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Router /events/log [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.events.create"
	log := h.log.With(slog.String("op", op))

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	userUID, ok := r.Context().Value(middlewarectx.UserUID).(string)
	if !ok || userUID == "" {
		log.Error("user UID not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	eventType := models.EventType(req.Type)
	if !eventType.Valid() {
		log.Error("unknown event type", slog.String("type", req.Type))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("unknown event type"))
		return
	}

	h.service.Log(r.Context(), userUID, eventType, req.Payload)
	render.JSON(w, r, response.StatusOKWithData(nil))
}
