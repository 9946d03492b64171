// Package token обрабатывает выпуск токена сессии Mini App по initData.
package token

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/pomogator/pomogator-backend/internal/http/response"
	"github.com/pomogator/pomogator-backend/internal/lib/sl"
	"github.com/pomogator/pomogator-backend/internal/services/auth"
)

// Request представляет запрос на выпуск токена.
type Request struct {
	InitData string `json:"initData" validate:"required"`
}

// Service определяет интерфейс сервиса аутентификации.
type Service interface {
	IssueToken(ctx context.Context, initData string) (*auth.TokenResult, error)
}

// Handler обрабатывает запросы на выпуск токена.
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
// @Summary Выпустить токен сессии
// @Description Проверяет initData из Telegram Mini App и выпускает JWT
// @Tags Auth
// @Accept  json
// @Produce  json
// @Param request body Request true "initData из Telegram WebApp"
// @Success 200 {object} response.Response "Токен, пользователь и снимок доступа"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Невалидный или устаревший initData"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /auth/token [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.token"
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

	result, err := h.service.IssueToken(r.Context(), req.InitData)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidInitData) {
			log.Error("init data rejected", sl.Err(err))
			w.WriteHeader(http.StatusUnauthorized)
			render.JSON(w, r, response.Error("invalid init data"))
			return
		}
		log.Error("failed to issue token", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	log.Info("token issued", slog.String("user_uid", result.User.UID))
	render.JSON(w, r, response.StatusOKWithData(result))
}
