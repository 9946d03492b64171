// Package check обрабатывает проверку доступа пользователя.
package check

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"

	"github.com/pomogator/pomogator-backend/internal/http/middlewarectx"
	"github.com/pomogator/pomogator-backend/internal/http/response"
	"github.com/pomogator/pomogator-backend/internal/lib/sl"
	"github.com/pomogator/pomogator-backend/internal/services/access"
)

// Service определяет интерфейс сервиса доступа.
type Service interface {
	CheckAccess(ctx context.Context, userUID string) (*access.Info, error)
}

// Handler обрабатывает запросы на проверку доступа.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Проверить доступ
// @Description Возвращает снимок доступа пользователя на текущий момент
// @Tags Access
// @Produce  json
// @Param userID path string true "UID пользователя"
// @Success 200 {object} access.Info "Снимок доступа"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 403 {object} response.ErrorResponse "Чужой идентификатор пользователя"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /access/{userID} [get]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.access.check"
	log := h.log.With(slog.String("op", op))

	userUID, ok := r.Context().Value(middlewarectx.UserUID).(string)
	if !ok || userUID == "" {
		log.Error("user UID not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	requested := chi.URLParam(r, "userID")
	if requested != "" && requested != userUID {
		log.Error("requested foreign user uid",
			slog.String("requested", requested), slog.String("user_uid", userUID))
		w.WriteHeader(http.StatusForbidden)
		render.JSON(w, r, response.Error("forbidden"))
		return
	}

	info, err := h.service.CheckAccess(r.Context(), userUID)
	if err != nil {
		log.Error("failed to check access", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	render.JSON(w, r, info)
}
