// Package paymentlist обрабатывает чтение истории платежей пользователя.
package paymentlist

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"

	"github.com/pomogator/pomogator-backend/internal/http/middlewarectx"
	"github.com/pomogator/pomogator-backend/internal/http/response"
	"github.com/pomogator/pomogator-backend/internal/lib/sl"
	"github.com/pomogator/pomogator-backend/internal/models"
)

// Service определяет интерфейс платёжного сервиса.
type Service interface {
	ListUserPayments(ctx context.Context, userUID string, limit int) ([]*models.Payment, error)
}

// Handler обрабатывает запросы на чтение истории платежей.
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
// @Summary Список платежей пользователя
// @Description Возвращает последние платежи пользователя
// @Tags Payments
// @Produce  json
// @Param userID path string true "UID пользователя"
// @Param limit query int false "Максимум записей (по умолчанию 10)"
// @Success 200 {object} response.Response "Список платежей"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 403 {object} response.ErrorResponse "Чужой идентификатор пользователя"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /payments/user/{userID} [get]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.list"
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

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	payments, err := h.service.ListUserPayments(r.Context(), userUID, limit)
	if err != nil {
		log.Error("failed to list payments", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(payments))
}
