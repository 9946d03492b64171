package api

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/pomogator/pomogator-backend/internal/http/handlers/access/cancel"
	"github.com/pomogator/pomogator-backend/internal/http/handlers/access/check"
	"github.com/pomogator/pomogator-backend/internal/http/handlers/access/starttrial"
	"github.com/pomogator/pomogator-backend/internal/http/handlers/auth/token"
	"github.com/pomogator/pomogator-backend/internal/http/handlers/events/eventcreate"
	"github.com/pomogator/pomogator-backend/internal/http/handlers/events/eventlist"
	"github.com/pomogator/pomogator-backend/internal/http/handlers/health"
	"github.com/pomogator/pomogator-backend/internal/http/handlers/payment/paymentcreate"
	"github.com/pomogator/pomogator-backend/internal/http/handlers/payment/paymentget"
	"github.com/pomogator/pomogator-backend/internal/http/handlers/payment/paymentlist"
	"github.com/pomogator/pomogator-backend/internal/http/handlers/payment/paymentwebhook"
	"github.com/pomogator/pomogator-backend/internal/http/middlewarectx"
	"github.com/pomogator/pomogator-backend/internal/lib/jwt"
	"github.com/pomogator/pomogator-backend/internal/paymentprovider"
	accessservice "github.com/pomogator/pomogator-backend/internal/services/access"
	authservice "github.com/pomogator/pomogator-backend/internal/services/auth"
	eventlogservice "github.com/pomogator/pomogator-backend/internal/services/eventlog"
	paymentservice "github.com/pomogator/pomogator-backend/internal/services/payment"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger,
	tokenMaker jwt.Maker,
	authService *authservice.Service,
	accessService *accessservice.Service,
	paymentService *paymentservice.Service,
	eventlogService *eventlogservice.Service,
	providerClient *paymentprovider.Client) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.Post("/auth/token", token.New(logger, authService).ServeHTTP)

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(tokenMaker, logger))
			r.Use(middlewarectx.RateLimitMiddleware(logger))
			r.Get("/access/{userID}", check.New(logger, accessService).ServeHTTP)
			r.Post("/access/start-trial", starttrial.New(logger, accessService, eventlogService).ServeHTTP)
			r.Post("/access/cancel-subscription", cancel.New(logger, accessService, eventlogService).ServeHTTP)
			r.Post("/payments/create", paymentcreate.New(logger, paymentService).ServeHTTP)
			r.Get("/payments/user/{userID}", paymentlist.New(logger, paymentService).ServeHTTP)
			r.Get("/payments/{paymentID}", paymentget.New(logger, paymentService).ServeHTTP)
			r.Post("/events/log", eventcreate.New(logger, eventlogService).ServeHTTP)
			r.Get("/events/user/{userID}", eventlist.New(logger, eventlogService).ServeHTTP)
		})

		// Webhook endpoint (без аутентификации)
		r.Post("/payments/webhook", paymentwebhook.New(logger, paymentService, providerClient).ServeHTTP)
	})

	r.Get("/health", health.New(logger).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
