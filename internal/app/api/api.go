// Package api собирает и запускает HTTP-сервер бэкенда Mini App.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"

	"github.com/pomogator/pomogator-backend/internal/cache"
	"github.com/pomogator/pomogator-backend/internal/config"
	"github.com/pomogator/pomogator-backend/internal/lib/jwt"
	"github.com/pomogator/pomogator-backend/internal/migrations"
	"github.com/pomogator/pomogator-backend/internal/paymentprovider"
	accessservice "github.com/pomogator/pomogator-backend/internal/services/access"
	authservice "github.com/pomogator/pomogator-backend/internal/services/auth"
	eventlogservice "github.com/pomogator/pomogator-backend/internal/services/eventlog"
	paymentservice "github.com/pomogator/pomogator-backend/internal/services/payment"
	"github.com/pomogator/pomogator-backend/internal/storage/repository"
)

// App приложение HTTP API.
type App struct {
	server *http.Server
	logger *slog.Logger
	db     *repository.Storage
}

// New создает новый экземпляр App: подключает хранилище, применяет
// миграции, инициализирует кеш и собирает сервисы с маршрутами.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	tokenMaker := jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL)
	providerClient := paymentprovider.NewClient(cfg.YooKassa.ShopID, cfg.YooKassa.SecretKey, cfg.YooKassa.WebhookSecret)

	eventlogService := eventlogservice.New(db, logger)
	accessService := accessservice.New(db, cacheRedis, logger, nil)
	paymentService := paymentservice.New(db, providerClient, accessService, eventlogService, cfg.YooKassa.ReturnURL, logger)
	authService := authservice.New(db, accessService, tokenMaker, cfg.BotToken, cfg.InitDataMaxAge, logger, nil)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, tokenMaker, authService, accessService, paymentService, eventlogService, providerClient)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server: srv,
		logger: logger,
		db:     db,
	}, nil
}

// Run запускает HTTP-сервер и останавливает его при отмене контекста.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		if closeErr := a.db.DB.Close(); closeErr != nil {
			a.logger.Error("failed to close database", slog.Any("err", closeErr))
		}
		return err
	}
}
