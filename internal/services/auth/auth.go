// Package auth выпускает токены сессии Mini App: проверяет initData из
// Telegram, создаёт пользователя при первом контакте и подписывает JWT.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pomogator/pomogator-backend/internal/lib/telegram"
	"github.com/pomogator/pomogator-backend/internal/models"
	"github.com/pomogator/pomogator-backend/internal/services/access"
	"github.com/pomogator/pomogator-backend/internal/storage/repository"
)

// ErrInvalidInitData подпись или свежесть initData не прошли проверку.
var ErrInvalidInitData = errors.New("invalid init data")

// UserRepository методы хранилища пользователей.
type UserRepository interface {
	GetUserByTgID(ctx context.Context, tgID string) (*models.User, error)
	CreateUser(ctx context.Context, user models.User) (string, error)
	UpdateUserName(ctx context.Context, userUID, username, firstName string) error
}

// AccessChecker снимок доступа для ответа на выпуск токена.
type AccessChecker interface {
	CheckAccess(ctx context.Context, userUID string) (*access.Info, error)
}

// TokenMaker подписывает JWT сессии.
type TokenMaker interface {
	GenerateToken(userUID, tgID string) (string, error)
}

// Service сервис аутентификации Mini App.
type Service struct {
	repo     UserRepository
	access   AccessChecker
	maker    TokenMaker
	botToken string
	maxAge   time.Duration
	log      *slog.Logger
	now      func() time.Time
}

// New создает новый экземпляр Service. now == nil означает time.Now.
func New(repo UserRepository, accessChecker AccessChecker, maker TokenMaker,
	botToken string, maxAge time.Duration, log *slog.Logger, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:     repo,
		access:   accessChecker,
		maker:    maker,
		botToken: botToken,
		maxAge:   maxAge,
		log:      log,
		now:      now,
	}
}

// TokenResult ответ на выпуск токена: JWT, пользователь и снимок доступа.
type TokenResult struct {
	Token  string       `json:"token"`
	User   *models.User `json:"user"`
	Access *access.Info `json:"access"`
}

// IssueToken проверяет initData, находит или создаёт пользователя по его
// Telegram ID и выпускает JWT. Токен выдаётся и без действующего доступа:
// снимок доступа в ответе позволяет клиенту предложить триал или оплату.
func (s *Service) IssueToken(ctx context.Context, initData string) (*TokenResult, error) {
	const op = "auth.IssueToken"

	data, err := telegram.Validate(initData, s.botToken, s.maxAge, s.now())
	if err != nil {
		s.log.Warn("init data validation failed", slog.Any("err", err))
		return nil, ErrInvalidInitData
	}

	user, err := s.repo.GetUserByTgID(ctx, data.TgID())
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		newUser := models.User{
			TgID:      data.TgID(),
			Username:  data.User.Username,
			FirstName: data.User.FirstName,
		}
		uid, err := s.repo.CreateUser(ctx, newUser)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		newUser.UID = uid
		user = &newUser
		s.log.Info("user created", slog.String("user_uid", uid), slog.String("tg_id", newUser.TgID))
	} else if user.Username != data.User.Username || user.FirstName != data.User.FirstName {
		// Отображаемые поля единственные изменяемые после создания.
		if err := s.repo.UpdateUserName(ctx, user.UID, data.User.Username, data.User.FirstName); err != nil {
			s.log.Warn("failed to refresh display name", slog.String("user_uid", user.UID), slog.Any("err", err))
		} else {
			user.Username = data.User.Username
			user.FirstName = data.User.FirstName
		}
	}

	info, err := s.access.CheckAccess(ctx, user.UID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	token, err := s.maker.GenerateToken(user.UID, user.TgID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &TokenResult{Token: token, User: user, Access: info}, nil
}
