package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pomogator/pomogator-backend/internal/models"
)

// CreateUser сохраняет нового пользователя и возвращает его UID.
func (s *Storage) CreateUser(ctx context.Context, user models.User) (string, error) {
	const op = "storage.CreateUser"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var newUID string
	query := `INSERT INTO users (tg_id, username, first_name)
			  VALUES ($1, $2, $3)
			  RETURNING uid;`
	if err := s.DB.QueryRowContext(ctx, query,
		user.TgID, user.Username, user.FirstName).Scan(&newUID); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return newUID, nil
}

// GetUserByTgID возвращает пользователя по его Telegram ID.
func (s *Storage) GetUserByTgID(ctx context.Context, tgID string) (*models.User, error) {
	const op = "storage.GetUserByTgID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT uid, tg_id, username, first_name, created_at
			  FROM users
			  WHERE tg_id = $1`
	u := &models.User{}
	row := s.DB.QueryRowContext(ctx, query, tgID)
	if err := row.Scan(&u.UID, &u.TgID, &u.Username, &u.FirstName, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// GetUser возвращает пользователя по его UID.
func (s *Storage) GetUser(ctx context.Context, userUID string) (*models.User, error) {
	const op = "storage.GetUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT uid, tg_id, username, first_name, created_at
			  FROM users
			  WHERE uid = $1`
	u := &models.User{}
	row := s.DB.QueryRowContext(ctx, query, userUID)
	if err := row.Scan(&u.UID, &u.TgID, &u.Username, &u.FirstName, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// UpdateUserName обновляет отображаемые поля пользователя.
// Остальные поля после создания неизменяемы.
func (s *Storage) UpdateUserName(ctx context.Context, userUID, username, firstName string) error {
	const op = "storage.UpdateUserName"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users SET username = $2, first_name = $3 WHERE uid = $1`
	if _, err := s.DB.ExecContext(ctx, query, userUID, username, firstName); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
