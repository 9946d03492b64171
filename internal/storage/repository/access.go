package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pomogator/pomogator-backend/internal/models"
)

func scanAccess(row *sql.Row) (*models.Access, error) {
	a := &models.Access{}
	var trialStartedAt, trialEndsAt, subscriptionEndsAt sql.NullTime
	var lastInvoiceID sql.NullString
	if err := row.Scan(&a.UserUID, &a.Status, &trialStartedAt, &trialEndsAt,
		&subscriptionEndsAt, &lastInvoiceID, &a.UpdatedAt); err != nil {
		return nil, err
	}
	if trialStartedAt.Valid {
		a.TrialStartedAt = &trialStartedAt.Time
	}
	if trialEndsAt.Valid {
		a.TrialEndsAt = &trialEndsAt.Time
	}
	if subscriptionEndsAt.Valid {
		a.SubscriptionEndsAt = &subscriptionEndsAt.Time
	}
	if lastInvoiceID.Valid {
		a.LastInvoiceID = lastInvoiceID.String
	}
	return a, nil
}

// GetAccess возвращает запись о доступе пользователя.
func (s *Storage) GetAccess(ctx context.Context, userUID string) (*models.Access, error) {
	const op = "storage.GetAccess"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT user_uid, status, trial_started_at, trial_ends_at,
			      subscription_ends_at, last_invoice_id, updated_at
			  FROM access
			  WHERE user_uid = $1`
	a, err := scanAccess(s.DB.QueryRowContext(ctx, query, userUID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return a, nil
}

// UpsertTrial переводит запись о доступе в статус TRIAL, создавая её при
// отсутствии. Оплаченный период при этом не трогается.
func (s *Storage) UpsertTrial(ctx context.Context, userUID string, startedAt, endsAt time.Time) error {
	const op = "storage.UpsertTrial"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO access (user_uid, status, trial_started_at, trial_ends_at, updated_at)
			  VALUES ($1, $2, $3, $4, NOW())
			  ON CONFLICT (user_uid) DO UPDATE
			  SET status = EXCLUDED.status,
			      trial_started_at = EXCLUDED.trial_started_at,
			      trial_ends_at = EXCLUDED.trial_ends_at,
			      updated_at = NOW()`
	if _, err := s.DB.ExecContext(ctx, query, userUID, models.AccessStatusTrial, startedAt, endsAt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ActivateAccess переводит запись в статус ACTIVE: устанавливает конец
// оплаченного периода, сбрасывает дату окончания триала и запоминает
// инвойс, выполнивший активацию. Запись создаётся при отсутствии.
func (s *Storage) ActivateAccess(ctx context.Context, userUID string, endsAt time.Time, invoiceID string) error {
	const op = "storage.ActivateAccess"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO access (user_uid, status, subscription_ends_at, last_invoice_id, updated_at)
			  VALUES ($1, $2, $3, $4, NOW())
			  ON CONFLICT (user_uid) DO UPDATE
			  SET status = EXCLUDED.status,
			      subscription_ends_at = EXCLUDED.subscription_ends_at,
			      trial_ends_at = NULL,
			      last_invoice_id = EXCLUDED.last_invoice_id,
			      updated_at = NOW()`
	if _, err := s.DB.ExecContext(ctx, query, userUID, models.AccessStatusActive, endsAt, invoiceID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UpdateAccessStatus меняет только статус записи о доступе.
func (s *Storage) UpdateAccessStatus(ctx context.Context, userUID, status string) error {
	const op = "storage.UpdateAccessStatus"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE access SET status = $2, updated_at = NOW() WHERE user_uid = $1`
	res, err := s.DB.ExecContext(ctx, query, userUID, status)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

// ListExpiredTrials атомарно переводит в EXPIRED все триалы, истёкшие
// строго раньше now, и возвращает их пользователей.
func (s *Storage) ListExpiredTrials(ctx context.Context, now time.Time) ([]string, error) {
	const op = "storage.ListExpiredTrials"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE access SET status = $2, updated_at = NOW()
			  WHERE status = $1 AND trial_ends_at < $3
			  RETURNING user_uid`
	rows, err := s.DB.QueryContext(ctx, query,
		models.AccessStatusTrial, models.AccessStatusExpired, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, uid)
	}
	return result, rows.Err()
}

// ListExpiredActive переводит в EXPIRED записи ACTIVE и CANCELED,
// у которых оплаченный период уже закончился, и возвращает их пользователей.
func (s *Storage) ListExpiredActive(ctx context.Context, now time.Time) ([]string, error) {
	const op = "storage.ListExpiredActive"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE access SET status = $3, updated_at = NOW()
			  WHERE status IN ($1, $2) AND subscription_ends_at < $4
			  RETURNING user_uid`
	rows, err := s.DB.QueryContext(ctx, query,
		models.AccessStatusActive, models.AccessStatusCanceled,
		models.AccessStatusExpired, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, uid)
	}
	return result, rows.Err()
}

// ListExpiringTrials возвращает пользователей с триалом, истекающим
// в интервале [now, now+horizon]. Только чтение.
func (s *Storage) ListExpiringTrials(ctx context.Context, now time.Time, horizon time.Duration) ([]*models.NotificationJob, error) {
	const op = "storage.ListExpiringTrials"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT a.user_uid, u.tg_id, a.trial_ends_at
			  FROM access a
			  JOIN users u ON u.uid = a.user_uid
			  WHERE a.status = $1 AND a.trial_ends_at >= $2 AND a.trial_ends_at <= $3`
	rows, err := s.DB.QueryContext(ctx, query,
		models.AccessStatusTrial, now, now.Add(horizon))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.NotificationJob
	for rows.Next() {
		var job models.NotificationJob
		var trialEnds time.Time
		if err := rows.Scan(&job.UserUID, &job.TgID, &trialEnds); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		job.TrialEnds = trialEnds.Format(time.RFC3339)
		result = append(result, &job)
	}
	return result, rows.Err()
}

// GetTgID возвращает Telegram ID пользователя по его UID.
func (s *Storage) GetTgID(ctx context.Context, userUID string) (string, error) {
	const op = "storage.GetTgID"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var tgID string
	query := `SELECT tg_id FROM users WHERE uid = $1`
	if err := s.DB.QueryRowContext(ctx, query, userUID).Scan(&tgID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return tgID, nil
}
