package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pomogator/pomogator-backend/internal/models"
)

// SavePayment сохраняет новый платёж со статусом PENDING и возвращает его ID.
func (s *Storage) SavePayment(ctx context.Context, p models.Payment) (int, error) {
	const op = "storage.SavePayment"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO payments (invoice_id, user_uid, amount, currency, status, raw_payload)
			  VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	var newID int
	err := s.DB.QueryRowContext(ctx, query,
		p.InvoiceID, p.UserUID, p.Amount, p.Currency, p.Status, p.RawPayload).Scan(&newID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

func scanPayment(scan func(...any) error) (*models.Payment, error) {
	p := &models.Payment{}
	var rawPayload []byte
	if err := scan(&p.ID, &p.InvoiceID, &p.UserUID, &p.Amount, &p.Currency,
		&p.Status, &rawPayload, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.RawPayload = rawPayload
	return p, nil
}

const paymentColumns = `id, invoice_id, user_uid, amount, currency, status,
			      raw_payload, created_at, updated_at`

// GetPaymentByInvoiceID возвращает платёж по идентификатору инвойса ЮKassa.
func (s *Storage) GetPaymentByInvoiceID(ctx context.Context, invoiceID string) (*models.Payment, error) {
	const op = "storage.GetPaymentByInvoiceID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + paymentColumns + ` FROM payments WHERE invoice_id = $1`
	p, err := scanPayment(s.DB.QueryRowContext(ctx, query, invoiceID).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// GetPayment возвращает платёж по внутреннему идентификатору.
func (s *Storage) GetPayment(ctx context.Context, id int) (*models.Payment, error) {
	const op = "storage.GetPayment"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	p, err := scanPayment(s.DB.QueryRowContext(ctx, query, id).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// UpdatePaymentStatus сохраняет новый статус платежа и снимок сырых данных шлюза.
func (s *Storage) UpdatePaymentStatus(ctx context.Context, id int, status string, rawPayload []byte) error {
	const op = "storage.UpdatePaymentStatus"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE payments SET status = $2, raw_payload = $3, updated_at = NOW()
			  WHERE id = $1`
	res, err := s.DB.ExecContext(ctx, query, id, status, rawPayload)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

// ListUserPayments возвращает последние платежи пользователя.
func (s *Storage) ListUserPayments(ctx context.Context, userUID string, limit int) ([]*models.Payment, error) {
	const op = "storage.ListUserPayments"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + paymentColumns + ` FROM payments
			  WHERE user_uid = $1
			  ORDER BY created_at DESC
			  LIMIT $2`
	rows, err := s.DB.QueryContext(ctx, query, userUID, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// ListStalePendingPayments возвращает платежи, остающиеся в PENDING дольше
// olderThan. Только чтение: напоминание, а не автоотмена.
func (s *Storage) ListStalePendingPayments(ctx context.Context, olderThan time.Time) ([]*models.PendingPaymentInfo, error) {
	const op = "storage.ListStalePendingPayments"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT p.id, p.invoice_id, p.user_uid, u.tg_id, p.amount, p.currency
			  FROM payments p
			  JOIN users u ON u.uid = p.user_uid
			  WHERE p.status = $1 AND p.created_at < $2`
	rows, err := s.DB.QueryContext(ctx, query, models.PaymentStatusPending, olderThan)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.PendingPaymentInfo
	for rows.Next() {
		var info models.PendingPaymentInfo
		if err := rows.Scan(&info.PaymentID, &info.InvoiceID, &info.UserUID,
			&info.TgID, &info.Amount, &info.Currency); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &info)
	}
	return result, rows.Err()
}
