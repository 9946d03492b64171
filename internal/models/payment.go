package models

import "time"

// Статусы платежа. Меняются только при обработке вебхука от ЮKassa,
// клиентские запросы статус не меняют.
const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusSucceeded = "SUCCEEDED"
	PaymentStatusCanceled  = "CANCELED"
)

// Payment представляет платёж, созданный через ЮKassa.
// Записи никогда не удаляются, RawPayload хранит последний снимок
// данных шлюза для аудита.
type Payment struct {
	ID         int       `json:"id"`         // Внутренний идентификатор
	InvoiceID  string    `json:"invoice_id"` // Идентификатор платежа, выданный ЮKassa (уникальный)
	UserUID    string    `json:"user_uid"`   // Пользователь, оплативший подписку
	Amount     float64   `json:"amount"`     // Сумма платежа
	Currency   string    `json:"currency"`   // Валюта, например "RUB"
	Status     string    `json:"status"`     // PENDING, SUCCEEDED или CANCELED
	RawPayload []byte    `json:"-"`          // Снимок сырых данных шлюза (JSON)
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// PendingPaymentInfo содержит данные незавершённого платежа для напоминания.
type PendingPaymentInfo struct {
	PaymentID int     `json:"payment_id"`
	InvoiceID string  `json:"invoice_id"`
	UserUID   string  `json:"user_uid"`
	TgID      string  `json:"tg_id"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
}
