// Package paymentprovider реализует клиент платёжного шлюза ЮKassa:
// создание платежа с редиректом на страницу оплаты, получение статуса
// платежа и проверку подписи вебхука.
package paymentprovider

import "time"

// Amount представляет денежную сумму.
// Value — строка с фиксированной точкой, например "999.00" (формат ЮKassa).
type Amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// Confirmation описывает сценарий подтверждения платежа.
// Для Mini App используется redirect на страницу оплаты.
type Confirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

// CreatePaymentRequest представляет запрос на создание платежа.
type CreatePaymentRequest struct {
	Amount       Amount            `json:"amount"`
	Description  string            `json:"description,omitempty"`
	Capture      bool              `json:"capture"`
	Confirmation *Confirmation     `json:"confirmation,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"` // дополнительная инфа: user_uid и тип платежа
}

// CreatePaymentResponse представляет ответ ЮKassa на создание платежа.
type CreatePaymentResponse struct {
	ID           string            `json:"id"`     // ID платежа в ЮKassa (invoice id)
	Status       string            `json:"status"` // статус платежа, например "pending"
	Amount       Amount            `json:"amount"`
	Description  string            `json:"description,omitempty"`
	Confirmation *Confirmation     `json:"confirmation,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// Статусы платежа в ЮKassa.
const (
	RemoteStatusPending           = "pending"
	RemoteStatusWaitingForCapture = "waiting_for_capture"
	RemoteStatusSucceeded         = "succeeded"
	RemoteStatusCanceled          = "canceled"
)
