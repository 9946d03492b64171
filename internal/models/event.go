package models

import "time"

// EventType тип события в журнале. Закрытый набор значений.
type EventType string

// Типы событий журнала.
const (
	EventTrialStarted         EventType = "trial_started"
	EventTrialReminder        EventType = "trial_reminder"
	EventTrialExpired         EventType = "trial_expired"
	EventPaymentCreated       EventType = "payment_created"
	EventPaymentSucceeded     EventType = "payment_succeeded"
	EventPaymentFailed        EventType = "payment_failed"
	EventPaymentReminder      EventType = "payment_reminder"
	EventSubscriptionCanceled EventType = "subscription_canceled"
	EventAppOpened            EventType = "app_opened"
	EventTutorialStarted      EventType = "tutorial_started"
	EventTutorialCompleted    EventType = "tutorial_completed"
)

// Valid сообщает, входит ли тип в закрытый набор.
func (t EventType) Valid() bool {
	switch t {
	case EventTrialStarted, EventTrialReminder, EventTrialExpired,
		EventPaymentCreated, EventPaymentSucceeded, EventPaymentFailed,
		EventPaymentReminder, EventSubscriptionCanceled, EventAppOpened,
		EventTutorialStarted, EventTutorialCompleted:
		return true
	}
	return false
}

// EventLogEntry запись журнала событий. Журнал только дописывается,
// с точки зрения основной логики запись всегда best-effort.
type EventLogEntry struct {
	ID        int            `json:"id"`
	UserUID   string         `json:"user_uid"`
	Type      EventType      `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NotificationJob сообщение для отправителя уведомлений, публикуется
// планировщиком в RabbitMQ.
type NotificationJob struct {
	UserUID   string  `json:"user_uid"`
	TgID      string  `json:"tg_id"`
	TrialEnds string  `json:"trial_ends,omitempty"`
	InvoiceID string  `json:"invoice_id,omitempty"`
	Amount    float64 `json:"amount,omitempty"`
	Currency  string  `json:"currency,omitempty"`
}
