package models

import "time"

// Статусы записи о доступе.
const (
	AccessStatusNone     = "NONE"
	AccessStatusTrial    = "TRIAL"
	AccessStatusActive   = "ACTIVE"
	AccessStatusCanceled = "CANCELED"
	AccessStatusExpired  = "EXPIRED"
)

// Access представляет запись о доступе пользователя, одна на пользователя.
// Поля с датами могут быть nil: TrialEndsAt заполнено только пока/после
// выдачи пробного периода, SubscriptionEndsAt — пока/после оплаченного периода.
type Access struct {
	UserUID            string     // Пользователь, которому принадлежит запись
	Status             string     // Текущий статус: NONE, TRIAL, ACTIVE, CANCELED, EXPIRED
	TrialStartedAt     *time.Time // Начало пробного периода
	TrialEndsAt        *time.Time // Конец пробного периода
	SubscriptionEndsAt *time.Time // Конец оплаченного периода
	LastInvoiceID      string     // Инвойс, активировавший текущий оплаченный период
	UpdatedAt          time.Time
}

// EffectiveStatus вычисляет фактический статус записи на момент now.
// Единственный источник правды для предиката истечения: и путь чтения
// (CheckAccess), и sweep используют эту функцию, поэтому они всегда
// согласованы. Запись в хранилище выполняет только sweep.
func EffectiveStatus(a *Access, now time.Time) string {
	if a == nil {
		return AccessStatusNone
	}
	switch a.Status {
	case AccessStatusTrial:
		if a.TrialEndsAt == nil || !now.Before(*a.TrialEndsAt) {
			return AccessStatusExpired
		}
	case AccessStatusActive, AccessStatusCanceled:
		// Отмена не отзывает доступ: оплаченный период дорабатывает
		// до конца, после чего запись считается истёкшей.
		if a.SubscriptionEndsAt == nil || !now.Before(*a.SubscriptionEndsAt) {
			return AccessStatusExpired
		}
	}
	return a.Status
}

// ExpiresAt возвращает дату окончания доступа для статусов TRIAL и ACTIVE.
func (a *Access) ExpiresAt() *time.Time {
	if a == nil {
		return nil
	}
	switch a.Status {
	case AccessStatusTrial:
		return a.TrialEndsAt
	case AccessStatusActive, AccessStatusCanceled:
		return a.SubscriptionEndsAt
	}
	return nil
}
