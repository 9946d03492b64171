package access

import (
	"errors"
	"fmt"
	"time"
)

// Ошибки жизненного цикла доступа. Конфликтные ошибки не меняют состояние.
var (
	// ErrAlreadyActive повторная выдача триала при активной подписке.
	ErrAlreadyActive = errors.New("subscription is already active")
	// ErrAlreadyCanceled повторная отмена уже отменённой подписки.
	ErrAlreadyCanceled = errors.New("subscription is already canceled")
	// ErrAccessNotFound запись о доступе отсутствует.
	ErrAccessNotFound = errors.New("access record not found")
)

// AlreadyTrialError повторная выдача триала при действующем триале.
// Несёт дату окончания текущего триала для сообщения пользователю.
type AlreadyTrialError struct {
	TrialEndsAt time.Time
}

func (e *AlreadyTrialError) Error() string {
	return fmt.Sprintf("trial is already active until %s", e.TrialEndsAt.Format("02.01.2006"))
}
