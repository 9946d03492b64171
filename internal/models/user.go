// Package models содержит доменные структуры приложения: пользователя,
// запись о доступе, платёж и запись журнала событий. Структуры используются
// в бизнес-логике и при работе с хранилищем.
package models

import "time"

// User представляет пользователя, созданного при первом контакте
// (выдача токена по initData из Telegram Mini App или /start в боте).
type User struct {
	UID       string    // Уникальный идентификатор пользователя
	TgID      string    // Telegram ID (числовой, хранится строкой)
	Username  string    // Telegram username, может быть пустым
	FirstName string    // Имя для отображения
	CreatedAt time.Time // Дата создания
}
