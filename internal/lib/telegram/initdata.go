// Package telegram проверяет подлинность initData из Telegram Mini App.
//
// Подпись считается по схеме из документации Bot API: секрет — это
// HMAC-SHA256("WebAppData", bot_token), подпись — HMAC-SHA256(секрет,
// data-check-string), где data-check-string собирается из всех полей
// initData кроме hash, отсортированных по ключу.
package telegram

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Ошибки проверки initData.
var (
	ErrInvalidSignature = errors.New("init data signature mismatch")
	ErrExpired          = errors.New("init data is too old")
	ErrNoUser           = errors.New("init data has no user field")
)

// WebAppUser данные пользователя, вложенные в initData.
type WebAppUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

// InitData результат успешной проверки initData.
type InitData struct {
	User     WebAppUser
	AuthDate time.Time
}

// TgID возвращает Telegram ID пользователя в строковом виде,
// как он хранится в базе.
func (d *InitData) TgID() string {
	return strconv.FormatInt(d.User.ID, 10)
}

// Validate проверяет подпись и свежесть initData и извлекает пользователя.
// maxAge <= 0 отключает проверку свежести.
func Validate(initData, botToken string, maxAge time.Duration, now time.Time) (*InitData, error) {
	const op = "telegram.Validate"

	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	hash := values.Get("hash")
	if hash == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidSignature)
	}
	values.Del("hash")

	pairs := make([]string, 0, len(values))
	for key := range values {
		pairs = append(pairs, key+"="+values.Get(key))
	}
	sort.Strings(pairs)
	checkString := strings.Join(pairs, "\n")

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))
	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(checkString))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(hash)) {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidSignature)
	}

	authUnix, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid auth_date: %w", op, err)
	}
	authDate := time.Unix(authUnix, 0)
	if maxAge > 0 && now.Sub(authDate) > maxAge {
		return nil, fmt.Errorf("%s: %w", op, ErrExpired)
	}

	rawUser := values.Get("user")
	if rawUser == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrNoUser)
	}
	var user WebAppUser
	if err := json.Unmarshal([]byte(rawUser), &user); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &InitData{User: user, AuthDate: authDate}, nil
}
