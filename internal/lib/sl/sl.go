// Package sl содержит хелперы для структурированных полей slog.
package sl

import "log/slog"

// Err кладёт текст ошибки в атрибут "error". Нулевая ошибка
// превращается в "<nil>", чтобы логирование не падало в defer-ветках.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.String("error", err.Error())
}
