// Package sender доставляет уведомления пользователям через Telegram Bot API.
// Сообщения приходят из очередей RabbitMQ, которые наполняет планировщик.
package sender

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/pomogator/pomogator-backend/internal/lib/sl"
	"github.com/pomogator/pomogator-backend/internal/models"
)

// BotAPI часть клиента Telegram Bot API, используемая отправителем.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Service отправитель уведомлений.
type Service struct {
	bot BotAPI
	log *slog.Logger
}

// New создает новый экземпляр Service.
func New(bot BotAPI, log *slog.Logger) *Service {
	return &Service{
		bot: bot,
		log: log,
	}
}

func (s *Service) send(tgID, text string, keyboard *tgbotapi.InlineKeyboardMarkup) error {
	chatID, err := strconv.ParseInt(tgID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid tg id %q: %w", tgID, err)
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if keyboard != nil {
		msg.ReplyMarkup = *keyboard
	}
	if _, err := s.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// SendTrialReminder напоминает о скором окончании пробного периода.
func (s *Service) SendTrialReminder(body []byte) error {
	var job models.NotificationJob
	if err := json.Unmarshal(body, &job); err != nil {
		s.log.Error("failed to unmarshal trial reminder job", sl.Err(err))
		return fmt.Errorf("error unmarshalling message: %w", err)
	}

	text := "⏰ Напоминание о пробном периоде\n\n" +
		"Ваш пробный период заканчивается через 6 часов!\n\n" +
		"Не упустите возможность продолжить пользоваться Помогатором."
	if ends, err := time.Parse(time.RFC3339, job.TrialEnds); err == nil {
		text = fmt.Sprintf("⏰ Напоминание о пробном периоде\n\n"+
			"Ваш пробный период заканчивается %s.\n\n"+
			"Не упустите возможность продолжить пользоваться Помогатором.",
			ends.Format("02.01.2006 15:04"))
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💳 Купить подписку", "buy_subscription"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🚀 Открыть приложение", "open_app"),
		),
	)

	if err := s.send(job.TgID, text, &keyboard); err != nil {
		s.log.Error("failed to send trial reminder",
			slog.String("user_uid", job.UserUID), sl.Err(err))
		return err
	}
	s.log.Info("trial reminder sent", slog.String("user_uid", job.UserUID))
	return nil
}

// SendTrialExpired сообщает об окончании пробного периода.
func (s *Service) SendTrialExpired(body []byte) error {
	var job models.NotificationJob
	if err := json.Unmarshal(body, &job); err != nil {
		s.log.Error("failed to unmarshal trial expired job", sl.Err(err))
		return fmt.Errorf("error unmarshalling message: %w", err)
	}

	text := "⏰ Пробный период закончился\n\n" +
		"Спасибо за использование Помогатора!\n\n" +
		"Чтобы продолжить пользоваться всеми возможностями, оформите подписку:"

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💳 Купить подписку", "buy_subscription"),
		),
	)

	if err := s.send(job.TgID, text, &keyboard); err != nil {
		s.log.Error("failed to send trial expired notice",
			slog.String("user_uid", job.UserUID), sl.Err(err))
		return err
	}
	s.log.Info("trial expired notice sent", slog.String("user_uid", job.UserUID))
	return nil
}

// SendPaymentReminder напоминает о незавершённом платеже.
func (s *Service) SendPaymentReminder(body []byte) error {
	var job models.NotificationJob
	if err := json.Unmarshal(body, &job); err != nil {
		s.log.Error("failed to unmarshal payment reminder job", sl.Err(err))
		return fmt.Errorf("error unmarshalling message: %w", err)
	}

	text := fmt.Sprintf("💳 Незавершённый платёж\n\n"+
		"У вас есть неоплаченный счёт на %.2f %s.\n\n"+
		"Завершите оплату, чтобы активировать подписку.",
		job.Amount, job.Currency)

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💳 Завершить оплату", "buy_subscription"),
		),
	)

	if err := s.send(job.TgID, text, &keyboard); err != nil {
		s.log.Error("failed to send payment reminder",
			slog.String("user_uid", job.UserUID), sl.Err(err))
		return err
	}
	s.log.Info("payment reminder sent", slog.String("user_uid", job.UserUID))
	return nil
}
