package sender

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pomogator/pomogator-backend/internal/models"
)

type BotMock struct{ mock.Mock }

func (m *BotMock) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func marshalJob(t *testing.T, job models.NotificationJob) []byte {
	t.Helper()
	body, err := json.Marshal(job)
	require.NoError(t, err)
	return body
}

func TestSendTrialReminder(t *testing.T) {
	bot := new(BotMock)
	bot.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
		msg, ok := c.(tgbotapi.MessageConfig)
		return ok && msg.ChatID == 100500 && msg.ReplyMarkup != nil
	})).Return(tgbotapi.Message{}, nil).Once()

	svc := New(bot, newNoopLogger())
	err := svc.SendTrialReminder(marshalJob(t, models.NotificationJob{
		UserUID:   "uid-1",
		TgID:      "100500",
		TrialEnds: "2025-06-01T15:00:00Z",
	}))
	require.NoError(t, err)
	bot.AssertExpectations(t)
}

func TestSendTrialExpired(t *testing.T) {
	bot := new(BotMock)
	bot.On("Send", mock.Anything).Return(tgbotapi.Message{}, nil).Once()

	svc := New(bot, newNoopLogger())
	err := svc.SendTrialExpired(marshalJob(t, models.NotificationJob{
		UserUID: "uid-1",
		TgID:    "100500",
	}))
	require.NoError(t, err)
	bot.AssertExpectations(t)
}

func TestSendPaymentReminder(t *testing.T) {
	bot := new(BotMock)
	bot.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
		msg, ok := c.(tgbotapi.MessageConfig)
		return ok && msg.ChatID == 100500
	})).Return(tgbotapi.Message{}, nil).Once()

	svc := New(bot, newNoopLogger())
	err := svc.SendPaymentReminder(marshalJob(t, models.NotificationJob{
		UserUID:  "uid-1",
		TgID:     "100500",
		Amount:   999,
		Currency: "RUB",
	}))
	require.NoError(t, err)
	bot.AssertExpectations(t)
}

func TestSendInvalidPayload(t *testing.T) {
	bot := new(BotMock)
	svc := New(bot, newNoopLogger())

	err := svc.SendTrialReminder([]byte("not json"))
	assert.Error(t, err)
	bot.AssertNotCalled(t, "Send", mock.Anything)
}

func TestSendInvalidChatID(t *testing.T) {
	bot := new(BotMock)
	svc := New(bot, newNoopLogger())

	err := svc.SendTrialExpired(marshalJob(t, models.NotificationJob{
		UserUID: "uid-1",
		TgID:    "not-a-number",
	}))
	assert.Error(t, err)
	bot.AssertNotCalled(t, "Send", mock.Anything)
}
