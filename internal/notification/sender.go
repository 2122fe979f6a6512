package notification

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"go.uber.org/zap"
)

// Sender доставляет текст в чат пользователя
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// TelegramSender отправляет уведомления через Telegram Bot API
type TelegramSender struct {
	bot *bot.Bot
}

func NewTelegramSender(b *bot.Bot) *TelegramSender {
	return &TelegramSender{bot: b}
}

func (s *TelegramSender) Send(ctx context.Context, chatID int64, text string) error {
	_, err := s.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

// LogSender только пишет уведомления в лог. Используется, когда токен бота не задан.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, chatID int64, text string) error {
	s.logger.Info("Notification", zap.Int64("chat_id", chatID), zap.String("text", text))
	return nil
}
