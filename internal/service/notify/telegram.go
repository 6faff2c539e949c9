package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"SpotAgent/internal/domain/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender is the part of *tgbotapi.BotAPI used for outgoing messages.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSink pushes notifications to every allowed chat.
type TelegramSink struct {
	bot   Sender
	chats []int64
}

func NewTelegramSink(bot Sender, chats []int64) *TelegramSink {
	return &TelegramSink{bot: bot, chats: chats}
}

func (s *TelegramSink) Name() string { return "telegram" }

func (s *TelegramSink) Send(ctx context.Context, n models.Notification) error {
	text := Format(n)
	var errs []error
	for _, chat := range s.chats {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.bot.Send(tgbotapi.NewMessage(chat, text)); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", chat, err))
		}
	}
	return errors.Join(errs...)
}

var kindTitles = map[models.NotificationKind]string{
	models.NotifyTradeOpen:    "Trade opened",
	models.NotifyTradeClose:   "Trade closed",
	models.NotifyDailySummary: "Daily summary",
	models.NotifyError:        "Error",
	models.NotifyRSIExtreme:   "RSI extreme",
	models.NotifyLowRisk:      "Low-risk mode",
	models.NotifyOptimization: "Optimization",
}

// Format renders a notification as plain text.
func Format(n models.Notification) string {
	var b strings.Builder
	if title, ok := kindTitles[n.Kind]; ok {
		b.WriteString("[" + title + "]")
	}
	if n.Symbol != "" {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(n.Symbol)
	}
	if b.Len() > 0 {
		b.WriteByte('\n')
	}
	b.WriteString(n.Text)
	return b.String()
}
