// Package telegram turns chat messages into operator commands.
package telegram

import (
	"context"
	"errors"
	"strings"

	"SpotAgent/internal/usecase"
	"SpotAgent/pkg/logger"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Bot is the part of *tgbotapi.BotAPI the command loop needs.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type Handler struct {
	bot     Bot
	op      *usecase.Operator
	l       *logger.Logger
	timeout int
}

func NewHandler(bot Bot, op *usecase.Operator, l *logger.Logger) *Handler {
	if l == nil {
		l = logger.Nop()
	}
	return &Handler{bot: bot, op: op, l: l, timeout: 30}
}

// Run long-polls updates until ctx ends.
func (h *Handler) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = h.timeout
	updates := h.bot.GetUpdatesChan(u)
	h.l.Info("telegram command loop started")

	for {
		select {
		case <-ctx.Done():
			h.bot.StopReceivingUpdates()
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			h.Handle(ctx, up)
		}
	}
}

// Handle answers one update. Messages from chats outside the allow-list get
// no reply.
func (h *Handler) Handle(ctx context.Context, up tgbotapi.Update) {
	msg := up.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}
	chatID := msg.Chat.ID
	caller := usecase.TelegramCaller(chatID)
	if !h.op.Authorized(caller) {
		h.l.Warn("telegram command from unknown chat ignored", logger.Int64("chat_id", chatID))
		return
	}

	name := strings.Fields(text)[0]
	if name == "/start" {
		name = string(usecase.CmdHelp)
	}
	cmd, err := usecase.ParseCommand(name)
	if err != nil {
		h.reply(chatID, "unknown command. try /help")
		return
	}
	res, err := h.op.Execute(ctx, caller, cmd)
	switch {
	case errors.Is(err, usecase.ErrNothingToClose):
		h.reply(chatID, "no open position")
	case err != nil:
		h.l.Error("telegram command failed", logger.String("command", string(cmd)), logger.Error(err))
		h.reply(chatID, "command failed: "+err.Error())
	default:
		h.reply(chatID, res.Text)
	}
}

func (h *Handler) reply(chatID int64, text string) {
	if _, err := h.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		h.l.Error("send telegram reply", logger.Int64("chat_id", chatID), logger.Error(err))
	}
}
