package telegram

import (
	"context"
	"strings"
	"testing"
	"time"

	"SpotAgent/internal/domain/models"
	"SpotAgent/internal/state"
	"SpotAgent/internal/usecase"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type fakeBot struct {
	updates chan tgbotapi.Update
	sent    []tgbotapi.MessageConfig
	stopped bool
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.sent = append(b.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func (b *fakeBot) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel { return b.updates }
func (b *fakeBot) StopReceivingUpdates()                                        { b.stopped = true }

func message(chat int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chat}, Text: text}}
}

func setup() (*Handler, *fakeBot, *state.State) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	st := state.New(now, models.DefaultWeights(), models.RuntimeConfig{RSIOversold: 35, RSIOverbought: 65}, 0.5)
	op := usecase.NewOperator(st, nil, usecase.AllowedCallers([]int64{42}, nil))
	bot := &fakeBot{updates: make(chan tgbotapi.Update, 4)}
	return NewHandler(bot, op, nil), bot, st
}

func TestUnknownChatGetsNoReply(t *testing.T) {
	h, bot, st := setup()
	h.Handle(context.Background(), message(7, "/emergency_flat"))
	if len(bot.sent) != 0 {
		t.Fatalf("replied to unknown chat: %+v", bot.sent)
	}
	if flat, _, _ := st.Pending(); flat {
		t.Fatalf("unknown chat armed emergency flat")
	}
}

func TestAllowedChatArmsEmergencyFlat(t *testing.T) {
	h, bot, st := setup()
	h.Handle(context.Background(), message(42, "/emergency_flat@spot_bot"))
	if flat, _, _ := st.Pending(); !flat {
		t.Fatalf("emergency flat not armed")
	}
	if len(bot.sent) != 1 || bot.sent[0].ChatID != 42 || !strings.Contains(bot.sent[0].Text, "emergency flat armed") {
		t.Fatalf("unexpected replies %+v", bot.sent)
	}
}

func TestUnknownCommandAndPlainText(t *testing.T) {
	h, bot, _ := setup()
	h.Handle(context.Background(), message(42, "hello"))
	h.Handle(context.Background(), message(42, "/moon"))
	h.Handle(context.Background(), message(42, "/start"))
	if len(bot.sent) != 2 {
		t.Fatalf("replies = %d", len(bot.sent))
	}
	if !strings.Contains(bot.sent[0].Text, "unknown command") || !strings.Contains(bot.sent[1].Text, "emergency-flat") {
		t.Fatalf("unexpected replies %q / %q", bot.sent[0].Text, bot.sent[1].Text)
	}
}

func TestCloseWithoutPosition(t *testing.T) {
	h, bot, st := setup()
	st.Publish(models.StatusSnapshot{})
	h.Handle(context.Background(), message(42, "/close"))
	if len(bot.sent) != 1 || bot.sent[0].Text != "no open position" {
		t.Fatalf("unexpected replies %+v", bot.sent)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	h, bot, st := setup()
	bot.updates <- message(42, "/optimize")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	deadline := time.Now().Add(time.Second)
	for {
		if _, _, opt := st.Pending(); opt {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("optimize update not handled")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if !bot.stopped {
		t.Fatalf("updates not stopped")
	}
}
