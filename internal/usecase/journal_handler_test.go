package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"SpotAgent/internal/domain/models"
)

type memJournal struct {
	events []models.EventEnvelope
	evals  []models.SignalEvaluation
	err    error
}

func (j *memJournal) InsertTradeEvent(_ context.Context, env models.EventEnvelope) error {
	if j.err != nil {
		return j.err
	}
	j.events = append(j.events, env)
	return nil
}

func (j *memJournal) InsertSignalEvaluations(_ context.Context, evals []models.SignalEvaluation) error {
	if j.err != nil {
		return j.err
	}
	j.evals = append(j.evals, evals...)
	return nil
}

type countingMetrics struct{ errors map[string]int }

func (m *countingMetrics) RecordTick()                          {}
func (m *countingMetrics) RecordSignal(string, string, float64) {}
func (m *countingMetrics) RecordTradeClosed(string)             {}
func (m *countingMetrics) RecordEventPublished(string)          {}
func (m *countingMetrics) RecordError(kind string) {
	if m.errors == nil {
		m.errors = map[string]int{}
	}
	m.errors[kind]++
}
func (m *countingMetrics) RecordLastPrice(string, float64) {}
func (m *countingMetrics) RecordDaily(float64, float64)    {}
func (m *countingMetrics) RecordLatency(string, float64)   {}

func TestTradeEventHandlerJournalsKnownKinds(t *testing.T) {
	j, m := &memJournal{}, &countingMetrics{}
	h := NewTradeEventHandler("agent.trade-events", j, m)

	env, err := models.NewEnvelope("ev-1", models.Closed{TradeID: 9, Symbol: "BTC/USD", Reason: models.ExitTakeProfit, PnLNet: 1.3},
		time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), true)
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	b, _ := json.Marshal(env)
	if err := h.Handle(context.Background(), b); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(j.events) != 1 || j.events[0].ID != "ev-1" || j.events[0].Kind != models.EventClosed {
		t.Fatalf("journal got %+v", j.events)
	}

	unknown := env
	unknown.Kind = "Teleported"
	b, _ = json.Marshal(unknown)
	if err := h.Handle(context.Background(), b); err == nil {
		t.Fatalf("unknown kind must fail so it reaches the DLQ")
	}
	if len(j.events) != 1 || m.errors["journal_decode"] != 1 {
		t.Fatalf("events=%d errors=%v", len(j.events), m.errors)
	}
}

func TestSignalHandlerPropagatesStoreErrors(t *testing.T) {
	j, m := &memJournal{err: errors.New("clickhouse down")}, &countingMetrics{}
	h := NewSignalHandler("agent.signals", j, m)
	b, _ := json.Marshal(models.SignalEvaluation{Symbol: "ETH/USD"})
	if err := h.Handle(context.Background(), b); err == nil {
		t.Fatalf("expected store error")
	}
	if m.errors["journal_store"] != 1 {
		t.Fatalf("errors=%v", m.errors)
	}
	if err := h.Handle(context.Background(), []byte("{")); err == nil || m.errors["journal_unmarshal"] != 1 {
		t.Fatalf("malformed payload err=%v errors=%v", err, m.errors)
	}
}
