package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"SpotAgent/internal/domain/models"
	domrepo "SpotAgent/internal/domain/repository"
	pkgkafka "SpotAgent/pkg/kafka"
)

// TradeEventHandler consumes trade-event envelopes and journals them.
type TradeEventHandler struct {
	topic   string
	journal domrepo.Journal
	metrics domrepo.Metrics
}

func NewTradeEventHandler(topic string, journal domrepo.Journal, metrics domrepo.Metrics) *TradeEventHandler {
	return &TradeEventHandler{topic: topic, journal: journal, metrics: metrics}
}

func (h *TradeEventHandler) Topic() string { return h.topic }

func (h *TradeEventHandler) Handle(ctx context.Context, b []byte) error {
	var env models.EventEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		h.metrics.RecordError("journal_unmarshal")
		return err
	}
	// Reject unknown kinds here so they land in the DLQ instead of the table.
	if _, err := env.Decode(); err != nil {
		h.metrics.RecordError("journal_decode")
		return fmt.Errorf("event %s: %w", env.ID, err)
	}
	h.metrics.RecordLatency("event_journal_lag_seconds", time.Since(env.At).Seconds())

	start := time.Now()
	err := h.journal.InsertTradeEvent(ctx, env)
	h.metrics.RecordLatency("journal_insert_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("journal_store")
		return err
	}
	return nil
}

// SignalHandler consumes per-tick signal evaluations.
type SignalHandler struct {
	topic   string
	journal domrepo.Journal
	metrics domrepo.Metrics
}

func NewSignalHandler(topic string, journal domrepo.Journal, metrics domrepo.Metrics) *SignalHandler {
	return &SignalHandler{topic: topic, journal: journal, metrics: metrics}
}

func (h *SignalHandler) Topic() string { return h.topic }

func (h *SignalHandler) Handle(ctx context.Context, b []byte) error {
	var e models.SignalEvaluation
	if err := json.Unmarshal(b, &e); err != nil {
		h.metrics.RecordError("journal_unmarshal")
		return err
	}
	if err := h.journal.InsertSignalEvaluations(ctx, []models.SignalEvaluation{e}); err != nil {
		h.metrics.RecordError("journal_store")
		return err
	}
	return nil
}

var (
	_ pkgkafka.MessageHandler = (*TradeEventHandler)(nil)
	_ pkgkafka.MessageHandler = (*SignalHandler)(nil)
)
