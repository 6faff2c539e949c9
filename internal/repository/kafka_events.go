package repository

import (
	"context"
	"fmt"

	"SpotAgent/internal/domain/models"
	"SpotAgent/internal/domain/repository"
	pkgkafka "SpotAgent/pkg/kafka"

	"github.com/google/uuid"
)

// HeaderKind carries the event kind so consumers can route without decoding.
const HeaderKind = "kind"

// producer is the part of *pkgkafka.Producer the publisher uses.
type producer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}, headers ...pkgkafka.Header) error
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
}

// KafkaEventPublisher wraps trade events in envelopes and streams them, keyed by symbol.
type KafkaEventPublisher struct {
	producer     producer
	eventsTopic  string
	signalsTopic string
	dryRun       bool
	clock        repository.Clock
	metrics      repository.Metrics
	newID        func() string
}

var _ repository.EventPublisher = (*KafkaEventPublisher)(nil)

type EventPublisherOption func(*KafkaEventPublisher)

func WithEventClock(c repository.Clock) EventPublisherOption {
	return func(p *KafkaEventPublisher) { p.clock = c }
}

func WithEventMetrics(m repository.Metrics) EventPublisherOption {
	return func(p *KafkaEventPublisher) { p.metrics = m }
}

func WithDryRunFlag(dryRun bool) EventPublisherOption {
	return func(p *KafkaEventPublisher) { p.dryRun = dryRun }
}

func NewKafkaEventPublisher(pr producer, eventsTopic, signalsTopic string, opts ...EventPublisherOption) *KafkaEventPublisher {
	p := &KafkaEventPublisher{
		producer:     pr,
		eventsTopic:  eventsTopic,
		signalsTopic: signalsTopic,
		clock:        repository.SystemClock{},
		newID:        func() string { return uuid.NewString() },
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *KafkaEventPublisher) PublishTradeEvent(ctx context.Context, ev models.TradeEvent) error {
	env, err := models.NewEnvelope(p.newID(), ev, p.clock.Now(), p.dryRun)
	if err != nil {
		return err
	}
	if err := p.producer.Publish(ctx, p.eventsTopic, []byte(env.Symbol), env,
		pkgkafka.Header{Key: HeaderKind, Value: string(env.Kind)}); err != nil {
		return fmt.Errorf("publish %s: %w", env.Kind, err)
	}
	if p.metrics != nil {
		p.metrics.RecordEventPublished(string(env.Kind))
	}
	return nil
}

func (p *KafkaEventPublisher) PublishSignals(ctx context.Context, evals []models.SignalEvaluation) error {
	if len(evals) == 0 || p.signalsTopic == "" {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(evals))
	for i, e := range evals {
		msgs[i] = pkgkafka.Message{Key: []byte(e.Symbol), Value: e}
	}
	if err := p.producer.PublishBatch(ctx, p.signalsTopic, msgs); err != nil {
		return fmt.Errorf("publish signals: %w", err)
	}
	return nil
}

// JournalEventPublisher writes straight to the journal when no broker is configured.
type JournalEventPublisher struct {
	journal repository.Journal
	dryRun  bool
	clock   repository.Clock
}

var _ repository.EventPublisher = (*JournalEventPublisher)(nil)

func NewJournalEventPublisher(j repository.Journal, dryRun bool, clock repository.Clock) *JournalEventPublisher {
	if clock == nil {
		clock = repository.SystemClock{}
	}
	return &JournalEventPublisher{journal: j, dryRun: dryRun, clock: clock}
}

func (p *JournalEventPublisher) PublishTradeEvent(ctx context.Context, ev models.TradeEvent) error {
	env, err := models.NewEnvelope(uuid.NewString(), ev, p.clock.Now(), p.dryRun)
	if err != nil {
		return err
	}
	return p.journal.InsertTradeEvent(ctx, env)
}

func (p *JournalEventPublisher) PublishSignals(ctx context.Context, evals []models.SignalEvaluation) error {
	if len(evals) == 0 {
		return nil
	}
	return p.journal.InsertSignalEvaluations(ctx, evals)
}

// NopEventPublisher drops everything; used when neither Kafka nor ClickHouse is enabled.
type NopEventPublisher struct{}

func (NopEventPublisher) PublishTradeEvent(context.Context, models.TradeEvent) error { return nil }
func (NopEventPublisher) PublishSignals(context.Context, []models.SignalEvaluation) error {
	return nil
}
