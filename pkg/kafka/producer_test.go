package kafka

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
)

type captureWriter struct {
	msgs []kafka.Message
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) Close() error { return nil }

func TestPublishEncodesJSONAndHeaders(t *testing.T) {
	w := &captureWriter{}
	p := newProducer(w, "snappy")

	err := p.Publish(context.Background(), "agent.trade-events", []byte("BTC/USD"),
		map[string]float64{"price": 101.5}, Header{Key: "event_type", Value: "BUY_EXECUTED"})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	m := w.msgs[0]
	if m.Topic != "agent.trade-events" || string(m.Key) != "BTC/USD" {
		t.Fatalf("unexpected topic/key %s %s", m.Topic, m.Key)
	}
	if string(m.Value) != `{"price":101.5}` {
		t.Fatalf("unexpected value %s", m.Value)
	}
	if len(m.Headers) != 1 || m.Headers[0].Key != "event_type" || string(m.Headers[0].Value) != "BUY_EXECUTED" {
		t.Fatalf("unexpected headers %+v", m.Headers)
	}
}

func TestPublishMessagePassesBytesThrough(t *testing.T) {
	w := &captureWriter{}
	p := newProducer(w, "snappy")
	if err := p.PublishMessage(context.Background(), "agent.errors", []byte("raw")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if string(w.msgs[0].Value) != "raw" || w.msgs[0].Key != nil {
		t.Fatalf("unexpected message %+v", w.msgs[0])
	}
}

func TestNewProducerValidatesConfig(t *testing.T) {
	if _, err := NewProducer(); err == nil {
		t.Fatalf("expected error without brokers")
	}
	if _, err := NewProducer(WithBrokers([]string{"localhost:9092"}), WithRequiredAcks(3)); err == nil {
		t.Fatalf("expected error for acks=3")
	}
}
