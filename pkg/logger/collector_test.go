package logger

import (
	"context"
	"sync"
	"testing"
	"time"
)

type capturePublisher struct {
	mu     sync.Mutex
	topic  string
	batchs [][]AggregatedLogEntry
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.batchs = append(p.batchs, payload.([]AggregatedLogEntry))
	return nil
}

func TestCollectorFoldsRepeatedErrors(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 100,
		Topic:          "agent.errors",
		Publisher:      pub,
	})

	for i := 0; i < 3; i++ {
		c.AddLog("error", "ticker fetch failed", map[string]interface{}{"symbol": "BTC/USD"}, "agent.go:10")
	}
	c.AddLog("error", "ticker fetch failed", map[string]interface{}{"symbol": "ETH/USD"}, "agent.go:10")
	c.Close()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if pub.topic != "agent.errors" {
		t.Fatalf("unexpected topic %q", pub.topic)
	}
	if len(pub.batchs) != 1 {
		t.Fatalf("expected one flushed batch, got %d", len(pub.batchs))
	}
	counts := map[string]int{}
	for _, e := range pub.batchs[0] {
		counts[e.Fields["symbol"].(string)] = e.Count
	}
	if counts["BTC/USD"] != 3 || counts["ETH/USD"] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}
}
