package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryTryLockExpires(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mc := NewMemoryCache(WithMemoryCleanup(0), WithMemoryClock(func() time.Time { return now }))
	defer mc.Close()
	ctx := context.Background()

	ok, _ := mc.TryLock(ctx, "rsi_alert:BTC-USD", 10*time.Minute)
	if !ok {
		t.Fatalf("first lock should succeed")
	}
	ok, _ = mc.TryLock(ctx, "rsi_alert:BTC-USD", 10*time.Minute)
	if ok {
		t.Fatalf("second lock within ttl should fail")
	}
	now = now.Add(10 * time.Minute)
	ok, _ = mc.TryLock(ctx, "rsi_alert:BTC-USD", 10*time.Minute)
	if !ok {
		t.Fatalf("lock should be free after ttl")
	}
}

func TestMemoryGetDecodesJSON(t *testing.T) {
	mc := NewMemoryCache(WithMemoryCleanup(0))
	defer mc.Close()
	ctx := context.Background()

	type snap struct {
		Equity float64 `json:"equity"`
	}
	if err := mc.Set(ctx, "status", snap{Equity: 12.5}, 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got snap
	if err := mc.Get(ctx, "status", &got); err != nil || got.Equity != 12.5 {
		t.Fatalf("unexpected %v %+v", err, got)
	}
	if err := mc.Get(ctx, "missing", &got); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss, got %v", err)
	}
}

func TestSymbolKey(t *testing.T) {
	if got := SymbolKey("rsi_alert", "btc/usd"); got != "rsi_alert:BTC-USD" {
		t.Fatalf("unexpected key %s", got)
	}
}
