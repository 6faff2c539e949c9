package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestAllowRefills(t *testing.T) {
	now := time.Unix(0, 0)
	l := New(WithClock(func() time.Time { return now }))
	for i := 0; i < 3; i++ {
		if !l.Allow("k", 3, 1) {
			t.Fatalf("token %d should be available", i)
		}
	}
	if l.Allow("k", 3, 1) {
		t.Fatalf("bucket should be empty")
	}
	if !l.Allow("other", 3, 1) {
		t.Fatalf("keys must not share buckets")
	}
	now = now.Add(time.Second)
	if !l.Allow("k", 3, 1) {
		t.Fatalf("bucket should refill")
	}
}

func TestWaitHonoursContext(t *testing.T) {
	l := New()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, "k", 1, 0.01); err != nil {
		t.Fatalf("first token should be immediate: %v", err)
	}
	if err := l.Wait(ctx, "k", 1, 0.01); err == nil {
		t.Fatalf("expected context deadline")
	}
}
