package repository

import (
	"testing"
	"time"
)

func TestNormalizeTimeframe(t *testing.T) {
	cases := map[string]Timeframe{"": TF1m, "1m": TF1m, "15m": TF15m, "1h": TF1h, "7m": TF1m}
	for in, want := range cases {
		if got := NormalizeTimeframe(in); got != want {
			t.Fatalf("NormalizeTimeframe(%q)=%s want %s", in, got, want)
		}
	}
	if TF15m.Duration() != 15*time.Minute || TF1h.Minutes() != 60 {
		t.Fatalf("unexpected durations")
	}
}
