package ohlcv

import (
	"math"
	"testing"
	"time"

	"SpotAgent/internal/domain/models"
)

func TestSanitizeEmptyInputPadsWithSentinel(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 30, 0, time.UTC)
	got := Sanitize(nil, time.Minute, now)
	if len(got) != MinCandles {
		t.Fatalf("expected %d candles, got %d", MinCandles, len(got))
	}
	for i, c := range got {
		if c.Close != SentinelClose || c.Open != SentinelClose || c.Volume != 0 {
			t.Fatalf("candle %d not flat sentinel: %+v", i, c)
		}
		if i > 0 && c.Timestamp-got[i-1].Timestamp != time.Minute.Milliseconds() {
			t.Fatalf("padding not in one-minute steps at %d", i)
		}
	}
}

func TestSanitizeForwardFillsAndRepairsShape(t *testing.T) {
	rows := []models.RawRow{
		{int64(60_000), "10", "11", "9", "10.5", "3"},
		{int64(120_000), nil, nil, nil, nil, -5.0},
		{int64(180_000), 12.0, 11.0, 13.0, 12.5, 1.0}, // high below close, low above open
		{int64(240_000), 1.0, 2.0},                    // short row dropped
		{int64(300_000), "x", math.NaN(), 0.0, "13", "2"},
	}
	got := Sanitize(rows, time.Minute, time.Unix(400, 0))
	if len(got) != MinCandles {
		t.Fatalf("expected padding to %d, got %d", MinCandles, len(got))
	}
	tail := got[len(got)-4:]
	if tail[1].Close != 10.5 || tail[1].Open != 10.5 || tail[1].Volume != 0 {
		t.Fatalf("missing slots not forward-filled: %+v", tail[1])
	}
	if tail[2].High != 12.5 || tail[2].Low != 12 {
		t.Fatalf("shape not repaired: %+v", tail[2])
	}
	if tail[3].Open != 13 || tail[3].High != 13 || tail[3].Low != 13 {
		t.Fatalf("open/high/low not derived from close: %+v", tail[3])
	}
	if got[0].Close != 13 {
		t.Fatalf("padding should use last close, got %v", got[0].Close)
	}
	if got[len(got)-5].Timestamp != 0 {
		t.Fatalf("padding should step back from earliest row, got %d", got[len(got)-5].Timestamp)
	}
	for _, c := range got {
		if c.Close <= 0 || c.High < math.Max(c.Open, c.Close) || c.Low > math.Min(c.Open, c.Close) || c.Volume < 0 {
			t.Fatalf("invariant broken: %+v", c)
		}
	}
}

func TestSanitizeSortsAndCollapsesDuplicates(t *testing.T) {
	rows := make([]models.RawRow, 0, 40)
	for i := 39; i >= 0; i-- {
		rows = append(rows, models.RawRow{int64(i * 60_000), 1.0, 1.0, 1.0, float64(i + 1), 1.0})
	}
	rows = append(rows, models.RawRow{int64(0), 5.0, 5.0, 5.0, 5.0, 1.0})
	got := Sanitize(rows, time.Minute, time.Now())
	if len(got) != 40 {
		t.Fatalf("expected 40 candles, got %d", len(got))
	}
	if got[0].Close != 5 || got[39].Close != 40 {
		t.Fatalf("unexpected ordering: first=%v last=%v", got[0].Close, got[39].Close)
	}
}
