package indicators

import (
	"math"
	"testing"

	"SpotAgent/internal/domain/models"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestInsufficientDataReturnsNotOK(t *testing.T) {
	if _, ok := SMA([]float64{1, 2}, 3); ok {
		t.Fatalf("SMA should not be ok")
	}
	if _, ok := EMA([]float64{1, 2}, 3); ok {
		t.Fatalf("EMA should not be ok")
	}
	if _, ok := RSI([]float64{1, 2, 3}, 3); ok {
		t.Fatalf("RSI needs p+1 closes")
	}
	if _, ok := ATR(make([]models.Candle, 14), 14); ok {
		t.Fatalf("ATR needs p+1 candles")
	}
	if _, ok := ZScore([]float64{1}, 20); ok {
		t.Fatalf("ZScore should not be ok")
	}
}

func TestEMASeedsWithSMA(t *testing.T) {
	got, ok := EMA([]float64{1, 2, 3, 4}, 3)
	// seed = 2, k = 0.5, then (4-2)*0.5+2 = 3
	if !ok || !approx(got, 3) {
		t.Fatalf("expected 3, got %v", got)
	}
}

func TestRSI(t *testing.T) {
	if got, _ := RSI([]float64{1, 2, 3, 4, 5}, 4); got != 100 {
		t.Fatalf("all gains should be 100, got %v", got)
	}
	// diffs over last 4: +2, -1, +1, -1 -> gains 0.75, losses 0.5 -> rs 1.5 -> 60
	got, ok := RSI([]float64{10, 12, 11, 12, 11}, 4)
	if !ok || !approx(got, 60) {
		t.Fatalf("expected 60, got %v", got)
	}
}

func TestATRUsesPreviousClose(t *testing.T) {
	c := []models.Candle{
		{Close: 10, High: 10, Low: 10},
		{Close: 11, High: 11, Low: 10.5}, // tr = max(0.5, 1, 0.5) = 1
		{Close: 10, High: 11, Low: 9},    // tr = max(2, 0, 2) = 2
	}
	got, ok := ATR(c, 2)
	if !ok || !approx(got, 1.5) {
		t.Fatalf("expected 1.5, got %v", got)
	}
	pct, _ := ATRPct(c, 2)
	if !approx(pct, 15) {
		t.Fatalf("expected 15%%, got %v", pct)
	}
}

func TestAvgATRPctAveragesEndpoints(t *testing.T) {
	c := []models.Candle{
		{Close: 10, High: 10, Low: 10},
		{Close: 10, High: 11, Low: 9},
		{Close: 10, High: 10.5, Low: 9.5},
	}
	// endpoint 3: atr(1)=1 -> 10%; endpoint 2: atr(1)=2 -> 20%; avg 15
	got, ok := AvgATRPct(c, 1, 10)
	if !ok || !approx(got, 15) {
		t.Fatalf("expected 15, got %v", got)
	}
}

func TestZScore(t *testing.T) {
	if got, ok := ZScore([]float64{5, 5, 5, 5}, 4); !ok || got != 0 {
		t.Fatalf("flat window should be 0, got %v", got)
	}
	// mean 2.5, population std sqrt(1.25)
	got, _ := ZScore([]float64{1, 2, 3, 4}, 4)
	if !approx(got, 1.5/math.Sqrt(1.25)) {
		t.Fatalf("unexpected z %v", got)
	}
}
