package signal

import (
	"math"
	"testing"
	"time"

	"SpotAgent/internal/domain/models"
)

var at = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func s1Indicators() models.Indicators {
	return models.Indicators{
		RSI: 34, EMAFast: 100.5, EMASlow: 100.0, EMATrend: 99.0,
		ATR: 0.5, ATRPct: 0.5, VolZ: 1.0, EMAFastUp: true,
	}
}

func s1Thresholds() Thresholds {
	return Thresholds{RSIOversold: 38, RSIOverbought: 62, ATRLowPct: 0.4, ATRHighPct: 2.0, VolZMin: 0.5, Confidence: 0.5}
}

var equal = models.Weights{RSI: 0.25, EMA: 0.25, ATR: 0.25, Vol: 0.25}

func TestAcceptedBuy(t *testing.T) {
	e := NewEngine()
	sig := e.Evaluate("X/Q", s1Indicators(), 100.6, 100.6, equal, s1Thresholds(), at)
	if sig.Action != models.ActionBuy {
		t.Fatalf("expected BUY, got %s (%+v)", sig.Action, sig.Conditions)
	}
	want := (RSIScore(34, 38, 62) + 3) / 4
	if math.Abs(sig.Confidence-want) > 1e-12 || sig.Confidence < 0.85 {
		t.Fatalf("confidence %v, want %v >= 0.85", sig.Confidence, want)
	}
	if sig.ATR != 0.5 || sig.ExecutionPrice != 100.6 {
		t.Fatalf("unexpected signal prices: %+v", sig)
	}
}

func TestBoundaries(t *testing.T) {
	e := NewEngine()
	cases := []struct {
		name   string
		mutate func(*models.Indicators, *Thresholds, *float64)
		buy    bool
	}{
		{"rsi equal to oversold is not oversold", func(i *models.Indicators, th *Thresholds, _ *float64) { i.RSI = th.RSIOversold }, false},
		{"extreme rsi bypasses regime", func(i *models.Indicators, _ *Thresholds, px *float64) { i.RSI = 29; *px = 98 }, true},
		{"regime blocks when rsi above 30", func(i *models.Indicators, _ *Thresholds, px *float64) { *px = 98 }, false},
		{"atr at lower bound is in band", func(i *models.Indicators, th *Thresholds, _ *float64) { i.ATRPct = th.ATRLowPct }, true},
		{"atr at upper bound is in band", func(i *models.Indicators, th *Thresholds, _ *float64) { i.ATRPct = th.ATRHighPct }, true},
		{"atr above band", func(i *models.Indicators, th *Thresholds, _ *float64) { i.ATRPct = th.ATRHighPct + 0.01 }, false},
		{"volume below minimum", func(i *models.Indicators, _ *Thresholds, _ *float64) { i.VolZ = 0.49 }, false},
		{"falling ema20 fails momentum", func(i *models.Indicators, _ *Thresholds, _ *float64) { i.EMAFastUp = false }, false},
		{"bearish trend", func(i *models.Indicators, _ *Thresholds, _ *float64) { i.EMAFast = 99.9 }, false},
	}
	for _, tc := range cases {
		ind, th, px := s1Indicators(), s1Thresholds(), 100.6
		tc.mutate(&ind, &th, &px)
		sig := e.Evaluate("X/Q", ind, px, px, equal, th, at)
		if (sig.Action == models.ActionBuy) != tc.buy {
			t.Fatalf("%s: action=%s conditions=%+v", tc.name, sig.Action, sig.Conditions)
		}
	}
}

func TestConfidenceAtThresholdPasses(t *testing.T) {
	e := NewEngine()
	ind, th := s1Indicators(), s1Thresholds()
	th.Confidence = Confidence(Score(ind, th), equal)
	sig := e.Evaluate("X/Q", ind, 100.6, 100.6, equal, th, at)
	if !sig.Conditions.ConfidenceOK || sig.Action != models.ActionBuy {
		t.Fatalf("confidence equal to threshold should pass: %+v", sig)
	}
	th.Confidence += 1e-9
	if sig = e.Evaluate("X/Q", ind, 100.6, 100.6, equal, th, at); sig.Action == models.ActionBuy {
		t.Fatalf("confidence below threshold should not buy")
	}
}

func TestMomentumCanBeDisabled(t *testing.T) {
	e := NewEngine(WithMomentumConfirm(false))
	ind := s1Indicators()
	ind.EMAFastUp = false
	if sig := e.Evaluate("X/Q", ind, 100.6, 100.6, equal, s1Thresholds(), at); sig.Action != models.ActionBuy {
		t.Fatalf("expected BUY with momentum confirmation off, got %+v", sig.Conditions)
	}
}

func TestSellOnlyWithBothBias(t *testing.T) {
	ind := s1Indicators()
	ind.RSI = 70
	long := NewEngine().Evaluate("X/Q", ind, 100.6, 100.6, equal, s1Thresholds(), at)
	if long.Action != models.ActionNone {
		t.Fatalf("LONG_ONLY must never sell, got %s", long.Action)
	}
	both := NewEngine(WithSideBias(models.SideBiasBoth)).Evaluate("X/Q", ind, 100.6, 100.6, equal, s1Thresholds(), at)
	if both.Action != models.ActionSell {
		t.Fatalf("expected SELL, got %s", both.Action)
	}
}

func TestRSIScoreShape(t *testing.T) {
	if RSIScore(50, 35, 65) != 0.5 {
		t.Fatalf("neutral rsi should score 0.5")
	}
	if s := RSIScore(20, 35, 65); s <= 0.5 || s >= 1 {
		t.Fatalf("oversold score out of range: %v", s)
	}
	if s := RSIScore(80, 35, 65); s >= 0.5 || s <= 0 {
		t.Fatalf("overbought score out of range: %v", s)
	}
}

func TestDecideIgnoresInProgressCandle(t *testing.T) {
	candles := make([]models.Candle, 0, 260)
	for i := 0; i < 260; i++ {
		px := 100 + float64(i)*0.01
		candles = append(candles, models.Candle{Timestamp: int64(i) * 60_000, Open: px, High: px + 0.05, Low: px - 0.05, Close: px, Volume: 1})
	}
	e := NewEngine()
	th := s1Thresholds()
	a := e.Decide("X/Q", candles, equal, th, at)

	spiked := append([]models.Candle(nil), candles...)
	spiked[len(spiked)-1].Close = 50
	spiked[len(spiked)-1].Low = 50
	b := e.Decide("X/Q", spiked, equal, th, at)

	if a.Indicators != b.Indicators {
		t.Fatalf("in-progress candle leaked into indicators:\n%+v\n%+v", a.Indicators, b.Indicators)
	}
	if b.ExecutionPrice != 50 || b.SignalPrice != candles[258].Close {
		t.Fatalf("unexpected prices exec=%v signal=%v", b.ExecutionPrice, b.SignalPrice)
	}
	if !a.Indicators.EMAFastUp || a.Indicators.EMAFast <= a.Indicators.EMASlow {
		t.Fatalf("uptrend not detected: %+v", a.Indicators)
	}
}

func TestIndicatorFallbacks(t *testing.T) {
	candles := []models.Candle{{Close: 10}, {Close: 11}, {Close: 12}}
	ind := NewEngine().Indicators(candles)
	if ind.RSI != FallbackRSI || ind.ATR != FallbackATR || ind.ATRPct != FallbackATRPct || ind.VolZ != 0 {
		t.Fatalf("fallbacks not applied: %+v", ind)
	}
	if ind.EMAFast != 11 || ind.EMATrend != 11 {
		t.Fatalf("ema fallback should be the latest closed close: %+v", ind)
	}
}
