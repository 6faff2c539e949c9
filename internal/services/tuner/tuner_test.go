package tuner

import (
	"math"
	"testing"
	"time"

	"SpotAgent/internal/domain/models"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestVolatilityTable(t *testing.T) {
	cases := []struct {
		atr, rsi       float64
		thresh, atrLow float64
	}{
		{0.01, 50, 0.20, 0.01},
		{0.05, 50, 0.275, 0.0075},
		{0.10, 50, 0.35, 0.0125},
		{0.20, 50, 0.40, 0.02},
		{0.30, 20, 0.36, 0.02},
		{0.30, 80, 0.36, 0.02},
	}
	for _, tc := range cases {
		th, lo := Volatility(tc.atr, tc.rsi)
		if !near(th, tc.thresh) || !near(lo, tc.atrLow) {
			t.Fatalf("Volatility(%v,%v)=(%v,%v) want (%v,%v)", tc.atr, tc.rsi, th, lo, tc.thresh, tc.atrLow)
		}
	}
}

func assertWeightInvariant(t *testing.T, w models.Weights) {
	t.Helper()
	for _, v := range w.Slice() {
		if v < models.WeightMin-1e-12 || v > models.WeightMax+1e-12 {
			t.Fatalf("weight out of bounds: %v", w)
		}
	}
	if math.Abs(w.Sum()-1) > 1e-9 {
		t.Fatalf("weights sum %v: %v", w.Sum(), w)
	}
}

func TestUpdateWeightsDirection(t *testing.T) {
	w := models.DefaultWeights()
	up, _ := UpdateWeights(w, 5, 0.01)
	if up.RSI <= w.RSI || up.ATR >= w.ATR {
		t.Fatalf("profit should favour rsi/ema: %v", up)
	}
	assertWeightInvariant(t, up)
	down, _ := UpdateWeights(w, -5, 0.01)
	if down.RSI >= w.RSI || down.Vol <= w.Vol {
		t.Fatalf("loss should favour atr/vol: %v", down)
	}
	assertWeightInvariant(t, down)
}

func TestUpdateWeightsStaysBoundedOverManyTrades(t *testing.T) {
	w := models.DefaultWeights()
	for i := 0; i < 500; i++ {
		w, _ = UpdateWeights(w, 1, 0.05)
		assertWeightInvariant(t, w)
	}
	for i := 0; i < 500; i++ {
		w, _ = UpdateWeights(w, -1, 0.05)
		assertWeightInvariant(t, w)
	}
}

func TestNormalizePinsBounds(t *testing.T) {
	w := Normalize(models.Weights{RSI: 0.6, EMA: 0.6, ATR: 0.1, Vol: 0.1})
	assertWeightInvariant(t, w)
	if w.ATR != models.WeightMin {
		t.Fatalf("atr should stay pinned at minimum: %v", w)
	}
}

func baseRuntime() models.RuntimeConfig {
	return models.RuntimeConfig{RSIOversold: 35, RSIOverbought: 65, ATRLowPct: 0.05, ATRHighPct: 2, TPMultiplier: 2.4, SLMultiplier: 1.2}
}

func TestOptimizeNoTriggerIsNoop(t *testing.T) {
	days := []models.DailySummary{{Day: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), Trades: 10, Wins: 6, Losses: 4,
		GrossProfit: 60, GrossLoss: 20, NetPnL: 40, MaxDrawdown: 5}}
	rc := baseRuntime()
	got, changes, _ := Optimize(rc, days, 50, time.Now())
	if len(changes) != 0 || len(got.History) != 0 || !got.LastOptimizedAt.IsZero() {
		t.Fatalf("expected no-op, got %v %+v", changes, got)
	}
	again, changes, _ := Optimize(got, days, 50, time.Now())
	if len(changes) != 0 || len(again.History) != 0 {
		t.Fatalf("re-run must stay a no-op")
	}
}

func TestOptimizeRules(t *testing.T) {
	days := []models.DailySummary{{Day: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), Trades: 10, Wins: 4, Losses: 6,
		GrossProfit: 20, GrossLoss: 30, NetPnL: -10, MaxDrawdown: 500}}
	rc := baseRuntime()
	now := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	got, changes, m := Optimize(rc, days, 50, now)
	if m.AvgLoss != 5 || m.AvgWin != 5 {
		t.Fatalf("unexpected averages %+v", m)
	}
	if got.RSIOversold != 34 || got.RSIOverbought != 66 {
		t.Fatalf("rsi bounds not moved: %+v", got)
	}
	if !near(got.TPMultiplier, 2.64) || !near(got.ATRLowPct, 0.15) || got.SLMultiplier != 1.2 {
		t.Fatalf("unexpected multipliers: %+v", got)
	}
	if len(changes) != 4 || len(got.History) != 1 || !got.LastOptimizedAt.Equal(now) {
		t.Fatalf("history not recorded: %v %+v", changes, got.History)
	}
}

func TestOptimizeBoundsAndHistoryCap(t *testing.T) {
	days := []models.DailySummary{{Trades: 4, Wins: 1, Losses: 3, GrossProfit: 1, GrossLoss: 9}}
	rc := baseRuntime()
	rc.RSIOversold, rc.RSIOverbought, rc.TPMultiplier, rc.SLMultiplier = 30, 70, 3.4, 3.5
	for i := 0; i < 15; i++ {
		rc, _, _ = Optimize(rc, days, 50, time.Unix(int64(i), 0))
	}
	if rc.RSIOversold != 30 || rc.RSIOverbought != 70 || rc.TPMultiplier != 3.5 || rc.SLMultiplier < 0.8 {
		t.Fatalf("bounds violated: %+v", rc)
	}
	if len(rc.History) != models.MaxOptimizationHistory {
		t.Fatalf("history length %d", len(rc.History))
	}
}

func TestLowRisk(t *testing.T) {
	var ev []models.LearningEvent
	for i := 0; i < 12; i++ {
		r := models.ResultProfit
		if i >= 7 {
			r = models.ResultLoss
		}
		ev = append(ev, models.LearningEvent{Result: r})
	}
	if !LowRisk(ev, 10, 5) {
		t.Fatalf("5 losses in last 10 should trigger")
	}
	if LowRisk(ev[:11], 10, 5) {
		t.Fatalf("4 losses should not trigger")
	}
	rc := ApplyLowRisk(baseRuntime())
	if rc.TPMultiplier != 2.0 || !near(rc.SLMultiplier, 1.08) {
		t.Fatalf("unexpected low-risk config %+v", rc)
	}
}

func TestSummarizeIsIdempotent(t *testing.T) {
	day := time.Date(2024, 5, 1, 15, 0, 0, 0, time.UTC)
	trades := []models.ClosedTrade{
		{PnLNet: 10, ClosedAt: day.Add(time.Hour)},
		{PnLNet: -4, ClosedAt: day.Add(2 * time.Hour)},
		{PnLNet: -2, ClosedAt: day.Add(3 * time.Hour)},
		{PnLNet: 0, ClosedAt: day.Add(4 * time.Hour)},
	}
	a, b := Summarize(day, trades), Summarize(day, trades)
	if a != b {
		t.Fatalf("summaries differ")
	}
	if a.Trades != 4 || a.Wins != 1 || a.Losses != 2 || a.NetPnL != 4 || a.MaxDrawdown != 6 || a.AvgLoss != 3 {
		t.Fatalf("unexpected summary %+v", a)
	}
	if !a.Day.Equal(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("day not truncated: %v", a.Day)
	}
}
