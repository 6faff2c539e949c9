package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"SpotAgent/internal/domain/models"
	domrepo "SpotAgent/internal/domain/repository"
	"SpotAgent/pkg/util"
)

func buySignal() models.Signal {
	return models.Signal{
		Symbol: "BTC/USD", Timestamp: testNow, ExecutionPrice: 100, SignalPrice: 100, ATR: 1,
		Indicators: models.Indicators{RSI: 34, ATRPct: 1}, Confidence: 0.9, Threshold: 0.5,
		Action: models.ActionBuy,
	}
}

func TestRiskGateRejectsAtDailyLossLimit(t *testing.T) {
	h := newHarness(t, nil)
	h.st.Daily.RealizedPnLNet = -100
	before := h.st.Daily

	if err := h.agent.enter(context.Background(), buySignal(), testNow); err != nil {
		t.Fatalf("enter: %v", err)
	}
	if h.ex.buys != 0 || h.pm.HasOpen() {
		t.Fatalf("no order expected, buys=%d open=%v", h.ex.buys, h.pm.HasOpen())
	}
	if h.st.Daily != before {
		t.Fatalf("daily stats changed: %+v", h.st.Daily)
	}
}

func TestTickSkipsScanAtDailyLimit(t *testing.T) {
	h := newHarness(t, nil)
	h.st.Daily.RealizedPnLNet = -150

	if err := h.agent.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if h.ex.ohlcvCalls != 0 || h.ex.buys != 0 {
		t.Fatalf("tick should stop before scanning, ohlcv=%d buys=%d", h.ex.ohlcvCalls, h.ex.buys)
	}
	if _, ok := h.st.Snapshot(); !ok {
		t.Fatalf("status snapshot not published")
	}
}

func TestEnterOpensApprovedBuy(t *testing.T) {
	h := newHarness(t, nil)
	h.ex.balances["USD"] = models.BalanceEntry{Free: 500, Total: 500}

	if err := h.agent.enter(context.Background(), buySignal(), testNow); err != nil {
		t.Fatalf("enter: %v", err)
	}
	if h.ex.buys != 1 || !h.pm.HasOpen() {
		t.Fatalf("expected one buy and an open position")
	}
	p := h.pm.Positions()[0]
	if p.BalanceBefore != 500 || p.StopLoss >= p.EntryPrice || p.TakeProfit <= p.EntryPrice {
		t.Fatalf("unexpected position %+v", p)
	}
	if !h.notifier.has(models.NotifyTradeOpen) {
		t.Fatalf("trade-open notification missing")
	}
}

func TestEnterDisabledTradingPlacesNothing(t *testing.T) {
	h := newHarness(t, func(c *AgentConfig) { c.EnableTrading = false })
	if err := h.agent.enter(context.Background(), buySignal(), testNow); err != nil {
		t.Fatalf("enter: %v", err)
	}
	if h.ex.buys != 0 {
		t.Fatalf("buy placed with trading disabled")
	}
}

func TestRolloverKeepsOpenPosition(t *testing.T) {
	h := newHarness(t, nil)
	p := h.withOpenPosition(t)
	h.st.Daily = models.DailyStats{Date: "2026-03-01", TradesCount: 1, RealizedPnLNet: 3.5}
	h.store.closed = append(h.store.closed, models.ClosedTrade{
		Position: models.Position{ID: 9, Symbol: "BTC/USD", Qty: 0.5, EntryPrice: 90},
		PnLNet:   3.5, ExitReason: models.ExitTakeProfit,
		ClosedAt: time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC),
	})
	h.ex.balances["BTC"] = models.BalanceEntry{Free: 0.8, Total: 0.8}
	h.ex.balances["USD"] = models.BalanceEntry{Free: 500, Total: 500}

	if err := h.agent.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	if len(h.ex.sells) != 1 || math.Abs(h.ex.sells[0].qty-0.3) > 1e-9 {
		t.Fatalf("expected orphan sell of 0.3, got %+v", h.ex.sells)
	}
	if len(h.store.upserts) == 0 {
		t.Fatalf("no daily summary written")
	}
	y := h.store.upserts[0]
	if !y.Day.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) || y.Trades != 1 || y.NetPnL != 3.5 {
		t.Fatalf("unexpected summary for previous day: %+v", y)
	}
	if h.st.Daily != (models.DailyStats{Date: "2026-03-02"}) {
		t.Fatalf("daily stats not reset: %+v", h.st.Daily)
	}
	open := h.pm.Positions()
	if len(open) != 1 || open[0].ID != p.ID || open[0].Qty != p.Qty || len(h.store.open) != 1 {
		t.Fatalf("open position disturbed: %+v", open)
	}
	if h.st.DayStartEquity != 550 {
		t.Fatalf("day-start equity = %v, want 550", h.st.DayStartEquity)
	}
	if !h.notifier.has(models.NotifyDailySummary) {
		t.Fatalf("daily summary notification missing")
	}
}

func TestEmergencyFlatClosesAndLearns(t *testing.T) {
	h := newHarness(t, nil)
	h.withOpenPosition(t)
	h.st.RequestEmergencyFlat()
	h.st.RequestManualClose()

	if err := h.agent.drainOperatorCloses(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if h.pm.HasOpen() || len(h.store.closed) != 1 {
		t.Fatalf("position should be closed")
	}
	if r := h.store.closed[0].ExitReason; r != models.ExitEmergencyFlat {
		t.Fatalf("exit reason %s", r)
	}
	if flat, manual, _ := h.st.Pending(); flat || manual {
		t.Fatalf("operator flags not cleared")
	}
	if h.st.Daily.TradesCount != 1 || len(h.st.Learning) != 1 || len(h.store.weights) != 1 {
		t.Fatalf("close not folded into state: trades=%d learning=%d weights=%d",
			h.st.Daily.TradesCount, len(h.st.Learning), len(h.store.weights))
	}
	if h.st.Learning[0].Result != models.ResultLoss {
		t.Fatalf("flat at entry price pays fees and should be a loss")
	}
}

func TestEmergencyFlatRearmsOnSellFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.withOpenPosition(t)
	h.ex.sellErr = errors.New("venue down")
	h.st.RequestEmergencyFlat()

	if err := h.agent.drainOperatorCloses(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if flat, _, _ := h.st.Pending(); !flat {
		t.Fatalf("emergency flat should be re-armed")
	}
	if !h.pm.HasOpen() {
		t.Fatalf("position must stay open")
	}
}

func TestDustCloseSkipsLearning(t *testing.T) {
	h := newHarness(t, nil)
	h.withOpenPosition(t)
	h.ex.sellErr = domrepo.ErrMinAmount
	h.st.RequestManualClose()

	if err := h.agent.drainOperatorCloses(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(h.store.closed) != 1 || h.store.closed[0].ExitReason != models.ExitDustOrphaned {
		t.Fatalf("expected dust close, got %+v", h.store.closed)
	}
	if h.st.Daily.TradesCount != 1 {
		t.Fatalf("dust close still counts as a trade")
	}
	if len(h.st.Learning) != 0 || len(h.store.weights) != 0 {
		t.Fatalf("dust close must not move weights")
	}
}

func TestLowRiskModeLatches(t *testing.T) {
	h := newHarness(t, func(c *AgentConfig) { c.LowRiskWindow, c.LowRiskLosses = 10, 5 })
	for i := 0; i < 5; i++ {
		h.st.Learning = append(h.st.Learning, models.LearningEvent{Result: models.ResultLoss})
	}
	h.agent.checkLowRisk(context.Background())
	h.agent.checkLowRisk(context.Background())

	if !h.st.LowRisk || h.st.Runtime.TPMultiplier != 2.0 {
		t.Fatalf("low-risk not applied: %+v", h.st.Runtime)
	}
	if math.Abs(h.st.Runtime.SLMultiplier-1.08) > 1e-9 {
		t.Fatalf("sl multiplier = %v, want 1.08", h.st.Runtime.SLMultiplier)
	}
	n := 0
	for _, k := range h.notifier.kinds {
		if k == models.NotifyLowRisk {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("low-risk should notify once, got %d", n)
	}
}

func TestOptimizeAppliesRulesAndPersists(t *testing.T) {
	h := newHarness(t, nil)
	h.store.summary = []models.DailySummary{{
		Day: testNow.AddDate(0, 0, -1), Trades: 4, Wins: 1, Losses: 3,
		NetPnL: -10, GrossProfit: 5, GrossLoss: 15,
	}}
	if err := h.agent.optimize(context.Background(), testNow); err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if h.st.Runtime.RSIOversold != 34 || h.st.Runtime.RSIOverbought != 66 {
		t.Fatalf("rsi bands not widened: %+v", h.st.Runtime)
	}
	if len(h.store.weights) != 1 || h.store.weights[0].Performance == nil {
		t.Fatalf("weights row with performance snapshot expected")
	}
	saved, ok, err := h.agent.files.Runtime.Load(models.RuntimeConfig{})
	if err != nil || !ok || saved.RSIOversold != 34 {
		t.Fatalf("runtime file not written: %+v ok=%v err=%v", saved, ok, err)
	}
	if !h.notifier.has(models.NotifyOptimization) {
		t.Fatalf("optimization notification missing")
	}
}

func TestOptimizeWithoutTradesChangesNothing(t *testing.T) {
	h := newHarness(t, nil)
	before := h.st.Runtime
	if err := h.agent.optimize(context.Background(), testNow); err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if h.st.Runtime.RSIOversold != before.RSIOversold || len(h.store.weights) != 0 {
		t.Fatalf("nothing should change without trades")
	}
	if !h.agent.optimizedAt.Equal(testNow) {
		t.Fatalf("optimizedAt not advanced")
	}
}

func TestSafeTickRecoversPanic(t *testing.T) {
	h := newHarness(t, nil)
	h.ex.panicOHLCV = true

	h.agent.safeTick(context.Background())

	if !strings.Contains(h.st.LastError, "panic") {
		t.Fatalf("last error = %q", h.st.LastError)
	}
	if len(h.slept) != 1 || h.slept[0] != DefaultRecoverDelay {
		t.Fatalf("expected recover delay sleep, got %v", h.slept)
	}
	snap, ok := h.st.Snapshot()
	if !ok || snap.LastError == "" {
		t.Fatalf("snapshot should carry the error")
	}
	if !h.notifier.has(models.NotifyError) {
		t.Fatalf("error notification missing")
	}
}

func TestShutdownFlushesTodaysSummary(t *testing.T) {
	h := newHarness(t, nil)
	h.withOpenPosition(t)
	h.store.closed = []models.ClosedTrade{{PnLNet: 2, ClosedAt: testNow.Add(-10 * time.Second)}}

	if err := h.agent.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if len(h.store.upserts) != 1 || util.DayKey(h.store.upserts[0].Day) != "2026-03-02" || h.store.upserts[0].Trades != 1 {
		t.Fatalf("unexpected upserts %+v", h.store.upserts)
	}
	if len(h.store.open) != 1 || h.ex.sells != nil {
		t.Fatalf("shutdown must leave the position open")
	}
}

func TestEnterJudgesCandidateByItsOwnThreshold(t *testing.T) {
	h := newHarness(t, nil)
	h.ex.balances["USD"] = models.BalanceEntry{Free: 500, Total: 500}
	// A later symbol in the scan retuned the shared threshold upwards.
	h.st.Threshold = 0.95

	sig := buySignal()
	sig.Confidence, sig.Threshold = 0.9, 0.6
	if err := h.agent.enter(context.Background(), sig, testNow); err != nil {
		t.Fatalf("enter: %v", err)
	}
	if h.ex.buys != 1 || !h.pm.HasOpen() {
		t.Fatalf("buy scored above its own threshold was rejected, buys=%d", h.ex.buys)
	}
}

func TestEnterRejectsBelowCandidateThreshold(t *testing.T) {
	h := newHarness(t, nil)
	h.st.Threshold = 0.5

	sig := buySignal()
	sig.Confidence, sig.Threshold = 0.9, 0.92
	if err := h.agent.enter(context.Background(), sig, testNow); err != nil {
		t.Fatalf("enter: %v", err)
	}
	if h.ex.buys != 0 {
		t.Fatalf("buy below its own threshold must not be placed")
	}
}

func quietRows(close float64, n int) []models.RawRow {
	start := testNow.Truncate(time.Minute).Add(-time.Duration(n-1) * time.Minute)
	rows := make([]models.RawRow, 0, n)
	for i := 0; i < n; i++ {
		ts := start.Add(time.Duration(i) * time.Minute).UnixMilli()
		rows = append(rows, models.RawRow{ts, close, close + 0.01, close - 0.01, close, 10.0})
	}
	return rows
}

func TestManageTrailsOnCurrentVolatility(t *testing.T) {
	h := newHarness(t, nil)
	h.withOpenPosition(t)
	h.ex.price = 105
	h.ex.rows = quietRows(105, 60)

	if err := h.agent.managePositions(context.Background(), testNow); err != nil {
		t.Fatalf("manage: %v", err)
	}
	// Entry ATR% was 0.5; the quiet tape selects the tight buffer.
	p := h.pm.Positions()[0]
	if p.StopLoss != 101.25 || h.store.open[0].StopLoss != 101.25 {
		t.Fatalf("expected stored tight stop 101.25, got mem=%v store=%v", p.StopLoss, h.store.open[0].StopLoss)
	}
}

func TestManageWithoutCandlesUsesEntryVolatility(t *testing.T) {
	h := newHarness(t, nil)
	h.withOpenPosition(t)
	h.ex.price = 105

	if err := h.agent.managePositions(context.Background(), testNow); err != nil {
		t.Fatalf("manage: %v", err)
	}
	if p := h.pm.Positions()[0]; p.StopLoss != 100.5 {
		t.Fatalf("expected normal-buffer stop 100.5, got %v", p.StopLoss)
	}
}

func TestEnterUnconfirmedBuyLeavesSlotEmpty(t *testing.T) {
	h := newHarness(t, nil)
	h.ex.buyErr = fmt.Errorf("kraken AddOrder BTC/USD: connection reset: %w", domrepo.ErrOrderUnconfirmed)

	if err := h.agent.enter(context.Background(), buySignal(), testNow); err != nil {
		t.Fatalf("unconfirmed buy should be reported, not fail the tick: %v", err)
	}
	if h.pm.HasOpen() || len(h.store.open) != 0 {
		t.Fatalf("no trade may be recorded for an unconfirmed buy")
	}
	if !h.notifier.has(models.NotifyError) {
		t.Fatalf("operator not told about the unconfirmed buy")
	}
}
