package tuner

import (
	"fmt"
	"math"
	"time"

	"SpotAgent/internal/domain/models"
)

const (
	rsiBoundLow  = 30.0
	rsiBoundHigh = 70.0
	multMin      = 0.8
	multMax      = 3.5
	atrLowCap    = 1.0
	// OptimizationDays is how many daily summaries the optimizer aggregates.
	OptimizationDays = 7
)

// Aggregate folds daily summaries (any order) into one metrics value.
// MaxDrawdown is the larger of the worst intraday drawdown and the
// peak-to-trough of cumulative daily net PnL.
func Aggregate(days []models.DailySummary) models.PerformanceMetrics {
	var m models.PerformanceMetrics
	ordered := append([]models.DailySummary(nil), days...)
	sortDays(ordered)

	equity, peak := 0.0, 0.0
	for _, d := range ordered {
		m.Trades += d.Trades
		m.Wins += d.Wins
		m.Losses += d.Losses
		m.NetPnL += d.NetPnL
		m.GrossProfit += d.GrossProfit
		m.GrossLoss += d.GrossLoss
		m.MaxDrawdown = math.Max(m.MaxDrawdown, d.MaxDrawdown)
		equity += d.NetPnL
		peak = math.Max(peak, equity)
		m.MaxDrawdown = math.Max(m.MaxDrawdown, peak-equity)
	}
	fillRatios(&m)
	return m
}

func fillRatios(m *models.PerformanceMetrics) {
	if m.Trades > 0 {
		m.WinRate = float64(m.Wins) / float64(m.Trades)
	}
	m.ProfitFactor = ProfitFactor(m.GrossProfit, m.GrossLoss)
	if m.Wins > 0 {
		m.AvgWin = m.GrossProfit / float64(m.Wins)
	}
	if m.Losses > 0 {
		m.AvgLoss = m.GrossLoss / float64(m.Losses)
	}
}

// ProfitFactor is gross profit over gross loss (both non-negative). With no
// losses it is the profit itself capped to 99 so the value stays finite.
func ProfitFactor(grossProfit, grossLoss float64) float64 {
	if grossLoss <= 0 {
		return math.Min(grossProfit, 99)
	}
	return grossProfit / grossLoss
}

// Optimize applies the rule set to rc. changed lists what moved; when it is
// empty rc is returned as-is and no history entry is added.
func Optimize(rc models.RuntimeConfig, days []models.DailySummary, riskPerTrade float64, now time.Time) (models.RuntimeConfig, []string, models.PerformanceMetrics) {
	m := Aggregate(days)
	if m.Trades == 0 {
		return rc, nil, m
	}
	next := rc
	var changes []string
	set := func(name string, ptr *float64, v float64) {
		if v != *ptr {
			changes = append(changes, fmt.Sprintf("%s %.4g->%.4g", name, *ptr, v))
			*ptr = v
		}
	}

	if m.WinRate < 0.52 {
		set("rsi_oversold", &next.RSIOversold, math.Max(rsiBoundLow, next.RSIOversold-1))
		set("rsi_overbought", &next.RSIOverbought, math.Min(rsiBoundHigh, next.RSIOverbought+1))
	}
	if m.ProfitFactor < 1.2 {
		set("tp_multiplier", &next.TPMultiplier, math.Min(multMax, next.TPMultiplier*1.1))
	}
	if riskPerTrade > 0 && m.MaxDrawdown > 8*riskPerTrade {
		set("atr_low_pct", &next.ATRLowPct, math.Min(atrLowCap, next.ATRLowPct+0.1))
	}
	if m.WinRate > 0.65 && m.ProfitFactor < 1.5 {
		set("tp_multiplier", &next.TPMultiplier, math.Min(multMax, next.TPMultiplier*1.05))
	}
	if m.AvgLoss > m.AvgWin && m.AvgWin > 0 {
		set("sl_multiplier", &next.SLMultiplier, math.Max(multMin, next.SLMultiplier*0.95))
	}

	if len(changes) == 0 {
		return rc, nil, m
	}
	next.LastOptimizedAt = now
	next.History = appendHistory(rc.History, models.OptimizationRecord{At: now, Changes: changes, Metrics: m})
	return next, changes, m
}

func appendHistory(h []models.OptimizationRecord, r models.OptimizationRecord) []models.OptimizationRecord {
	out := append(append([]models.OptimizationRecord(nil), h...), r)
	if len(out) > models.MaxOptimizationHistory {
		out = out[len(out)-models.MaxOptimizationHistory:]
	}
	return out
}

// LowRisk reports whether the last window learning events hold at least
// minLosses losses.
func LowRisk(events []models.LearningEvent, window, minLosses int) bool {
	if window <= 0 || minLosses <= 0 {
		return false
	}
	if len(events) > window {
		events = events[len(events)-window:]
	}
	losses := 0
	for _, e := range events {
		if e.Result == models.ResultLoss {
			losses++
		}
	}
	return losses >= minLosses
}

// ApplyLowRisk caps tp_multiplier at 2.0 and tightens sl_multiplier by 10%.
func ApplyLowRisk(rc models.RuntimeConfig) models.RuntimeConfig {
	rc.TPMultiplier = math.Min(rc.TPMultiplier, 2.0)
	rc.SLMultiplier = math.Max(multMin, rc.SLMultiplier*0.9)
	return rc
}
