package models

import (
	"fmt"
	"time"
)

const (
	WeightMin = 0.1
	WeightMax = 0.6
)

// Weights scale the four component scores. Each in [0.1, 0.6], sum 1.
type Weights struct {
	RSI float64 `json:"w_rsi"`
	EMA float64 `json:"w_ema"`
	ATR float64 `json:"w_atr"`
	Vol float64 `json:"w_vol"`
}

func DefaultWeights() Weights {
	return Weights{RSI: 0.40, EMA: 0.30, ATR: 0.15, Vol: 0.15}
}

func (w Weights) Sum() float64 {
	return w.RSI + w.EMA + w.ATR + w.Vol
}

func (w Weights) Slice() [4]float64 {
	return [4]float64{w.RSI, w.EMA, w.ATR, w.Vol}
}

func WeightsFromSlice(v [4]float64) Weights {
	return Weights{RSI: v[0], EMA: v[1], ATR: v[2], Vol: v[3]}
}

func (w Weights) String() string {
	return fmt.Sprintf("rsi=%.3f ema=%.3f atr=%.3f vol=%.3f", w.RSI, w.EMA, w.ATR, w.Vol)
}

// WeightsRecord is one row of ai_weights.
type WeightsRecord struct {
	Weights
	RSIOversold   float64             `json:"rsi_oversold"`
	RSIOverbought float64             `json:"rsi_overbought"`
	ATRLowPct     float64             `json:"atr_low_pct"`
	ATRHighPct    float64             `json:"atr_high_pct"`
	Performance   *PerformanceMetrics `json:"performance_snapshot,omitempty"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// RuntimeConfig holds the thresholds the optimizer adapts. Persisted to its own file.
type RuntimeConfig struct {
	RSIOversold     float64              `json:"rsi_oversold"`
	RSIOverbought   float64              `json:"rsi_overbought"`
	ATRLowPct       float64              `json:"atr_low_pct"`
	ATRHighPct      float64              `json:"atr_high_pct"`
	TPMultiplier    float64              `json:"tp_multiplier"`
	SLMultiplier    float64              `json:"sl_multiplier"`
	LastOptimizedAt time.Time            `json:"last_optimized_at"`
	History         []OptimizationRecord `json:"optimization_history"`
}

const MaxOptimizationHistory = 10

type OptimizationRecord struct {
	At      time.Time          `json:"at"`
	Changes []string           `json:"changes"`
	Metrics PerformanceMetrics `json:"metrics"`
}

// PerformanceMetrics aggregates a window of daily summaries.
type PerformanceMetrics struct {
	Trades       int     `json:"trades"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	NetPnL       float64 `json:"net_pnl"`
	GrossProfit  float64 `json:"gross_profit"`
	GrossLoss    float64 `json:"gross_loss"`
	WinRate      float64 `json:"win_rate"`
	ProfitFactor float64 `json:"profit_factor"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	AvgWin       float64 `json:"avg_win"`
	AvgLoss      float64 `json:"avg_loss"`
}

type LearningResult string

const (
	ResultProfit LearningResult = "PROFIT"
	ResultLoss   LearningResult = "LOSS"
)

const MaxLearningEvents = 50

type LearningEvent struct {
	Timestamp  time.Time      `json:"timestamp"`
	TradeID    int64          `json:"trade_id"`
	Symbol     string         `json:"symbol"`
	Result     LearningResult `json:"result"`
	PnLNet     float64        `json:"pnl_net"`
	Reason     string         `json:"reason"`
	Adjustment string         `json:"adjustment"`
	Weights    Weights        `json:"weights"`
}
