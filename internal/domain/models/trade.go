package models

import "time"

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

type ExitReason string

const (
	ExitStopLoss      ExitReason = "STOP_LOSS"
	ExitTakeProfit    ExitReason = "TAKE_PROFIT"
	ExitTime          ExitReason = "TIME_EXIT"
	ExitEmergencyFlat ExitReason = "EMERGENCY_FLAT"
	ExitDustOrphaned  ExitReason = "DUST_ORPHANED"
	ExitManual        ExitReason = "MANUAL"
)

// Position is a live long position. StopLoss follows the trailing stop;
// InitialStopLoss is the stop set at entry and defines the trade's risk.
type Position struct {
	ID              int64     `json:"id"`
	Symbol          string    `json:"symbol"`
	Side            Side      `json:"side"`
	Qty             float64   `json:"qty"`
	EntryPrice      float64   `json:"entry_price"`
	StopLoss        float64   `json:"stop_loss"`
	InitialStopLoss float64   `json:"initial_stop_loss"`
	TakeProfit      float64   `json:"take_profit"`
	AIConfidence    float64   `json:"ai_confidence"`
	ATRPct          float64   `json:"atr_pct"`
	EntryFee        float64   `json:"entry_fee"`
	FeeEstimated    bool      `json:"fee_estimated"`
	BalanceBefore   float64   `json:"balance_before"`
	OpenedAt        time.Time `json:"opened_at"`
}

// InitialRisk is entry minus the initial stop, the R denominator.
func (p Position) InitialRisk() float64 {
	return p.EntryPrice - p.InitialStopLoss
}

type ClosedTrade struct {
	Position
	ExitPrice        float64    `json:"exit_price"`
	ExitFee          float64    `json:"exit_fee"`
	TotalFees        float64    `json:"total_fees"`
	PnLGross         float64    `json:"pnl_gross"`
	PnLNet           float64    `json:"pnl_net"`
	PnLPctNet        float64    `json:"pnl_pct_net"`
	ClosedAt         time.Time  `json:"closed_at"`
	ExitReason       ExitReason `json:"exit_reason"`
	CandlesHeld      int        `json:"candles_held"`
	BalanceAfter     float64    `json:"balance_after"`
	NetBalanceChange float64    `json:"net_balance_change"`
}

// Win reports a strictly positive net result.
func (t ClosedTrade) Win() bool {
	return t.PnLNet > 0
}

// BalanceUpdate is one row rewritten by the offline balance backfill.
type BalanceUpdate struct {
	TradeID int64   `json:"trade_id"`
	Before  float64 `json:"balance_before"`
	After   float64 `json:"balance_after"`
	Net     float64 `json:"net_balance_change"`
}
