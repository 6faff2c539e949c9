package models

import "time"

// StatusSnapshot is the read-only view published after each tick.
type StatusSnapshot struct {
	At                  time.Time          `json:"at"`
	DryRun              bool               `json:"dry_run"`
	TradingEnabled      bool               `json:"trading_enabled"`
	Positions           []Position         `json:"positions"`
	Daily               DailyStats         `json:"daily"`
	Weights             Weights            `json:"weights"`
	Runtime             RuntimeConfig      `json:"runtime"`
	ConfidenceThreshold float64            `json:"confidence_threshold"`
	LowRisk             bool               `json:"low_risk"`
	LastPrices          map[string]float64 `json:"last_prices,omitempty"`
	LastSignals         []SignalSummary    `json:"last_signals,omitempty"`
	LastError           string             `json:"last_error,omitempty"`
	Fees                Fees               `json:"fees"`
}

type SignalSummary struct {
	Symbol     string  `json:"symbol"`
	Action     Action  `json:"action"`
	Confidence float64 `json:"confidence"`
	RSI        float64 `json:"rsi"`
	ATRPct     float64 `json:"atr_pct"`
}
