package models

import "time"

type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionNone Action = "NONE"
)

type VolatilityLabel string

const (
	VolatilityLow  VolatilityLabel = "LOW"
	VolatilityMed  VolatilityLabel = "MED"
	VolatilityHigh VolatilityLabel = "HIGH"
)

type SideBias string

const (
	SideBiasLongOnly SideBias = "LONG_ONLY"
	SideBiasBoth     SideBias = "BOTH"
)

// AllowsLong is true for every supported bias; kept explicit so a future
// short-only bias cannot silently enable buys.
func (b SideBias) AllowsLong() bool {
	return b == SideBiasLongOnly || b == SideBiasBoth
}

// Indicators is the per-tick snapshot computed on the closed candles.
// ATRPct is the averaged value used by the tuner.
type Indicators struct {
	RSI       float64 `json:"rsi"`
	EMAFast   float64 `json:"ema20"`
	EMASlow   float64 `json:"ema50"`
	EMATrend  float64 `json:"ema200"`
	ATR       float64 `json:"atr"`
	ATRPct    float64 `json:"atr_pct"`
	VolZ      float64 `json:"vol_z"`
	EMAFastUp bool    `json:"ema20_rising"`
}

// ComponentScores are each in [0,1].
type ComponentScores struct {
	RSI float64 `json:"rsi"`
	EMA float64 `json:"ema"`
	ATR float64 `json:"atr"`
	Vol float64 `json:"vol"`
}

// Conditions records every BUY condition so rejected signals can be explained.
type Conditions struct {
	SideAllowed      bool `json:"side_allowed"`
	BullishRegime    bool `json:"bullish_regime"`
	BullishTrend     bool `json:"bullish_trend"`
	Oversold         bool `json:"oversold"`
	Momentum         bool `json:"momentum"`
	VolatilityInBand bool `json:"volatility_in_band"`
	VolumeOK         bool `json:"volume_ok"`
	ConfidenceOK     bool `json:"confidence_ok"`
}

// All reports whether every BUY condition holds.
func (c Conditions) All() bool {
	return c.SideAllowed && c.BullishRegime && c.BullishTrend && c.Oversold &&
		c.Momentum && c.VolatilityInBand && c.VolumeOK && c.ConfidenceOK
}

type Signal struct {
	Symbol          string          `json:"symbol"`
	Timestamp       time.Time       `json:"timestamp"`
	ExecutionPrice  float64         `json:"execution_price"`
	SignalPrice     float64         `json:"signal_price"`
	ATR             float64         `json:"atr"`
	Indicators      Indicators      `json:"indicators"`
	Scores          ComponentScores `json:"component_scores"`
	Confidence      float64         `json:"confidence"`
	Threshold       float64         `json:"confidence_threshold"`
	Conditions      Conditions      `json:"conditions"`
	Action          Action          `json:"action"`
	VolatilityLabel VolatilityLabel `json:"volatility_label"`
}
