// Package signal turns a candle series into a BUY/SELL/NONE decision.
package signal

import (
	"time"

	"SpotAgent/internal/domain/models"
	"SpotAgent/internal/services/indicators"
)

// Indicator fallbacks applied when a series is too short.
const (
	FallbackRSI    = 50.0
	FallbackATR    = 0.01
	FallbackATRPct = 0.01
	FallbackVolZ   = 0.0
	// ExtremeOversold bypasses the regime filter.
	ExtremeOversold = 30.0
)

type Periods struct {
	RSI       int
	EMAFast   int
	EMASlow   int
	EMATrend  int
	ATR       int
	ATRWindow int
	Volume    int
}

func DefaultPeriods() Periods {
	return Periods{RSI: 14, EMAFast: 20, EMASlow: 50, EMATrend: 200, ATR: 14, ATRWindow: 10, Volume: 20}
}

// Thresholds are the adaptive inputs; the caller owns their current values.
type Thresholds struct {
	RSIOversold   float64
	RSIOverbought float64
	ATRLowPct     float64
	ATRHighPct    float64
	VolZMin       float64
	Confidence    float64
}

type Engine struct {
	periods  Periods
	bias     models.SideBias
	momentum bool
}

type Option func(*Engine)

func WithPeriods(p Periods) Option {
	return func(e *Engine) { e.periods = p }
}

func WithSideBias(b models.SideBias) Option {
	return func(e *Engine) { e.bias = b }
}

// WithMomentumConfirm requires ema20 to be rising for a BUY.
func WithMomentumConfirm(on bool) Option {
	return func(e *Engine) { e.momentum = on }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{periods: DefaultPeriods(), bias: models.SideBiasLongOnly, momentum: true}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) SideBias() models.SideBias { return e.bias }

// Indicators computes the snapshot on the closed part of candles (every row
// but the last) and substitutes fallbacks for anything not computable.
func (e *Engine) Indicators(candles []models.Candle) models.Indicators {
	closed := candles
	if len(closed) > 0 {
		closed = closed[:len(closed)-1]
	}
	closes := models.Closes(closed)
	last := 0.0
	if len(closes) > 0 {
		last = closes[len(closes)-1]
	}
	p := e.periods

	ind := models.Indicators{RSI: FallbackRSI, EMAFast: last, EMASlow: last, EMATrend: last,
		ATR: FallbackATR, ATRPct: FallbackATRPct, VolZ: FallbackVolZ}
	if v, ok := indicators.RSI(closes, p.RSI); ok {
		ind.RSI = v
	}
	if v, ok := indicators.EMA(closes, p.EMAFast); ok {
		ind.EMAFast = v
		if len(closes) > 1 {
			if prev, ok := indicators.EMA(closes[:len(closes)-1], p.EMAFast); ok {
				ind.EMAFastUp = v > prev
			}
		}
	}
	if v, ok := indicators.EMA(closes, p.EMASlow); ok {
		ind.EMASlow = v
	}
	if v, ok := indicators.EMA(closes, p.EMATrend); ok {
		ind.EMATrend = v
	}
	if v, ok := indicators.ATR(closed, p.ATR); ok {
		ind.ATR = v
	}
	if v, ok := indicators.AvgATRPct(closed, p.ATR, p.ATRWindow); ok {
		ind.ATRPct = v
	}
	if v, ok := indicators.ZScore(models.Volumes(closed), p.Volume); ok {
		ind.VolZ = v
	}
	return ind
}

// Decide computes indicators on candles and evaluates them. The last row's
// close is the execution price; the previous close is the signal price.
func (e *Engine) Decide(symbol string, candles []models.Candle, w models.Weights, th Thresholds, at time.Time) models.Signal {
	ind := e.Indicators(candles)
	var exec, sig float64
	if n := len(candles); n > 0 {
		exec = candles[n-1].Close
		sig = exec
		if n > 1 {
			sig = candles[n-2].Close
		}
	}
	return e.Evaluate(symbol, ind, exec, sig, w, th, at)
}

// Evaluate scores a precomputed snapshot. It has no side effects.
func (e *Engine) Evaluate(symbol string, ind models.Indicators, execPrice, signalPrice float64, w models.Weights, th Thresholds, at time.Time) models.Signal {
	scores := Score(ind, th)
	conf := Confidence(scores, w)

	cond := models.Conditions{
		SideAllowed:      e.bias.AllowsLong(),
		BullishRegime:    signalPrice > ind.EMATrend || ind.RSI < ExtremeOversold,
		BullishTrend:     ind.EMAFast > ind.EMASlow,
		Oversold:         ind.RSI < th.RSIOversold,
		Momentum:         !e.momentum || ind.EMAFastUp,
		VolatilityInBand: inBand(ind.ATRPct, th.ATRLowPct, th.ATRHighPct),
		VolumeOK:         ind.VolZ >= th.VolZMin,
		ConfidenceOK:     conf >= th.Confidence,
	}

	action := models.ActionNone
	switch {
	case cond.All():
		action = models.ActionBuy
	case e.bias == models.SideBiasBoth && (ind.RSI > th.RSIOverbought || signalPrice <= ind.EMATrend):
		action = models.ActionSell
	}

	return models.Signal{
		Symbol:          symbol,
		Timestamp:       at,
		ExecutionPrice:  execPrice,
		SignalPrice:     signalPrice,
		ATR:             ind.ATR,
		Indicators:      ind,
		Scores:          scores,
		Confidence:      conf,
		Threshold:       th.Confidence,
		Conditions:      cond,
		Action:          action,
		VolatilityLabel: Label(ind.ATRPct),
	}
}

func inBand(v, lo, hi float64) bool {
	return v >= lo && v <= hi
}

// Label buckets averaged ATR% using the same cut points as the tuner.
func Label(atrPct float64) models.VolatilityLabel {
	switch {
	case atrPct < 0.10:
		return models.VolatilityLow
	case atrPct < 0.20:
		return models.VolatilityMed
	default:
		return models.VolatilityHigh
	}
}
