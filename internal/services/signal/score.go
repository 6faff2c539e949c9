package signal

import (
	"math"

	"SpotAgent/internal/domain/models"
)

const rsiSlope = 0.2

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// RSIScore rises above 0.5 the deeper rsi sits below oversold and falls
// below 0.5 the further it climbs past overbought.
func RSIScore(rsi, oversold, overbought float64) float64 {
	switch {
	case rsi < oversold:
		return sigmoid(rsiSlope * (oversold - rsi))
	case rsi > overbought:
		return 1 - sigmoid(rsiSlope*(rsi-overbought))
	default:
		return 0.5
	}
}

func Score(ind models.Indicators, th Thresholds) models.ComponentScores {
	s := models.ComponentScores{RSI: RSIScore(ind.RSI, th.RSIOversold, th.RSIOverbought)}
	if ind.EMAFast > ind.EMASlow {
		s.EMA = 1
	}
	if inBand(ind.ATRPct, th.ATRLowPct, th.ATRHighPct) {
		s.ATR = 1
	}
	if ind.VolZ >= th.VolZMin {
		s.Vol = 1
	}
	return s
}

// Confidence is the weight-normalized score sum.
func Confidence(s models.ComponentScores, w models.Weights) float64 {
	sum := w.Sum()
	if sum <= 0 {
		return 0
	}
	return (s.RSI*w.RSI + s.EMA*w.EMA + s.ATR*w.ATR + s.Vol*w.Vol) / sum
}
