// Package tuner adapts thresholds and weights. Everything here is a pure
// function of its inputs; the control loop performs the I/O.
package tuner

import "math"

type volBand struct {
	below     float64
	threshold float64
	atrLow    float64
}

var volTable = []volBand{
	{below: 0.05, threshold: 0.20, atrLow: 0.01},
	{below: 0.10, threshold: 0.275, atrLow: 0.0075},
	{below: 0.20, threshold: 0.35, atrLow: 0.0125},
	{below: math.Inf(1), threshold: 0.40, atrLow: 0.02},
}

const (
	thresholdMin = 0.2
	thresholdMax = 0.5
	atrLowMin    = 0.001
	atrLowMax    = 0.05
	extremeLow   = 25.0
	extremeHigh  = 75.0
	extremeEase  = 0.9
)

// Volatility maps averaged ATR% to the confidence threshold and the lower
// ATR% band edge for this tick. Extreme RSI eases the threshold.
func Volatility(atrPct, rsi float64) (threshold, atrLow float64) {
	for _, b := range volTable {
		if atrPct < b.below {
			threshold, atrLow = b.threshold, b.atrLow
			break
		}
	}
	threshold = clamp(threshold, thresholdMin, thresholdMax)
	atrLow = clamp(atrLow, atrLowMin, atrLowMax)
	if rsi < extremeLow || rsi > extremeHigh {
		threshold *= extremeEase
	}
	return threshold, atrLow
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
