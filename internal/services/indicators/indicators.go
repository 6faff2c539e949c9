// Package indicators holds the pure technical-indicator kernel. Every
// function returns ok=false when the input is shorter than the period.
package indicators

import (
	"math"

	"SpotAgent/internal/domain/models"
)

// SMA is the arithmetic mean of the last p values.
func SMA(data []float64, p int) (float64, bool) {
	if p <= 0 || len(data) < p {
		return 0, false
	}
	sum := 0.0
	for _, v := range data[len(data)-p:] {
		sum += v
	}
	return sum / float64(p), true
}

// EMA seeds with the SMA of the first p values and smooths the remainder
// with k = 2/(p+1).
func EMA(data []float64, p int) (float64, bool) {
	if p <= 0 || len(data) < p {
		return 0, false
	}
	e, _ := SMA(data[:p], p)
	k := 2.0 / float64(p+1)
	for _, x := range data[p:] {
		e = (x-e)*k + e
	}
	return e, true
}

// RSI averages gains and losses over the last p close-to-close differences.
// Returns 100 when there were no losses.
func RSI(closes []float64, p int) (float64, bool) {
	if p <= 0 || len(closes) < p+1 {
		return 0, false
	}
	var gains, losses float64
	for i := len(closes) - p; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gains += d
		} else {
			losses -= d
		}
	}
	gains /= float64(p)
	losses /= float64(p)
	if losses == 0 {
		return 100, true
	}
	return 100 - 100/(1+gains/losses), true
}

// TrueRange of bar i relative to the previous close. i must be >= 1.
func TrueRange(candles []models.Candle, i int) float64 {
	c, prev := candles[i], candles[i-1].Close
	return math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prev), math.Abs(c.Low-prev)))
}

// ATR is the mean of the last p true ranges.
func ATR(candles []models.Candle, p int) (float64, bool) {
	if p <= 0 || len(candles) < p+1 {
		return 0, false
	}
	sum := 0.0
	for i := len(candles) - p; i < len(candles); i++ {
		sum += TrueRange(candles, i)
	}
	return sum / float64(p), true
}

// ATRPct is ATR as a percentage of the latest close.
func ATRPct(candles []models.Candle, p int) (float64, bool) {
	atr, ok := ATR(candles, p)
	if !ok {
		return 0, false
	}
	last := candles[len(candles)-1].Close
	if last <= 0 {
		return 0, false
	}
	return atr / last * 100, true
}

// AvgATRPct averages ATR% ending at each of the last up-to-window bars.
// Endpoints without enough history are skipped.
func AvgATRPct(candles []models.Candle, p, window int) (float64, bool) {
	if window < 1 {
		window = 1
	}
	sum, n := 0.0, 0
	for k := 0; k < window; k++ {
		end := len(candles) - k
		v, ok := ATRPct(candles[:end], p)
		if !ok {
			break
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// ZScore of the last value against the last p values, population stddev.
// A flat window yields 0.
func ZScore(data []float64, p int) (float64, bool) {
	if p <= 1 || len(data) < p {
		return 0, false
	}
	win := data[len(data)-p:]
	mean, _ := SMA(win, p)
	ss := 0.0
	for _, v := range win {
		ss += (v - mean) * (v - mean)
	}
	std := math.Sqrt(ss / float64(p))
	if std == 0 {
		return 0, true
	}
	return (win[p-1] - mean) / std, true
}
