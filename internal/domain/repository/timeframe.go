package repository

import "time"

// Timeframe is a candle width as the exchange names it.
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
)

var timeframes = map[Timeframe]time.Duration{
	TF1m:  time.Minute,
	TF5m:  5 * time.Minute,
	TF15m: 15 * time.Minute,
	TF1h:  time.Hour,
}

// NormalizeTimeframe maps unknown or empty input to one-minute candles, the
// width the strategy and the time exit are tuned for.
func NormalizeTimeframe(s string) Timeframe {
	if _, ok := timeframes[Timeframe(s)]; ok {
		return Timeframe(s)
	}
	return TF1m
}

// Duration is the candle width; unknown values count as one minute.
func (tf Timeframe) Duration() time.Duration {
	if d, ok := timeframes[tf]; ok {
		return d
	}
	return time.Minute
}

// Minutes is the OHLC "interval" query parameter.
func (tf Timeframe) Minutes() int {
	return int(tf.Duration() / time.Minute)
}
