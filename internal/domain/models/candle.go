package models

// Candle is one sanitized OHLCV bar. Timestamp is epoch milliseconds.
type Candle struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// RawRow is one row as returned by an exchange before sanitizing:
// [timestamp, open, high, low, close, volume]. Slots may be numbers,
// numeric strings or nil.
type RawRow []any

// RowFromRecord converts a keyed record into a positional row. Missing keys become nil.
func RowFromRecord(rec map[string]any) RawRow {
	ts, ok := rec["timestamp"]
	if !ok {
		ts = rec["time"]
	}
	return RawRow{ts, rec["open"], rec["high"], rec["low"], rec["close"], rec["volume"]}
}

// Closes extracts close prices in order.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func Volumes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}
