// Package ohlcv turns ragged exchange candle responses into a dense series
// the indicator kernel can always consume.
package ohlcv

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"SpotAgent/internal/domain/models"
)

const (
	// SentinelClose seeds forward-fill when no valid close has been seen.
	SentinelClose = 100000.0
	// MinCandles is the floor guaranteed by padding.
	MinCandles = 30
)

// Sanitize cleans rows and pads the result to MinCandles with flat bars
// stepping backwards by step from the earliest row (or from now when no row
// survived). The result is sorted by timestamp with duplicates collapsed to
// the last occurrence.
func Sanitize(rows []models.RawRow, step time.Duration, now time.Time) []models.Candle {
	if step <= 0 {
		step = time.Minute
	}
	lastClose := SentinelClose
	out := make([]models.Candle, 0, len(rows))
	for _, r := range rows {
		c, ok := cleanRow(r, &lastClose)
		if !ok {
			continue
		}
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	out = dedupe(out)

	if len(out) >= MinCandles {
		return out
	}

	stepMs := step.Milliseconds()
	anchor := now.Truncate(step).UnixMilli() + stepMs
	fill := lastClose
	if len(out) > 0 {
		anchor = out[0].Timestamp
	}
	missing := MinCandles - len(out)
	pad := make([]models.Candle, missing)
	for i := 0; i < missing; i++ {
		pad[i] = models.Candle{
			Timestamp: anchor - int64(missing-i)*stepMs,
			Open:      fill,
			High:      fill,
			Low:       fill,
			Close:     fill,
		}
	}
	return append(pad, out...)
}

func cleanRow(r models.RawRow, lastClose *float64) (models.Candle, bool) {
	if len(r) < 6 {
		return models.Candle{}, false
	}
	ts, ok := number(r[0])
	if !ok || ts < 0 {
		return models.Candle{}, false
	}

	closePx, ok := number(r[4])
	if ok && closePx > 0 {
		*lastClose = closePx
	} else {
		closePx = *lastClose
	}

	open, ok := number(r[1])
	if !ok || open <= 0 {
		open = closePx
	}
	high, ok := number(r[2])
	if !ok {
		high = 0
	}
	high = math.Max(high, math.Max(open, closePx))
	low, ok := number(r[3])
	if !ok || low <= 0 {
		low = math.Min(open, closePx)
	}
	low = math.Min(low, math.Min(open, closePx))
	vol, ok := number(r[5])
	if !ok || vol < 0 {
		vol = 0
	}

	return models.Candle{
		Timestamp: int64(ts),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePx,
		Volume:    vol,
	}, true
}

func dedupe(in []models.Candle) []models.Candle {
	if len(in) < 2 {
		return in
	}
	out := in[:1]
	for _, c := range in[1:] {
		if c.Timestamp == out[len(out)-1].Timestamp {
			out[len(out)-1] = c
			continue
		}
		out = append(out, c)
	}
	return out
}

// number accepts the shapes exchanges actually send: JSON numbers, numeric
// strings and json.Number. Non-finite values are rejected.
func number(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		p, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = p
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = p
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
