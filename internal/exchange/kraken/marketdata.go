package kraken

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"SpotAgent/internal/domain/models"
	"SpotAgent/internal/domain/repository"
)

// FetchOHLCV returns the newest limit rows as
// [ms, open, high, low, close, volume]. Kraken serves up to 720 bars.
func (c *Client) FetchOHLCV(ctx context.Context, symbol string, tf repository.Timeframe, limit int) ([]models.RawRow, error) {
	m, err := c.market(symbol)
	if err != nil {
		return nil, err
	}
	q := url.Values{"pair": {m.ID}, "interval": {strconv.Itoa(tf.Minutes())}}
	var result map[string]json.RawMessage
	if err := c.public(ctx, "OHLC", q, &result); err != nil {
		return nil, err
	}

	var rows [][]any
	for key, raw := range result {
		if key == "last" {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&rows); err != nil {
			return nil, fmt.Errorf("kraken OHLC decode: %w", err)
		}
		break
	}

	out := make([]models.RawRow, 0, len(rows))
	for _, r := range rows {
		if len(r) < 7 {
			out = append(out, models.RawRow(r))
			continue
		}
		var ts any
		if n, ok := r[0].(json.Number); ok {
			if sec, err := n.Int64(); err == nil {
				ts = sec * 1000
			}
		}
		out = append(out, models.RawRow{ts, r[1], r[2], r[3], r[4], r[6]})
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type tickerInfo struct {
	Ask  []string `json:"a"`
	Bid  []string `json:"b"`
	Last []string `json:"c"`
}

// FetchTicker prefers a fresh websocket price and falls back to REST.
func (c *Client) FetchTicker(ctx context.Context, symbol string) (models.Ticker, error) {
	canon := c.NormalizeSymbol(symbol)
	if c.stream != nil {
		if t, ok := c.stream.Last(canon, c.wsMaxAge); ok {
			return t, nil
		}
	}
	m, err := c.market(canon)
	if err != nil {
		return models.Ticker{}, err
	}
	var result map[string]tickerInfo
	if err := c.public(ctx, "Ticker", url.Values{"pair": {m.ID}}, &result); err != nil {
		return models.Ticker{}, err
	}
	for _, info := range result {
		t := models.Ticker{Symbol: canon, Timestamp: time.Now().UTC()}
		if len(info.Last) > 0 {
			t.Last = parseFloat(info.Last[0])
		}
		if len(info.Bid) > 0 {
			t.Bid = parseFloat(info.Bid[0])
		}
		if len(info.Ask) > 0 {
			t.Ask = parseFloat(info.Ask[0])
		}
		if t.Last <= 0 {
			return models.Ticker{}, fmt.Errorf("kraken ticker %s: no last price: %w", canon, repository.ErrTransient)
		}
		return t, nil
	}
	return models.Ticker{}, fmt.Errorf("kraken ticker %s: empty result: %w", canon, repository.ErrTransient)
}
