package kraken

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"

	"SpotAgent/internal/domain/models"
	"SpotAgent/internal/domain/repository"
)

type balanceEx struct {
	Balance   string `json:"balance"`
	HoldTrade string `json:"hold_trade"`
	Credit    string `json:"credit"`
}

// FetchBalance reads BalanceEx and falls back to Balance. Both shapes
// (plain amount string or an object with balance/hold_trade) are accepted;
// missing fields count as zero. Earn variants such as "ETH.F" are skipped.
func (c *Client) FetchBalance(ctx context.Context) (models.Balances, error) {
	var raw map[string]json.RawMessage
	err := c.private(ctx, "BalanceEx", nil, &raw)
	if err != nil {
		if errors.Is(err, repository.ErrTransient) {
			return nil, err
		}
		c.l.Debug("BalanceEx unavailable, using Balance")
		if err := c.private(ctx, "Balance", nil, &raw); err != nil {
			return nil, err
		}
	}
	return parseBalances(raw), nil
}

func parseBalances(raw map[string]json.RawMessage) models.Balances {
	out := models.Balances{}
	for code, v := range raw {
		if strings.Contains(code, ".") {
			continue
		}
		asset := CanonicalAsset(code)
		var e models.BalanceEntry
		var amount string
		if err := json.Unmarshal(v, &amount); err == nil {
			e.Total = parseFloat(amount)
			e.Free = e.Total
		} else {
			var ex balanceEx
			if err := json.Unmarshal(v, &ex); err != nil {
				continue
			}
			e.Total = parseFloat(ex.Balance)
			e.Used = parseFloat(ex.HoldTrade)
			e.Free = e.Total - e.Used
			if e.Free < 0 {
				e.Free = 0
			}
		}
		prev := out[asset]
		out[asset] = models.BalanceEntry{Free: prev.Free + e.Free, Used: prev.Used + e.Used, Total: prev.Total + e.Total}
	}
	return out
}

type feeTier struct {
	Fee string `json:"fee"`
}

type tradeVolume struct {
	Fees      map[string]feeTier `json:"fees"`
	FeesMaker map[string]feeTier `json:"fees_maker"`
}

// FetchTradingFees returns the account's taker/maker rates as fractions.
// Missing values keep the defaults.
func (c *Client) FetchTradingFees(ctx context.Context) (models.Fees, error) {
	fees := models.DefaultFees()
	params := url.Values{}
	if id := c.anyMarketID(); id != "" {
		params.Set("pair", id)
	}
	var tv tradeVolume
	if err := c.private(ctx, "TradeVolume", params, &tv); err != nil {
		return fees, err
	}
	for _, f := range tv.Fees {
		if v := parseFloat(f.Fee); v > 0 {
			fees.Taker = v / 100
		}
		break
	}
	for _, f := range tv.FeesMaker {
		if v := parseFloat(f.Fee); v > 0 {
			fees.Maker = v / 100
		}
		break
	}
	return fees, nil
}
