package kraken

import (
	"context"
	"fmt"
	"strings"

	"SpotAgent/internal/domain/models"
	"SpotAgent/internal/domain/repository"
)

type assetPair struct {
	Altname      string `json:"altname"`
	WSName       string `json:"wsname"`
	Base         string `json:"base"`
	Quote        string `json:"quote"`
	LotDecimals  int32  `json:"lot_decimals"`
	PairDecimals int32  `json:"pair_decimals"`
	OrderMin     string `json:"ordermin"`
	CostMin      string `json:"costmin"`
	Status       string `json:"status"`
}

func (c *Client) LoadMarkets(ctx context.Context) (map[string]models.Market, error) {
	var pairs map[string]assetPair
	if err := c.public(ctx, "AssetPairs", nil, &pairs); err != nil {
		return nil, err
	}
	markets := make(map[string]models.Market, len(pairs))
	byID := make(map[string]string, len(pairs)*2)
	for id, p := range pairs {
		base, quote := CanonicalAsset(p.Base), CanonicalAsset(p.Quote)
		symbol := base + "/" + quote
		if p.WSName != "" {
			symbol = NormalizeSymbol(p.WSName)
		}
		markets[symbol] = models.Market{
			Symbol:          symbol,
			ID:              id,
			WSName:          p.WSName,
			Base:            base,
			Quote:           quote,
			Active:          p.Status == "" || p.Status == "online",
			Spot:            true,
			AmountPrecision: p.LotDecimals,
			PricePrecision:  p.PairDecimals,
			MinAmount:       parseFloat(p.OrderMin),
			MinCost:         parseFloat(p.CostMin),
		}
		byID[strings.ToUpper(id)] = symbol
		if p.Altname != "" {
			byID[strings.ToUpper(p.Altname)] = symbol
		}
	}

	c.mu.Lock()
	c.markets, c.byID = markets, byID
	c.mu.Unlock()

	out := make(map[string]models.Market, len(markets))
	for k, v := range markets {
		out[k] = v
	}
	return out, nil
}

func (c *Client) Market(symbol string) (models.Market, bool) {
	key := c.NormalizeSymbol(symbol)
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.markets[key]
	return m, ok
}

func (c *Client) market(symbol string) (models.Market, error) {
	m, ok := c.Market(symbol)
	if !ok {
		return models.Market{}, fmt.Errorf("%w: %s", repository.ErrUnknownSymbol, symbol)
	}
	return m, nil
}

// anyMarketID returns some loaded pair id, used where an endpoint needs one.
func (c *Client) anyMarketID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, m := range c.markets {
		if m.Active {
			return m.ID
		}
	}
	return ""
}
