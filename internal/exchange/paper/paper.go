// Package paper simulates order execution on top of a live market-data
// exchange. Fills happen at ticker.last; nothing is sent to the venue.
package paper

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"SpotAgent/internal/domain/models"
	"SpotAgent/internal/domain/repository"
	"SpotAgent/pkg/util"

	"github.com/google/uuid"
)

type Exchange struct {
	inner repository.Exchange
	quote string
	clock repository.Clock

	mu       sync.Mutex
	balances map[string]float64
	fees     models.Fees
}

type Option func(*Exchange)

func WithClock(c repository.Clock) Option {
	return func(e *Exchange) { e.clock = c }
}

func WithFees(f models.Fees) Option {
	return func(e *Exchange) { e.fees = f }
}

// New wraps inner with a simulated account holding startQuote of quote.
func New(inner repository.Exchange, quote string, startQuote float64, opts ...Option) *Exchange {
	e := &Exchange{
		inner:    inner,
		quote:    strings.ToUpper(quote),
		clock:    repository.SystemClock{},
		balances: map[string]float64{strings.ToUpper(quote): startQuote},
		fees:     models.DefaultFees(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Exchange) LoadMarkets(ctx context.Context) (map[string]models.Market, error) {
	return e.inner.LoadMarkets(ctx)
}

func (e *Exchange) Market(symbol string) (models.Market, bool) {
	return e.inner.Market(symbol)
}

func (e *Exchange) FetchOHLCV(ctx context.Context, symbol string, tf repository.Timeframe, limit int) ([]models.RawRow, error) {
	return e.inner.FetchOHLCV(ctx, symbol, tf, limit)
}

func (e *Exchange) FetchTicker(ctx context.Context, symbol string) (models.Ticker, error) {
	return e.inner.FetchTicker(ctx, symbol)
}

// FetchTradingFees returns the configured simulation fees.
func (e *Exchange) FetchTradingFees(context.Context) (models.Fees, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fees, nil
}

func (e *Exchange) NormalizeSymbol(symbol string) string {
	return e.inner.NormalizeSymbol(symbol)
}

func (e *Exchange) FetchBalance(context.Context) (models.Balances, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(models.Balances, len(e.balances))
	for k, v := range e.balances {
		out[k] = models.BalanceEntry{Free: v, Total: v}
	}
	return out, nil
}

func (e *Exchange) CreateMarketBuyByCost(ctx context.Context, symbol string, quoteAmount float64) (models.Order, error) {
	if quoteAmount <= 0 {
		return models.Order{}, fmt.Errorf("%w: zero cost", repository.ErrInvalidOrder)
	}
	px, err := e.price(ctx, symbol)
	if err != nil {
		return models.Order{}, err
	}
	return e.fill(symbol, models.SideBuy, quoteAmount/px, px)
}

func (e *Exchange) CreateMarketBuy(ctx context.Context, symbol string, qty float64) (models.Order, error) {
	px, err := e.price(ctx, symbol)
	if err != nil {
		return models.Order{}, err
	}
	return e.fill(symbol, models.SideBuy, qty, px)
}

func (e *Exchange) CreateMarketSell(ctx context.Context, symbol string, qty float64) (models.Order, error) {
	if mkt, ok := e.inner.Market(symbol); ok {
		qty = util.TruncateAmount(qty, mkt.AmountPrecision)
		if mkt.MinAmount > 0 && qty < mkt.MinAmount {
			return models.Order{}, fmt.Errorf("%w: sell %.8f %s", repository.ErrMinAmount, qty, symbol)
		}
	}
	px, err := e.price(ctx, symbol)
	if err != nil {
		return models.Order{}, err
	}
	return e.fill(symbol, models.SideSell, qty, px)
}

func (e *Exchange) price(ctx context.Context, symbol string) (float64, error) {
	t, err := e.inner.FetchTicker(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if t.Last <= 0 {
		return 0, fmt.Errorf("%w: no price for %s", repository.ErrInvalidOrder, symbol)
	}
	return t.Last, nil
}

// fill books the simulated trade. Simulated inventory does not survive a
// restart, so a sell is never refused for lack of base balance.
func (e *Exchange) fill(symbol string, side models.Side, qty, px float64) (models.Order, error) {
	if qty <= 0 {
		return models.Order{}, fmt.Errorf("%w: zero quantity", repository.ErrInvalidOrder)
	}
	base, quote := split(symbol, e.quote)

	e.mu.Lock()
	defer e.mu.Unlock()
	cost := qty * px
	fee := util.RoundMoney(cost * e.fees.Taker)
	switch side {
	case models.SideBuy:
		if e.balances[quote] < cost+fee {
			return models.Order{}, fmt.Errorf("%w: need %.2f %s", repository.ErrInsufficientFunds, cost+fee, quote)
		}
		e.balances[quote] -= cost + fee
		e.balances[base] += qty
	case models.SideSell:
		e.balances[base] -= qty
		if e.balances[base] < 0 {
			e.balances[base] = 0
		}
		e.balances[quote] += cost - fee
	}
	return models.Order{
		ID:          "paper-" + uuid.NewString(),
		Symbol:      symbol,
		Side:        side,
		Status:      "closed",
		Filled:      qty,
		Average:     px,
		Cost:        cost,
		Fee:         fee,
		FeeReported: true,
		Timestamp:   e.clock.Now(),
	}, nil
}

func split(symbol, defQuote string) (string, string) {
	if i := strings.IndexByte(symbol, '/'); i > 0 {
		return symbol[:i], symbol[i+1:]
	}
	return symbol, defQuote
}

var _ repository.Exchange = (*Exchange)(nil)
