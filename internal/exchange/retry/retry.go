// Package retry decorates an Exchange with the bounded retry policy for
// transient failures. Order placements pin one client order id across
// attempts; an order whose outcome is unknown is reported, never re-sent.
package retry

import (
	"context"
	"errors"
	"time"

	"SpotAgent/internal/domain/models"
	"SpotAgent/internal/domain/repository"
	"SpotAgent/pkg/logger"

	"github.com/google/uuid"
)

// DefaultDelays are the waits before each retry.
var DefaultDelays = []time.Duration{100 * time.Millisecond, 250 * time.Millisecond, 500 * time.Millisecond}

type Exchange struct {
	inner   repository.Exchange
	delays  []time.Duration
	l       *logger.Logger
	metrics repository.Metrics
	sleep   func(ctx context.Context, d time.Duration) error
}

type Option func(*Exchange)

func WithDelays(d ...time.Duration) Option {
	return func(e *Exchange) { e.delays = d }
}

func WithLogger(l *logger.Logger) Option {
	return func(e *Exchange) { e.l = l }
}

// WithMetrics records per-call latency, retries included.
func WithMetrics(m repository.Metrics) Option {
	return func(e *Exchange) { e.metrics = m }
}

func New(inner repository.Exchange, opts ...Option) *Exchange {
	e := &Exchange{inner: inner, delays: DefaultDelays, l: logger.Nop(), sleep: sleepCtx}
	for _, o := range opts {
		o(e)
	}
	return e
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// orderCtx pins the client order id for one logical order.
func orderCtx(ctx context.Context) context.Context {
	if repository.ClientOrderID(ctx) != "" {
		return ctx
	}
	return repository.WithClientOrderID(ctx, uuid.NewString())
}

// do runs fn once plus one retry per delay while the error is transient.
func do[T any](ctx context.Context, e *Exchange, op string, fn func() (T, error)) (T, error) {
	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.RecordLatency(op, time.Since(start).Seconds())
		}
	}()
	var (
		v   T
		err error
	)
	for attempt := 0; ; attempt++ {
		v, err = fn()
		if err == nil || !errors.Is(err, repository.ErrTransient) || attempt >= len(e.delays) {
			return v, err
		}
		e.l.Warn("exchange call failed, retrying", logger.String("op", op),
			logger.Int("attempt", attempt+1), logger.Duration("delay", e.delays[attempt]), logger.Error(err))
		if serr := e.sleep(ctx, e.delays[attempt]); serr != nil {
			return v, err
		}
	}
}

func (e *Exchange) LoadMarkets(ctx context.Context) (map[string]models.Market, error) {
	return do(ctx, e, "load_markets", func() (map[string]models.Market, error) { return e.inner.LoadMarkets(ctx) })
}

func (e *Exchange) Market(symbol string) (models.Market, bool) {
	return e.inner.Market(symbol)
}

func (e *Exchange) FetchOHLCV(ctx context.Context, symbol string, tf repository.Timeframe, limit int) ([]models.RawRow, error) {
	return do(ctx, e, "fetch_ohlcv", func() ([]models.RawRow, error) { return e.inner.FetchOHLCV(ctx, symbol, tf, limit) })
}

func (e *Exchange) FetchTicker(ctx context.Context, symbol string) (models.Ticker, error) {
	return do(ctx, e, "fetch_ticker", func() (models.Ticker, error) { return e.inner.FetchTicker(ctx, symbol) })
}

func (e *Exchange) FetchBalance(ctx context.Context) (models.Balances, error) {
	return do(ctx, e, "fetch_balance", func() (models.Balances, error) { return e.inner.FetchBalance(ctx) })
}

func (e *Exchange) CreateMarketBuyByCost(ctx context.Context, symbol string, quoteAmount float64) (models.Order, error) {
	ctx = orderCtx(ctx)
	return do(ctx, e, "buy_by_cost", func() (models.Order, error) { return e.inner.CreateMarketBuyByCost(ctx, symbol, quoteAmount) })
}

func (e *Exchange) CreateMarketBuy(ctx context.Context, symbol string, qty float64) (models.Order, error) {
	ctx = orderCtx(ctx)
	return do(ctx, e, "buy", func() (models.Order, error) { return e.inner.CreateMarketBuy(ctx, symbol, qty) })
}

func (e *Exchange) CreateMarketSell(ctx context.Context, symbol string, qty float64) (models.Order, error) {
	ctx = orderCtx(ctx)
	return do(ctx, e, "sell", func() (models.Order, error) { return e.inner.CreateMarketSell(ctx, symbol, qty) })
}

func (e *Exchange) FetchTradingFees(ctx context.Context) (models.Fees, error) {
	return do(ctx, e, "fetch_fees", func() (models.Fees, error) { return e.inner.FetchTradingFees(ctx) })
}

func (e *Exchange) NormalizeSymbol(symbol string) string {
	return e.inner.NormalizeSymbol(symbol)
}
