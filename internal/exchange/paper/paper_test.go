package paper

import (
	"context"
	"errors"
	"math"
	"testing"

	"SpotAgent/internal/domain/models"
	"SpotAgent/internal/domain/repository"
)

type quotes struct {
	repository.Exchange
	last float64
}

func (q *quotes) FetchTicker(_ context.Context, symbol string) (models.Ticker, error) {
	return models.Ticker{Symbol: symbol, Last: q.last}, nil
}

func (q *quotes) Market(symbol string) (models.Market, bool) {
	return models.Market{Symbol: symbol, AmountPrecision: 8, MinAmount: 0.0001}, true
}

func TestPaperRoundTrip(t *testing.T) {
	inner := &quotes{last: 100}
	e := New(inner, "USD", 1000)
	ctx := context.Background()

	buy, err := e.CreateMarketBuyByCost(ctx, "BTC/USD", 50)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if buy.Filled != 0.5 || buy.Average != 100 || !buy.FeeReported || math.Abs(buy.Fee-0.13) > 1e-9 {
		t.Fatalf("unexpected buy %+v", buy)
	}
	bal, _ := e.FetchBalance(ctx)
	if bal.Free("BTC") != 0.5 || math.Abs(bal.Free("USD")-949.87) > 1e-9 {
		t.Fatalf("unexpected balances %+v", bal)
	}

	inner.last = 110
	sell, err := e.CreateMarketSell(ctx, "BTC/USD", 0.5)
	if err != nil || sell.Average != 110 {
		t.Fatalf("sell: %+v %v", sell, err)
	}
	bal, _ = e.FetchBalance(ctx)
	if bal.Free("BTC") != 0 {
		t.Fatalf("base not released: %+v", bal)
	}
}

func TestPaperRejectsDustAndOverspend(t *testing.T) {
	e := New(&quotes{last: 100}, "USD", 10)
	ctx := context.Background()
	if _, err := e.CreateMarketSell(ctx, "BTC/USD", 0.00001); !errors.Is(err, repository.ErrMinAmount) {
		t.Fatalf("expected min amount, got %v", err)
	}
	if _, err := e.CreateMarketBuyByCost(ctx, "BTC/USD", 50); !errors.Is(err, repository.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
}
