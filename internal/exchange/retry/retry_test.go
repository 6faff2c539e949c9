package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"SpotAgent/internal/domain/models"
	"SpotAgent/internal/domain/repository"
)

type flaky struct {
	repository.Exchange
	failures int
	err      error
	calls    int
}

func (f *flaky) FetchTicker(_ context.Context, symbol string) (models.Ticker, error) {
	f.calls++
	if f.calls <= f.failures {
		return models.Ticker{}, f.err
	}
	return models.Ticker{Symbol: symbol, Last: 1}, nil
}

func newTestExchange(inner repository.Exchange) (*Exchange, *[]time.Duration) {
	var slept []time.Duration
	e := New(inner)
	e.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return e, &slept
}

func TestRetriesTransientWithBackoff(t *testing.T) {
	inner := &flaky{failures: 2, err: fmt.Errorf("timeout: %w", repository.ErrTransient)}
	e, slept := newTestExchange(inner)
	tk, err := e.FetchTicker(context.Background(), "BTC/USD")
	if err != nil || tk.Last != 1 {
		t.Fatalf("expected success, got %v", err)
	}
	if inner.calls != 3 || len(*slept) != 2 || (*slept)[0] != 100*time.Millisecond || (*slept)[1] != 250*time.Millisecond {
		t.Fatalf("unexpected retry pattern calls=%d slept=%v", inner.calls, *slept)
	}
}

func TestGivesUpAfterBudget(t *testing.T) {
	inner := &flaky{failures: 10, err: repository.ErrTransient}
	e, slept := newTestExchange(inner)
	if _, err := e.FetchTicker(context.Background(), "BTC/USD"); !errors.Is(err, repository.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if inner.calls != 4 || len(*slept) != 3 {
		t.Fatalf("calls=%d slept=%v", inner.calls, *slept)
	}
}

func TestDoesNotRetryInvalidOrder(t *testing.T) {
	inner := &flaky{failures: 1, err: repository.ErrInvalidOrder}
	e, _ := newTestExchange(inner)
	if _, err := e.FetchTicker(context.Background(), "BTC/USD"); !errors.Is(err, repository.ErrInvalidOrder) || inner.calls != 1 {
		t.Fatalf("invalid order must not be retried: calls=%d err=%v", inner.calls, err)
	}
}

type placer struct {
	repository.Exchange
	failures int
	err      error
	ids      []string
}

func (p *placer) CreateMarketBuyByCost(ctx context.Context, symbol string, cost float64) (models.Order, error) {
	p.ids = append(p.ids, repository.ClientOrderID(ctx))
	if len(p.ids) <= p.failures {
		return models.Order{}, p.err
	}
	return models.Order{Symbol: symbol, ClientID: repository.ClientOrderID(ctx), Filled: 1, Cost: cost}, nil
}

func TestOrderRetryKeepsClientOrderID(t *testing.T) {
	inner := &placer{failures: 1, err: fmt.Errorf("rate limit: %w", repository.ErrTransient)}
	e, _ := newTestExchange(inner)
	o, err := e.CreateMarketBuyByCost(context.Background(), "BTC/USD", 50)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if len(inner.ids) != 2 || inner.ids[0] == "" || inner.ids[0] != inner.ids[1] {
		t.Fatalf("every attempt must carry one client order id, got %q", inner.ids)
	}
	if o.ClientID != inner.ids[0] {
		t.Fatalf("order client id %q, want %q", o.ClientID, inner.ids[0])
	}
}

func TestOrderKeepsCallerClientOrderID(t *testing.T) {
	inner := &placer{}
	e, _ := newTestExchange(inner)
	ctx := repository.WithClientOrderID(context.Background(), "entry-42")
	if _, err := e.CreateMarketBuyByCost(ctx, "BTC/USD", 50); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if len(inner.ids) != 1 || inner.ids[0] != "entry-42" {
		t.Fatalf("caller id replaced: %q", inner.ids)
	}
}

func TestUnconfirmedOrderIsNotResent(t *testing.T) {
	inner := &placer{failures: 1, err: fmt.Errorf("connection reset: %w", repository.ErrOrderUnconfirmed)}
	e, slept := newTestExchange(inner)
	if _, err := e.CreateMarketBuyByCost(context.Background(), "BTC/USD", 50); !errors.Is(err, repository.ErrOrderUnconfirmed) {
		t.Fatalf("expected unconfirmed order error, got %v", err)
	}
	if len(inner.ids) != 1 || len(*slept) != 0 {
		t.Fatalf("order placed %d times", len(inner.ids))
	}
}
