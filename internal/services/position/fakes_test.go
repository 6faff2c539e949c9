package position

import (
	"context"
	"errors"
	"time"

	"SpotAgent/internal/domain/models"
	"SpotAgent/internal/domain/repository"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type fakeExchange struct {
	price    float64
	fee      float64
	sellErr  error
	buys     int
	sells    int
	minimums map[string]float64
}

func (f *fakeExchange) LoadMarkets(context.Context) (map[string]models.Market, error) {
	return nil, nil
}

func (f *fakeExchange) Market(symbol string) (models.Market, bool) {
	min, ok := f.minimums[symbol]
	return models.Market{Symbol: symbol, MinAmount: min}, ok
}

func (f *fakeExchange) FetchOHLCV(context.Context, string, repository.Timeframe, int) ([]models.RawRow, error) {
	return nil, nil
}

func (f *fakeExchange) FetchTicker(_ context.Context, symbol string) (models.Ticker, error) {
	return models.Ticker{Symbol: symbol, Last: f.price}, nil
}

func (f *fakeExchange) FetchBalance(context.Context) (models.Balances, error) {
	return models.Balances{}, nil
}

func (f *fakeExchange) CreateMarketBuyByCost(_ context.Context, symbol string, cost float64) (models.Order, error) {
	f.buys++
	qty := cost / f.price
	return models.Order{Symbol: symbol, Side: models.SideBuy, Filled: qty, Average: f.price, Cost: cost,
		Fee: cost * f.fee, FeeReported: f.fee > 0}, nil
}

func (f *fakeExchange) CreateMarketBuy(ctx context.Context, symbol string, qty float64) (models.Order, error) {
	return f.CreateMarketBuyByCost(ctx, symbol, qty*f.price)
}

func (f *fakeExchange) CreateMarketSell(_ context.Context, symbol string, qty float64) (models.Order, error) {
	if f.sellErr != nil {
		return models.Order{}, f.sellErr
	}
	f.sells++
	cost := qty * f.price
	return models.Order{Symbol: symbol, Side: models.SideSell, Filled: qty, Average: f.price, Cost: cost,
		Fee: cost * f.fee, FeeReported: f.fee > 0}, nil
}

func (f *fakeExchange) FetchTradingFees(context.Context) (models.Fees, error) {
	return models.DefaultFees(), nil
}

func (f *fakeExchange) NormalizeSymbol(s string) string { return s }

type fakeStore struct {
	nextID    int64
	open      map[int64]models.Position
	closed    []models.ClosedTrade
	insertErr error
	closeErr  error
	stopErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{open: map[int64]models.Position{}}
}

func (s *fakeStore) InsertTrade(_ context.Context, p models.Position) (int64, error) {
	if s.insertErr != nil {
		return 0, s.insertErr
	}
	s.nextID++
	p.ID = s.nextID
	s.open[p.ID] = p
	return p.ID, nil
}

func (s *fakeStore) CloseTrade(_ context.Context, t models.ClosedTrade) error {
	if s.closeErr != nil {
		return s.closeErr
	}
	if _, ok := s.open[t.ID]; !ok {
		return repository.ErrTradeNotOpen
	}
	delete(s.open, t.ID)
	s.closed = append(s.closed, t)
	return nil
}

func (s *fakeStore) UpdateStopLoss(_ context.Context, id int64, stop float64) error {
	if s.stopErr != nil {
		return s.stopErr
	}
	p, ok := s.open[id]
	if !ok {
		return repository.ErrTradeNotOpen
	}
	p.StopLoss = stop
	s.open[id] = p
	return nil
}

func (s *fakeStore) OpenTrades(context.Context) ([]models.Position, error) {
	out := make([]models.Position, 0, len(s.open))
	for id := int64(1); id <= s.nextID; id++ {
		if p, ok := s.open[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeStore) ClosedTradesBetween(context.Context, time.Time, time.Time) ([]models.ClosedTrade, error) {
	return s.closed, nil
}

func (s *fakeStore) UpsertDailySummary(context.Context, models.DailySummary) error { return nil }

func (s *fakeStore) RecentDailySummaries(context.Context, int) ([]models.DailySummary, error) {
	return nil, nil
}

func (s *fakeStore) SaveWeights(context.Context, models.WeightsRecord) error { return nil }

func (s *fakeStore) LatestWeights(context.Context) (models.WeightsRecord, bool, error) {
	return models.WeightsRecord{}, false, nil
}

func (s *fakeStore) Health(context.Context) error { return nil }

type recordingEvents struct{ kinds []models.EventKind }

func (r *recordingEvents) PublishTradeEvent(_ context.Context, ev models.TradeEvent) error {
	r.kinds = append(r.kinds, ev.Kind())
	return nil
}

func (r *recordingEvents) PublishSignals(context.Context, []models.SignalEvaluation) error {
	return errors.New("not used")
}
