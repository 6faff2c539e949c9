package usecase

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"SpotAgent/internal/domain/models"
	domrepo "SpotAgent/internal/domain/repository"
	"SpotAgent/internal/services/position"
	"SpotAgent/internal/services/risk"
	"SpotAgent/internal/services/signal"
	"SpotAgent/internal/state"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type sell struct {
	symbol string
	qty    float64
}

type fakeExchange struct {
	price      float64
	balances   models.Balances
	sellErr    error
	buyErr     error
	panicOHLCV bool
	rows       []models.RawRow

	ohlcvCalls int
	buys       int
	sells      []sell
}

func newFakeExchange(price float64) *fakeExchange {
	return &fakeExchange{price: price, balances: models.Balances{}}
}

func (f *fakeExchange) LoadMarkets(context.Context) (map[string]models.Market, error) {
	m, _ := f.Market("BTC/USD")
	return map[string]models.Market{m.Symbol: m}, nil
}

func (f *fakeExchange) Market(symbol string) (models.Market, bool) {
	if symbol != "BTC/USD" {
		return models.Market{}, false
	}
	return models.Market{Symbol: symbol, Base: "BTC", Quote: "USD", Active: true, Spot: true}, true
}

func (f *fakeExchange) FetchOHLCV(context.Context, string, domrepo.Timeframe, int) ([]models.RawRow, error) {
	f.ohlcvCalls++
	if f.panicOHLCV {
		panic("malformed candle payload")
	}
	return f.rows, nil
}

func (f *fakeExchange) FetchTicker(_ context.Context, symbol string) (models.Ticker, error) {
	return models.Ticker{Symbol: symbol, Last: f.price}, nil
}

func (f *fakeExchange) FetchBalance(context.Context) (models.Balances, error) {
	out := make(models.Balances, len(f.balances))
	for k, v := range f.balances {
		out[k] = v
	}
	return out, nil
}

func (f *fakeExchange) CreateMarketBuyByCost(_ context.Context, symbol string, cost float64) (models.Order, error) {
	f.buys++
	if f.buyErr != nil {
		return models.Order{}, f.buyErr
	}
	return models.Order{Symbol: symbol, Side: models.SideBuy, Filled: cost / f.price, Average: f.price,
		Cost: cost, Fee: cost * models.DefaultTakerFee, FeeReported: true}, nil
}

func (f *fakeExchange) CreateMarketBuy(ctx context.Context, symbol string, qty float64) (models.Order, error) {
	return f.CreateMarketBuyByCost(ctx, symbol, qty*f.price)
}

func (f *fakeExchange) CreateMarketSell(_ context.Context, symbol string, qty float64) (models.Order, error) {
	if f.sellErr != nil {
		return models.Order{}, f.sellErr
	}
	f.sells = append(f.sells, sell{symbol: symbol, qty: qty})
	cost := qty * f.price
	return models.Order{Symbol: symbol, Side: models.SideSell, Filled: qty, Average: f.price,
		Cost: cost, Fee: cost * models.DefaultTakerFee, FeeReported: true}, nil
}

func (f *fakeExchange) FetchTradingFees(context.Context) (models.Fees, error) {
	return models.DefaultFees(), nil
}

func (f *fakeExchange) NormalizeSymbol(s string) string { return s }

type fakeStore struct {
	nextID  int64
	open    []models.Position
	closed  []models.ClosedTrade
	upserts []models.DailySummary
	weights []models.WeightsRecord
	summary []models.DailySummary
}

func (s *fakeStore) InsertTrade(_ context.Context, p models.Position) (int64, error) {
	s.nextID++
	p.ID = s.nextID
	s.open = append(s.open, p)
	return p.ID, nil
}

func (s *fakeStore) CloseTrade(_ context.Context, t models.ClosedTrade) error {
	for i, p := range s.open {
		if p.ID == t.ID {
			s.open = append(s.open[:i], s.open[i+1:]...)
			s.closed = append(s.closed, t)
			return nil
		}
	}
	return domrepo.ErrTradeNotOpen
}

func (s *fakeStore) UpdateStopLoss(_ context.Context, id int64, stop float64) error {
	for i, p := range s.open {
		if p.ID == id {
			s.open[i].StopLoss = stop
			return nil
		}
	}
	return domrepo.ErrTradeNotOpen
}

func (s *fakeStore) OpenTrades(context.Context) ([]models.Position, error) {
	return append([]models.Position(nil), s.open...), nil
}

func (s *fakeStore) ClosedTradesBetween(_ context.Context, from, to time.Time) ([]models.ClosedTrade, error) {
	var out []models.ClosedTrade
	for _, t := range s.closed {
		if !t.ClosedAt.Before(from) && t.ClosedAt.Before(to) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeStore) UpsertDailySummary(_ context.Context, d models.DailySummary) error {
	s.upserts = append(s.upserts, d)
	return nil
}

func (s *fakeStore) RecentDailySummaries(context.Context, int) ([]models.DailySummary, error) {
	return s.summary, nil
}

func (s *fakeStore) SaveWeights(_ context.Context, r models.WeightsRecord) error {
	s.weights = append(s.weights, r)
	return nil
}

func (s *fakeStore) LatestWeights(context.Context) (models.WeightsRecord, bool, error) {
	if len(s.weights) == 0 {
		return models.WeightsRecord{}, false, nil
	}
	return s.weights[len(s.weights)-1], true, nil
}

func (s *fakeStore) Health(context.Context) error { return nil }

type recordingNotifier struct {
	mu    sync.Mutex
	kinds []models.NotificationKind
}

func (n *recordingNotifier) Notify(_ context.Context, note models.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.kinds = append(n.kinds, note.Kind)
	return nil
}

func (n *recordingNotifier) has(k models.NotificationKind) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, got := range n.kinds {
		if got == k {
			return true
		}
	}
	return false
}

var testNow = time.Date(2026, 3, 2, 0, 0, 30, 0, time.UTC)

func testRuntime() models.RuntimeConfig {
	return models.RuntimeConfig{RSIOversold: 35, RSIOverbought: 65, ATRLowPct: 0.05, ATRHighPct: 2,
		TPMultiplier: 2.4, SLMultiplier: 1.2}
}

func openPosition(now time.Time) models.Position {
	return models.Position{
		ID: 1, Symbol: "BTC/USD", Side: models.SideBuy, Qty: 0.5, EntryPrice: 100,
		StopLoss: 95, InitialStopLoss: 95, TakeProfit: 110, AIConfidence: 0.9,
		ATRPct: 0.5, EntryFee: 0.13, OpenedAt: now.Add(-5 * time.Minute),
	}
}

type harness struct {
	agent    *Agent
	ex       *fakeExchange
	store    *fakeStore
	pm       *position.Manager
	st       *state.State
	clock    *fakeClock
	notifier *recordingNotifier
	slept    []time.Duration
}

func newHarness(t *testing.T, mutate func(*AgentConfig)) *harness {
	t.Helper()
	h := &harness{
		ex:       newFakeExchange(100),
		store:    &fakeStore{},
		clock:    &fakeClock{now: testNow},
		notifier: &recordingNotifier{},
	}
	cfg := DefaultAgentConfig()
	cfg.Limits = risk.Limits{MaxDailyLoss: 100, MaxDailyTrades: 10, Cooldown: 30 * time.Minute}
	cfg.EnableTrading = true
	cfg.OptimizeEvery = 0
	cfg.DustEvery = 0
	if mutate != nil {
		mutate(&cfg)
	}

	pcfg := position.DefaultConfig()
	pcfg.RiskPerTrade = cfg.RiskPerTrade
	h.pm = position.NewManager(h.ex, h.store, pcfg, position.WithClock(h.clock))
	h.st = state.New(testNow, models.DefaultWeights(), testRuntime(), 0.5)

	dir := t.TempDir()
	files := state.NewFiles(filepath.Join(dir, "runtime.json"), filepath.Join(dir, "weights.json"),
		filepath.Join(dir, "learning.json"))

	h.agent = NewAgent(cfg, h.ex, h.store, h.pm, signal.NewEngine(), h.st, files,
		WithAgentClock(h.clock), WithNotifier(h.notifier))
	h.agent.sleep = func(_ context.Context, d time.Duration) error {
		h.slept = append(h.slept, d)
		return nil
	}
	return h
}

// withOpenPosition seeds the store and recovers the position into the manager.
func (h *harness) withOpenPosition(t *testing.T) models.Position {
	t.Helper()
	p := openPosition(h.clock.now)
	h.store.open = append(h.store.open, p)
	h.store.nextID = p.ID
	if _, err := h.pm.Recover(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}
	return p
}
