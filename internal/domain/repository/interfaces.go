package repository

import (
	"context"
	"time"

	"SpotAgent/internal/domain/models"
)

// Exchange is the capability set the trading core needs from a spot venue.
// Symbols are canonical "BASE/QUOTE" strings after NormalizeSymbol.
type Exchange interface {
	LoadMarkets(ctx context.Context) (map[string]models.Market, error)
	// Market returns a market from the last LoadMarkets call.
	Market(symbol string) (models.Market, bool)
	FetchOHLCV(ctx context.Context, symbol string, tf Timeframe, limit int) ([]models.RawRow, error)
	FetchTicker(ctx context.Context, symbol string) (models.Ticker, error)
	FetchBalance(ctx context.Context) (models.Balances, error)
	CreateMarketBuyByCost(ctx context.Context, symbol string, quoteAmount float64) (models.Order, error)
	CreateMarketBuy(ctx context.Context, symbol string, qty float64) (models.Order, error)
	CreateMarketSell(ctx context.Context, symbol string, qty float64) (models.Order, error)
	FetchTradingFees(ctx context.Context) (models.Fees, error)
	NormalizeSymbol(symbol string) string
}

// TradeStore persists trades, daily aggregates and weight history.
type TradeStore interface {
	InsertTrade(ctx context.Context, p models.Position) (int64, error)
	// CloseTrade fills the exit columns of an open trade atomically.
	CloseTrade(ctx context.Context, t models.ClosedTrade) error
	// UpdateStopLoss persists a trailed stop on an open trade. The initial
	// stop is stored separately and never changes.
	UpdateStopLoss(ctx context.Context, id int64, stop float64) error
	OpenTrades(ctx context.Context) ([]models.Position, error)
	ClosedTradesBetween(ctx context.Context, from, to time.Time) ([]models.ClosedTrade, error)
	UpsertDailySummary(ctx context.Context, s models.DailySummary) error
	RecentDailySummaries(ctx context.Context, days int) ([]models.DailySummary, error)
	SaveWeights(ctx context.Context, r models.WeightsRecord) error
	LatestWeights(ctx context.Context) (models.WeightsRecord, bool, error)
	Health(ctx context.Context) error
}

// BalanceBackfillStore is used only by the offline backfill command.
type BalanceBackfillStore interface {
	ClosedTradesOrdered(ctx context.Context) ([]models.ClosedTrade, error)
	// UpdateTradeBalances applies every update or none.
	UpdateTradeBalances(ctx context.Context, updates []models.BalanceUpdate) error
}

// EventPublisher streams lifecycle events and signal evaluations. Best effort.
type EventPublisher interface {
	PublishTradeEvent(ctx context.Context, ev models.TradeEvent) error
	PublishSignals(ctx context.Context, evals []models.SignalEvaluation) error
}

// Journal is the analytical sink behind the event stream.
type Journal interface {
	InsertTradeEvent(ctx context.Context, env models.EventEnvelope) error
	InsertSignalEvaluations(ctx context.Context, evals []models.SignalEvaluation) error
}

type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

type Metrics interface {
	RecordTick()
	RecordSignal(symbol, signal string, confidence float64)
	RecordTradeClosed(reason string)
	RecordEventPublished(kind string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordDaily(pnl, equity float64)
	RecordLatency(op string, seconds float64)
}

type Clock interface {
	Now() time.Time
}

// SystemClock returns UTC wall time.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
