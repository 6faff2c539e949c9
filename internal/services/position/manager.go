// Package position owns the live-position slot: opening through the
// exchange, exit evaluation, trailing stops and fee-aware settlement.
package position

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SpotAgent/internal/domain/models"
	"SpotAgent/internal/domain/repository"
	"SpotAgent/pkg/logger"
	"SpotAgent/pkg/util"
)

var (
	ErrPositionOpen = errors.New("position already open")
	ErrNoPosition   = errors.New("no open position")
)

type Config struct {
	RiskPerTrade    float64
	Timeframe       time.Duration
	TimeExitCandles int
	Trail           TrailConfig
}

func DefaultConfig() Config {
	return Config{RiskPerTrade: 50, Timeframe: time.Minute, TimeExitCandles: 45, Trail: DefaultTrailConfig()}
}

// OpenRequest carries an approved BUY plus the multipliers in force.
type OpenRequest struct {
	Signal        models.Signal
	SLMultiplier  float64
	TPMultiplier  float64
	BalanceBefore float64
}

// Outcome describes what Manage did for one position.
type Outcome struct {
	Closed     *models.ClosedTrade
	Trailed    bool
	StopBefore float64
	StopAfter  float64
}

// Manager is not safe for concurrent use; the control loop owns it.
type Manager struct {
	ex     repository.Exchange
	store  repository.TradeStore
	events repository.EventPublisher
	clock  repository.Clock
	l      *logger.Logger
	cfg    Config
	fees   models.Fees

	positions []models.Position
	// pending holds trades already sold whose persistence write failed.
	pending map[int64]models.ClosedTrade
}

type Option func(*Manager)

func WithEvents(p repository.EventPublisher) Option {
	return func(m *Manager) { m.events = p }
}

func WithClock(c repository.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

func WithLogger(l *logger.Logger) Option {
	return func(m *Manager) { m.l = l }
}

func WithFees(f models.Fees) Option {
	return func(m *Manager) { m.fees = f }
}

func NewManager(ex repository.Exchange, store repository.TradeStore, cfg Config, opts ...Option) *Manager {
	m := &Manager{
		ex:      ex,
		store:   store,
		clock:   repository.SystemClock{},
		l:       logger.Nop(),
		cfg:     cfg,
		fees:    models.DefaultFees(),
		pending: map[int64]models.ClosedTrade{},
	}
	for _, o := range opts {
		o(m)
	}
	if m.cfg.Timeframe <= 0 {
		m.cfg.Timeframe = time.Minute
	}
	return m
}

func (m *Manager) SetFees(f models.Fees) { m.fees = f }
func (m *Manager) Fees() models.Fees     { return m.fees }

func (m *Manager) HasOpen() bool { return len(m.positions) > 0 }

// Positions returns a copy of the live positions.
func (m *Manager) Positions() []models.Position {
	return append([]models.Position(nil), m.positions...)
}

// Recover rebuilds the slot from trades with no closed_at, trailed stops
// included. Rows without an initial stop fall back to the current one.
func (m *Manager) Recover(ctx context.Context) (int, error) {
	open, err := m.store.OpenTrades(ctx)
	if err != nil {
		return 0, fmt.Errorf("recover open trades: %w", err)
	}
	m.positions = m.positions[:0]
	for _, p := range open {
		if p.InitialStopLoss == 0 {
			p.InitialStopLoss = p.StopLoss
		}
		m.positions = append(m.positions, p)
	}
	if len(open) > 1 {
		m.l.Warn("recovered more than one open trade", logger.Int("count", len(open)))
	}
	return len(open), nil
}

// Open buys by cost and persists the trade. Nothing enters the slot unless
// both the order and the insert succeed.
func (m *Manager) Open(ctx context.Context, req OpenRequest) (models.Position, error) {
	if m.HasOpen() {
		return models.Position{}, ErrPositionOpen
	}
	sig := req.Signal
	price := sig.ExecutionPrice
	if price <= 0 {
		return models.Position{}, fmt.Errorf("%w: missing price for %s", repository.ErrInvalidOrder, sig.Symbol)
	}
	netSpend := util.RoundMoney(NetSpend(m.cfg.RiskPerTrade, m.fees.Taker))
	if netSpend <= 0 {
		return models.Position{}, fmt.Errorf("%w: zero cost for %s", repository.ErrInvalidOrder, sig.Symbol)
	}
	if mkt, ok := m.ex.Market(sig.Symbol); ok && mkt.MinAmount > 0 {
		if est := netSpend / price; est < mkt.MinAmount {
			return models.Position{}, fmt.Errorf("%w: estimated qty %.8f below minimum %.8f for %s",
				repository.ErrInvalidOrder, est, mkt.MinAmount, sig.Symbol)
		}
	}

	m.publish(ctx, models.BuyRequested{
		Symbol: sig.Symbol, QuoteAmount: m.cfg.RiskPerTrade, NetSpend: netSpend,
		Price: price, Confidence: sig.Confidence,
	})

	order, err := m.ex.CreateMarketBuyByCost(ctx, sig.Symbol, netSpend)
	if err != nil {
		return models.Position{}, fmt.Errorf("market buy %s: %w", sig.Symbol, err)
	}
	if order.Filled <= 0 {
		return models.Position{}, fmt.Errorf("%w: buy %s returned no fill", repository.ErrInvalidOrder, sig.Symbol)
	}
	entry := fillPrice(order, price)
	fee, estimated := order.Fee, false
	if !order.FeeReported {
		fee, estimated = util.RoundMoney(netSpend*m.fees.Taker), true
	}

	sl, tp := Levels(entry, sig.ATR, req.SLMultiplier, req.TPMultiplier)
	p := models.Position{
		Symbol:          sig.Symbol,
		Side:            models.SideBuy,
		Qty:             order.Filled,
		EntryPrice:      util.RoundMoney(entry),
		StopLoss:        sl,
		InitialStopLoss: sl,
		TakeProfit:      tp,
		AIConfidence:    sig.Confidence,
		ATRPct:          sig.Indicators.ATRPct,
		EntryFee:        fee,
		FeeEstimated:    estimated,
		BalanceBefore:   req.BalanceBefore,
		OpenedAt:        m.clock.Now(),
	}
	id, err := m.store.InsertTrade(ctx, p)
	if err != nil {
		m.l.Error("bought but trade insert failed; inventory will be swept as orphan",
			logger.String("symbol", p.Symbol), logger.Float64("qty", p.Qty), logger.Error(err))
		return models.Position{}, fmt.Errorf("insert trade %s: %w", p.Symbol, err)
	}
	p.ID = id
	m.positions = append(m.positions, p)

	m.publish(ctx, models.BuyExecuted{
		TradeID: id, Symbol: p.Symbol, OrderID: order.ID, Qty: p.Qty, Price: p.EntryPrice,
		Fee: p.EntryFee, StopLoss: p.StopLoss, TakeProfit: p.TakeProfit,
	})
	return p, nil
}

// Manage runs exit evaluation and, when no exit fires, the trailing update
// for the position on symbol. atrPct is the current averaged ATR% of the
// symbol; zero means unknown and the entry volatility is used instead. A
// raised stop is written to the store before the slot sees it.
func (m *Manager) Manage(ctx context.Context, symbol string, price, atrPct float64) (Outcome, error) {
	i := m.index(symbol)
	if i < 0 {
		return Outcome{}, nil
	}
	p := m.positions[i]
	if pt, ok := m.pending[p.ID]; ok {
		return m.commit(ctx, pt)
	}
	if reason, ok := CheckExit(p, price, m.clock.Now(), m.cfg.Timeframe, m.cfg.TimeExitCandles); ok {
		return m.closeAt(ctx, i, price, reason)
	}
	out := Outcome{StopBefore: p.StopLoss, StopAfter: p.StopLoss}
	if next, ok := TrailStop(p, price, atrPct, m.cfg.Trail); ok {
		if err := m.store.UpdateStopLoss(ctx, p.ID, next); err != nil {
			return out, fmt.Errorf("trail stop %d: %w", p.ID, err)
		}
		m.positions[i].StopLoss = next
		out.Trailed, out.StopAfter = true, next
		m.l.Info("trailing stop raised", logger.String("symbol", symbol), logger.Int64("trade_id", p.ID),
			logger.Float64("from", p.StopLoss), logger.Float64("to", next))
	}
	return out, nil
}

// Close sells the position on symbol at market and records the result. A
// minimum-amount rejection closes it as DUST_ORPHANED; any other sell error
// leaves the position open.
func (m *Manager) Close(ctx context.Context, symbol string, price float64, reason models.ExitReason) (Outcome, error) {
	i := m.index(symbol)
	if i < 0 {
		return Outcome{}, ErrNoPosition
	}
	return m.closeAt(ctx, i, price, reason)
}

// CloseByID is Close for a specific trade; used when several recovered
// trades share a symbol.
func (m *Manager) CloseByID(ctx context.Context, id int64, price float64, reason models.ExitReason) (Outcome, error) {
	i := m.indexID(id)
	if i < 0 {
		return Outcome{}, ErrNoPosition
	}
	return m.closeAt(ctx, i, price, reason)
}

func (m *Manager) closeAt(ctx context.Context, i int, price float64, reason models.ExitReason) (Outcome, error) {
	p := m.positions[i]
	symbol := p.Symbol
	if pt, ok := m.pending[p.ID]; ok {
		return m.commit(ctx, pt)
	}
	m.publish(ctx, models.ExitTriggered{TradeID: p.ID, Symbol: symbol, Reason: reason, Price: price})

	now := m.clock.Now()
	order, err := m.ex.CreateMarketSell(ctx, symbol, p.Qty)
	if err != nil {
		if errors.Is(err, repository.ErrMinAmount) {
			m.l.Warn("sell rejected below minimum; closing as dust", logger.String("symbol", symbol),
				logger.Int64("trade_id", p.ID), logger.Error(err))
			return m.commit(ctx, Orphaned(p, price, now, m.cfg.Timeframe))
		}
		return Outcome{}, fmt.Errorf("market sell %s: %w", symbol, err)
	}

	exit := fillPrice(order, price)
	fee := order.Fee
	if !order.FeeReported {
		fee = exit * p.Qty * m.fees.Taker
	}
	return m.commit(ctx, Settle(p, exit, fee, reason, now, m.cfg.Timeframe))
}

// commit writes the close and only then clears the slot. A failed write is
// parked so the next attempt does not sell twice.
func (m *Manager) commit(ctx context.Context, t models.ClosedTrade) (Outcome, error) {
	err := m.store.CloseTrade(ctx, t)
	if errors.Is(err, repository.ErrTradeNotOpen) {
		// An earlier write landed but its ack was lost.
		m.l.Warn("trade already closed in store", logger.Int64("trade_id", t.ID))
		err = nil
	}
	if err != nil {
		m.pending[t.ID] = t
		return Outcome{}, fmt.Errorf("close trade %d: %w", t.ID, err)
	}
	delete(m.pending, t.ID)
	if i := m.indexID(t.ID); i >= 0 {
		m.positions = append(m.positions[:i], m.positions[i+1:]...)
	}
	m.publish(ctx, models.Closed{
		TradeID: t.ID, Symbol: t.Symbol, Reason: t.ExitReason, EntryPrice: t.EntryPrice,
		ExitPrice: t.ExitPrice, Qty: t.Qty, TotalFees: t.TotalFees, PnLNet: t.PnLNet, CandlesHeld: t.CandlesHeld,
	})
	return Outcome{Closed: &t, StopBefore: t.StopLoss, StopAfter: t.StopLoss}, nil
}

func (m *Manager) publish(ctx context.Context, ev models.TradeEvent) {
	if m.events == nil {
		return
	}
	if err := m.events.PublishTradeEvent(ctx, ev); err != nil {
		m.l.Warn("trade event publish failed", logger.String("kind", string(ev.Kind())), logger.Error(err))
	}
}

func (m *Manager) index(symbol string) int {
	for i, p := range m.positions {
		if p.Symbol == symbol {
			return i
		}
	}
	return -1
}

func (m *Manager) indexID(id int64) int {
	for i, p := range m.positions {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func fillPrice(o models.Order, fallback float64) float64 {
	switch {
	case o.Average > 0:
		return o.Average
	case o.Filled > 0 && o.Cost > 0:
		return o.Cost / o.Filled
	default:
		return fallback
	}
}
