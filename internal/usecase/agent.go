package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SpotAgent/internal/domain/models"
	domrepo "SpotAgent/internal/domain/repository"
	"SpotAgent/internal/services/position"
	"SpotAgent/internal/services/risk"
	"SpotAgent/internal/services/signal"
	"SpotAgent/internal/services/tuner"
	"SpotAgent/internal/state"
	"SpotAgent/pkg/logger"
	"SpotAgent/pkg/util"
)

// DefaultRecoverDelay is the pause after a tick panics.
const DefaultRecoverDelay = 5 * time.Second

// AgentConfig is the static part of the control loop's configuration.
type AgentConfig struct {
	Symbols      []string
	Quote        string
	Timeframe    domrepo.Timeframe
	CandleLimit  int
	Interval     time.Duration
	Limits       risk.Limits
	RiskPerTrade float64
	VolZMin      float64
	LearningRate float64

	AdaptiveVolatility bool
	OptimizeEvery      time.Duration
	LowRiskWindow      int
	LowRiskLosses      int

	DustThreshold   float64
	DustEvery       time.Duration
	FeeRefreshEvery time.Duration

	EnableTrading bool
	DryRun        bool
	RecoverDelay  time.Duration
}

func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		Symbols:            []string{"BTC/USD"},
		Quote:              "USD",
		Timeframe:          domrepo.TF1m,
		CandleLimit:        220,
		Interval:           time.Minute,
		Limits:             risk.Limits{MaxDailyLoss: 100, MaxDailyTrades: 10, Cooldown: 30 * time.Minute},
		RiskPerTrade:       50,
		VolZMin:            0.5,
		LearningRate:       0.01,
		AdaptiveVolatility: true,
		OptimizeEvery:      6 * time.Hour,
		LowRiskWindow:      10,
		LowRiskLosses:      5,
		DustThreshold:      1,
		DustEvery:          10 * time.Minute,
		FeeRefreshEvery:    24 * time.Hour,
		RecoverDelay:       DefaultRecoverDelay,
	}
}

// StatusSink receives the snapshot published after every tick.
type StatusSink interface {
	PublishStatus(ctx context.Context, snap models.StatusSnapshot)
}

// Agent is the single-threaded control loop. Every field is owned by the
// goroutine running Run; operators talk to it through state flags.
type Agent struct {
	cfg       AgentConfig
	ex        domrepo.Exchange
	store     domrepo.TradeStore
	positions *position.Manager
	engine    *signal.Engine
	st        *state.State
	files     *state.Files
	events    domrepo.EventPublisher
	notifier  domrepo.Notifier
	metrics   domrepo.Metrics
	clock     domrepo.Clock
	sinks     []StatusSink
	l         *logger.Logger
	sleep     func(context.Context, time.Duration) error

	optimizedAt time.Time
}

type AgentOption func(*Agent)

func WithAgentLogger(l *logger.Logger) AgentOption {
	return func(a *Agent) { a.l = l }
}

func WithAgentClock(c domrepo.Clock) AgentOption {
	return func(a *Agent) { a.clock = c }
}

func WithAgentMetrics(m domrepo.Metrics) AgentOption {
	return func(a *Agent) { a.metrics = m }
}

func WithAgentEvents(p domrepo.EventPublisher) AgentOption {
	return func(a *Agent) { a.events = p }
}

func WithNotifier(n domrepo.Notifier) AgentOption {
	return func(a *Agent) { a.notifier = n }
}

func WithStatusSinks(s ...StatusSink) AgentOption {
	return func(a *Agent) { a.sinks = append(a.sinks, s...) }
}

func NewAgent(cfg AgentConfig, ex domrepo.Exchange, store domrepo.TradeStore, pm *position.Manager,
	engine *signal.Engine, st *state.State, files *state.Files, opts ...AgentOption) *Agent {
	a := &Agent{
		cfg:       cfg,
		ex:        ex,
		store:     store,
		positions: pm,
		engine:    engine,
		st:        st,
		files:     files,
		clock:     domrepo.SystemClock{},
		l:         logger.Nop(),
		sleep:     sleepCtx,
	}
	for _, o := range opts {
		o(a)
	}
	if a.cfg.RecoverDelay <= 0 {
		a.cfg.RecoverDelay = DefaultRecoverDelay
	}
	a.optimizedAt = st.Runtime.LastOptimizedAt
	return a
}

// State exposes the owned state for the operator layer.
func (a *Agent) State() *state.State { return a.st }

// Boot restores everything the loop needs before the first tick: markets,
// open positions and today's counters.
func (a *Agent) Boot(ctx context.Context) error {
	if _, err := a.ex.LoadMarkets(ctx); err != nil {
		return fmt.Errorf("load markets: %w", err)
	}
	n, err := a.positions.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recover positions: %w", err)
	}
	if n > 1 {
		a.l.Warn("more than one open trade recovered", logger.Int("open_trades", n))
	}

	now := a.clock.Now()
	from, to := util.DayBounds(now)
	trades, err := a.store.ClosedTradesBetween(ctx, from, to)
	if err != nil {
		return fmt.Errorf("load today's trades: %w", err)
	}
	a.st.ResetDaily(now)
	for _, t := range trades {
		a.st.RecordClose(t)
	}
	a.refreshFees(ctx, now)
	a.markDayStart(ctx)
	if a.optimizedAt.IsZero() {
		a.optimizedAt = now
	}

	a.l.Info("agent booted",
		logger.Strings("symbols", a.cfg.Symbols),
		logger.Int("open_positions", n),
		logger.Int("trades_today", a.st.Daily.TradesCount),
		logger.Float64("pnl_today", a.st.Daily.RealizedPnLNet),
		logger.Bool("dry_run", a.cfg.DryRun),
		logger.Bool("trading_enabled", a.cfg.EnableTrading))
	a.publishStatus(ctx, now)
	return nil
}

// Run ticks until ctx is cancelled. Each tick is followed by a sleep for the
// remainder of the interval.
func (a *Agent) Run(ctx context.Context) error {
	for {
		start := a.clock.Now()
		a.safeTick(ctx)
		if ctx.Err() != nil {
			return nil
		}
		wait := a.cfg.Interval - a.clock.Now().Sub(start)
		if wait < 0 {
			wait = 0
		}
		if err := a.sleep(ctx, wait); err != nil {
			return nil
		}
	}
}

// Shutdown writes today's summary and the learning log. Open positions stay
// open; the next Boot recovers them from the store.
func (a *Agent) Shutdown(ctx context.Context) error {
	now := a.clock.Now()
	var errs []error
	if err := a.flushDailySummary(ctx, now); err != nil {
		errs = append(errs, fmt.Errorf("flush daily summary: %w", err))
	}
	if err := a.files.SaveLearning(a.st.Learning); err != nil {
		errs = append(errs, fmt.Errorf("save learning log: %w", err))
	}
	a.l.Info("agent stopped",
		logger.Int("open_positions", len(a.positions.Positions())),
		logger.Int("trades_today", a.st.Daily.TradesCount))
	return errors.Join(errs...)
}

// safeTick is the loop's outer boundary: nothing escapes it.
func (a *Agent) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("tick panic: %v", r)
			a.fail(ctx, "tick_panic", err)
			_ = a.sleep(ctx, a.cfg.RecoverDelay)
		}
	}()
	if err := a.Tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
		a.fail(ctx, "tick", err)
	}
}

func (a *Agent) fail(ctx context.Context, kind string, err error) {
	a.st.LastError = err.Error()
	a.l.Error("tick failed", logger.String("kind", kind), logger.Error(err))
	a.recordError(kind)
	a.notify(ctx, models.Notification{Kind: models.NotifyError, Text: err.Error()})
	a.publishStatus(ctx, a.clock.Now())
}

// Tick runs one pass of the control loop in its fixed order.
func (a *Agent) Tick(ctx context.Context) error {
	now := a.clock.Now()
	if a.metrics != nil {
		a.metrics.RecordTick()
	}
	a.st.LastError = ""
	defer a.publishStatus(ctx, now)

	if a.st.RolledOver(now) {
		if err := a.rollover(ctx, now); err != nil {
			return fmt.Errorf("day rollover: %w", err)
		}
	}

	if err := a.drainOperatorCloses(ctx); err != nil {
		return err
	}

	if d := risk.DailyLimits(a.cfg.Limits, a.riskState(now)); !d.Approved && !a.positions.HasOpen() {
		a.l.Info("daily limits reached; skipping tick", logger.String("reason", d.Reason))
		return nil
	}

	if now.Sub(a.st.FeesAt) >= a.cfg.FeeRefreshEvery {
		a.refreshFees(ctx, now)
	}
	if a.cfg.DustEvery > 0 && now.Sub(a.st.DustSweptAt) >= a.cfg.DustEvery {
		a.sweepDust(ctx)
		a.st.DustSweptAt = now
	}

	requested := a.st.TakeOptimization()
	if requested || (a.cfg.OptimizeEvery > 0 && now.Sub(a.optimizedAt) >= a.cfg.OptimizeEvery) {
		if err := a.optimize(ctx, now); err != nil {
			a.l.Error("optimization failed", logger.Error(err))
			a.recordError("optimize")
		}
	}

	a.checkLowRisk(ctx)

	var err error
	if a.positions.HasOpen() {
		err = a.managePositions(ctx, now)
	} else {
		err = a.scanAndEnter(ctx, now)
	}
	if err != nil {
		return err
	}

	return a.flushDailySummary(ctx, now)
}

// drainOperatorCloses honours emergency-flat and manual-close requests.
func (a *Agent) drainOperatorCloses(ctx context.Context) error {
	var reason models.ExitReason
	switch {
	case a.st.TakeEmergencyFlat():
		reason = models.ExitEmergencyFlat
		a.st.TakeManualClose()
	case a.st.TakeManualClose():
		reason = models.ExitManual
	default:
		return nil
	}
	open := a.positions.Positions()
	if len(open) == 0 {
		a.l.Info("operator close requested with no open position", logger.String("exit_reason", string(reason)))
		return nil
	}
	var errs []error
	for _, p := range open {
		price, err := a.price(ctx, p.Symbol)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out, err := a.positions.CloseByID(ctx, p.ID, price, reason)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s close %d: %w", reason, p.ID, err))
			continue
		}
		if err := a.afterClose(ctx, out); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		// Re-arm so the next tick retries.
		if reason == models.ExitEmergencyFlat {
			a.st.RequestEmergencyFlat()
		} else {
			a.st.RequestManualClose()
		}
		return err
	}
	return nil
}

func (a *Agent) riskState(now time.Time) risk.State {
	return risk.State{
		Daily:       a.st.Daily,
		LastLossAt:  a.st.LastLossAt,
		HasPosition: a.positions.HasOpen(),
		Threshold:   a.st.Threshold,
		Now:         now,
	}
}

func (a *Agent) price(ctx context.Context, symbol string) (float64, error) {
	start := time.Now()
	t, err := a.ex.FetchTicker(ctx, symbol)
	if a.metrics != nil {
		a.metrics.RecordLatency("fetch_ticker", time.Since(start).Seconds())
	}
	if err != nil {
		return 0, fmt.Errorf("ticker %s: %w", symbol, err)
	}
	if t.Last <= 0 {
		return 0, fmt.Errorf("%w: ticker %s has no last price", domrepo.ErrInvalidOrder, symbol)
	}
	a.st.LastPrices[symbol] = t.Last
	if a.metrics != nil {
		a.metrics.RecordLastPrice(symbol, t.Last)
	}
	return t.Last, nil
}

func (a *Agent) refreshFees(ctx context.Context, now time.Time) {
	fees, err := a.ex.FetchTradingFees(ctx)
	if err != nil {
		a.l.Warn("fee refresh failed; keeping previous rates", logger.Error(err),
			logger.Float64("taker", a.st.Fees.Taker))
		return
	}
	a.st.Fees, a.st.FeesAt = fees, now
	a.positions.SetFees(fees)
	a.l.Info("trading fees refreshed", logger.Float64("taker", fees.Taker), logger.Float64("maker", fees.Maker))
}

func (a *Agent) flushDailySummary(ctx context.Context, now time.Time) error {
	from, to := util.DayBounds(now)
	trades, err := a.store.ClosedTradesBetween(ctx, from, to)
	if err != nil {
		return fmt.Errorf("daily trades: %w", err)
	}
	if err := a.store.UpsertDailySummary(ctx, tuner.Summarize(from, trades)); err != nil {
		return err
	}
	if a.metrics != nil {
		a.metrics.RecordDaily(a.st.Daily.RealizedPnLNet, a.st.DayStartEquity+a.st.Daily.RealizedPnLNet)
	}
	return nil
}

func (a *Agent) publishStatus(ctx context.Context, now time.Time) {
	snap := models.StatusSnapshot{
		At:                  now,
		DryRun:              a.cfg.DryRun,
		TradingEnabled:      a.cfg.EnableTrading,
		Positions:           a.positions.Positions(),
		Daily:               a.st.Daily,
		Weights:             a.st.Weights,
		Runtime:             a.st.Runtime,
		ConfidenceThreshold: a.st.Threshold,
		LowRisk:             a.st.LowRisk,
		LastPrices:          copyPrices(a.st.LastPrices),
		LastSignals:         append([]models.SignalSummary(nil), a.st.LastSignals...),
		LastError:           a.st.LastError,
		Fees:                a.st.Fees,
	}
	a.st.Publish(snap)
	for _, s := range a.sinks {
		s.PublishStatus(ctx, snap)
	}
}

func (a *Agent) notify(ctx context.Context, n models.Notification) {
	if a.notifier == nil {
		return
	}
	if n.At.IsZero() {
		n.At = a.clock.Now()
	}
	if err := a.notifier.Notify(ctx, n); err != nil {
		a.l.Warn("notification failed", logger.String("kind", string(n.Kind)), logger.Error(err))
	}
}

func (a *Agent) recordError(kind string) {
	if a.metrics != nil {
		a.metrics.RecordError(kind)
	}
}

func copyPrices(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
