package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"SpotAgent/internal/domain/models"
	domrepo "SpotAgent/internal/domain/repository"
	"SpotAgent/internal/services/tuner"
	"SpotAgent/pkg/logger"
	"SpotAgent/pkg/util"
)

// rollover closes out the previous UTC day. The summary upsert happens before
// the reset so a failed write is retried on the next tick.
func (a *Agent) rollover(ctx context.Context, now time.Time) error {
	prev, ok := util.ParseTime(a.st.Daily.Date)
	if !ok {
		prev = util.DayStart(now).AddDate(0, 0, -1)
	}
	a.l.Info("day rollover", logger.String("from", a.st.Daily.Date), logger.String("to", util.DayKey(now)))

	a.sweepInventory(ctx, "orphan", func(notional float64) bool { return notional >= a.cfg.DustThreshold })

	from, to := util.DayBounds(prev)
	trades, err := a.store.ClosedTradesBetween(ctx, from, to)
	if err != nil {
		return fmt.Errorf("previous day trades: %w", err)
	}
	sum := tuner.Summarize(from, trades)
	if err := a.store.UpsertDailySummary(ctx, sum); err != nil {
		return fmt.Errorf("previous day summary: %w", err)
	}

	unrealized := a.unrealized(ctx)
	adjusted := util.RoundMoney(a.st.Daily.RealizedPnLNet + unrealized)
	a.l.Info("daily summary",
		logger.String("day", util.DayKey(from)),
		logger.Int("trades", sum.Trades),
		logger.Int("wins", sum.Wins),
		logger.Float64("net_pnl", sum.NetPnL),
		logger.Float64("profit_factor", sum.ProfitFactor),
		logger.Float64("unrealized", unrealized),
		logger.Float64("adjusted_pnl", adjusted))
	a.notify(ctx, models.Notification{Kind: models.NotifyDailySummary,
		Text: fmt.Sprintf("%s  trades %d  wins %d  net %.2f  pf %.2f  incl. open %.2f",
			util.DayKey(from), sum.Trades, sum.Wins, sum.NetPnL, sum.ProfitFactor, adjusted)})

	a.st.ResetDaily(now)
	a.markDayStart(ctx)
	return nil
}

// unrealized values open positions at the latest known price.
func (a *Agent) unrealized(ctx context.Context) float64 {
	var total float64
	for _, p := range a.positions.Positions() {
		price, err := a.price(ctx, p.Symbol)
		if err != nil {
			a.l.Warn("no price for open position", logger.String("symbol", p.Symbol), logger.Error(err))
			continue
		}
		total += (price - p.EntryPrice) * p.Qty
	}
	return util.RoundMoney(total)
}

// markDayStart records quote-denominated equity for the new day.
func (a *Agent) markDayStart(ctx context.Context) {
	bal, err := a.ex.FetchBalance(ctx)
	if err != nil {
		a.l.Warn("day-start equity unavailable", logger.Error(err))
		return
	}
	equity := bal[a.cfg.Quote].Total
	for _, p := range a.positions.Positions() {
		price, ok := a.st.LastPrices[p.Symbol]
		if !ok {
			price = p.EntryPrice
		}
		equity += p.Qty * price
	}
	a.st.DayStartEquity = util.RoundMoney(equity)
}

func (a *Agent) sweepDust(ctx context.Context) {
	a.sweepInventory(ctx, "dust", func(notional float64) bool {
		return notional > 0 && notional < a.cfg.DustThreshold
	})
}

// sweepInventory sells base inventory the agent does not track for every
// configured symbol whose notional passes keep. Failures are logged only.
func (a *Agent) sweepInventory(ctx context.Context, kind string, keep func(notional float64) bool) {
	if !a.cfg.EnableTrading {
		return
	}
	bal, err := a.ex.FetchBalance(ctx)
	if err != nil {
		a.l.Warn("inventory sweep skipped", logger.String("kind", kind), logger.Error(err))
		return
	}
	held := make(map[string]float64)
	for _, p := range a.positions.Positions() {
		held[p.Symbol] += p.Qty
	}

	for _, sym := range a.cfg.Symbols {
		mkt, ok := a.ex.Market(sym)
		if !ok {
			continue
		}
		free := bal.Free(mkt.Base) - held[sym]
		if free <= 0 {
			continue
		}
		price, err := a.price(ctx, sym)
		if err != nil {
			a.l.Warn("inventory sweep price failed", logger.String("symbol", sym), logger.Error(err))
			continue
		}
		notional := free * price
		if !keep(notional) {
			continue
		}
		order, err := a.ex.CreateMarketSell(ctx, sym, free)
		switch {
		case errors.Is(err, domrepo.ErrMinAmount):
			a.l.Debug("untracked inventory below market minimum",
				logger.String("kind", kind), logger.String("symbol", sym), logger.Float64("qty", free))
		case err != nil:
			a.l.Warn("inventory sweep sell failed", logger.String("kind", kind),
				logger.String("symbol", sym), logger.Error(err))
			a.recordError("inventory_sweep")
		default:
			a.l.Info("untracked inventory sold",
				logger.String("kind", kind),
				logger.String("symbol", sym),
				logger.Float64("qty", order.Filled),
				logger.Float64("cost", order.Cost))
		}
	}
}

// optimize runs the rule-based tuner over the recent daily summaries.
func (a *Agent) optimize(ctx context.Context, now time.Time) error {
	a.optimizedAt = now
	days, err := a.store.RecentDailySummaries(ctx, tuner.OptimizationDays)
	if err != nil {
		return fmt.Errorf("recent summaries: %w", err)
	}
	rc, changes, perf := tuner.Optimize(a.st.Runtime, days, a.cfg.RiskPerTrade, now)
	if len(changes) == 0 {
		a.l.Info("optimization left thresholds unchanged",
			logger.Int("trades", perf.Trades), logger.Float64("win_rate", perf.WinRate))
		return nil
	}
	a.st.Runtime = rc
	a.l.Info("optimization applied",
		logger.Strings("changes", changes),
		logger.Int("trades", perf.Trades),
		logger.Float64("win_rate", perf.WinRate),
		logger.Float64("profit_factor", perf.ProfitFactor))

	var errs []error
	if err := a.files.Runtime.Save(rc); err != nil {
		errs = append(errs, fmt.Errorf("write runtime config: %w", err))
	}
	if err := a.saveWeights(ctx, &perf); err != nil {
		errs = append(errs, err)
	}
	a.notify(ctx, models.Notification{Kind: models.NotifyOptimization, Text: strings.Join(changes, ", ")})
	return errors.Join(errs...)
}

// checkLowRisk latches low-risk mode once enough recent trades lost. The
// tightened multipliers stay; only the latch is released.
func (a *Agent) checkLowRisk(ctx context.Context) {
	losing := tuner.LowRisk(a.st.Learning, a.cfg.LowRiskWindow, a.cfg.LowRiskLosses)
	if a.st.LowRisk && !losing {
		a.st.LowRisk = false
		a.l.Info("low-risk mode released")
		return
	}
	if a.st.LowRisk || !losing {
		return
	}
	a.st.LowRisk = true
	a.st.Runtime = tuner.ApplyLowRisk(a.st.Runtime)
	if err := a.files.Runtime.Save(a.st.Runtime); err != nil {
		a.l.Error("write runtime config", logger.Error(err))
	}
	a.l.Warn("low-risk mode enabled",
		logger.Float64("tp_multiplier", a.st.Runtime.TPMultiplier),
		logger.Float64("sl_multiplier", a.st.Runtime.SLMultiplier))
	a.notify(ctx, models.Notification{Kind: models.NotifyLowRisk,
		Text: fmt.Sprintf("tp %.2f  sl %.2f", a.st.Runtime.TPMultiplier, a.st.Runtime.SLMultiplier)})
}
