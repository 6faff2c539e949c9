package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SpotAgent/internal/domain/models"
	domrepo "SpotAgent/internal/domain/repository"
	"SpotAgent/internal/services/ohlcv"
	"SpotAgent/internal/services/position"
	"SpotAgent/internal/services/risk"
	"SpotAgent/internal/services/signal"
	"SpotAgent/internal/services/tuner"
	"SpotAgent/pkg/logger"
)

// extremeRSIHigh mirrors the oversold override on the overbought side.
const extremeRSIHigh = 100 - signal.ExtremeOversold

// scanAndEnter evaluates every symbol and opens the highest-confidence BUY
// the risk gate approves.
func (a *Agent) scanAndEnter(ctx context.Context, now time.Time) error {
	var (
		best      *models.Signal
		summaries = make([]models.SignalSummary, 0, len(a.cfg.Symbols))
		evals     = make([]models.SignalEvaluation, 0, len(a.cfg.Symbols))
		errs      []error
	)
	for _, sym := range a.cfg.Symbols {
		sig, err := a.evaluate(ctx, sym, now)
		if err != nil {
			a.l.Warn("symbol skipped", logger.String("symbol", sym), logger.Error(err))
			errs = append(errs, err)
			continue
		}
		summaries = append(summaries, models.SignalSummary{
			Symbol: sym, Action: sig.Action, Confidence: sig.Confidence,
			RSI: sig.Indicators.RSI, ATRPct: sig.Indicators.ATRPct,
		})
		evals = append(evals, models.EvaluationFromSignal(sig, a.cfg.DryRun))
		if a.metrics != nil {
			a.metrics.RecordSignal(sym, string(sig.Action), sig.Confidence)
		}
		a.l.Debug("signal evaluated",
			logger.String("symbol", sym),
			logger.String("action", string(sig.Action)),
			logger.Float64("confidence", sig.Confidence),
			logger.Float64("threshold", sig.Threshold),
			logger.Float64("rsi", sig.Indicators.RSI),
			logger.Float64("atr_pct", sig.Indicators.ATRPct))

		switch sig.Action {
		case models.ActionBuy:
			if best == nil || sig.Confidence > best.Confidence {
				s := sig
				best = &s
			}
		case models.ActionSell:
			d := risk.Check(sig, a.cfg.Limits, a.riskState(now).For(sig))
			a.l.Info("sell signal without position", logger.String("symbol", sym), logger.String("reason", d.Reason))
		}
	}
	a.st.LastSignals = summaries
	a.journalSignals(ctx, evals)

	if len(errs) > 0 && len(errs) == len(a.cfg.Symbols) {
		return fmt.Errorf("no symbol evaluated: %w", errors.Join(errs...))
	}
	if best == nil {
		return nil
	}
	return a.enter(ctx, *best, now)
}

func (a *Agent) evaluate(ctx context.Context, symbol string, now time.Time) (models.Signal, error) {
	start := time.Now()
	rows, err := a.ex.FetchOHLCV(ctx, symbol, a.cfg.Timeframe, a.cfg.CandleLimit)
	if a.metrics != nil {
		a.metrics.RecordLatency("fetch_ohlcv", time.Since(start).Seconds())
	}
	if err != nil {
		return models.Signal{}, fmt.Errorf("ohlcv %s: %w", symbol, err)
	}
	candles := ohlcv.Sanitize(rows, a.cfg.Timeframe.Duration(), now)
	n := len(candles)
	exec, prev := candles[n-1].Close, candles[n-2].Close

	ind := a.engine.Indicators(candles)
	if a.cfg.AdaptiveVolatility {
		a.st.Threshold, a.st.ATRLow = tuner.Volatility(ind.ATRPct, ind.RSI)
	}
	if ind.RSI < signal.ExtremeOversold || ind.RSI > extremeRSIHigh {
		a.notify(ctx, models.Notification{Kind: models.NotifyRSIExtreme, Symbol: symbol,
			Text: fmt.Sprintf("RSI %.1f at %.8g", ind.RSI, exec)})
	}
	a.st.LastPrices[symbol] = exec
	return a.engine.Evaluate(symbol, ind, exec, prev, a.st.Weights, a.thresholds(), now), nil
}

// currentATRPct is the averaged ATR% of symbol right now. Zero when no
// candles could be read; the position manager then falls back to the
// volatility seen at entry.
func (a *Agent) currentATRPct(ctx context.Context, symbol string, now time.Time) float64 {
	rows, err := a.ex.FetchOHLCV(ctx, symbol, a.cfg.Timeframe, a.cfg.CandleLimit)
	if err != nil || len(rows) == 0 {
		if err != nil {
			a.l.Warn("volatility unavailable for trailing", logger.String("symbol", symbol), logger.Error(err))
		}
		return 0
	}
	return a.engine.Indicators(ohlcv.Sanitize(rows, a.cfg.Timeframe.Duration(), now)).ATRPct
}

func (a *Agent) thresholds() signal.Thresholds {
	rc := a.st.Runtime
	low := rc.ATRLowPct
	if a.cfg.AdaptiveVolatility {
		low = a.st.ATRLow
	}
	return signal.Thresholds{
		RSIOversold:   rc.RSIOversold,
		RSIOverbought: rc.RSIOverbought,
		ATRLowPct:     low,
		ATRHighPct:    rc.ATRHighPct,
		VolZMin:       a.cfg.VolZMin,
		Confidence:    a.st.Threshold,
	}
}

func (a *Agent) journalSignals(ctx context.Context, evals []models.SignalEvaluation) {
	if a.events == nil || len(evals) == 0 {
		return
	}
	if err := a.events.PublishSignals(ctx, evals); err != nil {
		a.l.Warn("signal journal failed", logger.Int("count", len(evals)), logger.Error(err))
		a.recordError("journal_signals")
	}
}

// enter runs the gate a second time against the candidate's own threshold,
// since later symbols in the scan retune the shared one, and then opens the
// position.
func (a *Agent) enter(ctx context.Context, sig models.Signal, now time.Time) error {
	if d := risk.Check(sig, a.cfg.Limits, a.riskState(now).For(sig)); !d.Approved {
		a.l.Info("buy rejected by risk gate", logger.String("symbol", sig.Symbol),
			logger.String("reason", d.Reason), logger.Float64("confidence", sig.Confidence))
		return nil
	}
	if !a.cfg.EnableTrading {
		a.l.Info("trading disabled; buy signal not executed", logger.String("symbol", sig.Symbol),
			logger.Float64("confidence", sig.Confidence))
		return nil
	}

	bal, err := a.ex.FetchBalance(ctx)
	if err != nil {
		return fmt.Errorf("balance before buy: %w", err)
	}
	rc := a.st.Runtime
	p, err := a.positions.Open(ctx, position.OpenRequest{
		Signal:        sig,
		SLMultiplier:  rc.SLMultiplier,
		TPMultiplier:  rc.TPMultiplier,
		BalanceBefore: bal.Free(a.cfg.Quote),
	})
	if err != nil {
		if errors.Is(err, domrepo.ErrOrderUnconfirmed) {
			a.l.Error("buy outcome unknown; any fill is left as orphan inventory",
				logger.String("symbol", sig.Symbol), logger.Error(err))
			a.recordError("order_unconfirmed")
			a.notify(ctx, models.Notification{Kind: models.NotifyError, Symbol: sig.Symbol,
				Text: "buy outcome unknown: " + err.Error()})
			return nil
		}
		if isOrderRejection(err) {
			a.l.Error("buy rejected; state unchanged", logger.String("symbol", sig.Symbol), logger.Error(err))
			a.recordError("order_rejected")
			a.notify(ctx, models.Notification{Kind: models.NotifyError, Symbol: sig.Symbol,
				Text: "buy rejected: " + err.Error()})
			return nil
		}
		return err
	}

	a.l.Info("position opened",
		logger.Int64("trade_id", p.ID),
		logger.String("symbol", p.Symbol),
		logger.Float64("qty", p.Qty),
		logger.Float64("entry_price", p.EntryPrice),
		logger.Float64("stop_loss", p.StopLoss),
		logger.Float64("take_profit", p.TakeProfit),
		logger.Float64("entry_fee", p.EntryFee),
		logger.Bool("fee_estimated", p.FeeEstimated))
	a.notify(ctx, models.Notification{Kind: models.NotifyTradeOpen, Symbol: p.Symbol,
		Text: fmt.Sprintf("BUY %.8g @ %.8g  SL %.8g  TP %.8g  conf %.2f",
			p.Qty, p.EntryPrice, p.StopLoss, p.TakeProfit, p.AIConfidence)})
	return nil
}

func isOrderRejection(err error) bool {
	return errors.Is(err, domrepo.ErrInvalidOrder) ||
		errors.Is(err, domrepo.ErrMinAmount) ||
		errors.Is(err, domrepo.ErrInsufficientFunds) ||
		errors.Is(err, domrepo.ErrUnknownSymbol) ||
		errors.Is(err, position.ErrPositionOpen)
}

// managePositions runs exits and trailing for every open position.
func (a *Agent) managePositions(ctx context.Context, now time.Time) error {
	var errs []error
	for _, p := range a.positions.Positions() {
		price, err := a.price(ctx, p.Symbol)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out, err := a.positions.Manage(ctx, p.Symbol, price, a.currentATRPct(ctx, p.Symbol, now))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := a.afterClose(ctx, out); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// afterClose folds a committed close into state. The trade row is already
// written, so weights move only after persistence.
func (a *Agent) afterClose(ctx context.Context, out position.Outcome) error {
	t := out.Closed
	if t == nil {
		return nil
	}
	a.st.RecordClose(*t)
	if a.metrics != nil {
		a.metrics.RecordTradeClosed(string(t.ExitReason))
	}
	a.l.Info("position closed",
		logger.Int64("trade_id", t.ID),
		logger.String("symbol", t.Symbol),
		logger.String("exit_reason", string(t.ExitReason)),
		logger.Float64("exit_price", t.ExitPrice),
		logger.Float64("pnl_net", t.PnLNet),
		logger.Float64("total_fees", t.TotalFees),
		logger.Int("candles_held", t.CandlesHeld))
	a.notify(ctx, models.Notification{Kind: models.NotifyTradeClose, Symbol: t.Symbol,
		Text: fmt.Sprintf("%s @ %.8g  net %.4f  fees %.4f  held %d",
			t.ExitReason, t.ExitPrice, t.PnLNet, t.TotalFees, t.CandlesHeld)})

	if t.ExitReason == models.ExitDustOrphaned {
		return nil
	}
	return a.learn(ctx, *t)
}

func (a *Agent) learn(ctx context.Context, t models.ClosedTrade) error {
	w, adj := tuner.UpdateWeights(a.st.Weights, t.PnLNet, a.cfg.LearningRate)
	a.st.Weights = w
	result := models.ResultLoss
	if t.Win() {
		result = models.ResultProfit
	}
	a.st.AddLearning(models.LearningEvent{
		Timestamp:  t.ClosedAt,
		TradeID:    t.ID,
		Symbol:     t.Symbol,
		Result:     result,
		PnLNet:     t.PnLNet,
		Reason:     string(t.ExitReason),
		Adjustment: adj,
		Weights:    w,
	})
	a.l.Info("weights updated", logger.String("adjustment", adj), logger.String("weights", w.String()))

	var errs []error
	if err := a.files.SaveLearning(a.st.Learning); err != nil {
		errs = append(errs, fmt.Errorf("save learning log: %w", err))
	}
	if err := a.saveWeights(ctx, nil); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// saveWeights writes the current weights and thresholds to the store and
// mirrors them to the weights file.
func (a *Agent) saveWeights(ctx context.Context, perf *models.PerformanceMetrics) error {
	rc := a.st.Runtime
	rec := models.WeightsRecord{
		Weights:       a.st.Weights,
		RSIOversold:   rc.RSIOversold,
		RSIOverbought: rc.RSIOverbought,
		ATRLowPct:     rc.ATRLowPct,
		ATRHighPct:    rc.ATRHighPct,
		Performance:   perf,
		UpdatedAt:     a.clock.Now(),
	}
	var errs []error
	if err := a.store.SaveWeights(ctx, rec); err != nil {
		errs = append(errs, fmt.Errorf("save weights: %w", err))
	}
	if err := a.files.Weights.Save(rec); err != nil {
		errs = append(errs, fmt.Errorf("write weights file: %w", err))
	}
	return errors.Join(errs...)
}
