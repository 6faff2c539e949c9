package position

import (
	"math"
	"time"

	"SpotAgent/internal/domain/models"
	"SpotAgent/pkg/util"
)

// pnlSnap is the magnitude below which net PnL is written as zero.
const pnlSnap = 0.001

// rEpsilon absorbs float noise when R sits exactly on the trigger.
const rEpsilon = 1e-9

// Levels returns stop-loss and take-profit for an entry, both floored at 0.
func Levels(entry, atr, slMult, tpMult float64) (sl, tp float64) {
	sl = util.RoundMoney(math.Max(0, entry-slMult*atr))
	tp = util.RoundMoney(math.Max(0, entry+tpMult*atr))
	return sl, tp
}

// NetSpend is the quote amount sent to the exchange so that spend plus a
// round trip of taker fees stays within the risk budget.
func NetSpend(risk, takerFee float64) float64 {
	return risk / (1 + 2*takerFee)
}

// CheckExit applies stop-loss, take-profit and time exit in that order.
func CheckExit(p models.Position, price float64, now time.Time, tf time.Duration, maxCandles int) (models.ExitReason, bool) {
	switch {
	case price <= p.StopLoss:
		return models.ExitStopLoss, true
	case price >= p.TakeProfit:
		return models.ExitTakeProfit, true
	case maxCandles > 0 && util.CandlesElapsed(p.OpenedAt, now, tf) >= maxCandles:
		return models.ExitTime, true
	}
	return "", false
}

// TrailConfig drives the break-even trailing stop.
type TrailConfig struct {
	TriggerR      float64
	Buffer        float64
	TightBuffer   float64
	TightenATRPct float64
}

func DefaultTrailConfig() TrailConfig {
	return TrailConfig{TriggerR: 1.0, Buffer: 0.1, TightBuffer: 0.25, TightenATRPct: 0.10}
}

// RiskReward is (price - entry) / (entry - initial stop). Zero when the
// position carries no initial risk.
func RiskReward(p models.Position, price float64) float64 {
	risk := p.InitialRisk()
	if risk <= 0 {
		return 0
	}
	return (price - p.EntryPrice) / risk
}

// TrailStop proposes a new stop for p at price. atrPct is the current
// volatility; when it is not positive the entry ATR% is used. ok is true
// only when the proposal strictly raises the current stop.
func TrailStop(p models.Position, price, atrPct float64, cfg TrailConfig) (float64, bool) {
	if RiskReward(p, price) < cfg.TriggerR-rEpsilon {
		return p.StopLoss, false
	}
	if atrPct <= 0 {
		atrPct = p.ATRPct
	}
	buffer := cfg.Buffer
	if atrPct < cfg.TightenATRPct {
		buffer = cfg.TightBuffer
	}
	next := util.RoundMoney(p.EntryPrice + p.InitialRisk()*buffer)
	if next <= p.StopLoss {
		return p.StopLoss, false
	}
	return next, true
}

// Settle fills the exit side of a trade: gross and net PnL, total fees and
// net percentage, all rounded to money precision.
func Settle(p models.Position, exitPrice, exitFee float64, reason models.ExitReason, closedAt time.Time, tf time.Duration) models.ClosedTrade {
	gross := util.RoundMoney(exitPrice*p.Qty - p.EntryPrice*p.Qty)
	fees := util.RoundMoney(p.EntryFee + exitFee)
	net := util.RoundMoney(gross - fees)
	if math.Abs(net) < pnlSnap {
		net = 0
	}
	pct := 0.0
	if cost := p.EntryPrice * p.Qty; cost > 0 {
		pct = util.Round(net/cost*100, 4)
	}
	t := models.ClosedTrade{
		Position:    p,
		ExitPrice:   util.RoundMoney(exitPrice),
		ExitFee:     util.RoundMoney(exitFee),
		TotalFees:   fees,
		PnLGross:    gross,
		PnLNet:      net,
		PnLPctNet:   pct,
		ClosedAt:    closedAt,
		ExitReason:  reason,
		CandlesHeld: util.CandlesElapsed(p.OpenedAt, closedAt, tf),
	}
	t.NetBalanceChange = net
	if p.BalanceBefore > 0 {
		t.BalanceAfter = util.RoundMoney(p.BalanceBefore + net)
	}
	return t
}

// Orphaned closes a position whose sell was refused for minimum amount.
// PnL is written as zero; the entry fee is carried as the only fee.
func Orphaned(p models.Position, price float64, closedAt time.Time, tf time.Duration) models.ClosedTrade {
	return models.ClosedTrade{
		Position:         p,
		ExitPrice:        util.RoundMoney(price),
		TotalFees:        util.RoundMoney(p.EntryFee),
		ClosedAt:         closedAt,
		ExitReason:       models.ExitDustOrphaned,
		CandlesHeld:      util.CandlesElapsed(p.OpenedAt, closedAt, tf),
		BalanceAfter:     p.BalanceBefore,
		NetBalanceChange: 0,
	}
}
