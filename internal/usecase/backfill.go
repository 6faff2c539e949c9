package usecase

import (
	"context"
	"errors"
	"fmt"

	"SpotAgent/internal/domain/models"
	domrepo "SpotAgent/internal/domain/repository"
	"SpotAgent/pkg/logger"
	"SpotAgent/pkg/util"
)

var ErrNoStartBalance = errors.New("backfill: no starting balance")

// BalanceBackfill recomputes the balance columns of closed trades by replaying
// pnl_net in closed_at order. It is an offline tool; the agent never runs it.
type BalanceBackfill struct {
	store domrepo.BalanceBackfillStore
	l     *logger.Logger
}

func NewBalanceBackfill(store domrepo.BalanceBackfillStore, l *logger.Logger) *BalanceBackfill {
	if l == nil {
		l = logger.Nop()
	}
	return &BalanceBackfill{store: store, l: l}
}

// BackfillResult reports what Run computed and whether it was written.
type BackfillResult struct {
	Updates      []models.BalanceUpdate
	StartBalance float64
	EndBalance   float64
	Applied      bool
}

// Run replays every closed trade starting from start. A start <= 0 falls back
// to the first trade's recorded balance_before. With dryRun the updates are
// computed but not written.
func (b *BalanceBackfill) Run(ctx context.Context, start float64, dryRun bool) (BackfillResult, error) {
	trades, err := b.store.ClosedTradesOrdered(ctx)
	if err != nil {
		return BackfillResult{}, fmt.Errorf("load closed trades: %w", err)
	}
	if len(trades) == 0 {
		b.l.Info("no closed trades to backfill")
		return BackfillResult{StartBalance: start, EndBalance: start}, nil
	}
	if start <= 0 {
		start = trades[0].BalanceBefore
	}
	if start <= 0 {
		return BackfillResult{}, ErrNoStartBalance
	}

	updates := Replay(trades, start)
	res := BackfillResult{Updates: updates, StartBalance: start, EndBalance: updates[len(updates)-1].After}
	b.l.Info("balance replay computed",
		logger.Int("trades", len(updates)),
		logger.Float64("start_balance", res.StartBalance),
		logger.Float64("end_balance", res.EndBalance),
		logger.Bool("dry_run", dryRun))
	if dryRun {
		return res, nil
	}
	if err := b.store.UpdateTradeBalances(ctx, updates); err != nil {
		return res, fmt.Errorf("write balances: %w", err)
	}
	res.Applied = true
	return res, nil
}

// Replay is the pure part of the backfill. trades must already be ordered.
func Replay(trades []models.ClosedTrade, start float64) []models.BalanceUpdate {
	out := make([]models.BalanceUpdate, 0, len(trades))
	bal := util.RoundMoney(start)
	for _, t := range trades {
		after := util.RoundMoney(bal + t.PnLNet)
		out = append(out, models.BalanceUpdate{
			TradeID: t.ID,
			Before:  bal,
			After:   after,
			Net:     util.RoundMoney(after - bal),
		})
		bal = after
	}
	return out
}
