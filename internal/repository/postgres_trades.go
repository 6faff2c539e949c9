package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"SpotAgent/internal/domain/models"
	"SpotAgent/internal/domain/repository"
	"SpotAgent/pkg/postgres"
	"SpotAgent/pkg/util"
)

// PostgresSchema is applied at boot through postgres.Client.InitSchema.
var PostgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS trades (
		id BIGSERIAL PRIMARY KEY,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		qty DOUBLE PRECISION NOT NULL,
		entry_price DOUBLE PRECISION NOT NULL,
		entry_fee DOUBLE PRECISION NOT NULL DEFAULT 0,
		exit_price DOUBLE PRECISION,
		exit_fee DOUBLE PRECISION,
		total_fees DOUBLE PRECISION,
		pnl DOUBLE PRECISION,
		pnl_pct DOUBLE PRECISION,
		pnl_net DOUBLE PRECISION,
		ai_confidence DOUBLE PRECISION,
		atr_pct DOUBLE PRECISION,
		stop_loss DOUBLE PRECISION NOT NULL,
		initial_stop_loss DOUBLE PRECISION,
		take_profit DOUBLE PRECISION NOT NULL,
		opened_at TIMESTAMPTZ NOT NULL,
		closed_at TIMESTAMPTZ,
		exit_reason TEXT,
		candles_held INTEGER,
		balance_before DOUBLE PRECISION,
		balance_after DOUBLE PRECISION,
		net_balance_change DOUBLE PRECISION
	)`,
	`ALTER TABLE trades ADD COLUMN IF NOT EXISTS initial_stop_loss DOUBLE PRECISION`,
	`CREATE INDEX IF NOT EXISTS trades_open_idx ON trades (opened_at) WHERE closed_at IS NULL`,
	`CREATE INDEX IF NOT EXISTS trades_closed_at_idx ON trades (closed_at)`,
	`CREATE TABLE IF NOT EXISTS daily_summary (
		day DATE PRIMARY KEY,
		trades INTEGER NOT NULL,
		wins INTEGER NOT NULL,
		losses INTEGER NOT NULL,
		net_pnl DOUBLE PRECISION NOT NULL,
		gross_profit DOUBLE PRECISION NOT NULL,
		gross_loss DOUBLE PRECISION NOT NULL,
		profit_factor DOUBLE PRECISION NOT NULL,
		win_rate DOUBLE PRECISION NOT NULL,
		max_drawdown DOUBLE PRECISION NOT NULL,
		avg_win DOUBLE PRECISION NOT NULL,
		avg_loss DOUBLE PRECISION NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ai_weights (
		id BIGSERIAL PRIMARY KEY,
		w_rsi DOUBLE PRECISION NOT NULL,
		w_ema DOUBLE PRECISION NOT NULL,
		w_atr DOUBLE PRECISION NOT NULL,
		w_vol DOUBLE PRECISION NOT NULL,
		rsi_oversold DOUBLE PRECISION NOT NULL,
		rsi_overbought DOUBLE PRECISION NOT NULL,
		atr_low_pct DOUBLE PRECISION NOT NULL,
		atr_high_pct DOUBLE PRECISION NOT NULL,
		performance_snapshot JSONB,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
}

const (
	positionColumns = `id, symbol, side, qty, entry_price, entry_fee, ai_confidence, atr_pct,
		stop_loss, initial_stop_loss, take_profit, opened_at, balance_before`
	closedColumns = positionColumns + `, exit_price, exit_fee, total_fees, pnl, pnl_pct, pnl_net,
		closed_at, exit_reason, candles_held, balance_after, net_balance_change`
	summaryColumns = `day, trades, wins, losses, net_pnl, gross_profit, gross_loss, profit_factor,
		win_rate, max_drawdown, avg_win, avg_loss`
)

// PostgresTradeStore implements TradeStore and BalanceBackfillStore.
type PostgresTradeStore struct {
	client *postgres.Client
}

var (
	_ repository.TradeStore           = (*PostgresTradeStore)(nil)
	_ repository.BalanceBackfillStore = (*PostgresTradeStore)(nil)
)

func NewPostgresTradeStore(client *postgres.Client) *PostgresTradeStore {
	return &PostgresTradeStore{client: client}
}

func (s *PostgresTradeStore) InsertTrade(ctx context.Context, p models.Position) (int64, error) {
	const q = `INSERT INTO trades (symbol, side, qty, entry_price, entry_fee, ai_confidence, atr_pct,
		stop_loss, initial_stop_loss, take_profit, opened_at, balance_before)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id`
	initial := p.InitialStopLoss
	if initial == 0 {
		initial = p.StopLoss
	}
	var id int64
	err := s.client.DB().QueryRowContext(ctx, q,
		p.Symbol, string(p.Side), p.Qty, p.EntryPrice, p.EntryFee, p.AIConfidence, p.ATRPct,
		p.StopLoss, initial, p.TakeProfit, p.OpenedAt.UTC(), p.BalanceBefore,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert trade %s: %w", p.Symbol, err)
	}
	return id, nil
}

// CloseTrade locks the row, refuses a trade that is already closed, and
// derives total fees and net PnL from the entry fee stored with it. A
// replayed close is reported as ErrTradeNotOpen instead of overwriting the
// first result.
func (s *PostgresTradeStore) CloseTrade(ctx context.Context, t models.ClosedTrade) error {
	const (
		lock = `SELECT entry_fee, closed_at FROM trades WHERE id = $1 FOR UPDATE`
		q    = `UPDATE trades SET exit_price = $1, exit_fee = $2, total_fees = $3, pnl = $4, pnl_pct = $5,
		pnl_net = $6, closed_at = $7, exit_reason = $8, candles_held = $9, balance_after = $10,
		net_balance_change = $11
		WHERE id = $12 AND closed_at IS NULL`
	)
	return s.client.InTx(ctx, func(tx *sql.Tx) error {
		var (
			entryFee float64
			closedAt sql.NullTime
		)
		err := tx.QueryRowContext(ctx, lock, t.ID).Scan(&entryFee, &closedAt)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && closedAt.Valid) {
			return fmt.Errorf("close trade %d: %w", t.ID, repository.ErrTradeNotOpen)
		}
		if err != nil {
			return fmt.Errorf("close trade %d: lock: %w", t.ID, err)
		}
		t = withStoredEntryFee(t, entryFee)
		if _, err := tx.ExecContext(ctx, q,
			t.ExitPrice, t.ExitFee, t.TotalFees, t.PnLGross, t.PnLPctNet, t.PnLNet, t.ClosedAt.UTC(),
			string(t.ExitReason), t.CandlesHeld, t.BalanceAfter, t.NetBalanceChange, t.ID,
		); err != nil {
			return fmt.Errorf("close trade %d: %w", t.ID, err)
		}
		return nil
	})
}

// pnlSnap is the magnitude below which net PnL is written as zero.
const pnlSnap = 0.001

// withStoredEntryFee recomputes the fee-dependent exit columns when the
// stored entry fee differs from the one the caller settled with. Dust
// closes keep a zero net by definition.
func withStoredEntryFee(t models.ClosedTrade, entryFee float64) models.ClosedTrade {
	if entryFee == t.EntryFee {
		return t
	}
	t.EntryFee = entryFee
	t.TotalFees = util.RoundMoney(entryFee + t.ExitFee)
	if t.ExitReason == models.ExitDustOrphaned {
		return t
	}
	net := util.RoundMoney(t.PnLGross - t.TotalFees)
	if math.Abs(net) < pnlSnap {
		net = 0
	}
	if t.BalanceAfter != 0 {
		t.BalanceAfter = util.RoundMoney(t.BalanceAfter + net - t.PnLNet)
	}
	if cost := t.EntryPrice * t.Qty; cost > 0 {
		t.PnLPctNet = util.Round(net/cost*100, 4)
	}
	t.PnLNet, t.NetBalanceChange = net, net
	return t
}

// UpdateStopLoss persists a trailed stop. The guard keeps the stored stop
// monotone even if two writers race.
func (s *PostgresTradeStore) UpdateStopLoss(ctx context.Context, id int64, stop float64) error {
	const q = `UPDATE trades SET stop_loss = $1 WHERE id = $2 AND closed_at IS NULL AND stop_loss <= $1`
	res, err := s.client.DB().ExecContext(ctx, q, stop, id)
	if err != nil {
		return fmt.Errorf("update stop loss %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update stop loss %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("update stop loss %d: %w", id, repository.ErrTradeNotOpen)
	}
	return nil
}

func (s *PostgresTradeStore) OpenTrades(ctx context.Context) ([]models.Position, error) {
	q := `SELECT ` + positionColumns + ` FROM trades WHERE closed_at IS NULL ORDER BY opened_at, id`
	rows, err := s.client.DB().QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("open trades: %w", err)
	}
	defer rows.Close()

	var out []models.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan open trade: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresTradeStore) ClosedTradesBetween(ctx context.Context, from, to time.Time) ([]models.ClosedTrade, error) {
	q := `SELECT ` + closedColumns + ` FROM trades
		WHERE closed_at IS NOT NULL AND closed_at >= $1 AND closed_at < $2 ORDER BY closed_at, id`
	return s.queryClosed(ctx, q, from.UTC(), to.UTC())
}

// ClosedTradesOrdered returns every closed trade oldest first for the balance backfill.
func (s *PostgresTradeStore) ClosedTradesOrdered(ctx context.Context) ([]models.ClosedTrade, error) {
	q := `SELECT ` + closedColumns + ` FROM trades WHERE closed_at IS NOT NULL ORDER BY closed_at, id`
	return s.queryClosed(ctx, q)
}

func (s *PostgresTradeStore) UpdateTradeBalances(ctx context.Context, updates []models.BalanceUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	const q = `UPDATE trades SET balance_before = $1, balance_after = $2, net_balance_change = $3 WHERE id = $4`
	return s.client.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, q)
		if err != nil {
			return fmt.Errorf("prepare balance update: %w", err)
		}
		defer stmt.Close()
		for _, u := range updates {
			if _, err := stmt.ExecContext(ctx, u.Before, u.After, u.Net, u.TradeID); err != nil {
				return fmt.Errorf("update balances %d: %w", u.TradeID, err)
			}
		}
		return nil
	})
}

func (s *PostgresTradeStore) queryClosed(ctx context.Context, q string, args ...any) ([]models.ClosedTrade, error) {
	rows, err := s.client.DB().QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("closed trades: %w", err)
	}
	defer rows.Close()

	var out []models.ClosedTrade
	for rows.Next() {
		t, err := scanClosed(rows)
		if err != nil {
			return nil, fmt.Errorf("scan closed trade: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresTradeStore) UpsertDailySummary(ctx context.Context, d models.DailySummary) error {
	q := `INSERT INTO daily_summary (` + summaryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (day) DO UPDATE SET trades = EXCLUDED.trades, wins = EXCLUDED.wins,
		losses = EXCLUDED.losses, net_pnl = EXCLUDED.net_pnl, gross_profit = EXCLUDED.gross_profit,
		gross_loss = EXCLUDED.gross_loss, profit_factor = EXCLUDED.profit_factor,
		win_rate = EXCLUDED.win_rate, max_drawdown = EXCLUDED.max_drawdown,
		avg_win = EXCLUDED.avg_win, avg_loss = EXCLUDED.avg_loss`
	_, err := s.client.DB().ExecContext(ctx, q,
		d.Day.UTC(), d.Trades, d.Wins, d.Losses, d.NetPnL, d.GrossProfit, d.GrossLoss,
		d.ProfitFactor, d.WinRate, d.MaxDrawdown, d.AvgWin, d.AvgLoss,
	)
	if err != nil {
		return fmt.Errorf("upsert daily summary %s: %w", d.Day.Format("2006-01-02"), err)
	}
	return nil
}

// RecentDailySummaries returns the summaries of the last days calendar days, oldest first.
func (s *PostgresTradeStore) RecentDailySummaries(ctx context.Context, days int) ([]models.DailySummary, error) {
	q := `SELECT ` + summaryColumns + ` FROM daily_summary
		WHERE day > CURRENT_DATE - $1::int ORDER BY day`
	rows, err := s.client.DB().QueryContext(ctx, q, days)
	if err != nil {
		return nil, fmt.Errorf("recent daily summaries: %w", err)
	}
	defer rows.Close()

	var out []models.DailySummary
	for rows.Next() {
		var d models.DailySummary
		if err := rows.Scan(&d.Day, &d.Trades, &d.Wins, &d.Losses, &d.NetPnL, &d.GrossProfit,
			&d.GrossLoss, &d.ProfitFactor, &d.WinRate, &d.MaxDrawdown, &d.AvgWin, &d.AvgLoss); err != nil {
			return nil, fmt.Errorf("scan daily summary: %w", err)
		}
		d.Day = d.Day.UTC()
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresTradeStore) SaveWeights(ctx context.Context, r models.WeightsRecord) error {
	var snapshot []byte
	if r.Performance != nil {
		b, err := json.Marshal(r.Performance)
		if err != nil {
			return fmt.Errorf("marshal performance snapshot: %w", err)
		}
		snapshot = b
	}
	const q = `INSERT INTO ai_weights (w_rsi, w_ema, w_atr, w_vol, rsi_oversold, rsi_overbought,
		atr_low_pct, atr_high_pct, performance_snapshot, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := s.client.DB().ExecContext(ctx, q,
		r.RSI, r.EMA, r.ATR, r.Vol, r.RSIOversold, r.RSIOverbought, r.ATRLowPct, r.ATRHighPct,
		nullJSON(snapshot), r.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save weights: %w", err)
	}
	return nil
}

func (s *PostgresTradeStore) LatestWeights(ctx context.Context) (models.WeightsRecord, bool, error) {
	const q = `SELECT w_rsi, w_ema, w_atr, w_vol, rsi_oversold, rsi_overbought, atr_low_pct, atr_high_pct,
		performance_snapshot, updated_at FROM ai_weights ORDER BY updated_at DESC, id DESC LIMIT 1`
	var (
		r        models.WeightsRecord
		snapshot []byte
	)
	err := s.client.DB().QueryRowContext(ctx, q).Scan(&r.RSI, &r.EMA, &r.ATR, &r.Vol, &r.RSIOversold,
		&r.RSIOverbought, &r.ATRLowPct, &r.ATRHighPct, &snapshot, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.WeightsRecord{}, false, nil
	}
	if err != nil {
		return models.WeightsRecord{}, false, fmt.Errorf("latest weights: %w", err)
	}
	if len(snapshot) > 0 {
		var pm models.PerformanceMetrics
		if err := json.Unmarshal(snapshot, &pm); err != nil {
			return models.WeightsRecord{}, false, fmt.Errorf("decode performance snapshot: %w", err)
		}
		r.Performance = &pm
	}
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, true, nil
}

func (s *PostgresTradeStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPosition(sc scanner) (models.Position, error) {
	var (
		p                 models.Position
		side              string
		conf, atr, before sql.NullFloat64
		initial           sql.NullFloat64
	)
	if err := sc.Scan(&p.ID, &p.Symbol, &side, &p.Qty, &p.EntryPrice, &p.EntryFee, &conf, &atr,
		&p.StopLoss, &initial, &p.TakeProfit, &p.OpenedAt, &before); err != nil {
		return models.Position{}, err
	}
	p.Side = models.Side(side)
	p.AIConfidence = conf.Float64
	p.ATRPct = atr.Float64
	p.BalanceBefore = before.Float64
	p.OpenedAt = p.OpenedAt.UTC()
	p.InitialStopLoss = initialStop(initial, p.StopLoss)
	return p, nil
}

func scanClosed(sc scanner) (models.ClosedTrade, error) {
	var (
		t                               models.ClosedTrade
		side, reason                    string
		conf, atr, before, after, delta sql.NullFloat64
		initial                         sql.NullFloat64
		candles                         sql.NullInt64
	)
	err := sc.Scan(&t.ID, &t.Symbol, &side, &t.Qty, &t.EntryPrice, &t.EntryFee, &conf, &atr,
		&t.StopLoss, &initial, &t.TakeProfit, &t.OpenedAt, &before,
		&t.ExitPrice, &t.ExitFee, &t.TotalFees, &t.PnLGross, &t.PnLPctNet, &t.PnLNet,
		&t.ClosedAt, &reason, &candles, &after, &delta)
	if err != nil {
		return models.ClosedTrade{}, err
	}
	t.Side = models.Side(side)
	t.ExitReason = models.ExitReason(reason)
	t.AIConfidence = conf.Float64
	t.ATRPct = atr.Float64
	t.BalanceBefore = before.Float64
	t.BalanceAfter = after.Float64
	t.NetBalanceChange = delta.Float64
	t.CandlesHeld = int(candles.Int64)
	t.InitialStopLoss = initialStop(initial, t.StopLoss)
	t.OpenedAt = t.OpenedAt.UTC()
	t.ClosedAt = t.ClosedAt.UTC()
	return t, nil
}

// initialStop falls back to stop_loss for rows written before the
// initial_stop_loss column existed.
func initialStop(initial sql.NullFloat64, stop float64) float64 {
	if initial.Valid && initial.Float64 > 0 {
		return initial.Float64
	}
	return stop
}

func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
