package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"SpotAgent/internal/domain/models"
	"SpotAgent/internal/domain/repository"
)

// ClickHouseSchema builds the journal DDL for database db.
func ClickHouseSchema(db string) []string {
	return []string{
		"CREATE DATABASE IF NOT EXISTS " + db,
		`CREATE TABLE IF NOT EXISTS ` + db + `.trade_events (
			id String,
			kind LowCardinality(String),
			symbol LowCardinality(String),
			at DateTime64(3, 'UTC'),
			dry_run UInt8,
			payload String
		) ENGINE = ReplacingMergeTree ORDER BY (symbol, at, id)`,
		`CREATE TABLE IF NOT EXISTS ` + db + `.signal_evaluations (
			at DateTime64(3, 'UTC'),
			symbol LowCardinality(String),
			action LowCardinality(String),
			confidence Float64,
			threshold Float64,
			execution_price Float64,
			rsi Float64,
			ema_fast Float64,
			ema_slow Float64,
			ema_trend Float64,
			atr Float64,
			atr_pct Float64,
			vol_z Float64,
			conditions String,
			dry_run UInt8
		) ENGINE = MergeTree ORDER BY (symbol, at)`,
	}
}

// ClickHouseJournal appends trade events and signal evaluations for offline analysis.
type ClickHouseJournal struct {
	db       *sql.DB
	database string
}

var _ repository.Journal = (*ClickHouseJournal)(nil)

func NewClickHouseJournal(db *sql.DB, database string) *ClickHouseJournal {
	return &ClickHouseJournal{db: db, database: database}
}

// InsertTradeEvent is idempotent per envelope id once the ReplacingMergeTree merges.
func (j *ClickHouseJournal) InsertTradeEvent(ctx context.Context, env models.EventEnvelope) error {
	q := fmt.Sprintf("INSERT INTO %s.trade_events (id, kind, symbol, at, dry_run, payload) VALUES (?, ?, ?, ?, ?, ?)", j.database)
	_, err := j.db.ExecContext(ctx, q,
		env.ID, string(env.Kind), env.Symbol, env.At.UTC(), boolToUInt8(env.DryRun), string(env.Payload),
	)
	if err != nil {
		return fmt.Errorf("journal trade event %s: %w", env.ID, err)
	}
	return nil
}

// InsertSignalEvaluations writes evaluations in multi-row chunks.
func (j *ClickHouseJournal) InsertSignalEvaluations(ctx context.Context, evals []models.SignalEvaluation) error {
	const chunkSize = 500
	for start := 0; start < len(evals); start += chunkSize {
		end := min(start+chunkSize, len(evals))

		values := make([]string, 0, end-start)
		args := make([]any, 0, (end-start)*15)
		for _, e := range evals[start:end] {
			if e.Symbol == "" {
				continue
			}
			cond, err := json.Marshal(e.Conditions)
			if err != nil {
				return fmt.Errorf("marshal conditions: %w", err)
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			ind := e.Indicators
			args = append(args,
				e.At.UTC(), e.Symbol, string(e.Action), e.Confidence, e.Threshold, e.ExecutionPrice,
				ind.RSI, ind.EMAFast, ind.EMASlow, ind.EMATrend, ind.ATR, ind.ATRPct, ind.VolZ,
				string(cond), boolToUInt8(e.DryRun),
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf(`INSERT INTO %s.signal_evaluations (at, symbol, action, confidence, threshold,
			execution_price, rsi, ema_fast, ema_slow, ema_trend, atr, atr_pct, vol_z, conditions, dry_run)
			VALUES %s`, j.database, strings.Join(values, ","))
		if _, err := j.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("journal signal evaluations: %w", err)
		}
	}
	return nil
}

func (j *ClickHouseJournal) Health(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
