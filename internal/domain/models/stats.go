package models

import "time"

// DailyStats is the in-memory counter for the current UTC day.
type DailyStats struct {
	Date           string  `json:"date"`
	TradesCount    int     `json:"trades_count"`
	RealizedPnLNet float64 `json:"realized_pnl_net"`
}

// DailySummary is one row of daily_summary, keyed by Day (UTC midnight).
type DailySummary struct {
	Day          time.Time `json:"day"`
	Trades       int       `json:"trades"`
	Wins         int       `json:"wins"`
	Losses       int       `json:"losses"`
	NetPnL       float64   `json:"net_pnl"`
	GrossProfit  float64   `json:"gross_profit"`
	GrossLoss    float64   `json:"gross_loss"`
	ProfitFactor float64   `json:"profit_factor"`
	WinRate      float64   `json:"win_rate"`
	MaxDrawdown  float64   `json:"max_drawdown"`
	AvgWin       float64   `json:"avg_win"`
	AvgLoss      float64   `json:"avg_loss"`
}
