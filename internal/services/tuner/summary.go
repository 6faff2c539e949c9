package tuner

import (
	"math"
	"sort"
	"time"

	"SpotAgent/internal/domain/models"
	"SpotAgent/pkg/util"
)

// Summarize builds the daily_summary row for day from that day's closed
// trades. Running it twice on the same input yields the same row.
func Summarize(day time.Time, trades []models.ClosedTrade) models.DailySummary {
	ordered := append([]models.ClosedTrade(nil), trades...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ClosedAt.Before(ordered[j].ClosedAt) })

	s := models.DailySummary{Day: util.DayStart(day)}
	var m models.PerformanceMetrics
	equity, peak := 0.0, 0.0
	for _, t := range ordered {
		m.Trades++
		switch {
		case t.PnLNet > 0:
			m.Wins++
			m.GrossProfit += t.PnLNet
		case t.PnLNet < 0:
			m.Losses++
			m.GrossLoss += -t.PnLNet
		}
		m.NetPnL += t.PnLNet
		equity += t.PnLNet
		peak = math.Max(peak, equity)
		m.MaxDrawdown = math.Max(m.MaxDrawdown, peak-equity)
	}
	fillRatios(&m)

	s.Trades, s.Wins, s.Losses = m.Trades, m.Wins, m.Losses
	s.NetPnL = util.RoundMoney(m.NetPnL)
	s.GrossProfit = util.RoundMoney(m.GrossProfit)
	s.GrossLoss = util.RoundMoney(m.GrossLoss)
	s.ProfitFactor = util.Round(m.ProfitFactor, 4)
	s.WinRate = util.Round(m.WinRate, 4)
	s.MaxDrawdown = util.RoundMoney(m.MaxDrawdown)
	s.AvgWin = util.RoundMoney(m.AvgWin)
	s.AvgLoss = util.RoundMoney(m.AvgLoss)
	return s
}

func sortDays(days []models.DailySummary) {
	sort.SliceStable(days, func(i, j int) bool { return days[i].Day.Before(days[j].Day) })
}
