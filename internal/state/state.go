// Package state holds the agent's mutable process state. The control loop
// owns State; other goroutines only touch the operator flags and read the
// published snapshot.
package state

import (
	"sync/atomic"
	"time"

	"SpotAgent/internal/domain/models"
	"SpotAgent/pkg/util"
)

type State struct {
	Weights   models.Weights
	Runtime   models.RuntimeConfig
	Threshold float64
	// ATRLow is the volatility-adapted lower ATR% band; never persisted.
	ATRLow float64
	Daily  models.DailyStats
	// DayStartEquity is quote-denominated equity at the last rollover.
	DayStartEquity float64
	LastLossAt     time.Time
	LowRisk        bool
	Fees           models.Fees
	FeesAt         time.Time
	DustSweptAt    time.Time
	Learning       []models.LearningEvent
	LastPrices     map[string]float64
	LastSignals    []models.SignalSummary
	LastError      string

	emergencyFlat atomic.Bool
	manualClose   atomic.Bool
	optimize      atomic.Bool
	snapshot      atomic.Pointer[models.StatusSnapshot]
}

func New(now time.Time, w models.Weights, rc models.RuntimeConfig, threshold float64) *State {
	return &State{
		Weights:    w,
		Runtime:    rc,
		Threshold:  threshold,
		ATRLow:     rc.ATRLowPct,
		Daily:      models.DailyStats{Date: util.DayKey(now)},
		Fees:       models.DefaultFees(),
		LastPrices: map[string]float64{},
	}
}

// RolledOver reports whether now falls on a different day than Daily.
func (s *State) RolledOver(now time.Time) bool {
	return s.Daily.Date != util.DayKey(now)
}

// ResetDaily zeroes the counters for now's day.
func (s *State) ResetDaily(now time.Time) {
	s.Daily = models.DailyStats{Date: util.DayKey(now)}
}

// RecordClose folds a closed trade into the day counters.
func (s *State) RecordClose(t models.ClosedTrade) {
	s.Daily.TradesCount++
	s.Daily.RealizedPnLNet = util.RoundMoney(s.Daily.RealizedPnLNet + t.PnLNet)
	if t.PnLNet < 0 {
		s.LastLossAt = t.ClosedAt
	}
}

// AddLearning appends e and keeps the newest MaxLearningEvents.
func (s *State) AddLearning(e models.LearningEvent) {
	s.Learning = append(s.Learning, e)
	if n := len(s.Learning); n > models.MaxLearningEvents {
		s.Learning = append([]models.LearningEvent(nil), s.Learning[n-models.MaxLearningEvents:]...)
	}
}

// RequestEmergencyFlat is safe from any goroutine.
func (s *State) RequestEmergencyFlat() { s.emergencyFlat.Store(true) }

// TakeEmergencyFlat clears the flag and reports whether it was set.
func (s *State) TakeEmergencyFlat() bool { return s.emergencyFlat.Swap(false) }

func (s *State) RequestManualClose() { s.manualClose.Store(true) }
func (s *State) TakeManualClose() bool { return s.manualClose.Swap(false) }

func (s *State) RequestOptimization() { s.optimize.Store(true) }
func (s *State) TakeOptimization() bool { return s.optimize.Swap(false) }

// Pending lists operator requests not yet drained.
func (s *State) Pending() (flat, manual, optimize bool) {
	return s.emergencyFlat.Load(), s.manualClose.Load(), s.optimize.Load()
}

// Publish stores snap for concurrent readers.
func (s *State) Publish(snap models.StatusSnapshot) {
	s.snapshot.Store(&snap)
}

// Snapshot returns the last published view, zero before the first tick.
func (s *State) Snapshot() (models.StatusSnapshot, bool) {
	p := s.snapshot.Load()
	if p == nil {
		return models.StatusSnapshot{}, false
	}
	return *p, true
}
