// Package risk is the synchronous approval gate in front of order placement.
package risk

import (
	"time"

	"SpotAgent/internal/domain/models"
)

const (
	ReasonDailyLoss     = "daily loss limit"
	ReasonDailyTrades   = "daily trade limit"
	ReasonCooldown      = "cooldown after loss"
	ReasonPositionOpen  = "position already open"
	ReasonNoPosition    = "no position to sell"
	ReasonLowConfidence = "confidence below threshold"
	ReasonNoAction      = "no actionable signal"
)

type Limits struct {
	MaxDailyLoss   float64
	MaxDailyTrades int
	Cooldown       time.Duration
}

// State is the slice of agent state the gate reads.
type State struct {
	Daily       models.DailyStats
	LastLossAt  time.Time
	HasPosition bool
	Threshold   float64
	Now         time.Time
}

// For returns st with the threshold sig was scored against. Each symbol is
// scored under its own volatility, so the shared threshold only reflects the
// last symbol evaluated.
func (st State) For(sig models.Signal) State {
	if sig.Threshold > 0 {
		st.Threshold = sig.Threshold
	}
	return st
}

type Decision struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

func approve() Decision { return Decision{Approved: true} }
func reject(reason string) Decision { return Decision{Reason: reason} }

// DailyLimits checks only the day-level caps and the loss cooldown.
func DailyLimits(lim Limits, st State) Decision {
	if lim.MaxDailyLoss > 0 && st.Daily.RealizedPnLNet <= -lim.MaxDailyLoss {
		return reject(ReasonDailyLoss)
	}
	if lim.MaxDailyTrades > 0 && st.Daily.TradesCount >= lim.MaxDailyTrades {
		return reject(ReasonDailyTrades)
	}
	if lim.Cooldown > 0 && !st.LastLossAt.IsZero() && st.Now.Sub(st.LastLossAt) < lim.Cooldown {
		return reject(ReasonCooldown)
	}
	return approve()
}

// Check approves or rejects sig against st.Threshold.
func Check(sig models.Signal, lim Limits, st State) Decision {
	if d := DailyLimits(lim, st); !d.Approved {
		return d
	}
	switch sig.Action {
	case models.ActionBuy:
		if st.HasPosition {
			return reject(ReasonPositionOpen)
		}
	case models.ActionSell:
		if !st.HasPosition {
			return reject(ReasonNoPosition)
		}
	default:
		return reject(ReasonNoAction)
	}
	if sig.Confidence < st.Threshold {
		return reject(ReasonLowConfidence)
	}
	return approve()
}
