package risk

import (
	"testing"
	"time"

	"SpotAgent/internal/domain/models"
)

func TestCheck(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	lim := Limits{MaxDailyLoss: 100, MaxDailyTrades: 10, Cooldown: 30 * time.Minute}
	buy := models.Signal{Action: models.ActionBuy, Confidence: 0.6}

	cases := []struct {
		name   string
		sig    models.Signal
		st     State
		reason string
	}{
		{"approved", buy, State{Threshold: 0.5, Now: now}, ""},
		{"loss limit reached exactly", buy, State{Daily: models.DailyStats{RealizedPnLNet: -100}, Threshold: 0.5, Now: now}, ReasonDailyLoss},
		{"trade cap", buy, State{Daily: models.DailyStats{TradesCount: 10}, Threshold: 0.5, Now: now}, ReasonDailyTrades},
		{"cooldown", buy, State{LastLossAt: now.Add(-29 * time.Minute), Threshold: 0.5, Now: now}, ReasonCooldown},
		{"cooldown elapsed", buy, State{LastLossAt: now.Add(-30 * time.Minute), Threshold: 0.5, Now: now}, ""},
		{"buy with position", buy, State{HasPosition: true, Threshold: 0.5, Now: now}, ReasonPositionOpen},
		{"sell without position", models.Signal{Action: models.ActionSell, Confidence: 0.9}, State{Threshold: 0.5, Now: now}, ReasonNoPosition},
		{"threshold moved up", buy, State{Threshold: 0.61, Now: now}, ReasonLowConfidence},
		{"confidence equal to threshold", buy, State{Threshold: 0.6, Now: now}, ""},
		{"no action", models.Signal{Action: models.ActionNone}, State{Now: now}, ReasonNoAction},
	}
	for _, tc := range cases {
		d := Check(tc.sig, lim, tc.st)
		if d.Reason != tc.reason || d.Approved != (tc.reason == "") {
			t.Fatalf("%s: got %+v want reason %q", tc.name, d, tc.reason)
		}
	}
}

func TestStateForUsesSignalThreshold(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	shared := State{Threshold: 0.7, Now: now}
	calm := models.Signal{Action: models.ActionBuy, Confidence: 0.6, Threshold: 0.55}
	if d := Check(calm, Limits{}, shared.For(calm)); !d.Approved {
		t.Fatalf("signal scored at 0.55 should pass, got %+v", d)
	}
	if d := Check(calm, Limits{}, shared); d.Reason != ReasonLowConfidence {
		t.Fatalf("shared threshold alone should reject, got %+v", d)
	}
	unscored := models.Signal{Action: models.ActionBuy, Confidence: 0.6}
	if got := shared.For(unscored).Threshold; got != 0.7 {
		t.Fatalf("signal without threshold must keep the shared one, got %v", got)
	}
}
