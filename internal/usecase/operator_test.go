package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"SpotAgent/internal/domain/models"
	"SpotAgent/internal/state"
)

func newOperator(t *testing.T) (*Operator, *state.State, *fakeStore) {
	t.Helper()
	st := state.New(testNow, models.DefaultWeights(), testRuntime(), 0.5)
	store := &fakeStore{}
	op := NewOperator(st, store, AllowedCallers([]int64{42}, []string{"secret-token"}),
		WithOperatorClock(&fakeClock{now: testNow}))
	return op, st, store
}

func TestParseCommand(t *testing.T) {
	cases := map[string]Command{
		"status":            CmdStatus,
		"/today":            CmdToday,
		"/weights@spot_bot": CmdWeights,
		" /Emergency_Flat ": CmdEmergencyFlat,
		"emergency-flat":    CmdEmergencyFlat,
		"/close":            CmdClose,
		"optimize":          CmdOptimize,
	}
	for in, want := range cases {
		got, err := ParseCommand(in)
		if err != nil || got != want {
			t.Fatalf("ParseCommand(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseCommand("/sell-everything"); !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("expected unknown command, got %v", err)
	}
}

func TestOperatorRejectsUnknownCaller(t *testing.T) {
	op, st, _ := newOperator(t)
	for _, caller := range []string{TelegramCaller(7), APICaller("wrong"), "42", ""} {
		if _, err := op.Execute(context.Background(), caller, CmdEmergencyFlat); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("caller %q: expected unauthorized, got %v", caller, err)
		}
	}
	if flat, _, _ := st.Pending(); flat {
		t.Fatalf("refused command must not arm the flag")
	}
}

func TestOperatorArmsFlags(t *testing.T) {
	op, st, _ := newOperator(t)
	ctx := context.Background()

	r, err := op.Execute(ctx, TelegramCaller(42), CmdEmergencyFlat)
	if err != nil || !r.Accepted {
		t.Fatalf("emergency flat: %+v %v", r, err)
	}
	if _, err := op.Execute(ctx, APICaller("secret-token"), CmdOptimize); err != nil {
		t.Fatalf("optimize: %v", err)
	}
	flat, _, optimize := st.Pending()
	if !flat || !optimize {
		t.Fatalf("flags not armed: flat=%v optimize=%v", flat, optimize)
	}
}

func TestOperatorCloseNeedsPosition(t *testing.T) {
	op, st, _ := newOperator(t)
	st.Publish(models.StatusSnapshot{At: testNow})

	if _, err := op.Execute(context.Background(), TelegramCaller(42), CmdClose); !errors.Is(err, ErrNothingToClose) {
		t.Fatalf("expected nothing to close, got %v", err)
	}

	st.Publish(models.StatusSnapshot{At: testNow, Positions: []models.Position{openPosition(testNow)}})
	if _, err := op.Execute(context.Background(), TelegramCaller(42), CmdClose); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, manual, _ := st.Pending(); !manual {
		t.Fatalf("manual close not requested")
	}
}

func TestOperatorStatusAndToday(t *testing.T) {
	op, st, store := newOperator(t)
	ctx := context.Background()

	r, _ := op.Execute(ctx, TelegramCaller(42), CmdStatus)
	if !strings.Contains(r.Text, "not completed a tick") {
		t.Fatalf("status before first tick: %q", r.Text)
	}

	st.Publish(models.StatusSnapshot{
		At: testNow, DryRun: true, TradingEnabled: true,
		Positions:  []models.Position{openPosition(testNow)},
		LastPrices: map[string]float64{"BTC/USD": 101},
		Daily:      models.DailyStats{Date: "2026-03-02", TradesCount: 2, RealizedPnLNet: 4.2},
	})
	r, _ = op.Execute(ctx, TelegramCaller(42), CmdStatus)
	for _, want := range []string{"dry-run", "BTC/USD", "last 101", "2 trades"} {
		if !strings.Contains(r.Text, want) {
			t.Fatalf("status %q missing %q", r.Text, want)
		}
	}

	store.closed = []models.ClosedTrade{
		{PnLNet: 3, ClosedAt: testNow.Add(time.Hour)},
		{PnLNet: -1, ClosedAt: testNow.Add(2 * time.Hour)},
		{PnLNet: 9, ClosedAt: testNow.AddDate(0, 0, -1)},
	}
	r, err := op.Execute(ctx, APICaller("secret-token"), CmdToday)
	if err != nil {
		t.Fatalf("today: %v", err)
	}
	s := r.Data.(models.DailySummary)
	if s.Trades != 2 || s.NetPnL != 2 || s.ProfitFactor != 3 {
		t.Fatalf("unexpected summary %+v", s)
	}
}

func TestOperatorWeightsFallsBackToDefaults(t *testing.T) {
	op, _, store := newOperator(t)
	r, err := op.Execute(context.Background(), TelegramCaller(42), CmdWeights)
	if err != nil || !strings.Contains(r.Text, "defaults") {
		t.Fatalf("weights without history: %q %v", r.Text, err)
	}
	store.weights = append(store.weights, models.WeightsRecord{
		Weights: models.Weights{RSI: 0.41, EMA: 0.31, ATR: 0.14, Vol: 0.14}, RSIOversold: 34, RSIOverbought: 66,
	})
	r, _ = op.Execute(context.Background(), TelegramCaller(42), CmdWeights)
	if !strings.Contains(r.Text, "rsi=0.410") || !strings.Contains(r.Text, "rsi 34/66") {
		t.Fatalf("weights reply %q", r.Text)
	}
}

type priorStatus struct{ snap models.StatusSnapshot }

func (p priorStatus) LatestStatus(context.Context) (models.StatusSnapshot, bool, error) {
	return p.snap, true, nil
}

func TestOperatorStatusFallsBackToPriorRun(t *testing.T) {
	st := state.New(testNow, models.DefaultWeights(), testRuntime(), 0.5)
	prior := priorStatus{snap: models.StatusSnapshot{At: testNow.Add(-time.Minute), TradingEnabled: true}}
	op := NewOperator(st, &fakeStore{}, AllowedCallers([]int64{42}, nil), WithPriorSnapshot(prior))

	r, _ := op.Execute(context.Background(), TelegramCaller(42), CmdStatus)
	if !strings.HasPrefix(r.Text, "(previous run) live") {
		t.Fatalf("status %q", r.Text)
	}

	st.Publish(models.StatusSnapshot{At: testNow, TradingEnabled: true})
	r, _ = op.Execute(context.Background(), TelegramCaller(42), CmdStatus)
	if strings.Contains(r.Text, "previous run") {
		t.Fatalf("fresh snapshot reported as stale: %q", r.Text)
	}
}
