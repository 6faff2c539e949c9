package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"SpotAgent/internal/domain/models"
	domrepo "SpotAgent/internal/domain/repository"
	"SpotAgent/internal/services/tuner"
	"SpotAgent/internal/state"
	"SpotAgent/pkg/logger"
	"SpotAgent/pkg/util"
)

type Command string

const (
	CmdStatus        Command = "status"
	CmdToday         Command = "today"
	CmdWeights       Command = "weights"
	CmdOptimize      Command = "optimize"
	CmdEmergencyFlat Command = "emergency-flat"
	CmdClose         Command = "close"
	CmdHelp          Command = "help"
)

var (
	ErrUnauthorized   = errors.New("operator: caller not allowed")
	ErrUnknownCommand = errors.New("operator: unknown command")
	ErrNothingToClose = errors.New("operator: no open position")
)

// ParseCommand accepts "status", "/status" and "/status@bot".
func ParseCommand(s string) (Command, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.TrimPrefix(s, "/")
	if i := strings.IndexByte(s, '@'); i >= 0 {
		s = s[:i]
	}
	s = strings.ReplaceAll(s, "_", "-")
	switch c := Command(s); c {
	case CmdStatus, CmdToday, CmdWeights, CmdOptimize, CmdEmergencyFlat, CmdClose, CmdHelp:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCommand, s)
}

// TelegramCaller and APICaller build the identities used by the allow-list.
func TelegramCaller(chatID int64) string { return fmt.Sprintf("telegram:%d", chatID) }
func APICaller(token string) string     { return "api:" + token }

// Reply is the result of one command. Accepted commands take effect on the
// next tick.
type Reply struct {
	Command  Command `json:"command"`
	Text     string  `json:"text"`
	Data     any     `json:"data,omitempty"`
	Accepted bool    `json:"accepted,omitempty"`
}

// Operator runs commands from any goroutine. It reads only the published
// snapshot and sets the state flags; it never touches loop-owned fields.
type Operator struct {
	st      *state.State
	store   domrepo.TradeStore
	clock   domrepo.Clock
	allowed map[string]struct{}
	prior   SnapshotSource
	l       *logger.Logger
}

// SnapshotSource serves a snapshot persisted by an earlier process.
type SnapshotSource interface {
	LatestStatus(ctx context.Context) (models.StatusSnapshot, bool, error)
}

type OperatorOption func(*Operator)

func WithOperatorClock(c domrepo.Clock) OperatorOption {
	return func(o *Operator) { o.clock = c }
}

// WithPriorSnapshot answers status from src until this process has ticked.
func WithPriorSnapshot(src SnapshotSource) OperatorOption {
	return func(o *Operator) { o.prior = src }
}

func WithOperatorLogger(l *logger.Logger) OperatorOption {
	return func(o *Operator) { o.l = l }
}

func NewOperator(st *state.State, store domrepo.TradeStore, allowed []string, opts ...OperatorOption) *Operator {
	o := &Operator{
		st:      st,
		store:   store,
		clock:   domrepo.SystemClock{},
		allowed: make(map[string]struct{}, len(allowed)),
		l:       logger.Nop(),
	}
	for _, id := range allowed {
		if id = strings.TrimSpace(id); id != "" {
			o.allowed[id] = struct{}{}
		}
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// AllowedCallers builds the allow-list from chat ids and API tokens.
func AllowedCallers(chats []int64, tokens []string) []string {
	out := make([]string, 0, len(chats)+len(tokens))
	for _, c := range chats {
		out = append(out, TelegramCaller(c))
	}
	for _, t := range tokens {
		if t != "" {
			out = append(out, APICaller(t))
		}
	}
	return out
}

func (o *Operator) Authorized(caller string) bool {
	_, ok := o.allowed[caller]
	return ok
}

// Execute checks caller against the allow-list and runs cmd.
func (o *Operator) Execute(ctx context.Context, caller string, cmd Command) (Reply, error) {
	if !o.Authorized(caller) {
		o.l.Warn("operator command refused", logger.String("caller", redact(caller)), logger.String("command", string(cmd)))
		return Reply{}, ErrUnauthorized
	}
	o.l.Info("operator command", logger.String("caller", redact(caller)), logger.String("command", string(cmd)))

	switch cmd {
	case CmdStatus:
		return o.status(ctx), nil
	case CmdToday:
		return o.today(ctx)
	case CmdWeights:
		return o.weights(ctx)
	case CmdOptimize:
		o.st.RequestOptimization()
		return Reply{Command: cmd, Text: "optimization requested; runs on the next tick", Accepted: true}, nil
	case CmdEmergencyFlat:
		o.st.RequestEmergencyFlat()
		return Reply{Command: cmd, Text: "emergency flat armed; every position closes on the next tick", Accepted: true}, nil
	case CmdClose:
		if snap, ok := o.st.Snapshot(); ok && len(snap.Positions) == 0 {
			return Reply{}, ErrNothingToClose
		}
		o.st.RequestManualClose()
		return Reply{Command: cmd, Text: "manual close requested; runs on the next tick", Accepted: true}, nil
	case CmdHelp:
		return Reply{Command: cmd, Text: helpText}, nil
	}
	return Reply{}, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
}

const helpText = "status | today | weights | optimize | emergency-flat | close"

func (o *Operator) status(ctx context.Context) Reply {
	snap, ok := o.st.Snapshot()
	stale := false
	if !ok && o.prior != nil {
		var err error
		snap, ok, err = o.prior.LatestStatus(ctx)
		if err != nil {
			o.l.Warn("load cached status", logger.Error(err))
		}
		stale = ok
	}
	if !ok {
		return Reply{Command: CmdStatus, Text: "agent has not completed a tick yet"}
	}
	var b strings.Builder
	if stale {
		b.WriteString("(previous run) ")
	}
	mode := "live"
	if snap.DryRun {
		mode = "dry-run"
	}
	if !snap.TradingEnabled {
		mode += ", trading disabled"
	}
	fmt.Fprintf(&b, "%s as of %s\n", mode, snap.At.Format("2006-01-02 15:04:05"))
	if len(snap.Positions) == 0 {
		b.WriteString("no open position\n")
	}
	for _, p := range snap.Positions {
		last := snap.LastPrices[p.Symbol]
		fmt.Fprintf(&b, "%s qty %.8g entry %.8g last %.8g SL %.8g TP %.8g\n",
			p.Symbol, p.Qty, p.EntryPrice, last, p.StopLoss, p.TakeProfit)
	}
	fmt.Fprintf(&b, "today: %d trades, net %.2f\n", snap.Daily.TradesCount, snap.Daily.RealizedPnLNet)
	fmt.Fprintf(&b, "threshold %.3f", snap.ConfidenceThreshold)
	if snap.LowRisk {
		b.WriteString(", low-risk mode")
	}
	if snap.LastError != "" {
		fmt.Fprintf(&b, "\nlast error: %s", util.Truncate(snap.LastError, 200))
	}
	return Reply{Command: CmdStatus, Text: b.String(), Data: snap}
}

func (o *Operator) today(ctx context.Context) (Reply, error) {
	from, to := util.DayBounds(o.clock.Now())
	trades, err := o.store.ClosedTradesBetween(ctx, from, to)
	if err != nil {
		return Reply{}, fmt.Errorf("today's trades: %w", err)
	}
	s := tuner.Summarize(from, trades)
	text := fmt.Sprintf("%s: %d trades (%d won, %d lost)  net %.2f  pf %.2f  win rate %.0f%%",
		util.DayKey(from), s.Trades, s.Wins, s.Losses, s.NetPnL, s.ProfitFactor, s.WinRate*100)
	return Reply{Command: CmdToday, Text: text, Data: s}, nil
}

func (o *Operator) weights(ctx context.Context) (Reply, error) {
	rec, found, err := o.store.LatestWeights(ctx)
	if err != nil {
		return Reply{}, fmt.Errorf("latest weights: %w", err)
	}
	if !found {
		snap, _ := o.st.Snapshot()
		w := snap.Weights
		if w.Sum() == 0 {
			w = models.DefaultWeights()
		}
		return Reply{Command: CmdWeights, Text: w.String() + " (defaults, never updated)", Data: w}, nil
	}
	text := fmt.Sprintf("%s\nrsi %.0f/%.0f  atr%% %.2f-%.2f  updated %s", rec.Weights.String(),
		rec.RSIOversold, rec.RSIOverbought, rec.ATRLowPct, rec.ATRHighPct, rec.UpdatedAt.Format("2006-01-02 15:04"))
	return Reply{Command: CmdWeights, Text: text, Data: rec}, nil
}

// redact keeps API tokens out of the log.
func redact(caller string) string {
	if strings.HasPrefix(caller, "api:") && len(caller) > 8 {
		return caller[:8] + "***"
	}
	return caller
}
