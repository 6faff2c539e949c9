package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventKind string

const (
	EventBuyRequested  EventKind = "BUY_REQUESTED"
	EventBuyExecuted   EventKind = "BUY_EXECUTED"
	EventExitTriggered EventKind = "EXIT_TRIGGERED"
	EventClosed        EventKind = "CLOSED"
)

// TradeEvent is a closed set of position lifecycle transitions. The
// unexported method keeps implementations inside this package.
type TradeEvent interface {
	Kind() EventKind
	EventSymbol() string
	tradeEvent()
}

type BuyRequested struct {
	Symbol      string  `json:"symbol"`
	QuoteAmount float64 `json:"quote_amount"`
	NetSpend    float64 `json:"net_spend"`
	Price       float64 `json:"price"`
	Confidence  float64 `json:"confidence"`
}

type BuyExecuted struct {
	TradeID    int64   `json:"trade_id"`
	Symbol     string  `json:"symbol"`
	OrderID    string  `json:"order_id"`
	Qty        float64 `json:"qty"`
	Price      float64 `json:"price"`
	Fee        float64 `json:"fee"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
}

type ExitTriggered struct {
	TradeID int64      `json:"trade_id"`
	Symbol  string     `json:"symbol"`
	Reason  ExitReason `json:"reason"`
	Price   float64    `json:"price"`
}

type Closed struct {
	TradeID     int64      `json:"trade_id"`
	Symbol      string     `json:"symbol"`
	Reason      ExitReason `json:"reason"`
	EntryPrice  float64    `json:"entry_price"`
	ExitPrice   float64    `json:"exit_price"`
	Qty         float64    `json:"qty"`
	TotalFees   float64    `json:"total_fees"`
	PnLNet      float64    `json:"pnl_net"`
	CandlesHeld int        `json:"candles_held"`
}

func (BuyRequested) Kind() EventKind  { return EventBuyRequested }
func (BuyExecuted) Kind() EventKind   { return EventBuyExecuted }
func (ExitTriggered) Kind() EventKind { return EventExitTriggered }
func (Closed) Kind() EventKind        { return EventClosed }

func (e BuyRequested) EventSymbol() string  { return e.Symbol }
func (e BuyExecuted) EventSymbol() string   { return e.Symbol }
func (e ExitTriggered) EventSymbol() string { return e.Symbol }
func (e Closed) EventSymbol() string        { return e.Symbol }

func (BuyRequested) tradeEvent()  {}
func (BuyExecuted) tradeEvent()   {}
func (ExitTriggered) tradeEvent() {}
func (Closed) tradeEvent()        {}

// EventEnvelope is the wire form of a TradeEvent.
type EventEnvelope struct {
	ID      string          `json:"id"`
	Kind    EventKind       `json:"kind"`
	Symbol  string          `json:"symbol"`
	At      time.Time       `json:"at"`
	DryRun  bool            `json:"dry_run"`
	Payload json.RawMessage `json:"payload"`
}

func NewEnvelope(id string, ev TradeEvent, at time.Time, dryRun bool) (EventEnvelope, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return EventEnvelope{}, fmt.Errorf("marshal %s: %w", ev.Kind(), err)
	}
	return EventEnvelope{
		ID:      id,
		Kind:    ev.Kind(),
		Symbol:  ev.EventSymbol(),
		At:      at.UTC(),
		DryRun:  dryRun,
		Payload: payload,
	}, nil
}

// Decode returns the concrete event carried by the envelope.
func (e EventEnvelope) Decode() (TradeEvent, error) {
	var ev TradeEvent
	switch e.Kind {
	case EventBuyRequested:
		var v BuyRequested
		if err := json.Unmarshal(e.Payload, &v); err != nil {
			return nil, err
		}
		ev = v
	case EventBuyExecuted:
		var v BuyExecuted
		if err := json.Unmarshal(e.Payload, &v); err != nil {
			return nil, err
		}
		ev = v
	case EventExitTriggered:
		var v ExitTriggered
		if err := json.Unmarshal(e.Payload, &v); err != nil {
			return nil, err
		}
		ev = v
	case EventClosed:
		var v Closed
		if err := json.Unmarshal(e.Payload, &v); err != nil {
			return nil, err
		}
		ev = v
	default:
		return nil, fmt.Errorf("unknown event kind %q", e.Kind)
	}
	return ev, nil
}

// SignalEvaluation is the journal row written for every symbol on every tick.
type SignalEvaluation struct {
	At             time.Time  `json:"at"`
	Symbol         string     `json:"symbol"`
	Action         Action     `json:"action"`
	Confidence     float64    `json:"confidence"`
	Threshold      float64    `json:"threshold"`
	ExecutionPrice float64    `json:"execution_price"`
	Indicators     Indicators `json:"indicators"`
	Conditions     Conditions `json:"conditions"`
	DryRun         bool       `json:"dry_run"`
}

func EvaluationFromSignal(s Signal, dryRun bool) SignalEvaluation {
	return SignalEvaluation{
		At:             s.Timestamp,
		Symbol:         s.Symbol,
		Action:         s.Action,
		Confidence:     s.Confidence,
		Threshold:      s.Threshold,
		ExecutionPrice: s.ExecutionPrice,
		Indicators:     s.Indicators,
		Conditions:     s.Conditions,
		DryRun:         dryRun,
	}
}
