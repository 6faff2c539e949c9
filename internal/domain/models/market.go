package models

import "time"

// Market is one entry of the exchange catalogue. Symbol is canonical "BASE/QUOTE".
type Market struct {
	Symbol          string  `json:"symbol"`
	ID              string  `json:"id"`
	WSName          string  `json:"ws_name,omitempty"`
	Base            string  `json:"base"`
	Quote           string  `json:"quote"`
	Active          bool    `json:"active"`
	Spot            bool    `json:"spot"`
	AmountPrecision int32   `json:"amount_precision"`
	PricePrecision  int32   `json:"price_precision"`
	MinAmount       float64 `json:"min_amount"`
	MinCost         float64 `json:"min_cost"`
}

type Ticker struct {
	Symbol    string    `json:"symbol"`
	Last      float64   `json:"last"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Timestamp time.Time `json:"timestamp"`
}

type BalanceEntry struct {
	Free  float64 `json:"free"`
	Used  float64 `json:"used"`
	Total float64 `json:"total"`
}

// Balances is keyed by canonical asset code (BTC, ETH, USD...).
type Balances map[string]BalanceEntry

// Free returns the free amount of asset, 0 when absent.
func (b Balances) Free(asset string) float64 {
	return b[asset].Free
}

// Order is the normalized result of a market order. FeeReported is false when
// the exchange omitted the fee and Fee is zero.
type Order struct {
	ID          string    `json:"id"`
	ClientID    string    `json:"client_id,omitempty"`
	Symbol      string    `json:"symbol"`
	Side        Side      `json:"side"`
	Status      string    `json:"status"`
	Filled      float64   `json:"filled"`
	Average     float64   `json:"average"`
	Cost        float64   `json:"cost"`
	Fee         float64   `json:"fee"`
	FeeReported bool      `json:"fee_reported"`
	Timestamp   time.Time `json:"timestamp"`
}

type Fees struct {
	Taker float64 `json:"taker"`
	Maker float64 `json:"maker"`
}

const (
	DefaultTakerFee = 0.0026
	DefaultMakerFee = 0.0016
)

func DefaultFees() Fees {
	return Fees{Taker: DefaultTakerFee, Maker: DefaultMakerFee}
}
