package repository

import "errors"

// Exchange error kinds. Adapters wrap the venue error with one of these.
var (
	// ErrTransient covers network failures, rate limits and 5xx responses.
	ErrTransient = errors.New("exchange: transient error")
	// ErrInvalidOrder covers parameters that will never succeed: zero cost, missing price, qty below minimum on buy.
	ErrInvalidOrder      = errors.New("exchange: invalid order")
	ErrMinAmount         = errors.New("exchange: amount below market minimum")
	ErrInsufficientFunds = errors.New("exchange: insufficient funds")
	ErrUnknownSymbol     = errors.New("exchange: unknown symbol")
	// ErrOrderUnconfirmed means an order request may have reached the venue
	// but no answer came back. It is never retried.
	ErrOrderUnconfirmed = errors.New("exchange: order outcome unknown")
)

var (
	ErrTradeNotOpen = errors.New("store: trade not found or already closed")
)
