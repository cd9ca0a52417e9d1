package exception

import "github.com/yanun0323/errors"

// Validation errors. Returned synchronously from submit; no order is persisted.
var (
	ErrInvalidQuantity  = errors.New("order quantity must be positive")
	ErrMissingPrice     = errors.New("limit order requires a price")
	ErrMissingStopPrice = errors.New("stop order requires a stop price")
	ErrUnknownSymbol    = errors.New("unknown symbol")
	ErrInvalidRequest   = errors.New("invalid order request")
)

// Runtime errors.
var (
	ErrNoMarketData      = errors.New("no market data for symbol")
	ErrStateConflict     = errors.New("order is in a terminal state")
	ErrOrderNotFound     = errors.New("order not found")
	ErrDuplicateOrder    = errors.New("order already exists")
	ErrDuplicateClientID = errors.New("client order id already exists")
	ErrOrderQueueFull    = errors.New("order queue full")
	ErrRiskRejected      = errors.New("order rejected by risk checks")
)

// ErrMatchingInvariant indicates a bug in the matching algorithm, not a data
// problem. The affected symbol's book halts when it is raised.
var ErrMatchingInvariant = errors.New("matching invariant violated")
