package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a point-in-time market data snapshot for one symbol.
type Quote struct {
	Symbol    string          `json:"symbol"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	LastPrice decimal.Decimal `json:"lastPrice"`
	Volume    decimal.Decimal `json:"volume"`
	Ts        time.Time       `json:"ts"`
}

// OrderBookLevel aggregates resting orders at one price.
type OrderBookLevel struct {
	Price      decimal.Decimal `json:"price"`
	Quantity   decimal.Decimal `json:"quantity"`
	OrderCount int             `json:"orderCount"`
}

// OrderBookSnapshot is the derived per-symbol book view, recomputed on demand
// from the matching engine's resting orders.
type OrderBookSnapshot struct {
	Symbol string           `json:"symbol"`
	Bids   []OrderBookLevel `json:"bids"`
	Asks   []OrderBookLevel `json:"asks"`
}
