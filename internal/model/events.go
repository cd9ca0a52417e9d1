package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"main/internal/model/enum"
)

// Trade is an immutable execution record, created exactly once per match
// event. OrderID is the aggressor (later) order; MakerOrderID the resting
// one. Synthetic fills against the quote feed leave MakerOrderID zero.
type Trade struct {
	ID           uuid.UUID       `json:"id"`
	OrderID      uuid.UUID       `json:"orderId"`
	MakerOrderID uuid.UUID       `json:"makerOrderId,omitempty"`
	Symbol       string          `json:"symbol"`
	Side         enum.OrderSide  `json:"side"`
	Quantity     decimal.Decimal `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	ExecutedAt   time.Time       `json:"executedAt"`
}

// ExecutionReport is an immutable notification of an order-state change.
// Reports for one order are emitted in non-decreasing cumulative-fill order.
type ExecutionReport struct {
	ID          uuid.UUID        `json:"id"`
	OrderID     uuid.UUID        `json:"orderId"`
	ExecType    enum.ExecType    `json:"execType"`
	LastQty     decimal.Decimal  `json:"lastQty"`
	LastPrice   decimal.Decimal  `json:"lastPrice"`
	CumQty      decimal.Decimal  `json:"cumQty"`
	AvgPrice    decimal.Decimal  `json:"avgPrice"`
	OrderStatus enum.OrderStatus `json:"orderStatus"`
	Reason      string           `json:"reason,omitempty"`
	ReportedAt  time.Time        `json:"reportedAt"`
}
