package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"main/internal/model/enum"
	"main/pkg/exception"
)

// Order is a single order instruction. Orders are created by the lifecycle
// service at submission and mutated only through Repository updates; terminal
// orders are retained for history, never deleted.
type Order struct {
	ID              uuid.UUID        `json:"id"`
	ClientID        string           `json:"clientId,omitempty"`
	Symbol          string           `json:"symbol"`
	Side            enum.OrderSide   `json:"side"`
	Kind            enum.OrderKind   `json:"kind"`
	Quantity        decimal.Decimal  `json:"quantity"`
	Price           decimal.Decimal  `json:"price"`
	StopPrice       decimal.Decimal  `json:"stopPrice"`
	DisplayQuantity decimal.Decimal  `json:"displayQuantity"`
	TimeInForce     enum.TimeInForce `json:"timeInForce"`
	Status          enum.OrderStatus `json:"status"`
	FilledQuantity  decimal.Decimal  `json:"filledQuantity"`
	AvgFillPrice    decimal.Decimal  `json:"avgFillPrice"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
	ParentID        *uuid.UUID       `json:"parentId,omitempty"`
	ChildIDs        []uuid.UUID      `json:"childIds,omitempty"`
	Contingents     []ContingentSpec `json:"contingents,omitempty"`
	Legs            []Leg            `json:"legs,omitempty"`
	RejectReason    string           `json:"rejectReason,omitempty"`
}

// ContingentSpec is an exit spec attached to a bracket parent. It is consumed
// once triggered, then discarded.
type ContingentSpec struct {
	Type              enum.ContingentType `json:"type"`
	TriggerPrice      decimal.Decimal     `json:"triggerPrice"`
	TrailingOffsetPct decimal.Decimal     `json:"trailingOffsetPct"`
	ExitKind          enum.OrderKind      `json:"exitKind"`
	Quantity          decimal.Decimal     `json:"quantity"`
}

// Leg is one component of a multi-leg order.
type Leg struct {
	Symbol   string          `json:"symbol"`
	Side     enum.OrderSide  `json:"side"`
	Kind     enum.OrderKind  `json:"kind"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// Remaining returns the unfilled quantity.
func (o *Order) Remaining() decimal.Decimal {
	return o.Quantity.Sub(o.FilledQuantity)
}

// IsTerminal reports whether the order can no longer transition.
func (o *Order) IsTerminal() bool {
	return o.Status.IsTerminal()
}

// ApplyFill adds a fill to the order, updating the filled quantity, weighted
// average fill price, and status. It rejects non-positive quantities and
// overfills so the matching engine can halt instead of corrupting the book.
func (o *Order) ApplyFill(qty, price decimal.Decimal, now time.Time) error {
	if o.Status.IsTerminal() {
		return exception.ErrStateConflict
	}
	if !qty.IsPositive() {
		return exception.ErrMatchingInvariant
	}
	filled := o.FilledQuantity.Add(qty)
	if filled.GreaterThan(o.Quantity) {
		return exception.ErrMatchingInvariant
	}

	notional := o.AvgFillPrice.Mul(o.FilledQuantity).Add(price.Mul(qty))
	if filled.IsPositive() {
		o.AvgFillPrice = notional.Div(filled)
	}
	o.FilledQuantity = filled
	if filled.Equal(o.Quantity) {
		o.Status = enum.OrderStatusFilled
	} else {
		o.Status = enum.OrderStatusPartiallyFilled
	}
	o.UpdatedAt = now
	return nil
}

// Transition moves the order to the next status if the state machine allows
// it, returning ErrStateConflict otherwise.
func (o *Order) Transition(next enum.OrderStatus, now time.Time) error {
	if !o.Status.CanTransitionTo(next) {
		return exception.ErrStateConflict
	}
	o.Status = next
	o.UpdatedAt = now
	return nil
}

// Clone returns a deep copy safe to hand outside the repository lock.
func (o *Order) Clone() *Order {
	cp := *o
	if o.ParentID != nil {
		id := *o.ParentID
		cp.ParentID = &id
	}
	if len(o.ChildIDs) > 0 {
		cp.ChildIDs = append([]uuid.UUID(nil), o.ChildIDs...)
	}
	if len(o.Contingents) > 0 {
		cp.Contingents = append([]ContingentSpec(nil), o.Contingents...)
	}
	if len(o.Legs) > 0 {
		cp.Legs = append([]Leg(nil), o.Legs...)
	}
	return &cp
}
