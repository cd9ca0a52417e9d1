package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"main/internal/model/enum"
	"main/pkg/exception"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newOrder(qty string) *Order {
	return &Order{
		ID:       uuid.New(),
		Symbol:   "BTC-USD",
		Side:     enum.OrderSideBuy,
		Kind:     enum.OrderKindLimit,
		Quantity: dec(qty),
		Price:    dec("100"),
		Status:   enum.OrderStatusNew,
	}
}

func TestApplyFillProgression(t *testing.T) {
	o := newOrder("10")
	now := time.Now()

	if err := o.ApplyFill(dec("4"), dec("100"), now); err != nil {
		t.Fatalf("first fill: %v", err)
	}
	if o.Status != enum.OrderStatusPartiallyFilled {
		t.Fatalf("status mismatch! should be PARTIALLY_FILLED but got %s", o.Status)
	}
	if !o.Remaining().Equal(dec("6")) {
		t.Fatalf("remaining mismatch! should be 6 but got %s", o.Remaining())
	}

	if err := o.ApplyFill(dec("6"), dec("110"), now); err != nil {
		t.Fatalf("second fill: %v", err)
	}
	if o.Status != enum.OrderStatusFilled {
		t.Fatalf("status mismatch! should be FILLED but got %s", o.Status)
	}
	// (4*100 + 6*110) / 10
	if !o.AvgFillPrice.Equal(dec("106")) {
		t.Fatalf("avg price mismatch! should be 106 but got %s", o.AvgFillPrice)
	}
}

func TestApplyFillGuards(t *testing.T) {
	testCases := []struct {
		desc     string
		prepare  func(o *Order)
		qty      string
		expected error
	}{
		{
			"terminal order",
			func(o *Order) { o.Status = enum.OrderStatusCancelled },
			"1",
			exception.ErrStateConflict,
		},
		{
			"zero quantity",
			func(o *Order) {},
			"0",
			exception.ErrMatchingInvariant,
		},
		{
			"overfill",
			func(o *Order) {},
			"11",
			exception.ErrMatchingInvariant,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			o := newOrder("10")
			tc.prepare(o)
			if err := o.ApplyFill(dec(tc.qty), dec("100"), time.Now()); err != tc.expected {
				t.Fatalf("error mismatch! should be %v but got %v", tc.expected, err)
			}
			if o.FilledQuantity.IsPositive() {
				t.Fatalf("rejected fill must not mutate the order")
			}
		})
	}
}

func TestTransitionStateMachine(t *testing.T) {
	o := newOrder("1")

	if err := o.Transition(enum.OrderStatusCancelled, time.Now()); err != nil {
		t.Fatalf("cancel from NEW: %v", err)
	}
	if err := o.Transition(enum.OrderStatusNew, time.Now()); err != exception.ErrStateConflict {
		t.Fatalf("terminal states are final, got %v", err)
	}
	if err := o.Transition(enum.OrderStatusFilled, time.Now()); err != exception.ErrStateConflict {
		t.Fatalf("cancelled order cannot fill, got %v", err)
	}
}

func TestCloneIsDeep(t *testing.T) {
	parent := uuid.New()
	o := newOrder("1")
	o.ParentID = &parent
	o.ChildIDs = []uuid.UUID{uuid.New()}
	o.Contingents = []ContingentSpec{{Type: enum.ContingentTakeProfit, TriggerPrice: dec("105")}}
	o.Legs = []Leg{{Symbol: "ETH-USD", Side: enum.OrderSideSell, Kind: enum.OrderKindMarket, Quantity: dec("1")}}

	cp := o.Clone()
	cp.ChildIDs[0] = uuid.New()
	cp.Contingents[0].TriggerPrice = dec("1")
	cp.Legs[0].Symbol = "SOL-USD"
	*cp.ParentID = uuid.New()

	if o.ChildIDs[0] == cp.ChildIDs[0] {
		t.Fatalf("child ids must not be shared")
	}
	if !o.Contingents[0].TriggerPrice.Equal(dec("105")) {
		t.Fatalf("contingent specs must not be shared")
	}
	if o.Legs[0].Symbol != "ETH-USD" {
		t.Fatalf("legs must not be shared")
	}
	if *o.ParentID != parent {
		t.Fatalf("parent id must not be shared")
	}
}
