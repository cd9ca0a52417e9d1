package contingent

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"main/internal/lifecycle"
	"main/internal/model/enum"
)

// algoState is the schedule of one TWAP or VWAP parent: the slice weights
// still to submit and when the next one is due.
type algoState struct {
	parentID uuid.UUID
	symbol   string
	side     enum.OrderSide
	price    decimal.Decimal
	total    decimal.Decimal

	weights   []decimal.Decimal
	next      int
	submitted decimal.Decimal
	nextAt    time.Time
	every     time.Duration
}

// CreateTWAP submits a TWAP parent that slices the total quantity into equal
// child orders, one per interval.
func (o *Orchestrator) CreateTWAP(req lifecycle.Request, slices int, every time.Duration) (uuid.UUID, error) {
	req.Kind = enum.OrderKindTWAP
	return o.createAlgo(req, equalWeights(slices), every)
}

// CreateVWAP submits a VWAP parent that slices the total quantity on a
// U-shaped intraday volume profile: heavier at the open and close, lighter in
// the middle.
func (o *Orchestrator) CreateVWAP(req lifecycle.Request, slices int, every time.Duration) (uuid.UUID, error) {
	req.Kind = enum.OrderKindVWAP
	return o.createAlgo(req, volumeProfileWeights(slices), every)
}

func (o *Orchestrator) createAlgo(req lifecycle.Request, weights []decimal.Decimal, every time.Duration) (uuid.UUID, error) {
	if len(weights) == 0 {
		return uuid.Nil, fmt.Errorf("algo order needs at least one slice")
	}
	if every <= 0 {
		return uuid.Nil, fmt.Errorf("algo order needs a positive slice interval")
	}

	parentID, err := o.sub.Submit(req)
	if err != nil {
		return parentID, err
	}

	o.mu.Lock()
	o.algos[parentID] = &algoState{
		parentID:  parentID,
		symbol:    req.Symbol,
		side:      req.Side,
		price:     req.Price,
		total:     req.Quantity,
		weights:   weights,
		submitted: decimal.Zero,
		nextAt:    o.clock(),
		every:     every,
	}
	o.mu.Unlock()
	return parentID, nil
}

// evalAlgo submits every slice that came due and rolls child fills up into
// the parent. Returns true once the schedule is exhausted and the parent is
// terminal.
func (o *Orchestrator) evalAlgo(st *algoState, now time.Time) bool {
	parent, ok := o.repo.Order(st.parentID)
	if !ok || parent.IsTerminal() {
		return true
	}

	for st.next < len(st.weights) && !now.Before(st.nextAt) {
		qty := st.total.Mul(st.weights[st.next])
		if st.next == len(st.weights)-1 {
			qty = st.total.Sub(st.submitted)
		}
		st.next++
		st.nextAt = st.nextAt.Add(st.every)
		if !qty.IsPositive() {
			continue
		}

		kind := enum.OrderKindMarket
		if st.price.IsPositive() {
			kind = enum.OrderKindLimit
		}
		id := st.parentID
		childID, err := o.sub.Submit(lifecycle.Request{
			Symbol:   st.symbol,
			Side:     st.side,
			Kind:     kind,
			Quantity: qty,
			Price:    st.price,
			ParentID: &id,
		})
		if err != nil {
			logs.Warnf("algo slice rejected: parent=%s slice=%d err=%+v", st.parentID, st.next, err)
			continue
		}
		st.submitted = st.submitted.Add(qty)
		o.linkChildren(st.parentID, []uuid.UUID{childID})
	}

	// The parent only finalizes once the whole schedule has been submitted;
	// finalizing earlier would read a fully-filled first slice as completion.
	done := st.next >= len(st.weights)
	return o.aggregateParent(st.parentID, done) && done
}

func equalWeights(slices int) []decimal.Decimal {
	if slices <= 0 {
		return nil
	}
	w := decimal.NewFromInt(1).Div(decimal.NewFromInt(int64(slices)))
	out := make([]decimal.Decimal, slices)
	for i := range out {
		out[i] = w
	}
	return out
}

// volumeProfileWeights builds a normalized U-shaped curve: weight grows
// quadratically with distance from the middle slice.
func volumeProfileWeights(slices int) []decimal.Decimal {
	if slices <= 0 {
		return nil
	}
	if slices == 1 {
		return []decimal.Decimal{decimal.NewFromInt(1)}
	}

	raw := make([]decimal.Decimal, slices)
	sum := decimal.Zero
	mid := float64(slices-1) / 2
	for i := range raw {
		dist := (float64(i) - mid) / mid
		raw[i] = decimal.NewFromFloat(1 + dist*dist)
		sum = sum.Add(raw[i])
	}
	for i := range raw {
		raw[i] = raw[i].Div(sum)
	}
	return raw
}
