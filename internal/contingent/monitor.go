package contingent

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"main/internal/lifecycle"
	"main/internal/model"
	"main/internal/model/enum"
)

// Tick runs one monitor pass over every armed bracket, OCO group, multi-leg
// parent, and algo schedule. Exported for the ticker loop and for tests.
func (o *Orchestrator) Tick(now time.Time) {
	start := o.clock()
	o.mu.Lock()
	defer o.mu.Unlock()

	for id, st := range o.brackets {
		if done := o.evalBracket(st); done {
			delete(o.brackets, id)
		}
	}
	for id, g := range o.groups {
		if done := o.evalOCO(g); done {
			delete(o.groups, id)
		}
	}
	for id := range o.multis {
		if done := o.aggregateParent(id, true); done {
			delete(o.multis, id)
		}
	}
	for id, st := range o.algos {
		if done := o.evalAlgo(st, now); done {
			delete(o.algos, id)
		}
	}
	o.metrics.ObserveMonitorTick(o.clock().Sub(start))
}

// evalBracket checks one bracket's exit specs against the latest quote.
// Returns true when the bracket is finished and should be dropped.
func (o *Orchestrator) evalBracket(st *bracketState) bool {
	parent, ok := o.repo.Order(st.parentID)
	if !ok {
		return true
	}
	switch parent.Status {
	case enum.OrderStatusCancelled, enum.OrderStatusRejected:
		// Entry never completed; nothing to protect.
		return true
	case enum.OrderStatusFilled:
	default:
		// Exits stay dormant until the entry fills.
		return false
	}

	quote, ok := o.feed.Quote(parent.Symbol)
	if !ok || !quote.LastPrice.IsPositive() {
		return false
	}
	last := quote.LastPrice

	if !st.armed {
		st.armed = true
		st.extreme = last
	} else if favorable(parent.Side, last, st.extreme) {
		st.extreme = last
	}

	// Registration order breaks ties when several specs trigger on the same
	// tick: exactly one exit ever fires.
	for _, spec := range st.specs {
		if !exitTriggered(spec, parent, last, st.extreme) {
			continue
		}
		o.spawnExit(parent, spec, last)
		return true
	}
	return false
}

// favorable reports whether price improves on the current extreme from the
// parent position's point of view.
func favorable(parentSide enum.OrderSide, price, extreme decimal.Decimal) bool {
	if parentSide == enum.OrderSideBuy {
		return price.GreaterThan(extreme)
	}
	return price.LessThan(extreme)
}

// exitTriggered evaluates one exit spec. A long parent takes profit above the
// trigger and stops out below it; a short parent mirrors both.
func exitTriggered(spec model.ContingentSpec, parent *model.Order, last, extreme decimal.Decimal) bool {
	long := parent.Side == enum.OrderSideBuy
	switch spec.Type {
	case enum.ContingentTakeProfit:
		if long {
			return last.GreaterThanOrEqual(spec.TriggerPrice)
		}
		return last.LessThanOrEqual(spec.TriggerPrice)

	case enum.ContingentStopLoss:
		if long {
			return last.LessThanOrEqual(spec.TriggerPrice)
		}
		return last.GreaterThanOrEqual(spec.TriggerPrice)

	case enum.ContingentTrailingStop:
		if !spec.TrailingOffsetPct.IsPositive() {
			return false
		}
		// Offset is a percentage of the entry price, measured as a retrace
		// from the favorable extreme.
		offset := parent.AvgFillPrice.Mul(spec.TrailingOffsetPct).Div(decimal.NewFromInt(100))
		if long {
			return extreme.Sub(last).GreaterThanOrEqual(offset)
		}
		return last.Sub(extreme).GreaterThanOrEqual(offset)

	default:
		return false
	}
}

// spawnExit submits the exit order for a triggered spec and links it to the
// parent. Take-profits exit as a limit at the trigger price; stops exit as a
// market order. Exits go out immediate-or-cancel so an unmarketable limit
// cancels instead of resting indefinitely.
func (o *Orchestrator) spawnExit(parent *model.Order, spec model.ContingentSpec, last decimal.Decimal) {
	qty := spec.Quantity
	if !qty.IsPositive() || qty.GreaterThan(parent.FilledQuantity) {
		qty = parent.FilledQuantity
	}

	kind := spec.ExitKind
	price := decimal.Zero
	if !kind.IsAvailable() {
		if spec.Type == enum.ContingentTakeProfit {
			kind = enum.OrderKindLimit
		} else {
			kind = enum.OrderKindMarket
		}
	}
	if kind == enum.OrderKindLimit {
		price = spec.TriggerPrice
		if !price.IsPositive() {
			price = last
		}
	}

	id := parent.ID
	childID, err := o.sub.Submit(lifecycle.Request{
		Symbol:      parent.Symbol,
		Side:        parent.Side.Opposite(),
		Kind:        kind,
		Quantity:    qty,
		Price:       price,
		TimeInForce: enum.TimeInForceIOC,
		ParentID:    &id,
	})
	if err != nil {
		logs.Errorf("bracket exit rejected: parent=%s type=%s err=%+v", parent.ID, spec.Type, err)
		return
	}
	o.linkChildren(parent.ID, []uuid.UUID{childID})
	logs.Infof("bracket exit triggered: parent=%s type=%s exit=%s last=%s", parent.ID, spec.Type, childID, last)
}

// evalOCO enforces mutual exclusion for one group. Returns true once the
// group is dissolved.
func (o *Orchestrator) evalOCO(g *ocoGroup) bool {
	primary, okP := o.repo.Order(g.primary)
	secondary, okS := o.repo.Order(g.secondary)
	if !okP || !okS {
		return true
	}

	if primary.FilledQuantity.IsPositive() {
		o.cancelOther(g.secondary, secondary)
		return true
	}
	if secondary.FilledQuantity.IsPositive() {
		o.cancelOther(g.primary, primary)
		return true
	}
	// A member that died without filling dissolves the group and leaves the
	// remainder working on its own.
	return primary.IsTerminal() || secondary.IsTerminal()
}

func (o *Orchestrator) cancelOther(id uuid.UUID, other *model.Order) {
	if other.IsTerminal() {
		return
	}
	if err := o.sub.Cancel(id); err != nil {
		logs.Warnf("oco cancel failed: order=%s err=%+v", id, err)
		return
	}
	logs.Infof("oco sibling cancelled: order=%s", id)
}

// aggregateParent rolls child fill state up into a container parent. With
// finalize set it also settles the parent's terminal status once every child
// is done. Returns true once the parent is terminal.
func (o *Orchestrator) aggregateParent(parentID uuid.UUID, finalize bool) bool {
	parent, ok := o.repo.Order(parentID)
	if !ok {
		return true
	}
	if parent.IsTerminal() {
		return true
	}
	if len(parent.ChildIDs) == 0 {
		return false
	}

	filled := decimal.Zero
	notional := decimal.Zero
	allTerminal := true
	for _, childID := range parent.ChildIDs {
		child, ok := o.repo.Order(childID)
		if !ok {
			continue
		}
		filled = filled.Add(child.FilledQuantity)
		notional = notional.Add(child.AvgFillPrice.Mul(child.FilledQuantity))
		if !child.IsTerminal() {
			allTerminal = false
		}
	}

	now := o.clock()
	updated, err := o.repo.UpdateOrder(parentID, func(p *model.Order) error {
		p.FilledQuantity = filled
		if filled.IsPositive() {
			p.AvgFillPrice = notional.Div(filled)
		}
		switch {
		case filled.GreaterThanOrEqual(p.Quantity):
			p.Status = enum.OrderStatusFilled
		case finalize && allTerminal:
			// Every leg is done but the parent quantity was not reached.
			p.Status = enum.OrderStatusCancelled
		case filled.IsPositive():
			p.Status = enum.OrderStatusPartiallyFilled
		}
		p.UpdatedAt = now
		return nil
	})
	if err != nil {
		logs.Warnf("parent aggregation failed: parent=%s err=%+v", parentID, err)
		return false
	}
	return updated.IsTerminal()
}
