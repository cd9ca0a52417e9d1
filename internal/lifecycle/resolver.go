package lifecycle

import (
	"github.com/shopspring/decimal"

	"main/internal/model"
	"main/internal/model/enum"
)

// instructionKind is the normalized outcome of resolving an order kind
// against the current quote.
type instructionKind uint8

const (
	instructFillNow instructionKind = iota + 1
	instructEnterBook
	instructAwaitTrigger
	instructCancel
)

// instruction tells the processing worker what to do with an order. Each
// order kind resolves to one of a small set of instructions so the rest of
// the pipeline stays kind-agnostic.
type instruction struct {
	kind   instructionKind
	price  decimal.Decimal
	reason string
}

// resolve maps (order kind, quote, trigger state) to an instruction.
// triggered marks stop orders whose stop price has already been crossed;
// they resolve as the converted market/limit order.
func resolve(order *model.Order, quote model.Quote, triggered bool, slippageBps int64) instruction {
	kind := order.Kind
	if triggered {
		switch kind {
		case enum.OrderKindStop:
			kind = enum.OrderKindMarket
		case enum.OrderKindStopLimit:
			kind = enum.OrderKindLimit
		}
	}

	switch kind {
	case enum.OrderKindMarket:
		return instruction{kind: instructFillNow, price: slippagePrice(order.Side, quote, slippageBps)}

	case enum.OrderKindLimit, enum.OrderKindIceberg:
		if touch, ok := marketable(order, quote); ok {
			return instruction{kind: instructFillNow, price: touch}
		}
		if order.TimeInForce == enum.TimeInForceFOK {
			return instruction{kind: instructCancel, reason: "fill-or-kill not immediately fillable"}
		}
		return instruction{kind: instructEnterBook}

	case enum.OrderKindStop, enum.OrderKindStopLimit:
		if stopTriggered(order.Side, order.StopPrice, quote.LastPrice) {
			return resolve(order, quote, true, slippageBps)
		}
		return instruction{kind: instructAwaitTrigger}

	default:
		return instruction{kind: instructCancel, reason: "unsupported order kind"}
	}
}

// marketable reports whether a limit order crosses the current quote, and the
// touch price it would fill at.
func marketable(order *model.Order, quote model.Quote) (decimal.Decimal, bool) {
	switch order.Side {
	case enum.OrderSideBuy:
		if quote.Ask.IsPositive() && order.Price.GreaterThanOrEqual(quote.Ask) {
			return quote.Ask, true
		}
	case enum.OrderSideSell:
		if quote.Bid.IsPositive() && order.Price.LessThanOrEqual(quote.Bid) {
			return quote.Bid, true
		}
	}
	return decimal.Zero, false
}

// slippagePrice applies a small adverse adjustment to the touch price:
// buys pay up from the ask, sells give up from the bid.
func slippagePrice(side enum.OrderSide, quote model.Quote, slippageBps int64) decimal.Decimal {
	slip := decimal.NewFromInt(slippageBps).Div(decimal.NewFromInt(10_000))
	switch side {
	case enum.OrderSideBuy:
		return quote.Ask.Mul(decimal.NewFromInt(1).Add(slip))
	case enum.OrderSideSell:
		return quote.Bid.Mul(decimal.NewFromInt(1).Sub(slip))
	default:
		return quote.LastPrice
	}
}

// stopTriggered reports whether the last price crossed the stop price in the
// order's trigger direction: sell stops below, buy stops above.
func stopTriggered(side enum.OrderSide, stopPrice, lastPrice decimal.Decimal) bool {
	if !stopPrice.IsPositive() || !lastPrice.IsPositive() {
		return false
	}
	switch side {
	case enum.OrderSideBuy:
		return lastPrice.GreaterThanOrEqual(stopPrice)
	case enum.OrderSideSell:
		return lastPrice.LessThanOrEqual(stopPrice)
	default:
		return false
	}
}
