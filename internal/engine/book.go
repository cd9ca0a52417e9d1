package engine

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"main/internal/model"
	"main/internal/model/enum"
)

// restingOrder is the book's view of a resting limit order. Iceberg orders
// expose only their display slice; the reserve stays hidden until the visible
// slice is exhausted.
type restingOrder struct {
	id        uuid.UUID
	side      enum.OrderSide
	price     decimal.Decimal
	display   decimal.Decimal
	hidden    decimal.Decimal
	sliceSize decimal.Decimal
	seq       uint64
}

// book holds both sides of one symbol's limit order book.
// Bids sort by price descending, asks ascending; ties resolve by arrival
// sequence (price-time priority).
type book struct {
	symbol string
	bids   []*restingOrder
	asks   []*restingOrder
	volume decimal.Decimal
	halted bool
}

func newBook(symbol string) *book {
	return &book{symbol: symbol, volume: decimal.Zero}
}

func (b *book) insert(ro *restingOrder) {
	switch ro.side {
	case enum.OrderSideBuy:
		b.bids = insertSorted(b.bids, ro, lessBid)
	case enum.OrderSideSell:
		b.asks = insertSorted(b.asks, ro, lessAsk)
	}
}

func (b *book) remove(id uuid.UUID) (*restingOrder, bool) {
	if ro, ok := removeByID(&b.bids, id); ok {
		return ro, true
	}
	return removeByID(&b.asks, id)
}

func (b *book) bestBid() *restingOrder {
	if len(b.bids) == 0 {
		return nil
	}
	return b.bids[0]
}

func (b *book) bestAsk() *restingOrder {
	if len(b.asks) == 0 {
		return nil
	}
	return b.asks[0]
}

func (b *book) orderCount() int {
	return len(b.bids) + len(b.asks)
}

// levels aggregates one side into (price, visible quantity, order count).
func levels(side []*restingOrder) []model.OrderBookLevel {
	out := make([]model.OrderBookLevel, 0, len(side))
	for _, ro := range side {
		if n := len(out); n > 0 && out[n-1].Price.Equal(ro.price) {
			out[n-1].Quantity = out[n-1].Quantity.Add(ro.display)
			out[n-1].OrderCount++
			continue
		}
		out = append(out, model.OrderBookLevel{
			Price:      ro.price,
			Quantity:   ro.display,
			OrderCount: 1,
		})
	}
	return out
}

func lessBid(a, b *restingOrder) bool {
	if !a.price.Equal(b.price) {
		return a.price.GreaterThan(b.price)
	}
	return a.seq < b.seq
}

func lessAsk(a, b *restingOrder) bool {
	if !a.price.Equal(b.price) {
		return a.price.LessThan(b.price)
	}
	return a.seq < b.seq
}

func insertSorted(side []*restingOrder, ro *restingOrder, less func(a, b *restingOrder) bool) []*restingOrder {
	idx := sort.Search(len(side), func(i int) bool { return less(ro, side[i]) })
	side = append(side, nil)
	copy(side[idx+1:], side[idx:])
	side[idx] = ro
	return side
}

func removeByID(side *[]*restingOrder, id uuid.UUID) (*restingOrder, bool) {
	for i, ro := range *side {
		if ro.id == id {
			*side = append((*side)[:i], (*side)[i+1:]...)
			return ro, true
		}
	}
	return nil, false
}
