package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/repository"
	"main/pkg/exception"
)

// FillHandler receives the post-fill order snapshot for each side of a match.
// The trade is shared between both calls of one match event.
type FillHandler func(order *model.Order, trade model.Trade)

// Engine maintains price-time-priority order books per symbol and runs
// continuous double-auction matching. Only limit (and iceberg) orders rest
// here; market/stop orders are resolved by the lifecycle service first.
//
// Self-matching is allowed: the simulator has no party concept, so one
// side's order may match its own resting counter-order.
type Engine struct {
	mu     sync.Mutex
	books  map[string]*book
	repo   repository.Repository
	onFill FillHandler
	seq    atomic.Uint64
	clock  func() time.Time
}

// New creates a matching engine on top of the repository.
func New(repo repository.Repository) *Engine {
	return &Engine{
		books: make(map[string]*book),
		repo:  repo,
		clock: time.Now,
	}
}

// RegisterFillHandler sets the handler notified on every fill.
func (e *Engine) RegisterFillHandler(handler FillHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onFill = handler
}

// SetClock overrides the time source.
func (e *Engine) SetClock(clock func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clock = clock
}

// Submit rests a limit order in its symbol's book and attempts to match.
// The order must already be persisted; zero-quantity or non-positive-price
// orders are the caller's validation responsibility.
func (e *Engine) Submit(order *model.Order) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	b := e.book(order.Symbol)
	if b.halted {
		return exception.ErrMatchingInvariant
	}

	remaining := order.Remaining()
	if !remaining.IsPositive() {
		return nil
	}
	ro := &restingOrder{
		id:      order.ID,
		side:    order.Side,
		price:   order.Price,
		display: remaining,
		seq:     e.seq.Add(1),
	}
	if order.Kind == enum.OrderKindIceberg && order.DisplayQuantity.IsPositive() && order.DisplayQuantity.LessThan(remaining) {
		ro.sliceSize = order.DisplayQuantity
		ro.display = order.DisplayQuantity
		ro.hidden = remaining.Sub(order.DisplayQuantity)
	}
	b.insert(ro)
	return e.match(b)
}

// Cancel removes a resting order from its book. Orders already matched away
// or never resting report ErrOrderNotFound; callers treat that as a no-op.
func (e *Engine) Cancel(orderID uuid.UUID, symbol string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.books[symbol]
	if !ok {
		return exception.ErrOrderNotFound
	}
	if _, ok := b.remove(orderID); !ok {
		return exception.ErrOrderNotFound
	}
	return nil
}

// OnQuote re-evaluates resting orders against a fresh quote, filling any that
// became marketable at the touch price. This replaces a random fill timer:
// fills only happen when the market actually moves through a resting price.
func (e *Engine) OnQuote(q model.Quote) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.books[q.Symbol]
	if !ok || b.halted {
		return
	}

	// Best-priced orders first, so price-time priority holds for the fills.
	for {
		ro := b.bestBid()
		if ro == nil || q.Ask.GreaterThan(ro.price) {
			break
		}
		if err := e.fillAgainstQuote(b, ro, q.Ask); err != nil {
			return
		}
	}
	for {
		ro := b.bestAsk()
		if ro == nil || q.Bid.LessThan(ro.price) {
			break
		}
		if err := e.fillAgainstQuote(b, ro, q.Bid); err != nil {
			return
		}
	}
}

// OrderBook returns the aggregated bid/ask levels for a symbol.
func (e *Engine) OrderBook(symbol string) model.OrderBookSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := model.OrderBookSnapshot{Symbol: symbol}
	b, ok := e.books[symbol]
	if !ok {
		return snap
	}
	snap.Bids = levels(b.bids)
	snap.Asks = levels(b.asks)
	return snap
}

// OrderCount returns the number of resting orders on a symbol.
func (e *Engine) OrderCount(symbol string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if b, ok := e.books[symbol]; ok {
		return b.orderCount()
	}
	return 0
}

// TotalVolume returns the cumulative matched volume on a symbol.
func (e *Engine) TotalVolume(symbol string) decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	if b, ok := e.books[symbol]; ok {
		return b.volume
	}
	return decimal.Zero
}

// Halted reports whether a symbol's book stopped after an invariant
// violation.
func (e *Engine) Halted(symbol string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if b, ok := e.books[symbol]; ok {
		return b.halted
	}
	return false
}

func (e *Engine) book(symbol string) *book {
	b, ok := e.books[symbol]
	if !ok {
		b = newBook(symbol)
		e.books[symbol] = b
	}
	return b
}

// match crosses the book until no bid/ask pair overlaps. The trade price is
// the earlier (resting) order's price, never a midpoint.
func (e *Engine) match(b *book) error {
	for {
		bid, ask := b.bestBid(), b.bestAsk()
		if bid == nil || ask == nil || bid.price.LessThan(ask.price) {
			return nil
		}

		qty := decimal.Min(bid.display, ask.display)
		maker, taker := bid, ask
		if ask.seq < bid.seq {
			maker, taker = ask, bid
		}
		price := maker.price
		now := e.clock()

		takerOrder, err := e.applyFill(taker.id, qty, price, now)
		if err != nil {
			return e.halt(b, taker.id, err)
		}
		makerOrder, err := e.applyFill(maker.id, qty, price, now)
		if err != nil {
			return e.halt(b, maker.id, err)
		}

		trade := model.Trade{
			ID:           uuid.New(),
			OrderID:      takerOrder.ID,
			MakerOrderID: makerOrder.ID,
			Symbol:       b.symbol,
			Side:         takerOrder.Side,
			Quantity:     qty,
			Price:        price,
			ExecutedAt:   now,
		}
		e.repo.AppendTrade(trade)
		b.volume = b.volume.Add(qty)

		e.consume(b, bid, qty)
		e.consume(b, ask, qty)

		if e.onFill != nil {
			e.onFill(takerOrder, trade)
			e.onFill(makerOrder, trade)
		}
	}
}

// fillAgainstQuote fills one resting order in full at the touch price with a
// synthetic counterparty.
func (e *Engine) fillAgainstQuote(b *book, ro *restingOrder, touch decimal.Decimal) error {
	qty := ro.display.Add(ro.hidden)
	now := e.clock()

	order, err := e.applyFill(ro.id, qty, touch, now)
	if err != nil {
		return e.halt(b, ro.id, err)
	}
	b.remove(ro.id)
	b.volume = b.volume.Add(qty)

	trade := model.Trade{
		ID:         uuid.New(),
		OrderID:    order.ID,
		Symbol:     b.symbol,
		Side:       order.Side,
		Quantity:   qty,
		Price:      touch,
		ExecutedAt: now,
	}
	e.repo.AppendTrade(trade)
	if e.onFill != nil {
		e.onFill(order, trade)
	}
	return nil
}

func (e *Engine) applyFill(id uuid.UUID, qty, price decimal.Decimal, now time.Time) (*model.Order, error) {
	return e.repo.UpdateOrder(id, func(o *model.Order) error {
		return o.ApplyFill(qty, price, now)
	})
}

// consume reduces a resting order's visible quantity, refilling iceberg
// slices from the hidden reserve. A refilled slice re-enters with a new
// sequence number and loses time priority.
func (e *Engine) consume(b *book, ro *restingOrder, qty decimal.Decimal) {
	ro.display = ro.display.Sub(qty)
	if ro.display.IsPositive() {
		return
	}
	b.remove(ro.id)
	if !ro.hidden.IsPositive() {
		return
	}
	slice := decimal.Min(ro.sliceSize, ro.hidden)
	ro.hidden = ro.hidden.Sub(slice)
	ro.display = slice
	ro.seq = e.seq.Add(1)
	b.insert(ro)
}

// halt stops matching on the symbol. An invariant violation here means a bug
// in the matching algorithm, so the book refuses further work instead of
// silently corrupting state.
func (e *Engine) halt(b *book, orderID uuid.UUID, err error) error {
	b.halted = true
	logs.Errorf("matching halted: symbol=%s order=%s err=%+v", b.symbol, orderID, err)
	return exception.ErrMatchingInvariant
}
