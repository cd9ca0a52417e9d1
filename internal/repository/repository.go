package repository

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"main/internal/model"
	"main/internal/model/enum"
	"main/pkg/exception"
)

// Repository owns the canonical collection of orders, trades, and execution
// reports. It is the single source of truth shared by the matching engine and
// the orchestrator; both re-read current order state here before acting.
type Repository interface {
	CreateOrder(order *model.Order) error
	Order(id uuid.UUID) (*model.Order, bool)
	OrderByClientID(clientID string) (*model.Order, bool)
	// UpdateOrder applies fn to the stored order under the repository lock.
	// If fn returns an error the order is left untouched.
	UpdateOrder(id uuid.UUID, fn func(*model.Order) error) (*model.Order, error)
	Orders() []*model.Order
	OpenOrdersBySymbol(symbol string) []*model.Order

	AppendTrade(trade model.Trade)
	Trades() []model.Trade
	TradesByOrder(orderID uuid.UUID) []model.Trade

	AppendReport(report model.ExecutionReport)
	Reports() []model.ExecutionReport
	ReportsByOrder(orderID uuid.UUID) []model.ExecutionReport
}

// InMemory is the process-global store. All state lives in this one process;
// there is no account or session partitioning.
type InMemory struct {
	mu       sync.RWMutex
	orders   map[uuid.UUID]*model.Order
	byClient map[string]uuid.UUID
	bySymbol map[string][]uuid.UUID
	seq      []uuid.UUID
	trades   []model.Trade
	reports  []model.ExecutionReport
}

// NewInMemory creates an empty repository.
func NewInMemory() *InMemory {
	return &InMemory{
		orders:   make(map[uuid.UUID]*model.Order),
		byClient: make(map[string]uuid.UUID),
		bySymbol: make(map[string][]uuid.UUID),
	}
}

// CreateOrder persists a new order. Duplicate ids and duplicate client ids
// are rejected.
func (r *InMemory) CreateOrder(order *model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[order.ID]; ok {
		return exception.ErrDuplicateOrder
	}
	if order.ClientID != "" {
		if _, ok := r.byClient[order.ClientID]; ok {
			return exception.ErrDuplicateClientID
		}
		r.byClient[order.ClientID] = order.ID
	}
	r.orders[order.ID] = order.Clone()
	r.bySymbol[order.Symbol] = append(r.bySymbol[order.Symbol], order.ID)
	r.seq = append(r.seq, order.ID)
	return nil
}

// Order returns a copy of the order.
func (r *InMemory) Order(id uuid.UUID) (*model.Order, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, false
	}
	return o.Clone(), true
}

// OrderByClientID returns a copy of the order with the given client id.
func (r *InMemory) OrderByClientID(clientID string) (*model.Order, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byClient[clientID]
	if !ok {
		return nil, false
	}
	o, ok := r.orders[id]
	if !ok {
		return nil, false
	}
	return o.Clone(), true
}

// UpdateOrder mutates the stored order atomically.
func (r *InMemory) UpdateOrder(id uuid.UUID, fn func(*model.Order) error) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, exception.ErrOrderNotFound
	}
	work := o.Clone()
	if err := fn(work); err != nil {
		return o.Clone(), err
	}
	work.UpdatedAt = latest(work.UpdatedAt, o.UpdatedAt)
	r.orders[id] = work
	return work.Clone(), nil
}

// Orders returns copies of all orders in creation order.
func (r *InMemory) Orders() []*model.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Order, 0, len(r.seq))
	for _, id := range r.seq {
		if o, ok := r.orders[id]; ok {
			out = append(out, o.Clone())
		}
	}
	return out
}

// OpenOrdersBySymbol returns copies of non-terminal orders for one symbol.
func (r *InMemory) OpenOrdersBySymbol(symbol string) []*model.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.bySymbol[symbol]
	out := make([]*model.Order, 0, len(ids))
	for _, id := range ids {
		o, ok := r.orders[id]
		if !ok || o.IsTerminal() {
			continue
		}
		out = append(out, o.Clone())
	}
	return out
}

// AppendTrade records an immutable trade.
func (r *InMemory) AppendTrade(trade model.Trade) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades = append(r.trades, trade)
}

// Trades returns a copy of all trades in execution order.
func (r *InMemory) Trades() []model.Trade {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]model.Trade(nil), r.trades...)
}

// TradesByOrder returns trades where the order participated on either side.
func (r *InMemory) TradesByOrder(orderID uuid.UUID) []model.Trade {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []model.Trade
	for _, t := range r.trades {
		if t.OrderID == orderID || t.MakerOrderID == orderID {
			out = append(out, t)
		}
	}
	return out
}

// AppendReport records an immutable execution report.
func (r *InMemory) AppendReport(report model.ExecutionReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
}

// Reports returns a copy of all execution reports in emission order.
func (r *InMemory) Reports() []model.ExecutionReport {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]model.ExecutionReport(nil), r.reports...)
}

// ReportsByOrder returns the report history of one order.
func (r *InMemory) ReportsByOrder(orderID uuid.UUID) []model.ExecutionReport {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []model.ExecutionReport
	for _, rep := range r.reports {
		if rep.OrderID == orderID {
			out = append(out, rep)
		}
	}
	return out
}

// OrderCountByStatus is a diagnostics helper.
func (r *InMemory) OrderCountByStatus(status enum.OrderStatus) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, o := range r.orders {
		if o.Status == status {
			n++
		}
	}
	return n
}

func latest(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func sortOrders(orders []*model.Order) {
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
}
