package lifecycle

import (
	"sync"

	"github.com/google/uuid"

	"main/internal/model"
)

// stopIndex holds parked stop/stop-limit orders waiting for their trigger
// price, keyed by symbol.
type stopIndex struct {
	mu       sync.Mutex
	bySymbol map[string]map[uuid.UUID]struct{}
}

func newStopIndex() *stopIndex {
	return &stopIndex{bySymbol: make(map[string]map[uuid.UUID]struct{})}
}

func (idx *stopIndex) add(symbol string, orderID uuid.UUID) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	m, ok := idx.bySymbol[symbol]
	if !ok {
		m = make(map[uuid.UUID]struct{})
		idx.bySymbol[symbol] = m
	}
	m[orderID] = struct{}{}
}

func (idx *stopIndex) remove(symbol string, orderID uuid.UUID) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if m, ok := idx.bySymbol[symbol]; ok {
		delete(m, orderID)
	}
}

func (idx *stopIndex) ids(symbol string) []uuid.UUID {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	m := idx.bySymbol[symbol]
	out := make([]uuid.UUID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	return out
}

// parkStop registers an untriggered stop order for quote-driven monitoring.
func (s *Service) parkStop(order *model.Order) {
	s.stops.add(order.Symbol, order.ID)
}

// checkStops re-evaluates parked stop orders against a fresh last price and
// re-dispatches any that triggered as their converted market/limit order.
func (s *Service) checkStops(q model.Quote) {
	for _, id := range s.stops.ids(q.Symbol) {
		order, ok := s.repo.Order(id)
		if !ok || order.IsTerminal() {
			s.stops.remove(q.Symbol, id)
			continue
		}
		if !stopTriggered(order.Side, order.StopPrice, q.LastPrice) {
			continue
		}
		s.stops.remove(q.Symbol, id)
		select {
		case s.queue <- task{orderID: id, triggered: true}:
		default:
			s.reject(id, "order queue full on stop trigger")
		}
	}
}
