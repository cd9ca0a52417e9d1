package risk

import (
	"sync"

	"github.com/shopspring/decimal"

	"main/internal/model/enum"
)

// PositionTracker reduces fills into signed per-symbol positions.
type PositionTracker struct {
	mu        sync.RWMutex
	positions map[string]decimal.Decimal
}

// NewPositionTracker creates an empty tracker.
func NewPositionTracker() *PositionTracker {
	return &PositionTracker{positions: make(map[string]decimal.Decimal)}
}

// ApplyFill updates the position and returns the new quantity.
func (t *PositionTracker) ApplyFill(symbol string, side enum.OrderSide, qty decimal.Decimal) decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()

	current := t.positions[symbol]
	next := current
	switch side {
	case enum.OrderSideBuy:
		next = current.Add(qty)
	case enum.OrderSideSell:
		next = current.Sub(qty)
	}
	t.positions[symbol] = next
	return next
}

// Position returns the current signed position for a symbol.
func (t *PositionTracker) Position(symbol string) decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.positions[symbol]
}

// Count returns the number of tracked symbols.
func (t *PositionTracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.positions)
}
