package bus

import (
	"context"
	"errors"
	"sync/atomic"

	"main/internal/model"
)

var (
	ErrQueueFull   = errors.New("event queue full")
	ErrQueueClosed = errors.New("event queue closed")
)

// EventType tags the payload carried by an execution event.
type EventType uint8

const (
	EventReport EventType = iota + 1
	EventTrade
)

// Event is the unit passed through the in-memory execution event queue.
// Exactly one payload field is set, per Type.
type Event struct {
	Type   EventType
	Report model.ExecutionReport
	Trade  model.Trade
}

// ReportEvent wraps an execution report.
func ReportEvent(report model.ExecutionReport) Event {
	return Event{Type: EventReport, Report: report}
}

// TradeEvent wraps a trade.
func TradeEvent(trade model.Trade) Event {
	return Event{Type: EventTrade, Trade: trade}
}

// Queue is a bounded, non-blocking event queue. Downstream consumers (UI
// state, journaling) drain it; slow consumers drop events rather than stall
// order processing.
type Queue struct {
	ch     chan Event
	closed uint32
}

// NewQueue allocates a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan Event, capacity)}
}

// TryPublish enqueues an event without blocking.
func (q *Queue) TryPublish(e Event) error {
	if atomic.LoadUint32(&q.closed) != 0 {
		return ErrQueueClosed
	}
	select {
	case q.ch <- e:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops the queue from accepting new events.
func (q *Queue) Close() {
	if atomic.CompareAndSwapUint32(&q.closed, 0, 1) {
		close(q.ch)
	}
}

// Run consumes events until the context is done or the queue is closed.
func (q *Queue) Run(ctx context.Context, handler func(Event)) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-q.ch:
			if !ok {
				return
			}
			handler(e)
		}
	}
}
