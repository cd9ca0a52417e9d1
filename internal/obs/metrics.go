package obs

import (
	"sync/atomic"
	"time"

	"main/internal/model/enum"
)

const maxExecType = int(enum.ExecTypeRejected)

// Metrics collects lightweight counters and latency stats for the order
// pipeline.
type Metrics struct {
	execCounts  [maxExecType + 1]uint64
	trades      uint64
	queueDrops  uint64
	queueClosed uint64

	orderFlowLatency LatencyStats
	matchLatency     LatencyStats
	monitorLatency   LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	ExecCounts       map[enum.ExecType]uint64
	Trades           uint64
	QueueDrops       uint64
	QueueClosed      uint64
	OrderFlowLatency LatencySnapshot
	MatchLatency     LatencySnapshot
	MonitorLatency   LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// IncExec increments the counter for one execution report type.
func (m *Metrics) IncExec(execType enum.ExecType) {
	if m == nil {
		return
	}
	idx := int(execType)
	if idx >= 0 && idx < len(m.execCounts) {
		atomic.AddUint64(&m.execCounts[idx], 1)
	}
}

// IncTrade records a trade.
func (m *Metrics) IncTrade() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.trades, 1)
}

// IncQueueDrop records an event dropped by the bounded queue.
func (m *Metrics) IncQueueDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueDrops, 1)
}

// IncQueueClosed records a closed-queue publish attempt.
func (m *Metrics) IncQueueClosed() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueClosed, 1)
}

// ObserveOrderFlow measures submit-to-processed latency for one order.
func (m *Metrics) ObserveOrderFlow(d time.Duration) {
	if m == nil {
		return
	}
	m.orderFlowLatency.Observe(d)
}

// ObserveMatch measures one matching pass.
func (m *Metrics) ObserveMatch(d time.Duration) {
	if m == nil {
		return
	}
	m.matchLatency.Observe(d)
}

// ObserveMonitorTick measures one contingent monitor tick.
func (m *Metrics) ObserveMonitorTick(d time.Duration) {
	if m == nil {
		return
	}
	m.monitorLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	execCounts := make(map[enum.ExecType]uint64)
	for i := range m.execCounts {
		if v := atomic.LoadUint64(&m.execCounts[i]); v > 0 {
			execCounts[enum.ExecType(i)] = v
		}
	}
	return Snapshot{
		ExecCounts:       execCounts,
		Trades:           atomic.LoadUint64(&m.trades),
		QueueDrops:       atomic.LoadUint64(&m.queueDrops),
		QueueClosed:      atomic.LoadUint64(&m.queueClosed),
		OrderFlowLatency: m.orderFlowLatency.Snapshot(),
		MatchLatency:     m.matchLatency.Snapshot(),
		MonitorLatency:   m.monitorLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(atomic.LoadUint64(&l.min)),
		Max:   time.Duration(atomic.LoadUint64(&l.max)),
		Avg:   time.Duration(sum / count),
	}
}
