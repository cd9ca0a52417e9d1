package lifecycle

import (
	"context"
	stderrors "errors"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/engine"
	"main/internal/feed"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/obs"
	"main/internal/repository"
	"main/internal/risk"
	"main/pkg/exception"
)

// Request is a client order instruction before validation.
type Request struct {
	ClientID        string
	Symbol          string
	Side            enum.OrderSide
	Kind            enum.OrderKind
	Quantity        decimal.Decimal
	Price           decimal.Decimal
	StopPrice       decimal.Decimal
	DisplayQuantity decimal.Decimal
	TimeInForce     enum.TimeInForce
	ParentID        *uuid.UUID
	Contingents     []model.ContingentSpec
	Legs            []model.Leg
}

// Config tunes the lifecycle service.
type Config struct {
	// Simulated venue delay window applied before an order is processed.
	LatencyMin time.Duration `json:"latencyMin"`
	LatencyMax time.Duration `json:"latencyMax"`
	// Adverse market-order slippage in basis points.
	SlippageBps int64 `json:"slippageBps"`
	Workers     int   `json:"workers"`
	QueueSize   int   `json:"queueSize"`
}

func (c Config) withDefaults() Config {
	if c.LatencyMin < 0 {
		c.LatencyMin = 0
	}
	if c.LatencyMax < c.LatencyMin {
		c.LatencyMax = c.LatencyMin
	}
	if c.SlippageBps <= 0 {
		c.SlippageBps = 5
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	return c
}

// task is one unit of asynchronous order processing.
type task struct {
	orderID   uuid.UUID
	triggered bool
}

// Service is the single entry point for order submission and cancellation:
// it validates requests, applies simulated latency, resolves each order kind,
// and synthesizes execution reports for every state transition.
type Service struct {
	cfg       Config
	repo      repository.Repository
	engine    *engine.Engine
	feed      feed.Feed
	risk      *risk.Engine
	positions *risk.PositionTracker
	events    *bus.Queue
	metrics   *obs.Metrics

	queue   chan task
	stops   *stopIndex
	running atomic.Bool
	clock   func() time.Time
}

// NewService wires the lifecycle service and registers its fill handler with
// the matching engine.
func NewService(cfg Config, repo repository.Repository, eng *engine.Engine, f feed.Feed, riskEngine *risk.Engine, positions *risk.PositionTracker, events *bus.Queue, metrics *obs.Metrics) *Service {
	cfg = cfg.withDefaults()
	s := &Service{
		cfg:       cfg,
		repo:      repo,
		engine:    eng,
		feed:      f,
		risk:      riskEngine,
		positions: positions,
		events:    events,
		metrics:   metrics,
		queue:     make(chan task, cfg.QueueSize),
		stops:     newStopIndex(),
		clock:     time.Now,
	}
	eng.RegisterFillHandler(s.handleEngineFill)
	return s
}

// SetClock overrides the time source.
func (s *Service) SetClock(clock func() time.Time) {
	s.clock = clock
}

// Run starts the processing workers. Safe to call once.
func (s *Service) Run(ctx context.Context) {
	if s.running.Swap(true) {
		return
	}
	for range s.cfg.Workers {
		go s.worker(ctx)
	}
	logs.Infof("order lifecycle service started: workers=%d queue=%d", s.cfg.Workers, s.cfg.QueueSize)
}

// Submit validates the request, persists the order as NEW, and dispatches
// asynchronous processing. The order id is returned synchronously; the fill
// or rejection arrives later through execution reports.
func (s *Service) Submit(req Request) (uuid.UUID, error) {
	now := s.clock()
	order := orderFromRequest(req, now)

	if err := validate(req); err != nil {
		order.Status = enum.OrderStatusRejected
		order.RejectReason = err.Error()
		s.emitReport(order, enum.ExecTypeRejected, decimal.Zero, decimal.Zero, err.Error())
		return order.ID, err
	}

	if err := s.repo.CreateOrder(order); err != nil {
		return order.ID, err
	}
	s.emitReport(order, enum.ExecTypeNew, decimal.Zero, decimal.Zero, "")

	// Container kinds are display-only parents owned by the orchestrator.
	if order.Kind.IsContainer() {
		return order.ID, nil
	}

	select {
	case s.queue <- task{orderID: order.ID}:
	default:
		s.reject(order.ID, "order queue full")
		return order.ID, exception.ErrOrderQueueFull
	}
	return order.ID, nil
}

// Cancel cancels the unfilled remainder of an order. Orders already terminal
// report ErrStateConflict, which callers treat as a no-op: a fill that beat
// the cancellation wins.
func (s *Service) Cancel(orderID uuid.UUID) error {
	current, ok := s.repo.Order(orderID)
	if !ok {
		return exception.ErrOrderNotFound
	}

	// Remove from the book first so no fill can land after this point.
	if err := s.engine.Cancel(orderID, current.Symbol); err != nil && !stderrors.Is(err, exception.ErrOrderNotFound) {
		return err
	}
	s.stops.remove(current.Symbol, orderID)

	now := s.clock()
	updated, err := s.repo.UpdateOrder(orderID, func(o *model.Order) error {
		return o.Transition(enum.OrderStatusCancelled, now)
	})
	if err != nil {
		return err
	}
	s.emitReport(updated, enum.ExecTypeCancelled, decimal.Zero, decimal.Zero, "")
	return nil
}

// OnQuote feeds a fresh quote through the engine's resting orders and checks
// parked stop orders for triggers. Intended as a feed subscriber.
func (s *Service) OnQuote(q model.Quote) {
	start := s.clock()
	s.engine.OnQuote(q)
	s.metrics.ObserveMatch(s.clock().Sub(start))
	s.checkStops(q)
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-s.queue:
			s.sleepLatency()
			s.process(t)
		}
	}
}

func (s *Service) sleepLatency() {
	if s.cfg.LatencyMax <= 0 {
		return
	}
	d := s.cfg.LatencyMin
	if span := s.cfg.LatencyMax - s.cfg.LatencyMin; span > 0 {
		d += time.Duration(rand.Int64N(int64(span)))
	}
	if d > 0 {
		time.Sleep(d)
	}
}

// process resolves one order. It always re-reads the order first: a
// cancellation may have won the race during the latency window.
func (s *Service) process(t task) {
	start := s.clock()
	order, ok := s.repo.Order(t.orderID)
	if !ok || order.IsTerminal() {
		return
	}

	quote, ok := s.feed.Quote(order.Symbol)
	if !ok {
		s.reject(order.ID, exception.ErrNoMarketData.Error())
		return
	}

	if s.risk != nil {
		decision := s.risk.Evaluate(order, risk.StateView{
			Position:       s.positions.Position(order.Symbol),
			ReferencePrice: quote.LastPrice,
			Now:            start,
		})
		if decision.Action == risk.ActionDeny {
			s.reject(order.ID, errors.Wrap(exception.ErrRiskRejected, decision.Reason.String()).Error())
			return
		}
	}

	in := resolve(order, quote, t.triggered, s.cfg.SlippageBps)
	switch in.kind {
	case instructFillNow:
		s.fillSynthetic(order, in.price)

	case instructEnterBook:
		if err := s.engine.Submit(order); err != nil {
			s.reject(order.ID, err.Error())
			return
		}
		if order.TimeInForce == enum.TimeInForceIOC {
			// Match what crosses, then cancel the remainder.
			if current, ok := s.repo.Order(order.ID); ok && !current.IsTerminal() {
				if err := s.Cancel(order.ID); err != nil && !stderrors.Is(err, exception.ErrStateConflict) {
					logs.Warnf("ioc remainder cancel failed: order=%s err=%+v", order.ID, err)
				}
			}
		}

	case instructAwaitTrigger:
		s.parkStop(order)

	case instructCancel:
		s.cancelWithReason(order.ID, in.reason)
	}
	s.metrics.ObserveOrderFlow(s.clock().Sub(start))
}

// fillSynthetic fully fills an order against the quote feed (no resting
// counterparty). Market orders never partially fill in this simulation.
func (s *Service) fillSynthetic(order *model.Order, price decimal.Decimal) {
	qty := order.Remaining()
	if !qty.IsPositive() {
		return
	}
	now := s.clock()
	updated, err := s.repo.UpdateOrder(order.ID, func(o *model.Order) error {
		return o.ApplyFill(qty, price, now)
	})
	if err != nil {
		if stderrors.Is(err, exception.ErrStateConflict) {
			return // cancelled while in flight
		}
		logs.Errorf("synthetic fill failed: order=%s err=%+v", order.ID, err)
		return
	}

	trade := model.Trade{
		ID:         uuid.New(),
		OrderID:    updated.ID,
		Symbol:     updated.Symbol,
		Side:       updated.Side,
		Quantity:   qty,
		Price:      price,
		ExecutedAt: now,
	}
	s.repo.AppendTrade(trade)
	s.publishTrade(trade)
	s.positions.ApplyFill(updated.Symbol, updated.Side, qty)
	s.emitReport(updated, fillExecType(updated), qty, price, "")
}

// handleEngineFill turns matching-engine fills into execution reports and
// position updates. It runs once per side of each match; the shared trade is
// published only for the aggressor side.
func (s *Service) handleEngineFill(order *model.Order, trade model.Trade) {
	s.positions.ApplyFill(order.Symbol, order.Side, trade.Quantity)
	s.emitReport(order, fillExecType(order), trade.Quantity, trade.Price, "")
	if order.ID == trade.OrderID {
		s.publishTrade(trade)
	}
}

// reject marks a persisted order REJECTED with a reason.
func (s *Service) reject(orderID uuid.UUID, reason string) {
	now := s.clock()
	updated, err := s.repo.UpdateOrder(orderID, func(o *model.Order) error {
		if err := o.Transition(enum.OrderStatusRejected, now); err != nil {
			return err
		}
		o.RejectReason = reason
		return nil
	})
	if err != nil {
		return // already terminal; absorbed
	}
	s.emitReport(updated, enum.ExecTypeRejected, decimal.Zero, decimal.Zero, reason)
}

func (s *Service) cancelWithReason(orderID uuid.UUID, reason string) {
	now := s.clock()
	updated, err := s.repo.UpdateOrder(orderID, func(o *model.Order) error {
		return o.Transition(enum.OrderStatusCancelled, now)
	})
	if err != nil {
		return
	}
	s.emitReport(updated, enum.ExecTypeCancelled, decimal.Zero, decimal.Zero, reason)
}

func (s *Service) emitReport(order *model.Order, execType enum.ExecType, lastQty, lastPrice decimal.Decimal, reason string) {
	report := model.ExecutionReport{
		ID:          uuid.New(),
		OrderID:     order.ID,
		ExecType:    execType,
		LastQty:     lastQty,
		LastPrice:   lastPrice,
		CumQty:      order.FilledQuantity,
		AvgPrice:    order.AvgFillPrice,
		OrderStatus: order.Status,
		Reason:      reason,
		ReportedAt:  s.clock(),
	}
	s.repo.AppendReport(report)
	s.metrics.IncExec(execType)
	s.publish(bus.ReportEvent(report))
}

func (s *Service) publishTrade(trade model.Trade) {
	s.metrics.IncTrade()
	s.publish(bus.TradeEvent(trade))
}

func (s *Service) publish(e bus.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.TryPublish(e); err != nil {
		if stderrors.Is(err, bus.ErrQueueFull) {
			s.metrics.IncQueueDrop()
		} else if stderrors.Is(err, bus.ErrQueueClosed) {
			s.metrics.IncQueueClosed()
		}
	}
}

func fillExecType(order *model.Order) enum.ExecType {
	if order.Status == enum.OrderStatusFilled {
		return enum.ExecTypeFill
	}
	return enum.ExecTypePartialFill
}

func orderFromRequest(req Request, now time.Time) *model.Order {
	tif := req.TimeInForce
	if !tif.IsAvailable() {
		tif = enum.TimeInForceGTC
	}
	return &model.Order{
		ID:              uuid.New(),
		ClientID:        req.ClientID,
		Symbol:          req.Symbol,
		Side:            req.Side,
		Kind:            req.Kind,
		Quantity:        req.Quantity,
		Price:           req.Price,
		StopPrice:       req.StopPrice,
		DisplayQuantity: req.DisplayQuantity,
		TimeInForce:     tif,
		Status:          enum.OrderStatusNew,
		FilledQuantity:  decimal.Zero,
		AvgFillPrice:    decimal.Zero,
		CreatedAt:       now,
		UpdatedAt:       now,
		ParentID:        req.ParentID,
		Contingents:     req.Contingents,
		Legs:            req.Legs,
	}
}

// validate enforces the request invariants. Missing required prices are
// validation failures, never runtime defaults.
func validate(req Request) error {
	if req.Symbol == "" {
		return exception.ErrUnknownSymbol
	}
	if !req.Side.IsAvailable() && req.Kind != enum.OrderKindMultiLeg {
		return exception.ErrInvalidRequest
	}
	if !req.Kind.IsAvailable() {
		return exception.ErrInvalidRequest
	}
	if req.Kind == enum.OrderKindMultiLeg {
		if len(req.Legs) == 0 {
			return exception.ErrInvalidRequest
		}
		return nil
	}
	if !req.Quantity.IsPositive() {
		return exception.ErrInvalidQuantity
	}
	switch req.Kind {
	case enum.OrderKindLimit, enum.OrderKindIceberg, enum.OrderKindTWAP, enum.OrderKindVWAP:
		// TWAP/VWAP parents validate a limit price only when one is set;
		// market-sliced algos leave it zero.
		if req.Kind == enum.OrderKindLimit || req.Kind == enum.OrderKindIceberg {
			if !req.Price.IsPositive() {
				return exception.ErrMissingPrice
			}
		}
	case enum.OrderKindStop:
		if !req.StopPrice.IsPositive() {
			return exception.ErrMissingStopPrice
		}
	case enum.OrderKindStopLimit:
		if !req.Price.IsPositive() {
			return exception.ErrMissingPrice
		}
		if !req.StopPrice.IsPositive() {
			return exception.ErrMissingStopPrice
		}
	}
	return nil
}
