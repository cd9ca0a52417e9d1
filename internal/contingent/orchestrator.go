package contingent

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"main/internal/feed"
	"main/internal/lifecycle"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/obs"
	"main/internal/repository"
)

// Submitter is the seam back into the order lifecycle service. The
// orchestrator never touches the matching engine directly.
type Submitter interface {
	Submit(req lifecycle.Request) (uuid.UUID, error)
	Cancel(orderID uuid.UUID) error
}

// Orchestrator realizes composite order types (bracket, OCO, multi-leg,
// TWAP, VWAP) without teaching the matching engine about them. A single
// monitor goroutine polls market data on a fixed cadence and drives all
// trigger/cancel decisions; the repository is re-read on every tick so fills
// that race the monitor are always observed.
type Orchestrator struct {
	repo    repository.Repository
	feed    feed.Feed
	sub     Submitter
	metrics *obs.Metrics

	mu       sync.Mutex
	brackets map[uuid.UUID]*bracketState
	groups   map[uuid.UUID]*ocoGroup
	multis   map[uuid.UUID]struct{}
	algos    map[uuid.UUID]*algoState

	interval time.Duration
	running  atomic.Bool
	clock    func() time.Time
}

type bracketState struct {
	parentID uuid.UUID
	specs    []model.ContingentSpec
	// favorable extreme since the parent filled, for trailing stops
	extreme decimal.Decimal
	armed   bool
}

type ocoGroup struct {
	id        uuid.UUID
	primary   uuid.UUID
	secondary uuid.UUID
}

// New creates an orchestrator polling on the given interval.
func New(repo repository.Repository, f feed.Feed, sub Submitter, metrics *obs.Metrics, interval time.Duration) *Orchestrator {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Orchestrator{
		repo:     repo,
		feed:     f,
		sub:      sub,
		metrics:  metrics,
		brackets: make(map[uuid.UUID]*bracketState),
		groups:   make(map[uuid.UUID]*ocoGroup),
		multis:   make(map[uuid.UUID]struct{}),
		algos:    make(map[uuid.UUID]*algoState),
		interval: interval,
		clock:    time.Now,
	}
}

// SetClock overrides the time source.
func (o *Orchestrator) SetClock(clock func() time.Time) {
	o.clock = clock
}

// Run drives the monitor until the context is done. Ticks never overlap.
func (o *Orchestrator) Run(ctx context.Context) {
	if o.running.Swap(true) {
		return
	}
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()
	logs.Infof("contingent order monitor started: interval=%s", o.interval)
	for {
		select {
		case <-ctx.Done():
			logs.Info("contingent order monitor stopped")
			return
		case now := <-ticker.C:
			o.Tick(now)
		}
	}
}

// CreateBracket submits the entry order and arms its exit specs. The specs
// stay dormant until the entry fills; the first spec to trigger spawns the
// exit order and retires the rest (first-trigger-wins).
func (o *Orchestrator) CreateBracket(entry lifecycle.Request, exits []model.ContingentSpec) (uuid.UUID, error) {
	if len(exits) == 0 {
		return uuid.Nil, fmt.Errorf("bracket needs at least one exit spec")
	}
	for _, spec := range exits {
		if !spec.Type.IsAvailable() {
			return uuid.Nil, fmt.Errorf("bracket exit spec has unknown type")
		}
	}
	entry.Contingents = append([]model.ContingentSpec(nil), exits...)

	parentID, err := o.sub.Submit(entry)
	if err != nil {
		return parentID, err
	}
	o.mu.Lock()
	o.brackets[parentID] = &bracketState{parentID: parentID, specs: entry.Contingents}
	o.mu.Unlock()
	return parentID, nil
}

// CreateOCO submits both orders and links them: the instant either fills,
// the other is cancelled.
func (o *Orchestrator) CreateOCO(primary, secondary lifecycle.Request) (uuid.UUID, uuid.UUID, error) {
	primaryID, err := o.sub.Submit(primary)
	if err != nil {
		return primaryID, uuid.Nil, err
	}
	secondaryID, err := o.sub.Submit(secondary)
	if err != nil {
		// Do not leave a half-armed pair working.
		if cancelErr := o.sub.Cancel(primaryID); cancelErr != nil {
			logs.Warnf("oco rollback cancel failed: order=%s err=%+v", primaryID, cancelErr)
		}
		return primaryID, secondaryID, err
	}

	o.mu.Lock()
	group := &ocoGroup{id: uuid.New(), primary: primaryID, secondary: secondaryID}
	o.groups[group.id] = group
	o.mu.Unlock()
	return primaryID, secondaryID, nil
}

// CreateMultiLeg submits a non-tradeable parent record plus one independent
// order per leg. Legs are not cross-conditioned: each lives and dies on its
// own, and the parent only aggregates their fill state for display.
func (o *Orchestrator) CreateMultiLeg(clientID string, legs []model.Leg) (uuid.UUID, []uuid.UUID, error) {
	if len(legs) == 0 {
		return uuid.Nil, nil, fmt.Errorf("multi-leg order needs at least one leg")
	}

	total := decimal.Zero
	for _, leg := range legs {
		total = total.Add(leg.Quantity)
	}
	parentID, err := o.sub.Submit(lifecycle.Request{
		ClientID: clientID,
		Symbol:   legs[0].Symbol,
		Kind:     enum.OrderKindMultiLeg,
		Quantity: total,
		Legs:     legs,
	})
	if err != nil {
		return parentID, nil, err
	}

	childIDs := make([]uuid.UUID, 0, len(legs))
	for _, leg := range legs {
		id := parentID
		childID, err := o.sub.Submit(lifecycle.Request{
			Symbol:   leg.Symbol,
			Side:     leg.Side,
			Kind:     leg.Kind,
			Quantity: leg.Quantity,
			Price:    leg.Price,
			ParentID: &id,
		})
		if err != nil {
			logs.Warnf("multi-leg leg rejected: parent=%s symbol=%s err=%+v", parentID, leg.Symbol, err)
			continue
		}
		childIDs = append(childIDs, childID)
	}
	o.linkChildren(parentID, childIDs)

	o.mu.Lock()
	o.multis[parentID] = struct{}{}
	o.mu.Unlock()
	return parentID, childIDs, nil
}

func (o *Orchestrator) linkChildren(parentID uuid.UUID, childIDs []uuid.UUID) {
	if len(childIDs) == 0 {
		return
	}
	if _, err := o.repo.UpdateOrder(parentID, func(p *model.Order) error {
		p.ChildIDs = append(p.ChildIDs, childIDs...)
		return nil
	}); err != nil {
		logs.Warnf("link children failed: parent=%s err=%+v", parentID, err)
	}
}
