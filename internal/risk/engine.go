package risk

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"main/internal/model"
	"main/internal/model/enum"
)

// Config defines simple pre-trade limits. Zero values disable a check.
type Config struct {
	KillSwitch           bool          `json:"killSwitch"`
	MaxOrderQty          string        `json:"maxOrderQty"`
	MaxOrderNotional     string        `json:"maxOrderNotional"`
	MaxPosition          string        `json:"maxPosition"`
	OrderRateLimit       int           `json:"orderRateLimit"`
	OrderRateWindow      time.Duration `json:"orderRateWindow"`
	MaxPriceDeviationBps int64         `json:"maxPriceDeviationBps"`
}

// Action is the outcome of a risk evaluation.
type Action uint8

const (
	ActionAllow Action = iota
	ActionDeny
)

// Reason explains a denial.
type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonKillSwitch
	ReasonRateLimit
	ReasonMaxQty
	ReasonMaxNotional
	ReasonPriceBand
	ReasonPositionLimit
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonKillSwitch:
		return "kill switch engaged"
	case ReasonRateLimit:
		return "order rate limit exceeded"
	case ReasonMaxQty:
		return "max order quantity exceeded"
	case ReasonMaxNotional:
		return "max order notional exceeded"
	case ReasonPriceBand:
		return "price outside allowed band"
	case ReasonPositionLimit:
		return "position limit exceeded"
	default:
		return "unknown"
	}
}

// Decision is the result of evaluating one order.
type Decision struct {
	Action Action
	Reason Reason
}

// StateView provides the inputs a risk evaluation needs.
type StateView struct {
	Position       decimal.Decimal
	ReferencePrice decimal.Decimal
	Now            time.Time
}

// Engine evaluates pre-trade risk decisions.
type Engine struct {
	mu sync.Mutex

	killSwitch      bool
	maxQty          decimal.Decimal
	maxNotional     decimal.Decimal
	maxPosition     decimal.Decimal
	rateLimit       int
	rateWindow      time.Duration
	deviationBps    int64
	rateWindowStart time.Time
	rateCount       int
}

// NewEngine creates a risk engine with static limits. Malformed decimal
// limits disable the corresponding check.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		killSwitch:   cfg.KillSwitch,
		maxQty:       parseLimit(cfg.MaxOrderQty),
		maxNotional:  parseLimit(cfg.MaxOrderNotional),
		maxPosition:  parseLimit(cfg.MaxPosition),
		rateLimit:    cfg.OrderRateLimit,
		rateWindow:   cfg.OrderRateWindow,
		deviationBps: cfg.MaxPriceDeviationBps,
	}
}

// Evaluate applies the configured checks to an order.
func (e *Engine) Evaluate(order *model.Order, state StateView) Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.killSwitch {
		return Decision{Action: ActionDeny, Reason: ReasonKillSwitch}
	}

	now := state.Now
	if now.IsZero() {
		now = time.Now()
	}
	if e.rateLimit > 0 && e.rateWindow > 0 {
		if e.rateWindowStart.IsZero() || now.Sub(e.rateWindowStart) >= e.rateWindow {
			e.rateWindowStart = now
			e.rateCount = 0
		}
		e.rateCount++
		if e.rateCount > e.rateLimit {
			return Decision{Action: ActionDeny, Reason: ReasonRateLimit}
		}
	}

	if e.maxQty.IsPositive() && order.Quantity.GreaterThan(e.maxQty) {
		return Decision{Action: ActionDeny, Reason: ReasonMaxQty}
	}

	ref := state.ReferencePrice
	if e.deviationBps > 0 && order.Kind == enum.OrderKindLimit && order.Price.IsPositive() && ref.IsPositive() {
		band := ref.Mul(decimal.NewFromInt(e.deviationBps)).Div(decimal.NewFromInt(10_000))
		if order.Price.Sub(ref).Abs().GreaterThan(band) {
			return Decision{Action: ActionDeny, Reason: ReasonPriceBand}
		}
	}

	notionalPrice := order.Price
	if !notionalPrice.IsPositive() {
		notionalPrice = ref
	}
	if e.maxNotional.IsPositive() && notionalPrice.IsPositive() {
		if order.Quantity.Mul(notionalPrice).GreaterThan(e.maxNotional) {
			return Decision{Action: ActionDeny, Reason: ReasonMaxNotional}
		}
	}

	if e.maxPosition.IsPositive() {
		next := state.Position
		switch order.Side {
		case enum.OrderSideBuy:
			next = next.Add(order.Quantity)
		case enum.OrderSideSell:
			next = next.Sub(order.Quantity)
		}
		if next.Abs().GreaterThan(e.maxPosition) {
			return Decision{Action: ActionDeny, Reason: ReasonPositionLimit}
		}
	}

	return Decision{Action: ActionAllow, Reason: ReasonNone}
}

func parseLimit(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
