package feed

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"main/internal/model"
)

// Feed is the snapshot-read interface the core consumes. It is synchronous
// and always available for configured symbols.
type Feed interface {
	Quote(symbol string) (model.Quote, bool)
}

// SymbolConfig seeds one synthetic symbol.
type SymbolConfig struct {
	Name          string `json:"name"`
	BasePrice     string `json:"basePrice"`
	SpreadBps     int64  `json:"spreadBps"`
	VolatilityBps int64  `json:"volatilityBps"`
	BaseVolume    string `json:"baseVolume"`
}

// Synthetic generates a random-walk quote stream per symbol. Subscribers are
// notified on every new quote; snapshot reads never block.
type Synthetic struct {
	mu      sync.RWMutex
	symbols []string
	quotes  map[string]model.Quote
	params  map[string]symbolParams
	subs    []func(model.Quote)
	rng     *rand.Rand
	running bool
}

type symbolParams struct {
	spread     decimal.Decimal // fraction of price
	volatility decimal.Decimal // max fractional move per tick
	baseVolume decimal.Decimal
}

// NewSynthetic creates a generator for the configured symbols. The seed makes
// the walk deterministic for tests; pass 0 to randomize.
func NewSynthetic(symbols []SymbolConfig, seed uint64) (*Synthetic, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("feed has no symbols")
	}
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	s := &Synthetic{
		quotes: make(map[string]model.Quote, len(symbols)),
		params: make(map[string]symbolParams, len(symbols)),
		rng:    rand.New(rand.NewPCG(seed, seed<<1|1)),
	}
	for _, cfg := range symbols {
		base, err := decimal.NewFromString(cfg.BasePrice)
		if err != nil || !base.IsPositive() {
			return nil, fmt.Errorf("invalid base price for %s: %q", cfg.Name, cfg.BasePrice)
		}
		volume := decimal.NewFromInt(1000)
		if cfg.BaseVolume != "" {
			volume, err = decimal.NewFromString(cfg.BaseVolume)
			if err != nil {
				return nil, fmt.Errorf("invalid base volume for %s: %q", cfg.Name, cfg.BaseVolume)
			}
		}
		params := symbolParams{
			spread:     bpsToFraction(cfg.SpreadBps, 10),
			volatility: bpsToFraction(cfg.VolatilityBps, 20),
			baseVolume: volume,
		}
		s.symbols = append(s.symbols, cfg.Name)
		s.params[cfg.Name] = params
		s.quotes[cfg.Name] = buildQuote(cfg.Name, base, params, volume, time.Now())
	}
	return s, nil
}

// Quote returns the current snapshot for the symbol.
func (s *Synthetic) Quote(symbol string) (model.Quote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[symbol]
	return q, ok
}

// Symbols returns the configured symbol names.
func (s *Synthetic) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.symbols...)
}

// Subscribe registers a callback invoked with every new quote. Callbacks run
// on the feed goroutine and must not block.
func (s *Synthetic) Subscribe(fn func(model.Quote)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

// Tick advances every symbol one random-walk step and notifies subscribers.
func (s *Synthetic) Tick(now time.Time) {
	s.mu.Lock()
	updated := make([]model.Quote, 0, len(s.symbols))
	for _, name := range s.symbols {
		prev := s.quotes[name]
		params := s.params[name]

		// symmetric step in (-volatility, +volatility)
		step := decimal.NewFromFloat((s.rng.Float64()*2 - 1)).Mul(params.volatility)
		last := prev.LastPrice.Mul(decimal.NewFromInt(1).Add(step))
		if !last.IsPositive() {
			last = prev.LastPrice
		}
		volume := prev.Volume.Add(params.baseVolume.Mul(decimal.NewFromFloat(s.rng.Float64())))
		q := buildQuote(name, last, params, volume, now)
		s.quotes[name] = q
		updated = append(updated, q)
	}
	subs := append([]func(model.Quote){}, s.subs...)
	s.mu.Unlock()

	for _, q := range updated {
		for _, fn := range subs {
			fn(q)
		}
	}
}

// Run ticks the feed on a fixed interval until the context is done.
func (s *Synthetic) Run(ctx context.Context, interval time.Duration) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logs.Infof("market data feed started: symbols=%d interval=%s", len(s.symbols), interval)
	for {
		select {
		case <-ctx.Done():
			logs.Info("market data feed stopped")
			return
		case now := <-ticker.C:
			s.Tick(now)
		}
	}
}

func buildQuote(symbol string, last decimal.Decimal, params symbolParams, volume decimal.Decimal, now time.Time) model.Quote {
	half := last.Mul(params.spread).Div(decimal.NewFromInt(2))
	return model.Quote{
		Symbol:    symbol,
		Bid:       last.Sub(half),
		Ask:       last.Add(half),
		LastPrice: last,
		Volume:    volume,
		Ts:        now,
	}
}

func bpsToFraction(bps int64, fallback int64) decimal.Decimal {
	if bps <= 0 {
		bps = fallback
	}
	return decimal.NewFromInt(bps).Div(decimal.NewFromInt(10_000))
}
