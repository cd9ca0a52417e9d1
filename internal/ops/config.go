package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"main/internal/feed"
	"main/internal/journal"
	"main/internal/lifecycle"
	"main/internal/risk"
)

// FileConfig mirrors the JSON config layout. Durations are expressed in
// milliseconds so config files stay plain numbers.
type FileConfig struct {
	Symbols  []feed.SymbolConfig `json:"symbols"`
	Feed     FeedConfig          `json:"feed"`
	Order    OrderFlowConfig     `json:"order"`
	Risk     RiskConfig          `json:"risk"`
	Monitor  MonitorConfig       `json:"monitor"`
	Events   EventsConfig        `json:"events"`
	Journal  JournalConfig       `json:"journal"`
	Snapshot SnapshotConfig      `json:"snapshot"`
	Features FeatureFlagsConfig  `json:"features"`
}

// FeedConfig tunes the synthetic quote feed.
type FeedConfig struct {
	TickMillis int    `json:"tickMillis"`
	Seed       uint64 `json:"seed"`
}

// OrderFlowConfig tunes the order lifecycle service.
type OrderFlowConfig struct {
	LatencyMinMillis int   `json:"latencyMinMillis"`
	LatencyMaxMillis int   `json:"latencyMaxMillis"`
	SlippageBps      int64 `json:"slippageBps"`
	Workers          int   `json:"workers"`
	QueueSize        int   `json:"queueSize"`
}

// RiskConfig mirrors the pre-trade limits.
type RiskConfig struct {
	KillSwitch           bool   `json:"killSwitch"`
	MaxOrderQty          string `json:"maxOrderQty"`
	MaxOrderNotional     string `json:"maxOrderNotional"`
	MaxPosition          string `json:"maxPosition"`
	OrderRateLimit       int    `json:"orderRateLimit"`
	RateWindowMillis     int    `json:"rateWindowMillis"`
	MaxPriceDeviationBps int64  `json:"maxPriceDeviationBps"`
}

// MonitorConfig tunes the contingent order monitor.
type MonitorConfig struct {
	IntervalMillis int `json:"intervalMillis"`
}

// EventsConfig tunes the execution event queue.
type EventsConfig struct {
	QueueSize int `json:"queueSize"`
}

// JournalConfig tunes the execution journal.
type JournalConfig struct {
	Path        string `json:"path"`
	QueueSize   int    `json:"queueSize"`
	FlushMillis int    `json:"flushMillis"`
}

// SnapshotConfig picks the snapshot store backend.
type SnapshotConfig struct {
	Driver     string `json:"driver"`
	Path       string `json:"path"`
	ConnString string `json:"connString"`
}

// FeatureFlagsConfig captures optional runtime flags.
type FeatureFlagsConfig struct {
	EnableRisk     *bool `json:"enableRisk"`
	EnableJournal  *bool `json:"enableJournal"`
	EnableSnapshot *bool `json:"enableSnapshot"`
}

// FeatureFlags are resolved runtime flags.
type FeatureFlags struct {
	EnableRisk     bool
	EnableJournal  bool
	EnableSnapshot bool
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Symbols         []feed.SymbolConfig
	FeedTick        time.Duration
	FeedSeed        uint64
	Lifecycle       lifecycle.Config
	Risk            risk.Config
	MonitorInterval time.Duration
	EventQueueSize  int
	Journal         journal.Config
	Snapshot        SnapshotConfig
	Features        FeatureFlags
}

// Load reads a JSON config file and resolves defaults. An empty path returns
// the built-in demo configuration.
func Load(path string) (Loaded, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, err
	}
	return resolve(cfg)
}

// Default returns a two-symbol demo configuration.
func Default() Loaded {
	loaded, _ := resolve(FileConfig{
		Symbols: []feed.SymbolConfig{
			{Name: "BTC-USD", BasePrice: "64000", SpreadBps: 2, VolatilityBps: 8, BaseVolume: "120"},
			{Name: "ETH-USD", BasePrice: "3200", SpreadBps: 3, VolatilityBps: 12, BaseVolume: "400"},
		},
	})
	return loaded
}

func resolve(cfg FileConfig) (Loaded, error) {
	if len(cfg.Symbols) == 0 {
		return Loaded{}, fmt.Errorf("config needs at least one symbol")
	}
	for _, sym := range cfg.Symbols {
		if sym.Name == "" {
			return Loaded{}, fmt.Errorf("config symbol name is empty")
		}
	}

	loaded := Loaded{
		Symbols:  cfg.Symbols,
		FeedTick: millis(cfg.Feed.TickMillis, 50*time.Millisecond),
		FeedSeed: cfg.Feed.Seed,
		Lifecycle: lifecycle.Config{
			LatencyMin:  millis(cfg.Order.LatencyMinMillis, 0),
			LatencyMax:  millis(cfg.Order.LatencyMaxMillis, 0),
			SlippageBps: cfg.Order.SlippageBps,
			Workers:     cfg.Order.Workers,
			QueueSize:   cfg.Order.QueueSize,
		},
		Risk: risk.Config{
			KillSwitch:           cfg.Risk.KillSwitch,
			MaxOrderQty:          cfg.Risk.MaxOrderQty,
			MaxOrderNotional:     cfg.Risk.MaxOrderNotional,
			MaxPosition:          cfg.Risk.MaxPosition,
			OrderRateLimit:       cfg.Risk.OrderRateLimit,
			OrderRateWindow:      millis(cfg.Risk.RateWindowMillis, 0),
			MaxPriceDeviationBps: cfg.Risk.MaxPriceDeviationBps,
		},
		MonitorInterval: millis(cfg.Monitor.IntervalMillis, 100*time.Millisecond),
		EventQueueSize:  cfg.Events.QueueSize,
		Journal: journal.Config{
			Path:          cfg.Journal.Path,
			QueueSize:     cfg.Journal.QueueSize,
			FlushInterval: millis(cfg.Journal.FlushMillis, 0),
		},
		Snapshot: cfg.Snapshot,
		Features: resolveFeatures(cfg.Features),
	}

	if loaded.EventQueueSize <= 0 {
		loaded.EventQueueSize = 1024
	}
	if loaded.Journal.Path == "" {
		loaded.Journal.Path = "data/executions.jsonl"
	}
	if loaded.Snapshot.Driver == "" {
		loaded.Snapshot.Driver = "file"
	}
	switch loaded.Snapshot.Driver {
	case "file":
		if loaded.Snapshot.Path == "" {
			loaded.Snapshot.Path = "data/snapshot.json"
		}
	case "sqlite":
		if loaded.Snapshot.Path == "" {
			loaded.Snapshot.Path = "data/snapshot.db"
		}
	case "postgres":
		if loaded.Snapshot.ConnString == "" {
			return Loaded{}, fmt.Errorf("postgres snapshot driver needs connString")
		}
	default:
		return Loaded{}, fmt.Errorf("unsupported snapshot driver: %s", loaded.Snapshot.Driver)
	}
	return loaded, nil
}

func resolveFeatures(cfg FeatureFlagsConfig) FeatureFlags {
	flags := FeatureFlags{
		EnableRisk:     true,
		EnableJournal:  true,
		EnableSnapshot: true,
	}
	if cfg.EnableRisk != nil {
		flags.EnableRisk = *cfg.EnableRisk
	}
	if cfg.EnableJournal != nil {
		flags.EnableJournal = *cfg.EnableJournal
	}
	if cfg.EnableSnapshot != nil {
		flags.EnableSnapshot = *cfg.EnableSnapshot
	}
	return flags
}

func millis(v int, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return time.Duration(v) * time.Millisecond
}
