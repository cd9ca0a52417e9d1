package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"main/internal/bus"
	"main/internal/contingent"
	"main/internal/engine"
	"main/internal/feed"
	"main/internal/journal"
	"main/internal/lifecycle"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/repository"
	"main/internal/risk"
	"main/pkg/conn"
)

func main() {
	configPath := flag.String("config", "", "Path to JSON config (empty = built-in demo config)")
	duration := flag.Duration("duration", 30*time.Second, "How long to run the simulation (0 = until interrupted)")
	recoverEnabled := flag.Bool("recover", false, "Restore the order repository from the last snapshot")
	demoOrders := flag.Bool("demo-orders", true, "Submit a scripted batch of demo orders at startup")
	pyroscopeAddr := flag.String("pyroscope", "", "Pyroscope server address (empty = profiling disabled)")
	flag.Parse()

	loaded, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	if *pyroscopeAddr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "broker/simulator",
			ServerAddress:   *pyroscopeAddr,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	store, closeStore, err := openSnapshotStore(loaded.Snapshot)
	if err != nil {
		log.Fatalf("snapshot store init failed: %v", err)
	}
	defer closeStore()

	repo := repository.NewInMemory()
	if *recoverEnabled {
		snap, ok, err := store.Load()
		if err != nil {
			log.Fatalf("snapshot load failed: %v", err)
		}
		if ok {
			restored, err := repository.RestoreSnapshot(snap)
			if err != nil {
				log.Fatalf("snapshot restore failed: %v", err)
			}
			repo = restored
			logs.Infof("repository restored: orders=%d trades=%d takenAt=%s",
				len(snap.Orders), len(snap.Trades), snap.TakenAt.Format(time.RFC3339))
		}
	}

	quotes, err := feed.NewSynthetic(loaded.Symbols, loaded.FeedSeed)
	if err != nil {
		log.Fatalf("feed init failed: %v", err)
	}

	metrics := obs.NewMetrics()
	events := bus.NewQueue(loaded.EventQueueSize)
	positions := risk.NewPositionTracker()
	var riskEngine *risk.Engine
	if loaded.Features.EnableRisk {
		riskEngine = risk.NewEngine(loaded.Risk)
	}

	matching := engine.New(repo)
	svc := lifecycle.NewService(loaded.Lifecycle, repo, matching, quotes, riskEngine, positions, events, metrics)
	orchestrator := contingent.New(repo, quotes, svc, metrics, loaded.MonitorInterval)
	quotes.Subscribe(svc.OnQuote)

	var journalWriter *journal.Writer
	if loaded.Features.EnableJournal {
		journalWriter, err = journal.NewWriter(loaded.Journal)
		if err != nil {
			log.Fatalf("journal init failed: %v", err)
		}
		if err := journalWriter.Start(ctx); err != nil {
			log.Fatalf("journal start failed: %v", err)
		}
	}
	go events.Run(ctx, func(e bus.Event) {
		if journalWriter != nil {
			journalWriter.Consume(e)
		}
		logEvent(e)
	})

	svc.Run(ctx)
	go quotes.Run(ctx, loaded.FeedTick)
	go orchestrator.Run(ctx)

	if *demoOrders {
		go submitDemoOrders(svc, orchestrator, quotes.Symbols())
	}

	var deadline <-chan time.Time
	if *duration > 0 {
		deadline = time.After(*duration)
	}
	select {
	case <-ctx.Done():
	case <-sys.Shutdown():
	case <-deadline:
	}
	cancel()
	events.Close()
	if journalWriter != nil {
		if err := journalWriter.Close(); err != nil {
			logs.Warnf("journal close: %+v", err)
		}
	}

	if loaded.Features.EnableSnapshot {
		snap := repository.TakeSnapshot(repo, time.Now())
		if err := store.Save(snap); err != nil {
			logs.Errorf("snapshot save failed: %+v", err)
		} else {
			logs.Infof("snapshot saved: orders=%d trades=%d reports=%d",
				len(snap.Orders), len(snap.Trades), len(snap.Reports))
		}
	}
	logMetrics(metrics)
}

func openSnapshotStore(cfg ops.SnapshotConfig) (repository.SnapshotStore, func(), error) {
	noop := func() {}
	switch cfg.Driver {
	case "file":
		return repository.NewFileStore(cfg.Path), noop, nil
	case "sqlite":
		client, err := conn.New(conn.Option{Driver: conn.DriverSQLite, Path: cfg.Path})
		if err != nil {
			return nil, noop, err
		}
		store, err := repository.NewGormStore(client.DB(), "")
		if err != nil {
			_ = client.Close()
			return nil, noop, err
		}
		return store, func() { _ = client.Close() }, nil
	case "postgres":
		client, err := conn.New(conn.Option{Driver: conn.DriverPostgres, ConnString: cfg.ConnString})
		if err != nil {
			return nil, noop, err
		}
		store, err := repository.NewGormStore(client.DB(), "")
		if err != nil {
			_ = client.Close()
			return nil, noop, err
		}
		return store, func() { _ = client.Close() }, nil
	default:
		return repository.NewFileStore(cfg.Path), noop, nil
	}
}

// submitDemoOrders exercises every order kind once so a bare run produces
// visible activity: plain orders, a bracket, an OCO pair, a multi-leg
// spread, and a small TWAP schedule.
func submitDemoOrders(svc *lifecycle.Service, orchestrator *contingent.Orchestrator, symbols []string) {
	if len(symbols) == 0 {
		return
	}
	primary := symbols[0]
	note := func(label string, err error) {
		if err != nil {
			logs.Warnf("demo order rejected: %s err=%+v", label, err)
		}
	}

	id, err := svc.Submit(lifecycle.Request{
		ClientID: "demo-market-buy",
		Symbol:   primary,
		Side:     enum.OrderSideBuy,
		Kind:     enum.OrderKindMarket,
		Quantity: decimal.NewFromInt(2),
	})
	note(id.String(), err)

	_, err = orchestrator.CreateBracket(lifecycle.Request{
		ClientID: "demo-bracket",
		Symbol:   primary,
		Side:     enum.OrderSideBuy,
		Kind:     enum.OrderKindMarket,
		Quantity: decimal.NewFromInt(1),
	}, []model.ContingentSpec{
		{Type: enum.ContingentTrailingStop, TrailingOffsetPct: decimal.NewFromFloat(0.5)},
	})
	note("bracket", err)

	_, _, err = orchestrator.CreateOCO(lifecycle.Request{
		ClientID: "demo-oco-low",
		Symbol:   primary,
		Side:     enum.OrderSideBuy,
		Kind:     enum.OrderKindLimit,
		Quantity: decimal.NewFromInt(1),
		Price:    decimal.NewFromInt(1),
	}, lifecycle.Request{
		ClientID: "demo-oco-market",
		Symbol:   primary,
		Side:     enum.OrderSideBuy,
		Kind:     enum.OrderKindMarket,
		Quantity: decimal.NewFromInt(1),
	})
	note("oco", err)

	if len(symbols) > 1 {
		_, _, err = orchestrator.CreateMultiLeg("demo-spread", []model.Leg{
			{Symbol: symbols[0], Side: enum.OrderSideBuy, Kind: enum.OrderKindMarket, Quantity: decimal.NewFromInt(1)},
			{Symbol: symbols[1], Side: enum.OrderSideSell, Kind: enum.OrderKindMarket, Quantity: decimal.NewFromInt(1)},
		})
		note("multi-leg", err)
	}

	_, err = orchestrator.CreateTWAP(lifecycle.Request{
		ClientID: "demo-twap",
		Symbol:   primary,
		Side:     enum.OrderSideBuy,
		Quantity: decimal.NewFromInt(4),
	}, 4, 2*time.Second)
	note("twap", err)
}

func logEvent(e bus.Event) {
	switch e.Type {
	case bus.EventReport:
		r := e.Report
		logs.Infof("exec report: order=%s type=%s status=%s lastQty=%s lastPrice=%s cumQty=%s reason=%q",
			r.OrderID, r.ExecType, r.OrderStatus, r.LastQty, r.LastPrice, r.CumQty, r.Reason)
	case bus.EventTrade:
		t := e.Trade
		logs.Infof("trade: id=%s symbol=%s side=%s qty=%s price=%s", t.ID, t.Symbol, t.Side, t.Quantity, t.Price)
	}
}

func logMetrics(m *obs.Metrics) {
	snap := m.Snapshot()
	logs.Infof("metrics: trades=%d queueDrops=%d", snap.Trades, snap.QueueDrops)
	for execType, count := range snap.ExecCounts {
		logs.Infof("metrics: exec %s=%d", execType, count)
	}
	logs.Infof("metrics: orderFlow count=%d avg=%s max=%s",
		snap.OrderFlowLatency.Count, snap.OrderFlowLatency.Avg, snap.OrderFlowLatency.Max)
	logs.Infof("metrics: match count=%d avg=%s max=%s",
		snap.MatchLatency.Count, snap.MatchLatency.Avg, snap.MatchLatency.Max)
	logs.Infof("metrics: monitor count=%d avg=%s max=%s",
		snap.MonitorLatency.Count, snap.MonitorLatency.Avg, snap.MonitorLatency.Max)
}
