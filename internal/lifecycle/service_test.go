package lifecycle

import (
	stderrors "errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"main/internal/bus"
	"main/internal/engine"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/obs"
	"main/internal/repository"
	"main/internal/risk"
	"main/pkg/exception"
)

const testSymbol = "BTC-USD"

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type stubFeed struct {
	quotes map[string]model.Quote
}

func (f *stubFeed) Quote(symbol string) (model.Quote, bool) {
	q, ok := f.quotes[symbol]
	return q, ok
}

func (f *stubFeed) set(bid, ask, last string) {
	f.quotes[testSymbol] = model.Quote{
		Symbol:    testSymbol,
		Bid:       dec(bid),
		Ask:       dec(ask),
		LastPrice: dec(last),
	}
}

func newTestService(t *testing.T, riskCfg *risk.Config) (*Service, *repository.InMemory, *stubFeed) {
	t.Helper()
	repo := repository.NewInMemory()
	eng := engine.New(repo)
	quotes := &stubFeed{quotes: make(map[string]model.Quote)}
	quotes.set("100", "100.1", "100.05")

	var riskEngine *risk.Engine
	if riskCfg != nil {
		riskEngine = risk.NewEngine(*riskCfg)
	}
	svc := NewService(
		Config{Workers: 1, QueueSize: 16},
		repo, eng, quotes, riskEngine,
		risk.NewPositionTracker(),
		bus.NewQueue(64),
		obs.NewMetrics(),
	)
	return svc, repo, quotes
}

// drain processes one queued task synchronously so tests stay deterministic.
func drain(t *testing.T, s *Service) {
	t.Helper()
	select {
	case task := <-s.queue:
		s.process(task)
	default:
		t.Fatalf("no task queued")
	}
}

func TestSubmitValidation(t *testing.T) {
	svc, repo, _ := newTestService(t, nil)

	testCases := []struct {
		desc     string
		req      Request
		expected error
	}{
		{
			"missing symbol",
			Request{Side: enum.OrderSideBuy, Kind: enum.OrderKindMarket, Quantity: dec("1")},
			exception.ErrUnknownSymbol,
		},
		{
			"zero quantity",
			Request{Symbol: testSymbol, Side: enum.OrderSideBuy, Kind: enum.OrderKindMarket},
			exception.ErrInvalidQuantity,
		},
		{
			"limit without price",
			Request{Symbol: testSymbol, Side: enum.OrderSideSell, Kind: enum.OrderKindLimit, Quantity: dec("1")},
			exception.ErrMissingPrice,
		},
		{
			"stop without stop price",
			Request{Symbol: testSymbol, Side: enum.OrderSideSell, Kind: enum.OrderKindStop, Quantity: dec("1")},
			exception.ErrMissingStopPrice,
		},
		{
			"stop limit without limit price",
			Request{Symbol: testSymbol, Side: enum.OrderSideSell, Kind: enum.OrderKindStopLimit, Quantity: dec("1"), StopPrice: dec("99")},
			exception.ErrMissingPrice,
		},
		{
			"multi-leg without legs",
			Request{Symbol: testSymbol, Kind: enum.OrderKindMultiLeg, Quantity: dec("1")},
			exception.ErrInvalidRequest,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			id, err := svc.Submit(tc.req)
			if !stderrors.Is(err, tc.expected) {
				t.Fatalf("error mismatch! should be %v but got %v", tc.expected, err)
			}
			reports := repo.ReportsByOrder(id)
			if len(reports) != 1 || reports[0].ExecType != enum.ExecTypeRejected {
				t.Fatalf("validation failure should emit one rejection report: %+v", reports)
			}
			if reports[0].OrderStatus != enum.OrderStatusRejected {
				t.Fatalf("rejection report status mismatch! should be REJECTED but got %s", reports[0].OrderStatus)
			}
		})
	}
}

func TestMarketOrderFillsWithSlippage(t *testing.T) {
	svc, repo, _ := newTestService(t, nil)

	id, err := svc.Submit(Request{
		Symbol:   testSymbol,
		Side:     enum.OrderSideBuy,
		Kind:     enum.OrderKindMarket,
		Quantity: dec("2"),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	drain(t, svc)

	order, ok := repo.Order(id)
	if !ok {
		t.Fatalf("order not persisted")
	}
	if order.Status != enum.OrderStatusFilled {
		t.Fatalf("status mismatch! should be FILLED but got %s", order.Status)
	}
	// ask 100.1 with 5 bps adverse slippage
	if !order.AvgFillPrice.Equal(dec("100.15005")) {
		t.Fatalf("fill price mismatch! should be 100.15005 but got %s", order.AvgFillPrice)
	}

	reports := repo.ReportsByOrder(id)
	if len(reports) != 2 {
		t.Fatalf("report count mismatch! should be 2 but got %d", len(reports))
	}
	if reports[0].ExecType != enum.ExecTypeNew || reports[1].ExecType != enum.ExecTypeFill {
		t.Fatalf("report sequence mismatch: %+v", reports)
	}
	if len(repo.TradesByOrder(id)) != 1 {
		t.Fatalf("trade should be recorded")
	}
}

func TestLimitOrderRestsThenFillsOnQuote(t *testing.T) {
	svc, repo, quotes := newTestService(t, nil)

	id, err := svc.Submit(Request{
		Symbol:   testSymbol,
		Side:     enum.OrderSideBuy,
		Kind:     enum.OrderKindLimit,
		Quantity: dec("1"),
		Price:    dec("99"),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	drain(t, svc)

	if order, _ := repo.Order(id); order.Status != enum.OrderStatusNew {
		t.Fatalf("order should rest as NEW, got %s", order.Status)
	}

	quotes.set("98.8", "98.9", "98.85")
	svc.OnQuote(quotes.quotes[testSymbol])

	order, _ := repo.Order(id)
	if order.Status != enum.OrderStatusFilled {
		t.Fatalf("order should fill when the ask crosses, got %s", order.Status)
	}
	if !order.AvgFillPrice.Equal(dec("98.9")) {
		t.Fatalf("fill price should be the touch 98.9, got %s", order.AvgFillPrice)
	}
}

func TestStopOrderParksThenTriggers(t *testing.T) {
	svc, repo, quotes := newTestService(t, nil)

	id, err := svc.Submit(Request{
		Symbol:    testSymbol,
		Side:      enum.OrderSideSell,
		Kind:      enum.OrderKindStop,
		Quantity:  dec("1"),
		StopPrice: dec("99"),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	drain(t, svc)

	if order, _ := repo.Order(id); order.Status != enum.OrderStatusNew {
		t.Fatalf("untriggered stop should stay NEW, got %s", order.Status)
	}
	if got := svc.stops.ids(testSymbol); len(got) != 1 {
		t.Fatalf("stop should be parked, got %d", len(got))
	}

	// Last trades down through the stop price.
	quotes.set("98.4", "98.6", "98.5")
	svc.OnQuote(quotes.quotes[testSymbol])
	drain(t, svc)

	order, _ := repo.Order(id)
	if order.Status != enum.OrderStatusFilled {
		t.Fatalf("triggered stop should fill as market, got %s", order.Status)
	}
	// bid 98.4 with 5 bps adverse slippage
	if !order.AvgFillPrice.Equal(dec("98.3508")) {
		t.Fatalf("fill price mismatch! should be 98.3508 but got %s", order.AvgFillPrice)
	}
	if got := svc.stops.ids(testSymbol); len(got) != 0 {
		t.Fatalf("triggered stop should leave the index")
	}
}

func TestFOKCancelsWhenNotMarketable(t *testing.T) {
	svc, repo, _ := newTestService(t, nil)

	id, err := svc.Submit(Request{
		Symbol:      testSymbol,
		Side:        enum.OrderSideBuy,
		Kind:        enum.OrderKindLimit,
		Quantity:    dec("1"),
		Price:       dec("99"),
		TimeInForce: enum.TimeInForceFOK,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	drain(t, svc)

	order, _ := repo.Order(id)
	if order.Status != enum.OrderStatusCancelled {
		t.Fatalf("unmarketable FOK should cancel, got %s", order.Status)
	}
}

func TestIOCCancelsRemainder(t *testing.T) {
	svc, repo, _ := newTestService(t, nil)

	id, err := svc.Submit(Request{
		Symbol:      testSymbol,
		Side:        enum.OrderSideBuy,
		Kind:        enum.OrderKindLimit,
		Quantity:    dec("1"),
		Price:       dec("99"),
		TimeInForce: enum.TimeInForceIOC,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	drain(t, svc)

	order, _ := repo.Order(id)
	if order.Status != enum.OrderStatusCancelled {
		t.Fatalf("IOC remainder should cancel immediately, got %s", order.Status)
	}
}

func TestCancelIsTerminalNoOp(t *testing.T) {
	svc, repo, _ := newTestService(t, nil)

	id, err := svc.Submit(Request{
		Symbol:   testSymbol,
		Side:     enum.OrderSideSell,
		Kind:     enum.OrderKindLimit,
		Quantity: dec("1"),
		Price:    dec("150"),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	drain(t, svc)

	if err := svc.Cancel(id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	order, _ := repo.Order(id)
	if order.Status != enum.OrderStatusCancelled {
		t.Fatalf("status mismatch! should be CANCELLED but got %s", order.Status)
	}

	// Second cancel hits a terminal order: callers absorb the conflict.
	if err := svc.Cancel(id); !stderrors.Is(err, exception.ErrStateConflict) {
		t.Fatalf("second cancel should conflict, got %v", err)
	}
}

func TestNoMarketDataRejects(t *testing.T) {
	svc, repo, _ := newTestService(t, nil)

	id, err := svc.Submit(Request{
		Symbol:   "UNKNOWN-USD",
		Side:     enum.OrderSideBuy,
		Kind:     enum.OrderKindMarket,
		Quantity: dec("1"),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	drain(t, svc)

	order, _ := repo.Order(id)
	if order.Status != enum.OrderStatusRejected {
		t.Fatalf("order without market data should reject, got %s", order.Status)
	}
	if order.RejectReason != exception.ErrNoMarketData.Error() {
		t.Fatalf("reject reason mismatch: %q", order.RejectReason)
	}
}

func TestRiskLimitRejects(t *testing.T) {
	svc, repo, _ := newTestService(t, &risk.Config{MaxOrderQty: "1"})

	id, err := svc.Submit(Request{
		Symbol:   testSymbol,
		Side:     enum.OrderSideBuy,
		Kind:     enum.OrderKindMarket,
		Quantity: dec("5"),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	drain(t, svc)

	order, _ := repo.Order(id)
	if order.Status != enum.OrderStatusRejected {
		t.Fatalf("oversized order should reject, got %s", order.Status)
	}

	reports := repo.ReportsByOrder(id)
	last := reports[len(reports)-1]
	if last.ExecType != enum.ExecTypeRejected || last.Reason == "" {
		t.Fatalf("rejection report should carry the risk reason: %+v", last)
	}
	if !strings.Contains(last.Reason, exception.ErrRiskRejected.Error()) {
		t.Fatalf("reason should wrap the risk sentinel: %q", last.Reason)
	}
	if !strings.Contains(last.Reason, risk.ReasonMaxQty.String()) {
		t.Fatalf("reason should name the breached limit: %q", last.Reason)
	}
}

func TestContainerKindSkipsProcessing(t *testing.T) {
	svc, repo, _ := newTestService(t, nil)

	id, err := svc.Submit(Request{
		Symbol:   testSymbol,
		Side:     enum.OrderSideBuy,
		Kind:     enum.OrderKindTWAP,
		Quantity: dec("4"),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	select {
	case <-svc.queue:
		t.Fatalf("container parent must not enqueue a processing task")
	default:
	}
	if order, _ := repo.Order(id); order.Status != enum.OrderStatusNew {
		t.Fatalf("container parent should stay NEW, got %s", order.Status)
	}
}
