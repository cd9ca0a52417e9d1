package repository

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"main/internal/model"
	"main/internal/model/enum"
	"main/pkg/conn"
	"main/pkg/exception"
)

func newOrder(clientID, symbol string) *model.Order {
	now := time.Now()
	return &model.Order{
		ID:        uuid.New(),
		ClientID:  clientID,
		Symbol:    symbol,
		Side:      enum.OrderSideBuy,
		Kind:      enum.OrderKindLimit,
		Quantity:  decimal.NewFromInt(5),
		Price:     decimal.NewFromInt(100),
		Status:    enum.OrderStatusNew,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestCreateOrderRejectsDuplicates(t *testing.T) {
	repo := NewInMemory()

	order := newOrder("c-1", "BTC-USD")
	if err := repo.CreateOrder(order); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.CreateOrder(order); err != exception.ErrDuplicateOrder {
		t.Fatalf("duplicate id should be rejected, got %v", err)
	}

	other := newOrder("c-1", "BTC-USD")
	if err := repo.CreateOrder(other); err != exception.ErrDuplicateClientID {
		t.Fatalf("duplicate client id should be rejected, got %v", err)
	}
}

func TestUpdateOrderIsAtomic(t *testing.T) {
	repo := NewInMemory()
	order := newOrder("c-2", "BTC-USD")
	if err := repo.CreateOrder(order); err != nil {
		t.Fatalf("create: %v", err)
	}

	// A failing mutation must leave the stored order untouched.
	_, err := repo.UpdateOrder(order.ID, func(o *model.Order) error {
		o.Status = enum.OrderStatusFilled
		return exception.ErrStateConflict
	})
	if err != exception.ErrStateConflict {
		t.Fatalf("error should propagate, got %v", err)
	}
	got, _ := repo.Order(order.ID)
	if got.Status != enum.OrderStatusNew {
		t.Fatalf("failed update must not persist, got %s", got.Status)
	}

	updated, err := repo.UpdateOrder(order.ID, func(o *model.Order) error {
		return o.ApplyFill(decimal.NewFromInt(2), decimal.NewFromInt(100), time.Now())
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != enum.OrderStatusPartiallyFilled {
		t.Fatalf("status mismatch! should be PARTIALLY_FILLED but got %s", updated.Status)
	}
}

func TestOrderCopiesAreIsolated(t *testing.T) {
	repo := NewInMemory()
	order := newOrder("c-3", "BTC-USD")
	if err := repo.CreateOrder(order); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, _ := repo.Order(order.ID)
	got.Status = enum.OrderStatusRejected

	again, _ := repo.Order(order.ID)
	if again.Status != enum.OrderStatusNew {
		t.Fatalf("mutating a returned copy must not affect the store")
	}
}

func TestOpenOrdersBySymbolSkipsTerminal(t *testing.T) {
	repo := NewInMemory()
	open := newOrder("c-4", "BTC-USD")
	done := newOrder("c-5", "BTC-USD")
	other := newOrder("c-6", "ETH-USD")
	for _, o := range []*model.Order{open, done, other} {
		if err := repo.CreateOrder(o); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if _, err := repo.UpdateOrder(done.ID, func(o *model.Order) error {
		return o.Transition(enum.OrderStatusCancelled, time.Now())
	}); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	got := repo.OpenOrdersBySymbol("BTC-USD")
	if len(got) != 1 || got[0].ID != open.ID {
		t.Fatalf("open order filter mismatch: %+v", got)
	}
}

func TestTradesByOrderMatchesEitherSide(t *testing.T) {
	repo := NewInMemory()
	taker := uuid.New()
	maker := uuid.New()
	repo.AppendTrade(model.Trade{ID: uuid.New(), OrderID: taker, MakerOrderID: maker, Symbol: "BTC-USD"})
	repo.AppendTrade(model.Trade{ID: uuid.New(), OrderID: uuid.New(), Symbol: "BTC-USD"})

	if got := repo.TradesByOrder(taker); len(got) != 1 {
		t.Fatalf("taker lookup mismatch: %d", len(got))
	}
	if got := repo.TradesByOrder(maker); len(got) != 1 {
		t.Fatalf("maker lookup mismatch: %d", len(got))
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	repo := NewInMemory()
	first := newOrder("c-7", "BTC-USD")
	second := newOrder("c-8", "ETH-USD")
	second.CreatedAt = first.CreatedAt.Add(time.Millisecond)
	for _, o := range []*model.Order{first, second} {
		if err := repo.CreateOrder(o); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	repo.AppendTrade(model.Trade{ID: uuid.New(), OrderID: first.ID, Symbol: "BTC-USD", Quantity: decimal.NewFromInt(1)})
	repo.AppendReport(model.ExecutionReport{ID: uuid.New(), OrderID: first.ID, ExecType: enum.ExecTypeNew, OrderStatus: enum.OrderStatusNew})

	store := NewFileStore(t.TempDir() + "/snapshot.json")
	if _, ok, err := store.Load(); err != nil || ok {
		t.Fatalf("empty store should report ok=false, got ok=%v err=%v", ok, err)
	}

	snap := TakeSnapshot(repo, time.Now())
	if err := store.Save(snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, ok, err := store.Load()
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}

	restored, err := RestoreSnapshot(loaded)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	orders := restored.Orders()
	if len(orders) != 2 || orders[0].ID != first.ID || orders[1].ID != second.ID {
		t.Fatalf("restored order sequence mismatch: %+v", orders)
	}
	if got, ok := restored.OrderByClientID("c-8"); !ok || got.ID != second.ID {
		t.Fatalf("client id index should rebuild")
	}
	if len(restored.Trades()) != 1 || len(restored.Reports()) != 1 {
		t.Fatalf("trades and reports should survive the round trip")
	}
}

func TestGormStoreRoundTrip(t *testing.T) {
	client, err := conn.New(conn.Option{
		Driver: conn.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "snapshot.db"),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer client.Close()

	store, err := NewGormStore(client.DB(), "")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, ok, err := store.Load(); err != nil || ok {
		t.Fatalf("empty store should report ok=false, got ok=%v err=%v", ok, err)
	}

	repo := NewInMemory()
	order := newOrder("c-9", "BTC-USD")
	if err := repo.CreateOrder(order); err != nil {
		t.Fatalf("create: %v", err)
	}
	repo.AppendTrade(model.Trade{ID: uuid.New(), OrderID: order.ID, Symbol: "BTC-USD", Quantity: decimal.NewFromInt(2)})

	snap := TakeSnapshot(repo, time.Now().UTC())
	if err := store.Save(snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	// Saving twice upserts the single keyed record.
	if err := store.Save(snap); err != nil {
		t.Fatalf("resave: %v", err)
	}

	loaded, ok, err := store.Load()
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	restored, err := RestoreSnapshot(loaded)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got, ok := restored.Order(order.ID); !ok || got.ClientID != "c-9" {
		t.Fatalf("restored order mismatch: %+v", got)
	}
	if len(restored.Trades()) != 1 {
		t.Fatalf("trade count mismatch! should be 1 but got %d", len(restored.Trades()))
	}
}
