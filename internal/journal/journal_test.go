package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"main/internal/bus"
	"main/internal/model"
	"main/internal/model/enum"
)

func TestWriterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "executions.jsonl")
	w, err := NewWriter(Config{Path: path})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	report := model.ExecutionReport{
		ID:          uuid.New(),
		OrderID:     uuid.New(),
		ExecType:    enum.ExecTypeFill,
		LastQty:     decimal.NewFromInt(2),
		LastPrice:   decimal.NewFromInt(100),
		OrderStatus: enum.OrderStatusFilled,
		ReportedAt:  time.Now().UTC(),
	}
	trade := model.Trade{
		ID:         uuid.New(),
		OrderID:    report.OrderID,
		Symbol:     "BTC-USD",
		Side:       enum.OrderSideBuy,
		Quantity:   decimal.NewFromInt(2),
		Price:      decimal.NewFromInt(100),
		ExecutedAt: time.Now().UTC(),
	}
	w.Consume(bus.ReportEvent(report))
	w.Consume(bus.TradeEvent(trade))

	require.NoError(t, w.Close())

	entries, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	require.Equal(t, EntryReport, entries[0].Type)
	require.NotNil(t, entries[0].Report)
	require.Equal(t, report.ID, entries[0].Report.ID)
	require.True(t, entries[0].Report.LastQty.Equal(report.LastQty))

	require.Equal(t, EntryTrade, entries[1].Type)
	require.NotNil(t, entries[1].Trade)
	require.Equal(t, trade.ID, entries[1].Trade.ID)
}

func TestTryAppendGuards(t *testing.T) {
	path := filepath.Join(t.TempDir(), "executions.jsonl")
	w, err := NewWriter(Config{Path: path, QueueSize: 1})
	require.NoError(t, err)

	// Not started yet.
	require.ErrorIs(t, w.TryAppend(Entry{Type: EntryTrade}), ErrNotStarted)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // run loop exits immediately, queue stays unconsumed
	require.NoError(t, w.Start(ctx))

	require.NoError(t, w.Close())
	require.ErrorIs(t, w.TryAppend(Entry{Type: EntryTrade}), ErrClosed)
}

func TestNewWriterRequiresPath(t *testing.T) {
	_, err := NewWriter(Config{})
	require.Error(t, err)
}
