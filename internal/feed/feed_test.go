package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"main/internal/model"
)

func testSymbols() []SymbolConfig {
	return []SymbolConfig{
		{Name: "BTC-USD", BasePrice: "64000", SpreadBps: 2, VolatilityBps: 8, BaseVolume: "100"},
		{Name: "ETH-USD", BasePrice: "3200", SpreadBps: 3, VolatilityBps: 12},
	}
}

func TestNewSyntheticValidation(t *testing.T) {
	_, err := NewSynthetic(nil, 1)
	require.Error(t, err)

	_, err = NewSynthetic([]SymbolConfig{{Name: "X", BasePrice: "-1"}}, 1)
	require.Error(t, err)

	_, err = NewSynthetic([]SymbolConfig{{Name: "X", BasePrice: "10", BaseVolume: "abc"}}, 1)
	require.Error(t, err)
}

func TestQuoteInvariants(t *testing.T) {
	s, err := NewSynthetic(testSymbols(), 42)
	require.NoError(t, err)

	now := time.Now()
	for i := 0; i < 500; i++ {
		now = now.Add(50 * time.Millisecond)
		s.Tick(now)
	}

	for _, symbol := range s.Symbols() {
		q, ok := s.Quote(symbol)
		require.True(t, ok, symbol)
		require.True(t, q.Bid.IsPositive(), "bid must stay positive: %s", q.Bid)
		require.True(t, q.Ask.GreaterThan(q.Bid), "ask must stay above bid: bid=%s ask=%s", q.Bid, q.Ask)
		require.True(t, q.LastPrice.GreaterThanOrEqual(q.Bid) && q.LastPrice.LessThanOrEqual(q.Ask),
			"last must sit inside the spread: %+v", q)
	}
}

func TestDeterministicWithSeed(t *testing.T) {
	a, err := NewSynthetic(testSymbols(), 7)
	require.NoError(t, err)
	b, err := NewSynthetic(testSymbols(), 7)
	require.NoError(t, err)

	now := time.Now()
	for i := 0; i < 50; i++ {
		now = now.Add(time.Millisecond)
		a.Tick(now)
		b.Tick(now)
	}

	qa, _ := a.Quote("BTC-USD")
	qb, _ := b.Quote("BTC-USD")
	require.True(t, qa.LastPrice.Equal(qb.LastPrice), "same seed must walk the same path: %s vs %s", qa.LastPrice, qb.LastPrice)
}

func TestSubscribersReceiveEveryQuote(t *testing.T) {
	s, err := NewSynthetic(testSymbols(), 3)
	require.NoError(t, err)

	var got []model.Quote
	s.Subscribe(func(q model.Quote) { got = append(got, q) })

	s.Tick(time.Now())
	s.Tick(time.Now())
	require.Len(t, got, 4) // 2 symbols x 2 ticks

	unknown, ok := s.Quote("DOGE-USD")
	require.False(t, ok)
	require.Empty(t, unknown.Symbol)
}
