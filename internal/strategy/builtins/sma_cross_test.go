package builtins

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockbt/internal/domain"
	"stockbt/internal/strategy"
)

func view(ticker string, close float64, shares int) strategy.View {
	return strategy.View{
		Ticker:   ticker,
		Latest:   domain.OHLCV{Close: close},
		Holdings: map[string]int{ticker: shares},
	}
}

func TestNewSMACrossValidatesPeriods(t *testing.T) {
	_, err := NewSMACross(0, 3, 0)
	assert.Error(t, err)
	_, err = NewSMACross(5, 5, 0)
	assert.Error(t, err)
	_, err = NewSMACross(2, 3, 0)
	assert.NoError(t, err)
}

func TestSMACrossSignals(t *testing.T) {
	ctx := context.Background()
	s, err := NewSMACross(2, 3, 5)
	require.NoError(t, err)
	require.NoError(t, s.Init(ctx))

	for _, c := range []float64{10, 10, 10} {
		intents, err := s.Process(ctx, view("SPY", c, 0))
		require.NoError(t, err)
		assert.Empty(t, intents)
	}

	// Short SMA moves from 10 to 11 while the long SMA moves to 10.67.
	intents, err := s.Process(ctx, view("SPY", 12, 0))
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, domain.OrderSideBuy, intents[0].Side)
	assert.Equal(t, 5, intents[0].Shares)

	// Short SMA 9 drops below long SMA 9.33.
	intents, err = s.Process(ctx, view("SPY", 6, 5))
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, domain.OrderSideSell, intents[0].Side)
	assert.Equal(t, 0, intents[0].Shares)
}

func TestSMACrossNoSellWithoutShares(t *testing.T) {
	ctx := context.Background()
	s, err := NewSMACross(2, 3, 0)
	require.NoError(t, err)

	for _, c := range []float64{10, 10, 10, 12} {
		_, err := s.Process(ctx, view("SPY", c, 0))
		require.NoError(t, err)
	}
	intents, err := s.Process(ctx, view("SPY", 6, 0))
	require.NoError(t, err)
	assert.Empty(t, intents)
}

func TestSMACrossTracksTickersSeparately(t *testing.T) {
	ctx := context.Background()
	s, err := NewSMACross(2, 3, 0)
	require.NoError(t, err)

	for _, c := range []float64{10, 10, 10} {
		_, _ = s.Process(ctx, view("SPY", c, 0))
	}
	intents, err := s.Process(ctx, view("AAPL", 12, 0))
	require.NoError(t, err)
	assert.Empty(t, intents, "AAPL has a single close so far")
}

func TestSMACrossIgnoresMissingClose(t *testing.T) {
	s, err := NewSMACross(2, 3, 0)
	require.NoError(t, err)
	intents, err := s.Process(context.Background(), view("SPY", 0, 0))
	require.NoError(t, err)
	assert.Empty(t, intents)
	assert.Empty(t, s.closes["SPY"])
}

func TestRegisterBuiltins(t *testing.T) {
	r := strategy.NewRegistry()
	Register(r)

	s, err := r.New(SMACrossName, map[string]string{"short": "3", "long": "8"})
	require.NoError(t, err)
	assert.Equal(t, SMACrossName, s.Name())

	_, err = r.New(SMACrossName, map[string]string{"short": "x"})
	assert.Error(t, err)
}
