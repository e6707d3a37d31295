// Package builtins provides built-in strategy implementations that ship with
// stockbt.
package builtins

import (
	"context"
	"fmt"
	"strconv"

	"github.com/markcheno/go-talib"

	"stockbt/internal/strategy"
)

// SMACrossName is the registry name of the SMA crossover strategy.
const SMACrossName = "sma-cross"

const (
	defaultShortPeriod = 10
	defaultLongPeriod  = 30
)

// Compile-time interface check.
var _ strategy.Strategy = (*SMACross)(nil)

// SMACross implements a simple moving average crossover strategy. It buys
// when the short-period SMA crosses above the long-period SMA and sells the
// whole position when it crosses below.
type SMACross struct {
	shortPeriod int
	longPeriod  int
	shares      int
	closes      map[string][]float64
}

// NewSMACross creates a new SMACross strategy with the specified short and
// long moving average periods. shares is the amount bought on each signal;
// zero defers to the order engine's default.
func NewSMACross(short, long, shares int) (*SMACross, error) {
	if short < 1 || long < 1 {
		return nil, fmt.Errorf("sma periods must be positive, got short=%d long=%d", short, long)
	}
	if short >= long {
		return nil, fmt.Errorf("short period %d must be less than long period %d", short, long)
	}
	return &SMACross{
		shortPeriod: short,
		longPeriod:  long,
		shares:      shares,
		closes:      make(map[string][]float64),
	}, nil
}

// Name returns "sma-cross".
func (s *SMACross) Name() string {
	return SMACrossName
}

// Init resets the price buffers.
func (s *SMACross) Init(_ context.Context) error {
	s.closes = make(map[string][]float64)
	return nil
}

// Process appends the latest close for the view's ticker and emits a buy or
// sell intent on a crossover.
func (s *SMACross) Process(_ context.Context, v strategy.View) ([]strategy.Intent, error) {
	if v.Latest.Close <= 0 {
		return nil, nil
	}
	closes := append(s.closes[v.Ticker], v.Latest.Close)
	if len(closes) > s.longPeriod+1 {
		closes = closes[len(closes)-s.longPeriod-1:]
	}
	s.closes[v.Ticker] = closes

	// Two full long-period windows are needed to compare consecutive values.
	if len(closes) < s.longPeriod+1 {
		return nil, nil
	}

	short := talib.Sma(closes, s.shortPeriod)
	long := talib.Sma(closes, s.longPeriod)
	n := len(closes)
	prevShort, prevLong := short[n-2], long[n-2]
	curShort, curLong := short[n-1], long[n-1]

	switch {
	case prevShort <= prevLong && curShort > curLong:
		return []strategy.Intent{strategy.Buy(s.shares, "sma cross up")}, nil
	case prevShort >= prevLong && curShort < curLong && v.Shares(v.Ticker) > 0:
		return []strategy.Intent{strategy.Sell(0, "sma cross down")}, nil
	}
	return nil, nil
}

// NewSMACrossFromParams builds an SMACross from string parameters "short",
// "long" and "shares".
func NewSMACrossFromParams(params map[string]string) (strategy.Strategy, error) {
	short, err := intParam(params, "short", defaultShortPeriod)
	if err != nil {
		return nil, err
	}
	long, err := intParam(params, "long", defaultLongPeriod)
	if err != nil {
		return nil, err
	}
	shares, err := intParam(params, "shares", 0)
	if err != nil {
		return nil, err
	}
	return NewSMACross(short, long, shares)
}

// Register adds every built-in strategy to r.
func Register(r *strategy.Registry) {
	r.Register(SMACrossName, NewSMACrossFromParams)
}

func intParam(params map[string]string, key string, def int) (int, error) {
	raw, ok := params[key]
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return v, nil
}
