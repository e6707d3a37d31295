// Package engine replays market-data snapshots through a strategy, fills the
// resulting orders against a simulated account and records the trading
// history of the run.
package engine

import (
	"fmt"
	"strings"
	"time"

	"stockbt/internal/domain"
)

// State is the lifecycle state of a Driver.
type State string

const (
	StateInit      State = "INIT"
	StateIterating State = "ITERATING"
	StateDone      State = "DONE"
	StateFailed    State = "FAILED"
)

// Config is the immutable configuration of one backtest run. The zero value
// aborts on the first strategy error.
type Config struct {
	Name          string
	Tickers       []string
	Start         time.Time
	End           time.Time
	Frequency     domain.Frequency
	Balance       float64
	Commission    float64
	AutoFill      bool
	Live          bool
	DefaultShares int
	// ContinueOnErr records strategy errors on the history entry and keeps
	// iterating instead of failing the run.
	ContinueOnErr bool
}

// Validate checks the run parameters before any snapshot is requested.
func (c Config) Validate() error {
	if c.Start.IsZero() || c.End.IsZero() {
		return &ValidationError{Field: "dates", Msg: "start and end dates are required"}
	}
	if c.Start.After(c.End) {
		return &ValidationError{
			Field: "dates",
			Msg:   fmt.Sprintf("start %s is after end %s", c.Start.Format(domain.DateLayout), c.End.Format(domain.DateLayout)),
		}
	}
	if len(c.Tickers) == 0 {
		return &ValidationError{Field: "tickers", Msg: "at least one ticker is required"}
	}
	for i, t := range c.Tickers {
		if strings.TrimSpace(t) == "" {
			return &ValidationError{Field: "tickers", Msg: fmt.Sprintf("ticker %d is empty", i)}
		}
	}
	if c.Balance < 0 {
		return &ValidationError{Field: "balance", Msg: "must not be negative"}
	}
	if c.Commission < 0 {
		return &ValidationError{Field: "commission", Msg: "must not be negative"}
	}
	switch c.Frequency {
	case "", domain.FrequencyDaily, domain.FrequencyMinute:
	default:
		return &ValidationError{Field: "frequency", Msg: fmt.Sprintf("unknown frequency %q", c.Frequency)}
	}
	return nil
}

func (c Config) frequency() domain.Frequency {
	if c.Frequency == "" {
		return domain.FrequencyDaily
	}
	return c.Frequency
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// ValidationError reports a bad run configuration. No snapshot is processed
// when it is returned.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// StrategyError wraps an error returned or a panic raised by a strategy.
type StrategyError struct {
	Strategy string
	Ticker   string
	Date     string
	Err      error
	Panicked bool
}

func (e *StrategyError) Error() string {
	verb := "failed"
	if e.Panicked {
		verb = "panicked"
	}
	if e.Ticker == "" {
		return fmt.Sprintf("strategy %s %s: %v", e.Strategy, verb, e.Err)
	}
	return fmt.Sprintf("strategy %s %s on %s %s: %v", e.Strategy, verb, e.Ticker, e.Date, e.Err)
}

func (e *StrategyError) Unwrap() error { return e.Err }
