// Package store defines storage interfaces for persisting and retrieving
// market bars and backtest results, with Parquet and SQLite implementations.
package store

import (
	"context"
	"errors"
	"time"

	"stockbt/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// BarStore persists and retrieves daily OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars to storage.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol and market within [start, end].
	ReadBars(ctx context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in the given market.
	ListSymbols(ctx context.Context, market string) ([]string, error)
}

// MinuteBarStore persists and retrieves intraday minute bars.
type MinuteBarStore interface {
	// WriteMinuteBars persists minute bars for the given market.
	WriteMinuteBars(ctx context.Context, market string, bars []domain.Bar) error

	// ReadMinuteBars returns the minute bars of symbol on the given day.
	ReadMinuteBars(ctx context.Context, symbol, market string, day time.Time) ([]domain.Bar, error)
}

// HistoryWriter exports the trading history of a finished run.
type HistoryWriter interface {
	WriteHistory(ctx context.Context, runID string, history []domain.HistoryEntry) error
}

// ResultStore persists backtest runs.
type ResultStore interface {
	// SaveRun inserts or replaces a run with its orders, positions and history.
	SaveRun(ctx context.Context, run domain.RunRecord) error

	// GetRun loads a run by ID. It returns ErrNotFound when the ID is unknown.
	GetRun(ctx context.Context, id string) (domain.RunRecord, error)

	// ListRuns returns the most recent runs, newest first, up to limit.
	ListRuns(ctx context.Context, limit int) ([]domain.RunSummary, error)
}
