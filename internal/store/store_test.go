package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"stockbt/internal/domain"
)

func TestParquetStorePath(t *testing.T) {
	ps := NewParquetStore("/data")

	// Test barPath produces the expected layout.
	ts := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	bp := ps.barPath("AAPL", "us", ts)

	wantBarPath := filepath.Join("/data", "us", "daily", "AAPL", "2024.parquet")
	if bp != wantBarPath {
		t.Errorf("barPath mismatch:\n  got  %s\n  want %s", bp, wantBarPath)
	}
	if !strings.Contains(bp, "us") {
		t.Errorf("barPath should contain market segment 'us': %s", bp)
	}
	if !strings.Contains(bp, "AAPL") {
		t.Errorf("barPath should contain symbol 'AAPL': %s", bp)
	}
	if !strings.Contains(bp, "2024.parquet") {
		t.Errorf("barPath should contain year file '2024.parquet': %s", bp)
	}


	// Test minutePath produces the expected layout.
	mp := ps.minutePath("tsla", "us", ts)

	wantMinutePath := filepath.Join("/data", "us", "minute", "TSLA", "2024-06-15.parquet")
	if mp != wantMinutePath {
		t.Errorf("minutePath mismatch:\n  got  %s\n  want %s", mp, wantMinutePath)
	}

	wantHistoryPath := filepath.Join("/data", "results", "run-1", "history.parquet")
	if hp := ps.HistoryPath("run-1"); hp != wantHistoryPath {
		t.Errorf("HistoryPath mismatch:\n  got  %s\n  want %s", hp, wantHistoryPath)
	}
}

func TestParquetStoreWriteReadBars(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	bars := []domain.Bar{
		{
			Symbol:     "AAPL",
			Timestamp:  time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			Open:       185.0,
			High:       186.5,
			Low:        184.0,
			Close:      185.5,
			Volume:     50000000,
			TradeCount: 500000,
			VWAP:       185.25,
		},
		{
			Symbol:     "AAPL",
			Timestamp:  time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
			Open:       185.5,
			High:       187.0,
			Low:        185.0,
			Close:      186.0,
			Volume:     45000000,
			TradeCount: 450000,
			VWAP:       185.75,
		},
	}

	// Write bars.
	if err := ps.WriteBars(ctx, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	// Read them back.
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	got, err := ps.ReadBars(ctx, "AAPL", "us", start, end)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadBars returned %d bars, want 2", len(got))
	}
	if got[0].Close != 185.5 {
		t.Errorf("first bar Close = %v, want 185.5", got[0].Close)
	}
	if got[1].Close != 186.0 {
		t.Errorf("second bar Close = %v, want 186.0", got[1].Close)
	}
}

func TestParquetStoreMergeBars(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	// Write initial bar.
	bars1 := []domain.Bar{
		{
			Symbol:    "MSFT",
			Timestamp: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			Open:      400.0, High: 405.0, Low: 399.0, Close: 403.0,
			Volume: 30000000, TradeCount: 300000, VWAP: 402.0,
		},
	}
	if err := ps.WriteBars(ctx, bars1); err != nil {
		t.Fatalf("WriteBars (first): %v", err)
	}

	// Write another bar for same symbol+year - should merge, not overwrite.
	bars2 := []domain.Bar{
		{
			Symbol:    "MSFT",
			Timestamp: time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
			Open:      403.0, High: 410.0, Low: 402.0, Close: 408.0,
			Volume: 35000000, TradeCount: 350000, VWAP: 406.0,
		},
	}
	if err := ps.WriteBars(ctx, bars2); err != nil {
		t.Fatalf("WriteBars (second): %v", err)
	}

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	got, err := ps.ReadBars(ctx, "MSFT", "us", start, end)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadBars returned %d bars after merge, want 2", len(got))
	}
}

func TestParquetStoreListSymbols(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	// Write bars for two symbols.
	bars := []domain.Bar{
		{Symbol: "AAPL", Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Open: 185.0, High: 186.0, Low: 184.0, Close: 185.5, Volume: 50000000},
		{Symbol: "GOOGL", Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Open: 140.0, High: 141.0, Low: 139.0, Close: 140.5, Volume: 20000000},
	}
	if err := ps.WriteBars(ctx, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	symbols, err := ps.ListSymbols(ctx, "us")
	if err != nil {
		t.Fatalf("ListSymbols: %v", err)
	}
	if len(symbols) != 2 {
		t.Fatalf("ListSymbols returned %d symbols, want 2", len(symbols))
	}
	if symbols[0] != "AAPL" || symbols[1] != "GOOGL" {
		t.Errorf("ListSymbols = %v, want [AAPL GOOGL]", symbols)
	}
}

func TestParquetStoreReadBarsMissingYear(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	got, err := ps.ReadBars(context.Background(), "NOPE", "us",
		time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ReadBars returned %d bars, want 0", len(got))
	}
}

func TestParquetStoreMinuteBars(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	day := time.Date(2019, 2, 15, 0, 0, 0, 0, time.UTC)
	bars := []domain.Bar{
		{Symbol: "SPY", Timestamp: day.Add(14*time.Hour + 31*time.Minute), Open: 277.5, High: 277.8, Low: 277.4, Close: 277.7, Volume: 1200},
		{Symbol: "SPY", Timestamp: day.Add(14*time.Hour + 30*time.Minute), Open: 277.1, High: 277.6, Low: 277.0, Close: 277.5, Volume: 1500},
	}
	if err := ps.WriteMinuteBars(ctx, "us", bars); err != nil {
		t.Fatalf("WriteMinuteBars: %v", err)
	}

	got, err := ps.ReadMinuteBars(ctx, "SPY", "us", day)
	if err != nil {
		t.Fatalf("ReadMinuteBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadMinuteBars returned %d bars, want 2", len(got))
	}
	if !got[0].Timestamp.Before(got[1].Timestamp) {
		t.Errorf("minute bars not ascending: %v then %v", got[0].Timestamp, got[1].Timestamp)
	}
	if got[1].Close != 277.7 {
		t.Errorf("last minute Close = %v, want 277.7", got[1].Close)
	}

	none, err := ps.ReadMinuteBars(ctx, "SPY", "us", day.AddDate(0, 0, 1))
	if err != nil || len(none) != 0 {
		t.Errorf("ReadMinuteBars on missing day = %v, %v; want no bars and no error", none, err)
	}
}

func TestParquetStoreWriteReadHistory(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	history := []domain.HistoryEntry{
		{Ticker: "SPY", Date: "2019-02-14", Balance: 7194, SharesOwned: 10, BuyTriggered: true, Close: 280,
			TradeStatus: domain.TradeStatusNotProfitable, AlgoStatus: domain.TradeStatusNotProfitable, PrevBalance: 10000, CumulativeBuys: 1},
		{Ticker: "SPY", Date: "2019-02-15", Balance: 7194, SharesOwned: 10, Close: 281,
			TradeStatus: domain.TradeStatusProfitable, AlgoStatus: domain.TradeStatusNotProfitable, PrevBalance: 10000, CumulativeBuys: 1, Err: "boom"},
	}
	if err := ps.WriteHistory(ctx, "run-1", history); err != nil {
		t.Fatalf("WriteHistory: %v", err)
	}

	got, err := ps.ReadHistory(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadHistory: %v", err)
	}
	if len(got) != len(history) {
		t.Fatalf("ReadHistory returned %d entries, want %d", len(got), len(history))
	}
	for i := range history {
		if got[i] != history[i] {
			t.Errorf("entry %d mismatch:\n  got  %+v\n  want %+v", i, got[i], history[i])
		}
	}

	if _, err := ps.ReadHistory(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ReadHistory(missing) error = %v, want ErrNotFound", err)
	}
	if err := ps.WriteHistory(ctx, "", history); err == nil {
		t.Error("WriteHistory with empty run id should fail")
	}
}
