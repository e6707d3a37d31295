package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"stockbt/internal/domain"
)

// Compile-time interface checks.
var _ BarStore = (*ParquetStore)(nil)
var _ MinuteBarStore = (*ParquetStore)(nil)
var _ HistoryWriter = (*ParquetStore)(nil)

// DefaultMarket is the market directory used by WriteBars.
const DefaultMarket = "us"

// ParquetStore implements BarStore, MinuteBarStore and HistoryWriter using
// Parquet files on disk.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema for daily and minute bar data.
type BarRecord struct {
	Symbol     string  `parquet:"symbol"`
	Timestamp  int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open       float64 `parquet:"open"`
	High       float64 `parquet:"high"`
	Low        float64 `parquet:"low"`
	Close      float64 `parquet:"close"`
	Volume     int64   `parquet:"volume"`
	TradeCount int64   `parquet:"trade_count"`
	VWAP       float64 `parquet:"vwap"`
}

// HistoryRecord is the Parquet schema for an exported history entry.
type HistoryRecord struct {
	RunID         string  `parquet:"run_id"`
	Seq           int64   `parquet:"seq"`
	Ticker        string  `parquet:"ticker"`
	Date          string  `parquet:"date"`
	Minute        string  `parquet:"minute,optional"`
	Balance       float64 `parquet:"balance"`
	NumOwned      int64   `parquet:"num_owned"`
	BuyTriggered  bool    `parquet:"buy_triggered"`
	SellTriggered bool    `parquet:"sell_triggered"`
	High          float64 `parquet:"high"`
	Low           float64 `parquet:"low"`
	Open          float64 `parquet:"open"`
	Close         float64 `parquet:"close"`
	Volume        float64 `parquet:"volume"`
	TradeStatus   string  `parquet:"trade_status"`
	AlgoStatus    string  `parquet:"algo_status"`
	PrevBalance   float64 `parquet:"prev_balance"`
	PrevNumOwned  int64   `parquet:"prev_num_owned"`
	TotalBuys     int64   `parquet:"total_buys"`
	TotalSells    int64   `parquet:"total_sells"`
	Err           string  `parquet:"err,optional"`
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// WriteBars writes bar data to Parquet files organized by symbol and year.
// Each symbol+year combination produces a separate file at:
//
//	<DataDir>/us/daily/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) WriteBars(_ context.Context, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	return s.WriteBarsForMarket(bars, DefaultMarket)
}

// WriteBarsForMarket writes bars to Parquet grouped by symbol and year under
// the given market directory.
func (s *ParquetStore) WriteBarsForMarket(bars []domain.Bar, market string) error {
	type key struct {
		symbol string
		year   int
	}
	groups := make(map[key][]BarRecord)
	for _, b := range bars {
		ts := b.Timestamp.UTC()
		k := key{symbol: strings.ToUpper(b.Symbol), year: ts.Year()}
		groups[k] = append(groups[k], toBarRecord(b))
	}

	for k, records := range groups {
		path := s.barPath(k.symbol, market, time.Date(k.year, 1, 1, 0, 0, 0, 0, time.UTC))
		if err := s.mergeInto(path, records); err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", k.symbol, k.year, err)
		}
	}
	return nil
}

// ReadBars reads bar data from Parquet files for the given symbol and time
// range. Missing year files are skipped.
func (s *ParquetStore) ReadBars(_ context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error) {
	var bars []domain.Bar
	for year := start.Year(); year <= end.Year(); year++ {
		path := s.barPath(symbol, market, time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC))

		records, err := readParquetFile[BarRecord](path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("reading bars for %s/%d: %w", symbol, year, err)
		}
		bars = appendInRange(bars, records, start, end)
	}
	return bars, nil
}

// ListSymbols lists all symbols that have bar data in the given market.
func (s *ParquetStore) ListSymbols(_ context.Context, market string) ([]string, error) {
	dir := filepath.Join(s.DataDir, market, "daily")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// ---------------------------------------------------------------------------
// MinuteBarStore implementation
// ---------------------------------------------------------------------------

// WriteMinuteBars writes minute bars to one Parquet file per symbol and day.
func (s *ParquetStore) WriteMinuteBars(_ context.Context, market string, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	type key struct {
		symbol string
		date   string // YYYY-MM-DD
	}
	groups := make(map[key][]BarRecord)
	for _, b := range bars {
		k := key{symbol: strings.ToUpper(b.Symbol), date: b.Timestamp.UTC().Format(domain.DateLayout)}
		groups[k] = append(groups[k], toBarRecord(b))
	}

	for k, records := range groups {
		day, _ := time.Parse(domain.DateLayout, k.date)
		if err := s.mergeInto(s.minutePath(k.symbol, market, day), records); err != nil {
			return fmt.Errorf("writing minute bars for %s/%s: %w", k.symbol, k.date, err)
		}
	}
	return nil
}

// ReadMinuteBars reads the minute bars of symbol on day. A missing file
// yields no bars and no error.
func (s *ParquetStore) ReadMinuteBars(_ context.Context, symbol, market string, day time.Time) ([]domain.Bar, error) {
	records, err := readParquetFile[BarRecord](s.minutePath(symbol, market, day))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading minute bars for %s/%s: %w", symbol, day.Format(domain.DateLayout), err)
	}
	bars := make([]domain.Bar, 0, len(records))
	for _, r := range records {
		bars = append(bars, fromBarRecord(r))
	}
	return bars, nil
}

// ---------------------------------------------------------------------------
// HistoryWriter implementation
// ---------------------------------------------------------------------------

// WriteHistory exports a run's history to
// <DataDir>/results/<runID>/history.parquet, replacing any previous export.
func (s *ParquetStore) WriteHistory(_ context.Context, runID string, history []domain.HistoryEntry) error {
	if runID == "" {
		return fmt.Errorf("writing history: empty run id")
	}
	records := make([]HistoryRecord, 0, len(history))
	for i, h := range history {
		records = append(records, HistoryRecord{
			RunID:         runID,
			Seq:           int64(i),
			Ticker:        h.Ticker,
			Date:          h.Date,
			Minute:        h.Minute,
			Balance:       h.Balance,
			NumOwned:      int64(h.SharesOwned),
			BuyTriggered:  h.BuyTriggered,
			SellTriggered: h.SellTriggered,
			High:          h.High,
			Low:           h.Low,
			Open:          h.Open,
			Close:         h.Close,
			Volume:        h.Volume,
			TradeStatus:   string(h.TradeStatus),
			AlgoStatus:    string(h.AlgoStatus),
			PrevBalance:   h.PrevBalance,
			PrevNumOwned:  int64(h.PrevShares),
			TotalBuys:     int64(h.CumulativeBuys),
			TotalSells:    int64(h.CumulativeSells),
			Err:           h.Err,
		})
	}
	if err := writeParquetFile(s.HistoryPath(runID), records); err != nil {
		return fmt.Errorf("writing history for run %s: %w", runID, err)
	}
	return nil
}

// ReadHistory loads an exported history in its original order.
func (s *ParquetStore) ReadHistory(_ context.Context, runID string) ([]domain.HistoryEntry, error) {
	records, err := readParquetFile[HistoryRecord](s.HistoryPath(runID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading history for run %s: %w", runID, err)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Seq < records[j].Seq })

	out := make([]domain.HistoryEntry, 0, len(records))
	for _, r := range records {
		out = append(out, domain.HistoryEntry{
			Ticker:          r.Ticker,
			Date:            r.Date,
			Minute:          r.Minute,
			Balance:         r.Balance,
			SharesOwned:     int(r.NumOwned),
			BuyTriggered:    r.BuyTriggered,
			SellTriggered:   r.SellTriggered,
			High:            r.High,
			Low:             r.Low,
			Open:            r.Open,
			Close:           r.Close,
			Volume:          r.Volume,
			TradeStatus:     domain.TradeStatus(r.TradeStatus),
			AlgoStatus:      domain.TradeStatus(r.AlgoStatus),
			PrevBalance:     r.PrevBalance,
			PrevShares:      int(r.PrevNumOwned),
			CumulativeBuys:  int(r.TotalBuys),
			CumulativeSells: int(r.TotalSells),
			Err:             r.Err,
		})
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// barPath returns the filesystem path for a bar Parquet file.
// Layout: <dataDir>/<market>/daily/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) barPath(symbol, market string, t time.Time) string {
	year := fmt.Sprintf("%d", t.Year())
	return filepath.Join(s.DataDir, market, "daily", strings.ToUpper(symbol), year+".parquet")
}

// minutePath returns the filesystem path for a minute bar Parquet file.
// Layout: <dataDir>/<market>/minute/<SYMBOL>/<YYYY-MM-DD>.parquet
func (s *ParquetStore) minutePath(symbol, market string, t time.Time) string {
	date := t.Format(domain.DateLayout)
	return filepath.Join(s.DataDir, market, "minute", strings.ToUpper(symbol), date+".parquet")
}

// HistoryPath returns the export location of a run's history.
func (s *ParquetStore) HistoryPath(runID string) string {
	return filepath.Join(s.DataDir, "results", runID, "history.parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *ParquetStore) mergeInto(path string, records []BarRecord) error {
	existing, err := readParquetFile[BarRecord](path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return writeParquetFile(path, mergeBarRecords(existing, records))
}

// mergeBarRecords deduplicates bar records by (symbol, timestamp), preferring
// new records over existing ones.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	type key struct {
		symbol string
		ts     int64
	}
	seen := make(map[key]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Symbol, r.Timestamp}] = r
	}
	for _, r := range incoming {
		seen[key{r.Symbol, r.Timestamp}] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}

func appendInRange(bars []domain.Bar, records []BarRecord, start, end time.Time) []domain.Bar {
	for _, r := range records {
		ts := time.UnixMilli(r.Timestamp).UTC()
		if ts.Before(start) || ts.After(end) {
			continue
		}
		bars = append(bars, fromBarRecord(r))
	}
	return bars
}

func toBarRecord(b domain.Bar) BarRecord {
	return BarRecord{
		Symbol:     strings.ToUpper(b.Symbol),
		Timestamp:  b.Timestamp.UnixMilli(),
		Open:       b.Open,
		High:       b.High,
		Low:        b.Low,
		Close:      b.Close,
		Volume:     b.Volume,
		TradeCount: b.TradeCount,
		VWAP:       b.VWAP,
	}
}

func fromBarRecord(r BarRecord) domain.Bar {
	return domain.Bar{
		Symbol:     r.Symbol,
		Timestamp:  time.UnixMilli(r.Timestamp).UTC(),
		Open:       r.Open,
		High:       r.High,
		Low:        r.Low,
		Close:      r.Close,
		Volume:     r.Volume,
		TradeCount: r.TradeCount,
		VWAP:       r.VWAP,
	}
}
