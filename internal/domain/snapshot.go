package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Well-known dataset names carried inside a snapshot. Only daily and minute
// are read by the engine; the rest pass through to strategies untouched.
const (
	DatasetDaily      = "daily"
	DatasetMinute     = "minute"
	DatasetQuote      = "quote"
	DatasetStats      = "stats"
	DatasetPeers      = "peers"
	DatasetNews       = "news"
	DatasetFinancials = "financials"
	DatasetEarnings   = "earnings"
	DatasetDividends  = "dividends"
	DatasetCompany    = "company"
	DatasetCalls      = "calls"
	DatasetPuts       = "puts"
	DatasetPricing    = "pricing"
)

// Row is one record of a dataset table, keyed by column name.
type Row map[string]any

// Table is an ordered list of rows. Tables are ascending by time when they
// carry time series data.
type Table []Row

// LastBar reads the OHLCV columns of the last row. The second return value
// is false when the table is empty or the row carries no price columns.
func (t Table) LastBar() (OHLCV, bool) {
	if len(t) == 0 {
		return OHLCV{}, false
	}
	row := t[len(t)-1]
	var (
		bar   OHLCV
		found bool
	)
	for col, dst := range map[string]*float64{
		"high":   &bar.High,
		"low":    &bar.Low,
		"open":   &bar.Open,
		"close":  &bar.Close,
		"volume": &bar.Volume,
	} {
		v, ok := row[col]
		if !ok {
			continue
		}
		f, err := toFloat(v)
		if err != nil {
			continue
		}
		*dst = f
		found = true
	}
	return bar, found
}

// LastString returns the string form of column col in the last row.
func (t Table) LastString(col string) string {
	if len(t) == 0 {
		return ""
	}
	v, ok := t[len(t)-1][col]
	if !ok || v == nil {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case time.Time:
		return x.Format(MinuteLayout)
	default:
		return fmt.Sprint(x)
	}
}

// BarsToTable converts bars into a table with date, open, high, low, close
// and volume columns. The input order is preserved.
func BarsToTable(bars []Bar, layout string) Table {
	if len(bars) == 0 {
		return nil
	}
	t := make(Table, 0, len(bars))
	for _, b := range bars {
		t = append(t, Row{
			"date":   b.Timestamp.UTC().Format(layout),
			"open":   b.Open,
			"high":   b.High,
			"low":    b.Low,
			"close":  b.Close,
			"volume": float64(b.Volume),
			"vwap":   b.VWAP,
		})
	}
	return t
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case json.Number:
		return x.Float64()
	case string:
		return strconv.ParseFloat(x, 64)
	case nil:
		return 0, fmt.Errorf("nil value")
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", v)
	}
}

// ---------------------------------------------------------------------------
// Snapshot
// ---------------------------------------------------------------------------

// Snapshot is one ticker+date bundle of market-data tables fed to the engine
// for one replay step. A dataset is either present with at least one row or
// absent; there is no "present but empty" state.
type Snapshot struct {
	ID     string
	Ticker string
	Date   string
	Time   time.Time
	data   map[string]Table
}

// NewSnapshot builds a snapshot, dropping nil and empty tables.
func NewSnapshot(ticker string, date time.Time, data map[string]Table) Snapshot {
	s := Snapshot{
		ID:     SnapshotID(ticker, date),
		Ticker: ticker,
		Date:   date.Format(DateLayout),
		Time:   date,
		data:   make(map[string]Table, len(data)),
	}
	for name, t := range data {
		s.Set(name, t)
	}
	return s
}

// SnapshotID returns the node identifier for a ticker and date.
func SnapshotID(ticker string, date time.Time) string {
	return ticker + "_" + date.Format(DateLayout)
}

// Set stores a dataset, or removes it when t is empty.
func (s *Snapshot) Set(name string, t Table) {
	if s.data == nil {
		s.data = make(map[string]Table)
	}
	if len(t) == 0 {
		delete(s.data, name)
		return
	}
	s.data[name] = t
}

// Dataset returns the named table and whether it is present.
func (s Snapshot) Dataset(name string) (Table, bool) {
	t, ok := s.data[name]
	return t, ok
}

// Datasets returns the sorted names of all present datasets.
func (s Snapshot) Datasets() []string {
	names := make([]string, 0, len(s.data))
	for name := range s.data {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Latest returns the OHLCV of the last daily row, overridden by the last
// minute row when a minute table is present. The minute key is returned
// when it came from the minute table.
func (s Snapshot) Latest() (bar OHLCV, minute string, ok bool) {
	if t, present := s.Dataset(DatasetDaily); present {
		if b, found := t.LastBar(); found {
			bar, ok = b, true
		}
	}
	if t, present := s.Dataset(DatasetMinute); present {
		if b, found := t.LastBar(); found {
			bar, ok = b, true
			minute = t.LastString("date")
		}
	}
	return bar, minute, ok
}

// Node is the feed-level view of a snapshot as listed per ticker.
type Node struct {
	ID   string           `json:"id"`
	Date string           `json:"date"`
	Data map[string]Table `json:"data"`
}

// Node converts the snapshot into its feed node representation.
func (s Snapshot) Node() Node {
	data := make(map[string]Table, len(s.data))
	for k, v := range s.data {
		data[k] = v
	}
	return Node{ID: s.ID, Date: s.Date, Data: data}
}
