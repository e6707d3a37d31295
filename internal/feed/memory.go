package feed

import (
	"context"
	"sync"
	"time"

	"stockbt/internal/domain"
)

// Compile-time interface check.
var _ Source = (*MemorySource)(nil)

// MemorySource serves a dataset from tables loaded in memory. It is safe
// for concurrent use.
type MemorySource struct {
	dataset string

	mu     sync.RWMutex
	tables map[string]domain.Table // ticker + "_" + date
}

// NewMemorySource creates an empty source for dataset.
func NewMemorySource(dataset string) *MemorySource {
	return &MemorySource{
		dataset: dataset,
		tables:  make(map[string]domain.Table),
	}
}

// Dataset returns the dataset name.
func (m *MemorySource) Dataset() string { return m.dataset }

// Put stores the table served for ticker on date ("2006-01-02").
func (m *MemorySource) Put(ticker, date string, t domain.Table) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[ticker+"_"+date] = t
}

// PutBars stores one single-row table per bar, keyed by the bar's date.
func (m *MemorySource) PutBars(ticker string, bars []domain.Bar) {
	for _, b := range bars {
		date := b.Timestamp.UTC().Format(domain.DateLayout)
		m.Put(ticker, date, domain.BarsToTable([]domain.Bar{b}, domain.DateLayout))
	}
}

// Fetch returns the stored table or ErrNoData.
func (m *MemorySource) Fetch(_ context.Context, ticker string, date time.Time, _ domain.Frequency) (domain.Table, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tables[domain.SnapshotID(ticker, date)]
	if !ok || len(t) == 0 {
		return nil, ErrNoData
	}
	return t, nil
}
