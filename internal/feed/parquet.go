package feed

import (
	"context"
	"fmt"
	"time"

	"stockbt/internal/domain"
	"stockbt/internal/store"
)

// Compile-time interface check.
var _ Source = (*ParquetSource)(nil)

// BarReader is the subset of the Parquet store a ParquetSource reads.
type BarReader interface {
	store.BarStore
	store.MinuteBarStore
}

// ParquetSource serves daily or minute bars from the local Parquet store.
type ParquetSource struct {
	bars     BarReader
	dataset  string
	market   string
	lookback int
}

// NewParquetSource creates a source for dataset (daily or minute). For the
// daily dataset, lookback adds that many calendar days of earlier bars.
func NewParquetSource(bars BarReader, dataset, market string, lookback int) (*ParquetSource, error) {
	if dataset != domain.DatasetDaily && dataset != domain.DatasetMinute {
		return nil, fmt.Errorf("parquet source: unsupported dataset %q", dataset)
	}
	if market == "" {
		market = store.DefaultMarket
	}
	return &ParquetSource{bars: bars, dataset: dataset, market: market, lookback: max(lookback, 0)}, nil
}

// Dataset returns the dataset name.
func (p *ParquetSource) Dataset() string { return p.dataset }

// Fetch reads the bars for ticker on date. Minute bars are only served for
// the minute frequency.
func (p *ParquetSource) Fetch(ctx context.Context, ticker string, date time.Time, freq domain.Frequency) (domain.Table, error) {
	var (
		bars   []domain.Bar
		err    error
		layout = domain.DateLayout
	)
	switch p.dataset {
	case domain.DatasetMinute:
		if freq != domain.FrequencyMinute {
			return nil, ErrNoData
		}
		layout = domain.MinuteLayout
		bars, err = p.bars.ReadMinuteBars(ctx, ticker, p.market, date)
	default:
		start := date.AddDate(0, 0, -p.lookback)
		end := date.Add(24*time.Hour - time.Millisecond)
		bars, err = p.bars.ReadBars(ctx, ticker, p.market, start, end)
	}
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, ErrNoData
	}
	return domain.BarsToTable(bars, layout), nil
}
