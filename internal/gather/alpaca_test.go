package gather

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockbt/internal/domain"
	"stockbt/internal/store"
)

type fakeMultiBars struct {
	mu    sync.Mutex
	calls []marketdata.GetBarsRequest
	syms  [][]string
	err   error
}

func (f *fakeMultiBars) GetMultiBars(symbols []string, req marketdata.GetBarsRequest) (map[string][]marketdata.Bar, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.syms = append(f.syms, append([]string(nil), symbols...))
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}

	out := make(map[string][]marketdata.Bar)
	for _, s := range symbols {
		if s == "EMPTY" {
			continue
		}
		step := 24 * time.Hour
		if req.TimeFrame == marketdata.OneMin {
			step = time.Minute
		}
		for ts := req.Start.Add(14*time.Hour + 30*time.Minute); ts.Before(req.End) && len(out[s]) < 3; ts = ts.Add(step) {
			out[s] = append(out[s], marketdata.Bar{Timestamp: ts, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 100})
		}
	}
	return out, nil
}

func day(s string) time.Time {
	t, _ := time.Parse(domain.DateLayout, s)
	return t
}

func TestBarGathererDaily(t *testing.T) {
	client := &fakeMultiBars{}
	ps := store.NewParquetStore(t.TempDir())

	g := NewBarGatherer(client, ps, BarGathererConfig{
		Tickers:   []string{"spy", "AAPL", " qqq ", "EMPTY"},
		Range:     DateRange{Start: day("2019-02-14"), End: day("2019-02-16")},
		BatchSize: 2,
	}, nil)
	assert.Equal(t, "alpaca-daily", g.Name())

	stats, err := g.Gather(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Requests)
	assert.Equal(t, int64(9), stats.Bars)

	require.Len(t, client.calls, 2)
	assert.Equal(t, marketdata.OneDay, client.calls[0].TimeFrame)
	assert.Equal(t, marketdata.Feed("sip"), client.calls[0].Feed)

	var all []string
	for _, s := range client.syms {
		all = append(all, s...)
	}
	sort.Strings(all)
	assert.Equal(t, []string{"AAPL", "EMPTY", "QQQ", "SPY"}, all)

	bars, err := ps.ReadBars(context.Background(), "SPY", "us", day("2019-02-14"), day("2019-02-17"))
	require.NoError(t, err)
	assert.Len(t, bars, 3)
}

func TestBarGathererMinuteSkipsWeekends(t *testing.T) {
	client := &fakeMultiBars{}
	ps := store.NewParquetStore(t.TempDir())

	g := NewBarGatherer(client, ps, BarGathererConfig{
		Tickers:   []string{"SPY"},
		Range:     DateRange{Start: day("2019-02-15"), End: day("2019-02-18")},
		Frequency: domain.FrequencyMinute,
	}, nil)

	stats, err := g.Gather(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Requests, "Friday and Monday only")

	bars, err := ps.ReadMinuteBars(context.Background(), "SPY", "us", day("2019-02-18"))
	require.NoError(t, err)
	assert.Len(t, bars, 3)
}

func TestBarGathererErrors(t *testing.T) {
	ps := store.NewParquetStore(t.TempDir())

	_, err := NewBarGatherer(&fakeMultiBars{}, ps, BarGathererConfig{}, nil).Gather(context.Background())
	assert.Error(t, err)

	_, err = NewBarGatherer(&fakeMultiBars{}, ps, BarGathererConfig{
		Tickers: []string{"SPY"},
		Range:   DateRange{Start: day("2019-02-18"), End: day("2019-02-14")},
	}, nil).Gather(context.Background())
	assert.Error(t, err)

	boom := errors.New("rate limited")
	err = NewBarGatherer(&fakeMultiBars{err: boom}, ps, BarGathererConfig{
		Tickers: []string{"SPY"},
		Range:   DateRange{Start: day("2019-02-14"), End: day("2019-02-14")},
	}, nil).Run(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestDateRangeDays(t *testing.T) {
	days := DateRange{Start: day("2019-02-14"), End: day("2019-02-16")}.Days()
	require.Len(t, days, 3)
	assert.Equal(t, "2019-02-16", days[2].Format(domain.DateLayout))
}
