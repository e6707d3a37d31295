package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockbt/internal/api"
	"stockbt/internal/config"
	"stockbt/internal/domain"
	"stockbt/internal/strategy/builtins"
)

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		Storage: config.Storage{
			DataDir:    dir,
			SQLitePath: filepath.Join(dir, "db", "stockbt.db"),
			Market:     "us",
		},
		Feed: config.Feed{Source: "parquet"},
		Backtest: config.Backtest{
			Tickers:    []string{"SPY"},
			Frequency:  string(domain.FrequencyDaily),
			Balance:    10000,
			Commission: 6,
		},
	}
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	assert.Contains(t, reg.List(), builtins.SMACrossName)
	assert.Contains(t, reg.List(), "noop")
}

func TestNewFeedErrors(t *testing.T) {
	cfg := testConfig(t)

	cfg.Feed.Source = "ftp"
	_, err := NewFeed(cfg, nil)
	assert.Error(t, err)

	cfg.Feed.Source = "alpaca"
	_, err = NewFeed(cfg, nil)
	assert.ErrorContains(t, err, "api_key")

	cfg.Alpaca.APIKey, cfg.Alpaca.APISecret = "k", "s"
	_, err = NewFeed(cfg, nil)
	assert.NoError(t, err)
}

func TestAppRunsAgainstParquetBars(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Close()

	var bars []domain.Bar
	for i, d := range []string{"2019-02-14", "2019-02-15", "2019-02-18", "2019-02-19"} {
		ts, _ := time.Parse(domain.DateLayout, d)
		c := 280.0 + float64(i)
		bars = append(bars, domain.Bar{Symbol: "SPY", Timestamp: ts, Open: c, High: c, Low: c, Close: c, Volume: 1000})
	}
	require.NoError(t, a.Bars.WriteBars(context.Background(), bars))

	rec, err := a.Service.Run(context.Background(), api.RunRequest{Start: "2019-02-14", End: "2019-02-19"})
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusSuccess, rec.Report.Status)
	require.Len(t, rec.Report.Result.History, 4)
	assert.Equal(t, 283.0, rec.Report.Result.History[3].Close)

	hist, err := a.Bars.ReadHistory(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Len(t, hist, 4)
}
