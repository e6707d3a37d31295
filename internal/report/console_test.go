package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"stockbt/internal/domain"
)

func TestConsoleReport(t *testing.T) {
	buy := domain.Order{Ticker: "SPY", Side: domain.OrderSideBuy, Shares: 10, Price: 280, Status: domain.OrderStatusFilled}
	rep := domain.RunReport{
		Status: domain.RunStatusSuccess,
		Result: domain.Result{
			Name:         "spy-run",
			NumProcessed: 2,
			Balance:      7194,
			Buys:         []domain.Order{buy},
			Positions: map[string]domain.Position{
				"SPY": {Ticker: "SPY", SharesOwned: 10, Buys: []domain.Order{buy}},
			},
			History: []domain.HistoryEntry{
				{Ticker: "SPY", Date: "2019-02-14", Close: 280},
				{Ticker: "SPY", Date: "2019-02-15", Close: 281.5},
			},
		},
	}

	var buf bytes.Buffer
	NewConsole(&buf).Report(rep, 10000)
	out := buf.String()

	assert.Contains(t, out, "backtest spy-run: SUCCESS")
	assert.Contains(t, out, "7194.00")
	assert.Contains(t, out, "-2806.00")
	assert.Contains(t, out, "-28.06")
	assert.Contains(t, out, "SPY")
	assert.Contains(t, out, "281.50")
}

func TestConsoleReportMessageNoPositions(t *testing.T) {
	rep := domain.RunReport{
		Status:  domain.RunStatusEmpty,
		Message: "no snapshots in date range",
		Result:  domain.Result{Name: "empty"},
	}

	var buf bytes.Buffer
	NewConsole(&buf).Report(rep, 0)
	out := buf.String()

	assert.Contains(t, out, "EMPTY")
	assert.Contains(t, out, "no snapshots in date range")
	assert.NotContains(t, strings.ToUpper(out), "LAST CLOSE")
}

func TestConsoleRuns(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)

	c.Runs(nil)
	assert.Contains(t, buf.String(), "no stored backtests")

	buf.Reset()
	c.Runs([]domain.RunSummary{{
		ID:        "abc",
		Name:      "run-1",
		Strategy:  "sma-cross",
		Status:    domain.RunStatusErr,
		Balance:   9000,
		CreatedAt: time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC),
	}})
	out := buf.String()
	assert.Contains(t, out, "sma-cross")
	assert.Contains(t, out, "ERR")
	assert.Contains(t, out, "2024-03-01 12:30")
}
