// Package report renders backtest outcomes as terminal tables.
package report

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/olekukonko/tablewriter"

	"stockbt/internal/domain"
)

// Console writes run reports to a terminal.
type Console struct {
	out io.Writer
}

// NewConsole returns a Console writing to w, or stdout when w is nil.
func NewConsole(w io.Writer) *Console {
	if w == nil {
		w = os.Stdout
	}
	return &Console{out: w}
}

// Report prints the summary table of rep followed by one row per position.
// startBalance is the configured initial cash, used for the P/L line.
func (c *Console) Report(rep domain.RunReport, startBalance float64) {
	res := rep.Result
	fmt.Fprintf(c.out, "backtest %s: %s\n", res.Name, rep.Status)
	if rep.Message != "" {
		fmt.Fprintf(c.out, "  %s\n", rep.Message)
	}

	pnl := res.Balance - startBalance
	pct := 0.0
	if startBalance > 0 {
		pct = pnl / startBalance * 100
	}

	summary := tablewriter.NewWriter(c.out)
	summary.Header("Processed", "Start $", "Balance $", "P/L $", "P/L %", "Buys", "Sells", "Filled")
	summary.Append(
		fmt.Sprintf("%d", res.NumProcessed),
		fmt.Sprintf("%.2f", startBalance),
		fmt.Sprintf("%.2f", res.Balance),
		fmt.Sprintf("%+.2f", pnl),
		fmt.Sprintf("%+.2f", pct),
		fmt.Sprintf("%d", len(res.Buys)),
		fmt.Sprintf("%d", len(res.Sells)),
		fmt.Sprintf("%d", countFilled(res.Buys)+countFilled(res.Sells)),
	)
	summary.Render()

	if len(res.Positions) == 0 {
		return
	}

	tickers := make([]string, 0, len(res.Positions))
	for t := range res.Positions {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	positions := tablewriter.NewWriter(c.out)
	positions.Header("Ticker", "Shares", "Buys", "Sells", "Last Close")
	for _, t := range tickers {
		p := res.Positions[t]
		positions.Append(
			t,
			fmt.Sprintf("%d", p.SharesOwned),
			fmt.Sprintf("%d", len(p.Buys)),
			fmt.Sprintf("%d", len(p.Sells)),
			fmt.Sprintf("%.2f", lastClose(res.History, t)),
		)
	}
	positions.Render()
}

// Runs prints one row per stored run.
func (c *Console) Runs(runs []domain.RunSummary) {
	if len(runs) == 0 {
		fmt.Fprintln(c.out, "no stored backtests")
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("ID", "Name", "Strategy", "Status", "Processed", "Balance $", "Created")
	for _, r := range runs {
		table.Append(
			r.ID,
			r.Name,
			r.Strategy,
			string(r.Status),
			fmt.Sprintf("%d", r.NumProcessed),
			fmt.Sprintf("%.2f", r.Balance),
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	table.Render()
}

func countFilled(orders []domain.Order) int {
	n := 0
	for _, o := range orders {
		if o.Filled() {
			n++
		}
	}
	return n
}

func lastClose(history []domain.HistoryEntry, ticker string) float64 {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Ticker == ticker {
			return history[i].Close
		}
	}
	return 0
}
