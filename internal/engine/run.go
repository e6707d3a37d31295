package engine

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"stockbt/internal/domain"
	"stockbt/internal/feed"
	"stockbt/internal/strategy"
)

// Run executes one backtest and summarizes it. The result is populated even
// when the run failed.
func Run(ctx context.Context, cfg Config, strat strategy.Strategy, f feed.Feed, opts ...Option) domain.RunReport {
	d := NewDriver(cfg, strat, f, opts...)
	err := d.Run(ctx)
	return Report(d, err)
}

// Report builds the top-level outcome of a finished driver.
func Report(d *Driver, err error) domain.RunReport {
	res := d.Result()
	switch {
	case err != nil:
		return domain.RunReport{Status: domain.RunStatusErr, Message: err.Error(), Result: res}
	case len(d.failures) > 0:
		return domain.RunReport{
			Status:  domain.RunStatusErr,
			Message: fmt.Sprintf("%d snapshot(s) failed, first: %v", len(d.failures), d.failures[0]),
			Result:  res,
		}
	case res.NumProcessed == 0:
		return domain.RunReport{Status: domain.RunStatusEmpty, Message: "no snapshots in date range", Result: res}
	default:
		return domain.RunReport{Status: domain.RunStatusSuccess, Result: res}
	}
}

// Job is one independent backtest for RunAll.
type Job struct {
	Config   Config
	Strategy strategy.Strategy
	Feed     feed.Feed
	Options  []Option
}

// RunAll runs independent backtests concurrently, at most parallelism at a
// time (unbounded when parallelism <= 0). Reports are returned in job order.
// Each job must own its strategy instance.
func RunAll(ctx context.Context, jobs []Job, parallelism int) []domain.RunReport {
	reports := make([]domain.RunReport, len(jobs))

	var g errgroup.Group
	if parallelism > 0 {
		g.SetLimit(parallelism)
	}
	for i, job := range jobs {
		g.Go(func() error {
			reports[i] = Run(ctx, job.Config, job.Strategy, job.Feed, job.Options...)
			return nil
		})
	}
	_ = g.Wait()
	return reports
}
