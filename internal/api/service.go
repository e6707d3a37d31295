// Package api exposes backtests over HTTP and gRPC. Runs are executed
// synchronously by a Service and persisted to a ResultStore.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"stockbt/internal/config"
	"stockbt/internal/domain"
	"stockbt/internal/engine"
	"stockbt/internal/feed"
	"stockbt/internal/store"
	"stockbt/internal/strategy"
)

// ErrInvalidRequest marks errors caused by the caller's parameters.
var ErrInvalidRequest = errors.New("invalid request")

// ErrNoStore is returned by Get and List when the service has no result store.
var ErrNoStore = errors.New("no result store configured")

// RunRequest describes one backtest. Empty or nil fields fall back to the
// service defaults.
type RunRequest struct {
	Name          string            `json:"name,omitempty"`
	Strategy      string            `json:"strategy,omitempty"`
	Params        map[string]string `json:"params,omitempty"`
	Tickers       []string          `json:"tickers,omitempty"`
	Start         string            `json:"start,omitempty"`
	End           string            `json:"end,omitempty"`
	Frequency     string            `json:"frequency,omitempty"`
	Balance       *float64          `json:"balance,omitempty"`
	Commission    *float64          `json:"commission,omitempty"`
	AutoFill      *bool             `json:"auto_fill,omitempty"`
	Live          *bool             `json:"live,omitempty"`
	DefaultShares *int              `json:"default_shares,omitempty"`
	RaiseOnErr    *bool             `json:"raise_on_err,omitempty"`
}

// merge overlays the request on the defaults.
func (r RunRequest) merge(b config.Backtest) config.Backtest {
	if r.Name != "" {
		b.Name = r.Name
	}
	if r.Strategy != "" {
		b.Strategy = r.Strategy
		b.Params = nil
	}
	if r.Params != nil {
		b.Params = r.Params
	}
	if len(r.Tickers) > 0 {
		b.Tickers = make([]string, 0, len(r.Tickers))
		for _, t := range r.Tickers {
			b.Tickers = append(b.Tickers, strings.ToUpper(strings.TrimSpace(t)))
		}
	}
	if r.Start != "" {
		b.Start = r.Start
	}
	if r.End != "" {
		b.End = r.End
	}
	if r.Frequency != "" {
		b.Frequency = r.Frequency
	}
	if r.Balance != nil {
		b.Balance = *r.Balance
	}
	if r.Commission != nil {
		b.Commission = *r.Commission
	}
	if r.AutoFill != nil {
		b.AutoFill = r.AutoFill
	}
	if r.Live != nil {
		b.Live = *r.Live
	}
	if r.DefaultShares != nil {
		b.DefaultShares = *r.DefaultShares
	}
	if r.RaiseOnErr != nil {
		b.RaiseOnErr = r.RaiseOnErr
	}
	return b
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithHistoryWriter exports the history of every run, e.g. to Parquet.
func WithHistoryWriter(w store.HistoryWriter) ServiceOption {
	return func(s *Service) { s.history = w }
}

// WithServiceClock overrides the clock used for CreatedAt.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithIDFunc overrides the run ID generator.
func WithIDFunc(f func() string) ServiceOption {
	return func(s *Service) { s.newID = f }
}

// Service runs backtests with the configured feed and strategy registry.
type Service struct {
	results  store.ResultStore
	history  store.HistoryWriter
	registry *strategy.Registry
	feed     feed.Feed
	defaults config.Backtest
	now      func() time.Time
	newID    func() string
	log      *slog.Logger
}

// NewService creates a Service. results may be nil, in which case runs are
// not persisted and Get/List return ErrNoStore.
func NewService(results store.ResultStore, registry *strategy.Registry, f feed.Feed, defaults config.Backtest, opts ...ServiceOption) *Service {
	s := &Service{
		results:  results,
		registry: registry,
		feed:     f,
		defaults: defaults,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
		log:      slog.Default().With("component", "api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Prepare merges req over defaults into a validated engine configuration
// and instantiates the requested strategy. Errors wrap ErrInvalidRequest.
func Prepare(registry *strategy.Registry, defaults config.Backtest, req RunRequest) (engine.Config, strategy.Strategy, error) {
	bt := req.merge(defaults)

	cfg, err := bt.EngineConfig()
	if err != nil {
		return engine.Config{}, nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if err := cfg.Validate(); err != nil {
		return engine.Config{}, nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	strat, err := registry.New(bt.Strategy, bt.Params)
	if err != nil {
		return engine.Config{}, nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return cfg, strat, nil
}

// Strategies lists the registered strategy names.
func (s *Service) Strategies() []string {
	return s.registry.List()
}

// Run executes a backtest and persists it. Parameter problems are returned
// as errors wrapping ErrInvalidRequest; a run that starts always yields a
// record, with failures reported in its status.
func (s *Service) Run(ctx context.Context, req RunRequest) (domain.RunRecord, error) {
	cfg, strat, err := Prepare(s.registry, s.defaults, req)
	if err != nil {
		return domain.RunRecord{}, err
	}

	id := s.newID()
	if cfg.Name == "" {
		cfg.Name = id
	}

	s.log.Info("running backtest", "id", id, "strategy", strat.Name(), "tickers", cfg.Tickers)
	rep := engine.Run(ctx, cfg, strat, s.feed)

	rec := domain.RunRecord{
		ID:        id,
		Strategy:  strat.Name(),
		Tickers:   cfg.Tickers,
		Start:     cfg.Start.Format(domain.DateLayout),
		End:       cfg.End.Format(domain.DateLayout),
		CreatedAt: s.now().UTC(),
		Report:    rep,
	}

	if s.results != nil {
		if err := s.results.SaveRun(ctx, rec); err != nil {
			return rec, fmt.Errorf("api.Run: save: %w", err)
		}
	}
	if s.history != nil && len(rep.Result.History) > 0 {
		if err := s.history.WriteHistory(ctx, id, rep.Result.History); err != nil {
			return rec, fmt.Errorf("api.Run: export history: %w", err)
		}
	}
	s.log.Info("backtest stored", "id", id, "status", rep.Status, "processed", rep.Result.NumProcessed)
	return rec, nil
}

// Get returns a stored run.
func (s *Service) Get(ctx context.Context, id string) (domain.RunRecord, error) {
	if s.results == nil {
		return domain.RunRecord{}, ErrNoStore
	}
	return s.results.GetRun(ctx, id)
}

// List returns the most recent stored runs.
func (s *Service) List(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	if s.results == nil {
		return nil, ErrNoStore
	}
	return s.results.ListRuns(ctx, limit)
}
