package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"stockbt/internal/broker"
	"stockbt/internal/domain"
	"stockbt/internal/feed"
	"stockbt/internal/history"
	"stockbt/internal/strategy"
	"stockbt/internal/util"
)

// ErrAlreadyRun is returned when Run is called on a driver that has left
// the INIT state.
var ErrAlreadyRun = errors.New("engine: driver already ran")

// ErrNoPrice is wrapped in the StrategyError returned for an intent whose
// price, explicit or taken from the latest close, is not positive.
var ErrNoPrice = errors.New("order price must be positive")

// Option configures a Driver.
type Option func(*Driver)

// WithClock overrides the clock used for the result timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) { d.now = now }
}

// WithLogger sets the logger of the driver.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) { d.log = l }
}

// WithBrokerOptions passes options to the simulated broker.
func WithBrokerOptions(opts ...broker.Option) Option {
	return func(d *Driver) { d.brokerOpts = append(d.brokerOpts, opts...) }
}

// Driver runs one backtest. It owns its strategy, broker and history and is
// not safe for concurrent use; run independent backtests on separate
// drivers.
type Driver struct {
	cfg        Config
	name       string
	strat      strategy.Strategy
	feed       feed.Feed
	broker     *broker.SimulatorBroker
	brokerOpts []broker.Option
	now        func() time.Time
	log        *slog.Logger

	state     State
	err       error
	failures  []error
	history   []domain.HistoryEntry
	latest    map[string]domain.OHLCV
	algoStart map[string]float64
	created   time.Time
	updated   time.Time
}

// NewDriver creates a driver in the INIT state.
func NewDriver(cfg Config, strat strategy.Strategy, f feed.Feed, opts ...Option) *Driver {
	if strat == nil {
		strat = strategy.NoOp{}
	}
	cfg.Tickers = append([]string(nil), cfg.Tickers...)

	d := &Driver{
		cfg:       cfg,
		name:      cfg.Name,
		strat:     strat,
		feed:      f,
		now:       time.Now,
		state:     StateInit,
		latest:    make(map[string]domain.OHLCV),
		algoStart: make(map[string]float64),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.name == "" {
		d.name = defaultName(strat.Name(), cfg)
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	d.log = d.log.With("component", "engine", "run", d.name)
	d.broker = broker.NewSimulatorBroker(broker.SimulatorConfig{
		Balance:       cfg.Balance,
		Commission:    cfg.Commission,
		AutoFill:      cfg.AutoFill,
		Live:          cfg.Live,
		DefaultShares: cfg.DefaultShares,
	}, append([]broker.Option{broker.WithIDFunc(broker.SequentialIDs(d.name))}, d.brokerOpts...)...)
	return d
}

// defaultName derives the run name from the strategy, tickers and date range
// so that replays of the same configuration share it.
func defaultName(strat string, cfg Config) string {
	parts := []string{strat, strings.Join(cfg.Tickers, ",")}
	if !cfg.Start.IsZero() {
		parts = append(parts, cfg.Start.Format(domain.DateLayout))
	}
	if !cfg.End.IsZero() {
		parts = append(parts, cfg.End.Format(domain.DateLayout))
	}
	return strings.Join(parts, "-")
}

// State returns the current lifecycle state.
func (d *Driver) State() State { return d.state }

// Err returns the error that moved the driver to FAILED, if any.
func (d *Driver) Err() error { return d.err }

// Failures returns the strategy errors recorded with ContinueOnErr set.
func (d *Driver) Failures() []error {
	return append([]error(nil), d.failures...)
}

// Run replays every (ticker, date) pair. On failure the driver is FAILED,
// the error is returned and the history accumulated so far is kept.
func (d *Driver) Run(ctx context.Context) error {
	if d.state != StateInit {
		return ErrAlreadyRun
	}
	d.created = d.now()
	d.updated = d.created

	if err := d.cfg.Validate(); err != nil {
		return d.fail(err)
	}
	if d.feed == nil {
		return d.fail(&ValidationError{Field: "feed", Msg: "a market data feed is required"})
	}
	if err := d.initStrategy(ctx); err != nil {
		return d.fail(err)
	}

	d.state = StateIterating
	freq := d.cfg.frequency()
	dates := util.TradingDates(d.cfg.Start, d.cfg.End, freq)
	d.log.Info("backtest started",
		"strategy", d.strat.Name(),
		"tickers", d.cfg.Tickers,
		"start", d.cfg.Start.Format(domain.DateLayout),
		"end", d.cfg.End.Format(domain.DateLayout),
		"dates", len(dates),
	)

	for _, ticker := range d.cfg.Tickers {
		for _, date := range dates {
			if err := ctx.Err(); err != nil {
				return d.fail(fmt.Errorf("backtest cancelled: %w", err))
			}
			snap, err := d.feed.Snapshot(ctx, ticker, date, freq)
			if err != nil {
				return d.fail(fmt.Errorf("fetching snapshot %s: %w", domain.SnapshotID(ticker, date), err))
			}
			if err := d.step(ctx, snap); err != nil {
				return d.fail(err)
			}
			d.updated = d.now()
		}
	}

	d.state = StateDone
	d.log.Info("backtest finished",
		"processed", len(d.history),
		"balance", d.broker.Balance(),
		"failures", len(d.failures),
	)
	return nil
}

func (d *Driver) initStrategy(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &StrategyError{Strategy: d.strat.Name(), Err: fmt.Errorf("init: %v", r), Panicked: true}
		}
	}()
	if err := d.strat.Init(ctx); err != nil {
		return &StrategyError{Strategy: d.strat.Name(), Err: fmt.Errorf("init: %w", err)}
	}
	return nil
}

// step processes one snapshot and appends exactly one history entry unless
// the strategy fails and ContinueOnErr is unset.
func (d *Driver) step(ctx context.Context, snap domain.Snapshot) error {
	ticker := snap.Ticker
	bar, minute, ok := snap.Latest()
	if ok {
		d.latest[ticker] = bar
		if _, seen := d.algoStart[ticker]; !seen {
			d.algoStart[ticker] = bar.Close
		}
	}

	prevBalance := d.broker.Balance()
	prevShares := d.broker.Shares(ticker)
	buysBefore := d.broker.Ledger().NumBuys()
	sellsBefore := d.broker.Ledger().NumSells()

	intents, err := d.process(ctx, snap, minute)
	if err == nil {
		err = d.apply(ctx, snap, minute, intents)
	}
	if err != nil {
		if !d.cfg.ContinueOnErr {
			d.log.Error("strategy failed, aborting", "ticker", ticker, "date", snap.Date, "error", err)
			return err
		}
		d.log.Error("strategy failed, continuing", "ticker", ticker, "date", snap.Date, "error", err)
		d.failures = append(d.failures, err)
	}

	balance := d.broker.Balance()
	original := d.cfg.Balance
	entry := history.Build(history.Input{
		Ticker: ticker,
		Date:   snap.Date,
		Minute: minute,
		Bar:    d.latest[ticker],
		Ledger: history.Ledger{
			SharesOwned: d.broker.Shares(ticker),
			PrevBalance: prevBalance,
			PrevShares:  prevShares,
		},
		Balance:         &balance,
		OriginalBalance: &original,
		AlgoStartPrice:  d.algoStart[ticker],
		Counters: history.Counters{
			Buys:          d.broker.Ledger().NumBuys(),
			Sells:         d.broker.Ledger().NumSells(),
			BuyTriggered:  d.broker.Ledger().NumBuys() > buysBefore,
			SellTriggered: d.broker.Ledger().NumSells() > sellsBefore,
		},
	})
	if err != nil {
		if entry.Err == "" {
			entry.Err = err.Error()
		} else {
			entry.Err = err.Error() + "; " + entry.Err
		}
	}
	d.history = append(d.history, entry)

	d.log.Debug("snapshot processed",
		"ticker", ticker,
		"date", snap.Date,
		"close", entry.Close,
		"balance", entry.Balance,
		"shares", entry.SharesOwned,
		"trade_status", entry.TradeStatus,
	)
	return nil
}

func (d *Driver) process(ctx context.Context, snap domain.Snapshot, minute string) (intents []strategy.Intent, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &StrategyError{
				Strategy: d.strat.Name(),
				Ticker:   snap.Ticker,
				Date:     snap.Date,
				Err:      fmt.Errorf("%v", r),
				Panicked: true,
			}
		}
	}()

	view := strategy.View{
		ID:       snap.ID,
		Ticker:   snap.Ticker,
		Date:     snap.Date,
		Minute:   minute,
		Snapshot: snap,
		Latest:   d.latest[snap.Ticker],
		Balance:  d.broker.Balance(),
		Holdings: d.broker.Ledger().Holdings(),
		Book:     d.broker.Ledger(),
	}
	intents, err = d.strat.Process(ctx, view)
	if err != nil {
		return nil, &StrategyError{Strategy: d.strat.Name(), Ticker: snap.Ticker, Date: snap.Date, Err: err}
	}
	return intents, nil
}

func (d *Driver) apply(ctx context.Context, snap domain.Snapshot, minute string, intents []strategy.Intent) error {
	stamp := snap.Date
	if minute != "" {
		stamp = minute
	}
	for _, in := range intents {
		ticker := in.Ticker
		if ticker == "" {
			ticker = snap.Ticker
		}
		price := in.Price
		if price == 0 {
			price = d.latest[ticker].Close
		}
		if price <= 0 {
			return &StrategyError{
				Strategy: d.strat.Name(),
				Ticker:   snap.Ticker,
				Date:     snap.Date,
				Err:      fmt.Errorf("%s %s at %v: %w", in.Side, ticker, price, ErrNoPrice),
			}
		}
		o, err := d.broker.SubmitOrder(ctx, domain.OrderRequest{
			Ticker: ticker,
			Side:   in.Side,
			Shares: in.Shares,
			Price:  price,
			Date:   stamp,
			Reason: in.Reason,
		})
		if err != nil {
			return &StrategyError{Strategy: d.strat.Name(), Ticker: snap.Ticker, Date: snap.Date, Err: err}
		}
		d.log.Debug("order attempted",
			"ticker", o.Ticker,
			"side", o.Side,
			"shares", o.Shares,
			"price", o.Price,
			"status", o.Status,
		)
	}
	return nil
}

func (d *Driver) fail(err error) error {
	d.state = StateFailed
	d.err = err
	d.updated = d.now()
	d.log.Warn("backtest failed", "processed", len(d.history), "error", err)
	return err
}

// Result materializes the run. It may be called any number of times and in
// any state; it never mutates the driver.
func (d *Driver) Result() domain.Result {
	hist := make([]domain.HistoryEntry, len(d.history))
	copy(hist, d.history)
	return domain.Result{
		Name:         d.name,
		Created:      d.created,
		Updated:      d.updated,
		Positions:    d.broker.Ledger().Positions(),
		Buys:         d.broker.Ledger().Buys(),
		Sells:        d.broker.Ledger().Sells(),
		NumProcessed: len(hist),
		History:      hist,
		Balance:      d.broker.Balance(),
		Commission:   d.cfg.Commission,
	}
}
