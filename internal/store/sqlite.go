package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"stockbt/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ ResultStore = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id             TEXT PRIMARY KEY,
    name           TEXT     NOT NULL,
    strategy       TEXT     NOT NULL DEFAULT '',
    status         TEXT     NOT NULL,
    message        TEXT     NOT NULL DEFAULT '',
    tickers        TEXT     NOT NULL DEFAULT '[]',
    start_date     TEXT     NOT NULL DEFAULT '',
    end_date       TEXT     NOT NULL DEFAULT '',
    balance        REAL     NOT NULL DEFAULT 0,
    commission     REAL     NOT NULL DEFAULT 0,
    num_processed  INTEGER  NOT NULL DEFAULT 0,
    result_created DATETIME,
    result_updated DATETIME,
    created_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS orders (
    run_id           TEXT    NOT NULL,
    seq              INTEGER NOT NULL,
    id               TEXT    NOT NULL,
    ticker           TEXT    NOT NULL,
    side             TEXT    NOT NULL,
    requested_shares INTEGER NOT NULL DEFAULT 0,
    shares           INTEGER NOT NULL DEFAULT 0,
    price            REAL    NOT NULL DEFAULT 0,
    commission       REAL    NOT NULL DEFAULT 0,
    prev_balance     REAL    NOT NULL DEFAULT 0,
    prev_shares      INTEGER NOT NULL DEFAULT 0,
    balance          REAL    NOT NULL DEFAULT 0,
    shares_owned     INTEGER NOT NULL DEFAULT 0,
    status           TEXT    NOT NULL,
    date             TEXT    NOT NULL DEFAULT '',
    reason           TEXT    NOT NULL DEFAULT '',
    details          TEXT,
    PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS positions (
    run_id       TEXT    NOT NULL,
    ticker       TEXT    NOT NULL,
    shares_owned INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (run_id, ticker)
);

CREATE TABLE IF NOT EXISTS history (
    run_id         TEXT    NOT NULL,
    seq            INTEGER NOT NULL,
    ticker         TEXT    NOT NULL,
    date           TEXT    NOT NULL,
    minute         TEXT    NOT NULL DEFAULT '',
    balance        REAL    NOT NULL DEFAULT 0,
    num_owned      INTEGER NOT NULL DEFAULT 0,
    buy_triggered  INTEGER NOT NULL DEFAULT 0,
    sell_triggered INTEGER NOT NULL DEFAULT 0,
    high           REAL    NOT NULL DEFAULT 0,
    low            REAL    NOT NULL DEFAULT 0,
    open           REAL    NOT NULL DEFAULT 0,
    close          REAL    NOT NULL DEFAULT 0,
    volume         REAL    NOT NULL DEFAULT 0,
    trade_status   TEXT    NOT NULL,
    algo_status    TEXT    NOT NULL,
    prev_balance   REAL    NOT NULL DEFAULT 0,
    prev_num_owned INTEGER NOT NULL DEFAULT 0,
    total_buys     INTEGER NOT NULL DEFAULT 0,
    total_sells    INTEGER NOT NULL DEFAULT 0,
    err            TEXT    NOT NULL DEFAULT '',
    PRIMARY KEY (run_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_orders_run   ON orders(run_id, ticker);
`

// SQLiteStore implements ResultStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema and returns a ready-to-use SQLiteStore. ":memory:" is accepted.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store.NewSQLiteStore: open %q: %w", dbPath, err)
	}
	// SQLite is single-writer; one connection also keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store.NewSQLiteStore: apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// ResultStore implementation
// ---------------------------------------------------------------------------

// SaveRun writes the run and all of its children in one transaction,
// replacing any previous run with the same ID.
func (s *SQLiteStore) SaveRun(ctx context.Context, run domain.RunRecord) error {
	if run.ID == "" {
		return fmt.Errorf("store.SaveRun: empty run id")
	}
	res := run.Report.Result

	tickers, err := json.Marshal(run.Tickers)
	if err != nil {
		return fmt.Errorf("store.SaveRun: encode tickers: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store.SaveRun: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"history", "positions", "orders", "runs"} {
		col := "run_id"
		if table == "runs" {
			col = "id"
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE `+col+` = ?`, run.ID); err != nil {
			return fmt.Errorf("store.SaveRun: clear %s: %w", table, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs
			(id, name, strategy, status, message, tickers, start_date, end_date,
			 balance, commission, num_processed, result_created, result_updated, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, res.Name, run.Strategy, string(run.Report.Status), run.Report.Message, string(tickers),
		run.Start, run.End, res.Balance, res.Commission, res.NumProcessed,
		nullTime(res.Created), nullTime(res.Updated), run.CreatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("store.SaveRun: insert run: %w", err)
	}

	if err := insertOrders(ctx, tx, run.ID, res); err != nil {
		return err
	}
	if err := insertPositions(ctx, tx, run.ID, res.Positions); err != nil {
		return err
	}
	if err := insertHistory(ctx, tx, run.ID, res.History); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store.SaveRun: commit: %w", err)
	}
	return nil
}

func insertOrders(ctx context.Context, tx *sql.Tx, runID string, res domain.Result) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO orders
			(run_id, seq, id, ticker, side, requested_shares, shares, price, commission,
			 prev_balance, prev_shares, balance, shares_owned, status, date, reason, details)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store.SaveRun: prepare orders: %w", err)
	}
	defer stmt.Close()

	seq := 0
	for _, list := range [][]domain.Order{res.Buys, res.Sells} {
		for _, o := range list {
			var details *string
			if len(o.Details) > 0 {
				b, err := json.Marshal(o.Details)
				if err != nil {
					return fmt.Errorf("store.SaveRun: encode order details: %w", err)
				}
				d := string(b)
				details = &d
			}
			if _, err := stmt.ExecContext(ctx,
				runID, seq, o.ID, o.Ticker, string(o.Side), o.RequestedShares, o.Shares, o.Price,
				o.Commission, o.PrevBalance, o.PrevShares, o.ResultingBalance, o.ResultingShares,
				string(o.Status), o.Timestamp, o.Reason, details,
			); err != nil {
				return fmt.Errorf("store.SaveRun: insert order %s: %w", o.ID, err)
			}
			seq++
		}
	}
	return nil
}

func insertPositions(ctx context.Context, tx *sql.Tx, runID string, positions map[string]domain.Position) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO positions (run_id, ticker, shares_owned) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store.SaveRun: prepare positions: %w", err)
	}
	defer stmt.Close()

	for ticker, p := range positions {
		if _, err := stmt.ExecContext(ctx, runID, ticker, p.SharesOwned); err != nil {
			return fmt.Errorf("store.SaveRun: insert position %s: %w", ticker, err)
		}
	}
	return nil
}

func insertHistory(ctx context.Context, tx *sql.Tx, runID string, history []domain.HistoryEntry) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO history
			(run_id, seq, ticker, date, minute, balance, num_owned, buy_triggered, sell_triggered,
			 high, low, open, close, volume, trade_status, algo_status, prev_balance,
			 prev_num_owned, total_buys, total_sells, err)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store.SaveRun: prepare history: %w", err)
	}
	defer stmt.Close()

	for i, h := range history {
		if _, err := stmt.ExecContext(ctx,
			runID, i, h.Ticker, h.Date, h.Minute, h.Balance, h.SharesOwned,
			boolToInt(h.BuyTriggered), boolToInt(h.SellTriggered),
			h.High, h.Low, h.Open, h.Close, h.Volume,
			string(h.TradeStatus), string(h.AlgoStatus), h.PrevBalance, h.PrevShares,
			h.CumulativeBuys, h.CumulativeSells, h.Err,
		); err != nil {
			return fmt.Errorf("store.SaveRun: insert history %d: %w", i, err)
		}
	}
	return nil
}

// GetRun reconstructs a stored run, including the per-position audit trail.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (domain.RunRecord, error) {
	var (
		run     domain.RunRecord
		status  string
		tickers string
		created sql.NullTime
		updated sql.NullTime
	)
	res := &run.Report.Result
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, strategy, status, message, tickers, start_date, end_date,
		       balance, commission, num_processed, result_created, result_updated, created_at
		FROM runs WHERE id = ?`, id,
	).Scan(&run.ID, &res.Name, &run.Strategy, &status, &run.Report.Message, &tickers,
		&run.Start, &run.End, &res.Balance, &res.Commission, &res.NumProcessed,
		&created, &updated, &run.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RunRecord{}, ErrNotFound
	}
	if err != nil {
		return domain.RunRecord{}, fmt.Errorf("store.GetRun: query run: %w", err)
	}
	run.Report.Status = domain.RunStatus(status)
	if created.Valid {
		res.Created = created.Time
	}
	if updated.Valid {
		res.Updated = updated.Time
	}
	if err := json.Unmarshal([]byte(tickers), &run.Tickers); err != nil {
		return domain.RunRecord{}, fmt.Errorf("store.GetRun: decode tickers: %w", err)
	}

	if err := s.loadPositions(ctx, id, res); err != nil {
		return domain.RunRecord{}, err
	}
	if err := s.loadOrders(ctx, id, res); err != nil {
		return domain.RunRecord{}, err
	}
	if err := s.loadHistory(ctx, id, res); err != nil {
		return domain.RunRecord{}, err
	}
	return run, nil
}

func (s *SQLiteStore) loadPositions(ctx context.Context, runID string, res *domain.Result) error {
	rows, err := s.db.QueryContext(ctx, `SELECT ticker, shares_owned FROM positions WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("store.GetRun: query positions: %w", err)
	}
	defer rows.Close()

	res.Positions = make(map[string]domain.Position)
	for rows.Next() {
		var p domain.Position
		if err := rows.Scan(&p.Ticker, &p.SharesOwned); err != nil {
			return fmt.Errorf("store.GetRun: scan position: %w", err)
		}
		res.Positions[p.Ticker] = p
	}
	return rows.Err()
}

func (s *SQLiteStore) loadOrders(ctx context.Context, runID string, res *domain.Result) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ticker, side, requested_shares, shares, price, commission, prev_balance,
		       prev_shares, balance, shares_owned, status, date, reason, details
		FROM orders WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return fmt.Errorf("store.GetRun: query orders: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			o       domain.Order
			side    string
			status  string
			details sql.NullString
		)
		if err := rows.Scan(&o.ID, &o.Ticker, &side, &o.RequestedShares, &o.Shares, &o.Price,
			&o.Commission, &o.PrevBalance, &o.PrevShares, &o.ResultingBalance, &o.ResultingShares,
			&status, &o.Timestamp, &o.Reason, &details); err != nil {
			return fmt.Errorf("store.GetRun: scan order: %w", err)
		}
		o.Side = domain.OrderSide(side)
		o.Status = domain.OrderStatus(status)
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &o.Details); err != nil {
				return fmt.Errorf("store.GetRun: decode order details: %w", err)
			}
		}

		p := res.Positions[o.Ticker]
		p.Ticker = o.Ticker
		if o.Side == domain.OrderSideBuy {
			res.Buys = append(res.Buys, o)
			p.Buys = append(p.Buys, o)
		} else {
			res.Sells = append(res.Sells, o)
			p.Sells = append(p.Sells, o)
		}
		res.Positions[o.Ticker] = p
	}
	return rows.Err()
}

func (s *SQLiteStore) loadHistory(ctx context.Context, runID string, res *domain.Result) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ticker, date, minute, balance, num_owned, buy_triggered, sell_triggered,
		       high, low, open, close, volume, trade_status, algo_status, prev_balance,
		       prev_num_owned, total_buys, total_sells, err
		FROM history WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return fmt.Errorf("store.GetRun: query history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			h                 domain.HistoryEntry
			buyTrig, sellTrig int
			trade, algo       string
		)
		if err := rows.Scan(&h.Ticker, &h.Date, &h.Minute, &h.Balance, &h.SharesOwned,
			&buyTrig, &sellTrig, &h.High, &h.Low, &h.Open, &h.Close, &h.Volume,
			&trade, &algo, &h.PrevBalance, &h.PrevShares, &h.CumulativeBuys,
			&h.CumulativeSells, &h.Err); err != nil {
			return fmt.Errorf("store.GetRun: scan history: %w", err)
		}
		h.BuyTriggered = buyTrig != 0
		h.SellTriggered = sellTrig != 0
		h.TradeStatus = domain.TradeStatus(trade)
		h.AlgoStatus = domain.TradeStatus(algo)
		res.History = append(res.History, h)
	}
	return rows.Err()
}

// ListRuns returns up to limit run summaries, newest first. A limit <= 0
// returns every run.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, strategy, status, num_processed, balance, created_at
		FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store.ListRuns: query: %w", err)
	}
	defer rows.Close()

	var out []domain.RunSummary
	for rows.Next() {
		var (
			r      domain.RunSummary
			status string
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Strategy, &status, &r.NumProcessed, &r.Balance, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("store.ListRuns: scan: %w", err)
		}
		r.Status = domain.RunStatus(status)
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
