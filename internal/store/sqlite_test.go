package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockbt/internal/domain"
)

func sampleRun(id string, created time.Time) domain.RunRecord {
	buy := domain.Order{
		ID: id + "-b1", Ticker: "SPY", Side: domain.OrderSideBuy, Shares: 10, Price: 280, Commission: 3,
		PrevBalance: 10000, ResultingBalance: 7194, ResultingShares: 10, Status: domain.OrderStatusFilled,
		Timestamp: "2019-02-14", Reason: "test",
	}
	rejected := domain.Order{
		ID: id + "-b2", Ticker: "AAPL", Side: domain.OrderSideBuy, Price: 0.05, Commission: 3,
		PrevBalance: 7194, ResultingBalance: 7194, Status: domain.OrderStatusNotEnoughFunds,
		Timestamp: "2019-02-15", Details: map[string]string{"rejected": "price=0.05"},
	}
	sell := domain.Order{
		ID: id + "-s1", Ticker: "SPY", Side: domain.OrderSideSell, Shares: 10, Price: 290, Commission: 3,
		PrevBalance: 7194, PrevShares: 10, ResultingBalance: 10097, ResultingShares: 0,
		Status: domain.OrderStatusFilled, Timestamp: "2019-02-15",
	}
	return domain.RunRecord{
		ID:        id,
		Strategy:  "noop",
		Tickers:   []string{"SPY", "AAPL"},
		Start:     "2019-02-14",
		End:       "2019-02-15",
		CreatedAt: created,
		Report: domain.RunReport{
			Status: domain.RunStatusSuccess,
			Result: domain.Result{
				Name:    "backtest " + id,
				Created: created,
				Updated: created.Add(time.Second),
				Positions: map[string]domain.Position{
					"SPY":  {Ticker: "SPY", SharesOwned: 0, Buys: []domain.Order{buy}, Sells: []domain.Order{sell}},
					"AAPL": {Ticker: "AAPL", Buys: []domain.Order{rejected}},
				},
				Buys:         []domain.Order{buy, rejected},
				Sells:        []domain.Order{sell},
				NumProcessed: 2,
				History: []domain.HistoryEntry{
					{Ticker: "SPY", Date: "2019-02-14", Balance: 7194, SharesOwned: 10, BuyTriggered: true,
						Close: 280, TradeStatus: domain.TradeStatusNotProfitable, AlgoStatus: domain.TradeStatusNotProfitable},
					{Ticker: "SPY", Date: "2019-02-15", Balance: 10097, SellTriggered: true,
						Close: 290, TradeStatus: domain.TradeStatusNoShares, AlgoStatus: domain.TradeStatusProfitable, Err: "x"},
				},
				Balance:    10097,
				Commission: 3,
			},
		},
	}
}

func TestSQLiteStoreOpen(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, store.Close())
	}()

	require.NoError(t, store.db.Ping())
}

func TestSQLiteStoreSaveAndGetRun(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	want := sampleRun("run-1", created)
	require.NoError(t, s.SaveRun(ctx, want))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)

	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Strategy, got.Strategy)
	assert.Equal(t, want.Tickers, got.Tickers)
	assert.Equal(t, want.Start, got.Start)
	assert.Equal(t, want.End, got.End)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, domain.RunStatusSuccess, got.Report.Status)

	res := got.Report.Result
	assert.Equal(t, "backtest run-1", res.Name)
	assert.True(t, created.Equal(res.Created))
	assert.Equal(t, 10097.0, res.Balance)
	assert.Equal(t, 2, res.NumProcessed)
	assert.Equal(t, want.Report.Result.Buys, res.Buys)
	assert.Equal(t, want.Report.Result.Sells, res.Sells)
	assert.Equal(t, want.Report.Result.History, res.History)
	assert.Equal(t, want.Report.Result.Positions, res.Positions)
}

func TestSQLiteStoreSaveRunReplaces(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	run := sampleRun("run-1", time.Now().UTC())
	require.NoError(t, s.SaveRun(ctx, run))

	run.Report.Status = domain.RunStatusErr
	run.Report.Message = "strategy failed"
	run.Report.Result.History = run.Report.Result.History[:1]
	require.NoError(t, s.SaveRun(ctx, run))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusErr, got.Report.Status)
	assert.Equal(t, "strategy failed", got.Report.Message)
	assert.Len(t, got.Report.Result.History, 1)
	assert.Len(t, got.Report.Result.Buys, 2)
}

func TestSQLiteStoreGetRunNotFound(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStoreListRuns(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, s.SaveRun(ctx, sampleRun(id, base.Add(time.Duration(i)*time.Hour))))
	}

	all, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "new", all[0].ID)
	assert.Equal(t, "old", all[2].ID)
	assert.Equal(t, domain.RunStatusSuccess, all[0].Status)
	assert.Equal(t, 2, all[0].NumProcessed)

	limited, err := s.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestSQLiteStoreSaveRunRequiresID(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	assert.Error(t, s.SaveRun(context.Background(), domain.RunRecord{}))
}
