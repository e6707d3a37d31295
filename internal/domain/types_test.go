package domain

import (
	"testing"
	"time"
)

func TestTypesExist(t *testing.T) {
	order := Order{}
	if order.Status != "" {
		t.Error("expected empty Status for zero-value Order")
	}
	if order.Filled() {
		t.Error("zero-value Order should not be filled")
	}

	if OrderSideBuy != "buy" || OrderSideSell != "sell" {
		t.Error("OrderSide constants have unexpected values")
	}
	for _, s := range []OrderStatus{OrderStatusFilled, OrderStatusNotEnoughFunds, OrderStatusNoSharesToSell} {
		if !s.Valid() {
			t.Errorf("%q.Valid() = false, want true", s)
		}
	}
	if OrderStatus("PENDING").Valid() {
		t.Error(`"PENDING".Valid() = true, want false`)
	}
	if TradeStatusNoShares != TradeStatus(OrderStatusNoSharesToSell) {
		t.Errorf("TradeStatusNoShares = %q, want %q", TradeStatusNoShares, OrderStatusNoSharesToSell)
	}
}

func TestPositionClone(t *testing.T) {
	p := Position{
		Ticker:      "SPY",
		SharesOwned: 10,
		Buys:        []Order{{Ticker: "SPY", Side: OrderSideBuy, Status: OrderStatusFilled}},
	}
	c := p.Clone()
	c.Buys[0].Ticker = "QQQ"
	if p.Buys[0].Ticker != "SPY" {
		t.Errorf("Clone shares backing array with original: got %q", p.Buys[0].Ticker)
	}
	if c.Sells != nil {
		t.Errorf("Clone of nil Sells = %v, want nil", c.Sells)
	}
}

func TestSnapshotDropsEmptyTables(t *testing.T) {
	date := time.Date(2019, 2, 15, 0, 0, 0, 0, time.UTC)
	s := NewSnapshot("SPY", date, map[string]Table{
		DatasetDaily:  {{"close": 270.0}},
		DatasetMinute: {},
		DatasetNews:   nil,
	})

	if s.ID != "SPY_2019-02-15" {
		t.Errorf("ID = %q, want %q", s.ID, "SPY_2019-02-15")
	}
	if s.Date != "2019-02-15" {
		t.Errorf("Date = %q, want %q", s.Date, "2019-02-15")
	}
	if _, ok := s.Dataset(DatasetMinute); ok {
		t.Error("empty minute table should be absent")
	}
	if _, ok := s.Dataset(DatasetNews); ok {
		t.Error("nil news table should be absent")
	}
	if got := s.Datasets(); len(got) != 1 || got[0] != DatasetDaily {
		t.Errorf("Datasets() = %v, want [daily]", got)
	}
}

func TestSnapshotLatest(t *testing.T) {
	date := time.Date(2019, 2, 15, 0, 0, 0, 0, time.UTC)

	s := NewSnapshot("SPY", date, map[string]Table{
		DatasetDaily: {
			{"open": 1.0, "high": 2.0, "low": 0.5, "close": 1.5, "volume": 100},
			{"open": 269.0, "high": 272.5, "low": 268.1, "close": 270.2, "volume": int64(9000)},
		},
	})
	bar, minute, ok := s.Latest()
	if !ok {
		t.Fatal("Latest() ok = false, want true")
	}
	if minute != "" {
		t.Errorf("minute = %q, want empty", minute)
	}
	if bar.Close != 270.2 || bar.High != 272.5 || bar.Volume != 9000 {
		t.Errorf("Latest() = %+v, want last daily row", bar)
	}

	s.Set(DatasetMinute, Table{
		{"date": "2019-02-15 15:59:00", "open": 270.0, "high": 270.4, "low": 269.9, "close": "270.3", "volume": 1200.0},
	})
	bar, minute, ok = s.Latest()
	if !ok {
		t.Fatal("Latest() ok = false with minute data")
	}
	if minute != "2019-02-15 15:59:00" {
		t.Errorf("minute = %q, want %q", minute, "2019-02-15 15:59:00")
	}
	if bar.Close != 270.3 {
		t.Errorf("minute Close = %v, want 270.3", bar.Close)
	}
}

func TestSnapshotLatestAbsent(t *testing.T) {
	s := NewSnapshot("SPY", time.Date(2019, 2, 15, 0, 0, 0, 0, time.UTC), map[string]Table{
		DatasetNews: {{"headline": "x"}},
	})
	if _, _, ok := s.Latest(); ok {
		t.Error("Latest() ok = true without price tables")
	}
}

func TestBarsToTable(t *testing.T) {
	bars := []Bar{
		{Symbol: "AAPL", Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Open: 185, High: 186.5, Low: 184, Close: 185.5, Volume: 50000000},
		{Symbol: "AAPL", Timestamp: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), Open: 185.5, High: 187, Low: 185, Close: 186, Volume: 45000000},
	}
	tbl := BarsToTable(bars, DateLayout)
	if len(tbl) != 2 {
		t.Fatalf("len = %d, want 2", len(tbl))
	}
	last, ok := tbl.LastBar()
	if !ok {
		t.Fatal("LastBar ok = false")
	}
	if last.Close != 186 || last.Volume != 45000000 {
		t.Errorf("LastBar = %+v", last)
	}
	if got := tbl.LastString("date"); got != "2024-01-03" {
		t.Errorf("LastString(date) = %q, want 2024-01-03", got)
	}
	if BarsToTable(nil, DateLayout) != nil {
		t.Error("BarsToTable(nil) should be nil")
	}
}
