package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockbt/internal/domain"
)

func TestBuildBuyOrder_BacktestDefaultShares(t *testing.T) {
	o := BuildBuyOrder(BuyRequest{
		Ticker:     "SPY",
		Price:      280,
		Balance:    10000,
		Commission: 6,
		AutoFill:   true,
		Date:       "2019-02-15",
	})

	require.Equal(t, domain.OrderStatusFilled, o.Status)
	assert.Equal(t, 10, o.Shares)
	assert.Equal(t, 0, o.RequestedShares)
	assert.Equal(t, 10, o.ResultingShares)
	assert.Equal(t, 7194.00, o.ResultingBalance)
	assert.Equal(t, 10000.0, o.PrevBalance)
	assert.Equal(t, 0, o.PrevShares)
	assert.Equal(t, "2019-02-15", o.Timestamp)
	assert.Equal(t, domain.OrderSideBuy, o.Side)
}

func TestBuildBuyOrder_Rejections(t *testing.T) {
	tests := []struct {
		name string
		req  BuyRequest
	}{
		{
			name: "price at floor",
			req:  BuyRequest{Price: 0.10, Balance: 10000, Commission: 1, AutoFill: true},
		},
		{
			name: "tradable funds too small",
			req:  BuyRequest{Price: 0.50, Balance: 10000, Commission: 0, Shares: 2, AutoFill: true},
		},
		{
			name: "cost exceeds balance",
			req:  BuyRequest{Price: 280, Balance: 2805, Commission: 6, AutoFill: true},
		},
		{
			name: "live mode without funds",
			req:  BuyRequest{Price: 50, Balance: 20, Commission: 6, Live: true, AutoFill: true},
		},
		{
			name: "live mode cannot afford a single share",
			req:  BuyRequest{Price: 500, Balance: 400, Commission: 1, Live: true, AutoFill: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.Ticker = "SPY"
			tt.req.CurrentShares = 3
			o := BuildBuyOrder(tt.req)
			assert.Equal(t, domain.OrderStatusNotEnoughFunds, o.Status)
			assert.Equal(t, o.PrevShares, o.ResultingShares)
			assert.Equal(t, o.PrevBalance, o.ResultingBalance)
			assert.Equal(t, 3, o.ResultingShares)
			assert.NotEmpty(t, o.Details["rejected"])
		})
	}
}

func TestBuildBuyOrder_LiveUsesAvailableFunds(t *testing.T) {
	o := BuildBuyOrder(BuyRequest{
		Ticker:        "SPY",
		CurrentShares: 5,
		Price:         100,
		Balance:       1000,
		Commission:    5,
		Live:          true,
		AutoFill:      true,
	})

	// tradable = 1000 - 10 = 990 -> 9 shares, cost = 905
	require.Equal(t, domain.OrderStatusFilled, o.Status)
	assert.Equal(t, 9, o.Shares)
	assert.Equal(t, 14, o.ResultingShares)
	assert.Equal(t, 95.0, o.ResultingBalance)
}

func TestBuildBuyOrder_RequestedShares(t *testing.T) {
	o := BuildBuyOrder(BuyRequest{
		Ticker:        "SPY",
		Price:         12.34,
		Balance:       500,
		Commission:    1.5,
		Shares:        7,
		DefaultShares: 100,
		AutoFill:      true,
	})

	require.Equal(t, domain.OrderStatusFilled, o.Status)
	assert.Equal(t, 7, o.RequestedShares)
	assert.Equal(t, 7, o.Shares)
	assert.Equal(t, 412.12, o.ResultingBalance) // 500 - (86.38 + 1.5)
}

func TestBuildBuyOrder_CustomDefaultShares(t *testing.T) {
	o := BuildBuyOrder(BuyRequest{Price: 20, Balance: 1000, DefaultShares: 3, AutoFill: true})
	require.Equal(t, domain.OrderStatusFilled, o.Status)
	assert.Equal(t, 3, o.Shares)
	assert.Equal(t, 940.0, o.ResultingBalance)
}

func TestBuildBuyOrder_NoAutoFill(t *testing.T) {
	o := BuildBuyOrder(BuyRequest{
		Ticker:        "SPY",
		CurrentShares: 2,
		Price:         280,
		Balance:       10000,
		Commission:    6,
	})

	assert.Equal(t, domain.OrderStatusFilled, o.Status)
	assert.Equal(t, 10, o.Shares)
	assert.Equal(t, 2, o.ResultingShares)
	assert.Equal(t, 10000.0, o.ResultingBalance)
}

func TestBuildBuyOrder_FilledNeverNegative(t *testing.T) {
	for _, price := range []float64{0.11, 1, 3.33, 99.99, 280, 1999.5} {
		for _, balance := range []float64{0, 5, 100, 2806, 10000} {
			o := BuildBuyOrder(BuyRequest{Price: price, Balance: balance, Commission: 6, AutoFill: true})
			if o.Filled() {
				assert.GreaterOrEqual(t, o.ResultingBalance, 0.0, "price=%v balance=%v", price, balance)
				assert.Equal(t, o.PrevShares+o.Shares, o.ResultingShares)
			} else {
				assert.Equal(t, o.PrevBalance, o.ResultingBalance)
			}
		}
	}
}

func TestBuildSellOrder_NotEnoughFundsForCommission(t *testing.T) {
	o := BuildSellOrder(SellRequest{
		Ticker:        "SPY",
		CurrentShares: 13,
		Price:         280,
		Balance:       9,
		Commission:    11.5,
		AutoFill:      true,
	})

	assert.Equal(t, domain.OrderStatusNotEnoughFunds, o.Status)
	assert.Equal(t, 13, o.ResultingShares)
	assert.Equal(t, 9.0, o.ResultingBalance)
}

func TestBuildSellOrder_NoShares(t *testing.T) {
	for _, balance := range []float64{0, 9, 10000} {
		o := BuildSellOrder(SellRequest{
			Ticker:     "SPY",
			Price:      280,
			Balance:    balance,
			Commission: 6,
			Shares:     5,
			AutoFill:   true,
		})
		assert.Equal(t, domain.OrderStatusNoSharesToSell, o.Status)
		assert.Equal(t, 0, o.ResultingShares)
		assert.Equal(t, balance, o.ResultingBalance)
	}
}

func TestBuildSellOrder_Filled(t *testing.T) {
	tests := []struct {
		name         string
		current      int
		requested    int
		wantSellable int
		wantBalance  float64
	}{
		{name: "sell all when unset", current: 10, requested: 0, wantSellable: 10, wantBalance: 1000 + 10*50 + 6},
		{name: "partial", current: 10, requested: 4, wantSellable: 4, wantBalance: 1000 + 4*50 + 6},
		{name: "capped at owned", current: 3, requested: 40, wantSellable: 3, wantBalance: 1000 + 3*50 + 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := BuildSellOrder(SellRequest{
				Ticker:        "SPY",
				CurrentShares: tt.current,
				Price:         50,
				Balance:       1000,
				Commission:    6,
				Shares:        tt.requested,
				AutoFill:      true,
			})
			require.Equal(t, domain.OrderStatusFilled, o.Status)
			assert.Equal(t, tt.wantSellable, o.Shares)
			assert.LessOrEqual(t, o.Shares, o.PrevShares)
			assert.Equal(t, tt.current-tt.wantSellable, o.ResultingShares)
			assert.Equal(t, tt.wantBalance, o.ResultingBalance)
		})
	}
}

func TestBuildSellOrder_NoAutoFill(t *testing.T) {
	o := BuildSellOrder(SellRequest{CurrentShares: 4, Price: 50, Balance: 100, Commission: 1})
	assert.Equal(t, domain.OrderStatusFilled, o.Status)
	assert.Equal(t, 4, o.ResultingShares)
	assert.Equal(t, 100.0, o.ResultingBalance)
}

func TestMidPrice(t *testing.T) {
	assert.Equal(t, 10.5, MidPrice(10, 11))
	assert.Equal(t, 0.0, MidPrice(0, 0))
}
