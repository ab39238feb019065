package trademanager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"papertrade/db"
	"papertrade/model"
)

type fixedPrices map[string]float64

func (p fixedPrices) Price(symbol string) (float64, bool) {
	v, ok := p[symbol]
	return v, ok
}

func setup(t *testing.T, balance float64) (*TradeManager, *db.MemoryStore, string) {
	t.Helper()
	store := db.NewMemoryStore()
	u := model.User{ID: "u1", Name: "Trader", Email: "t@example.com", Balance: balance, CreatedAt: time.Now()}
	require.NoError(t, store.CreateUser(context.Background(), &u))
	return NewTradeManager(store, zap.NewNop()), store, u.ID
}

func TestBuyCreatesHolding(t *testing.T) {
	tm, store, uid := setup(t, 10000)
	ctx := context.Background()

	res, err := tm.Buy(ctx, uid, "aapl", "Apple Inc.", 10, 178.45)
	require.NoError(t, err)
	assert.Equal(t, 1784.5, res.TotalCost)
	assert.Equal(t, 8215.5, res.NewBalance)
	assert.Equal(t, "AAPL", res.Holding.Symbol)
	assert.Equal(t, 178.45, res.Holding.AveragePrice)

	u, err := store.UserByID(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, 8215.5, u.Balance)
}

func TestBuyAveragesExistingHolding(t *testing.T) {
	tm, _, uid := setup(t, 10000)
	ctx := context.Background()

	_, err := tm.Buy(ctx, uid, "TSLA", "Tesla", 10, 100)
	require.NoError(t, err)
	res, err := tm.Buy(ctx, uid, "TSLA", "Tesla", 10, 200)
	require.NoError(t, err)

	assert.Equal(t, 20.0, res.Holding.Shares)
	assert.Equal(t, 3000.0, res.Holding.TotalInvested)
	assert.Equal(t, 150.0, res.Holding.AveragePrice)
	assert.Equal(t, 7000.0, res.NewBalance)
}

func TestBuyRejections(t *testing.T) {
	tm, store, uid := setup(t, 100)
	ctx := context.Background()

	_, err := tm.Buy(ctx, uid, "AAPL", "Apple", 0, 10)
	assert.ErrorIs(t, err, ErrInvalidShares)
	_, err = tm.Buy(ctx, uid, "AAPL", "Apple", -1, 10)
	assert.ErrorIs(t, err, ErrInvalidShares)
	_, err = tm.Buy(ctx, uid, "AAPL", "Apple", 1, 0)
	assert.ErrorIs(t, err, ErrInvalidPrice)
	_, err = tm.Buy(ctx, uid, "AAPL", "Apple", 1, 100.01)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	u, err := store.UserByID(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, 100.0, u.Balance, "rejected trades leave the balance alone")

	holdings, err := store.Holdings(ctx, uid)
	require.NoError(t, err)
	assert.Empty(t, holdings)

	_, err = tm.Buy(ctx, "nobody", "AAPL", "Apple", 1, 1)
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestSellPartialAndFull(t *testing.T) {
	tm, store, uid := setup(t, 10000)
	ctx := context.Background()

	_, err := tm.Buy(ctx, uid, "NVDA", "NVIDIA", 10, 100)
	require.NoError(t, err)

	res, err := tm.Sell(ctx, uid, "NVDA", 4, 120)
	require.NoError(t, err)
	assert.Equal(t, 480.0, res.Revenue)
	assert.Equal(t, 9480.0, res.NewBalance)
	require.NotNil(t, res.Holding)
	assert.Equal(t, 6.0, res.Holding.Shares)
	assert.Equal(t, 600.0, res.Holding.TotalInvested)

	res, err = tm.Sell(ctx, uid, "nvda", 6, 110)
	require.NoError(t, err)
	assert.Nil(t, res.Holding)
	assert.Equal(t, 10140.0, res.NewBalance)

	_, err = store.Holding(ctx, uid, "NVDA")
	assert.ErrorIs(t, err, db.ErrNotFound, "a holding at zero shares is removed")
}

func TestSellRejections(t *testing.T) {
	tm, _, uid := setup(t, 10000)
	ctx := context.Background()

	_, err := tm.Sell(ctx, uid, "META", 1, 100)
	assert.ErrorIs(t, err, ErrNotHeld)

	_, err = tm.Buy(ctx, uid, "META", "Meta", 2, 100)
	require.NoError(t, err)
	_, err = tm.Sell(ctx, uid, "META", 3, 100)
	assert.ErrorIs(t, err, ErrInsufficientShares)
	_, err = tm.Sell(ctx, uid, "META", 0, 100)
	assert.ErrorIs(t, err, ErrInvalidShares)
}

func TestSummary(t *testing.T) {
	tm, _, uid := setup(t, 10000)
	ctx := context.Background()

	_, err := tm.Buy(ctx, uid, "AAPL", "Apple", 10, 100)
	require.NoError(t, err)
	_, err = tm.Buy(ctx, uid, "XYZ", "Delisted", 5, 20)
	require.NoError(t, err)

	sum, err := tm.Summary(ctx, uid, fixedPrices{"AAPL": 110})
	require.NoError(t, err)
	require.Len(t, sum.Holdings, 2)

	bySymbol := map[string]HoldingValue{}
	for _, h := range sum.Holdings {
		bySymbol[h.Symbol] = h
	}
	assert.Equal(t, 1100.0, bySymbol["AAPL"].CurrentValue)
	assert.Equal(t, 100.0, bySymbol["AAPL"].ProfitLoss)
	assert.Equal(t, 10.0, bySymbol["AAPL"].ProfitLossPercent)
	assert.Equal(t, 20.0, bySymbol["XYZ"].CurrentPrice, "unknown symbols fall back to the average price")

	assert.Equal(t, Totals{
		TotalValue:             "1200.00",
		TotalInvested:          "1100.00",
		TotalProfitLoss:        "100.00",
		TotalProfitLossPercent: "9.09",
		Cash:                   "8900.00",
		AccountValue:           "10100.00",
	}, sum.Summary)
}

func TestSummaryEmpty(t *testing.T) {
	tm, _, uid := setup(t, 500)
	sum, err := tm.Summary(context.Background(), uid, fixedPrices{})
	require.NoError(t, err)
	assert.NotNil(t, sum.Holdings)
	assert.Empty(t, sum.Holdings)
	assert.Equal(t, "0.00", sum.Summary.TotalProfitLossPercent)
	assert.Equal(t, "500.00", sum.Summary.AccountValue)
}
