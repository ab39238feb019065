package trademanager

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"papertrade/db"
	"papertrade/model"
)

var (
	ErrInvalidShares       = errors.New("shares must be positive")
	ErrInvalidPrice        = errors.New("price must be positive")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInsufficientShares  = errors.New("insufficient shares")
	ErrNotHeld             = errors.New("stock not in portfolio")
)

// PriceSource resolves the current market price of a symbol.
type PriceSource interface {
	Price(symbol string) (float64, bool)
}

// TradeManager executes paper trades against a user's cash balance.
// Trades of one user are serialized; different users trade in parallel.
type TradeManager struct {
	store  db.Store
	logger *zap.Logger
	now    func() time.Time

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewTradeManager(store db.Store, logger *zap.Logger) *TradeManager {
	return &TradeManager{
		store:  store,
		logger: logger.Named("trades"),
		now:    func() time.Time { return time.Now().UTC() },
		locks:  make(map[string]*sync.Mutex),
	}
}

func (tm *TradeManager) lock(userID string) func() {
	tm.locksMu.Lock()
	l, ok := tm.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		tm.locks[userID] = l
	}
	tm.locksMu.Unlock()

	l.Lock()
	return l.Unlock
}

type BuyResult struct {
	Holding    model.Holding `json:"holding"`
	TotalCost  float64       `json:"totalCost"`
	NewBalance float64       `json:"newBalance"`
}

func (tm *TradeManager) Buy(ctx context.Context, userID, symbol, name string, shares, price float64) (BuyResult, error) {
	if shares <= 0 {
		return BuyResult{}, ErrInvalidShares
	}
	if price <= 0 {
		return BuyResult{}, ErrInvalidPrice
	}
	symbol = model.NormalizeSymbol(symbol)

	unlock := tm.lock(userID)
	defer unlock()

	user, err := tm.store.UserByID(ctx, userID)
	if err != nil {
		return BuyResult{}, err
	}

	qty := decimal.NewFromFloat(shares)
	cost := qty.Mul(decimal.NewFromFloat(price))
	balance := decimal.NewFromFloat(user.Balance)
	if balance.LessThan(cost) {
		return BuyResult{}, ErrInsufficientBalance
	}
	balance = balance.Sub(cost)

	holding, err := tm.store.Holding(ctx, userID, symbol)
	switch {
	case errors.Is(err, db.ErrNotFound):
		holding = model.Holding{
			ID:            uuid.NewString(),
			UserID:        userID,
			Symbol:        symbol,
			Name:          name,
			Shares:        shares,
			AveragePrice:  price,
			TotalInvested: cost.InexactFloat64(),
			PurchaseDate:  tm.now(),
		}
	case err != nil:
		return BuyResult{}, err
	default:
		total := decimal.NewFromFloat(holding.Shares).Add(qty)
		invested := decimal.NewFromFloat(holding.TotalInvested).Add(cost)
		holding.Shares = total.InexactFloat64()
		holding.TotalInvested = invested.InexactFloat64()
		holding.AveragePrice = invested.Div(total).Round(4).InexactFloat64()
	}

	if err := tm.store.CommitTrade(ctx, userID, balance.InexactFloat64(), holding, false); err != nil {
		return BuyResult{}, err
	}

	tm.logger.Info("Buy executed",
		zap.String("user", userID), zap.String("symbol", symbol),
		zap.Float64("shares", shares), zap.Float64("price", price))

	return BuyResult{
		Holding:    holding,
		TotalCost:  cost.InexactFloat64(),
		NewBalance: balance.InexactFloat64(),
	}, nil
}

type SellResult struct {
	Revenue    float64        `json:"revenue"`
	NewBalance float64        `json:"newBalance"`
	Holding    *model.Holding `json:"holding,omitempty"`
}

func (tm *TradeManager) Sell(ctx context.Context, userID, symbol string, shares, price float64) (SellResult, error) {
	if shares <= 0 {
		return SellResult{}, ErrInvalidShares
	}
	if price <= 0 {
		return SellResult{}, ErrInvalidPrice
	}
	symbol = model.NormalizeSymbol(symbol)

	unlock := tm.lock(userID)
	defer unlock()

	holding, err := tm.store.Holding(ctx, userID, symbol)
	if errors.Is(err, db.ErrNotFound) {
		return SellResult{}, ErrNotHeld
	}
	if err != nil {
		return SellResult{}, err
	}

	held := decimal.NewFromFloat(holding.Shares)
	qty := decimal.NewFromFloat(shares)
	if held.LessThan(qty) {
		return SellResult{}, ErrInsufficientShares
	}

	user, err := tm.store.UserByID(ctx, userID)
	if err != nil {
		return SellResult{}, err
	}

	revenue := qty.Mul(decimal.NewFromFloat(price))
	balance := decimal.NewFromFloat(user.Balance).Add(revenue)

	closed := held.Equal(qty)
	if !closed {
		invested := decimal.NewFromFloat(holding.TotalInvested)
		soldCost := invested.Div(held).Mul(qty)
		holding.Shares = held.Sub(qty).InexactFloat64()
		holding.TotalInvested = invested.Sub(soldCost).Round(4).InexactFloat64()
	}

	if err := tm.store.CommitTrade(ctx, userID, balance.InexactFloat64(), holding, closed); err != nil {
		return SellResult{}, err
	}

	tm.logger.Info("Sell executed",
		zap.String("user", userID), zap.String("symbol", symbol),
		zap.Float64("shares", shares), zap.Float64("price", price), zap.Bool("closed", closed))

	res := SellResult{Revenue: revenue.InexactFloat64(), NewBalance: balance.InexactFloat64()}
	if !closed {
		res.Holding = &holding
	}
	return res, nil
}

type HoldingValue struct {
	model.Holding
	CurrentPrice      float64 `json:"currentPrice"`
	CurrentValue      float64 `json:"currentValue"`
	ProfitLoss        float64 `json:"profitLoss"`
	ProfitLossPercent float64 `json:"profitLossPercent"`
}

// Totals are rendered with two decimals.
type Totals struct {
	TotalValue             string `json:"totalValue"`
	TotalInvested          string `json:"totalInvested"`
	TotalProfitLoss        string `json:"totalProfitLoss"`
	TotalProfitLossPercent string `json:"totalProfitLossPercent"`
	Cash                   string `json:"cash"`
	AccountValue           string `json:"accountValue"`
}

type Summary struct {
	Holdings []HoldingValue `json:"holdings"`
	Summary  Totals         `json:"summary"`
}

// Summary values every holding at the current market price, falling back to
// its average price for symbols the market does not list.
func (tm *TradeManager) Summary(ctx context.Context, userID string, prices PriceSource) (Summary, error) {
	user, err := tm.store.UserByID(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	holdings, err := tm.store.Holdings(ctx, userID)
	if err != nil {
		return Summary{}, err
	}

	totalValue := decimal.Zero
	totalInvested := decimal.Zero
	out := make([]HoldingValue, 0, len(holdings))

	for _, h := range holdings {
		price, ok := prices.Price(h.Symbol)
		if !ok {
			price = h.AveragePrice
		}
		value := decimal.NewFromFloat(h.Shares).Mul(decimal.NewFromFloat(price))
		invested := decimal.NewFromFloat(h.TotalInvested)
		pl := value.Sub(invested)

		out = append(out, HoldingValue{
			Holding:           h,
			CurrentPrice:      price,
			CurrentValue:      value.InexactFloat64(),
			ProfitLoss:        pl.InexactFloat64(),
			ProfitLossPercent: percent(pl, invested).InexactFloat64(),
		})

		totalValue = totalValue.Add(value)
		totalInvested = totalInvested.Add(invested)
	}

	totalPL := totalValue.Sub(totalInvested)
	cash := decimal.NewFromFloat(user.Balance)

	return Summary{
		Holdings: out,
		Summary: Totals{
			TotalValue:             totalValue.StringFixed(2),
			TotalInvested:          totalInvested.StringFixed(2),
			TotalProfitLoss:        totalPL.StringFixed(2),
			TotalProfitLossPercent: percent(totalPL, totalInvested).StringFixed(2),
			Cash:                   cash.StringFixed(2),
			AccountValue:           totalValue.Add(cash).StringFixed(2),
		},
	}, nil
}

func percent(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(decimal.NewFromInt(100))
}
