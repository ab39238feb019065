package assistant

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"papertrade/model"
	"papertrade/trademanager"
)

const (
	ReplyPriceQuery          = "price_query"
	ReplyBuySuccess          = "buy_success"
	ReplyInsufficientBalance = "insufficient_balance"
	ReplyBuyError            = "buy_error"
	ReplyPortfolioQuery      = "portfolio_query"
	ReplyPortfolioEmpty      = "portfolio_empty"
	ReplyRecommendation      = "recommendation"
	ReplyBalance             = "balance"
	ReplyGeneral             = "general"
	ReplyError               = "error"
)

const defaultChatShares = 5

var (
	sharesPattern = regexp.MustCompile(`(?i)(\d+)\s*(share|stock)`)
	numberPattern = regexp.MustCompile(`(\d+)`)
)

// companies maps name fragments to symbols, checked in order.
var companies = []struct {
	fragments []string
	symbol    string
}{
	{[]string{"apple"}, "AAPL"},
	{[]string{"google", "alphabet"}, "GOOGL"},
	{[]string{"microsoft"}, "MSFT"},
	{[]string{"amazon"}, "AMZN"},
	{[]string{"tesla"}, "TSLA"},
	{[]string{"nvidia"}, "NVDA"},
	{[]string{"meta", "facebook"}, "META"},
	{[]string{"netflix"}, "NFLX"},
}

const helpText = `I'm your trading assistant! I can help you:
• Check stock prices: "What's the price of Apple?"
• Buy stocks: "Buy 5 shares of Tesla"
• View portfolio: "Show me my portfolio"
• Get recommendations: "What should I invest in?"
• Check balance: "What's my balance?"

What would you like to do?`

type ChatReply struct {
	Type       string      `json:"type"`
	Response   string      `json:"response"`
	Action     string      `json:"action,omitempty"`
	Data       interface{} `json:"data"`
	NewBalance *float64    `json:"newBalance,omitempty"`
}

type BuyData struct {
	Symbol     string  `json:"symbol"`
	Shares     float64 `json:"shares"`
	Price      float64 `json:"price"`
	TotalCost  float64 `json:"totalCost"`
	NewBalance float64 `json:"newBalance"`
}

// Chat answers one message for user. Intents are tried in a fixed order:
// price, buy, portfolio, recommendation, balance, then help. A buy intent
// executes the trade at the current market price.
func (a *Assistant) Chat(ctx context.Context, user model.User, message string) ChatReply {
	lower := strings.ToLower(message)
	symbol := a.detectSymbol(lower)

	switch {
	case symbol != "" && containsAny(lower, "price", "cost", "trading", "worth"):
		return a.priceReply(symbol)
	case symbol != "" && containsAny(lower, "buy", "purchase", "get", "invest"):
		return a.buyReply(ctx, user, symbol, parseShares(message))
	case containsAny(lower, "portfolio", "holdings", "stocks i own", "what do i have"):
		return a.portfolioReply(ctx, user.ID)
	case containsAny(lower, "recommend", "suggest", "should i buy", "what to invest"):
		return a.recommendationReply()
	case containsAny(lower, "balance", "how much money", "cash"):
		return ChatReply{
			Type:     ReplyBalance,
			Response: fmt.Sprintf("Your available balance is $%.2f. You can use this to purchase stocks. What would you like to invest in?", user.Balance),
			Data:     map[string]float64{"balance": user.Balance},
		}
	}
	return ChatReply{Type: ReplyGeneral, Response: helpText}
}

func (a *Assistant) detectSymbol(lower string) string {
	for _, sym := range a.quotes.Symbols() {
		if strings.Contains(lower, strings.ToLower(sym)) {
			return sym
		}
	}
	for _, c := range companies {
		if containsAny(lower, c.fragments...) {
			return c.symbol
		}
	}
	return ""
}

// parseShares prefers "<n> shares"/"<n> stock", then any number, then the
// default.
func parseShares(message string) float64 {
	if m := sharesPattern.FindStringSubmatch(message); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return float64(n)
		}
	}
	if m := numberPattern.FindStringSubmatch(message); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return float64(n)
		}
	}
	return defaultChatShares
}

func (a *Assistant) priceReply(symbol string) ChatReply {
	q, ok := a.quotes.Get(symbol)
	if !ok {
		return ChatReply{Type: ReplyGeneral, Response: helpText}
	}
	verdict := "Steady movement."
	if q.ChangePercent > 1 {
		verdict = "Strong performance!"
	} else if q.ChangePercent < -1 {
		verdict = "Experiencing downward pressure."
	}
	return ChatReply{
		Type: ReplyPriceQuery,
		Response: fmt.Sprintf("%s (%s) is currently trading at $%s, %s %s%% today. %s",
			q.Name, q.Symbol, num(q.Price), pick(q.ChangePercent >= 0, "up", "down"),
			num(math.Abs(q.ChangePercent)), verdict),
		Data: q,
	}
}

func (a *Assistant) buyReply(ctx context.Context, user model.User, symbol string, shares float64) ChatReply {
	q, ok := a.quotes.Get(symbol)
	if !ok {
		return buyError()
	}

	res, err := a.trades.Buy(ctx, user.ID, q.Symbol, q.Name, shares, q.Price)
	if errors.Is(err, trademanager.ErrInsufficientBalance) {
		cost := decimal.NewFromFloat(shares).Mul(decimal.NewFromFloat(q.Price))
		return ChatReply{
			Type: ReplyInsufficientBalance,
			Response: fmt.Sprintf("Sorry, you don't have enough balance. You need %s but only have %.2f. Consider buying fewer shares or adding funds.",
				cost.StringFixed(2), user.Balance),
		}
	}
	if err != nil {
		a.logger.Warn("Chat buy failed", zap.String("user", user.ID), zap.String("symbol", symbol), zap.Error(err))
		return buyError()
	}

	balance := res.NewBalance
	return ChatReply{
		Type: ReplyBuySuccess,
		Response: fmt.Sprintf("✅ Order executed! Successfully bought %s shares of %s (%s) at %s per share. Total cost: %.2f. Your new balance is %.2f. Good luck with your investment!",
			num(shares), q.Name, q.Symbol, num(q.Price), res.TotalCost, res.NewBalance),
		Action: "buy_stock",
		Data: BuyData{
			Symbol:     q.Symbol,
			Shares:     shares,
			Price:      q.Price,
			TotalCost:  res.TotalCost,
			NewBalance: res.NewBalance,
		},
		NewBalance: &balance,
	}
}

func buyError() ChatReply {
	return ChatReply{
		Type:     ReplyBuyError,
		Response: "Sorry, there was an error processing your order. Please try again or contact support.",
	}
}

func (a *Assistant) portfolioReply(ctx context.Context, userID string) ChatReply {
	holdings, err := a.store.Holdings(ctx, userID)
	if err != nil {
		a.logger.Warn("Chat portfolio lookup failed", zap.String("user", userID), zap.Error(err))
		return ChatReply{Type: ReplyError, Response: "Sorry, I couldn't fetch your portfolio. Please try again."}
	}
	if len(holdings) == 0 {
		return ChatReply{
			Type:     ReplyPortfolioEmpty,
			Response: "Your portfolio is currently empty. You haven't purchased any stocks yet. Browse the market and make your first investment!",
		}
	}

	parts := make([]string, 0, len(holdings))
	total := decimal.Zero
	for _, h := range holdings {
		parts = append(parts, fmt.Sprintf("%s: %s shares at avg $%.2f", h.Symbol, num(h.Shares), h.AveragePrice))
		total = total.Add(decimal.NewFromFloat(h.Shares).Mul(decimal.NewFromFloat(h.AveragePrice)))
	}
	return ChatReply{
		Type: ReplyPortfolioQuery,
		Response: fmt.Sprintf("Your portfolio has %d position(s): %s. Total invested: $%s. Keep monitoring your investments!",
			len(holdings), strings.Join(parts, ", "), total.StringFixed(2)),
		Action: "get_portfolio",
		Data:   holdings,
	}
}

func (a *Assistant) recommendationReply() ChatReply {
	recs := a.Recommendations()
	parts := make([]string, 0, len(recs.TopPicks))
	for _, p := range recs.TopPicks {
		sign := ""
		if p.Change >= 0 {
			sign = "+"
		}
		parts = append(parts, fmt.Sprintf("%s (%s) at $%s, %s%s%%", p.Symbol, p.Name, num(p.Price), sign, num(p.Change)))
	}
	return ChatReply{
		Type: ReplyRecommendation,
		Response: fmt.Sprintf("Based on today's market performance, I recommend: %s. These stocks are showing strong momentum. Remember to diversify and invest wisely!",
			strings.Join(parts, ", ")),
		Action: "get_recommendations",
		Data:   recs,
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
