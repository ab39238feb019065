package assistant

import (
	"fmt"
	"math"
	"strconv"

	"go.uber.org/zap"

	"papertrade/db"
	"papertrade/model"
	"papertrade/trademanager"
)

// Quotes is the read side of the market table.
type Quotes interface {
	Symbols() []string
	Get(symbol string) (model.Quote, bool)
	TopGainers(n int) []model.Quote
}

// Assistant answers questions about the market with fixed rules. Nothing here
// calls an external model.
type Assistant struct {
	quotes Quotes
	trades *trademanager.TradeManager
	store  db.Store
	logger *zap.Logger
}

func New(quotes Quotes, trades *trademanager.TradeManager, store db.Store, logger *zap.Logger) *Assistant {
	return &Assistant{
		quotes: quotes,
		trades: trades,
		store:  store,
		logger: logger.Named("assistant"),
	}
}

type Prediction struct {
	Symbol       string   `json:"symbol"`
	Name         string   `json:"name"`
	CurrentPrice float64  `json:"currentPrice"`
	Prediction   string   `json:"prediction"`
	Trend        string   `json:"trend"`
	Icon         string   `json:"icon"`
	Confidence   int      `json:"confidence"`
	Color        string   `json:"color"`
	Reasoning    []string `json:"reasoning"`
	TargetPrice  string   `json:"targetPrice"`
	Timeframe    string   `json:"timeframe"`
}

type outlook struct {
	trend, icon, label, color string
	confidence                int
}

func outlookFor(changePercent float64) outlook {
	switch {
	case changePercent > 1.5:
		return outlook{"uptrend", "📈", "Strong Uptrend", "green", 85}
	case changePercent > 0.5:
		return outlook{"uptrend", "📈", "Likely Uptrend", "green", 72}
	case changePercent < -1.5:
		return outlook{"downtrend", "📉", "Bearish Trend", "red", 80}
	case changePercent < -0.5:
		return outlook{"downtrend", "📉", "Slightly Bearish", "red", 68}
	}
	return outlook{"sideways", "➡️", "Sideways Movement", "yellow", 75}
}

// Predict classifies a symbol by its change today. The second result is false
// for unknown symbols.
func (a *Assistant) Predict(symbol string) (Prediction, bool) {
	q, ok := a.quotes.Get(symbol)
	if !ok {
		return Prediction{}, false
	}
	o := outlookFor(q.ChangePercent)

	up := q.ChangePercent >= 0
	target := q.Price * 0.95
	if up {
		target = q.Price * 1.05
	}

	return Prediction{
		Symbol:       q.Symbol,
		Name:         q.Name,
		CurrentPrice: q.Price,
		Prediction:   o.label,
		Trend:        o.trend,
		Icon:         o.icon,
		Confidence:   o.confidence,
		Color:        o.color,
		Reasoning: []string{
			fmt.Sprintf("Current momentum is %s at %s%%", pick(up, "positive", "negative"), num(math.Abs(q.ChangePercent))),
			fmt.Sprintf("Trading volume indicates %s pressure", pick(up, "buying", "selling")),
			fmt.Sprintf("Market sentiment for %s remains %s", q.Name, pick(up, "optimistic", "cautious")),
		},
		TargetPrice: fmt.Sprintf("%.2f", target),
		Timeframe:   "1-2 weeks",
	}, true
}

// PredictBatch drops unknown symbols.
func (a *Assistant) PredictBatch(symbols []string) []Prediction {
	out := make([]Prediction, 0, len(symbols))
	for _, s := range symbols {
		if p, ok := a.Predict(s); ok {
			out = append(out, p)
		}
	}
	return out
}

type Pick struct {
	Symbol string  `json:"symbol"`
	Name   string  `json:"name"`
	Price  float64 `json:"price"`
	Change float64 `json:"change"`
	Reason string  `json:"reason"`
}

type Recommendations struct {
	TopPicks             []Pick   `json:"topPicks"`
	RiskLevel            string   `json:"riskLevel"`
	DiversificationScore int      `json:"diversificationScore"`
	Suggestions          []string `json:"suggestions"`
}

func (a *Assistant) Recommendations() Recommendations {
	gainers := a.quotes.TopGainers(3)
	picks := make([]Pick, 0, len(gainers))
	for _, q := range gainers {
		picks = append(picks, Pick{
			Symbol: q.Symbol,
			Name:   q.Name,
			Price:  q.Price,
			Change: q.ChangePercent,
			Reason: pick(q.ChangePercent > 1, "Strong upward momentum", "Positive price action"),
		})
	}
	return Recommendations{
		TopPicks:             picks,
		RiskLevel:            "Moderate",
		DiversificationScore: 75,
		Suggestions: []string{
			"Consider tech stocks for growth potential",
			"Balance portfolio with stable blue-chip stocks",
			"Monitor market trends and adjust positions accordingly",
		},
	}
}

type News struct {
	Symbol    string   `json:"symbol"`
	Sentiment string   `json:"sentiment"`
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"keyPoints"`
	Sources   int      `json:"sources"`
}

func (a *Assistant) News(symbol string) (News, bool) {
	q, ok := a.quotes.Get(symbol)
	if !ok {
		return News{}, false
	}
	cp := q.ChangePercent

	analysts := "monitoring"
	if cp > 1 {
		analysts = "optimistic"
	} else if cp < -1 {
		analysts = "cautious"
	}
	sign := ""
	if cp >= 0 {
		sign = "+"
	}

	return News{
		Symbol:    q.Symbol,
		Sentiment: pick(cp > 0, "Positive", "Negative"),
		Summary: fmt.Sprintf("%s is showing %s with %s%% change today. Market analysts are %s the stock's performance.",
			q.Name, pick(cp >= 0, "positive momentum", "downward pressure"), num(math.Abs(cp)), analysts),
		KeyPoints: []string{
			fmt.Sprintf("Price movement: %s%s%%", sign, num(cp)),
			fmt.Sprintf("Trading volume: %s", q.Volume),
			fmt.Sprintf("Market sentiment: %s", pick(cp > 0, "Bullish", "Bearish")),
		},
		Sources: 3,
	}, true
}

type Advice struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Reason string `json:"reason"`
}

type PortfolioAdvice struct {
	OverallHealth         string            `json:"overallHealth"`
	RiskScore             int               `json:"riskScore"`
	DiversificationAdvice string            `json:"diversificationAdvice"`
	Recommendations       []Advice          `json:"recommendations"`
	ProjectedReturn       map[string]string `json:"projectedReturn"`
}

func (a *Assistant) PortfolioAdvice() PortfolioAdvice {
	return PortfolioAdvice{
		OverallHealth:         "Good",
		RiskScore:             65,
		DiversificationAdvice: "Consider adding more sectors for better diversification",
		Recommendations: []Advice{
			{Type: "Rebalance", Action: "Review position sizes", Reason: "Maintain balanced exposure across holdings"},
			{Type: "Add Position", Action: "Consider healthcare or consumer stocks", Reason: "Diversify into defensive sectors"},
			{Type: "Monitor", Action: "Watch high-volatility positions", Reason: "Manage risk in volatile market conditions"},
		},
		ProjectedReturn: map[string]string{
			"conservative": "8-12%",
			"moderate":     "12-18%",
			"aggressive":   "18-25%",
		},
	}
}

func pick(cond bool, yes, no string) string {
	if cond {
		return yes
	}
	return no
}

// num prints a float the shortest way that round-trips, so 1.5 stays "1.5".
func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
