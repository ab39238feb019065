package model

import (
	"strings"
	"time"
)

type User struct {
	ID           string    `json:"id" bson:"_id"`
	Name         string    `json:"name" bson:"name"`
	Email        string    `json:"email" bson:"email"`
	PasswordHash string    `json:"-" bson:"password"`
	Balance      float64   `json:"balance" bson:"balance"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
}

// Profile is the public view of a user returned by the auth endpoints.
type Profile struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Email   string  `json:"email"`
	Balance float64 `json:"balance"`
}

func (u User) Profile() Profile {
	return Profile{ID: u.ID, Name: u.Name, Email: u.Email, Balance: u.Balance}
}

type Holding struct {
	ID            string    `json:"id" bson:"_id"`
	UserID        string    `json:"userId" bson:"userId"`
	Symbol        string    `json:"symbol" bson:"symbol"`
	Name          string    `json:"name" bson:"name"`
	Shares        float64   `json:"shares" bson:"shares"`
	AveragePrice  float64   `json:"averagePrice" bson:"averagePrice"`
	TotalInvested float64   `json:"totalInvested" bson:"totalInvested"`
	PurchaseDate  time.Time `json:"purchaseDate" bson:"purchaseDate"`
}

type WatchlistEntry struct {
	ID      string    `json:"id" bson:"_id"`
	UserID  string    `json:"userId" bson:"userId"`
	Symbol  string    `json:"symbol" bson:"symbol"`
	Name    string    `json:"name" bson:"name"`
	AddedAt time.Time `json:"addedAt" bson:"addedAt"`
}

type Condition string

const (
	ConditionAbove Condition = "above"
	ConditionBelow Condition = "below"
)

func (c Condition) Valid() bool {
	return c == ConditionAbove || c == ConditionBelow
}

type Alert struct {
	ID          string    `json:"id" bson:"_id"`
	UserID      string    `json:"userId" bson:"userId"`
	Symbol      string    `json:"symbol" bson:"symbol"`
	Name        string    `json:"name" bson:"name"`
	TargetPrice float64   `json:"targetPrice" bson:"targetPrice"`
	Condition   Condition `json:"condition" bson:"condition"`
	IsActive    bool      `json:"isActive" bson:"isActive"`
	Triggered   bool      `json:"triggered" bson:"triggered"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Armed reports whether the alert is still waiting to fire.
func (a Alert) Armed() bool {
	return a.IsActive && !a.Triggered
}

// Due reports whether price satisfies the alert condition. The comparison is
// inclusive: a price exactly at the target fires.
func (a Alert) Due(price float64) bool {
	switch a.Condition {
	case ConditionAbove:
		return price >= a.TargetPrice
	case ConditionBelow:
		return price <= a.TargetPrice
	}
	return false
}

// Quote is one row of the market table.
type Quote struct {
	Symbol        string  `json:"symbol" yaml:"symbol"`
	Name          string  `json:"name" yaml:"name"`
	Price         float64 `json:"price" yaml:"price"`
	Change        float64 `json:"change" yaml:"change"`
	ChangePercent float64 `json:"changePercent" yaml:"changePercent"`
	Volume        string  `json:"volume" yaml:"volume"`
	MarketCap     string  `json:"marketCap" yaml:"marketCap"`
	PE            float64 `json:"pe" yaml:"pe"`
	High52w       float64 `json:"high52w" yaml:"high52w"`
	Low52w        float64 `json:"low52w" yaml:"low52w"`
}

// PriceUpdate is the per-symbol payload of a price_update message.
type PriceUpdate struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
}

func (q Quote) Update() PriceUpdate {
	return PriceUpdate{
		Symbol:        q.Symbol,
		Price:         q.Price,
		Change:        q.Change,
		ChangePercent: q.ChangePercent,
	}
}

// NormalizeSymbol upper-cases and trims a ticker symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
