package market

import (
	"math"

	"github.com/shopspring/decimal"

	"papertrade/model"
)

const (
	DefaultMaxMovePct = 0.25
	DefaultPriceFloor = 0.01
)

// Simulator random-walks quotes. Given the same Rand sequence it produces the
// same quotes.
type Simulator struct {
	rand       Rand
	maxMovePct float64
	floor      float64
}

func NewSimulator(r Rand, maxMovePct, floor float64) *Simulator {
	if maxMovePct <= 0 {
		maxMovePct = DefaultMaxMovePct
	}
	if floor <= 0 {
		floor = DefaultPriceFloor
	}
	return &Simulator{rand: r, maxMovePct: maxMovePct, floor: floor}
}

// Next moves q by a uniform draw in [-maxMovePct%, +maxMovePct%) and keeps
// changePercent == change / (price - change) * 100.
func (s *Simulator) Next(q model.Quote) model.Quote {
	pct := (s.rand.Float64() - 0.5) * 2 * s.maxMovePct
	return s.apply(q, pct)
}

func (s *Simulator) apply(q model.Quote, pct float64) model.Quote {
	prevClose := q.Price - q.Change
	delta := q.Price * pct / 100

	price := round2(q.Price + delta)
	change := round2(q.Change + delta)

	if math.IsNaN(price) || math.IsInf(price, 0) || price < s.floor {
		price = s.floor
		change = round2(price - prevClose)
	}

	q.Price = price
	q.Change = change
	q.ChangePercent = changePercent(price, change)
	return q
}

func changePercent(price, change float64) float64 {
	base := price - change
	if base <= 0 || math.IsNaN(base) {
		return 0
	}
	return round2(change / base * 100)
}

func round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
