package market

import (
	"math"
	"time"

	"papertrade/model"
)

const (
	DefaultHistoryDays = 30
	MaxHistoryDays     = 365
)

type HistoryPoint struct {
	Date   string  `json:"date"`
	Price  float64 `json:"price"`
	Volume int64   `json:"volume"`
}

// History synthesizes days+1 daily points ending today around the quote's
// current price. Prices never go below 80% of it.
func History(q model.Quote, days int, r Rand, now time.Time) []HistoryPoint {
	if days <= 0 {
		days = DefaultHistoryDays
	}
	if days > MaxHistoryDays {
		days = MaxHistoryDays
	}

	base := q.Price
	points := make([]HistoryPoint, 0, days+1)
	for i := days; i >= 0; i-- {
		variance := (r.Float64() - 0.5) * (base * 0.05)
		price := math.Max(base+variance-float64(i)*0.1, base*0.8)
		volume := int64(math.Floor(r.Float64()*50_000_000)) + 10_000_000

		points = append(points, HistoryPoint{
			Date:   now.AddDate(0, 0, -i).UTC().Format("2006-01-02"),
			Price:  round2(price),
			Volume: volume,
		})
	}
	return points
}
