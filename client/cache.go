package client

import (
	"sync"

	"papertrade/model"
)

// PriceCache holds the latest price_update payload per symbol. Symbols
// missing from an update keep their previous values.
type PriceCache struct {
	mu     sync.RWMutex
	prices map[string]model.PriceUpdate
}

func NewPriceCache() *PriceCache {
	return &PriceCache{prices: make(map[string]model.PriceUpdate)}
}

// Seed fills the cache from a full quote listing.
func (c *PriceCache) Seed(quotes []model.Quote) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, q := range quotes {
		c.prices[q.Symbol] = q.Update()
	}
}

func (c *PriceCache) Apply(data map[string]model.PriceUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for sym, u := range data {
		c.prices[sym] = u
	}
}

func (c *PriceCache) Get(symbol string) (model.PriceUpdate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.prices[model.NormalizeSymbol(symbol)]
	return u, ok
}

func (c *PriceCache) Snapshot() map[string]model.PriceUpdate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]model.PriceUpdate, len(c.prices))
	for k, v := range c.prices {
		out[k] = v
	}
	return out
}

// Prices flattens the cache to symbol -> latest price.
func (c *PriceCache) Prices() map[string]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]float64, len(c.prices))
	for sym, u := range c.prices {
		out[sym] = u.Price
	}
	return out
}
