package market

import (
	"sort"
	"strings"
	"sync"

	"papertrade/model"
)

// Market is the process-wide quote table. Step is the only writer; every
// read returns a copy.
type Market struct {
	mu     sync.RWMutex
	order  []string
	quotes map[string]model.Quote
}

func New(seed []model.Quote) *Market {
	m := &Market{
		order:  make([]string, 0, len(seed)),
		quotes: make(map[string]model.Quote, len(seed)),
	}
	for _, q := range seed {
		q.Symbol = model.NormalizeSymbol(q.Symbol)
		if _, dup := m.quotes[q.Symbol]; dup {
			continue
		}
		m.order = append(m.order, q.Symbol)
		m.quotes[q.Symbol] = q
	}
	return m
}

// Step advances every quote by one simulator tick and returns the updates
// keyed by symbol.
func (m *Market) Step(sim *Simulator) map[string]model.PriceUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()

	updates := make(map[string]model.PriceUpdate, len(m.order))
	for _, sym := range m.order {
		q := sim.Next(m.quotes[sym])
		m.quotes[sym] = q
		updates[sym] = q.Update()
	}
	return updates
}

func (m *Market) All() []model.Quote {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Quote, 0, len(m.order))
	for _, sym := range m.order {
		out = append(out, m.quotes[sym])
	}
	return out
}

func (m *Market) Symbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

// Get looks a quote up case-insensitively.
func (m *Market) Get(symbol string) (model.Quote, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quotes[model.NormalizeSymbol(symbol)]
	return q, ok
}

func (m *Market) Price(symbol string) (float64, bool) {
	q, ok := m.Get(symbol)
	return q.Price, ok
}

// Prices returns the current price of every symbol.
func (m *Market) Prices() map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]float64, len(m.quotes))
	for sym, q := range m.quotes {
		out[sym] = q.Price
	}
	return out
}

// Search matches query against symbol and name, case-insensitively.
func (m *Market) Search(query string) []model.Quote {
	needle := strings.ToLower(strings.TrimSpace(query))

	out := []model.Quote{}
	for _, q := range m.All() {
		if strings.Contains(strings.ToLower(q.Symbol), needle) ||
			strings.Contains(strings.ToLower(q.Name), needle) {
			out = append(out, q)
		}
	}
	return out
}

// TopGainers returns the n quotes with the highest changePercent.
func (m *Market) TopGainers(n int) []model.Quote {
	all := m.All()
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].ChangePercent > all[j].ChangePercent
	})
	if n < len(all) {
		all = all[:n]
	}
	return all
}
