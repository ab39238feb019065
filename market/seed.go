package market

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"papertrade/model"
)

// DefaultQuotes returns the built-in market table in display order.
func DefaultQuotes() []model.Quote {
	return []model.Quote{
		{Symbol: "AAPL", Name: "Apple Inc.", Price: 178.45, Change: 2.34, ChangePercent: 1.33, Volume: "52.3M", MarketCap: "2.83T", PE: 29.5, High52w: 198.23, Low52w: 124.17},
		{Symbol: "GOOGL", Name: "Alphabet Inc.", Price: 142.65, Change: -1.24, ChangePercent: -0.86, Volume: "28.1M", MarketCap: "1.79T", PE: 27.3, High52w: 153.78, Low52w: 102.21},
		{Symbol: "MSFT", Name: "Microsoft Corporation", Price: 378.91, Change: 4.56, ChangePercent: 1.22, Volume: "22.4M", MarketCap: "2.82T", PE: 35.1, High52w: 398.45, Low52w: 309.45},
		{Symbol: "AMZN", Name: "Amazon.com Inc.", Price: 156.23, Change: 3.12, ChangePercent: 2.04, Volume: "45.6M", MarketCap: "1.61T", PE: 78.4, High52w: 171.28, Low52w: 118.35},
		{Symbol: "TSLA", Name: "Tesla Inc.", Price: 242.84, Change: -5.67, ChangePercent: -2.28, Volume: "112.3M", MarketCap: "771B", PE: 75.2, High52w: 299.29, Low52w: 152.37},
		{Symbol: "NVDA", Name: "NVIDIA Corporation", Price: 495.22, Change: 8.91, ChangePercent: 1.83, Volume: "38.7M", MarketCap: "1.22T", PE: 98.6, High52w: 502.66, Low52w: 276.58},
		{Symbol: "META", Name: "Meta Platforms Inc.", Price: 358.67, Change: 6.45, ChangePercent: 1.83, Volume: "15.2M", MarketCap: "913B", PE: 28.7, High52w: 384.33, Low52w: 224.21},
		{Symbol: "NFLX", Name: "Netflix Inc.", Price: 445.78, Change: -2.34, ChangePercent: -0.52, Volume: "4.2M", MarketCap: "192B", PE: 41.3, High52w: 485.23, Low52w: 344.73},
	}
}

type seedFile struct {
	Quotes []model.Quote `yaml:"quotes"`
}

// LoadSeed reads a market table from a YAML file of the form
//
//	quotes:
//	  - symbol: AAPL
//	    name: Apple Inc.
//	    price: 178.45
//	    ...
func LoadSeed(path string) ([]model.Quote, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}

	if len(f.Quotes) == 0 {
		return nil, fmt.Errorf("seed file %s has no quotes", path)
	}

	seen := make(map[string]bool, len(f.Quotes))
	for i := range f.Quotes {
		q := &f.Quotes[i]
		q.Symbol = model.NormalizeSymbol(q.Symbol)
		if q.Symbol == "" {
			return nil, fmt.Errorf("seed file %s: quote %d has no symbol", path, i)
		}
		if seen[q.Symbol] {
			return nil, fmt.Errorf("seed file %s: duplicate symbol %s", path, q.Symbol)
		}
		if q.Price <= 0 {
			return nil, fmt.Errorf("seed file %s: %s price must be positive", path, q.Symbol)
		}
		seen[q.Symbol] = true
	}

	return f.Quotes, nil
}
