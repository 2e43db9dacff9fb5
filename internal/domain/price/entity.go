package price

import (
	"context"
	"time"
)

// Quote is a USD price reported by a single provider
type Quote struct {
	Symbol    string
	PriceUSD  float64
	Provider  string
	Timestamp time.Time
}

// Provider fetches the USD price of a canonical asset symbol (ETH, USDC...)
type Provider interface {
	Name() string
	Quote(ctx context.Context, symbol string) (*Quote, error)
}

// AssetSupporter is implemented by providers that only know a fixed asset table
type AssetSupporter interface {
	Supports(symbol string) bool
}

// Supports reports whether p can price symbol. Providers without a fixed table
// are assumed to support everything and fail at request time instead.
func Supports(p Provider, symbol string) bool {
	if s, ok := p.(AssetSupporter); ok {
		return s.Supports(symbol)
	}
	return true
}
