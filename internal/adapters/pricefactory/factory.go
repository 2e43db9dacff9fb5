package pricefactory

import (
	"liquidator/internal/adapters/config"
	"liquidator/internal/adapters/prices"
	"liquidator/internal/adapters/prices/chainlink"
	"liquidator/internal/adapters/prices/coingecko"
	"liquidator/internal/adapters/prices/coinmarketcap"
	"liquidator/internal/adapters/prices/pyth"
	"liquidator/internal/adapters/prices/stork"
	"liquidator/internal/domain/price"
)

// NewProviders builds every known provider from config, keyed by name.
// The generic PRICE_API_URL / PRICE_API_KEY pair applies to whichever provider is primary.
func NewProviders(cfg config.PriceOracleConfig) map[string]price.Provider {
	opts := prices.Options{
		Timeout:           cfg.RequestTimeout,
		RequestsPerMinute: cfg.RequestsPerMinute,
	}

	primaryURL := func(name, fallback string) string {
		if cfg.Provider == name && cfg.URL != "" {
			return cfg.URL
		}
		return fallback
	}
	primaryKey := func(name, fallback string) string {
		if fallback != "" {
			return fallback
		}
		if cfg.Provider == name {
			return cfg.APIKey
		}
		return ""
	}

	return map[string]price.Provider{
		stork.Name: stork.New(stork.Config{
			BaseURL: primaryURL(stork.Name, cfg.StorkURL),
			APIKey:  primaryKey(stork.Name, cfg.StorkAPIKey),
			Options: opts,
		}),
		pyth.Name: pyth.New(pyth.Config{
			HermesURL: primaryURL(pyth.Name, cfg.PythHermesURL),
			Options:   opts,
		}),
		coingecko.Name: coingecko.New(coingecko.Config{
			BaseURL: primaryURL(coingecko.Name, cfg.CoinGeckoURL),
			APIKey:  primaryKey(coingecko.Name, cfg.CoinGeckoAPIKey),
			Options: opts,
		}),
		coinmarketcap.Name: coinmarketcap.New(coinmarketcap.Config{
			BaseURL: primaryURL(coinmarketcap.Name, coinmarketcap.DefaultURL),
			APIKey:  primaryKey(coinmarketcap.Name, ""),
			Options: opts,
		}),
		chainlink.Name: chainlink.New(),
	}
}
