// Package stork reads prices from the Stork partner oracle REST API.
package stork

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"liquidator/internal/adapters/prices"
	"liquidator/internal/domain/price"
	"liquidator/pkg/errors"
)

const (
	Name       = "stork"
	DefaultURL = "https://rest.jp.stork-oracle.network"
)

// Stork quotes are fixed point with 18 decimals
var scale = decimal.New(1, 18)

var assetIDs = map[string]string{
	"ETH":  "ETHUSD",
	"BTC":  "BTCUSD",
	"USDC": "USDCUSD",
	"USDT": "USDTUSD",
	"FUEL": "FUELUSD",
}

type Config struct {
	BaseURL string
	APIKey  string
	prices.Options
}

type Client struct {
	*prices.Client
	baseURL string
	apiKey  string
}

var _ price.Provider = (*Client)(nil)

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultURL
	}
	return &Client{
		Client:  prices.NewClient(Name, cfg.Options),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
	}
}

func (c *Client) Supports(symbol string) bool {
	_, ok := assetIDs[strings.ToUpper(symbol)]
	return ok
}

func (c *Client) Quote(ctx context.Context, symbol string) (*price.Quote, error) {
	symbol = strings.ToUpper(symbol)
	assetID, ok := assetIDs[symbol]
	if !ok {
		return nil, errors.Wrapf(errors.ErrUnknownAsset, "stork: %s", symbol)
	}
	if c.apiKey == "" {
		return nil, errors.Wrap(errors.ErrMissingCredentials, "stork: API key not configured")
	}

	endpoint := fmt.Sprintf("%s/v1/prices/latest?assets=%s", c.baseURL, url.QueryEscape(assetID))
	body, err := c.Get(ctx, endpoint, map[string]string{"Authorization": c.apiKey})
	if err != nil {
		return nil, err
	}

	entry := gjson.GetBytes(body, "data."+assetID)
	if !entry.Exists() {
		return nil, errors.Newf("stork: price not found for %s (%s)", symbol, assetID)
	}

	raw, err := decimal.NewFromString(entry.Get("price").String())
	if err != nil {
		return nil, errors.Wrapf(err, "stork: parse price for %s", symbol)
	}
	value, _ := raw.Div(scale).Float64()
	if err := prices.CheckPrice(Name, symbol, value); err != nil {
		return nil, err
	}

	ts := time.Now()
	if ns := entry.Get("timestamp").Int(); ns > 0 {
		ts = time.Unix(0, ns)
	}

	return &price.Quote{
		Symbol:    symbol,
		PriceUSD:  value,
		Provider:  Name,
		Timestamp: ts,
	}, nil
}
