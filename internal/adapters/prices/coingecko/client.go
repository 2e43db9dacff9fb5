package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"liquidator/internal/adapters/prices"
	"liquidator/internal/domain/price"
	"liquidator/pkg/errors"
)

const (
	Name       = "coingecko"
	DefaultURL = "https://api.coingecko.com"
)

var coinIDs = map[string]string{
	"ETH":  "ethereum",
	"BTC":  "bitcoin",
	"USDC": "usd-coin",
	"USDT": "tether",
	"DAI":  "dai",
	"FUEL": "fuel-network",
}

type Config struct {
	BaseURL string
	APIKey  string // demo key, optional
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
	_, ok := coinIDs[strings.ToUpper(symbol)]
	return ok
}

// Quote fetches the simple USD price. Symbols without a coin id mapping fail.
func (c *Client) Quote(ctx context.Context, symbol string) (*price.Quote, error) {
	symbol = strings.ToUpper(symbol)
	coinID, ok := coinIDs[symbol]
	if !ok {
		return nil, errors.Wrapf(errors.ErrUnknownAsset, "coingecko: no coin id for %s", symbol)
	}

	q := url.Values{"ids": {coinID}, "vs_currencies": {"usd"}}
	endpoint := fmt.Sprintf("%s/api/v3/simple/price?%s", c.baseURL, q.Encode())

	var headers map[string]string
	if c.apiKey != "" {
		headers = map[string]string{"x-cg-demo-api-key": c.apiKey}
	}

	body, err := c.Get(ctx, endpoint, headers)
	if err != nil {
		return nil, err
	}

	var resp map[string]struct {
		USD *float64 `json:"usd"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(err, "coingecko: decode response")
	}
	entry, ok := resp[coinID]
	if !ok || entry.USD == nil {
		return nil, errors.Newf("coingecko: price not found for %s (%s)", symbol, coinID)
	}
	if err := prices.CheckPrice(Name, symbol, *entry.USD); err != nil {
		return nil, err
	}

	return &price.Quote{
		Symbol:    symbol,
		PriceUSD:  *entry.USD,
		Provider:  Name,
		Timestamp: time.Now(),
	}, nil
}
