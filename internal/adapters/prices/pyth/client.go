// Package pyth reads prices from the Pyth Hermes pull-oracle API.
package pyth

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"liquidator/internal/adapters/prices"
	"liquidator/internal/domain/price"
	"liquidator/pkg/errors"
)

const (
	Name       = "pyth"
	DefaultURL = "https://hermes.pyth.network"
)

var feedIDs = map[string]string{
	"ETH":  "0xff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace",
	"BTC":  "0xe62df6c8b4a85fe1a67db44dc12de5db330f7ac66b72dc658afedf0f4a415b43",
	"USDC": "0xeaa020c61cc479712813461ce153894a96a6c00b21ed0cfc2798d1f9a9e9c94a",
	"USDT": "0x2b89b9dc8fdf9f34709a5b106b472f0f39bb6ca9ce04b0fd7f2e971688e2e53b",
}

type Config struct {
	HermesURL string
	prices.Options
}

type Client struct {
	*prices.Client
	hermesURL string
}

var _ price.Provider = (*Client)(nil)

func New(cfg Config) *Client {
	if cfg.HermesURL == "" {
		cfg.HermesURL = DefaultURL
	}
	return &Client{
		Client:    prices.NewClient(Name, cfg.Options),
		hermesURL: strings.TrimRight(cfg.HermesURL, "/"),
	}
}

// FeedID returns the Hermes feed id for symbol
func FeedID(symbol string) (string, bool) {
	id, ok := feedIDs[strings.ToUpper(symbol)]
	return id, ok
}

func (c *Client) Supports(symbol string) bool {
	_, ok := FeedID(symbol)
	return ok
}

type hermesResponse struct {
	Parsed []struct {
		ID    string `json:"id"`
		Price struct {
			Price       string `json:"price"`
			Conf        string `json:"conf"`
			Expo        int    `json:"expo"`
			PublishTime int64  `json:"publish_time"`
		} `json:"price"`
	} `json:"parsed"`
}

func (c *Client) Quote(ctx context.Context, symbol string) (*price.Quote, error) {
	symbol = strings.ToUpper(symbol)
	feedID, ok := FeedID(symbol)
	if !ok {
		return nil, errors.Wrapf(errors.ErrUnknownAsset, "pyth: no feed for %s", symbol)
	}

	endpoint := fmt.Sprintf("%s/v2/updates/price/latest?%s", c.hermesURL, url.Values{"ids[]": {feedID}}.Encode())
	body, err := c.Get(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var resp hermesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(err, "pyth: decode response")
	}
	if len(resp.Parsed) == 0 {
		return nil, errors.Newf("pyth: no price data for %s", symbol)
	}

	p := resp.Parsed[0].Price
	mantissa, err := strconv.ParseInt(p.Price, 10, 64)
	if err != nil {
		return nil, errors.Wrapf(err, "pyth: parse price for %s", symbol)
	}
	value := float64(mantissa) * math.Pow10(p.Expo)
	if err := prices.CheckPrice(Name, symbol, value); err != nil {
		return nil, err
	}

	ts := time.Now()
	if p.PublishTime > 0 {
		ts = time.Unix(p.PublishTime, 0)
	}

	return &price.Quote{
		Symbol:    symbol,
		PriceUSD:  value,
		Provider:  Name,
		Timestamp: ts,
	}, nil
}
