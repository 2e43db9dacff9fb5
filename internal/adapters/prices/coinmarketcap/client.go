package coinmarketcap

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"liquidator/internal/adapters/prices"
	"liquidator/internal/domain/price"
	"liquidator/pkg/errors"
)

const (
	Name       = "coinmarketcap"
	DefaultURL = "https://pro-api.coinmarketcap.com"
)

type Config struct {
	BaseURL string
	APIKey  string
	prices.Options
}

// Client queries quotes/latest by ticker symbol. There is no fixed asset
// table: any symbol is sent as-is and CMC decides whether it knows it.
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

func (c *Client) Quote(ctx context.Context, symbol string) (*price.Quote, error) {
	symbol = strings.ToUpper(symbol)
	if c.apiKey == "" {
		return nil, errors.Wrap(errors.ErrMissingCredentials, "coinmarketcap: API key not configured")
	}

	q := url.Values{"symbol": {symbol}, "convert": {"USD"}}
	endpoint := fmt.Sprintf("%s/v1/cryptocurrency/quotes/latest?%s", c.baseURL, q.Encode())

	body, err := c.Get(ctx, endpoint, map[string]string{"X-CMC_PRO_API_KEY": c.apiKey})
	if err != nil {
		return nil, err
	}

	if code := gjson.GetBytes(body, "status.error_code").Int(); code != 0 {
		return nil, errors.Newf("coinmarketcap: error %d: %s", code, gjson.GetBytes(body, "status.error_message").String())
	}

	quote := gjson.GetBytes(body, "data."+symbol+".quote.USD")
	if !quote.Exists() {
		return nil, errors.Wrapf(errors.ErrUnknownAsset, "coinmarketcap: %s", symbol)
	}
	value := quote.Get("price").Float()
	if err := prices.CheckPrice(Name, symbol, value); err != nil {
		return nil, err
	}

	ts := time.Now()
	if updated, err := time.Parse(time.RFC3339, quote.Get("last_updated").String()); err == nil {
		ts = updated
	}

	return &price.Quote{
		Symbol:    symbol,
		PriceUSD:  value,
		Provider:  Name,
		Timestamp: ts,
	}, nil
}
