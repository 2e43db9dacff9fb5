package prices

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"liquidator/internal/adapters/ratelimit"
	"liquidator/pkg/errors"
)

const (
	DefaultTimeout = 10 * time.Second
	userAgent      = "liquidator/1.0"
	maxErrorBody   = 512
)

// HTTPError is returned for non-2xx responses other than 429
type HTTPError struct {
	Provider string
	Status   int
	Body     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: API returned status %d: %s", e.Provider, e.Status, e.Body)
}

func (e *HTTPError) StatusCode() int { return e.Status }

// Client is the shared REST plumbing for the price providers
type Client struct {
	name       string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
}

// Options configure a provider's HTTP client
type Options struct {
	Timeout           time.Duration
	RequestsPerMinute int
	HTTPClient        *http.Client // overrides Timeout when set
}

func NewClient(name string, opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		name:       name,
		httpClient: hc,
		limiter:    ratelimit.NewLimiter(name, opts.RequestsPerMinute),
	}
}

func (c *Client) Name() string { return c.name }

// Get performs a GET and returns the body of a 2xx response.
// HTTP 429 maps to errors.ErrRateLimited.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create API request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: API request failed", c.name)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: read response", c.name)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errors.Wrapf(errors.ErrRateLimited, "%s", c.name)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, &HTTPError{Provider: c.name, Status: resp.StatusCode, Body: string(body)}
	}

	return body, nil
}

// CheckPrice rejects zero, negative and non-finite prices
func CheckPrice(provider, symbol string, p float64) error {
	if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
		return errors.Wrapf(errors.ErrInvalidPrice, "%s: %s price %v", provider, symbol, p)
	}
	return nil
}
