package chainlink

import (
	"context"

	"liquidator/internal/domain/price"
	"liquidator/pkg/errors"
)

const Name = "chainlink"

// Client is a placeholder. Every call fails so the resolver moves on to its fallbacks.
type Client struct{}

var _ price.Provider = (*Client)(nil)

func New() *Client { return &Client{} }

func (c *Client) Name() string { return Name }

func (c *Client) Quote(_ context.Context, symbol string) (*price.Quote, error) {
	// TODO: read AggregatorV3 latestRoundData once feed addresses exist on the target chain
	return nil, errors.Wrapf(errors.ErrNotImplemented, "chainlink: %s", symbol)
}
