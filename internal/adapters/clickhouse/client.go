package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"liquidator/internal/adapters/config"
	"liquidator/internal/metrics"
	"liquidator/pkg/errors"
)

// Client holds the audit log connection. Writes are small and batched,
// so the pool stays small.
type Client struct {
	conn driver.Conn
}

func NewClient(ctx context.Context, cfg config.ClickHouseConfig) (*Client, error) {
	if !cfg.Enabled() {
		return nil, errors.Wrap(errors.ErrInvalidInput, "clickhouse host not set")
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to clickhouse")
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(err, "failed to ping clickhouse at %s:%d", cfg.Host, cfg.Port)
	}

	return &Client{conn: conn}, nil
}

func (c *Client) Conn() driver.Conn {
	return c.conn
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Health pings the server
func (c *Client) Health(ctx context.Context) error {
	return errors.Wrap(c.conn.Ping(ctx), "clickhouse ping")
}

// Exec runs DDL and maintenance statements
func (c *Client) Exec(ctx context.Context, query string, args ...interface{}) (err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("clickhouse", "exec", time.Since(start), err) }()

	return c.conn.Exec(ctx, query, args...)
}
