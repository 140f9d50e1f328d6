package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ava-labs/chainstate-indexer/pkg/storage"
)

// New creates a Redis client and pings it once.
func New(ctx context.Context, cfg Config) (*goredis.Client, error) {
	opts, err := cfg.options()
	if err != nil {
		return nil, err
	}

	c := goredis.NewClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", opts.Addr, err)
	}
	return c, nil
}

// Dial returns a storage.DialFunc that opens a new client per attempt.
func Dial(cfg Config) storage.DialFunc[*goredis.Client] {
	return func(ctx context.Context) (*goredis.Client, error) {
		return New(ctx, cfg)
	}
}

// NewConnector returns a storage connector that dials Redis in the background.
func NewConnector(cfg Config, connCfg storage.ConnectorConfig, sugar *zap.SugaredLogger, opts ...storage.Option) *storage.Connector[*goredis.Client] {
	opts = append([]storage.Option{storage.WithLogger(sugar)}, opts...)
	return storage.NewConnector("redis", Dial(cfg), closeClient, connCfg, opts...)
}

func closeClient(c *goredis.Client) error {
	return c.Close()
}
