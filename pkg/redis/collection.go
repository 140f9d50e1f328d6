package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ava-labs/chainstate-indexer/pkg/storage"
)

// Item is a cache entry written by a Collection.
type Item interface {
	CacheKey() string
	CacheValue() ([]byte, error)
	// TTL returns the entry's expiration; zero uses the collection default.
	TTL() time.Duration
}

// Collection is a storage.Collection writing items as plain Redis string keys.
// Each BulkWrite is one pipelined round trip.
type Collection[T Item] struct {
	client     goredis.Cmdable
	name       string
	prefix     string
	defaultTTL time.Duration
}

var _ storage.Collection[Item] = (*Collection[Item])(nil)

// OpenCollection returns a storage.OpenFunc binding a model to Redis. Keys are
// written as prefix + item.CacheKey().
func OpenCollection[T Item](prefix string, defaultTTL time.Duration) storage.OpenFunc[*goredis.Client, T] {
	return func(c *goredis.Client, name string) storage.Collection[T] {
		return NewCollection[T](c, name, prefix, defaultTTL)
	}
}

// NewCollection creates a Collection over any Redis command interface.
func NewCollection[T Item](c goredis.Cmdable, name, prefix string, defaultTTL time.Duration) *Collection[T] {
	return &Collection[T]{client: c, name: name, prefix: prefix, defaultTTL: defaultTTL}
}

func (c *Collection[T]) Name() string {
	return c.name
}

// Key returns the Redis key an item with the given cache key is stored under.
func (c *Collection[T]) Key(cacheKey string) string {
	return c.prefix + cacheKey
}

// BulkWrite sets every item in one pipeline. All values are encoded before
// anything is sent, so an encoding failure writes nothing.
func (c *Collection[T]) BulkWrite(ctx context.Context, items []T) error {
	values := make([][]byte, len(items))
	for i, item := range items {
		v, err := item.CacheValue()
		if err != nil {
			return fmt.Errorf("failed to encode %s item %q: %w", c.name, item.CacheKey(), err)
		}
		values[i] = v
	}

	_, err := c.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for i, item := range items {
			ttl := item.TTL()
			if ttl == 0 {
				ttl = c.defaultTTL
			}
			pipe.Set(ctx, c.Key(item.CacheKey()), values[i], ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write %d items to %s: %w", len(items), c.name, err)
	}
	return nil
}

// Get returns the raw value stored for cacheKey. The boolean is false when the
// key does not exist or has expired.
func (c *Collection[T]) Get(ctx context.Context, cacheKey string) ([]byte, bool, error) {
	v, err := c.client.Get(ctx, c.Key(cacheKey)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s key %q: %w", c.name, cacheKey, err)
	}
	return v, true, nil
}
