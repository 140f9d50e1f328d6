package coalesce

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ava-labs/chainstate-indexer/pkg/metrics"
)

// Func is the untyped form of a coalesced operation.
type Func func(ctx context.Context) (any, error)

// Cache tracks the executions currently in flight, keyed by DeriveKey.
type Cache struct {
	group    singleflight.Group
	inFlight atomic.Int64
	log      *zap.SugaredLogger
	metrics  *metrics.Metrics // nil if metrics disabled
}

// Option configures the Cache.
type Option func(*Cache)

// WithLogger sets the logger used for debug output.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *Cache) {
		c.log = log
	}
}

// WithMetrics enables metrics collection for the cache.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// New creates an empty Cache.
func New(opts ...Option) *Cache {
	c := &Cache{log: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do executes fn once per key for all callers that overlap in time.
//
// The first caller for a key runs fn; callers arriving before fn returns wait
// and receive the same value and error. fn receives a context detached from the
// first caller's cancellation so that no single caller can cancel the shared
// execution. The entry is forgotten before fn's result is handed to anyone.
func (c *Cache) Do(ctx context.Context, identifier string, args []any, fn Func) (any, error) {
	key, err := DeriveKey(identifier, args...)
	if err != nil {
		c.metrics.IncCoalesceKeyError()
		return nil, err
	}

	execCtx := context.WithoutCancel(ctx)
	executed := false
	v, err, _ := c.group.Do(key, func() (any, error) {
		executed = true
		c.inFlight.Add(1)
		c.metrics.IncCoalesceInFlight()
		defer func() {
			c.group.Forget(key)
			c.inFlight.Add(-1)
			c.metrics.DecCoalesceInFlight()
		}()
		return fn(execCtx)
	})

	c.metrics.RecordCoalescedCall(identifier, executed)
	if !executed {
		c.log.Debugw("joined in-flight call", "identifier", identifier, "key", key)
	}
	return v, err
}

// InFlight returns the number of executions currently in flight.
func (c *Cache) InFlight() int {
	return int(c.inFlight.Load())
}
