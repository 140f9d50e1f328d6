package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
)

const defaultBaseDelay = 500 * time.Millisecond

// DialFunc opens a database handle.
type DialFunc[D any] func(ctx context.Context) (D, error)

// CloseFunc releases a database handle.
type CloseFunc[D any] func(D) error

// ConnectorConfig controls the dial backoff.
type ConnectorConfig struct {
	BaseDelay  time.Duration // first Fibonacci step, defaults to 500ms
	MaxDelay   time.Duration // cap per step, 0 for uncapped
	MaxRetries uint64        // 0 retries until the context ends
}

// Connector is a Service that dials its backend in the background and becomes
// ready on the first successful dial.
type Connector[D any] struct {
	*Readiness[D]

	name    string
	dial    DialFunc[D]
	closeFn CloseFunc[D]
	cfg     ConnectorConfig
	opts    options

	startOnce sync.Once
	closeOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
	errCh     chan error
}

var _ Service[struct{}] = (*Connector[struct{}])(nil)

// NewConnector creates a Connector. Nothing is dialed until Start.
func NewConnector[D any](name string, dial DialFunc[D], closeFn CloseFunc[D], cfg ConnectorConfig, opts ...Option) *Connector[D] {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	return &Connector[D]{
		Readiness: NewReadiness[D](),
		name:      name,
		dial:      dial,
		closeFn:   closeFn,
		cfg:       cfg,
		opts:      newOptions(opts),
		done:      make(chan struct{}),
		errCh:     make(chan error, 1),
	}
}

// Name returns the connector name used in logs and metrics.
func (c *Connector[D]) Name() string {
	return c.name
}

// Start begins dialing. This is non-blocking.
// Returns a channel that receives an error if dialing gives up; it is closed
// once the dial loop exits.
func (c *Connector[D]) Start(ctx context.Context) <-chan error {
	c.startOnce.Do(func() {
		ctx, c.cancel = context.WithCancel(ctx)
		c.opts.metrics.SetStorageReady(c.name, false)
		go c.connect(ctx)
	})
	return c.errCh
}

func (c *Connector[D]) connect(ctx context.Context) {
	defer close(c.done)
	defer close(c.errCh)

	b := retry.NewFibonacci(c.cfg.BaseDelay)
	if c.cfg.MaxDelay > 0 {
		b = retry.WithCappedDuration(c.cfg.MaxDelay, b)
	}
	if c.cfg.MaxRetries > 0 {
		b = retry.WithMaxRetries(c.cfg.MaxRetries, b)
	}

	attempt := 0
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		db, err := c.dial(ctx)
		if err != nil {
			c.opts.log.Warnw("storage dial failed",
				"storage", c.name,
				"attempt", attempt,
				"error", err,
			)
			return retry.RetryableError(err)
		}
		c.Resolve(db)
		return nil
	})
	if err != nil {
		c.errCh <- fmt.Errorf("connect %s after %d attempts: %w", c.name, attempt, err)
		return
	}

	c.opts.metrics.SetStorageReady(c.name, true)
	c.opts.log.Infow("storage connected", "storage", c.name, "attempts", attempt)
}

// Close stops dialing and releases the handle if one was established.
func (c *Connector[D]) Close() error {
	var err error
	c.closeOnce.Do(func() {
		// A connector closed before Start never dials.
		c.startOnce.Do(func() {
			close(c.done)
			close(c.errCh)
		})
		if c.cancel == nil {
			return
		}
		c.cancel()
		<-c.done
		if db, ok := c.DB(); ok && c.closeFn != nil {
			err = c.closeFn(db)
		}
		c.opts.metrics.SetStorageReady(c.name, false)
	})
	return err
}
