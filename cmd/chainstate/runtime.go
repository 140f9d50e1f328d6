package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ava-labs/chainstate-indexer/pkg/chainstate"
	"github.com/ava-labs/chainstate-indexer/pkg/clickhouse"
	"github.com/ava-labs/chainstate-indexer/pkg/coalesce"
	"github.com/ava-labs/chainstate-indexer/pkg/metrics"
	"github.com/ava-labs/chainstate-indexer/pkg/models"
	"github.com/ava-labs/chainstate-indexer/pkg/redis"
	"github.com/ava-labs/chainstate-indexer/pkg/storage"
	"github.com/ava-labs/chainstate-indexer/pkg/utils"
)

const (
	flushTimeoutOnClose    = 15 * time.Second
	metricsShutdownTimeout = 5 * time.Second
)

// runtime holds what every command sets up before doing its work.
type runtime struct {
	cfg      *Config
	sugar    *zap.SugaredLogger
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	metricsServer *metrics.Server
	closers       []func()
}

func newRuntime(c *cli.Context) (*runtime, error) {
	cfg, err := buildConfig(c)
	if err != nil {
		return nil, fmt.Errorf("failed to build config: %w", err)
	}

	var sugar *zap.SugaredLogger
	if cfg.LogLevel != "" {
		sugar, err = utils.NewSugaredLoggerWithLevel(cfg.LogLevel)
	} else {
		sugar, err = utils.NewSugaredLogger(cfg.Verbose)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	// Initialize Prometheus metrics with labels for multi-instance filtering
	registry := prometheus.NewRegistry()
	m, err := metrics.NewWithLabels(registry, cfg.MetricsLabels())
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	return &runtime{cfg: cfg, sugar: sugar, registry: registry, metrics: m}, nil
}

// onClose adds fn to the functions run by close, in reverse order.
func (r *runtime) onClose(fn func()) {
	r.closers = append(r.closers, fn)
}

// close releases everything the runtime opened and flushes the logger.
func (r *runtime) close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	if r.metricsServer != nil {
		r.sugar.Info("shutting down metrics server")
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := r.metricsServer.Shutdown(ctx); err != nil {
			r.sugar.Warnw("metrics server shutdown error", "error", err)
		}
	}
	_ = r.sugar.Desugar().Sync()
}

// serveMetrics starts the metrics server. ready backs /ready.
func (r *runtime) serveMetrics(ready metrics.ReadinessFunc) <-chan error {
	r.metricsServer = metrics.NewServer(r.cfg.MetricsAddr(), r.registry, metrics.WithReadiness(ready))
	errCh := r.metricsServer.Start()
	if r.cfg.MetricsHost == "" {
		r.sugar.Infof("metrics server listening on http://0.0.0.0:%d/metrics", r.cfg.MetricsPort)
	} else {
		r.sugar.Infof("metrics server listening on http://%s/metrics", r.cfg.MetricsAddr())
	}
	return errCh
}

// stores are the storage connections and the models bound to them. A nil
// connector is not used by the command.
type stores struct {
	clickhouse *storage.Connector[clickhouse.Client]
	redis      *storage.Connector[*goredis.Client]

	blocks       *models.Blocks
	transactions *models.Transactions
	balances     *models.BalanceCache
}

// ready reports whether every started connector is connected.
func (s *stores) ready() bool {
	if s.clickhouse != nil && !s.clickhouse.Connected() {
		return false
	}
	if s.redis != nil && !s.redis.Connected() {
		return false
	}
	return true
}

// openStores starts the requested connectors and binds their models. It
// returns once every model is bound, a connector gives up, or the
// storage-ready-timeout elapses.
func (r *runtime) openStores(ctx context.Context, withClickHouse, withRedis bool) (*stores, error) {
	opts := []storage.Option{storage.WithLogger(r.sugar), storage.WithMetrics(r.metrics)}
	s := &stores{}

	waitCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	waitCtx, cancelTimeout := context.WithTimeout(waitCtx, r.cfg.StorageReadyTimeout)
	defer cancelTimeout()

	watch := func(errCh <-chan error) {
		go func() {
			if err, ok := <-errCh; ok {
				cancel(err)
			}
		}()
	}

	var waits []func(context.Context) error
	if withClickHouse {
		s.clickhouse = clickhouse.NewConnector(r.cfg.ClickHouse, r.cfg.Connector, r.sugar, opts...)
		r.onClose(func() {
			if err := s.clickhouse.Close(); err != nil {
				r.sugar.Warnw("failed to close clickhouse", "error", err)
			}
		})
		watch(s.clickhouse.Start(ctx))

		s.blocks = models.NewBlocks(ctx, s.clickhouse, opts...)
		s.transactions = models.NewTransactions(ctx, s.clickhouse, opts...)
		waits = append(waits, s.blocks.WaitConnected, s.transactions.WaitConnected)
	}
	if withRedis {
		s.redis = redis.NewConnector(r.cfg.Redis, r.cfg.Connector, r.sugar, opts...)
		r.onClose(func() {
			if err := s.redis.Close(); err != nil {
				r.sugar.Warnw("failed to close redis", "error", err)
			}
		})
		watch(s.redis.Start(ctx))

		s.balances = models.NewBalanceCache(ctx, s.redis, r.cfg.Redis.KeyPrefix, r.cfg.Redis.DefaultTTL, opts...)
		waits = append(waits, s.balances.WaitConnected)
	}

	for _, wait := range waits {
		if err := wait(waitCtx); err != nil {
			if cause := context.Cause(waitCtx); cause != nil && !errors.Is(cause, err) {
				return nil, fmt.Errorf("storage not ready: %w", cause)
			}
			return nil, fmt.Errorf("storage not ready: %w", err)
		}
	}
	r.sugar.Info("storage ready")
	return s, nil
}

// dialProvider dials the configured RPC endpoint, verifies its chain ID and
// coalesces identical concurrent calls.
func (r *runtime) dialProvider(ctx context.Context) (chainstate.Provider, error) {
	rpcProvider, err := chainstate.DialRPC(ctx, r.cfg.RPCURL, r.cfg.Network,
		chainstate.WithLogger(r.sugar),
		chainstate.WithMetrics(r.metrics),
	)
	if err != nil {
		return nil, err
	}
	r.onClose(rpcProvider.Close)

	cache := coalesce.New(coalesce.WithLogger(r.sugar), coalesce.WithMetrics(r.metrics))
	return chainstate.NewCoalesced(rpcProvider, cache), nil
}

// watchMetrics fails the group when the metrics server stops unexpectedly.
func watchMetrics(gctx context.Context, g *errgroup.Group, errCh <-chan error) {
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		}
	})
}

// result logs how a command ended. Cancellation by signal is a clean exit.
func (r *runtime) result(name string, err error) error {
	if errors.Is(err, context.Canceled) {
		r.sugar.Infow("exiting due to context cancellation", "command", name)
		return nil
	}
	if err != nil {
		r.sugar.Errorw("run failed", "command", name, "error", err)
		return err
	}
	r.sugar.Infow("shutdown complete", "command", name)
	return nil
}
