package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/ava-labs/chainstate-indexer/internal/indexer"
	"github.com/ava-labs/chainstate-indexer/pkg/checkpointer"
	"github.com/ava-labs/chainstate-indexer/pkg/models"
)

func backfill(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	defer rt.close()

	cfg := rt.cfg
	rt.sugar.Infow("config",
		"command", "backfill",
		"network", cfg.Network.String(),
		"evmChainID", cfg.Network.ChainID,
		"rpcURL", cfg.RPCURL,
		"from", cfg.From,
		"to", cfg.To,
		"partitionSize", cfg.Indexer.PartitionSize,
		"windowSize", cfg.Indexer.WindowSize,
		"fetchConcurrency", cfg.Indexer.FetchConcurrency,
		"snapshotBalances", cfg.SnapshotBalances,
		"checkpoints", cfg.Checkpoints,
		"checkpointTableName", cfg.Checkpoint.Table,
		"clickhouseHosts", cfg.ClickHouse.Hosts,
		"clickhouseDatabase", cfg.ClickHouse.Database,
	)
	if cfg.To == 0 {
		rt.sugar.Infof("end block height: not specified, will backfill until the latest block")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := rt.openStores(ctx, true, cfg.SnapshotBalances)
	if err != nil {
		return rt.result("backfill", err)
	}
	metricsErrCh := rt.serveMetrics(s.ready)

	provider, err := rt.dialProvider(ctx)
	if err != nil {
		return rt.result("backfill", err)
	}

	var balances indexer.Sink[models.CacheEntry]
	if s.balances != nil {
		balances = s.balances
	}
	var opts []indexer.Option
	if cfg.Checkpoints {
		db, _ := s.clickhouse.DB()
		cp := checkpointer.NewClickHouse(db, cfg.Checkpoint.Table)
		if err := cp.Initialize(ctx); err != nil {
			return rt.result("backfill", err)
		}
		opts = append(opts, indexer.WithCheckpointer(cp, cfg.Checkpoint))
	}

	ix, err := indexer.New(rt.sugar, provider, s.blocks, s.transactions, balances, cfg.Indexer, opts...)
	if err != nil {
		return rt.result("backfill", err)
	}

	from := cfg.From
	if !cfg.FromSet {
		next, exists, err := ix.Checkpoint(ctx)
		if err != nil {
			return rt.result("backfill", err)
		}
		if exists {
			from = next
			rt.sugar.Infof("start block height: %d (from checkpoint)", from)
		} else {
			rt.sugar.Infof("checkpoint not found, will start from block height 0")
		}
	}
	if cfg.To != 0 && from > cfg.To {
		rt.sugar.Infow("nothing to backfill", "from", from, "to", cfg.To)
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		err := ix.Backfill(gctx, from, cfg.To)
		if errors.Is(err, indexer.ErrInvalidRange) && !cfg.FromSet {
			rt.sugar.Infow("checkpoint is past the latest block, nothing to backfill", "from", from)
			return nil
		}
		return err
	})
	watchMetrics(gctx, g, metricsErrCh)

	return rt.result("backfill", g.Wait())
}
