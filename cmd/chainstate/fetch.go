package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ava-labs/chainstate-indexer/internal/indexer"
	"github.com/ava-labs/chainstate-indexer/pkg/chainstate"
	"github.com/ava-labs/chainstate-indexer/pkg/kafka/message"
	"github.com/ava-labs/chainstate-indexer/pkg/queue"
)

func fetch(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	defer rt.close()

	cfg := rt.cfg
	rt.sugar.Infow("config",
		"command", "fetch",
		"network", cfg.Network.String(),
		"evmChainID", cfg.Network.ChainID,
		"rpcURL", cfg.RPCURL,
		"from", cfg.From,
		"to", cfg.To,
		"windowSize", cfg.Indexer.WindowSize,
		"fetchConcurrency", cfg.Indexer.FetchConcurrency,
		"kafkaBrokers", cfg.Kafka.BootstrapServers,
		"kafkaTopic", cfg.Kafka.Topic,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rt.ensureTopics(ctx, cfg.Kafka.TopicConfig()); err != nil {
		return rt.result("fetch", err)
	}
	metricsErrCh := rt.serveMetrics(nil)

	provider, err := rt.dialProvider(ctx)
	if err != nil {
		return rt.result("fetch", err)
	}
	pub, err := rt.newPublisher(ctx)
	if err != nil {
		return rt.result("fetch", err)
	}

	f := &fetcher{
		sugar:       rt.sugar,
		provider:    provider,
		publisher:   pub,
		topic:       cfg.Kafka.Topic,
		windowSize:  cfg.Indexer.WindowSize,
		concurrency: cfg.Indexer.FetchConcurrency,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return f.run(gctx, cfg.From, cfg.To)
	})
	watchMetrics(gctx, g, metricsErrCh)
	watchPublisher(gctx, g, pub)

	return rt.result("fetch", g.Wait())
}

// fetcher publishes a block range to Kafka, one window at a time.
type fetcher struct {
	sugar       *zap.SugaredLogger
	provider    chainstate.Provider
	publisher   queue.Publisher
	topic       string
	windowSize  uint64
	concurrency int
}

// run publishes [from, to]. to == 0 means the latest block. Blocks are
// published in number order, keyed by network so one network stays on one
// partition.
func (f *fetcher) run(ctx context.Context, from, to uint64) error {
	if to == 0 {
		latest, err := f.provider.GetLatestBlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("get latest block number: %w", err)
		}
		to = latest
	}
	if from > to {
		return fmt.Errorf("%w: [%d, %d]", indexer.ErrInvalidRange, from, to)
	}
	window := max(f.windowSize, 1)

	n := f.provider.Network()
	key := []byte(n.String())
	for start := from; start <= to; {
		end := min(start+window-1, to)

		blocks, err := indexer.FetchBlocks(ctx, f.provider, start, end, f.concurrency)
		if err != nil {
			return err
		}
		for _, b := range blocks {
			value, err := message.EncodeBlock(n, b)
			if err != nil {
				return err
			}
			if err := f.publisher.Publish(ctx, queue.Msg{Topic: f.topic, Key: key, Value: value}); err != nil {
				return fmt.Errorf("publish block %d: %w", b.Number, err)
			}
		}
		f.sugar.Infow("published window", "network", n.String(), "from", start, "to", end)

		if end == to {
			break
		}
		start = end + 1
	}
	return nil
}
