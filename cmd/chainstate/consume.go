package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	confluentKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/ava-labs/chainstate-indexer/internal/indexer"
	"github.com/ava-labs/chainstate-indexer/pkg/chainstate"
	"github.com/ava-labs/chainstate-indexer/pkg/kafka"
	"github.com/ava-labs/chainstate-indexer/pkg/models"
	"github.com/ava-labs/chainstate-indexer/pkg/queue"
)

func consume(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	defer rt.close()

	cfg := rt.cfg
	rt.sugar.Infow("config",
		"command", "consume",
		"network", cfg.Network.String(),
		"kafkaBrokers", cfg.Kafka.BootstrapServers,
		"kafkaTopic", cfg.Kafka.Topic,
		"kafkaDLQTopic", cfg.Kafka.DLQTopic,
		"kafkaGroupID", cfg.Kafka.GroupID,
		"batchSize", cfg.Kafka.BatchSize,
		"flushInterval", cfg.Kafka.FlushInterval,
		"partitionSize", cfg.Indexer.PartitionSize,
		"snapshotBalances", cfg.SnapshotBalances,
		"clickhouseHosts", cfg.ClickHouse.Hosts,
		"clickhouseDatabase", cfg.ClickHouse.Database,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	topics := []kafka.TopicConfig{cfg.Kafka.TopicConfig()}
	if cfg.Kafka.DLQTopic != "" {
		dlq := cfg.Kafka.TopicConfig()
		dlq.Name = cfg.Kafka.DLQTopic
		topics = append(topics, dlq)
	}
	if err := rt.ensureTopics(ctx, topics...); err != nil {
		return rt.result("consume", err)
	}

	s, err := rt.openStores(ctx, true, cfg.SnapshotBalances)
	if err != nil {
		return rt.result("consume", err)
	}
	metricsErrCh := rt.serveMetrics(s.ready)

	// Blocks arrive through Kafka; the node is only read for balances.
	var (
		provider chainstate.Provider
		balances indexer.Sink[models.CacheEntry]
	)
	if cfg.SnapshotBalances {
		if provider, err = rt.dialProvider(ctx); err != nil {
			return rt.result("consume", err)
		}
		balances = s.balances
	}

	ix, err := indexer.New(rt.sugar, provider, s.blocks, s.transactions, balances, cfg.Indexer)
	if err != nil {
		return rt.result("consume", err)
	}

	opts := []kafka.Option{kafka.WithLogger(rt.sugar), kafka.WithMetrics(rt.metrics)}
	var pub *queue.KafkaPublisher
	if cfg.Kafka.DLQTopic != "" {
		if pub, err = rt.newPublisher(ctx); err != nil {
			return rt.result("consume", err)
		}
		opts = append(opts, kafka.WithDLQ(pub))
	}

	consumer, err := kafka.NewConsumer(cfg.Kafka, ix, opts...)
	if err != nil {
		return rt.result("consume", fmt.Errorf("failed to create consumer: %w", err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return consumer.Start(gctx)
	})
	watchMetrics(gctx, g, metricsErrCh)
	if pub != nil {
		watchPublisher(gctx, g, pub)
	}

	return rt.result("consume", g.Wait())
}

// ensureTopics creates the topics, or grows their partitions, when
// kafka-ensure-topic is set.
func (r *runtime) ensureTopics(ctx context.Context, topics ...kafka.TopicConfig) error {
	if !r.cfg.KafkaEnsureTopic {
		return nil
	}
	admin, err := confluentKafka.NewAdminClient(r.cfg.Kafka.AdminConfigMap())
	if err != nil {
		return fmt.Errorf("failed to create kafka admin client: %w", err)
	}
	defer admin.Close()

	for _, t := range topics {
		if err := kafka.EnsureTopic(ctx, admin, t, r.sugar); err != nil {
			return fmt.Errorf("failed to ensure kafka topic %q exists: %w", t.Name, err)
		}
	}
	return nil
}

// newPublisher creates a Kafka publisher closed with the runtime.
func (r *runtime) newPublisher(ctx context.Context) (*queue.KafkaPublisher, error) {
	pub, err := queue.NewKafkaPublisher(ctx, r.cfg.Kafka.ProducerConfigMap(), r.sugar)
	if err != nil {
		return nil, err
	}
	r.onClose(func() {
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeoutOnClose)
		defer cancel()
		pub.Close(ctx)
	})
	return pub, nil
}

// watchPublisher fails the group when the publisher reports a fatal error.
func watchPublisher(gctx context.Context, g *errgroup.Group, pub *queue.KafkaPublisher) {
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err, ok := <-pub.Errors():
			if ok && err != nil {
				return fmt.Errorf("kafka publisher failed: %w", err)
			}
			return nil
		}
	})
}
