package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ava-labs/chainstate-indexer/internal/indexer"
	"github.com/ava-labs/chainstate-indexer/pkg/chainstate"
	"github.com/ava-labs/chainstate-indexer/pkg/checkpointer"
	"github.com/ava-labs/chainstate-indexer/pkg/clickhouse"
	"github.com/ava-labs/chainstate-indexer/pkg/kafka"
	"github.com/ava-labs/chainstate-indexer/pkg/metrics"
	"github.com/ava-labs/chainstate-indexer/pkg/redis"
	"github.com/ava-labs/chainstate-indexer/pkg/storage"
)

// Config holds all configuration for a chainstate command
type Config struct {
	// Application settings
	Verbose  bool
	LogLevel string

	// Chain settings
	Network chainstate.Network
	RPCURL  string
	From    uint64
	FromSet bool
	To      uint64

	// Indexing settings
	Indexer          indexer.Config
	SnapshotBalances bool

	// Checkpoint settings
	Checkpoints bool
	Checkpoint  checkpointer.Config

	// Storage settings
	ClickHouse          clickhouse.Config
	Redis               redis.Config
	Connector           storage.ConnectorConfig
	StorageReadyTimeout time.Duration

	// Kafka settings
	Kafka            kafka.ConsumerConfig
	KafkaEnsureTopic bool

	// Metrics settings
	MetricsHost   string
	MetricsPort   int
	Environment   string
	Region        string
	CloudProvider string
}

// MetricsAddr returns the formatted metrics address
func (c *Config) MetricsAddr() string {
	return fmt.Sprintf("%s:%d", c.MetricsHost, c.MetricsPort)
}

// MetricsLabels returns the constant labels of every metric.
func (c *Config) MetricsLabels() metrics.Labels {
	return metrics.Labels{
		EVMChainID:    c.Network.ChainID,
		Chain:         c.Network.Chain,
		Network:       c.Network.Name,
		Environment:   c.Environment,
		Region:        c.Region,
		CloudProvider: c.CloudProvider,
	}
}

// buildConfig builds a Config from the environment, then applies CLI flags.
// Flags a command does not define keep their environment values.
func buildConfig(c *cli.Context) (*Config, error) {
	chCfg, err := clickhouse.Load()
	if err != nil {
		return nil, err
	}
	if hosts := splitHosts(c.StringSlice("clickhouse-hosts")); len(hosts) > 0 {
		chCfg.Hosts = hosts
	}
	if c.IsSet("clickhouse-database") {
		chCfg.Database = c.String("clickhouse-database")
	}

	redisCfg, err := redis.Load()
	if err != nil {
		return nil, err
	}
	if c.IsSet("redis-url") {
		redisCfg.URL = c.String("redis-url")
	}

	kafkaCfg, err := kafka.LoadConsumerConfig()
	if err != nil {
		return nil, err
	}
	if c.IsSet("kafka-brokers") {
		kafkaCfg.BootstrapServers = c.String("kafka-brokers")
	}
	if c.IsSet("kafka-topic") {
		kafkaCfg.Topic = c.String("kafka-topic")
	}

	checkpointCfg := checkpointer.DefaultConfig()
	if c.IsSet("checkpoint-table-name") {
		checkpointCfg.Table = c.String("checkpoint-table-name")
	}
	if c.IsSet("checkpoint-write-timeout") {
		checkpointCfg.WriteTimeout = c.Duration("checkpoint-write-timeout")
	}

	cfg := &Config{
		Verbose:  c.Bool("verbose"),
		LogLevel: c.String("log-level"),
		Network: chainstate.Network{
			Chain:   strings.ToUpper(c.String("chain")),
			Name:    c.String("network"),
			ChainID: c.Uint64("evm-chain-id"),
		},
		RPCURL:  c.String("rpc-url"),
		From:    c.Uint64("from"),
		FromSet: c.IsSet("from"),
		To:      c.Uint64("to"),
		Indexer: indexer.Config{
			PartitionSize:      c.Int("partition-size"),
			WindowSize:         c.Uint64("window-size"),
			FetchConcurrency:   c.Int("fetch-concurrency"),
			BalanceConcurrency: c.Int64("balance-concurrency"),
		},
		SnapshotBalances: c.Bool("snapshot-balances"),
		Checkpoints:      c.Bool("checkpoint"),
		Checkpoint:       checkpointCfg,
		ClickHouse:       chCfg,
		Redis:            redisCfg,
		Connector: storage.ConnectorConfig{
			MaxDelay:   c.Duration("storage-max-delay"),
			MaxRetries: c.Uint64("storage-max-retries"),
		},
		StorageReadyTimeout: c.Duration("storage-ready-timeout"),
		Kafka:               kafkaCfg,
		KafkaEnsureTopic:    c.Bool("kafka-ensure-topic"),
		MetricsHost:         c.String("metrics-host"),
		MetricsPort:         c.Int("metrics-port"),
		Environment:         c.String("environment"),
		Region:              c.String("region"),
		CloudProvider:       c.String("cloud-provider"),
	}

	if err := cfg.validate(c.Command.Name); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks the settings the named command depends on.
func (c *Config) validate(command string) error {
	if c.Network.Chain == "" || c.Network.Name == "" {
		return errors.New("chain and network are required")
	}
	if c.To != 0 && c.From > c.To {
		return fmt.Errorf("--from %d is after --to %d", c.From, c.To)
	}

	switch command {
	case "backfill", "consume":
		if c.Indexer.PartitionSize <= 0 {
			return fmt.Errorf("partition-size must be > 0, got %d", c.Indexer.PartitionSize)
		}
		if c.Indexer.FetchConcurrency <= 0 || c.Indexer.BalanceConcurrency <= 0 {
			return errors.New("fetch-concurrency and balance-concurrency must be > 0")
		}
		if c.SnapshotBalances && c.RPCURL == "" {
			return errors.New("snapshot-balances requires rpc-url")
		}
		if len(c.ClickHouse.Hosts) == 0 {
			return errors.New("at least one clickhouse host is required")
		}
	case "fetch":
		if c.Indexer.FetchConcurrency <= 0 {
			return errors.New("fetch-concurrency must be > 0")
		}
	}

	if command == "consume" || command == "fetch" {
		if err := c.Kafka.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// splitHosts flattens comma separated entries.
func splitHosts(hosts []string) []string {
	var out []string
	for _, h := range hosts {
		for _, part := range strings.Split(h, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
