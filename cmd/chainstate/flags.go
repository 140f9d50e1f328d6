package main

import (
	"time"

	"github.com/urfave/cli/v2"
)

// commonFlags are shared by every command.
func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable verbose logging",
			EnvVars: []string{"VERBOSE"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error); overrides --verbose",
			EnvVars: []string{"LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "metrics-host",
			Usage:   "Host for Prometheus metrics server (empty for all interfaces)",
			EnvVars: []string{"METRICS_HOST"},
			Value:   "",
		},
		&cli.IntFlag{
			Name:    "metrics-port",
			Aliases: []string{"m"},
			Usage:   "Port for Prometheus metrics server",
			EnvVars: []string{"METRICS_PORT"},
			Value:   9090,
		},
		&cli.StringFlag{
			Name:    "environment",
			Usage:   "Deployment environment label (e.g. production, staging)",
			EnvVars: []string{"ENVIRONMENT"},
		},
		&cli.StringFlag{
			Name:    "region",
			Usage:   "Cloud region label",
			EnvVars: []string{"REGION"},
		},
		&cli.StringFlag{
			Name:    "cloud-provider",
			Usage:   "Cloud provider label",
			EnvVars: []string{"CLOUD_PROVIDER"},
		},
		&cli.DurationFlag{
			Name:    "storage-max-delay",
			Usage:   "Maximum delay between storage dial attempts",
			EnvVars: []string{"STORAGE_MAX_DELAY"},
			Value:   30 * time.Second,
		},
		&cli.Uint64Flag{
			Name:    "storage-max-retries",
			Usage:   "Storage dial retries before giving up (0 retries until shutdown)",
			EnvVars: []string{"STORAGE_MAX_RETRIES"},
			Value:   10,
		},
		&cli.DurationFlag{
			Name:    "storage-ready-timeout",
			Usage:   "How long to wait for storage before giving up",
			EnvVars: []string{"STORAGE_READY_TIMEOUT"},
			Value:   2 * time.Minute,
		},
	}
}

// chainFlags select the network and its RPC endpoint.
func chainFlags(rpcRequired bool) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "chain",
			Usage:    "Chain ticker (e.g. ETH, MATIC)",
			EnvVars:  []string{"CHAIN"},
			Required: true,
		},
		&cli.StringFlag{
			Name:    "network",
			Usage:   "Network name (e.g. mainnet, regtest)",
			EnvVars: []string{"NETWORK"},
			Value:   "mainnet",
		},
		&cli.Uint64Flag{
			Name:    "evm-chain-id",
			Aliases: []string{"C"},
			Usage:   "Expected EVM chain ID; verified against the node when set",
			EnvVars: []string{"EVM_CHAIN_ID"},
		},
		&cli.StringFlag{
			Name:     "rpc-url",
			Aliases:  []string{"r"},
			Usage:    "JSON-RPC URL of the node",
			EnvVars:  []string{"RPC_URL"},
			Required: rpcRequired,
		},
	}
}

// storageFlags override the CLICKHOUSE_* and REDIS_* environment.
func storageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "clickhouse-hosts",
			Usage:   "ClickHouse hosts (overrides CLICKHOUSE_HOSTS)",
			EnvVars: []string{"CLICKHOUSE_HOSTS"},
		},
		&cli.StringFlag{
			Name:    "clickhouse-database",
			Usage:   "ClickHouse database (overrides CLICKHOUSE_DATABASE)",
			EnvVars: []string{"CLICKHOUSE_DATABASE"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Redis URL of the result cache (overrides REDIS_URL)",
			EnvVars: []string{"REDIS_URL"},
		},
	}
}

// indexingFlags control batching and fan-out.
func indexingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:    "partition-size",
			Usage:   "Rows per bulk-write request",
			EnvVars: []string{"PARTITION_SIZE"},
			Value:   1000,
		},
		&cli.Uint64Flag{
			Name:    "window-size",
			Usage:   "Blocks fetched and imported together",
			EnvVars: []string{"WINDOW_SIZE"},
			Value:   100,
		},
		&cli.IntFlag{
			Name:    "fetch-concurrency",
			Aliases: []string{"c"},
			Usage:   "Concurrent block fetches",
			EnvVars: []string{"FETCH_CONCURRENCY"},
			Value:   8,
		},
		&cli.Int64Flag{
			Name:    "balance-concurrency",
			Usage:   "Concurrent balance reads for snapshots",
			EnvVars: []string{"BALANCE_CONCURRENCY"},
			Value:   8,
		},
		&cli.BoolFlag{
			Name:    "snapshot-balances",
			Usage:   "Write balances of touched addresses to the Redis result cache",
			EnvVars: []string{"SNAPSHOT_BALANCES"},
		},
	}
}

// kafkaFlags override the KAFKA_* environment.
func kafkaFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Kafka bootstrap servers (overrides KAFKA_BOOTSTRAP_SERVERS)",
			EnvVars: []string{"KAFKA_BOOTSTRAP_SERVERS"},
		},
		&cli.StringFlag{
			Name:    "kafka-topic",
			Usage:   "Block topic (overrides KAFKA_TOPIC)",
			EnvVars: []string{"KAFKA_TOPIC"},
		},
		&cli.BoolFlag{
			Name:    "kafka-ensure-topic",
			Usage:   "Create the topic, or grow its partitions, before starting",
			EnvVars: []string{"KAFKA_ENSURE_TOPIC"},
			Value:   true,
		},
	}
}

func backfillFlags() []cli.Flag {
	return concat(commonFlags(), chainFlags(true), storageFlags(), indexingFlags(), []cli.Flag{
		&cli.Uint64Flag{
			Name:    "from",
			Aliases: []string{"s"},
			Usage:   "First block to import. If not specified, resumes from the checkpoint",
			EnvVars: []string{"START_HEIGHT"},
		},
		&cli.Uint64Flag{
			Name:    "to",
			Aliases: []string{"e"},
			Usage:   "Last block to import. If not specified, imports up to the latest block",
			EnvVars: []string{"END_HEIGHT"},
		},
		&cli.BoolFlag{
			Name:    "checkpoint",
			Usage:   "Save the next block to import after every window",
			EnvVars: []string{"CHECKPOINT"},
			Value:   true,
		},
		&cli.StringFlag{
			Name:    "checkpoint-table-name",
			Usage:   "The ClickHouse table holding checkpoints",
			EnvVars: []string{"CHECKPOINT_TABLE_NAME"},
			Value:   "checkpoints",
		},
		&cli.DurationFlag{
			Name:    "checkpoint-write-timeout",
			Usage:   "Timeout of one checkpoint write",
			EnvVars: []string{"CHECKPOINT_WRITE_TIMEOUT"},
			Value:   time.Second,
		},
	})
}

func consumeFlags() []cli.Flag {
	return concat(commonFlags(), chainFlags(false), storageFlags(), indexingFlags(), kafkaFlags())
}

func fetchFlags() []cli.Flag {
	return concat(commonFlags(), chainFlags(true), kafkaFlags(), []cli.Flag{
		&cli.Uint64Flag{
			Name:     "from",
			Aliases:  []string{"s"},
			Usage:    "First block to publish",
			EnvVars:  []string{"START_HEIGHT"},
			Required: true,
		},
		&cli.Uint64Flag{
			Name:    "to",
			Aliases: []string{"e"},
			Usage:   "Last block to publish. If not specified, publishes up to the latest block",
			EnvVars: []string{"END_HEIGHT"},
		},
		&cli.Uint64Flag{
			Name:    "window-size",
			Usage:   "Blocks fetched together",
			EnvVars: []string{"WINDOW_SIZE"},
			Value:   100,
		},
		&cli.IntFlag{
			Name:    "fetch-concurrency",
			Aliases: []string{"c"},
			Usage:   "Concurrent block fetches",
			EnvVars: []string{"FETCH_CONCURRENCY"},
			Value:   8,
		},
	})
}

func balanceFlags() []cli.Flag {
	return concat(commonFlags(), chainFlags(true), storageFlags())
}

func concat(groups ...[]cli.Flag) []cli.Flag {
	var out []cli.Flag
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
