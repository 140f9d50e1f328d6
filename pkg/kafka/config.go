package kafka

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// Default values for the block consumer
const (
	DefaultSessionTimeout  = 240 * time.Second
	DefaultMaxPollInterval = 3400 * time.Second
	DefaultFlushTimeout    = 15 * time.Second
	DefaultPollInterval    = 100 * time.Millisecond
	DefaultBatchSize       = 500
	DefaultFlushInterval   = 5 * time.Second
)

// ConsumerConfig holds the configuration for the block consumer
type ConsumerConfig struct {
	Topic            string `env:"KAFKA_TOPIC"             envDefault:"blocks"`                // Primary topic to consume from
	DLQTopic         string `env:"KAFKA_DLQ_TOPIC"         envDefault:"blocks-dlq"`            // Dead letter queue for undecodable messages, empty to fail instead
	BootstrapServers string `env:"KAFKA_BOOTSTRAP_SERVERS" envDefault:"localhost:9092"`        // Kafka broker addresses
	GroupID          string `env:"KAFKA_GROUP_ID"          envDefault:"chainstate-indexer"`    // Consumer group ID for offset management
	AutoOffsetReset  string `env:"KAFKA_AUTO_OFFSET_RESET" envDefault:"earliest"`              // Offset reset strategy: "earliest" or "latest"
	BatchSize        int    `env:"KAFKA_BATCH_SIZE"        envDefault:"500"`                   // Blocks buffered before a flush
	EnableLogs       bool   `env:"KAFKA_ENABLE_LOGS"       envDefault:"false"`                 // Enable librdkafka client logs
	Partitions       int    `env:"KAFKA_TOPIC_PARTITIONS"  envDefault:"1"`                     // Partitions used when the topic is created
	Replication      int    `env:"KAFKA_TOPIC_REPLICATION" envDefault:"1"`                     // Replication factor used when the topic is created
	ClientID         string `env:"KAFKA_CLIENT_ID"         envDefault:"chainstate-indexer"`    // Client ID reported to the brokers

	FlushInterval   *time.Duration `env:"KAFKA_FLUSH_INTERVAL"     envDefault:"5s"`    // Max age of a non-empty batch
	FlushTimeout    *time.Duration `env:"KAFKA_FLUSH_TIMEOUT"      envDefault:"15s"`   // Budget for the final flush on shutdown
	PollInterval    *time.Duration `env:"KAFKA_POLL_INTERVAL"      envDefault:"100ms"` // Poll timeout
	SessionTimeout  *time.Duration `env:"KAFKA_SESSION_TIMEOUT"    envDefault:"240s"`  // Session timeout for Kafka consumer
	MaxPollInterval *time.Duration `env:"KAFKA_MAX_POLL_INTERVAL"  envDefault:"3400s"` // Max poll interval for Kafka consumer

	SASL SASLConfig
}

// LoadConsumerConfig loads Kafka configuration from environment variables
func LoadConsumerConfig() (ConsumerConfig, error) {
	var cfg ConsumerConfig
	if err := env.Parse(&cfg); err != nil {
		return ConsumerConfig{}, fmt.Errorf("failed to parse consumer config: %w", err)
	}
	return cfg, nil
}

// WithDefaults returns a copy of the config with default values filled in for
// any nil pointer or zero sized fields. This method does not mutate the
// original config.
func (c ConsumerConfig) WithDefaults() ConsumerConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	c.FlushInterval = orDefault(c.FlushInterval, DefaultFlushInterval)
	c.FlushTimeout = orDefault(c.FlushTimeout, DefaultFlushTimeout)
	c.PollInterval = orDefault(c.PollInterval, DefaultPollInterval)
	c.SessionTimeout = orDefault(c.SessionTimeout, DefaultSessionTimeout)
	c.MaxPollInterval = orDefault(c.MaxPollInterval, DefaultMaxPollInterval)
	return c
}

func orDefault(d *time.Duration, def time.Duration) *time.Duration {
	if d != nil {
		return d
	}
	return &def
}

// Validate checks the fields the consumer cannot run without.
func (c ConsumerConfig) Validate() error {
	if c.Topic == "" {
		return errors.New("kafka topic is required")
	}
	if c.BootstrapServers == "" {
		return errors.New("kafka bootstrap servers are required")
	}
	if c.GroupID == "" {
		return errors.New("kafka group id is required")
	}
	if c.DLQTopic == c.Topic {
		return fmt.Errorf("dlq topic must differ from topic %q", c.Topic)
	}
	return nil
}

// TopicConfig returns the creation settings of the consumed topic.
func (c ConsumerConfig) TopicConfig() TopicConfig {
	return TopicConfig{Name: c.Topic, NumPartitions: c.Partitions, ReplicationFactor: c.Replication}
}

// ConsumerConfigMap returns the librdkafka settings of the block consumer.
// Offsets are committed explicitly after each flush.
func (c ConsumerConfig) ConsumerConfigMap() *kafka.ConfigMap {
	c = c.WithDefaults()
	cm := &kafka.ConfigMap{
		"bootstrap.servers":             c.BootstrapServers,
		"group.id":                      c.GroupID,
		"client.id":                     c.ClientID,
		"auto.offset.reset":             c.AutoOffsetReset,
		"enable.auto.commit":            false,
		"session.timeout.ms":            int(c.SessionTimeout.Milliseconds()),
		"max.poll.interval.ms":          int(c.MaxPollInterval.Milliseconds()),
		"partition.assignment.strategy": "roundrobin",
		"go.logs.channel.enable":        c.EnableLogs,
	}
	c.SASL.ApplyToConfigMap(cm)
	return cm
}

// ProducerConfigMap returns the librdkafka settings used for the DLQ and for
// block publishing.
func (c ConsumerConfig) ProducerConfigMap() *kafka.ConfigMap {
	cm := &kafka.ConfigMap{
		"bootstrap.servers":      c.BootstrapServers,
		"client.id":              c.ClientID,
		"acks":                   "all",
		"linger.ms":              5,
		"batch.size":             16384,
		"compression.type":       "lz4",
		"enable.idempotence":     true,
		"go.logs.channel.enable": c.EnableLogs,
	}
	c.SASL.ApplyToConfigMap(cm)
	return cm
}

// AdminConfigMap returns the librdkafka settings of the admin client.
func (c ConsumerConfig) AdminConfigMap() *kafka.ConfigMap {
	cm := &kafka.ConfigMap{
		"bootstrap.servers": c.BootstrapServers,
		"client.id":         c.ClientID,
	}
	c.SASL.ApplyToConfigMap(cm)
	return cm
}
