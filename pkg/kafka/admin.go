package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

// metadataTimeout is the timeout for Kafka metadata operations.
const metadataTimeout = 10 * time.Second

// ErrTooManyPartitions is returned by EnsureTopic when the topic already has
// more partitions than configured. Kafka cannot decrease the count.
var ErrTooManyPartitions = errors.New("topic has more partitions than configured")

// Admin is the subset of *kafka.AdminClient used to manage topics.
type Admin interface {
	GetMetadata(topic *string, allTopics bool, timeoutMs int) (*kafka.Metadata, error)
	CreateTopics(ctx context.Context, topics []kafka.TopicSpecification, options ...kafka.CreateTopicsAdminOption) ([]kafka.TopicResult, error)
	CreatePartitions(ctx context.Context, partitions []kafka.PartitionsSpecification, options ...kafka.CreatePartitionsAdminOption) ([]kafka.TopicResult, error)
}

// TopicConfig holds Kafka topic configuration options for creation or validation.
type TopicConfig struct {
	Name              string
	NumPartitions     int
	ReplicationFactor int
}

// Validate checks if the TopicConfig is valid for topic creation.
func (tc TopicConfig) Validate() error {
	if tc.Name == "" {
		return errors.New("topic name cannot be empty")
	}
	if tc.NumPartitions <= 0 {
		return fmt.Errorf("number of partitions must be > 0, got %d", tc.NumPartitions)
	}
	if tc.ReplicationFactor <= 0 {
		return fmt.Errorf("replication factor must be > 0, got %d", tc.ReplicationFactor)
	}
	return nil
}

// TopicExists returns the topic metadata, or nil if the topic does not exist.
func TopicExists(admin Admin, topic string) (*kafka.TopicMetadata, error) {
	metadata, err := admin.GetMetadata(&topic, false, int(metadataTimeout.Milliseconds()))
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata for topic %q: %w", topic, err)
	}

	tm, ok := metadata.Topics[topic]
	if !ok || tm.Error.Code() == kafka.ErrUnknownTopicOrPart {
		return nil, nil
	}
	if tm.Error.Code() != kafka.ErrNoError {
		return nil, fmt.Errorf("topic %q has error: %w", topic, tm.Error)
	}
	return &tm, nil
}

// EnsureTopic creates the topic if it is missing and grows its partition
// count if it has fewer partitions than configured. A differing replication
// factor is only logged.
func EnsureTopic(ctx context.Context, admin Admin, cfg TopicConfig, log *zap.SugaredLogger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid topic config: %w", err)
	}

	tm, err := TopicExists(admin, cfg.Name)
	if err != nil {
		return fmt.Errorf("failed to check topic existence: %w", err)
	}
	if tm == nil {
		return createTopic(ctx, admin, cfg, log)
	}

	current := len(tm.Partitions)
	if rf := replicationFactor(tm); rf != cfg.ReplicationFactor {
		log.Warnw("topic replication factor differs from config",
			"topic", cfg.Name,
			"current", rf,
			"desired", cfg.ReplicationFactor,
		)
	}

	switch {
	case current < cfg.NumPartitions:
		log.Infow("increasing topic partitions", "topic", cfg.Name, "from", current, "to", cfg.NumPartitions)
		return increasePartitions(ctx, admin, cfg.Name, cfg.NumPartitions)
	case current > cfg.NumPartitions:
		return fmt.Errorf("%w: topic %q has %d, want %d", ErrTooManyPartitions, cfg.Name, current, cfg.NumPartitions)
	default:
		log.Debugw("topic exists", "topic", cfg.Name, "partitions", current)
		return nil
	}
}

func createTopic(ctx context.Context, admin Admin, cfg TopicConfig, log *zap.SugaredLogger) error {
	results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{{
		Topic:             cfg.Name,
		NumPartitions:     cfg.NumPartitions,
		ReplicationFactor: cfg.ReplicationFactor,
	}})
	if err != nil {
		return fmt.Errorf("failed to create topic %q: %w", cfg.Name, err)
	}

	for _, result := range results {
		switch result.Error.Code() {
		case kafka.ErrNoError:
			log.Infow("created topic",
				"topic", result.Topic,
				"partitions", cfg.NumPartitions,
				"replicationFactor", cfg.ReplicationFactor,
			)
		case kafka.ErrTopicAlreadyExists:
			log.Infow("topic already exists", "topic", result.Topic)
		default:
			return fmt.Errorf("failed to create topic %q: %w", result.Topic, result.Error)
		}
	}
	return nil
}

func increasePartitions(ctx context.Context, admin Admin, topic string, count int) error {
	results, err := admin.CreatePartitions(ctx, []kafka.PartitionsSpecification{{
		Topic:      topic,
		IncreaseTo: count,
	}})
	if err != nil {
		return fmt.Errorf("failed to increase partitions for topic %q: %w", topic, err)
	}
	for _, result := range results {
		if result.Error.Code() != kafka.ErrNoError {
			return fmt.Errorf("failed to increase partitions for topic %q: %w", result.Topic, result.Error)
		}
	}
	return nil
}

func replicationFactor(tm *kafka.TopicMetadata) int {
	if len(tm.Partitions) == 0 {
		return 0
	}
	return len(tm.Partitions[0].Replicas)
}
