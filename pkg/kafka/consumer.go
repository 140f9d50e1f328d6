package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"

	"github.com/ava-labs/chainstate-indexer/pkg/kafka/message"
	"github.com/ava-labs/chainstate-indexer/pkg/kafka/processor"
	"github.com/ava-labs/chainstate-indexer/pkg/metrics"
	"github.com/ava-labs/chainstate-indexer/pkg/queue"
)

// DLQ message headers.
const (
	HeaderError     = "x-error"
	HeaderTopic     = "x-original-topic"
	HeaderPartition = "x-original-partition"
	HeaderOffset    = "x-original-offset"
)

// ErrNoDLQ is returned when a message cannot be decoded and no dead letter
// queue is configured.
var ErrNoDLQ = errors.New("undecodable message and no dlq configured")

// Source is the subset of *kafka.Consumer the block consumer reads from.
type Source interface {
	SubscribeTopics(topics []string, rebalanceCb kafka.RebalanceCb) error
	Poll(timeoutMs int) kafka.Event
	CommitOffsets(offsets []kafka.TopicPartition) ([]kafka.TopicPartition, error)
	Close() error
}

type partitionKey struct {
	topic     string
	partition int32
}

// Consumer buffers decoded block messages and hands them to a Processor in
// batches. A batch is flushed when it reaches BatchSize or when its oldest
// message is older than FlushInterval. Offsets are committed only after the
// processor succeeds, so delivery is at-least-once.
//
// Messages that fail to decode are published to the DLQ and their offsets
// are committed with the next flush. Processing errors stop the consumer;
// the uncommitted batch is redelivered on restart.
type Consumer struct {
	source    Source
	processor processor.Processor
	dlq       queue.Publisher
	cfg       ConsumerConfig
	log       *zap.SugaredLogger
	metrics   *metrics.Metrics

	batch   []*message.BlockMessage
	offsets map[partitionKey]kafka.TopicPartition
	first   time.Time // arrival of the oldest buffered message
	now     func() time.Time

	// ctx of the running Start call, used by flushes triggered from the
	// rebalance callback. Poll runs the callback on the Start goroutine.
	runCtx context.Context
}

// Option configures a Consumer.
type Option func(*Consumer)

// WithLogger sets the logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *Consumer) {
		c.log = log
	}
}

// WithMetrics enables ingest metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Consumer) {
		c.metrics = m
	}
}

// WithDLQ routes undecodable messages to cfg.DLQTopic through p.
func WithDLQ(p queue.Publisher) Option {
	return func(c *Consumer) {
		c.dlq = p
	}
}

// NewConsumer creates a Kafka consumer for cfg.Topic.
func NewConsumer(cfg ConsumerConfig, p processor.Processor, opts ...Option) (*Consumer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	kc, err := kafka.NewConsumer(cfg.ConsumerConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	return NewConsumerFromSource(kc, cfg, p, opts...), nil
}

// NewConsumerFromSource creates a Consumer reading from src.
func NewConsumerFromSource(src Source, cfg ConsumerConfig, p processor.Processor, opts ...Option) *Consumer {
	c := &Consumer{
		source:    src,
		processor: p,
		cfg:       cfg.WithDefaults(),
		log:       zap.NewNop().Sugar(),
		offsets:   make(map[partitionKey]kafka.TopicPartition),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start subscribes to the topic and consumes until ctx is done or a batch
// fails. On shutdown the pending batch gets one last flush bounded by
// FlushTimeout. Start closes the source before returning.
func (c *Consumer) Start(ctx context.Context) (err error) {
	c.runCtx = ctx
	defer func() {
		if closeErr := c.source.Close(); closeErr != nil {
			c.log.Errorw("failed to close consumer", "error", closeErr)
		}
		c.log.Info("consumer shutdown complete")
	}()

	if err := c.source.SubscribeTopics([]string{c.cfg.Topic}, c.rebalance); err != nil {
		return fmt.Errorf("failed to subscribe to topics: %w", err)
	}
	c.log.Infow("consuming blocks",
		"topic", c.cfg.Topic,
		"batchSize", c.cfg.BatchSize,
		"flushInterval", *c.cfg.FlushInterval,
	)

	pollMs := int(c.cfg.PollInterval.Milliseconds())
	for {
		if ctx.Err() != nil {
			return c.shutdown(ctx)
		}

		switch ev := c.source.Poll(pollMs).(type) {
		case *kafka.Message:
			if err := c.handle(ctx, ev); err != nil {
				return err
			}
		case kafka.Error:
			if ev.IsFatal() {
				return fmt.Errorf("fatal kafka error: %w", ev)
			}
			c.log.Warnw("kafka error (non-fatal)", "error", ev)
		case nil:
		default:
			c.log.Debugw("ignoring kafka event", "event", ev)
		}

		if c.due() {
			if err := c.flush(ctx); err != nil {
				return err
			}
		}
	}
}

func (c *Consumer) shutdown(ctx context.Context) error {
	c.log.Info("context done, flushing pending batch")
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), *c.cfg.FlushTimeout)
	defer cancel()
	if err := c.flush(flushCtx); err != nil {
		return fmt.Errorf("final flush: %w", err)
	}
	return ctx.Err()
}

// handle decodes msg into the batch, or dead-letters it.
func (c *Consumer) handle(ctx context.Context, msg *kafka.Message) error {
	if msg.TopicPartition.Error != nil {
		c.log.Warnw("message carries a partition error", "error", msg.TopicPartition.Error)
		return nil
	}

	block, err := message.DecodeBlock(msg.Value)
	c.metrics.RecordIngestMessage(err)
	if err != nil {
		if err := c.publishToDLQ(ctx, msg, err); err != nil {
			return err
		}
	} else {
		c.batch = append(c.batch, block)
	}

	if len(c.offsets) == 0 {
		c.first = c.now()
	}
	c.track(msg.TopicPartition)

	if len(c.batch) >= c.cfg.BatchSize {
		return c.flush(ctx)
	}
	return nil
}

// track records the next offset to commit for tp's partition.
func (c *Consumer) track(tp kafka.TopicPartition) {
	key := partitionKey{partition: tp.Partition}
	if tp.Topic != nil {
		key.topic = *tp.Topic
	}
	next := tp
	next.Offset = tp.Offset + 1
	next.Error = nil
	if cur, ok := c.offsets[key]; ok && cur.Offset >= next.Offset {
		return
	}
	c.offsets[key] = next
}

func (c *Consumer) due() bool {
	return len(c.offsets) > 0 && c.now().Sub(c.first) >= *c.cfg.FlushInterval
}

// flush processes the buffered batch and commits its offsets. On failure the
// batch stays buffered and nothing is committed.
func (c *Consumer) flush(ctx context.Context) error {
	if len(c.offsets) == 0 {
		return nil
	}

	size := len(c.batch)
	if size > 0 {
		if err := c.processor.Process(ctx, c.batch); err != nil {
			c.metrics.RecordIngestFlush(size, err)
			return fmt.Errorf("failed to process batch of %d blocks: %w", size, err)
		}
	}

	offsets := make([]kafka.TopicPartition, 0, len(c.offsets))
	for _, tp := range c.offsets {
		offsets = append(offsets, tp)
	}
	if _, err := c.source.CommitOffsets(offsets); err != nil {
		c.metrics.RecordIngestFlush(size, err)
		return fmt.Errorf("failed to commit offsets: %w", err)
	}
	c.metrics.RecordIngestFlush(size, nil)
	c.log.Debugw("flushed batch", "blocks", size, "partitions", len(offsets))

	c.batch = nil
	clear(c.offsets)
	return nil
}

// publishToDLQ sends an undecodable message to the dead letter queue.
func (c *Consumer) publishToDLQ(ctx context.Context, msg *kafka.Message, cause error) error {
	if c.dlq == nil || c.cfg.DLQTopic == "" {
		return fmt.Errorf("%w: %w", ErrNoDLQ, cause)
	}

	topic := ""
	if msg.TopicPartition.Topic != nil {
		topic = *msg.TopicPartition.Topic
	}
	err := c.dlq.Publish(ctx, queue.Msg{
		Topic: c.cfg.DLQTopic,
		Key:   msg.Key,
		Value: msg.Value,
		Headers: map[string]string{
			HeaderError:     cause.Error(),
			HeaderTopic:     topic,
			HeaderPartition: strconv.Itoa(int(msg.TopicPartition.Partition)),
			HeaderOffset:    msg.TopicPartition.Offset.String(),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish to DLQ: %w", err)
	}

	c.log.Warnw("published undecodable message to DLQ",
		"originalTopic", topic,
		"originalPartition", msg.TopicPartition.Partition,
		"originalOffset", msg.TopicPartition.Offset,
		"dlqTopic", c.cfg.DLQTopic,
		"error", cause,
	)
	return nil
}

// rebalance flushes the pending batch before partitions are revoked so their
// offsets are committed while this member still owns them.
func (c *Consumer) rebalance(kc *kafka.Consumer, ev kafka.Event) error {
	switch e := ev.(type) {
	case kafka.AssignedPartitions:
		c.log.Infow("partitions assigned", "count", len(e.Partitions), "partitions", e.Partitions)
	case kafka.RevokedPartitions:
		c.log.Infow("partitions revoked", "count", len(e.Partitions), "partitions", e.Partitions)
		if kc != nil && kc.AssignmentLost() {
			c.log.Warn("assignment lost involuntarily, dropping pending batch")
			c.batch = nil
			clear(c.offsets)
			return nil
		}
		ctx := c.runCtx
		if ctx == nil || ctx.Err() != nil {
			ctx = context.Background()
		}
		if err := c.flush(ctx); err != nil {
			c.log.Errorw("failed to flush before revocation", "error", err)
			c.batch = nil
			clear(c.offsets)
		}
	default:
		c.log.Warnw("unexpected rebalance event", "event", ev)
	}
	return nil
}
