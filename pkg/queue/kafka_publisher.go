package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

const (
	flushTimeoutMs     = 10000
	queueFullRetryWait = time.Second
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("publisher closed")

// producer is the subset of *kafka.Producer used by KafkaPublisher.
type producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Events() chan kafka.Event
	Logs() chan kafka.LogEvent
	Flush(timeoutMs int) int
	Close()
}

// KafkaPublisher is a synchronous Kafka implementation of Publisher.
//
// Publish blocks until a delivery confirmation is received from Kafka.
// Background goroutines process producer events and, when enabled, client
// logs. Close MUST be called to stop them and flush in-flight messages.
type KafkaPublisher struct {
	producer   producer
	log        *zap.SugaredLogger
	errCh      chan error
	eventsDone chan struct{}
	logsDone   chan struct{}
	closedCh   chan struct{}
	once       sync.Once
}

// NewKafkaPublisher creates a Kafka-backed Publisher.
//
// The provided context controls the lifetime of background goroutines.
func NewKafkaPublisher(ctx context.Context, conf *kafka.ConfigMap, log *zap.SugaredLogger) (*KafkaPublisher, error) {
	logsEnabled, err := conf.Get("go.logs.channel.enable", false)
	if err != nil {
		return nil, fmt.Errorf("failed to get go.logs.channel.enable: %w", err)
	}

	p, err := kafka.NewProducer(conf)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return newKafkaPublisher(ctx, p, logsEnabled.(bool), log), nil
}

func newKafkaPublisher(ctx context.Context, p producer, logs bool, log *zap.SugaredLogger) *KafkaPublisher {
	q := &KafkaPublisher{
		producer:   p,
		log:        log,
		eventsDone: make(chan struct{}),
		logsDone:   make(chan struct{}),
		errCh:      make(chan error, 1),
		closedCh:   make(chan struct{}),
	}

	if logs {
		go q.printKafkaLogs(ctx)
	} else {
		close(q.logsDone)
	}
	go q.monitorProducerEvents(ctx)

	return q
}

// Publish synchronously publishes a message to Kafka.
//
// If the context is canceled before delivery confirmation, Publish returns
// ctx.Err(). The message MAY still be delivered after Publish returns, so
// consumers must tolerate duplicates.
func (q *KafkaPublisher) Publish(ctx context.Context, msg Msg) error {
	select {
	case <-q.closedCh:
		return ErrClosed
	default:
	}

	// Buffered so a late receipt never blocks the producer.
	deliveryCh := make(chan kafka.Event, 1)

	kMsg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &msg.Topic,
			Partition: kafka.PartitionAny,
		},
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers(msg.Headers),
	}

	if err := q.produceWithRetry(ctx, kMsg, deliveryCh); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case e := <-deliveryCh:
		return handleDeliveryEvent(q.log, kMsg, e)
	}
}

// Close stops background goroutines and flushes all pending messages.
//
// If the context is canceled, Close aborts the flush and closes the producer.
// Calling Close multiple times does nothing.
func (q *KafkaPublisher) Close(ctx context.Context) {
	q.once.Do(func() {
		q.log.Info("closing kafka publisher")
		defer close(q.errCh)

		close(q.closedCh)
		<-q.eventsDone
		<-q.logsDone

		for q.producer.Flush(flushTimeoutMs) > 0 {
			q.log.Warn("producer queue not flushed, retrying")
			if ctx.Err() != nil {
				q.log.Warn("context done, stopping producer flush")
				break
			}
		}

		q.producer.Close()
		q.log.Info("kafka publisher closed")
	})
}

// Errors returns a channel that receives at most one fatal error. The channel
// is closed when the publisher shuts down. After an error the publisher is no
// longer usable.
func (q *KafkaPublisher) Errors() <-chan error {
	return q.errCh
}

func (q *KafkaPublisher) printKafkaLogs(ctx context.Context) {
	defer close(q.logsDone)
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closedCh:
			return
		case log, ok := <-q.producer.Logs():
			if !ok {
				return
			}
			q.log.Debugw("kafka producer log", "level", log.Level, "tag", log.Tag, "message", log.Message)
		}
	}
}

// produceWithRetry enqueues msg, retrying while the local producer queue is
// full. Any other produce error is returned.
func (q *KafkaPublisher) produceWithRetry(ctx context.Context, msg *kafka.Message, deliveryCh chan kafka.Event) error {
	for {
		err := q.producer.Produce(msg, deliveryCh)
		if err == nil {
			return nil
		}

		var kafkaErr kafka.Error
		if !errors.As(err, &kafkaErr) {
			return fmt.Errorf("failed to produce: %w", err)
		}

		switch kafkaErr.Code() {
		case kafka.ErrQueueFull:
			q.log.Warnw("producer queue full, retrying", "delay", queueFullRetryWait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(queueFullRetryWait):
			}
		case kafka.ErrBrokerNotAvailable:
			return fmt.Errorf("broker not available: %w", err)
		case kafka.ErrInvalidMsgSize:
			return fmt.Errorf("invalid message size: %w", err)
		case kafka.ErrUnknownTopicOrPart:
			return fmt.Errorf("unknown topic or partition: %w", err)
		default:
			return fmt.Errorf("failed to produce: %w", err)
		}
	}
}

func (q *KafkaPublisher) monitorProducerEvents(ctx context.Context) {
	defer close(q.eventsDone)
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closedCh:
			return
		case ev, ok := <-q.producer.Events():
			if !ok {
				q.fail(errors.New("kafka producer event channel closed"))
				return
			}

			switch e := ev.(type) {
			case *kafka.Message:
				// Receipts go to the per-message channel; anything here was
				// produced without one.
				if e.TopicPartition.Error != nil {
					q.log.Errorw("failed to deliver message", "topicPartition", e.TopicPartition)
				}
			case kafka.Error:
				if e.IsFatal() || e.Code() == kafka.ErrAllBrokersDown {
					q.fail(fmt.Errorf("fatal kafka producer error %#x: %w", e.Code(), e))
					return
				}
				q.log.Warnw("ignoring kafka producer error", "code", e.Code(), "error", e)
			default:
				q.log.Debugw("ignoring kafka producer event", "event", e)
			}
		}
	}
}

func (q *KafkaPublisher) fail(err error) {
	select {
	case q.errCh <- err:
	default:
		q.log.Warnw("error channel is full", "error", err)
	}
}

func handleDeliveryEvent(log *zap.SugaredLogger, msg *kafka.Message, ev kafka.Event) error {
	switch e := ev.(type) {
	case *kafka.Message:
		if err := e.TopicPartition.Error; err != nil {
			return fmt.Errorf("delivery failed: %w", err)
		}
		log.Debugw("delivered message",
			"topic", *msg.TopicPartition.Topic,
			"partition", e.TopicPartition.Partition,
			"offset", e.TopicPartition.Offset,
		)
		return nil
	case kafka.Error:
		return fmt.Errorf("kafka error: code=%d fatal=%t: %w", e.Code(), e.IsFatal(), e)
	default:
		return fmt.Errorf("unexpected delivery event: %T", ev)
	}
}

// headers converts h to Kafka headers in key order.
func headers(h map[string]string) []kafka.Header {
	if len(h) == 0 {
		return nil
	}
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]kafka.Header, 0, len(keys))
	for _, k := range keys {
		out = append(out, kafka.Header{Key: k, Value: []byte(h[k])})
	}
	return out
}
