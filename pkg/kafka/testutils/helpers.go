package testutils

import (
	"testing"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ava-labs/chainstate-indexer/pkg/chainstate"
	"github.com/ava-labs/chainstate-indexer/pkg/kafka/message"
)

// NewTestLogger creates a test logger that writes to testing.T
func NewTestLogger(t *testing.T) *zap.SugaredLogger {
	return zaptest.NewLogger(t).Sugar()
}

// NewTestMessage creates a test Kafka message with the given topic, partition, and offset
func NewTestMessage(topic string, partition int32, offset int64, key, value []byte) *kafka.Message {
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &topic,
			Partition: partition,
			Offset:    kafka.Offset(offset),
		},
		Key:   key,
		Value: value,
	}
}

// NewBlockMessage creates a Kafka message carrying an encoded block of the given number.
func NewBlockMessage(t *testing.T, topic string, partition int32, offset int64, n chainstate.Network, number uint64) *kafka.Message {
	t.Helper()
	value, err := message.EncodeBlock(n, &chainstate.Block{Number: number})
	require.NoError(t, err)
	return NewTestMessage(topic, partition, offset, nil, value)
}
