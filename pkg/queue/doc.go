// Package queue publishes messages to durable queues.
//
// Publisher is the common interface; KafkaPublisher implements it on top of a
// confluent-kafka-go producer. The block consumer uses it for its dead letter
// queue and the fetch command uses it to publish blocks.
//
// All Publisher implementations require Close to be called exactly once to
// release resources and flush in-flight messages.
package queue
