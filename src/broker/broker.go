// Package broker publishes and consumes operation events.
package broker

import "context"

// Broker abstracts message publishing and consumption.
// Implemented in memory and on Redpanda (Kafka protocol).
type Broker interface {
	// Publish sends a message to a topic. The key selects the partition on
	// Redpanda and is carried through by the in-memory broker.
	Publish(ctx context.Context, topic string, key string, value []byte) error

	// Subscribe returns a channel for consuming messages from a topic.
	// groupID is used for consumer group coordination on Redpanda.
	Subscribe(ctx context.Context, topic string, groupID string) (<-chan Message, error)

	// Close shuts down the broker connection gracefully.
	Close() error
}

// Message represents a consumed message from a broker.
type Message struct {
	Topic     string
	Key       string
	Value     []byte
	Operation string // operation named by the publisher, empty if unknown
	Offset    int64
	Partition int32
	Timestamp int64
}
