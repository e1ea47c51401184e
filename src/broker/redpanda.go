package broker

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"

	"buildctl-agent/src/contracts"
	"buildctl-agent/src/logger"
)

// Record headers stamped on every operation event.
const (
	HeaderOperation   = "buildctl-operation"
	HeaderContentType = "content-type"

	eventContentType = "application/json"
)

// RedpandaBroker publishes operation events over the Kafka protocol.
// Events are keyed by subject so every event about one build reference
// lands on the same partition and stays in order.
type RedpandaBroker struct {
	producer *kgo.Client
	seeds    []string
	log      logger.Logger

	mu        sync.Mutex
	consumers map[string]*kgo.Client // group/topic
	closed    bool
}

// NewRedpandaBroker connects a producer to the seed brokers
// (e.g. ["localhost:19092"]). Topics are created on first publish.
func NewRedpandaBroker(seeds []string, log logger.Logger) (*RedpandaBroker, error) {
	if len(seeds) == 0 {
		return nil, fmt.Errorf("at least one broker address is required")
	}

	producer, err := kgo.NewClient(
		kgo.SeedBrokers(seeds...),
		kgo.ClientID("buildctl"),
		kgo.AllowAutoTopicCreation(),
		kgo.RecordPartitioner(kgo.StickyKeyPartitioner(nil)),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create event producer: %w", err)
	}

	return &RedpandaBroker{
		producer:  producer,
		seeds:     seeds,
		log:       log,
		consumers: make(map[string]*kgo.Client),
	}, nil
}

// Publish produces one event record and waits for the broker to ack it.
func (b *RedpandaBroker) Publish(ctx context.Context, topic string, key string, value []byte) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return fmt.Errorf("broker is closed")
	}

	if err := b.producer.ProduceSync(ctx, newRecord(topic, key, value)).FirstErr(); err != nil {
		return fmt.Errorf("failed to produce %s event for %q: %w", operationOf(topic), key, err)
	}
	return nil
}

// Subscribe joins consumer group groupID on topic, reading from the earliest
// retained event. A group may hold one subscription per topic.
func (b *RedpandaBroker) Subscribe(ctx context.Context, topic string, groupID string) (<-chan Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("broker is closed")
	}

	id := groupID + "/" + topic
	if _, exists := b.consumers[id]; exists {
		return nil, fmt.Errorf("group %s is already subscribed to %s", groupID, topic)
	}

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(b.seeds...),
		kgo.ClientID("buildctl-"+groupID),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer for %s: %w", topic, err)
	}
	b.consumers[id] = consumer

	out := make(chan Message, 100)
	go b.consume(ctx, consumer, out)
	return out, nil
}

func (b *RedpandaBroker) consume(ctx context.Context, consumer *kgo.Client, out chan<- Message) {
	defer close(out)

	for ctx.Err() == nil {
		fetches := consumer.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			if ctx.Err() == nil {
				b.log.Warn("[RedpandaBroker] fetch error on %s/%d: %v", topic, partition, err)
			}
		})

		iter := fetches.RecordIter()
		for !iter.Done() {
			select {
			case out <- messageFrom(iter.Next()):
			case <-ctx.Done():
				return
			}
		}
	}
}

// Close stops every consumer, then the producer.
func (b *RedpandaBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for id, consumer := range b.consumers {
		consumer.Close()
		delete(b.consumers, id)
	}
	b.producer.Close()
	return nil
}

func newRecord(topic, key string, value []byte) *kgo.Record {
	return &kgo.Record{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: HeaderOperation, Value: []byte(operationOf(topic))},
			{Key: HeaderContentType, Value: []byte(eventContentType)},
		},
	}
}

func messageFrom(r *kgo.Record) Message {
	msg := Message{
		Topic:     r.Topic,
		Key:       string(r.Key),
		Value:     r.Value,
		Offset:    r.Offset,
		Partition: r.Partition,
		Timestamp: r.Timestamp.UnixMilli(),
	}
	for _, h := range r.Headers {
		if h.Key == HeaderOperation {
			msg.Operation = string(h.Value)
		}
	}
	return msg
}

// operationOf names the operation an event topic carries, or returns the
// topic unchanged when it is not an operation topic.
func operationOf(topic string) string {
	return strings.TrimPrefix(topic, contracts.TopicPrefix)
}
