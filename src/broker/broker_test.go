package broker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"buildctl-agent/src/contracts"
	"buildctl-agent/src/logger"
)

func TestInMemoryBroker_PublishSubscribe(t *testing.T) {
	broker := NewInMemoryBroker()
	defer broker.Close()

	ctx := context.Background()
	topic := "test-topic"
	key := "test-key"
	value := []byte("test message")

	// Subscribe before publishing
	msgChan, err := broker.Subscribe(ctx, topic, "test-group")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	// Publish message
	if err := broker.Publish(ctx, topic, key, value); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	// Receive message
	select {
	case msg := <-msgChan:
		if msg.Topic != topic {
			t.Errorf("Expected topic %s, got %s", topic, msg.Topic)
		}
		if msg.Key != key {
			t.Errorf("Expected key %s, got %s", key, msg.Key)
		}
		if string(msg.Value) != string(value) {
			t.Errorf("Expected value %s, got %s", string(value), string(msg.Value))
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout waiting for message")
	}
}

func TestInMemoryBroker_MultipleSubscribers(t *testing.T) {
	broker := NewInMemoryBroker()
	defer broker.Close()

	ctx := context.Background()
	topic := "test-topic"

	// Create two subscribers
	sub1, err := broker.Subscribe(ctx, topic, "group1")
	if err != nil {
		t.Fatalf("Subscribe 1 failed: %v", err)
	}

	sub2, err := broker.Subscribe(ctx, topic, "group2")
	if err != nil {
		t.Fatalf("Subscribe 2 failed: %v", err)
	}

	// Publish message
	value := []byte("broadcast message")
	if err := broker.Publish(ctx, topic, "key", value); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	// Both subscribers should receive the message
	for i, sub := range []<-chan Message{sub1, sub2} {
		select {
		case msg := <-sub:
			if string(msg.Value) != string(value) {
				t.Errorf("Subscriber %d: expected value %s, got %s", i+1, string(value), string(msg.Value))
			}
		case <-time.After(1 * time.Second):
			t.Fatalf("Subscriber %d: timeout waiting for message", i+1)
		}
	}
}

func TestInMemoryBroker_ClosedBroker(t *testing.T) {
	broker := NewInMemoryBroker()
	broker.Close()

	ctx := context.Background()

	// Publishing to closed broker should fail
	err := broker.Publish(ctx, "test", "key", []byte("value"))
	if err == nil {
		t.Error("Expected error when publishing to closed broker")
	}

	// Subscribing to closed broker should fail
	_, err = broker.Subscribe(ctx, "test", "group")
	if err == nil {
		t.Error("Expected error when subscribing to closed broker")
	}
}

func TestInMemoryBroker_UnsubscribeOnCancel(t *testing.T) {
	broker := NewInMemoryBroker()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := broker.Subscribe(ctx, "test-topic", "group")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("Expected channel to be closed after cancel")
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout waiting for channel close")
	}

	// Publishing without subscribers must not block.
	if err := broker.Publish(context.Background(), "test-topic", "k", []byte("v")); err != nil {
		t.Errorf("Publish failed: %v", err)
	}
}

func TestInMemoryBroker_Offsets(t *testing.T) {
	broker := NewInMemoryBroker()
	defer broker.Close()

	ctx := context.Background()
	ch, err := broker.Subscribe(ctx, "t", "g")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := broker.Publish(ctx, "t", "k", []byte("v")); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}
	for want := int64(0); want < 3; want++ {
		msg := <-ch
		if msg.Offset != want {
			t.Errorf("Expected offset %d, got %d", want, msg.Offset)
		}
	}
}

func TestNewRedpandaBroker_RequiresBrokers(t *testing.T) {
	if _, err := NewRedpandaBroker(nil, logger.NewSilentLogger()); err == nil {
		t.Error("Expected error without broker addresses")
	}
}

func TestPublishEvent_RoundTrip(t *testing.T) {
	broker := NewInMemoryBroker()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := SubscribeEvents(ctx, broker, "test", logger.NewSilentLogger())
	if err != nil {
		t.Fatalf("SubscribeEvents failed: %v", err)
	}

	// A malformed message is skipped.
	if err := broker.Publish(ctx, contracts.Topic(contracts.OpListFiles), "x", []byte("{not json")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	sent := contracts.OperationEvent{
		ID:        "op-1",
		Operation: contracts.OpListFiles,
		Subject:   "6f1c1e1e-5d2a-4c43-9c5e-0d6b1f3c9a11",
		Outcome:   contracts.OutcomeOK,
		Fields:    map[string]string{"files.count": "2"},
	}
	if err := PublishEvent(ctx, broker, sent); err != nil {
		t.Fatalf("PublishEvent failed: %v", err)
	}

	select {
	case got := <-events:
		if got.ID != sent.ID || got.Operation != sent.Operation || got.Fields["files.count"] != "2" {
			t.Errorf("Expected %+v, got %+v", sent, got)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout waiting for event")
	}

	cancel()
	select {
	case _, ok := <-events:
		if ok {
			t.Error("Expected events channel to close after cancel")
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout waiting for events channel close")
	}
}

func TestNewRecord_StampsEventHeaders(t *testing.T) {
	topic := contracts.Topic(contracts.OpDownloadFile)
	record := newRecord(topic, "ref-1", []byte("{}"))

	if string(record.Key) != "ref-1" {
		t.Errorf("Expected key ref-1, got %q", record.Key)
	}
	headers := make(map[string]string)
	for _, h := range record.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers[HeaderOperation] != contracts.OpDownloadFile {
		t.Errorf("Expected operation header %q, got %q", contracts.OpDownloadFile, headers[HeaderOperation])
	}
	if headers[HeaderContentType] != "application/json" {
		t.Errorf("Expected JSON content type, got %q", headers[HeaderContentType])
	}
}

func TestMessageFrom_ReadsOperationHeader(t *testing.T) {
	record := newRecord(contracts.Topic(contracts.OpRequestBuild), "ref-2", []byte("{}"))
	record.Offset = 7
	record.Partition = 3
	record.Timestamp = time.UnixMilli(1700000000000)

	msg := messageFrom(record)
	if msg.Operation != contracts.OpRequestBuild {
		t.Errorf("Expected operation %q, got %q", contracts.OpRequestBuild, msg.Operation)
	}
	if msg.Key != "ref-2" || msg.Offset != 7 || msg.Partition != 3 || msg.Timestamp != 1700000000000 {
		t.Errorf("Unexpected message %+v", msg)
	}

	if got := messageFrom(&kgo.Record{Topic: "other"}); got.Operation != "" {
		t.Errorf("Expected no operation without header, got %q", got.Operation)
	}
}

func TestSubscribeEvents_SkipsMisroutedEvent(t *testing.T) {
	broker := NewInMemoryBroker()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := SubscribeEvents(ctx, broker, "test", logger.NewSilentLogger(), contracts.OpListFiles)
	if err != nil {
		t.Fatalf("SubscribeEvents failed: %v", err)
	}

	misrouted, _ := json.Marshal(contracts.OperationEvent{ID: "op-bad", Operation: contracts.OpDownloadFile})
	if err := broker.Publish(ctx, contracts.Topic(contracts.OpListFiles), "x", misrouted); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := PublishEvent(ctx, broker, contracts.OperationEvent{ID: "op-good", Operation: contracts.OpListFiles}); err != nil {
		t.Fatalf("PublishEvent failed: %v", err)
	}

	select {
	case got := <-events:
		if got.ID != "op-good" {
			t.Errorf("Expected op-good, got %s", got.ID)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout waiting for event")
	}
}
