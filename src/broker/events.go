package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"buildctl-agent/src/contracts"
	"buildctl-agent/src/logger"
)

// PublishEvent publishes ev on its operation topic, keyed by subject.
func PublishEvent(ctx context.Context, b Broker, ev contracts.OperationEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := b.Publish(ctx, contracts.Topic(ev.Operation), ev.Subject, data); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", ev.Operation, err)
	}
	return nil
}

// SubscribeEvents merges the event streams of ops (all operations when
// empty) into one channel. The channel closes when ctx is done or every
// underlying subscription has ended. Undecodable messages are logged and
// skipped.
func SubscribeEvents(ctx context.Context, b Broker, groupID string, log logger.Logger, ops ...string) (<-chan contracts.OperationEvent, error) {
	if len(ops) == 0 {
		ops = contracts.Operations()
	}

	sources := make([]<-chan Message, 0, len(ops))
	for _, op := range ops {
		ch, err := b.Subscribe(ctx, contracts.Topic(op), groupID)
		if err != nil {
			return nil, fmt.Errorf("failed to subscribe to %s: %w", contracts.Topic(op), err)
		}
		sources = append(sources, ch)
	}

	out := make(chan contracts.OperationEvent, 100)
	done := make(chan struct{}, len(sources))
	for _, src := range sources {
		go func(src <-chan Message) {
			defer func() { done <- struct{}{} }()
			for msg := range src {
				var ev contracts.OperationEvent
				if err := json.Unmarshal(msg.Value, &ev); err != nil {
					log.Warn("[Events] skipping malformed message on %s at offset %d: %v", msg.Topic, msg.Offset, err)
					continue
				}
				if msg.Operation != "" && msg.Operation != ev.Operation {
					log.Warn("[Events] skipping %s event on %s published as %s", ev.Operation, msg.Topic, msg.Operation)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}(src)
	}

	go func() {
		for range sources {
			<-done
		}
		close(out)
	}()

	return out, nil
}
