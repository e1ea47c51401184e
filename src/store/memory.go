package store

import (
	"context"
	"fmt"
	"sync"

	"buildctl-agent/src/contracts"
)

// MemoryStore is an in-memory implementation of Store.
// Used when no Postgres DSN is configured, and in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records []contracts.OperationRecord
	ids     map[string]bool
	nextSeq int64
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ids:     make(map[string]bool),
		nextSeq: 1,
	}
}

// RecordOperation appends an operation. Event ids must be unique.
func (s *MemoryStore) RecordOperation(ctx context.Context, ev contracts.OperationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.ID == "" {
		return fmt.Errorf("operation event has no id")
	}
	if s.ids[ev.ID] {
		return fmt.Errorf("operation %s already recorded", ev.ID)
	}

	fields := make(map[string]string, len(ev.Fields))
	for k, v := range ev.Fields {
		fields[k] = v
	}
	ev.Fields = fields

	s.ids[ev.ID] = true
	s.records = append(s.records, contracts.OperationRecord{Seq: s.nextSeq, OperationEvent: ev})
	s.nextSeq++
	return nil
}

// ListOperations returns matching records, newest first.
func (s *MemoryStore) ListOperations(ctx context.Context, filter contracts.OperationFilter) ([]contracts.OperationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := limitOf(filter)
	result := []contracts.OperationRecord{}
	for i := len(s.records) - 1; i >= 0 && len(result) < limit; i-- {
		r := s.records[i]
		if filter.Subject != "" && r.Subject != filter.Subject {
			continue
		}
		if filter.Operation != "" && r.Operation != filter.Operation {
			continue
		}
		result = append(result, r)
	}
	return result, nil
}

// Close closes the store (no-op for memory store).
func (s *MemoryStore) Close() error {
	return nil
}
