// Package store persists the history of orchestrator operations.
package store

import (
	"context"

	"buildctl-agent/src/contracts"
)

// DefaultLimit caps history queries that do not set a limit.
const DefaultLimit = 100

// Store defines the interface for persisting operation history.
type Store interface {
	// RecordOperation appends one finished operation.
	RecordOperation(ctx context.Context, ev contracts.OperationEvent) error

	// ListOperations returns matching records, newest first.
	ListOperations(ctx context.Context, filter contracts.OperationFilter) ([]contracts.OperationRecord, error)

	// Close closes the store connection
	Close() error
}

func limitOf(filter contracts.OperationFilter) int {
	if filter.Limit <= 0 {
		return DefaultLimit
	}
	return filter.Limit
}
