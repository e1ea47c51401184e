package store

import (
	"context"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"

	"buildctl-agent/src/contracts"
)

func TestListQuery(t *testing.T) {
	tests := []struct {
		name      string
		filter    contracts.OperationFilter
		wantWhere string
		wantArgs  []any
	}{
		{
			name:     "no filter",
			filter:   contracts.OperationFilter{},
			wantArgs: []any{DefaultLimit},
		},
		{
			name:      "subject",
			filter:    contracts.OperationFilter{Subject: subject, Limit: 5},
			wantWhere: " WHERE subject = $1 ORDER BY seq DESC LIMIT $2",
			wantArgs:  []any{subject, 5},
		},
		{
			name:      "subject and operation",
			filter:    contracts.OperationFilter{Subject: subject, Operation: contracts.OpListFiles},
			wantWhere: " WHERE subject = $1 AND operation = $2 ORDER BY seq DESC LIMIT $3",
			wantArgs:  []any{subject, contracts.OpListFiles, DefaultLimit},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := listQuery(tt.filter)
			if tt.wantWhere != "" {
				if got := query[len(query)-len(tt.wantWhere):]; got != tt.wantWhere {
					t.Errorf("listQuery() tail = %q, want %q", got, tt.wantWhere)
				}
			}
			if diff := cmp.Diff(tt.wantArgs, args); diff != "" {
				t.Errorf("listQuery() args mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// TestPostgresStore runs against a live database when BUILDCTL_TEST_POSTGRES_DSN is set.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("BUILDCTL_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("BUILDCTL_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	store, err := NewPostgresStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewPostgresStore failed: %v", err)
	}
	defer store.Close()

	ev := event("pg-"+t.Name(), contracts.OpWaitForBuild, subject)
	store.db.ExecContext(ctx, "DELETE FROM operations WHERE id = $1", ev.ID)
	if err := store.RecordOperation(ctx, ev); err != nil {
		t.Fatalf("RecordOperation failed: %v", err)
	}

	records, err := store.ListOperations(ctx, contracts.OperationFilter{Subject: subject, Limit: 1})
	if err != nil {
		t.Fatalf("ListOperations failed: %v", err)
	}
	if len(records) != 1 || records[0].ID != ev.ID || records[0].Fields["state"] != "COMPLETED" {
		t.Errorf("Expected the recorded event back, got %+v", records)
	}
}
