package store

import (
	"context"
	"fmt"
	"testing"

	"buildctl-agent/src/contracts"
)

const subject = "6f1c1e1e-5d2a-4c43-9c5e-0d6b1f3c9a11"

func event(id, op, subj string) contracts.OperationEvent {
	return contracts.OperationEvent{
		ID:        id,
		Operation: op,
		Subject:   subj,
		Outcome:   contracts.OutcomeOK,
		Fields:    map[string]string{"state": "COMPLETED"},
		Timestamp: "2026-10-19T08:00:00Z",
	}
}

func TestMemoryStore_RecordAndList(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	ctx := context.Background()
	for i, op := range []string{contracts.OpRequestBuild, contracts.OpWaitForBuild, contracts.OpListFiles} {
		if err := store.RecordOperation(ctx, event(fmt.Sprintf("op-%d", i), op, subject)); err != nil {
			t.Fatalf("RecordOperation failed: %v", err)
		}
	}

	records, err := store.ListOperations(ctx, contracts.OperationFilter{})
	if err != nil {
		t.Fatalf("ListOperations failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}

	// Newest first
	if records[0].ID != "op-2" || records[2].ID != "op-0" {
		t.Errorf("Expected newest first, got %s ... %s", records[0].ID, records[2].ID)
	}
	if records[0].Seq != 3 || records[2].Seq != 1 {
		t.Errorf("Expected seq 3..1, got %d..%d", records[0].Seq, records[2].Seq)
	}
}

func TestMemoryStore_Filter(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	ctx := context.Background()
	other := "11111111-2222-3333-4444-555555555555"
	store.RecordOperation(ctx, event("a", contracts.OpWaitForBuild, subject))
	store.RecordOperation(ctx, event("b", contracts.OpWaitForBuild, other))
	store.RecordOperation(ctx, event("c", contracts.OpListFiles, subject))
	store.RecordOperation(ctx, event("d", contracts.OpWaitForBuild, subject))

	tests := []struct {
		name   string
		filter contracts.OperationFilter
		want   []string
	}{
		{name: "by subject", filter: contracts.OperationFilter{Subject: subject}, want: []string{"d", "c", "a"}},
		{name: "by operation", filter: contracts.OperationFilter{Operation: contracts.OpWaitForBuild}, want: []string{"d", "b", "a"}},
		{name: "both", filter: contracts.OperationFilter{Subject: subject, Operation: contracts.OpListFiles}, want: []string{"c"}},
		{name: "limit", filter: contracts.OperationFilter{Limit: 2}, want: []string{"d", "c"}},
		{name: "no match", filter: contracts.OperationFilter{Subject: "nope"}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := store.ListOperations(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListOperations failed: %v", err)
			}
			got := make([]string, len(records))
			for i, r := range records {
				got[i] = r.ID
			}
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestMemoryStore_RejectsDuplicateAndEmptyIDs(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	ctx := context.Background()
	if err := store.RecordOperation(ctx, event("", contracts.OpListFiles, subject)); err == nil {
		t.Error("Expected error for empty id")
	}
	if err := store.RecordOperation(ctx, event("x", contracts.OpListFiles, subject)); err != nil {
		t.Fatalf("RecordOperation failed: %v", err)
	}
	if err := store.RecordOperation(ctx, event("x", contracts.OpListFiles, subject)); err == nil {
		t.Error("Expected error for duplicate id")
	}
}

func TestMemoryStore_CopiesFields(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	ctx := context.Background()
	ev := event("x", contracts.OpListFiles, subject)
	store.RecordOperation(ctx, ev)
	ev.Fields["state"] = "mutated"

	records, _ := store.ListOperations(ctx, contracts.OperationFilter{})
	if records[0].Fields["state"] != "COMPLETED" {
		t.Errorf("Expected stored fields to be isolated from caller, got %q", records[0].Fields["state"])
	}
}
