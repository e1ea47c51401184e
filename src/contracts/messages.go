// Package contracts defines the messages buildctl publishes and persists.
package contracts

// Outcomes recorded for an operation.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// OperationEvent describes one finished orchestrator operation.
// Published to: buildctl.operations.<operation>
// Key: {build_result_ref}, or the definition id / workspace name when the
// operation has no build result.
type OperationEvent struct {
	ID        string `json:"id"`
	Operation string `json:"operation"`
	// Key used for partitioning and history lookups.
	Subject string `json:"subject"`
	Outcome string `json:"outcome"`
	// Error classification (validation, configuration, transient, ...).
	ErrorKind string `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`
	// Flat response of the operation.
	Fields map[string]string `json:"fields,omitempty"`
	// RFC3339 time the operation started.
	Timestamp  string `json:"timestamp"`
	DurationMS int64  `json:"duration_ms"`
}

// OperationRecord is an OperationEvent as persisted in the history store.
type OperationRecord struct {
	Seq int64 `json:"seq"`
	OperationEvent
}

// OperationFilter narrows a history query. Zero values match everything.
type OperationFilter struct {
	Subject   string
	Operation string
	Limit     int
}
