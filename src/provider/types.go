package provider

import (
	"path"
	"strings"

	"github.com/google/uuid"
)

// BuildResultRef names one build result on the build server.
// It always holds a syntactically valid UUID; existence is checked at use time.
type BuildResultRef string

// ParseBuildResultRef validates the shape of a build result identifier.
func ParseBuildResultRef(id string) (BuildResultRef, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return "", Validationf("build result id is null or empty")
	}
	if _, err := uuid.Parse(trimmed); err != nil {
		return "", Validationf("build result id %q has an invalid format", id)
	}
	return BuildResultRef(trimmed), nil
}

func (r BuildResultRef) String() string { return string(r) }

// BuildState is the lifecycle state of a build result.
type BuildState string

const (
	StateNotStarted BuildState = "NOT_STARTED"
	StateInProgress BuildState = "IN_PROGRESS"
	StateCompleted  BuildState = "COMPLETED"
	StateIncomplete BuildState = "INCOMPLETE"
	StateCanceled   BuildState = "CANCELED"
)

var knownBuildStates = []BuildState{
	StateNotStarted,
	StateInProgress,
	StateCompleted,
	StateIncomplete,
	StateCanceled,
}

// KnownBuildStates returns the states recognized by the build server.
func KnownBuildStates() []BuildState {
	out := make([]BuildState, len(knownBuildStates))
	copy(out, knownBuildStates)
	return out
}

// ParseBuildState maps a string onto a known BuildState.
func ParseBuildState(s string) (BuildState, bool) {
	candidate := BuildState(strings.TrimSpace(s))
	for _, known := range knownBuildStates {
		if candidate == known {
			return known, true
		}
	}
	return "", false
}

// BuildStatus is the server-defined outcome (OK, WARNING, ERROR, ...).
// It is passed through without validation.
type BuildStatus string

// BuildResult is the current observable state of a build result.
type BuildResult struct {
	Ref          BuildResultRef
	State        BuildState
	Status       BuildStatus
	Label        string
	DefinitionID string
}

// ContributionType selects between log and artifact contributions.
type ContributionType string

const (
	ContributionLog      ContributionType = "log"
	ContributionArtifact ContributionType = "artifact"
)

// ParseContributionType accepts "log" or "artifact" (case-insensitive).
func ParseContributionType(s string) (ContributionType, error) {
	switch ContributionType(strings.ToLower(strings.TrimSpace(s))) {
	case ContributionLog:
		return ContributionLog, nil
	case ContributionArtifact:
		return ContributionArtifact, nil
	}
	return "", Validationf("contribution type %q is invalid, expected %q or %q", s, ContributionLog, ContributionArtifact)
}

// Contribution is a named log or artifact attached to a build result.
type Contribution struct {
	Type       ContributionType
	FileName   string
	Component  string // empty when not scoped to a component
	ContentID  string
	SizeBytes  int64
	Label      string
	InternalID string
}

// Extension returns the file name extension without the leading dot.
func (c Contribution) Extension() string {
	return strings.TrimPrefix(path.Ext(c.FileName), ".")
}

// ContributionGroup holds the contributions of one component in the
// server's native order. Component is empty for unscoped contributions.
type ContributionGroup struct {
	Component string
	Items     []Contribution
}

// Snapshot identifies the snapshot a build result was taken from.
type Snapshot struct {
	ID   string
	Name string
}

// BuildRequest asks the server to queue a build of a definition.
type BuildRequest struct {
	DefinitionID       string
	PropertiesToDelete []string
	Properties         map[string]string
}

// WorkspaceSpec describes a build workspace to create.
type WorkspaceSpec struct {
	Name        string
	Description string
	StreamID    string
	SnapshotID  string
	OwnerID     string
}

// Workspace is a created build workspace.
type Workspace struct {
	ID    string
	Name  string
	Owner string
}
