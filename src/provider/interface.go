package provider

import (
	"context"
	"io"
)

// BuildService defines the operations the build-management server exposes.
// Errors returned by implementations are tagged with a Kind (Transient,
// Permanent, NotFound, Invalid) so callers can classify them without
// inspecting concrete types.
type BuildService interface {
	// GetBuildResult returns the current state and status of a build result.
	GetBuildResult(ctx context.Context, ref BuildResultRef) (*BuildResult, error)

	// ListContributions returns contributions of the given type grouped by
	// component, in the server's native order.
	ListContributions(ctx context.Context, ref BuildResultRef, ctype ContributionType) ([]ContributionGroup, error)

	// DownloadContribution streams the content of a contribution to w and
	// returns the number of bytes written.
	DownloadContribution(ctx context.Context, ref BuildResultRef, c Contribution, w io.Writer) (int64, error)

	// GetSnapshot returns the snapshot associated with a build result,
	// or nil when there is none.
	GetSnapshot(ctx context.Context, ref BuildResultRef) (*Snapshot, error)

	// RequestBuild queues a build. The returned ref is empty when the server
	// accepted the request without creating a build result.
	RequestBuild(ctx context.Context, req BuildRequest) (BuildResultRef, error)

	// CreateWorkspace provisions a build workspace.
	CreateWorkspace(ctx context.Context, spec WorkspaceSpec) (*Workspace, error)
}
