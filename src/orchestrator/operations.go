package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"buildctl-agent/src/contracts"
	"buildctl-agent/src/poll"
	"buildctl-agent/src/provider"
	"buildctl-agent/src/resolve"
	"buildctl-agent/src/retry"
)

// WaitForBuild polls until the build result reaches one of req.States or
// the timeout elapses. A timeout is a successful response with TimedOut set.
func (o *Orchestrator) WaitForBuild(ctx context.Context, req WaitForBuildRequest) (*WaitForBuildResponse, error) {
	return instrument(ctx, o, contracts.OpWaitForBuild, req.BuildResultRef, func(ctx context.Context) (*WaitForBuildResponse, error) {
		res, err := o.waiter.Wait(ctx, poll.Request{
			BuildResultRef:  req.BuildResultRef,
			States:          req.States,
			TimeoutSeconds:  req.TimeoutSeconds,
			IntervalSeconds: req.IntervalSeconds,
		})
		if err != nil {
			return nil, err
		}
		return &WaitForBuildResponse{
			State:    string(res.State),
			Status:   string(res.Status),
			TimedOut: res.TimedOut,
		}, nil
	})
}

// ListFiles returns up to req.MaxResults matching contributions.
func (o *Orchestrator) ListFiles(ctx context.Context, req ListFilesRequest) (*ListFilesResponse, error) {
	return instrument(ctx, o, contracts.OpListFiles, req.BuildResultRef, func(ctx context.Context) (*ListFilesResponse, error) {
		files, err := o.resolver.ListFiles(ctx, resolve.ListQuery{
			BuildResultRef: req.BuildResultRef,
			Type:           provider.ContributionType(req.ContributionType),
			Pattern:        req.FileNameOrPattern,
			Component:      req.ComponentName,
			MaxResults:     req.MaxResults,
		})
		if err != nil {
			return nil, err
		}
		return &ListFilesResponse{Files: files}, nil
	})
}

// DownloadFile writes one contribution into req.DestinationFolder without
// overwriting existing files.
func (o *Orchestrator) DownloadFile(ctx context.Context, req DownloadFileRequest) (*DownloadFileResponse, error) {
	return instrument(ctx, o, contracts.OpDownloadFile, req.BuildResultRef, func(ctx context.Context) (*DownloadFileResponse, error) {
		d, err := o.resolver.DownloadFile(ctx, resolve.DownloadQuery{
			BuildResultRef:      req.BuildResultRef,
			Type:                provider.ContributionType(req.ContributionType),
			FileName:            req.FileName,
			ContentID:           req.ContentID,
			Component:           req.ComponentName,
			DestinationFolder:   req.DestinationFolder,
			DestinationFileName: req.DestinationFileName,
		})
		if err != nil {
			return nil, err
		}
		return &DownloadFileResponse{FileName: d.FileName, FilePath: d.FilePath, Bytes: d.Bytes}, nil
	})
}

// RetrieveSnapshotFromBuild returns the snapshot a build result was taken
// from, or empty strings when it has none.
func (o *Orchestrator) RetrieveSnapshotFromBuild(ctx context.Context, buildResultRef string) (*SnapshotResponse, error) {
	return instrument(ctx, o, contracts.OpRetrieveSnapshot, buildResultRef, func(ctx context.Context) (*SnapshotResponse, error) {
		ref, err := provider.ParseBuildResultRef(buildResultRef)
		if err != nil {
			return nil, err
		}

		snap, err := o.svc.GetSnapshot(ctx, ref)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return nil, provider.NewInterrupted(ctx.Err())
			case provider.KindOf(err) == provider.KindNotFound:
				return nil, &provider.Error{
					Kind:    provider.KindConfiguration,
					Message: fmt.Sprintf("build result %s not found", ref),
					Err:     err,
				}
			}
			return nil, fmt.Errorf("failed to retrieve snapshot of build result %s: %w", ref, err)
		}
		if snap == nil {
			o.log.Debug("[Orchestrator] build result %s has no snapshot", ref)
			return &SnapshotResponse{}, nil
		}
		return &SnapshotResponse{SnapshotID: snap.ID, SnapshotName: snap.Name}, nil
	})
}

// RequestBuild queues a build of req.BuildDefinitionID.
func (o *Orchestrator) RequestBuild(ctx context.Context, req RequestBuildRequest) (*RequestBuildResponse, error) {
	return instrument(ctx, o, contracts.OpRequestBuild, req.BuildDefinitionID, func(ctx context.Context) (*RequestBuildResponse, error) {
		definition := strings.TrimSpace(req.BuildDefinitionID)
		if definition == "" {
			return nil, provider.Validationf("build definition id is null or empty")
		}
		for i, name := range req.PropertiesToDelete {
			if strings.TrimSpace(name) == "" {
				return nil, provider.Validationf("property to delete at index %d is blank", i)
			}
		}
		for name := range req.PropertiesToAddOrOverride {
			if strings.TrimSpace(name) == "" {
				return nil, provider.Validationf("property to add or override has a blank name")
			}
		}

		ref, err := o.svc.RequestBuild(ctx, provider.BuildRequest{
			DefinitionID:       definition,
			PropertiesToDelete: req.PropertiesToDelete,
			Properties:         req.PropertiesToAddOrOverride,
		})
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return nil, provider.NewInterrupted(ctx.Err())
			case provider.KindOf(err) == provider.KindNotFound:
				return nil, &provider.Error{
					Kind:    provider.KindConfiguration,
					Message: fmt.Sprintf("build definition %q not found", definition),
					Err:     err,
				}
			}
			return nil, fmt.Errorf("failed to request build of definition %s: %w", definition, err)
		}

		if ref == "" {
			o.log.Info("[Orchestrator] build of %s requested, no build result created", definition)
		} else {
			o.log.Info("[Orchestrator] build of %s requested as %s", definition, ref)
		}
		return &RequestBuildResponse{BuildResultID: string(ref)}, nil
	})
}

// CreateWorkspaceWithRetry provisions a workspace, retrying transient
// failures up to req.AttemptLimit times in total.
func (o *Orchestrator) CreateWorkspaceWithRetry(ctx context.Context, req CreateWorkspaceRequest) (*WorkspaceResponse, error) {
	return instrument(ctx, o, contracts.OpCreateWorkspace, req.Name, func(ctx context.Context) (*WorkspaceResponse, error) {
		name := strings.TrimSpace(req.Name)
		if name == "" {
			return nil, provider.Validationf("workspace name is null or empty")
		}
		if req.InterAttemptDelaySeconds < 0 {
			return nil, provider.Validationf("inter-attempt delay %d is invalid, must not be negative", req.InterAttemptDelaySeconds)
		}
		if int64(req.InterAttemptDelaySeconds) > poll.MaxSeconds {
			return nil, provider.Validationf("inter-attempt delay %d is invalid, must not exceed %d", req.InterAttemptDelaySeconds, poll.MaxSeconds)
		}

		spec := provider.WorkspaceSpec{
			Name:        name,
			Description: req.Description,
			StreamID:    req.StreamID,
			SnapshotID:  req.SnapshotID,
			OwnerID:     req.OwnerID,
		}
		policy := retry.Policy{
			AttemptLimit: req.AttemptLimit,
			Delay:        time.Duration(req.InterAttemptDelaySeconds) * o.unit,
			Classify:     provider.IsTransient,
		}

		ws, err := retry.Run(ctx, o.retrier, policy, func(ctx context.Context) (*provider.Workspace, error) {
			return o.svc.CreateWorkspace(ctx, spec)
		})
		if err != nil {
			return nil, err
		}
		o.log.Info("[Orchestrator] workspace %s created as %s", ws.Name, ws.ID)
		return &WorkspaceResponse{WorkspaceID: ws.ID, WorkspaceName: ws.Name, WorkspaceOwner: ws.Owner}, nil
	})
}
