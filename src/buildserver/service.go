package buildserver

import (
	"context"
	"fmt"
	"io"

	"buildctl-agent/src/provider"
)

// Service implements provider.BuildService on top of the REST client.
type Service struct {
	client *Client
}

// NewService creates a Service for the server at baseURL.
func NewService(baseURL, token string, opts ...Option) *Service {
	return &Service{client: NewClient(baseURL, token, opts...)}
}

// Client returns the underlying REST client.
func (s *Service) Client() *Client {
	return s.client
}

// GetBuildResult implements provider.BuildService.
func (s *Service) GetBuildResult(ctx context.Context, ref provider.BuildResultRef) (*provider.BuildResult, error) {
	br, err := s.client.GetBuildResult(ctx, string(ref))
	if err != nil {
		return nil, err
	}

	state, ok := provider.ParseBuildState(br.State)
	if !ok {
		return nil, provider.Tag(provider.KindPermanent, fmt.Errorf("build result %s has unknown state %q", ref, br.State))
	}
	return &provider.BuildResult{
		Ref:          ref,
		State:        state,
		Status:       provider.BuildStatus(br.Status),
		Label:        br.Label,
		DefinitionID: br.DefinitionID,
	}, nil
}

// ListContributions implements provider.BuildService.
func (s *Service) ListContributions(ctx context.Context, ref provider.BuildResultRef, ctype provider.ContributionType) ([]provider.ContributionGroup, error) {
	wire, err := s.client.ListContributions(ctx, string(ref), string(ctype))
	if err != nil {
		return nil, err
	}

	groups := make([]provider.ContributionGroup, 0, len(wire))
	for _, g := range wire {
		group := provider.ContributionGroup{
			Component: g.Component,
			Items:     make([]provider.Contribution, 0, len(g.Items)),
		}
		for _, item := range g.Items {
			itemType := provider.ContributionType(item.Type)
			if itemType == "" {
				itemType = ctype
			}
			component := item.Component
			if component == "" {
				component = g.Component
			}
			group.Items = append(group.Items, provider.Contribution{
				Type:       itemType,
				FileName:   item.FileName,
				Component:  component,
				ContentID:  item.ContentID,
				SizeBytes:  item.SizeBytes,
				Label:      item.Label,
				InternalID: item.InternalID,
			})
		}
		groups = append(groups, group)
	}
	return groups, nil
}

// DownloadContribution implements provider.BuildService.
func (s *Service) DownloadContribution(ctx context.Context, ref provider.BuildResultRef, c provider.Contribution, w io.Writer) (int64, error) {
	return s.client.DownloadContribution(ctx, string(ref), c.InternalID, w)
}

// GetSnapshot implements provider.BuildService.
func (s *Service) GetSnapshot(ctx context.Context, ref provider.BuildResultRef) (*provider.Snapshot, error) {
	snap, err := s.client.GetSnapshot(ctx, string(ref))
	if err != nil || snap == nil {
		return nil, err
	}
	return &provider.Snapshot{ID: snap.ID, Name: snap.Name}, nil
}

// RequestBuild implements provider.BuildService.
func (s *Service) RequestBuild(ctx context.Context, req provider.BuildRequest) (provider.BuildResultRef, error) {
	body := BuildRequestBody{
		PropertiesToDelete: req.PropertiesToDelete,
		Properties:         req.Properties,
	}
	if body.PropertiesToDelete == nil {
		body.PropertiesToDelete = []string{}
	}
	if body.Properties == nil {
		body.Properties = map[string]string{}
	}

	id, err := s.client.RequestBuild(ctx, req.DefinitionID, body)
	if err != nil {
		return "", err
	}
	return provider.BuildResultRef(id), nil
}

// CreateWorkspace implements provider.BuildService.
func (s *Service) CreateWorkspace(ctx context.Context, spec provider.WorkspaceSpec) (*provider.Workspace, error) {
	ws, err := s.client.CreateWorkspace(ctx, WorkspaceBody{
		Name:        spec.Name,
		Description: spec.Description,
		StreamID:    spec.StreamID,
		SnapshotID:  spec.SnapshotID,
		OwnerID:     spec.OwnerID,
	})
	if err != nil {
		return nil, err
	}
	return &provider.Workspace{ID: ws.ID, Name: ws.Name, Owner: ws.Owner}, nil
}

var _ provider.BuildService = (*Service)(nil)
