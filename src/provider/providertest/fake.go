// Package providertest provides an in-memory BuildService for tests.
package providertest

import (
	"context"
	"fmt"
	"io"
	"sync"

	"buildctl-agent/src/provider"
)

// Method names accepted by CallCount and Fail.
const (
	MethodGetBuildResult       = "GetBuildResult"
	MethodListContributions    = "ListContributions"
	MethodDownloadContribution = "DownloadContribution"
	MethodGetSnapshot          = "GetSnapshot"
	MethodRequestBuild         = "RequestBuild"
	MethodCreateWorkspace      = "CreateWorkspace"
)

// FakeService is a scripted, concurrency-safe BuildService.
type FakeService struct {
	mu sync.Mutex

	builds        map[provider.BuildResultRef]*fakeBuild
	contributions map[provider.BuildResultRef][]provider.ContributionGroup
	content       map[string][]byte
	snapshots     map[provider.BuildResultRef]*provider.Snapshot
	definitions   map[string]provider.BuildResultRef
	failures      map[string]error
	calls         map[string]int

	// Requests records every RequestBuild call.
	Requests []provider.BuildRequest

	// CreateWorkspaceFn, if set, handles CreateWorkspace calls.
	// By default a workspace named after the spec is returned.
	CreateWorkspaceFn func(ctx context.Context, spec provider.WorkspaceSpec) (*provider.Workspace, error)

	// GetBuildResultHook, if set, runs after the n-th GetBuildResult call
	// is answered and before it returns. It runs outside the lock, so it
	// may script the next answer with SetState or Fail.
	GetBuildResultHook func(n int)
}

type fakeBuild struct {
	status provider.BuildStatus
	label  string
	states []provider.BuildState
	next   int
}

// NewFakeService returns an empty FakeService.
func NewFakeService() *FakeService {
	return &FakeService{
		builds:        make(map[provider.BuildResultRef]*fakeBuild),
		contributions: make(map[provider.BuildResultRef][]provider.ContributionGroup),
		content:       make(map[string][]byte),
		snapshots:     make(map[provider.BuildResultRef]*provider.Snapshot),
		definitions:   make(map[string]provider.BuildResultRef),
		failures:      make(map[string]error),
		calls:         make(map[string]int),
	}
}

// AddBuild registers a build result. Each GetBuildResult call returns the
// next state in states; the last one repeats.
func (f *FakeService) AddBuild(ref provider.BuildResultRef, status provider.BuildStatus, states ...provider.BuildState) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(states) == 0 {
		states = []provider.BuildState{provider.StateNotStarted}
	}
	f.builds[ref] = &fakeBuild{status: status, label: "build " + string(ref), states: states}
}

// SetState replaces the scripted states of a build result with a single one.
func (f *FakeService) SetState(ref provider.BuildResultRef, state provider.BuildState, status provider.BuildStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, ok := f.builds[ref]
	if !ok {
		b = &fakeBuild{label: "build " + string(ref)}
		f.builds[ref] = b
	}
	b.states = []provider.BuildState{state}
	b.next = 0
	b.status = status
}

// AddContributions appends contribution groups for a build result.
func (f *FakeService) AddContributions(ref provider.BuildResultRef, groups ...provider.ContributionGroup) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contributions[ref] = append(f.contributions[ref], groups...)
}

// SetContent sets the bytes served for a contribution's internal id.
func (f *FakeService) SetContent(internalID string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.content[internalID] = data
}

// SetSnapshot associates a snapshot with a build result.
func (f *FakeService) SetSnapshot(ref provider.BuildResultRef, snap *provider.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots[ref] = snap
}

// AddDefinition registers a build definition. RequestBuild for it returns next.
func (f *FakeService) AddDefinition(id string, next provider.BuildResultRef) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.definitions[id] = next
}

// Fail makes every call to method return err until cleared with a nil err.
func (f *FakeService) Fail(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, method)
		return
	}
	f.failures[method] = err
}

// CallCount returns the number of calls made to method.
func (f *FakeService) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *FakeService) enter(method string) error {
	f.calls[method]++
	return f.failures[method]
}

func notFound(ref provider.BuildResultRef) error {
	return provider.Tag(provider.KindNotFound, fmt.Errorf("%w: %s", provider.ErrBuildNotFound, ref))
}

// GetBuildResult implements provider.BuildService.
func (f *FakeService) GetBuildResult(ctx context.Context, ref provider.BuildResultRef) (*provider.BuildResult, error) {
	br, n, err := f.getBuildResult(ref)
	if f.GetBuildResultHook != nil {
		f.GetBuildResultHook(n)
	}
	return br, err
}

func (f *FakeService) getBuildResult(ref provider.BuildResultRef) (*provider.BuildResult, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := f.enter(MethodGetBuildResult)
	n := f.calls[MethodGetBuildResult]
	if err != nil {
		return nil, n, err
	}
	b, ok := f.builds[ref]
	if !ok {
		return nil, n, notFound(ref)
	}

	state := b.states[b.next]
	if b.next < len(b.states)-1 {
		b.next++
	}
	return &provider.BuildResult{
		Ref:    ref,
		State:  state,
		Status: b.status,
		Label:  b.label,
	}, n, nil
}

// ListContributions implements provider.BuildService.
func (f *FakeService) ListContributions(ctx context.Context, ref provider.BuildResultRef, ctype provider.ContributionType) ([]provider.ContributionGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.enter(MethodListContributions); err != nil {
		return nil, err
	}
	if _, ok := f.builds[ref]; !ok {
		return nil, notFound(ref)
	}

	var groups []provider.ContributionGroup
	for _, g := range f.contributions[ref] {
		filtered := provider.ContributionGroup{Component: g.Component}
		for _, c := range g.Items {
			if c.Type == ctype {
				filtered.Items = append(filtered.Items, c)
			}
		}
		groups = append(groups, filtered)
	}
	return groups, nil
}

// DownloadContribution implements provider.BuildService.
func (f *FakeService) DownloadContribution(ctx context.Context, ref provider.BuildResultRef, c provider.Contribution, w io.Writer) (int64, error) {
	f.mu.Lock()
	if err := f.enter(MethodDownloadContribution); err != nil {
		f.mu.Unlock()
		return 0, err
	}
	data, ok := f.content[c.InternalID]
	f.mu.Unlock()

	if !ok {
		return 0, provider.Tag(provider.KindNotFound, fmt.Errorf("no content for contribution %s", c.InternalID))
	}
	n, err := w.Write(data)
	return int64(n), err
}

// GetSnapshot implements provider.BuildService.
func (f *FakeService) GetSnapshot(ctx context.Context, ref provider.BuildResultRef) (*provider.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.enter(MethodGetSnapshot); err != nil {
		return nil, err
	}
	if _, ok := f.builds[ref]; !ok {
		return nil, notFound(ref)
	}
	snap, ok := f.snapshots[ref]
	if !ok {
		return nil, nil
	}
	out := *snap
	return &out, nil
}

// RequestBuild implements provider.BuildService.
func (f *FakeService) RequestBuild(ctx context.Context, req provider.BuildRequest) (provider.BuildResultRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.enter(MethodRequestBuild); err != nil {
		return "", err
	}
	f.Requests = append(f.Requests, req)
	next, ok := f.definitions[req.DefinitionID]
	if !ok {
		return "", provider.Tag(provider.KindNotFound, fmt.Errorf("build definition %s does not exist", req.DefinitionID))
	}
	return next, nil
}

// CreateWorkspace implements provider.BuildService.
func (f *FakeService) CreateWorkspace(ctx context.Context, spec provider.WorkspaceSpec) (*provider.Workspace, error) {
	f.mu.Lock()
	if err := f.enter(MethodCreateWorkspace); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	fn := f.CreateWorkspaceFn
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, spec)
	}
	return &provider.Workspace{ID: "ws-" + spec.Name, Name: spec.Name, Owner: spec.OwnerID}, nil
}
