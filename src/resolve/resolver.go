// Package resolve lists and selects the log and artifact contributions of
// a build result.
//
// Every query walks contributions in the same enumeration order: groups in
// the order the build server returns them and, within a group, items in
// their native order. A component scope restricts the walk to contributions
// owned by that component; unscoped contributions never match a scoped
// query. The enumeration order is the tie-break for every selection.
package resolve

import (
	"context"
	"fmt"
	"regexp"

	"buildctl-agent/src/logger"
	"buildctl-agent/src/metrics"
	"buildctl-agent/src/provider"
)

// MaxResultsLimit is the largest accepted ListQuery.MaxResults.
const MaxResultsLimit = 2048

// ListQuery selects contributions by type, pattern and component.
type ListQuery struct {
	BuildResultRef string
	Type           provider.ContributionType // defaults to log
	Pattern        string                    // full-match regular expression, empty matches all
	Component      string
	MaxResults     int
}

// File describes one contribution returned by ListFiles.
type File struct {
	FileName      string
	ComponentName string
	Label         string
	ContentID     string
	Extension     string
	SizeBytes     int64
	InternalID    string
	Type          provider.ContributionType
}

func fileOf(c provider.Contribution) File {
	return File{
		FileName:      c.FileName,
		ComponentName: c.Component,
		Label:         c.Label,
		ContentID:     c.ContentID,
		Extension:     c.Extension(),
		SizeBytes:     c.SizeBytes,
		InternalID:    c.InternalID,
		Type:          c.Type,
	}
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMetrics records downloaded bytes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// Resolver resolves contributions through a BuildService.
type Resolver struct {
	svc     provider.BuildService
	log     logger.Logger
	metrics *metrics.Metrics
}

// NewResolver creates a Resolver backed by svc.
func NewResolver(svc provider.BuildService, log logger.Logger, opts ...Option) *Resolver {
	r := &Resolver{svc: svc, log: log}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ListFiles returns the contributions matching q in enumeration order,
// truncated to q.MaxResults. No match is an empty result, not an error.
func (r *Resolver) ListFiles(ctx context.Context, q ListQuery) ([]File, error) {
	ref, err := provider.ParseBuildResultRef(q.BuildResultRef)
	if err != nil {
		return nil, err
	}
	if q.MaxResults < 1 || q.MaxResults > MaxResultsLimit {
		return nil, provider.Validationf("maxResults %d is invalid, must be between 1 and %d", q.MaxResults, MaxResultsLimit)
	}
	match, err := compilePattern(q.Pattern)
	if err != nil {
		return nil, err
	}
	ctype, err := contributionType(q.Type)
	if err != nil {
		return nil, err
	}

	contributions, err := r.enumerate(ctx, ref, ctype, q.Component)
	if err != nil {
		return nil, err
	}

	files := []File{}
	for _, c := range contributions {
		if match != nil && !match.MatchString(c.FileName) {
			continue
		}
		files = append(files, fileOf(c))
		if len(files) == q.MaxResults {
			break
		}
	}

	r.log.Debug("[ContributionResolver] %d %s file(s) matched in build result %s", len(files), ctype, ref)
	return files, nil
}

// compilePattern anchors pattern so it must match the whole file name.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	// Compile the raw pattern first so the diagnostic refers to what the
	// caller wrote.
	if _, err := regexp.Compile(pattern); err != nil {
		return nil, provider.Validationf("file pattern %q is invalid: %v", pattern, err)
	}
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, provider.Validationf("file pattern %q is invalid: %v", pattern, err)
	}
	return re, nil
}

func contributionType(t provider.ContributionType) (provider.ContributionType, error) {
	if t == "" {
		return provider.ContributionLog, nil
	}
	return provider.ParseContributionType(string(t))
}

// enumerate returns the contributions of ctype in enumeration order,
// restricted to component when it is non-empty.
func (r *Resolver) enumerate(ctx context.Context, ref provider.BuildResultRef, ctype provider.ContributionType, component string) ([]provider.Contribution, error) {
	groups, err := r.svc.ListContributions(ctx, ref, ctype)
	if err != nil {
		if ctx.Err() != nil {
			return nil, provider.NewInterrupted(ctx.Err())
		}
		if provider.KindOf(err) == provider.KindNotFound {
			return nil, &provider.Error{
				Kind:    provider.KindConfiguration,
				Message: fmt.Sprintf("build result %s not found", ref),
				Err:     err,
			}
		}
		return nil, fmt.Errorf("failed to list %s contributions of build result %s: %w", ctype, ref, err)
	}

	var out []provider.Contribution
	for _, g := range groups {
		for _, c := range g.Items {
			if c.Component == "" {
				c.Component = g.Component
			}
			if c.Type != ctype {
				continue
			}
			if component != "" && c.Component != component {
				continue
			}
			out = append(out, c)
		}
	}
	return out, nil
}
