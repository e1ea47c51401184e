// Package buildserver provides a client for the build-management server's
// REST API.
package buildserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"buildctl-agent/src/provider"
	"buildctl-agent/src/telemetry"
)

const (
	// APIPrefix is prepended to every endpoint path.
	APIPrefix = "/api/v1"

	// DefaultTimeout bounds a single HTTP request.
	DefaultTimeout = 30 * time.Second
)

// Client is a build server API client. It is safe for concurrent use.
type Client struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
}

// BuildResult is the wire form of a build result.
type BuildResult struct {
	ID           string `json:"id"`
	State        string `json:"state"`
	Status       string `json:"status"`
	Label        string `json:"label"`
	DefinitionID string `json:"definition_id"`
}

// Contribution is the wire form of a log or artifact.
type Contribution struct {
	Type       string `json:"type"`
	FileName   string `json:"file_name"`
	Component  string `json:"component,omitempty"`
	ContentID  string `json:"content_id,omitempty"`
	SizeBytes  int64  `json:"size_bytes"`
	Label      string `json:"label"`
	InternalID string `json:"internal_id"`
}

// ContributionGroup holds the contributions of one component.
type ContributionGroup struct {
	Component string         `json:"component"`
	Items     []Contribution `json:"items"`
}

type contributionsResponse struct {
	Groups []ContributionGroup `json:"groups"`
}

// Snapshot is the wire form of a snapshot.
type Snapshot struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// BuildRequestBody is posted to queue a build.
type BuildRequestBody struct {
	PropertiesToDelete []string          `json:"properties_to_delete"`
	Properties         map[string]string `json:"properties"`
}

type buildRequestResponse struct {
	BuildResultID string `json:"build_result_id"`
}

// WorkspaceBody is posted to create a workspace.
type WorkspaceBody struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	StreamID    string `json:"stream_id,omitempty"`
	SnapshotID  string `json:"snapshot_id,omitempty"`
	OwnerID     string `json:"owner_id,omitempty"`
}

// Workspace is the wire form of a created workspace.
type Workspace struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Owner string `json:"owner"`
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// NewClient creates a new build server API client.
func NewClient(baseURL, apiToken string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiToken: apiToken,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StatusError is a non-2xx API response.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s failed with status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// classifyStatus tags a non-2xx response with its error kind.
func classifyStatus(se *StatusError) error {
	switch se.StatusCode {
	case http.StatusNotFound:
		return provider.Tag(provider.KindNotFound, se)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return provider.Tag(provider.KindInvalid, se)
	case http.StatusUnauthorized, http.StatusForbidden:
		return provider.Tag(provider.KindPermanent, fmt.Errorf("%w: %w", provider.ErrAuthFailed, se))
	case http.StatusTooManyRequests:
		return provider.Tag(provider.KindTransient, fmt.Errorf("%w: %w", provider.ErrRateLimited, se))
	case http.StatusRequestTimeout, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return provider.Tag(provider.KindTransient, se)
	default:
		return provider.Tag(provider.KindPermanent, se)
	}
}

// classifyTransport tags errors raised before a response arrived.
// Context cancellation is returned as-is.
func classifyTransport(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return provider.Tag(provider.KindTransient, fmt.Errorf("%w: %w", provider.ErrNetworkTimeout, err))
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return provider.Tag(provider.KindTransient, err)
	}
	return provider.Tag(provider.KindPermanent, err)
}

// do sends one request inside a span named buildserver.<op>. The caller
// closes the returned body.
func (c *Client) do(ctx context.Context, op, method, path string, body any, accept string, attrs ...attribute.KeyValue) (*http.Response, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "buildserver."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	defer span.End()

	resp, err := c.send(ctx, method, path, body, accept)
	if resp != nil {
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, method, path string, body any, accept string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+APIPrefix+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}
	req.Header.Set("Accept", accept)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransport(ctx, fmt.Errorf("failed to execute request: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return resp, classifyStatus(&StatusError{
			Method:     method,
			Path:       APIPrefix + path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		})
	}
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, out any, attrs ...attribute.KeyValue) (int, error) {
	resp, err := c.do(ctx, op, http.MethodGet, path, nil, "application/json", attrs...)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, decode(ctx, resp, out)
}

func (c *Client) postJSON(ctx context.Context, op, path string, body, out any, attrs ...attribute.KeyValue) error {
	resp, err := c.do(ctx, op, http.MethodPost, path, body, "application/json", attrs...)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decode(ctx, resp, out)
}

func decode(ctx context.Context, resp *http.Response, out any) error {
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return classifyTransport(ctx, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

func resultAttr(id string) attribute.KeyValue {
	return attribute.String("buildctl.build_result_id", id)
}

func buildResultPath(id string) string {
	return "/buildresults/" + url.PathEscape(id)
}

// GetBuildResult fetches the state of a build result.
func (c *Client) GetBuildResult(ctx context.Context, id string) (*BuildResult, error) {
	var br BuildResult
	if _, err := c.getJSON(ctx, "GetBuildResult", buildResultPath(id), &br, resultAttr(id)); err != nil {
		return nil, err
	}
	return &br, nil
}

// ListContributions fetches the contributions of one type, grouped by component.
func (c *Client) ListContributions(ctx context.Context, id, ctype string) ([]ContributionGroup, error) {
	path := buildResultPath(id) + "/contributions?type=" + url.QueryEscape(ctype)

	var out contributionsResponse
	if _, err := c.getJSON(ctx, "ListContributions", path, &out, resultAttr(id), attribute.String("buildctl.contribution_type", ctype)); err != nil {
		return nil, err
	}
	return out.Groups, nil
}

// DownloadContribution streams a contribution's content to w.
func (c *Client) DownloadContribution(ctx context.Context, id, internalID string, w io.Writer) (int64, error) {
	path := buildResultPath(id) + "/contributions/" + url.PathEscape(internalID) + "/content"

	resp, err := c.do(ctx, "DownloadContribution", http.MethodGet, path, nil, "application/octet-stream", resultAttr(id))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, classifyTransport(ctx, fmt.Errorf("failed to read contribution content: %w", err))
	}
	return n, nil
}

// GetSnapshot fetches the snapshot of a build result. It returns nil when
// the server answers 204 No Content.
func (c *Client) GetSnapshot(ctx context.Context, id string) (*Snapshot, error) {
	var snap Snapshot
	status, err := c.getJSON(ctx, "GetSnapshot", buildResultPath(id)+"/snapshot", &snap, resultAttr(id))
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent || snap.ID == "" {
		return nil, nil
	}
	return &snap, nil
}

// RequestBuild queues a build of a definition and returns the new build
// result id, which may be empty.
func (c *Client) RequestBuild(ctx context.Context, definitionID string, body BuildRequestBody) (string, error) {
	path := "/builddefinitions/" + url.PathEscape(definitionID) + "/requests"

	var out buildRequestResponse
	if err := c.postJSON(ctx, "RequestBuild", path, body, &out, attribute.String("buildctl.definition_id", definitionID)); err != nil {
		return "", err
	}
	return out.BuildResultID, nil
}

// CreateWorkspace provisions a workspace.
func (c *Client) CreateWorkspace(ctx context.Context, body WorkspaceBody) (*Workspace, error) {
	var ws Workspace
	if err := c.postJSON(ctx, "CreateWorkspace", "/workspaces", body, &ws, attribute.String("buildctl.workspace_name", body.Name)); err != nil {
		return nil, err
	}
	return &ws, nil
}
