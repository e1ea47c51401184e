// Package api exposes the orchestrator operations over HTTP/JSON.
//
// Every operation responds with its flat key-value fields as a JSON object.
// Errors are reported as {"error": ..., "kind": ...} with a status derived
// from the error kind.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"buildctl-agent/src/contracts"
	"buildctl-agent/src/logger"
	"buildctl-agent/src/orchestrator"
	"buildctl-agent/src/provider"
	"buildctl-agent/src/retry"
)

// DefaultMaxResults applies when a file listing does not set maxResults.
const DefaultMaxResults = 100

// statusClientClosedRequest reports a request whose caller went away.
const statusClientClosedRequest = 499

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

type server struct {
	orch *orchestrator.Orchestrator
	log  logger.Logger

	// downloadRoot and its resolved form; empty leaves downloads unconfined.
	downloadRoot     string
	downloadRootReal string
}

// Option configures the handler.
type Option func(*server)

// WithDownloadRoot confines download destinations to root. Relative
// destination folders are resolved against it.
func WithDownloadRoot(root string) Option {
	return func(s *server) {
		if abs, err := filepath.Abs(root); err == nil {
			root = abs
		}
		s.downloadRoot = filepath.Clean(root)
		s.downloadRootReal = s.downloadRoot
		if real, err := filepath.EvalSymlinks(s.downloadRoot); err == nil {
			s.downloadRootReal = real
		}
	}
}

// NewHandler builds the router. /metrics is served from gatherer when it
// is non-nil.
func NewHandler(orch *orchestrator.Orchestrator, gatherer prometheus.Gatherer, log logger.Logger, opts ...Option) http.Handler {
	srv := &server{orch: orch, log: log}
	for _, opt := range opts {
		opt(srv)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", handleHealth)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/builds/{ref}", func(r chi.Router) {
			r.Post("/wait", srv.handleWaitForBuild)
			r.Get("/files", srv.handleListFiles)
			r.Post("/downloads", srv.handleDownloadFile)
			r.Get("/snapshot", srv.handleRetrieveSnapshot)
		})
		r.Post("/definitions/{definitionID}/builds", srv.handleRequestBuild)
		r.Post("/workspaces", srv.handleCreateWorkspace)
		r.Get("/history", srv.handleHistory)
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]any{"status": "ok", "timestamp": time.Now().Unix()}, http.StatusOK)
}

func (s *server) handleWaitForBuild(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.WaitForBuildRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.BuildResultRef = chi.URLParam(r, "ref")

	res, err := s.orch.WaitForBuild(r.Context(), req)
	s.respond(w, res, err)
}

func (s *server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := orchestrator.ListFilesRequest{
		BuildResultRef:    chi.URLParam(r, "ref"),
		FileNameOrPattern: q.Get("pattern"),
		ComponentName:     q.Get("component"),
		ContributionType:  q.Get("type"),
		MaxResults:        DefaultMaxResults,
	}
	if raw := q.Get("maxResults"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.respondError(w, provider.Validationf("maxResults %q is not a number", raw))
			return
		}
		req.MaxResults = n
	}

	res, err := s.orch.ListFiles(r.Context(), req)
	s.respond(w, res, err)
}

func (s *server) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.DownloadFileRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.BuildResultRef = chi.URLParam(r, "ref")

	if s.downloadRoot != "" && req.DestinationFolder != "" {
		dest, err := s.confine(req.DestinationFolder)
		if err != nil {
			s.respondError(w, err)
			return
		}
		req.DestinationFolder = dest
	}

	res, err := s.orch.DownloadFile(r.Context(), req)
	s.respond(w, res, err)
}

func (s *server) handleRetrieveSnapshot(w http.ResponseWriter, r *http.Request) {
	res, err := s.orch.RetrieveSnapshotFromBuild(r.Context(), chi.URLParam(r, "ref"))
	s.respond(w, res, err)
}

func (s *server) handleRequestBuild(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.RequestBuildRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.BuildDefinitionID = chi.URLParam(r, "definitionID")

	res, err := s.orch.RequestBuild(r.Context(), req)
	s.respond(w, res, err)
}

func (s *server) handleCreateWorkspace(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.CreateWorkspaceRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.orch.CreateWorkspaceWithRetry(r.Context(), req)
	s.respond(w, res, err)
}

func (s *server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := contracts.OperationFilter{
		Subject:   q.Get("subject"),
		Operation: q.Get("operation"),
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.respondError(w, provider.Validationf("limit %q is not a number", raw))
			return
		}
		filter.Limit = n
	}

	records, err := s.orch.History(r.Context(), filter)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, map[string]any{"operations": records}, http.StatusOK)
}

// confine resolves dest against the download root and rejects it when it
// leaves the root, lexically or through a symlink.
func (s *server) confine(dest string) (string, error) {
	if !filepath.IsAbs(dest) {
		dest = filepath.Join(s.downloadRoot, dest)
	}
	dest = filepath.Clean(dest)
	if !within(s.downloadRoot, dest) {
		return "", provider.Validationf("destinationFolder %q is outside the download root %s", dest, s.downloadRoot)
	}
	if real, err := filepath.EvalSymlinks(dest); err == nil && !within(s.downloadRootReal, real) {
		return "", provider.Validationf("destinationFolder %q resolves outside the download root %s", dest, s.downloadRoot)
	}
	return dest, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func (s *server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.ContentLength == 0 {
		return true
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.respondError(w, provider.Validationf("request body is invalid: %v", err))
		return false
	}
	return true
}

func (s *server) respond(w http.ResponseWriter, res orchestrator.Response, err error) {
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, res.Fields(), http.StatusOK)
}

func (s *server) respondError(w http.ResponseWriter, err error) {
	status := StatusOf(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("[API] %v", err)
	}
	respondJSON(w, map[string]string{
		"error": err.Error(),
		"kind":  orchestrator.ErrorKind(err),
	}, status)
}

// StatusOf maps an operation error onto an HTTP status.
func StatusOf(err error) int {
	var exhausted *retry.RetryExhaustedError
	if errors.As(err, &exhausted) {
		return http.StatusServiceUnavailable
	}
	switch provider.KindOf(err) {
	case provider.KindValidation, provider.KindInvalid:
		return http.StatusBadRequest
	case provider.KindConfiguration, provider.KindNotFound:
		return http.StatusNotFound
	case provider.KindInterrupted:
		return statusClientClosedRequest
	case provider.KindTransient:
		return http.StatusServiceUnavailable
	case provider.KindIO:
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}

func respondJSON(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
