// Package mcp exposes the orchestrator operations as MCP tools over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"buildctl-agent/src/logger"
	"buildctl-agent/src/orchestrator"
	"buildctl-agent/src/provider"
)

// Tool names.
const (
	ToolWaitForBuild     = "wait_for_build"
	ToolListFiles        = "list_files"
	ToolDownloadFile     = "download_file"
	ToolRetrieveSnapshot = "retrieve_snapshot"
	ToolRequestBuild     = "request_build"
	ToolCreateWorkspace  = "create_workspace"
	ToolPreviewFile      = "preview_file"
)

// Server is the MCP server for buildctl.
type Server struct {
	mcpServer *server.MCPServer
	orch      *orchestrator.Orchestrator
	log       logger.Logger
}

// NewServer creates an MCP server backed by orch.
func NewServer(orch *orchestrator.Orchestrator, version string, log logger.Logger) *Server {
	s := server.NewMCPServer(
		"buildctl",
		version,
		server.WithToolCapabilities(true),
	)

	srv := &Server{
		mcpServer: s,
		orch:      orch,
		log:       log,
	}
	srv.registerTools()

	return srv
}

// registerTools registers all available tools.
func (s *Server) registerTools() {
	buildRef := mcp.WithString("build_result_id",
		mcp.Required(),
		mcp.Description("Build result identifier (UUID)"),
	)
	contributionType := mcp.WithString("type",
		mcp.Description("Contribution type: log (default) or artifact"),
		mcp.Enum("log", "artifact"),
	)
	component := mcp.WithString("component",
		mcp.Description("Restrict to contributions of this component"),
	)

	waitTool := mcp.NewTool(ToolWaitForBuild,
		mcp.WithDescription("Wait until a build result reaches one of the given states or the timeout elapses. A timeout is reported with timedOut=true, not as an error."),
		buildRef,
		mcp.WithArray("states",
			mcp.Required(),
			mcp.Description("Acceptable states: NOT_STARTED, IN_PROGRESS, COMPLETED, INCOMPLETE, CANCELED"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithNumber("timeout_seconds",
			mcp.Description("Time budget in seconds, -1 waits forever (default: 600)"),
		),
		mcp.WithNumber("interval_seconds",
			mcp.Description("Seconds between polls (default: 10)"),
		),
	)

	listTool := mcp.NewTool(ToolListFiles,
		mcp.WithDescription("List log or artifact files of a build result in server order. The pattern is a regular expression matched against the whole file name."),
		buildRef,
		mcp.WithString("pattern",
			mcp.Description("File name or regular expression, e.g. log-10.*\\.txt"),
		),
		component,
		contributionType,
		mcp.WithNumber("max_results",
			mcp.Description("Maximum number of files returned (default: 100)"),
		),
	)

	downloadTool := mcp.NewTool(ToolDownloadFile,
		mcp.WithDescription("Download one file of a build result into a local folder. Exactly one of file_name or content_id must be given. Existing files are never overwritten."),
		buildRef,
		mcp.WithString("file_name", mcp.Description("Exact file name; the first match in server order wins")),
		mcp.WithString("content_id", mcp.Description("Content identifier of the file")),
		component,
		contributionType,
		mcp.WithString("destination_folder",
			mcp.Required(),
			mcp.Description("Existing, writable local folder"),
		),
		mcp.WithString("destination_file_name", mcp.Description("Local file name (default: the server file name)")),
	)

	snapshotTool := mcp.NewTool(ToolRetrieveSnapshot,
		mcp.WithDescription("Return the snapshot a build result was built from. Both fields are empty when there is none."),
		buildRef,
	)

	requestTool := mcp.NewTool(ToolRequestBuild,
		mcp.WithDescription("Queue a build of a build definition."),
		mcp.WithString("definition_id",
			mcp.Required(),
			mcp.Description("Build definition identifier"),
		),
		mcp.WithArray("properties_to_delete",
			mcp.Description("Property names to remove for this build"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithObject("properties",
			mcp.Description("Properties to add or override, as string values"),
		),
	)

	workspaceTool := mcp.NewTool(ToolCreateWorkspace,
		mcp.WithDescription("Create a build workspace, retrying transient server failures."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Workspace name")),
		mcp.WithString("description", mcp.Description("Workspace description")),
		mcp.WithString("stream_id", mcp.Description("Stream to populate the workspace from")),
		mcp.WithString("snapshot_id", mcp.Description("Snapshot to populate the workspace from")),
		mcp.WithString("owner_id", mcp.Description("Owner of the workspace")),
		mcp.WithNumber("attempts", mcp.Description("Total attempts (default: 3)")),
		mcp.WithNumber("delay_seconds", mcp.Description("Seconds between attempts (default: 5)")),
	)

	previewTool := mcp.NewTool(ToolPreviewFile,
		mcp.WithDescription("Return the last lines of a log file, compacted for reading: timestamps stripped, hashes masked, long paths shortened."),
		buildRef,
		mcp.WithString("file_name", mcp.Description("Exact file name")),
		mcp.WithString("content_id", mcp.Description("Content identifier of the file")),
		component,
		mcp.WithNumber("lines", mcp.Description(fmt.Sprintf("Number of trailing lines (default: %d)", DefaultPreviewLines))),
	)

	s.mcpServer.AddTool(waitTool, s.handleWaitForBuild)
	s.mcpServer.AddTool(listTool, s.handleListFiles)
	s.mcpServer.AddTool(downloadTool, s.handleDownloadFile)
	s.mcpServer.AddTool(snapshotTool, s.handleRetrieveSnapshot)
	s.mcpServer.AddTool(requestTool, s.handleRequestBuild)
	s.mcpServer.AddTool(workspaceTool, s.handleCreateWorkspace)
	s.mcpServer.AddTool(previewTool, s.handlePreviewFile)
}

// Run starts the MCP server on stdio.
func (s *Server) Run() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) handleWaitForBuild(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.orch.WaitForBuild(ctx, orchestrator.WaitForBuildRequest{
		BuildResultRef:  request.GetString("build_result_id", ""),
		States:          request.GetStringSlice("states", nil),
		TimeoutSeconds:  request.GetInt("timeout_seconds", 600),
		IntervalSeconds: request.GetInt("interval_seconds", 10),
	})
	return s.result(res, err)
}

func (s *Server) handleListFiles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.orch.ListFiles(ctx, orchestrator.ListFilesRequest{
		BuildResultRef:    request.GetString("build_result_id", ""),
		FileNameOrPattern: request.GetString("pattern", ""),
		ComponentName:     request.GetString("component", ""),
		ContributionType:  request.GetString("type", ""),
		MaxResults:        request.GetInt("max_results", 100),
	})
	return s.result(res, err)
}

func (s *Server) handleDownloadFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.orch.DownloadFile(ctx, orchestrator.DownloadFileRequest{
		BuildResultRef:      request.GetString("build_result_id", ""),
		FileName:            request.GetString("file_name", ""),
		ContentID:           request.GetString("content_id", ""),
		ComponentName:       request.GetString("component", ""),
		ContributionType:    request.GetString("type", ""),
		DestinationFolder:   request.GetString("destination_folder", ""),
		DestinationFileName: request.GetString("destination_file_name", ""),
	})
	return s.result(res, err)
}

func (s *Server) handleRetrieveSnapshot(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.orch.RetrieveSnapshotFromBuild(ctx, request.GetString("build_result_id", ""))
	return s.result(res, err)
}

func (s *Server) handleRequestBuild(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	properties, err := stringMap(request.GetArguments()["properties"])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := s.orch.RequestBuild(ctx, orchestrator.RequestBuildRequest{
		BuildDefinitionID:         request.GetString("definition_id", ""),
		PropertiesToDelete:        request.GetStringSlice("properties_to_delete", nil),
		PropertiesToAddOrOverride: properties,
	})
	return s.result(res, err)
}

func (s *Server) handleCreateWorkspace(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.orch.CreateWorkspaceWithRetry(ctx, orchestrator.CreateWorkspaceRequest{
		Name:                     request.GetString("name", ""),
		Description:              request.GetString("description", ""),
		StreamID:                 request.GetString("stream_id", ""),
		SnapshotID:               request.GetString("snapshot_id", ""),
		OwnerID:                  request.GetString("owner_id", ""),
		AttemptLimit:             request.GetInt("attempts", 3),
		InterAttemptDelaySeconds: request.GetInt("delay_seconds", 5),
	})
	return s.result(res, err)
}

// result renders the flat fields of res as JSON text, or err as a tool error
// the model can read and act on.
func (s *Server) result(res orchestrator.Response, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		s.log.Debug("[MCP] tool failed: %v", err)
		return mcp.NewToolResultError(fmt.Sprintf("%s error: %v", orchestrator.ErrorKind(err), err)), nil
	}

	jsonBytes, err := json.Marshal(res.Fields())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// stringMap converts a JSON object argument into string properties.
func stringMap(v any) (map[string]string, error) {
	if v == nil {
		return nil, nil
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, provider.Validationf("properties must be an object, got %T", v)
	}
	out := make(map[string]string, len(obj))
	for k, val := range obj {
		switch val := val.(type) {
		case string:
			out[k] = val
		case float64, bool:
			out[k] = fmt.Sprint(val)
		default:
			return nil, provider.Validationf("property %q must be a string, got %T", k, val)
		}
	}
	return out, nil
}
