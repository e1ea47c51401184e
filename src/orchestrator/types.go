package orchestrator

import (
	"strconv"

	"buildctl-agent/src/resolve"
)

// Response is the flat key-value shape every operation reports.
type Response interface {
	Fields() map[string]string
}

// WaitForBuildRequest waits for a build result to reach one of States.
type WaitForBuildRequest struct {
	BuildResultRef  string   `json:"buildResultRef"`
	States          []string `json:"buildStates"`
	TimeoutSeconds  int      `json:"timeoutSeconds"`
	IntervalSeconds int      `json:"intervalSeconds"`
}

// WaitForBuildResponse is the last observed state of the build result.
type WaitForBuildResponse struct {
	State    string `json:"state"`
	Status   string `json:"status"`
	TimedOut bool   `json:"timedOut"`
}

func (r *WaitForBuildResponse) Fields() map[string]string {
	return map[string]string{
		"state":    r.State,
		"status":   r.Status,
		"timedOut": strconv.FormatBool(r.TimedOut),
	}
}

// ListFilesRequest lists contributions of a build result.
type ListFilesRequest struct {
	BuildResultRef    string `json:"buildResultRef"`
	FileNameOrPattern string `json:"fileNameOrPattern,omitempty"`
	ComponentName     string `json:"componentName,omitempty"`
	ContributionType  string `json:"contributionType,omitempty"`
	MaxResults        int    `json:"maxResults"`
}

// ListFilesResponse holds matching files in enumeration order.
type ListFilesResponse struct {
	Files []resolve.File `json:"files"`
}

// Fields flattens each file to files.<i>.<field>, plus files.count.
func (r *ListFilesResponse) Fields() map[string]string {
	out := map[string]string{"files.count": strconv.Itoa(len(r.Files))}
	for i, f := range r.Files {
		prefix := "files." + strconv.Itoa(i) + "."
		out[prefix+"fileName"] = f.FileName
		out[prefix+"componentName"] = f.ComponentName
		out[prefix+"label"] = f.Label
		out[prefix+"contentId"] = f.ContentID
		out[prefix+"extension"] = f.Extension
		out[prefix+"sizeBytes"] = strconv.FormatInt(f.SizeBytes, 10)
		out[prefix+"internalId"] = f.InternalID
	}
	return out
}

// DownloadFileRequest selects one contribution by FileName or ContentID.
type DownloadFileRequest struct {
	BuildResultRef      string `json:"buildResultRef"`
	FileName            string `json:"fileName,omitempty"`
	ContentID           string `json:"contentId,omitempty"`
	ComponentName       string `json:"componentName,omitempty"`
	ContributionType    string `json:"contributionType,omitempty"`
	DestinationFolder   string `json:"destinationFolder"`
	DestinationFileName string `json:"destinationFileName,omitempty"`
}

// DownloadFileResponse names the file that was written.
type DownloadFileResponse struct {
	FileName string `json:"fileName"`
	FilePath string `json:"filePath"`
	Bytes    int64  `json:"bytes"`
}

func (r *DownloadFileResponse) Fields() map[string]string {
	return map[string]string{
		"fileName": r.FileName,
		"filePath": r.FilePath,
	}
}

// SnapshotResponse identifies the snapshot of a build result.
// Both fields are empty when there is none.
type SnapshotResponse struct {
	SnapshotID   string `json:"snapshotId"`
	SnapshotName string `json:"snapshotName"`
}

func (r *SnapshotResponse) Fields() map[string]string {
	return map[string]string{
		"snapshotId":   r.SnapshotID,
		"snapshotName": r.SnapshotName,
	}
}

// RequestBuildRequest queues a build of a definition.
type RequestBuildRequest struct {
	BuildDefinitionID         string            `json:"buildDefinitionId"`
	PropertiesToDelete        []string          `json:"propertiesToDelete,omitempty"`
	PropertiesToAddOrOverride map[string]string `json:"propertiesToAddOrOverride,omitempty"`
}

// RequestBuildResponse carries the created build result, if any.
type RequestBuildResponse struct {
	BuildResultID string `json:"buildResultId"`
}

func (r *RequestBuildResponse) Fields() map[string]string {
	return map[string]string{"buildResultId": r.BuildResultID}
}

// CreateWorkspaceRequest provisions a workspace, retrying transient failures.
type CreateWorkspaceRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	StreamID    string `json:"streamId,omitempty"`
	SnapshotID  string `json:"snapshotId,omitempty"`
	OwnerID     string `json:"ownerId,omitempty"`

	AttemptLimit             int `json:"attemptLimit"`
	InterAttemptDelaySeconds int `json:"interAttemptDelaySeconds"`
}

// WorkspaceResponse is the created workspace handle.
type WorkspaceResponse struct {
	WorkspaceID    string `json:"workspaceId"`
	WorkspaceName  string `json:"workspaceName"`
	WorkspaceOwner string `json:"workspaceOwner,omitempty"`
}

func (r *WorkspaceResponse) Fields() map[string]string {
	return map[string]string{
		"workspaceId":   r.WorkspaceID,
		"workspaceName": r.WorkspaceName,
	}
}
