package contracts

// TopicPrefix prefixes every operation topic.
const TopicPrefix = "buildctl.operations."

// Operation names, one per orchestrator operation.
const (
	OpWaitForBuild     = "wait_for_build"
	OpListFiles        = "list_files"
	OpDownloadFile     = "download_file"
	OpRetrieveSnapshot = "retrieve_snapshot"
	OpRequestBuild     = "request_build"
	OpCreateWorkspace  = "create_workspace"
)

// Operations lists every operation name in a stable order.
func Operations() []string {
	return []string{
		OpWaitForBuild,
		OpListFiles,
		OpDownloadFile,
		OpRetrieveSnapshot,
		OpRequestBuild,
		OpCreateWorkspace,
	}
}

// Topic returns the broker topic events of op are published to.
// Example: buildctl.operations.wait_for_build
func Topic(op string) string {
	return TopicPrefix + op
}
