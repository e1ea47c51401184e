package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"buildctl-agent/src/orchestrator"
	"buildctl-agent/src/resolve"
)

func newWaitCmd(opts *rootOptions) *cobra.Command {
	var (
		states   []string
		timeout  int
		interval int
	)

	cmd := &cobra.Command{
		Use:   "wait <build-result-id>",
		Short: "Wait until a build result reaches one of the given states",
		Long: `Polls the build result every --interval seconds until its state is one of
--states or --timeout seconds have passed. A timeout of -1 waits forever.

Running out of time is not an error: the last observed state is printed
with timedOut=true.

Example:
  buildctl wait 2f4e6a8c-0b1d-4e3f-a5c7-9e1b3d5f7a90 --states COMPLETED,CANCELED --timeout 1800`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, nil, func(a *app) error {
				res, err := a.orch.WaitForBuild(cmd.Context(), orchestrator.WaitForBuildRequest{
					BuildResultRef:  args[0],
					States:          states,
					TimeoutSeconds:  timeout,
					IntervalSeconds: interval,
				})
				if err != nil {
					return err
				}
				return printFields(cmd.OutOrStdout(), res, opts.jsonOutput)
			})
		},
	}

	cmd.Flags().StringSliceVar(&states, "states", []string{"COMPLETED"}, "Acceptable states (NOT_STARTED, IN_PROGRESS, COMPLETED, INCOMPLETE, CANCELED)")
	cmd.Flags().IntVar(&timeout, "timeout", 600, "Time budget in seconds, -1 waits forever")
	cmd.Flags().IntVar(&interval, "interval", 10, "Seconds between polls")
	return cmd
}

func newFilesCmd(opts *rootOptions) *cobra.Command {
	var req orchestrator.ListFilesRequest

	cmd := &cobra.Command{
		Use:   "files <build-result-id>",
		Short: "List the log or artifact files of a build result",
		Long: `Lists files in server order. --pattern is a regular expression that must
match the whole file name.

Example:
  buildctl files 2f4e6a8c-0b1d-4e3f-a5c7-9e1b3d5f7a90 --pattern 'test-.*\.log' --component api`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.BuildResultRef = args[0]
			return withApp(cmd, opts, nil, func(a *app) error {
				res, err := a.orch.ListFiles(cmd.Context(), req)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return printFields(cmd.OutOrStdout(), res, true)
				}
				return printFiles(cmd.OutOrStdout(), res.Files)
			})
		},
	}

	cmd.Flags().StringVarP(&req.FileNameOrPattern, "pattern", "p", "", "File name or regular expression")
	cmd.Flags().StringVarP(&req.ComponentName, "component", "c", "", "Restrict to one component")
	cmd.Flags().StringVarP(&req.ContributionType, "type", "t", "log", "Contribution type: log or artifact")
	cmd.Flags().IntVarP(&req.MaxResults, "max", "n", 100, fmt.Sprintf("Maximum number of files (1-%d)", resolve.MaxResultsLimit))
	return cmd
}

func newDownloadCmd(opts *rootOptions) *cobra.Command {
	var req orchestrator.DownloadFileRequest

	cmd := &cobra.Command{
		Use:   "download <build-result-id>",
		Short: "Download one file of a build result",
		Long: `Downloads the first file matching --file, or the file with --content-id,
into --dest. Existing local files are never overwritten: a free name such as
build_1.log is chosen instead.

Example:
  buildctl download 2f4e6a8c-0b1d-4e3f-a5c7-9e1b3d5f7a90 --file build.log --dest ./logs`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.BuildResultRef = args[0]
			return withApp(cmd, opts, nil, func(a *app) error {
				res, err := a.orch.DownloadFile(cmd.Context(), req)
				if err != nil {
					return err
				}
				a.log.Debug("[buildctl] wrote %d bytes to %s", res.Bytes, res.FilePath)
				return printFields(cmd.OutOrStdout(), res, opts.jsonOutput)
			})
		},
	}

	cmd.Flags().StringVarP(&req.FileName, "file", "f", "", "Exact file name")
	cmd.Flags().StringVar(&req.ContentID, "content-id", "", "Content identifier of the file")
	cmd.Flags().StringVarP(&req.ComponentName, "component", "c", "", "Restrict to one component")
	cmd.Flags().StringVarP(&req.ContributionType, "type", "t", "log", "Contribution type: log or artifact")
	cmd.Flags().StringVarP(&req.DestinationFolder, "dest", "d", ".", "Existing, writable destination folder")
	cmd.Flags().StringVar(&req.DestinationFileName, "name", "", "Local file name (default: the server file name)")
	cmd.MarkFlagsMutuallyExclusive("file", "content-id")
	cmd.MarkFlagsOneRequired("file", "content-id")
	return cmd
}

func newSnapshotCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot <build-result-id>",
		Short: "Show the snapshot a build result was built from",
		Long: `Prints snapshotId and snapshotName. Both are empty when the build was
not made from a snapshot.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, nil, func(a *app) error {
				res, err := a.orch.RetrieveSnapshotFromBuild(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printFields(cmd.OutOrStdout(), res, opts.jsonOutput)
			})
		},
	}
}

func newRequestCmd(opts *rootOptions) *cobra.Command {
	var (
		toDelete []string
		toSet    map[string]string
	)

	cmd := &cobra.Command{
		Use:   "request <build-definition-id>",
		Short: "Queue a build of a build definition",
		Long: `Queues a build, removing the --delete properties and adding or overriding
the --set properties for this build only.

Example:
  buildctl request nightly --set branch=main --set shards=4 --delete legacy.flag`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, nil, func(a *app) error {
				res, err := a.orch.RequestBuild(cmd.Context(), orchestrator.RequestBuildRequest{
					BuildDefinitionID:         args[0],
					PropertiesToDelete:        toDelete,
					PropertiesToAddOrOverride: toSet,
				})
				if err != nil {
					return err
				}
				return printFields(cmd.OutOrStdout(), res, opts.jsonOutput)
			})
		},
	}

	cmd.Flags().StringSliceVar(&toDelete, "delete", nil, "Property names to remove")
	cmd.Flags().StringToStringVar(&toSet, "set", nil, "Properties to add or override, as name=value")
	return cmd
}

func newWorkspaceCmd(opts *rootOptions) *cobra.Command {
	var (
		req      orchestrator.CreateWorkspaceRequest
		attempts int
		delay    int
	)

	cmd := &cobra.Command{
		Use:   "workspace <name>",
		Short: "Create a workspace, retrying transient server failures",
		Long: `Creates a workspace. Transient failures (timeouts, 5xx, rate limiting) are
retried up to --attempts times in total, --delay seconds apart. Defaults come
from retry_attempts and retry_delay in the configuration.

Example:
  buildctl workspace ci-agent-7 --stream main --owner ci-bot --attempts 5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Name = strings.TrimSpace(args[0])
			return withApp(cmd, opts, nil, func(a *app) error {
				req.AttemptLimit = a.cfg.RetryAttempts
				if cmd.Flags().Changed("attempts") {
					req.AttemptLimit = attempts
				}
				req.InterAttemptDelaySeconds = int(a.cfg.RetryDelay.Seconds())
				if cmd.Flags().Changed("delay") {
					req.InterAttemptDelaySeconds = delay
				}

				res, err := a.orch.CreateWorkspaceWithRetry(cmd.Context(), req)
				if err != nil {
					return err
				}
				return printFields(cmd.OutOrStdout(), res, opts.jsonOutput)
			})
		},
	}

	cmd.Flags().StringVar(&req.Description, "description", "", "Workspace description")
	cmd.Flags().StringVar(&req.StreamID, "stream", "", "Stream to populate the workspace from")
	cmd.Flags().StringVar(&req.SnapshotID, "snapshot", "", "Snapshot to populate the workspace from")
	cmd.Flags().StringVar(&req.OwnerID, "owner", "", "Owner of the workspace")
	cmd.Flags().IntVar(&attempts, "attempts", 3, "Total attempts (default: retry_attempts)")
	cmd.Flags().IntVar(&delay, "delay", 5, "Seconds between attempts (default: retry_delay)")
	return cmd
}
