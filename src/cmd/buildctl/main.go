// Package main provides the buildctl command line client.
// Every subcommand is a thin shell over one orchestrator operation; serve,
// mcp and browse expose the same operations over HTTP, MCP and a TUI.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"buildctl-agent/src/provider"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configFile string
	debug      bool
	jsonOutput bool
}

// newRootCmd builds the command tree. Tests build a fresh tree per run.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "buildctl",
		Short: "buildctl - drive a build server from scripts, services and agents",
		Long: `buildctl waits for build results, lists and downloads their log and
artifact files, reads the snapshot a build was made from, queues builds, and
creates workspaces with retry.

Configuration comes from buildctl.yaml and BUILDCTL_* environment variables;
BUILDCTL_SERVER_URL is required.

Operations are recorded locally by default. Set BUILDCTL_REDPANDA_BROKERS to
publish operation events and BUILDCTL_POSTGRES_DSN to keep history.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "Config file (default: ./buildctl.yaml or ~/.config/buildctl/buildctl.yaml)")
	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "Print results as JSON")

	rootCmd.AddCommand(
		newWaitCmd(opts),
		newFilesCmd(opts),
		newDownloadCmd(opts),
		newSnapshotCmd(opts),
		newRequestCmd(opts),
		newWorkspaceCmd(opts),
		newServeCmd(opts),
		newMCPCmd(opts),
		newBrowseCmd(opts),
		newHistoryCmd(opts),
		newEventsCmd(opts),
	)

	return rootCmd
}

// run executes the command tree with args and reports failures on stderr.
// It returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", provider.WrapError(err))
		return 1
	}
	return 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
