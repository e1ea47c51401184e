package main

import (
	"github.com/spf13/cobra"

	"buildctl-agent/src/logger"
	"buildctl-agent/src/tui"
)

func newBrowseCmd(opts *rootOptions) *cobra.Command {
	var browseOpts tui.Options

	cmd := &cobra.Command{
		Use:   "browse <build-result-id>",
		Short: "Browse the files of a build result in a terminal UI",
		Long: `Opens an interactive browser over the log or artifact files of a build
result. Enter previews the tail of a log, d saves the selected file into
--dest, Tab cycles components and / searches.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			browseOpts.BuildResultRef = args[0]
			// Log output would tear the alternate screen
			return withApp(cmd, opts, logger.NewSilentLogger(), func(a *app) error {
				return tui.Run(cmd.Context(), a.orch, browseOpts)
			})
		},
	}

	cmd.Flags().StringVarP(&browseOpts.ContributionType, "type", "t", "log", "Contribution type: log or artifact")
	cmd.Flags().StringVarP(&browseOpts.Pattern, "pattern", "p", "", "Only files matching this regular expression")
	cmd.Flags().StringVarP(&browseOpts.DownloadFolder, "dest", "d", ".", "Folder files are saved into")
	cmd.Flags().IntVar(&browseOpts.PreviewLines, "lines", tui.DefaultPreviewLines, "Trailing log lines shown in the preview")
	return cmd
}
