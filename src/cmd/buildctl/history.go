package main

import (
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"buildctl-agent/src/broker"
	"buildctl-agent/src/contracts"
	"buildctl-agent/src/orchestrator"
	"buildctl-agent/src/provider"
)

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var filter contracts.OperationFilter

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded operations, newest first",
		Long: `Lists operations recorded in the history store. Without
BUILDCTL_POSTGRES_DSN the store lives in memory and only holds operations of
the current process, so history is mostly useful against Postgres.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, nil, func(a *app) error {
				records, err := a.orch.History(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return printJSON(cmd.OutOrStdout(), records)
				}

				return printRecords(cmd.OutOrStdout(), records)
			})
		},
	}

	cmd.Flags().StringVar(&filter.Subject, "subject", "", "Only operations on this build result, definition or workspace")
	cmd.Flags().StringVar(&filter.Operation, "operation", "", "Only this operation, e.g. wait_for_build")
	cmd.Flags().IntVar(&filter.Limit, "limit", 20, "Maximum number of records")
	return cmd
}

func newEventsCmd(opts *rootOptions) *cobra.Command {
	var (
		groupID    string
		operations []string
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Stream operation events published by buildctl processes",
		Long: `Follows the operation topics on Redpanda and prints one JSON event per
line until interrupted. Requires BUILDCTL_REDPANDA_BROKERS.

Example:
  buildctl events --operation wait_for_build --operation download_file`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, nil, func(a *app) error {
				if orchestrator.DetectMode(a.cfg) != orchestrator.DistributedMode {
					return errors.New("events requires BUILDCTL_REDPANDA_BROKERS; the in-memory broker only sees this process")
				}
				for _, op := range operations {
					if !slices.Contains(contracts.Operations(), op) {
						return provider.Validationf("operation %q is invalid, expected one of %v", op, contracts.Operations())
					}
				}
				if groupID == "" {
					groupID = "buildctl-events-" + uuid.NewString()
				}

				events, err := broker.SubscribeEvents(cmd.Context(), a.sinks.Broker, groupID, a.log, operations...)
				if err != nil {
					return err
				}
				a.log.Debug("[Events] following as consumer group %s", groupID)

				out := cmd.OutOrStdout()
				for ev := range events {
					if err := printEvent(out, ev); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&groupID, "group", "", "Consumer group (default: a fresh group that sees only new events)")
	cmd.Flags().StringSliceVar(&operations, "operation", nil, fmt.Sprintf("Operations to follow (default: all of %v)", contracts.Operations()))
	return cmd
}
