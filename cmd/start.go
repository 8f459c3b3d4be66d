package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newStartCmd() *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Runs the configured crawl to completion in this process",
		Long: `Seeds the configured queue (or joins it if it already exists) and
keeps spawning invocations until the crawl drains or is stopped. Completed
results go to every configured sink.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return runStart(cmd, appInstance, reset)
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "remove the queue and its stored results before starting")
	return cmd
}

func runStart(cmd *cobra.Command, appInstance App, reset bool) error {
	ctx := cmd.Context()
	logger := appInstance.Logger()
	spec := appInstance.Spec()

	if reset {
		if err := resetQueue(ctx, appInstance, spec.Config.Name, true); err != nil {
			return err
		}
	}

	sinks, file, err := appInstance.Sinks(ctx)
	if err != nil {
		return err
	}

	summary, runErr := appInstance.Runner(sinks).Run(ctx, spec)
	if err := sinks.Close(); err != nil {
		logger.Warn("closing result sinks failed", zap.Error(err))
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("run crawl: %w", runErr)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "queue %s: %d done, %d failed, %d invocations\n",
		spec.Config.Name, summary.Done, summary.Failed, summary.Started)
	fmt.Fprintf(out, "status %s, queued %d, done %d\n",
		summary.Final.State.Status, len(summary.Final.Queue.Queued), len(summary.Final.Queue.Done))
	if file != nil && file.Path() != "" {
		fmt.Fprintf(out, "results exported to %s\n", file.Path())
	}
	return nil
}
