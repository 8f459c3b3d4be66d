package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Marks the configured queue inactive",
		Long: `Sets the queue status to INACTIVE. Running invocations finish their
current job; new invocations are refused and nothing new is scheduled.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			name := appInstance.Config().Queue.Name
			if err := appInstance.Store().Stop(cmd.Context(), name); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queue %s stopped\n", name)
			return nil
		},
	}
}

func newResetCmd() *cobra.Command {
	var withResults bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Deletes the state and collections of the configured queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			name := appInstance.Config().Queue.Name
			if err := resetQueue(cmd.Context(), appInstance, name, withResults); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queue %s reset\n", name)
			return nil
		},
	}
	cmd.Flags().BoolVar(&withResults, "results", false, "also delete stored results")
	return cmd
}

func resetQueue(ctx context.Context, appInstance App, name string, withResults bool) error {
	if err := appInstance.Store().Remove(ctx, name); err != nil {
		return err
	}
	if withResults {
		if err := appInstance.Results().Clear(ctx, name); err != nil {
			return err
		}
	}
	appInstance.Logger().Info("queue reset", zap.String("queue", name), zap.Bool("results", withResults))
	return nil
}
