package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

func newInfoCmd() *cobra.Command {
	var (
		watch    bool
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Prints the configured queue's state and collections",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			name := appInstance.Config().Queue.Name
			if !watch {
				return printInfo(cmd.Context(), cmd.OutOrStdout(), appInstance, name)
			}
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				if err := printInfo(cmd.Context(), cmd.OutOrStdout(), appInstance, name); err != nil {
					return err
				}
				select {
				case <-cmd.Context().Done():
					return nil
				case <-ticker.C:
				}
			}
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "keep printing until interrupted")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "refresh interval for --watch")
	return cmd
}

type queueInfo struct {
	Name       string   `json:"name"`
	Status     string   `json:"status"`
	FirstRun   bool     `json:"firstRun"`
	Queued     int      `json:"queued"`
	Processing []string `json:"processing"`
	Done       int      `json:"done"`
}

func printInfo(ctx context.Context, out io.Writer, appInstance App, name string) error {
	snap, err := appInstance.Store().Snapshot(ctx, name)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	payload, err := json.Marshal(queueInfo{
		Name:       name,
		Status:     string(snap.State.Status),
		FirstRun:   snap.State.FirstRun,
		Queued:     len(snap.Queue.Queued),
		Processing: snap.Queue.Processing,
		Done:       len(snap.Queue.Done),
	})
	if err != nil {
		return fmt.Errorf("encode info: %w", err)
	}
	_, err = fmt.Fprintln(out, string(payload))
	return err
}
