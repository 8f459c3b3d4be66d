package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/crawlqueue/internal/results"
)

func newRunCmd() *cobra.Command {
	var opts results.Options
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetches the seed URL once without touching the queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			result, err := appInstance.Coordinator().RunSingle(cmd.Context(), appInstance.Spec())
			if err != nil {
				return fmt.Errorf("run single job: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(results.Project(result, opts)); err != nil {
				return fmt.Errorf("print result: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.HTML, "html", false, "print only the response body")
	cmd.Flags().BoolVar(&opts.Links, "links", false, "include discovered links")
	cmd.Flags().BoolVar(&opts.Cookies, "cookies", false, "include cookies")
	cmd.Flags().BoolVar(&opts.Response, "response", false, "include response metadata")
	return cmd
}
