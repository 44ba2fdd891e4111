package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/spec-kit/ticket-workflow/internal/app"
)

func newAutoCloseCmd(root *rootOptions) *cobra.Command {
	var window time.Duration
	cmd := &cobra.Command{
		Use:   "autoclose",
		Short: "Close resolved tickets past the auto-close window once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if window <= 0 {
					window = rt.Config.Workflow.AutoCloseAfter
				}
				result, err := rt.Services.Status.CloseExpiredResolved(ctx, window)
				if err != nil {
					return err
				}
				if root.jsonOutput {
					return printJSON(cmd.OutOrStdout(), map[string]int{
						"scanned": result.Scanned,
						"closed":  result.Closed,
						"skipped": result.Skipped,
					})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "scanned %d, closed %d, skipped %d\n", result.Scanned, result.Closed, result.Skipped)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&window, "window", 0, "Override the configured auto-close window")
	return cmd
}
