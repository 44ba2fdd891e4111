package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spec-kit/ticket-workflow/internal/api/dto"
	"github.com/spec-kit/ticket-workflow/internal/app"
	"github.com/spec-kit/ticket-workflow/internal/service"
)

func newReviewCmd(root *rootOptions) *cobra.Command {
	var (
		reviewer string
		decision string
		comment  string
	)
	cmd := &cobra.Command{
		Use:   "review <request-id>",
		Short: "Approve or reject a pending reopen request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if reviewer == "" {
				return errors.New("--reviewer is required")
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				reviewed, err := rt.Services.Reopen.Review(ctx, args[0], reviewer, service.ReviewInput{
					Decision: service.ReviewDecision(decision),
					Comment:  comment,
				})
				if err != nil {
					return err
				}
				if root.jsonOutput {
					return printJSON(cmd.OutOrStdout(), dto.NewReopenRequestResponse(reviewed))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "request %s %s for ticket %s\n", reviewed.ID, reviewed.Status, reviewed.TicketID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reviewer, "reviewer", "", "Reviewer user id (agent or admin)")
	cmd.Flags().StringVar(&decision, "decision", "", "approved or rejected")
	cmd.Flags().StringVar(&comment, "comment", "", "Optional reviewer comment")
	return cmd
}
