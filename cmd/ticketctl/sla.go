package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/spec-kit/ticket-workflow/internal/api/dto"
	"github.com/spec-kit/ticket-workflow/internal/app"
	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/repository"
	"github.com/spec-kit/ticket-workflow/internal/service"
)

func newSLACmd(root *rootOptions) *cobra.Command {
	var (
		statuses []string
		assignee string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "sla",
		Short: "Report SLA deadlines and compliance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := repository.TicketFilter{Limit: limit}
			for _, s := range statuses {
				status := domain.TicketStatus(s)
				if !status.Valid() {
					return fmt.Errorf("unknown status %q", s)
				}
				filter.Statuses = append(filter.Statuses, status)
			}
			if assignee != "" {
				filter.AssigneeID = &assignee
			}

			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				report, err := rt.Services.SLA.Report(ctx, filter)
				if err != nil {
					return err
				}
				if root.jsonOutput {
					out := struct {
						ComplianceRate float64           `json:"compliance_rate"`
						Breached       int               `json:"breached"`
						Tickets        []dto.SLAResponse `json:"tickets"`
					}{ComplianceRate: report.ComplianceRate, Breached: report.Breached, Tickets: []dto.SLAResponse{}}
					for i := range report.Tickets {
						out.Tickets = append(out.Tickets, dto.NewSLAResponse(&report.Tickets[i]))
					}
					return printJSON(cmd.OutOrStdout(), out)
				}
				renderSLAReport(cmd.OutOrStdout(), report)
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Status filter (repeatable)")
	cmd.Flags().StringVar(&assignee, "assignee", "", "Only tickets assigned to this agent")
	cmd.Flags().IntVar(&limit, "limit", 200, "Maximum tickets to evaluate")
	return cmd
}

func renderSLAReport(w io.Writer, report *service.SLAReport) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Ticket", "Priority", "Status", "Response Due", "Resolution Due", "Breached", "Remaining"})
	for _, entry := range report.Tickets {
		breached := ""
		switch {
		case entry.Clock.ResponseBreached && entry.Clock.ResolutionBreached:
			breached = "response, resolution"
		case entry.Clock.ResponseBreached:
			breached = "response"
		case entry.Clock.ResolutionBreached:
			breached = "resolution"
		}
		remaining := "-"
		if !entry.Ticket.IsSettled() {
			remaining = entry.Remaining.Round(time.Minute).String()
		}
		tw.AppendRow(table.Row{
			entry.Ticket.TicketNumber,
			entry.Ticket.Priority,
			entry.Ticket.Status,
			entry.Clock.Response.Format(time.RFC3339),
			entry.Clock.Resolution.Format(time.RFC3339),
			breached,
			remaining,
		})
	}
	tw.AppendFooter(table.Row{"", "", "", "", "Compliance", fmt.Sprintf("%.1f%%", report.ComplianceRate), fmt.Sprintf("%d breached", report.Breached)})
	tw.Render()
}
