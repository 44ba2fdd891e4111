package service

import (
	"context"
	"time"

	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/repository"
	"github.com/spec-kit/ticket-workflow/internal/sla"
)

// TicketSLA is the evaluated clock of one ticket.
type TicketSLA struct {
	Ticket    domain.Ticket
	Clock     sla.Clock
	Remaining time.Duration
}

// SLAReport aggregates clocks for a set of tickets.
type SLAReport struct {
	Tickets        []TicketSLA
	ComplianceRate float64
	Breached       int
}

// SLAService reads tickets and evaluates them against the policy. It never writes.
type SLAService struct {
	store   repository.Store
	tracker *sla.Tracker
	run     runner
	now     func() time.Time
}

// NewSLAService creates the service.
func NewSLAService(deps WorkflowDependencies) *SLAService {
	deps = deps.withDefaults()
	return &SLAService{
		store:   deps.Store,
		tracker: deps.Tracker,
		run:     newRunner(deps.Workflow, deps.Logger),
		now:     deps.Now,
	}
}

// ForTicket evaluates one ticket as of now.
func (s *SLAService) ForTicket(ctx context.Context, ticketID string) (*TicketSLA, error) {
	var ticket *domain.Ticket
	if err := s.run.do(ctx, "sla lookup", func(ctx context.Context) error {
		var err error
		ticket, err = loadTicket(ctx, s.store.Repos().Tickets, ticketID)
		return err
	}); err != nil {
		return nil, err
	}
	entry := s.evaluate(*ticket, s.now())
	return &entry, nil
}

// Report evaluates every ticket matching filter.
func (s *SLAService) Report(ctx context.Context, filter repository.TicketFilter) (*SLAReport, error) {
	var tickets []domain.Ticket
	if err := s.run.do(ctx, "sla report", func(ctx context.Context) error {
		var err error
		tickets, err = s.store.Repos().Tickets.List(ctx, filter)
		return err
	}); err != nil {
		return nil, err
	}

	asOf := s.now()
	report := &SLAReport{ComplianceRate: s.tracker.ComplianceRate(tickets)}
	for _, ticket := range tickets {
		entry := s.evaluate(ticket, asOf)
		if entry.Clock.Breached() {
			report.Breached++
		}
		report.Tickets = append(report.Tickets, entry)
	}
	return report, nil
}

func (s *SLAService) evaluate(ticket domain.Ticket, asOf time.Time) TicketSLA {
	return TicketSLA{
		Ticket:    ticket,
		Clock:     s.tracker.Evaluate(ticket, asOf),
		Remaining: s.tracker.Remaining(ticket, asOf),
	}
}
