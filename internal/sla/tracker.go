// Package sla computes service-level deadlines from ticket fields and a policy.
// Nothing here touches storage, so every function is safe to call repeatedly.
package sla

import (
	"time"

	"github.com/spec-kit/ticket-workflow/internal/domain"
)

// Deadlines are absolute instants derived from a ticket's creation time.
type Deadlines struct {
	Response   time.Time
	Resolution time.Time
}

// Clock is the evaluated SLA state of a ticket at a point in time.
type Clock struct {
	Deadlines
	ResponseBreached   bool
	ResolutionBreached bool
}

// Breached reports whether either deadline has been missed.
func (c Clock) Breached() bool {
	return c.ResponseBreached || c.ResolutionBreached
}

// Tracker evaluates deadlines against a fixed policy.
type Tracker struct {
	policy Policy
}

// NewTracker builds a tracker for the given policy.
func NewTracker(policy Policy) *Tracker {
	return &Tracker{policy: policy}
}

// Policy returns the policy the tracker was built with.
func (t *Tracker) Policy() Policy {
	return t.policy
}

// ComputeDeadlines returns createdAt plus the response and resolution windows.
func (t *Tracker) ComputeDeadlines(ticket domain.Ticket) Deadlines {
	targets := t.policy.TargetsFor(ticket.Priority, ticket.Category)
	return Deadlines{
		Response:   ticket.CreatedAt.Add(targets.Response),
		Resolution: ticket.CreatedAt.Add(targets.Resolution),
	}
}

// Evaluate compares the ticket's milestones against its deadlines as of asOf.
//
// The response deadline only counts while the ticket is still waiting in open for
// its first response; leaving open relieves it. A late FirstResponseAt is not a breach.
// The resolution clock stops while the ticket is resolved or closed and is measured
// at ResolvedAt.
func (t *Tracker) Evaluate(ticket domain.Ticket, asOf time.Time) Clock {
	deadlines := t.ComputeDeadlines(ticket)
	clock := Clock{Deadlines: deadlines}

	if ticket.Status == domain.TicketStatusOpen && ticket.FirstResponseAt == nil {
		clock.ResponseBreached = asOf.After(deadlines.Response)
	}

	if ticket.IsSettled() {
		if ticket.ResolvedAt != nil {
			clock.ResolutionBreached = ticket.ResolvedAt.After(deadlines.Resolution)
		}
	} else {
		clock.ResolutionBreached = asOf.After(deadlines.Resolution)
	}
	return clock
}

// IsBreached reports whether any deadline protecting the ticket has passed.
func (t *Tracker) IsBreached(ticket domain.Ticket, asOf time.Time) bool {
	return t.Evaluate(ticket, asOf).Breached()
}

// Remaining returns time left until the resolution deadline, negative once breached.
// Settled tickets report zero.
func (t *Tracker) Remaining(ticket domain.Ticket, asOf time.Time) time.Duration {
	if ticket.IsSettled() {
		return 0
	}
	return t.ComputeDeadlines(ticket).Resolution.Sub(asOf)
}

// ComplianceRate returns the percentage of resolved or closed tickets resolved on time.
// Reopened tickets keep a stale ResolvedAt and are skipped. It returns 0 when no
// ticket is settled.
func (t *Tracker) ComplianceRate(tickets []domain.Ticket) float64 {
	resolved, onTime := 0, 0
	for i := range tickets {
		if !tickets[i].IsSettled() || tickets[i].ResolvedAt == nil {
			continue
		}
		resolved++
		if !tickets[i].ResolvedAt.After(t.ComputeDeadlines(tickets[i]).Resolution) {
			onTime++
		}
	}
	if resolved == 0 {
		return 0
	}
	return float64(onTime) / float64(resolved) * 100
}

// Stamp freezes the response clock the first time a ticket leaves open.
func (t *Tracker) Stamp(ticket *domain.Ticket, from, to domain.TicketStatus, at time.Time) {
	if from == domain.TicketStatusOpen && to != domain.TicketStatusOpen && ticket.FirstResponseAt == nil {
		stamped := at
		ticket.FirstResponseAt = &stamped
	}
}
