package dto

import (
	"time"

	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/service"
)

// TransitionRequest payload.
type TransitionRequest struct {
	Status          domain.TicketStatus `json:"status"`
	ResolutionNotes string              `json:"resolution_notes"`
	Comment         string              `json:"comment"`
}

// TransferRequest payload.
type TransferRequest struct {
	ToAgentID string `json:"to_agent_id"`
	Reason    string `json:"reason"`
}

// TicketResponse is the workflow view of a ticket.
type TicketResponse struct {
	ID              string                `json:"id"`
	TicketNumber    string                `json:"ticket_number"`
	Title           string                `json:"title"`
	Status          domain.TicketStatus   `json:"status"`
	Priority        domain.TicketPriority `json:"priority"`
	Category        string                `json:"category,omitempty"`
	RequesterID     string                `json:"requester_id"`
	AssigneeID      *string               `json:"assignee_id"`
	ResolutionNotes string                `json:"resolution_notes,omitempty"`
	ReopenCount     int                   `json:"reopen_count"`
	Version         int64                 `json:"version"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
	FirstResponseAt *time.Time            `json:"first_response_at"`
	ResolvedAt      *time.Time            `json:"resolved_at"`
	ClosedAt        *time.Time            `json:"closed_at"`
}

// NewTicketResponse maps a ticket.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:              t.ID,
		TicketNumber:    t.TicketNumber,
		Title:           t.Title,
		Status:          t.Status,
		Priority:        t.Priority,
		Category:        t.Category,
		RequesterID:     t.RequesterID,
		AssigneeID:      t.AssigneeID,
		ResolutionNotes: t.ResolutionNotes,
		ReopenCount:     t.ReopenCount,
		Version:         t.Version,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
		FirstResponseAt: t.FirstResponseAt,
		ResolvedAt:      t.ResolvedAt,
		ClosedAt:        t.ClosedAt,
	}
}

// SLAResponse reports a ticket's deadlines.
type SLAResponse struct {
	TicketID           string    `json:"ticket_id"`
	Priority           string    `json:"priority"`
	ResponseDeadline   time.Time `json:"response_deadline"`
	ResolutionDeadline time.Time `json:"resolution_deadline"`
	ResponseBreached   bool      `json:"response_breached"`
	ResolutionBreached bool      `json:"resolution_breached"`
	Breached           bool      `json:"breached"`
	RemainingSeconds   int64     `json:"remaining_seconds"`
}

// NewSLAResponse maps an evaluated clock.
func NewSLAResponse(entry *service.TicketSLA) SLAResponse {
	return SLAResponse{
		TicketID:           entry.Ticket.ID,
		Priority:           string(entry.Ticket.Priority),
		ResponseDeadline:   entry.Clock.Response,
		ResolutionDeadline: entry.Clock.Resolution,
		ResponseBreached:   entry.Clock.ResponseBreached,
		ResolutionBreached: entry.Clock.ResolutionBreached,
		Breached:           entry.Clock.Breached(),
		RemainingSeconds:   int64(entry.Remaining / time.Second),
	}
}

// ActivityResponse is one audit entry.
type ActivityResponse struct {
	ID        string              `json:"id"`
	ActorID   *string             `json:"actor_id"`
	Kind      domain.ActivityKind `json:"kind"`
	Body      string              `json:"body"`
	Internal  bool                `json:"internal"`
	OldValue  map[string]any      `json:"old_value,omitempty"`
	NewValue  map[string]any      `json:"new_value,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}

// NewActivityResponse maps an entry. System entries carry a null actor.
func NewActivityResponse(e domain.ActivityEntry) ActivityResponse {
	out := ActivityResponse{
		ID:        e.ID,
		Kind:      e.Kind,
		Body:      e.Body,
		Internal:  e.Internal,
		OldValue:  e.OldValue,
		NewValue:  e.NewValue,
		CreatedAt: e.CreatedAt,
	}
	if e.ActorID != "" {
		actor := e.ActorID
		out.ActorID = &actor
	}
	return out
}
