package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
)

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved, TicketStatusClosed:
		return true
	}
	return false
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID              string
	TicketNumber    string
	Title           string
	Description     string
	Status          TicketStatus
	Priority        TicketPriority
	Category        string
	RequesterID     string
	AssigneeID      *string
	ResolutionNotes string
	ReopenCount     int
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
	FirstResponseAt *time.Time
	ResolvedAt      *time.Time
	ClosedAt        *time.Time
}

// IsSettled reports whether the ticket sits in resolved or closed.
func (t *Ticket) IsSettled() bool {
	return t.Status == TicketStatusResolved || t.Status == TicketStatusClosed
}

// IsAssignedTo reports whether userID is the current assignee.
func (t *Ticket) IsAssignedTo(userID string) bool {
	return t.AssigneeID != nil && userID != "" && *t.AssigneeID == userID
}

// Clone returns a deep copy so callers can mutate without touching the snapshot.
func (t *Ticket) Clone() *Ticket {
	c := *t
	c.AssigneeID = cloneString(t.AssigneeID)
	c.FirstResponseAt = cloneTime(t.FirstResponseAt)
	c.ResolvedAt = cloneTime(t.ResolvedAt)
	c.ClosedAt = cloneTime(t.ClosedAt)
	return &c
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	t := *v
	return &t
}
