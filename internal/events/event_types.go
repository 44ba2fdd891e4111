package events

import (
	"time"

	"github.com/spec-kit/ticket-workflow/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketAssigned      EventType = "ticket_assigned"
	EventTicketUnassigned    EventType = "ticket_unassigned"
	EventReopenRequested     EventType = "reopen_requested"
	EventReopenReviewed      EventType = "reopen_reviewed"
	EventNotificationCreated EventType = "notification_created"
)

// AllEventTypes lists every type a subscriber can listen to.
var AllEventTypes = []EventType{
	EventTicketStatusChanged,
	EventTicketAssigned,
	EventTicketUnassigned,
	EventReopenRequested,
	EventReopenReviewed,
	EventNotificationCreated,
}

// Actor encapsulates actor metadata for an event. An empty ID is the system actor.
type Actor struct {
	ID   string      `json:"id,omitempty"`
	Role domain.Role `json:"role,omitempty"`
}

// Event represents a change emitted after a mutation commits. Version is the
// ticket version after the change, zero for events not tied to a ticket write.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id,omitempty"`
	Version   int64       `json:"version,omitempty"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Comment   string              `json:"comment,omitempty"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	PreviousAssigneeID *string `json:"previous_assignee_id,omitempty"`
	AssigneeID         *string `json:"assignee_id,omitempty"`
	Reason             string  `json:"reason,omitempty"`
}

// ReopenPayload payload for request creation and review.
type ReopenPayload struct {
	RequestID string              `json:"request_id"`
	Status    domain.ReopenStatus `json:"status"`
}

// NotificationCreatedPayload payload.
type NotificationCreatedPayload struct {
	NotificationID string                  `json:"notification_id"`
	RecipientID    string                  `json:"recipient_id"`
	Type           domain.NotificationType `json:"type"`
}
