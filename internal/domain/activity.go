package domain

import "time"

// ActivityKind captures what an activity entry records.
type ActivityKind string

const (
	ActivityStatusChange   ActivityKind = "status_change"
	ActivityAssigneeChange ActivityKind = "assignee_change"
	ActivityReopenRequest  ActivityKind = "reopen_request"
	ActivityReopenReview   ActivityKind = "reopen_review"
)

// ActivityEntry is an immutable audit trail entry. An empty ActorID means the system.
type ActivityEntry struct {
	ID        string
	TicketID  string
	ActorID   string
	Kind      ActivityKind
	Body      string
	Internal  bool
	OldValue  map[string]any
	NewValue  map[string]any
	CreatedAt time.Time
}
