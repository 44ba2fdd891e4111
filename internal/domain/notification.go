package domain

import "time"

// NotificationType classifies notifications for the inbox UI.
type NotificationType string

const (
	NotificationAssignmentChanged NotificationType = "assignment_changed"
	NotificationStatusChanged     NotificationType = "status_changed"
	NotificationTicketAssigned    NotificationType = "ticket_assigned"
	NotificationFeedbackRequest   NotificationType = "feedback_request"
	NotificationReopenRequested   NotificationType = "reopen_requested"
)

// NotificationPriority controls how prominently a notification is shown.
type NotificationPriority string

const (
	NotificationPriorityLow    NotificationPriority = "low"
	NotificationPriorityNormal NotificationPriority = "normal"
	NotificationPriorityHigh   NotificationPriority = "high"
)

// Notification is addressed to exactly one recipient. Only Read ever changes.
type Notification struct {
	ID          string
	RecipientID string
	Type        NotificationType
	Title       string
	Message     string
	TicketID    *string
	Priority    NotificationPriority
	Read        bool
	CreatedAt   time.Time
}
