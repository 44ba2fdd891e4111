package dto

import (
	"time"

	"github.com/spec-kit/ticket-workflow/internal/domain"
)

// NotificationResponse is one inbox entry.
type NotificationResponse struct {
	ID        string                      `json:"id"`
	Type      domain.NotificationType     `json:"type"`
	Title     string                      `json:"title"`
	Message   string                      `json:"message"`
	TicketID  *string                     `json:"ticket_id"`
	Priority  domain.NotificationPriority `json:"priority"`
	Read      bool                        `json:"read"`
	CreatedAt time.Time                   `json:"created_at"`
}

// NewNotificationResponse maps a notification.
func NewNotificationResponse(n domain.Notification) NotificationResponse {
	return NotificationResponse{
		ID:        n.ID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		TicketID:  n.TicketID,
		Priority:  n.Priority,
		Read:      n.Read,
		CreatedAt: n.CreatedAt,
	}
}

// ErrorBody is the envelope for every failed request.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the machine-readable code.
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}
