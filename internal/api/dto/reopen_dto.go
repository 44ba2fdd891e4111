package dto

import (
	"time"

	"github.com/spec-kit/ticket-workflow/internal/domain"
)

// CreateReopenRequest payload.
type CreateReopenRequest struct {
	Reason string `json:"reason"`
}

// ReviewReopenRequest payload.
type ReviewReopenRequest struct {
	Decision string `json:"decision"`
	Comment  string `json:"comment"`
}

// ReopenRequestResponse response.
type ReopenRequestResponse struct {
	ID            string              `json:"id"`
	TicketID      string              `json:"ticket_id"`
	RequesterID   string              `json:"requester_id"`
	Reason        string              `json:"reason"`
	Status        domain.ReopenStatus `json:"status"`
	ReviewerID    *string             `json:"reviewer_id"`
	ReviewComment string              `json:"review_comment,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	ReviewedAt    *time.Time          `json:"reviewed_at"`
}

// NewReopenRequestResponse maps a request.
func NewReopenRequestResponse(r *domain.ReopenRequest) ReopenRequestResponse {
	return ReopenRequestResponse{
		ID:            r.ID,
		TicketID:      r.TicketID,
		RequesterID:   r.RequesterID,
		Reason:        r.Reason,
		Status:        r.Status,
		ReviewerID:    r.ReviewerID,
		ReviewComment: r.ReviewComment,
		CreatedAt:     r.CreatedAt,
		ReviewedAt:    r.ReviewedAt,
	}
}
