package domain

import "time"

// ReopenStatus enumerates review states of a reopen request.
type ReopenStatus string

const (
	ReopenStatusPending  ReopenStatus = "pending"
	ReopenStatusApproved ReopenStatus = "approved"
	ReopenStatusRejected ReopenStatus = "rejected"
)

// ReopenRequest asks for a resolved or closed ticket to return to active work.
// Once Status leaves pending the record is never changed again.
type ReopenRequest struct {
	ID            string
	TicketID      string
	RequesterID   string
	Reason        string
	Status        ReopenStatus
	ReviewerID    *string
	ReviewComment string
	Version       int64
	CreatedAt     time.Time
	ReviewedAt    *time.Time
}

// IsPending reports whether the request still awaits review.
func (r *ReopenRequest) IsPending() bool {
	return r.Status == ReopenStatusPending
}
