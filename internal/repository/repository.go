//go:generate mockgen -destination=mocks/repository_mock.go -package=mocks github.com/spec-kit/ticket-workflow/internal/repository NotificationRepository,UserRepository

package repository

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/ticket-workflow/internal/domain"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a conditional write loses to a concurrent change,
	// including a second pending reopen request for the same ticket.
	ErrConflict = errors.New("record changed concurrently")
)

// TicketFilter captures listing parameters.
type TicketFilter struct {
	Statuses   []domain.TicketStatus
	AssigneeID *string
	Limit      int
	Offset     int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	// Update writes the ticket only if the stored version equals expectedVersion.
	// On success ticket.Version holds the new version.
	Update(ctx context.Context, ticket *domain.Ticket, expectedVersion int64) error
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	ListResolvedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Ticket, error)
}

// ReopenRequestRepository stores reopen requests.
type ReopenRequestRepository interface {
	Insert(ctx context.Context, req *domain.ReopenRequest) error
	GetByID(ctx context.Context, id string) (*domain.ReopenRequest, error)
	GetPendingByTicket(ctx context.Context, ticketID string) (*domain.ReopenRequest, error)
	ListByTicket(ctx context.Context, ticketID string) ([]domain.ReopenRequest, error)
	Update(ctx context.Context, req *domain.ReopenRequest, expectedVersion int64) error
}

// ActivityRepository stores audit entries.
type ActivityRepository interface {
	Append(ctx context.Context, entry *domain.ActivityEntry) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.ActivityEntry, error)
}

// NotificationRepository stores notifications.
type NotificationRepository interface {
	Insert(ctx context.Context, n *domain.Notification) error
	ListByRecipient(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]domain.Notification, error)
	MarkRead(ctx context.Context, id, recipientID string) error
}

// UserRepository is a read-only identity lookup.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// Repositories bundles repositories bound to one connection or transaction.
type Repositories struct {
	Tickets       TicketRepository
	Reopens       ReopenRequestRepository
	Activity      ActivityRepository
	Notifications NotificationRepository
	Users         UserRepository
}

// Store exposes repositories and runs units of work atomically.
type Store interface {
	Repos() Repositories
	// WithinTx runs fn in a transaction; any error rolls back every write made through
	// the repositories passed to fn.
	WithinTx(ctx context.Context, fn func(Repositories) error) error
	Ping(ctx context.Context) error
	Close() error
}
