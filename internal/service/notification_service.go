package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/events"
	"github.com/spec-kit/ticket-workflow/internal/repository"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util"
)

// NotifyInput describes a single notification to create.
type NotifyInput struct {
	RecipientID string
	Type        domain.NotificationType
	Title       string
	Message     string
	TicketID    *string
	Priority    domain.NotificationPriority
}

// NotificationService is the single place notifications are created.
type NotificationService struct {
	notifications repository.NotificationRepository
	users         repository.UserRepository
	dispatcher    events.Dispatcher
	timeout       time.Duration
	logger        *zap.Logger
	now           func() time.Time
}

// NotificationDependencies bundles collaborators.
type NotificationDependencies struct {
	Notifications repository.NotificationRepository
	Users         repository.UserRepository
	Dispatcher    events.Dispatcher
	Timeout       time.Duration
	Logger        *zap.Logger
	Now           func() time.Time
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	if deps.Timeout <= 0 {
		deps.Timeout = 2 * time.Second
	}
	return &NotificationService{
		notifications: deps.Notifications,
		users:         deps.Users,
		dispatcher:    deps.Dispatcher,
		timeout:       deps.Timeout,
		logger:        deps.Logger,
		now:           deps.Now,
	}
}

// Notify persists one notification. An empty or unknown recipient is a logged
// no-op that returns (nil, nil).
func (n *NotificationService) Notify(ctx context.Context, in NotifyInput) (*domain.Notification, error) {
	recipient := strings.TrimSpace(in.RecipientID)
	if recipient == "" {
		n.logger.Warn("notification skipped: empty recipient",
			zap.String("type", string(in.Type)), zap.Stringp("ticket_id", in.TicketID))
		return nil, nil
	}
	if in.Type == "" || strings.TrimSpace(in.Title) == "" {
		return nil, apperrors.NewValidationError("notification type and title are required", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	if _, err := n.users.GetByID(ctx, recipient); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			n.logger.Warn("notification skipped: unknown recipient",
				zap.String("recipient_id", recipient), zap.String("type", string(in.Type)))
			return nil, nil
		}
		return nil, apperrors.NewUnavailable("recipient lookup failed", err)
	}

	priority := in.Priority
	if priority == "" {
		priority = domain.NotificationPriorityNormal
	}
	notification := &domain.Notification{
		ID:          uuid.NewString(),
		RecipientID: recipient,
		Type:        in.Type,
		Title:       in.Title,
		Message:     in.Message,
		TicketID:    in.TicketID,
		Priority:    priority,
		CreatedAt:   n.now(),
	}
	if err := n.notifications.Insert(ctx, notification); err != nil {
		return nil, apperrors.NewUnavailable("notification delivery failed", err)
	}

	if n.dispatcher != nil {
		event := events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventNotificationCreated,
			Timestamp: notification.CreatedAt,
			Payload: events.NotificationCreatedPayload{
				NotificationID: notification.ID,
				RecipientID:    notification.RecipientID,
				Type:           notification.Type,
			},
		}
		if notification.TicketID != nil {
			event.TicketID = *notification.TicketID
		}
		_ = n.dispatcher.Publish(ctx, event)
	}
	return notification, nil
}

// Deliver sends each input through Notify and never fails. It returns how many were stored.
func (n *NotificationService) Deliver(ctx context.Context, inputs ...NotifyInput) int {
	delivered := 0
	for _, in := range inputs {
		notification, err := n.Notify(ctx, in)
		if err != nil {
			n.logger.Warn("notification delivery failed",
				zap.String("recipient_id", in.RecipientID),
				zap.String("type", string(in.Type)),
				zap.Error(err))
			continue
		}
		if notification != nil {
			delivered++
		}
	}
	return delivered
}

// ListForRecipient returns the recipient's inbox, newest first.
func (n *NotificationService) ListForRecipient(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	items, err := n.notifications.ListByRecipient(ctx, recipientID, unreadOnly, limit)
	if err != nil {
		return nil, apperrors.NewUnavailable("list notifications failed", err)
	}
	return items, nil
}

// MarkRead flips the read flag. Only the recipient may do so.
func (n *NotificationService) MarkRead(ctx context.Context, id, recipientID string) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	if err := n.notifications.MarkRead(ctx, id, recipientID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("notification", map[string]any{"notification_id": id})
		}
		return apperrors.NewUnavailable("mark notification read failed", err)
	}
	return nil
}

// notificationPriority maps ticket priority onto inbox prominence.
func notificationPriority(p domain.TicketPriority) domain.NotificationPriority {
	switch p {
	case domain.TicketPriorityUrgent, domain.TicketPriorityHigh:
		return domain.NotificationPriorityHigh
	default:
		return domain.NotificationPriorityNormal
	}
}
