package repository

import (
	"context"

	"github.com/spec-kit/ticket-workflow/internal/domain"
)

type notificationRepository struct {
	db DBTX
}

// NewNotificationRepository returns the Postgres inbox store.
func NewNotificationRepository(db DBTX) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Insert(ctx context.Context, n *domain.Notification) error {
	const query = `
        INSERT INTO notifications (id, recipient_id, type, title, message, ticket_id, priority, read, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err := r.db.Exec(ctx, query,
		n.ID,
		n.RecipientID,
		n.Type,
		n.Title,
		n.Message,
		n.TicketID,
		n.Priority,
		n.Read,
		n.CreatedAt,
	)
	return translate(err)
}

func (r *notificationRepository) ListByRecipient(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	limit, _ = pageBounds(limit, 0, 50)
	const query = `
        SELECT id, recipient_id, type, title, message, ticket_id, priority, read, created_at
        FROM notifications
        WHERE recipient_id=$1 AND ($2 = false OR read = false)
        ORDER BY created_at DESC LIMIT $3`

	rows, err := r.db.Query(ctx, query, recipientID, unreadOnly, limit)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var result []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(
			&n.ID,
			&n.RecipientID,
			&n.Type,
			&n.Title,
			&n.Message,
			&n.TicketID,
			&n.Priority,
			&n.Read,
			&n.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

func (r *notificationRepository) MarkRead(ctx context.Context, id, recipientID string) error {
	cmd, err := r.db.Exec(ctx, `UPDATE notifications SET read=true WHERE id=$1 AND recipient_id=$2`, id, recipientID)
	if err != nil {
		return translate(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
