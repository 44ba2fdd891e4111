package repository

import (
	"context"

	"github.com/spec-kit/ticket-workflow/internal/domain"
)

type activityRepository struct {
	db DBTX
}

// NewActivityRepository returns the Postgres audit log.
func NewActivityRepository(db DBTX) ActivityRepository {
	return &activityRepository{db: db}
}

func (r *activityRepository) Append(ctx context.Context, entry *domain.ActivityEntry) error {
	const query = `
        INSERT INTO ticket_activity (id, ticket_id, actor_id, kind, body, internal, old_value, new_value, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err := r.db.Exec(ctx, query,
		entry.ID,
		entry.TicketID,
		entry.ActorID,
		entry.Kind,
		entry.Body,
		entry.Internal,
		entry.OldValue,
		entry.NewValue,
		entry.CreatedAt,
	)
	return translate(err)
}

func (r *activityRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.ActivityEntry, error) {
	const query = `
        SELECT id, ticket_id, actor_id, kind, body, internal, old_value, new_value, created_at
        FROM ticket_activity WHERE ticket_id=$1 ORDER BY created_at ASC, id ASC`

	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var result []domain.ActivityEntry
	for rows.Next() {
		var entry domain.ActivityEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.TicketID,
			&entry.ActorID,
			&entry.Kind,
			&entry.Body,
			&entry.Internal,
			&entry.OldValue,
			&entry.NewValue,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
