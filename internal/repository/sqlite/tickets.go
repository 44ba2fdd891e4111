package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/repository"
)

const ticketColumns = `id, ticket_number, title, description, status, priority, category, requester_id,
	assignee_id, resolution_notes, reopen_count, version, created_at, updated_at,
	first_response_at, resolved_at, closed_at`

type ticketRepo struct {
	q querier
}

func (r *ticketRepo) Create(ctx context.Context, t *domain.Ticket) error {
	if t.Version == 0 {
		t.Version = 1
	}
	_, err := r.q.ExecContext(ctx, `INSERT INTO tickets (`+ticketColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.TicketNumber, t.Title, t.Description, string(t.Status), string(t.Priority), t.Category, t.RequesterID,
		nullable(t.AssigneeID), t.ResolutionNotes, t.ReopenCount, t.Version, formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
		formatTimePtr(t.FirstResponseAt), formatTimePtr(t.ResolvedAt), formatTimePtr(t.ClosedAt),
	)
	return translate(err)
}

func (r *ticketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	t, err := scanTicket(r.q.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id))
	if err != nil {
		return nil, translate(err)
	}
	return t, nil
}

func (r *ticketRepo) Update(ctx context.Context, t *domain.Ticket, expectedVersion int64) error {
	res, err := r.q.ExecContext(ctx, `UPDATE tickets SET title=?, description=?, status=?, priority=?, category=?,
		assignee_id=?, resolution_notes=?, reopen_count=?, updated_at=?, first_response_at=?, resolved_at=?, closed_at=?,
		version=version+1
		WHERE id=? AND version=?`,
		t.Title, t.Description, string(t.Status), string(t.Priority), t.Category,
		nullable(t.AssigneeID), t.ResolutionNotes, t.ReopenCount, formatTime(t.UpdatedAt),
		formatTimePtr(t.FirstResponseAt), formatTimePtr(t.ResolvedAt), formatTimePtr(t.ClosedAt),
		t.ID, expectedVersion,
	)
	if err != nil {
		return translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missOrConflict(ctx, r.q, "tickets", t.ID)
	}
	t.Version = expectedVersion + 1
	return nil
}

func (r *ticketRepo) List(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	var args []any
	if filter.AssigneeID != nil {
		clauses = append(clauses, "assignee_id = ?")
		args = append(args, *filter.AssigneeID)
	}
	if len(filter.Statuses) > 0 {
		marks := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			marks[i] = "?"
			args = append(args, string(status))
		}
		clauses = append(clauses, "status IN ("+strings.Join(marks, ",")+")")
	}
	limit, offset := filter.Limit, filter.Offset
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)

	rows, err := r.q.QueryContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE `+strings.Join(clauses, " AND ")+
		` ORDER BY created_at ASC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepo) ListResolvedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.q.QueryContext(ctx, `SELECT `+ticketColumns+` FROM tickets
		WHERE status = ? AND resolved_at <= ? ORDER BY resolved_at ASC LIMIT ?`,
		string(domain.TicketStatusResolved), formatTime(cutoff), limit)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	return scanTickets(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (*domain.Ticket, error) {
	var (
		t                                     domain.Ticket
		status, priority, created, updated    string
		assignee, firstResp, resolved, closed sql.NullString
	)
	if err := row.Scan(&t.ID, &t.TicketNumber, &t.Title, &t.Description, &status, &priority, &t.Category, &t.RequesterID,
		&assignee, &t.ResolutionNotes, &t.ReopenCount, &t.Version, &created, &updated,
		&firstResp, &resolved, &closed); err != nil {
		return nil, err
	}
	t.Status = domain.TicketStatus(status)
	t.Priority = domain.TicketPriority(priority)
	t.AssigneeID = stringPtr(assignee)

	var err error
	if t.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	if t.FirstResponseAt, err = parseTimePtr(firstResp); err != nil {
		return nil, err
	}
	if t.ResolvedAt, err = parseTimePtr(resolved); err != nil {
		return nil, err
	}
	if t.ClosedAt, err = parseTimePtr(closed); err != nil {
		return nil, err
	}
	return &t, nil
}

func scanTickets(rows *sql.Rows) ([]domain.Ticket, error) {
	var out []domain.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// missOrConflict distinguishes a missing row from a stale version after a conditional update.
func missOrConflict(ctx context.Context, q querier, table, id string) error {
	var count int
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table+" WHERE id = ?", id).Scan(&count); err != nil {
		return translate(err)
	}
	if count == 0 {
		return repository.ErrNotFound
	}
	return repository.ErrConflict
}
