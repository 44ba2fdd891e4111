package sqlite

import (
	"context"
	"database/sql"

	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/repository"
)

type reopenRepo struct {
	q querier
}

const reopenColumns = `id, ticket_id, requester_id, reason, status, reviewer_id, review_comment, version, created_at, reviewed_at`

func (r *reopenRepo) Insert(ctx context.Context, req *domain.ReopenRequest) error {
	if req.Version == 0 {
		req.Version = 1
	}
	_, err := r.q.ExecContext(ctx, `INSERT INTO reopen_requests (`+reopenColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		req.ID, req.TicketID, req.RequesterID, req.Reason, string(req.Status), nullable(req.ReviewerID),
		req.ReviewComment, req.Version, formatTime(req.CreatedAt), formatTimePtr(req.ReviewedAt))
	return translate(err)
}

func (r *reopenRepo) GetByID(ctx context.Context, id string) (*domain.ReopenRequest, error) {
	req, err := scanReopen(r.q.QueryRowContext(ctx, `SELECT `+reopenColumns+` FROM reopen_requests WHERE id = ?`, id))
	if err != nil {
		return nil, translate(err)
	}
	return req, nil
}

func (r *reopenRepo) GetPendingByTicket(ctx context.Context, ticketID string) (*domain.ReopenRequest, error) {
	req, err := scanReopen(r.q.QueryRowContext(ctx, `SELECT `+reopenColumns+` FROM reopen_requests
		WHERE ticket_id = ? AND status = ?`, ticketID, string(domain.ReopenStatusPending)))
	if err != nil {
		return nil, translate(err)
	}
	return req, nil
}

func (r *reopenRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.ReopenRequest, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+reopenColumns+` FROM reopen_requests WHERE ticket_id = ? ORDER BY created_at ASC`, ticketID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []domain.ReopenRequest
	for rows.Next() {
		req, err := scanReopen(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *req)
	}
	return out, rows.Err()
}

func (r *reopenRepo) Update(ctx context.Context, req *domain.ReopenRequest, expectedVersion int64) error {
	res, err := r.q.ExecContext(ctx, `UPDATE reopen_requests SET status=?, reviewer_id=?, review_comment=?, reviewed_at=?,
		version=version+1 WHERE id=? AND version=?`,
		string(req.Status), nullable(req.ReviewerID), req.ReviewComment, formatTimePtr(req.ReviewedAt), req.ID, expectedVersion)
	if err != nil {
		return translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missOrConflict(ctx, r.q, "reopen_requests", req.ID)
	}
	req.Version = expectedVersion + 1
	return nil
}

func scanReopen(row rowScanner) (*domain.ReopenRequest, error) {
	var (
		req                domain.ReopenRequest
		status, created    string
		reviewer, reviewed sql.NullString
	)
	if err := row.Scan(&req.ID, &req.TicketID, &req.RequesterID, &req.Reason, &status, &reviewer,
		&req.ReviewComment, &req.Version, &created, &reviewed); err != nil {
		return nil, err
	}
	req.Status = domain.ReopenStatus(status)
	req.ReviewerID = stringPtr(reviewer)
	var err error
	if req.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if req.ReviewedAt, err = parseTimePtr(reviewed); err != nil {
		return nil, err
	}
	return &req, nil
}

type activityRepo struct {
	q querier
}

func (r *activityRepo) Append(ctx context.Context, e *domain.ActivityEntry) error {
	oldValue, err := encodeJSON(e.OldValue)
	if err != nil {
		return err
	}
	newValue, err := encodeJSON(e.NewValue)
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx, `INSERT INTO ticket_activity (id, ticket_id, actor_id, kind, body, internal, old_value, new_value, created_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		e.ID, e.TicketID, e.ActorID, string(e.Kind), e.Body, boolToInt(e.Internal), oldValue, newValue, formatTime(e.CreatedAt))
	return translate(err)
}

func (r *activityRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.ActivityEntry, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT id, ticket_id, actor_id, kind, body, internal, old_value, new_value, created_at
		FROM ticket_activity WHERE ticket_id = ? ORDER BY seq ASC`, ticketID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []domain.ActivityEntry
	for rows.Next() {
		var (
			e              domain.ActivityEntry
			kind, created  string
			internal       int
			oldRaw, newRaw sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.TicketID, &e.ActorID, &kind, &e.Body, &internal, &oldRaw, &newRaw, &created); err != nil {
			return nil, err
		}
		e.Kind = domain.ActivityKind(kind)
		e.Internal = internal == 1
		if e.OldValue, err = decodeJSON(oldRaw); err != nil {
			return nil, err
		}
		if e.NewValue, err = decodeJSON(newRaw); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type notificationRepo struct {
	q querier
}

func (r *notificationRepo) Insert(ctx context.Context, n *domain.Notification) error {
	_, err := r.q.ExecContext(ctx, `INSERT INTO notifications (id, recipient_id, type, title, message, ticket_id, priority, read, created_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		n.ID, n.RecipientID, string(n.Type), n.Title, n.Message, nullable(n.TicketID), string(n.Priority),
		boolToInt(n.Read), formatTime(n.CreatedAt))
	return translate(err)
}

func (r *notificationRepo) ListByRecipient(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, recipient_id, type, title, message, ticket_id, priority, read, created_at
		FROM notifications WHERE recipient_id = ?`
	if unreadOnly {
		query += ` AND read = 0`
	}
	query += ` ORDER BY seq DESC LIMIT ?`

	rows, err := r.q.QueryContext(ctx, query, recipientID, limit)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var (
			n                      domain.Notification
			typ, priority, created string
			ticketID               sql.NullString
			read                   int
		)
		if err := rows.Scan(&n.ID, &n.RecipientID, &typ, &n.Title, &n.Message, &ticketID, &priority, &read, &created); err != nil {
			return nil, err
		}
		n.Type = domain.NotificationType(typ)
		n.Priority = domain.NotificationPriority(priority)
		n.TicketID = stringPtr(ticketID)
		n.Read = read == 1
		if n.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *notificationRepo) MarkRead(ctx context.Context, id, recipientID string) error {
	res, err := r.q.ExecContext(ctx, `UPDATE notifications SET read = 1 WHERE id = ? AND recipient_id = ?`, id, recipientID)
	if err != nil {
		return translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

type userRepo struct {
	q querier
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var (
		u             domain.User
		role, created string
		active        int
	)
	if err := r.q.QueryRowContext(ctx, `SELECT id, name, email, role, active, created_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Name, &u.Email, &role, &active, &created); err != nil {
		return nil, translate(err)
	}
	u.Role = domain.Role(role)
	u.Active = active == 1
	var err error
	if u.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &u, nil
}

// UpsertUser mirrors an identity-provider record into the local users table.
func (s *Store) UpsertUser(ctx context.Context, u *domain.User) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO users (id, name, email, role, active, created_at)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name, email=excluded.email, role=excluded.role, active=excluded.active`,
		u.ID, u.Name, u.Email, string(u.Role), boolToInt(u.Active), formatTime(u.CreatedAt))
	return translate(err)
}
