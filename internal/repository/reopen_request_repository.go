package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-workflow/internal/domain"
)

const reopenColumns = `id, ticket_id, requester_id, reason, status, reviewer_id, review_comment, version, created_at, reviewed_at`

type reopenRequestRepository struct {
	db DBTX
}

// NewReopenRequestRepository returns a Postgres-backed implementation.
func NewReopenRequestRepository(db DBTX) ReopenRequestRepository {
	return &reopenRequestRepository{db: db}
}

// Insert fails with ErrConflict when the ticket already has a pending request.
func (r *reopenRequestRepository) Insert(ctx context.Context, req *domain.ReopenRequest) error {
	const query = `
        INSERT INTO reopen_requests (id, ticket_id, requester_id, reason, status, reviewer_id, review_comment, version, created_at, reviewed_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	if req.Version == 0 {
		req.Version = 1
	}
	_, err := r.db.Exec(ctx, query,
		req.ID,
		req.TicketID,
		req.RequesterID,
		req.Reason,
		req.Status,
		req.ReviewerID,
		req.ReviewComment,
		req.Version,
		req.CreatedAt,
		req.ReviewedAt,
	)
	return translate(err)
}

func (r *reopenRequestRepository) GetByID(ctx context.Context, id string) (*domain.ReopenRequest, error) {
	req, err := scanReopen(r.db.QueryRow(ctx, `SELECT `+reopenColumns+` FROM reopen_requests WHERE id=$1`, id))
	if err != nil {
		return nil, translate(err)
	}
	return req, nil
}

func (r *reopenRequestRepository) GetPendingByTicket(ctx context.Context, ticketID string) (*domain.ReopenRequest, error) {
	query := `SELECT ` + reopenColumns + ` FROM reopen_requests WHERE ticket_id=$1 AND status=$2`
	req, err := scanReopen(r.db.QueryRow(ctx, query, ticketID, domain.ReopenStatusPending))
	if err != nil {
		return nil, translate(err)
	}
	return req, nil
}

func (r *reopenRequestRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.ReopenRequest, error) {
	rows, err := r.db.Query(ctx, `SELECT `+reopenColumns+` FROM reopen_requests WHERE ticket_id=$1 ORDER BY created_at ASC`, ticketID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var result []domain.ReopenRequest
	for rows.Next() {
		req, err := scanReopen(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *req)
	}
	return result, rows.Err()
}

func (r *reopenRequestRepository) Update(ctx context.Context, req *domain.ReopenRequest, expectedVersion int64) error {
	const query = `
        UPDATE reopen_requests SET status=$1, reviewer_id=$2, review_comment=$3, reviewed_at=$4, version=version+1
        WHERE id=$5 AND version=$6
        RETURNING version`
	var version int64
	err := r.db.QueryRow(ctx, query,
		req.Status,
		req.ReviewerID,
		req.ReviewComment,
		req.ReviewedAt,
		req.ID,
		expectedVersion,
	).Scan(&version)
	if err == pgx.ErrNoRows {
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM reopen_requests WHERE id=$1)`, req.ID).Scan(&exists); err != nil {
			return translate(err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrConflict
	}
	if err != nil {
		return translate(err)
	}
	req.Version = version
	return nil
}

func scanReopen(row pgx.Row) (*domain.ReopenRequest, error) {
	var req domain.ReopenRequest
	if err := row.Scan(
		&req.ID,
		&req.TicketID,
		&req.RequesterID,
		&req.Reason,
		&req.Status,
		&req.ReviewerID,
		&req.ReviewComment,
		&req.Version,
		&req.CreatedAt,
		&req.ReviewedAt,
	); err != nil {
		return nil, err
	}
	return &req, nil
}
