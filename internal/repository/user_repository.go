package repository

import (
	"context"

	"github.com/spec-kit/ticket-workflow/internal/domain"
)

type userRepository struct {
	db DBTX
}

// NewUserRepository returns a Postgres-backed identity lookup.
func NewUserRepository(db DBTX) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `
        SELECT id, name, email, role, active, created_at
        FROM users WHERE id=$1`

	var user domain.User
	if err := r.db.QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Role,
		&user.Active,
		&user.CreatedAt,
	); err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// UpsertUser mirrors an identity-provider record into the local users table.
func UpsertUser(ctx context.Context, db DBTX, user *domain.User) error {
	const query = `
        INSERT INTO users (id, name, email, role, active, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, email=EXCLUDED.email,
            role=EXCLUDED.role, active=EXCLUDED.active`
	_, err := db.Exec(ctx, query, user.ID, user.Name, user.Email, user.Role, user.Active, user.CreatedAt)
	return translate(err)
}
