package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the pgx-backed Store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an established pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func bind(db DBTX) Repositories {
	return Repositories{
		Tickets:       NewTicketRepository(db),
		Reopens:       NewReopenRequestRepository(db),
		Activity:      NewActivityRepository(db),
		Notifications: NewNotificationRepository(db),
		Users:         NewUserRepository(db),
	}
}

// Repos returns repositories bound to the pool.
func (s *PostgresStore) Repos() Repositories {
	return bind(s.pool)
}

// WithinTx runs fn inside a read-committed transaction.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(Repositories) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(bind(tx)); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return translate(err)
	}
	return nil
}

// Pool exposes the underlying pool for seeding and migrations.
func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
