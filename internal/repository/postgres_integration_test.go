//go:build integration

package repository_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/persistence"
	"github.com/spec-kit/ticket-workflow/internal/repository"
)

// setupPostgres uses TEST_POSTGRES_DSN when set, otherwise starts postgres:15.
func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image: "postgres:15",
				Env: map[string]string{
					"POSTGRES_PASSWORD": "test",
					"POSTGRES_USER":     "test",
					"POSTGRES_DB":       "tickets",
				},
				ExposedPorts: []string{"5432/tcp"},
				WaitingFor: wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60 * time.Second),
			},
			Started: true,
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = pg.Terminate(ctx) })

		host, err := pg.Host(ctx)
		require.NoError(t, err)
		port, err := pg.MappedPort(ctx, "5432")
		require.NoError(t, err)
		dsn = fmt.Sprintf("postgres://test:test@%s:%s/tickets?sslmode=disable", host, port.Port())
	}

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, pool.Ping(ctx))
	require.NoError(t, persistence.RunMigrations(ctx, pool, zap.NewNop()))

	_, err = pool.Exec(ctx, `TRUNCATE notifications, ticket_activity, reopen_requests, tickets, users CASCADE`)
	require.NoError(t, err)
	return pool
}

func seedPostgres(t *testing.T, pool *pgxpool.Pool) *domain.Ticket {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	for _, u := range []domain.User{
		{ID: "cust-1", Name: "Casey", Role: domain.RoleCustomer, Active: true, CreatedAt: now},
		{ID: "agent-a", Name: "Alex", Role: domain.RoleAgent, Active: true, CreatedAt: now},
	} {
		u := u
		require.NoError(t, repository.UpsertUser(ctx, pool, &u))
	}
	ticket := &domain.Ticket{
		ID:           "t1",
		TicketNumber: "TCK-1",
		Title:        "Laptop fan",
		Status:       domain.TicketStatusOpen,
		Priority:     domain.TicketPriorityHigh,
		RequesterID:  "cust-1",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, repository.NewTicketRepository(pool).Create(ctx, ticket))
	return ticket
}

func TestPostgresVersionedUpdate(t *testing.T) {
	pool := setupPostgres(t)
	ticket := seedPostgres(t, pool)
	ctx := context.Background()
	repo := repository.NewTicketRepository(pool)

	assignee := "agent-a"
	first := ticket.Clone()
	first.AssigneeID = &assignee
	first.Status = domain.TicketStatusInProgress
	require.NoError(t, repo.Update(ctx, first, 1))
	assert.EqualValues(t, 2, first.Version)

	stale := ticket.Clone()
	stale.Status = domain.TicketStatusInProgress
	assert.ErrorIs(t, repo.Update(ctx, stale, 1), repository.ErrConflict)

	missing := ticket.Clone()
	missing.ID = "nope"
	assert.ErrorIs(t, repo.Update(ctx, missing, 1), repository.ErrNotFound)

	stored, err := repo.GetByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, stored.Status)
	assert.Equal(t, "agent-a", *stored.AssigneeID)
}

func TestPostgresSinglePendingReopen(t *testing.T) {
	pool := setupPostgres(t)
	seedPostgres(t, pool)
	ctx := context.Background()
	repo := repository.NewReopenRequestRepository(pool)

	first := &domain.ReopenRequest{ID: "r1", TicketID: "t1", RequesterID: "cust-1", Reason: "again", Status: domain.ReopenStatusPending, CreatedAt: time.Now().UTC()}
	require.NoError(t, repo.Insert(ctx, first))
	second := &domain.ReopenRequest{ID: "r2", TicketID: "t1", RequesterID: "cust-1", Reason: "again", Status: domain.ReopenStatusPending, CreatedAt: time.Now().UTC()}
	assert.ErrorIs(t, repo.Insert(ctx, second), repository.ErrConflict)

	reviewed := *first
	reviewed.Status = domain.ReopenStatusRejected
	now := time.Now().UTC()
	reviewed.ReviewedAt = &now
	require.NoError(t, repo.Update(ctx, &reviewed, first.Version))
	require.NoError(t, repo.Insert(ctx, second))

	pending, err := repo.GetPendingByTicket(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "r2", pending.ID)
}

func TestPostgresWithinTxRollsBack(t *testing.T) {
	pool := setupPostgres(t)
	seedPostgres(t, pool)
	ctx := context.Background()
	store := repository.NewPostgresStore(pool)

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(repos repository.Repositories) error {
		ticket, err := repos.Tickets.GetByID(ctx, "t1")
		if err != nil {
			return err
		}
		ticket.Status = domain.TicketStatusInProgress
		if err := repos.Tickets.Update(ctx, ticket, ticket.Version); err != nil {
			return err
		}
		if err := repos.Activity.Append(ctx, &domain.ActivityEntry{
			ID: "a1", TicketID: "t1", ActorID: "agent-a", Kind: domain.ActivityStatusChange, CreatedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	ticket, err := store.Repos().Tickets.GetByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.EqualValues(t, 1, ticket.Version)
	entries, err := store.Repos().Activity.ListByTicket(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPostgresNotificationsAndSweepQuery(t *testing.T) {
	pool := setupPostgres(t)
	ticket := seedPostgres(t, pool)
	ctx := context.Background()
	repos := repository.NewPostgresStore(pool).Repos()

	ticketID := ticket.ID
	require.NoError(t, repos.Notifications.Insert(ctx, &domain.Notification{
		ID: "n1", RecipientID: "cust-1", Type: domain.NotificationStatusChanged, Title: "Resolved",
		TicketID: &ticketID, Priority: domain.NotificationPriorityNormal, CreatedAt: time.Now().UTC(),
	}))
	assert.ErrorIs(t, repos.Notifications.MarkRead(ctx, "n1", "agent-a"), repository.ErrNotFound)
	require.NoError(t, repos.Notifications.MarkRead(ctx, "n1", "cust-1"))
	unread, err := repos.Notifications.ListByRecipient(ctx, "cust-1", true, 10)
	require.NoError(t, err)
	assert.Empty(t, unread)

	resolvedAt := time.Now().UTC().Add(-96 * time.Hour)
	resolved := ticket.Clone()
	resolved.Status = domain.TicketStatusResolved
	resolved.ResolvedAt = &resolvedAt
	resolved.ResolutionNotes = "cleaned fan"
	require.NoError(t, repos.Tickets.Update(ctx, resolved, ticket.Version))

	due, err := repos.Tickets.ListResolvedBefore(ctx, time.Now().UTC().Add(-72*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "t1", due[0].ID)
}
