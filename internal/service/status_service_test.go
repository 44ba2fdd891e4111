package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-workflow/internal/config"
	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/events"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util"
)

func assignedTicket(t *testing.T, f *fixture, id string) {
	t.Helper()
	f.openTicket(id, domain.TicketPriorityMedium)
	_, err := f.assignment.SelfAssign(context.Background(), id, "agent-a")
	require.NoError(t, err)
}

func TestResolveRequiresNotes(t *testing.T) {
	f := newFixture(t)
	assignedTicket(t, f, "t1")

	_, err := f.status.Transition(context.Background(), "t1", "agent-a", domain.TicketStatusResolved, TransitionMetadata{ResolutionNotes: "   "})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
	assert.Equal(t, domain.TicketStatusInProgress, f.store.ticket(t, "t1").Status)
}

func TestResolveStampsAndNotifiesRequester(t *testing.T) {
	f := newFixture(t)
	assignedTicket(t, f, "t1")
	f.advance(3 * time.Hour)

	ticket, err := f.status.Transition(context.Background(), "t1", "agent-a", domain.TicketStatusResolved, TransitionMetadata{ResolutionNotes: " restarted service "})
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatusResolved, ticket.Status)
	require.NotNil(t, ticket.ResolvedAt)
	assert.Equal(t, baseTime.Add(3*time.Hour), *ticket.ResolvedAt)
	assert.Equal(t, "restarted service", ticket.ResolutionNotes)
	require.NotNil(t, ticket.FirstResponseAt)
	assert.Equal(t, baseTime, *ticket.FirstResponseAt)

	notes := f.store.notificationsFor("cust-1")
	require.Len(t, notes, 2)
	assert.Equal(t, domain.NotificationStatusChanged, notes[0].Type)
	assert.Equal(t, domain.NotificationFeedbackRequest, notes[1].Type)
	assert.Empty(t, f.store.notificationsFor("agent-a"), "actor is not notified of their own change")

	changes := f.events.OfType(events.EventTicketStatusChanged)
	require.NotEmpty(t, changes)
	last := changes[len(changes)-1]
	assert.Equal(t, ticket.Version, last.Version)
	assert.Equal(t, "agent-a", last.Actor.ID)
}

func TestTransitionPermissions(t *testing.T) {
	f := newFixture(t)
	assignedTicket(t, f, "t1")
	ctx := context.Background()

	for _, actor := range []string{"agent-b", "cust-1", "agent-off", "ghost", ""} {
		_, err := f.status.Transition(ctx, "t1", actor, domain.TicketStatusResolved, TransitionMetadata{ResolutionNotes: "done"})
		assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden), "actor %q", actor)
	}

	ticket, err := f.status.Transition(ctx, "t1", "admin-1", domain.TicketStatusResolved, TransitionMetadata{ResolutionNotes: "done"})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, ticket.Status)
	require.Len(t, f.store.notificationsFor("agent-a"), 1, "assignee hears about an admin's change")
}

func TestForbiddenBeatsInvalidTransition(t *testing.T) {
	f := newFixture(t)
	assignedTicket(t, f, "t1")

	_, err := f.status.Transition(context.Background(), "t1", "agent-b", domain.TicketStatusClosed, TransitionMetadata{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
}

func TestEdgeTable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	assignedTicket(t, f, "t1")

	_, err := f.status.Transition(ctx, "t1", "agent-a", domain.TicketStatusClosed, TransitionMetadata{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTransition), "in_progress cannot jump to closed")

	_, err = f.status.Transition(ctx, "t1", "agent-a", domain.TicketStatusInProgress, TransitionMetadata{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTransition), "same status is not an edge")

	_, err = f.status.Transition(ctx, "t1", "agent-a", domain.TicketStatusOpen, TransitionMetadata{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden), "only admins send a ticket back to open")

	ticket, err := f.status.Transition(ctx, "t1", "admin-1", domain.TicketStatusOpen, TransitionMetadata{})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)

	_, err = f.status.Transition(ctx, "t1", "agent-a", "archived", TransitionMetadata{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = f.status.Transition(ctx, "missing", "admin-1", domain.TicketStatusClosed, TransitionMetadata{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestSettledTicketsNeverReopenDirectly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.resolvedTicket(t, "t1")

	for _, target := range []domain.TicketStatus{domain.TicketStatusOpen, domain.TicketStatusInProgress} {
		_, err := f.status.Transition(ctx, "t1", "admin-1", target, TransitionMetadata{})
		assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTransition), "resolved -> %s", target)
	}

	closed, err := f.status.Transition(ctx, "t1", "agent-a", domain.TicketStatusClosed, TransitionMetadata{})
	require.NoError(t, err)
	require.NotNil(t, closed.ClosedAt)
	require.NotNil(t, closed.ResolvedAt)

	_, err = f.status.Transition(ctx, "t1", "admin-1", domain.TicketStatusOpen, TransitionMetadata{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTransition))
	assert.Equal(t, domain.TicketStatusClosed, f.store.ticket(t, "t1").Status)
}

func TestUnassignedOpenTicketCannotStart(t *testing.T) {
	f := newFixture(t)
	f.openTicket("t1", domain.TicketPriorityLow)

	_, err := f.status.Transition(context.Background(), "t1", "admin-1", domain.TicketStatusInProgress, TransitionMetadata{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidState))
}

func TestTransitionWritesActivity(t *testing.T) {
	f := newFixture(t)
	assignedTicket(t, f, "t1")

	_, err := f.status.Transition(context.Background(), "t1", "agent-a", domain.TicketStatusResolved, TransitionMetadata{ResolutionNotes: "fixed", Comment: "customer confirmed"})
	require.NoError(t, err)

	history, err := f.status.History(context.Background(), "t1")
	require.NoError(t, err)
	last := history[len(history)-1]
	assert.Equal(t, domain.ActivityStatusChange, last.Kind)
	assert.Equal(t, "in_progress", last.OldValue["status"])
	assert.Equal(t, "resolved", last.NewValue["status"])
	assert.Contains(t, last.Body, "customer confirmed")
	assert.False(t, last.Internal)
}

func TestConflictIsRetriedOnce(t *testing.T) {
	f := newFixture(t)
	assignedTicket(t, f, "t1")
	f.store.ticketConflicts = 1

	ticket, err := f.status.Transition(context.Background(), "t1", "agent-a", domain.TicketStatusResolved, TransitionMetadata{ResolutionNotes: "ok"})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, ticket.Status)
	assert.Len(t, f.store.notificationsFor("cust-1"), 2, "effects of the failed attempt are discarded")
}

func TestRepeatedConflictSurfaces(t *testing.T) {
	f := newFixture(t)
	assignedTicket(t, f, "t1")
	before := f.store.ticket(t, "t1")
	f.store.ticketConflicts = 2

	_, err := f.status.Transition(context.Background(), "t1", "agent-a", domain.TicketStatusResolved, TransitionMetadata{ResolutionNotes: "ok"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConcurrentModification))
	assert.Equal(t, before, f.store.ticket(t, "t1"))
	assert.Empty(t, f.store.notificationsFor("cust-1"))
}

func TestNoRetryWhenDisabled(t *testing.T) {
	f := newFixture(t, func(c *config.WorkflowConfig) { c.ConflictRetries = 0 })
	assignedTicket(t, f, "t1")
	f.store.ticketConflicts = 1

	_, err := f.status.Transition(context.Background(), "t1", "agent-a", domain.TicketStatusResolved, TransitionMetadata{ResolutionNotes: "ok"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConcurrentModification))
}

func TestPersistenceTimeoutIsUnavailable(t *testing.T) {
	f := newFixture(t, func(c *config.WorkflowConfig) { c.OperationTimeout = 20 * time.Millisecond })
	assignedTicket(t, f, "t1")
	f.store.beforeTx = func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}

	_, err := f.status.Transition(context.Background(), "t1", "agent-a", domain.TicketStatusResolved, TransitionMetadata{ResolutionNotes: "ok"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnavailable))
	assert.Equal(t, domain.TicketStatusInProgress, f.store.ticket(t, "t1").Status)
}

func TestPersistenceFailureIsUnavailable(t *testing.T) {
	f := newFixture(t)
	assignedTicket(t, f, "t1")
	f.store.beforeTx = func(context.Context) error { return errors.New("connection reset") }

	_, err := f.status.Transition(context.Background(), "t1", "agent-a", domain.TicketStatusResolved, TransitionMetadata{ResolutionNotes: "ok"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnavailable))
}

func TestNotificationFailureDoesNotFailTransition(t *testing.T) {
	f := newFixture(t)
	assignedTicket(t, f, "t1")
	f.store.notificationErr = errors.New("inbox down")

	ticket, err := f.status.Transition(context.Background(), "t1", "agent-a", domain.TicketStatusResolved, TransitionMetadata{ResolutionNotes: "ok"})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, ticket.Status)
	assert.Equal(t, domain.TicketStatusResolved, f.store.ticket(t, "t1").Status)
}

func TestCloseExpiredResolved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.resolvedTicket(t, "old")
	f.advance(48 * time.Hour)
	f.resolvedTicket(t, "fresh")
	f.advance(30 * time.Hour)

	result, err := f.status.CloseExpiredResolved(ctx, 72*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Scanned: 1, Closed: 1}, result)

	old := f.store.ticket(t, "old")
	assert.Equal(t, domain.TicketStatusClosed, old.Status)
	require.NotNil(t, old.ClosedAt)
	assert.Equal(t, domain.TicketStatusResolved, f.store.ticket(t, "fresh").Status)

	history := f.store.activityFor("old")
	assert.Equal(t, "", history[len(history)-1].ActorID, "system actor")

	again, err := f.status.CloseExpiredResolved(ctx, 72*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, again.Closed)
}

func TestCloseExpiredSkipsConflicts(t *testing.T) {
	f := newFixture(t, func(c *config.WorkflowConfig) { c.ConflictRetries = 0 })
	f.resolvedTicket(t, "t1")
	f.advance(100 * time.Hour)
	f.store.ticketConflicts = 1

	result, err := f.status.CloseExpiredResolved(context.Background(), 72*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Scanned: 1, Skipped: 1}, result)
	assert.Equal(t, domain.TicketStatusResolved, f.store.ticket(t, "t1").Status)
}

func TestResolvedAtImpliedBySettledStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.resolvedTicket(t, "t1")
	_, err := f.status.Transition(ctx, "t1", "agent-a", domain.TicketStatusClosed, TransitionMetadata{})
	require.NoError(t, err)

	req, err := f.reopen.CreateRequest(ctx, "t1", "cust-1", "broken again")
	require.NoError(t, err)
	_, err = f.reopen.Review(ctx, req.ID, "admin-1", ReviewInput{Decision: DecisionApproved})
	require.NoError(t, err)

	ticket := f.store.ticket(t, "t1")
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.NotNil(t, ticket.ResolvedAt, "history of resolution is kept")
	assert.Nil(t, ticket.ClosedAt)

	_, err = f.status.Transition(ctx, "t1", "agent-a", domain.TicketStatusInProgress, TransitionMetadata{})
	require.NoError(t, err)
	f.advance(time.Hour)
	resolved, err := f.status.Transition(ctx, "t1", "agent-a", domain.TicketStatusResolved, TransitionMetadata{ResolutionNotes: "for real"})
	require.NoError(t, err)
	assert.Equal(t, f.clock(), *resolved.ResolvedAt)
}
