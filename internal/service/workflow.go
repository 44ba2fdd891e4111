package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-workflow/internal/config"
	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/events"
	"github.com/spec-kit/ticket-workflow/internal/repository"
	"github.com/spec-kit/ticket-workflow/internal/sla"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util"
)

// Notifier is the best-effort delivery boundary used by the workflow services.
type Notifier interface {
	Deliver(ctx context.Context, inputs ...NotifyInput) int
}

// WorkflowDependencies bundles collaborators shared by the workflow services.
type WorkflowDependencies struct {
	Store      repository.Store
	Notifier   Notifier
	Dispatcher events.Dispatcher
	Tracker    *sla.Tracker
	Workflow   config.WorkflowConfig
	Logger     *zap.Logger
	Now        func() time.Time
}

func (d WorkflowDependencies) withDefaults() WorkflowDependencies {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	if d.Tracker == nil {
		d.Tracker = sla.NewTracker(sla.DefaultPolicy())
	}
	d.Workflow = workflowWithDefaults(d.Workflow)
	return d
}

// workflowWithDefaults fills unset fields. A zero config takes every default,
// including one conflict retry; otherwise ConflictRetries is kept as given.
func workflowWithDefaults(w config.WorkflowConfig) config.WorkflowConfig {
	def := config.DefaultWorkflow()
	if w == (config.WorkflowConfig{}) {
		return def
	}
	if w.OperationTimeout <= 0 {
		w.OperationTimeout = def.OperationTimeout
	}
	if w.NotificationTimeout <= 0 {
		w.NotificationTimeout = def.NotificationTimeout
	}
	if w.ConflictRetries < 0 {
		w.ConflictRetries = 0
	}
	if w.AutoCloseAfter <= 0 {
		w.AutoCloseAfter = def.AutoCloseAfter
	}
	if w.AutoCloseInterval <= 0 {
		w.AutoCloseInterval = def.AutoCloseInterval
	}
	if w.AutoCloseBatchSize <= 0 {
		w.AutoCloseBatchSize = def.AutoCloseBatchSize
	}
	if w.SessionTimeoutMinutes <= 0 {
		w.SessionTimeoutMinutes = def.SessionTimeoutMinutes
	}
	return w
}

// runner bounds every operation by the configured timeout and retries
// concurrent-modification failures from a fresh read.
type runner struct {
	timeout time.Duration
	retries int
	logger  *zap.Logger
}

func newRunner(cfg config.WorkflowConfig, logger *zap.Logger) runner {
	return runner{timeout: cfg.OperationTimeout, retries: cfg.ConflictRetries, logger: logger}
}

func (r runner) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	for attempt := 0; ; attempt++ {
		opCtx, cancel := context.WithTimeout(ctx, r.timeout)
		err := fn(opCtx)
		timedOut := opCtx.Err() != nil
		cancel()
		if err == nil {
			return nil
		}

		err = classify(op, err, timedOut)
		if !apperrors.HasCode(err, apperrors.CodeConcurrentModification) || attempt >= r.retries {
			if apperrors.HasCode(err, apperrors.CodeUnavailable) {
				r.logger.Error("operation failed", zap.String("op", op), zap.Error(err))
			}
			return err
		}
		r.logger.Warn("retrying after concurrent modification", zap.String("op", op), zap.Int("attempt", attempt+1))
	}
}

// classify maps persistence failures onto the error taxonomy.
func classify(op string, err error, timedOut bool) error {
	var domainErr *apperrors.DomainError
	switch {
	case errors.As(err, &domainErr):
		return err
	case errors.Is(err, repository.ErrConflict):
		return apperrors.NewConcurrentModification(op, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), timedOut:
		return apperrors.NewUnavailable(op+" timed out", err)
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound("record", nil)
	default:
		return apperrors.NewUnavailable(op+" failed: storage unavailable", err)
	}
}

// effects are side effects collected inside a unit of work and released after commit.
type effects struct {
	notifications []NotifyInput
	events        []events.Event
}

func (e *effects) notify(in NotifyInput) {
	e.notifications = append(e.notifications, in)
}

func (e *effects) emit(eventType events.EventType, ticket *domain.Ticket, actor *domain.User, at time.Time, payload any) {
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: at,
		Payload:   payload,
	}
	if ticket != nil {
		event.TicketID = ticket.ID
		event.Version = ticket.Version
	}
	if actor != nil {
		event.Actor = events.Actor{ID: actor.ID, Role: actor.Role}
	}
	e.events = append(e.events, event)
}

// release delivers notifications and publishes events once writes are durable.
// The parent context may already be cancelled; delivery keeps its own bounds.
func release(ctx context.Context, notifier Notifier, dispatcher events.Dispatcher, fx effects) {
	ctx = context.WithoutCancel(ctx)
	if notifier != nil && len(fx.notifications) > 0 {
		notifier.Deliver(ctx, fx.notifications...)
	}
	if dispatcher != nil {
		for _, event := range fx.events {
			_ = dispatcher.Publish(ctx, event)
		}
	}
}

// loadActor resolves an identity. Unknown and inactive actors are treated as lacking permission.
func loadActor(ctx context.Context, users repository.UserRepository, actorID string) (*domain.User, error) {
	if strings.TrimSpace(actorID) == "" {
		return nil, apperrors.NewForbidden("actor required")
	}
	user, err := users.GetByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewForbidden("unknown actor")
		}
		return nil, err
	}
	if !user.Active {
		return nil, apperrors.NewForbidden("actor is inactive")
	}
	return user, nil
}

func loadTicket(ctx context.Context, tickets repository.TicketRepository, ticketID string) (*domain.Ticket, error) {
	ticket, err := tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, err
	}
	return ticket, nil
}

func newActivity(ticketID, actorID string, kind domain.ActivityKind, body string, at time.Time) *domain.ActivityEntry {
	return &domain.ActivityEntry{
		ID:        uuid.NewString(),
		TicketID:  ticketID,
		ActorID:   actorID,
		Kind:      kind,
		Body:      body,
		CreatedAt: at,
	}
}

func actorID(actor *domain.User) string {
	if actor == nil {
		return ""
	}
	return actor.ID
}

func valueOrNil(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func ptr[T any](v T) *T {
	return &v
}
