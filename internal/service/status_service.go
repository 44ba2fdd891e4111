package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/events"
	"github.com/spec-kit/ticket-workflow/internal/repository"
	"github.com/spec-kit/ticket-workflow/internal/sla"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util"
)

type edge struct {
	from domain.TicketStatus
	to   domain.TicketStatus
}

type edgeRule struct {
	adminOnly bool
	// reopen edges are reachable only through an approved reopen request.
	reopen bool
}

var transitionTable = map[edge]edgeRule{
	{domain.TicketStatusOpen, domain.TicketStatusInProgress}:     {},
	{domain.TicketStatusInProgress, domain.TicketStatusResolved}: {},
	{domain.TicketStatusInProgress, domain.TicketStatusOpen}:     {adminOnly: true},
	{domain.TicketStatusResolved, domain.TicketStatusClosed}:     {},
	{domain.TicketStatusResolved, domain.TicketStatusOpen}:       {reopen: true},
	{domain.TicketStatusResolved, domain.TicketStatusInProgress}: {reopen: true},
	{domain.TicketStatusClosed, domain.TicketStatusOpen}:         {reopen: true},
	{domain.TicketStatusClosed, domain.TicketStatusInProgress}:   {reopen: true},
}

// TransitionMetadata carries optional data for a status change.
type TransitionMetadata struct {
	ResolutionNotes string
	Comment         string
}

// applyOptions select which guards a caller has already satisfied.
type applyOptions struct {
	// viaReopen unlocks the reopen edges.
	viaReopen bool
	// authorized skips the assignee check; the caller checked permission itself.
	authorized bool
	// system is the auto-close actor.
	system bool
	// silent suppresses transition notifications; the caller sends its own.
	silent bool
}

// SweepResult summarizes an auto-close run.
type SweepResult struct {
	Scanned int
	Closed  int
	Skipped int
}

// StatusService is the authoritative ticket state machine.
type StatusService struct {
	store      repository.Store
	notifier   Notifier
	dispatcher events.Dispatcher
	tracker    *sla.Tracker
	run        runner
	batchSize  int
	logger     *zap.Logger
	now        func() time.Time
}

// NewStatusService creates the service.
func NewStatusService(deps WorkflowDependencies) *StatusService {
	deps = deps.withDefaults()
	return &StatusService{
		store:      deps.Store,
		notifier:   deps.Notifier,
		dispatcher: deps.Dispatcher,
		tracker:    deps.Tracker,
		run:        newRunner(deps.Workflow, deps.Logger),
		batchSize:  deps.Workflow.AutoCloseBatchSize,
		logger:     deps.Logger,
		now:        deps.Now,
	}
}

// Get returns the current ticket snapshot.
func (s *StatusService) Get(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	var ticket *domain.Ticket
	err := s.run.do(ctx, "get ticket", func(ctx context.Context) error {
		var err error
		ticket, err = loadTicket(ctx, s.store.Repos().Tickets, ticketID)
		return err
	})
	return ticket, err
}

// History returns the ticket's activity log, oldest first.
func (s *StatusService) History(ctx context.Context, ticketID string) ([]domain.ActivityEntry, error) {
	var entries []domain.ActivityEntry
	err := s.run.do(ctx, "ticket history", func(ctx context.Context) error {
		repos := s.store.Repos()
		if _, err := loadTicket(ctx, repos.Tickets, ticketID); err != nil {
			return err
		}
		var err error
		entries, err = repos.Activity.ListByTicket(ctx, ticketID)
		return err
	})
	return entries, err
}

// Transition moves a ticket along a direct edge of the state machine.
func (s *StatusService) Transition(ctx context.Context, ticketID, actorID string, target domain.TicketStatus, meta TransitionMetadata) (*domain.Ticket, error) {
	if !target.Valid() {
		return nil, apperrors.NewValidationError("unknown target status", map[string]any{"status": target})
	}

	var (
		result *domain.Ticket
		fx     effects
	)
	err := s.run.do(ctx, "transition", func(ctx context.Context) error {
		fx = effects{}
		return s.store.WithinTx(ctx, func(repos repository.Repositories) error {
			actor, err := loadActor(ctx, repos.Users, actorID)
			if err != nil {
				return err
			}
			ticket, err := loadTicket(ctx, repos.Tickets, ticketID)
			if err != nil {
				return err
			}
			result, err = s.apply(ctx, repos, &fx, ticket, actor, target, meta, applyOptions{})
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	release(ctx, s.notifier, s.dispatcher, fx)
	return result, nil
}

// CloseExpiredResolved closes tickets resolved longer than window ago. It acts as
// the system and still obeys the edge table. Tickets changed concurrently are skipped.
func (s *StatusService) CloseExpiredResolved(ctx context.Context, window time.Duration) (SweepResult, error) {
	var result SweepResult
	cutoff := s.now().Add(-window)

	var due []domain.Ticket
	if err := s.run.do(ctx, "auto-close scan", func(ctx context.Context) error {
		var err error
		due, err = s.store.Repos().Tickets.ListResolvedBefore(ctx, cutoff, s.batchSize)
		return err
	}); err != nil {
		return result, err
	}
	result.Scanned = len(due)

	for i := range due {
		ticketID := due[i].ID
		var (
			fx     effects
			closed bool
		)
		err := s.run.do(ctx, "auto-close", func(ctx context.Context) error {
			fx, closed = effects{}, false
			return s.store.WithinTx(ctx, func(repos repository.Repositories) error {
				ticket, err := loadTicket(ctx, repos.Tickets, ticketID)
				if err != nil {
					return err
				}
				if ticket.Status != domain.TicketStatusResolved || ticket.ResolvedAt == nil || ticket.ResolvedAt.After(cutoff) {
					return nil
				}
				meta := TransitionMetadata{Comment: "closed automatically after the resolution window elapsed"}
				if _, err := s.apply(ctx, repos, &fx, ticket, nil, domain.TicketStatusClosed, meta, applyOptions{system: true}); err != nil {
					return err
				}
				closed = true
				return nil
			})
		})
		switch {
		case err == nil && closed:
			result.Closed++
			release(ctx, s.notifier, s.dispatcher, fx)
		case err == nil:
			result.Skipped++
		case apperrors.HasCode(err, apperrors.CodeConcurrentModification), apperrors.HasCode(err, apperrors.CodeNotFound):
			s.logger.Warn("auto-close skipped ticket", zap.String("ticket_id", ticketID), zap.Error(err))
			result.Skipped++
		default:
			return result, err
		}
	}
	if result.Closed > 0 {
		s.logger.Info("auto-close sweep finished", zap.Int("closed", result.Closed), zap.Int("skipped", result.Skipped))
	}
	return result, nil
}

// apply validates and performs one transition inside a unit of work. The caller
// owns loading actor and ticket; apply writes the ticket conditioned on its version,
// appends the activity entry and queues notifications and the change event.
// A nil actor is only valid with opts.system.
func (s *StatusService) apply(
	ctx context.Context,
	repos repository.Repositories,
	fx *effects,
	ticket *domain.Ticket,
	actor *domain.User,
	target domain.TicketStatus,
	meta TransitionMetadata,
	opts applyOptions,
) (*domain.Ticket, error) {
	from := ticket.Status

	if !opts.system && !opts.authorized && !canOperate(actor, ticket) {
		return nil, apperrors.NewForbidden("only an admin or the assigned agent may change this ticket")
	}
	if from == target {
		return nil, apperrors.NewInvalidTransition(string(from), string(target))
	}
	rule, ok := transitionTable[edge{from, target}]
	if !ok || (rule.reopen && !opts.viaReopen) {
		return nil, apperrors.NewInvalidTransition(string(from), string(target))
	}
	if rule.adminOnly && !opts.system && !actor.IsAdmin() {
		return nil, apperrors.NewForbidden("only an admin may return a ticket to open")
	}
	notes := strings.TrimSpace(meta.ResolutionNotes)
	if target == domain.TicketStatusResolved && notes == "" {
		return nil, apperrors.NewValidationError("resolution notes are required to resolve a ticket", map[string]any{"field": "resolution_notes"})
	}
	if target == domain.TicketStatusInProgress && ticket.AssigneeID == nil {
		return nil, apperrors.NewInvalidState("ticket must be assigned before work starts", map[string]any{"ticket_id": ticket.ID})
	}

	now := s.now()
	updated := ticket.Clone()
	updated.Status = target
	updated.UpdatedAt = now
	switch target {
	case domain.TicketStatusResolved:
		updated.ResolvedAt = ptr(now)
		updated.ResolutionNotes = notes
	case domain.TicketStatusClosed:
		updated.ClosedAt = ptr(now)
	}
	if opts.viaReopen {
		updated.ClosedAt = nil
		updated.ReopenCount++
	}
	s.tracker.Stamp(updated, from, target, now)

	if err := repos.Tickets.Update(ctx, updated, ticket.Version); err != nil {
		return nil, err
	}

	body := fmt.Sprintf("Status changed from %s to %s", from, target)
	if comment := strings.TrimSpace(meta.Comment); comment != "" {
		body += ": " + comment
	}
	entry := newActivity(ticket.ID, actorID(actor), domain.ActivityStatusChange, body, now)
	entry.OldValue = map[string]any{"status": string(from)}
	entry.NewValue = map[string]any{"status": string(target)}
	if target == domain.TicketStatusResolved {
		entry.NewValue["resolution_notes"] = notes
	}
	if err := repos.Activity.Append(ctx, entry); err != nil {
		return nil, err
	}

	if !opts.silent {
		s.queueTransitionNotices(fx, updated, actor, from)
	}
	fx.emit(events.EventTicketStatusChanged, updated, actor, now, events.TicketStatusChangedPayload{
		OldStatus: from,
		NewStatus: target,
		Comment:   strings.TrimSpace(meta.Comment),
	})

	s.logger.Info("ticket status changed",
		zap.String("ticket_id", updated.ID),
		zap.String("from", string(from)),
		zap.String("to", string(target)),
		zap.String("actor_id", actorID(actor)),
		zap.Int64("version", updated.Version))
	return updated, nil
}

// queueTransitionNotices notifies the requester on resolve and the assignee
// whenever someone else moved their ticket.
func (s *StatusService) queueTransitionNotices(fx *effects, ticket *domain.Ticket, actor *domain.User, from domain.TicketStatus) {
	ticketID := ptr(ticket.ID)
	priority := notificationPriority(ticket.Priority)
	message := fmt.Sprintf("Ticket %s moved from %s to %s", ticket.TicketNumber, from, ticket.Status)

	if ticket.Status == domain.TicketStatusResolved {
		fx.notify(NotifyInput{
			RecipientID: ticket.RequesterID,
			Type:        domain.NotificationStatusChanged,
			Title:       "Your ticket was resolved",
			Message:     message,
			TicketID:    ticketID,
			Priority:    priority,
		})
		fx.notify(NotifyInput{
			RecipientID: ticket.RequesterID,
			Type:        domain.NotificationFeedbackRequest,
			Title:       "How did we do?",
			Message:     fmt.Sprintf("Tell us about the resolution of ticket %s", ticket.TicketNumber),
			TicketID:    ticketID,
			Priority:    domain.NotificationPriorityNormal,
		})
	}
	if ticket.AssigneeID != nil && *ticket.AssigneeID != actorID(actor) && *ticket.AssigneeID != ticket.RequesterID {
		fx.notify(NotifyInput{
			RecipientID: *ticket.AssigneeID,
			Type:        domain.NotificationStatusChanged,
			Title:       "Ticket status changed",
			Message:     message,
			TicketID:    ticketID,
			Priority:    priority,
		})
	}
}

// canOperate reports whether actor may change the ticket directly.
func canOperate(actor *domain.User, ticket *domain.Ticket) bool {
	if actor == nil {
		return false
	}
	switch actor.Role {
	case domain.RoleAdmin:
		return true
	case domain.RoleAgent:
		return ticket.IsAssignedTo(actor.ID)
	default:
		return false
	}
}
