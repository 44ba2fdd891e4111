package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/events"
	"github.com/spec-kit/ticket-workflow/internal/repository"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util"
)

// AssignmentService handles ticket assignment operations.
type AssignmentService struct {
	store      repository.Store
	status     *StatusService
	notifier   Notifier
	dispatcher events.Dispatcher
	run        runner
	logger     *zap.Logger
	now        func() time.Time
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps WorkflowDependencies, status *StatusService) *AssignmentService {
	deps = deps.withDefaults()
	return &AssignmentService{
		store:      deps.Store,
		status:     status,
		notifier:   deps.Notifier,
		dispatcher: deps.Dispatcher,
		run:        newRunner(deps.Workflow, deps.Logger),
		logger:     deps.Logger,
		now:        deps.Now,
	}
}

// SelfAssign lets an agent take an unassigned ticket. An open ticket moves to
// in_progress in the same write. Nobody is notified.
func (s *AssignmentService) SelfAssign(ctx context.Context, ticketID, agentID string) (*domain.Ticket, error) {
	var (
		result *domain.Ticket
		fx     effects
	)
	err := s.run.do(ctx, "self-assign", func(ctx context.Context) error {
		fx = effects{}
		return s.store.WithinTx(ctx, func(repos repository.Repositories) error {
			agent, err := loadActor(ctx, repos.Users, agentID)
			if err != nil {
				return err
			}
			if agent.Role != domain.RoleAgent {
				return apperrors.NewForbidden("only agents may self-assign")
			}
			ticket, err := loadTicket(ctx, repos.Tickets, ticketID)
			if err != nil {
				return err
			}
			if ticket.IsSettled() {
				return apperrors.NewInvalidState("cannot assign a resolved or closed ticket", statusDetails(ticket))
			}
			if ticket.AssigneeID != nil {
				return apperrors.NewInvalidState("ticket is already assigned", map[string]any{
					"ticket_id":   ticket.ID,
					"assignee_id": *ticket.AssigneeID,
				})
			}

			candidate := ticket.Clone()
			candidate.AssigneeID = ptr(agent.ID)
			if result, err = s.write(ctx, repos, &fx, ticket, candidate, agent, applyOptions{silent: true}); err != nil {
				return err
			}
			if err := s.recordAssigneeChange(ctx, repos, agent.ID, ticket.ID, nil, result.AssigneeID, "", false); err != nil {
				return err
			}
			fx.emit(events.EventTicketAssigned, result, agent, s.now(), events.TicketAssignedPayload{
				AssigneeID: result.AssigneeID,
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	release(ctx, s.notifier, s.dispatcher, fx)
	return result, nil
}

// Transfer hands the ticket to another agent. Only an admin or the current
// assignee may transfer, and only while the ticket is active.
func (s *AssignmentService) Transfer(ctx context.Context, ticketID, fromAgentID, toAgentID, reason string) (*domain.Ticket, error) {
	var (
		result *domain.Ticket
		fx     effects
	)
	err := s.run.do(ctx, "transfer", func(ctx context.Context) error {
		fx = effects{}
		return s.store.WithinTx(ctx, func(repos repository.Repositories) error {
			actor, err := loadActor(ctx, repos.Users, fromAgentID)
			if err != nil {
				return err
			}
			ticket, err := loadTicket(ctx, repos.Tickets, ticketID)
			if err != nil {
				return err
			}
			if !actor.IsAdmin() && !(actor.Role == domain.RoleAgent && ticket.IsAssignedTo(actor.ID)) {
				return apperrors.NewForbidden("only an admin or the current assignee may transfer this ticket")
			}
			if ticket.IsSettled() {
				return apperrors.NewInvalidState("cannot transfer a resolved or closed ticket", statusDetails(ticket))
			}

			target, err := s.loadAssignee(ctx, repos.Users, toAgentID)
			if err != nil {
				return err
			}
			if ticket.IsAssignedTo(target.ID) {
				return apperrors.NewValidationError("ticket is already assigned to that agent", map[string]any{"to_agent_id": target.ID})
			}

			previous := ticket.AssigneeID
			candidate := ticket.Clone()
			candidate.AssigneeID = ptr(target.ID)
			if result, err = s.write(ctx, repos, &fx, ticket, candidate, actor, applyOptions{authorized: true, silent: true}); err != nil {
				return err
			}

			reason = strings.TrimSpace(reason)
			if err := s.recordAssigneeChange(ctx, repos, actor.ID, ticket.ID, previous, result.AssigneeID, reason, true); err != nil {
				return err
			}

			ticketRef := ptr(result.ID)
			priority := notificationPriority(result.Priority)
			message := fmt.Sprintf("Ticket %s was assigned to you", result.TicketNumber)
			if reason != "" {
				message += ": " + reason
			}
			fx.notify(NotifyInput{
				RecipientID: target.ID,
				Type:        domain.NotificationTicketAssigned,
				Title:       "Ticket assigned to you",
				Message:     message,
				TicketID:    ticketRef,
				Priority:    priority,
			})
			if previous != nil && *previous != actor.ID {
				fx.notify(NotifyInput{
					RecipientID: *previous,
					Type:        domain.NotificationAssignmentChanged,
					Title:       "Ticket reassigned",
					Message:     fmt.Sprintf("Ticket %s was transferred to another agent", result.TicketNumber),
					TicketID:    ticketRef,
					Priority:    priority,
				})
			}
			fx.emit(events.EventTicketAssigned, result, actor, s.now(), events.TicketAssignedPayload{
				PreviousAssigneeID: previous,
				AssigneeID:         result.AssigneeID,
				Reason:             reason,
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	release(ctx, s.notifier, s.dispatcher, fx)
	return result, nil
}

// Unassign clears the assignee. Status is left alone; returning to open is a
// separate transition.
func (s *AssignmentService) Unassign(ctx context.Context, ticketID, actorID string) (*domain.Ticket, error) {
	var (
		result *domain.Ticket
		fx     effects
	)
	err := s.run.do(ctx, "unassign", func(ctx context.Context) error {
		fx = effects{}
		return s.store.WithinTx(ctx, func(repos repository.Repositories) error {
			actor, err := loadActor(ctx, repos.Users, actorID)
			if err != nil {
				return err
			}
			if !actor.IsAdmin() {
				return apperrors.NewForbidden("only admins may unassign tickets")
			}
			ticket, err := loadTicket(ctx, repos.Tickets, ticketID)
			if err != nil {
				return err
			}
			if ticket.IsSettled() {
				return apperrors.NewInvalidState("cannot unassign a resolved or closed ticket", statusDetails(ticket))
			}
			if ticket.AssigneeID == nil {
				return apperrors.NewInvalidState("ticket is not assigned", map[string]any{"ticket_id": ticket.ID})
			}

			previous := ticket.AssigneeID
			updated := ticket.Clone()
			updated.AssigneeID = nil
			updated.UpdatedAt = s.now()
			if err := repos.Tickets.Update(ctx, updated, ticket.Version); err != nil {
				return err
			}
			if err := s.recordAssigneeChange(ctx, repos, actor.ID, ticket.ID, previous, nil, "", false); err != nil {
				return err
			}
			if *previous != actor.ID {
				fx.notify(NotifyInput{
					RecipientID: *previous,
					Type:        domain.NotificationAssignmentChanged,
					Title:       "Ticket unassigned",
					Message:     fmt.Sprintf("You are no longer assigned to ticket %s", updated.TicketNumber),
					TicketID:    ptr(updated.ID),
					Priority:    notificationPriority(updated.Priority),
				})
			}
			fx.emit(events.EventTicketUnassigned, updated, actor, s.now(), events.TicketAssignedPayload{
				PreviousAssigneeID: previous,
			})
			result = updated
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	release(ctx, s.notifier, s.dispatcher, fx)
	return result, nil
}

// write persists an assignee change, routing open tickets through the state
// machine so the move to in_progress lands in the same conditional update.
func (s *AssignmentService) write(
	ctx context.Context,
	repos repository.Repositories,
	fx *effects,
	original, candidate *domain.Ticket,
	actor *domain.User,
	opts applyOptions,
) (*domain.Ticket, error) {
	if candidate.Status == domain.TicketStatusOpen {
		return s.status.apply(ctx, repos, fx, candidate, actor, domain.TicketStatusInProgress, TransitionMetadata{}, opts)
	}
	candidate.UpdatedAt = s.now()
	if err := repos.Tickets.Update(ctx, candidate, original.Version); err != nil {
		return nil, err
	}
	return candidate, nil
}

func (s *AssignmentService) loadAssignee(ctx context.Context, users repository.UserRepository, id string) (*domain.User, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperrors.NewValidationError("to_agent_id is required", map[string]any{"field": "to_agent_id"})
	}
	user, err := users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("agent", map[string]any{"agent_id": id})
		}
		return nil, err
	}
	if !user.IsStaff() || !user.Active {
		return nil, apperrors.NewValidationError("tickets can only be assigned to active agents", map[string]any{"agent_id": id})
	}
	return user, nil
}

func (s *AssignmentService) recordAssigneeChange(
	ctx context.Context,
	repos repository.Repositories,
	actorID, ticketID string,
	oldAssignee, newAssignee *string,
	reason string,
	internal bool,
) error {
	body := "Assignee changed"
	if reason != "" {
		body = "Transferred: " + reason
	}
	entry := newActivity(ticketID, actorID, domain.ActivityAssigneeChange, body, s.now())
	entry.Internal = internal
	entry.OldValue = map[string]any{"assignee_id": valueOrNil(oldAssignee)}
	entry.NewValue = map[string]any{"assignee_id": valueOrNil(newAssignee)}
	return repos.Activity.Append(ctx, entry)
}

func statusDetails(ticket *domain.Ticket) map[string]any {
	return map[string]any{"ticket_id": ticket.ID, "status": string(ticket.Status)}
}
