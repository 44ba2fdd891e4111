package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/events"
	"github.com/spec-kit/ticket-workflow/internal/repository"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util"
)

// ReviewDecision is the reviewer's verdict on a reopen request.
type ReviewDecision string

const (
	DecisionApproved ReviewDecision = "approved"
	DecisionRejected ReviewDecision = "rejected"
)

// ReviewInput describes a review action.
type ReviewInput struct {
	Decision ReviewDecision
	Comment  string
}

// ReopenService manages the request, approve or reject cycle that returns a
// settled ticket to work.
type ReopenService struct {
	store      repository.Store
	status     *StatusService
	notifier   Notifier
	dispatcher events.Dispatcher
	run        runner
	logger     *zap.Logger
	now        func() time.Time
}

// NewReopenService creates the service.
func NewReopenService(deps WorkflowDependencies, status *StatusService) *ReopenService {
	deps = deps.withDefaults()
	return &ReopenService{
		store:      deps.Store,
		status:     status,
		notifier:   deps.Notifier,
		dispatcher: deps.Dispatcher,
		run:        newRunner(deps.Workflow, deps.Logger),
		logger:     deps.Logger,
		now:        deps.Now,
	}
}

// CreateRequest files a pending reopen request for a resolved or closed ticket.
func (s *ReopenService) CreateRequest(ctx context.Context, ticketID, requesterID, reason string) (*domain.ReopenRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.NewValidationError("a reason is required to reopen a ticket", map[string]any{"field": "reason"})
	}

	var (
		result *domain.ReopenRequest
		fx     effects
	)
	err := s.run.do(ctx, "create reopen request", func(ctx context.Context) error {
		fx = effects{}
		return s.store.WithinTx(ctx, func(repos repository.Repositories) error {
			requester, err := loadActor(ctx, repos.Users, requesterID)
			if err != nil {
				return err
			}
			ticket, err := loadTicket(ctx, repos.Tickets, ticketID)
			if err != nil {
				return err
			}
			if ticket.RequesterID != requester.ID && !requester.IsStaff() {
				return apperrors.NewForbidden("only the ticket requester or staff may ask to reopen it")
			}
			if !ticket.IsSettled() {
				return apperrors.NewInvalidState("only resolved or closed tickets can be reopened", statusDetails(ticket))
			}

			pending, err := repos.Reopens.GetPendingByTicket(ctx, ticket.ID)
			switch {
			case err == nil:
				return apperrors.NewInvalidState("a reopen request is already pending for this ticket", map[string]any{
					"ticket_id":  ticket.ID,
					"request_id": pending.ID,
				})
			case !errors.Is(err, repository.ErrNotFound):
				return err
			}

			now := s.now()
			req := &domain.ReopenRequest{
				ID:          uuid.NewString(),
				TicketID:    ticket.ID,
				RequesterID: requester.ID,
				Reason:      reason,
				Status:      domain.ReopenStatusPending,
				CreatedAt:   now,
			}
			// A concurrent insert trips the partial unique index and surfaces as ErrConflict.
			if err := repos.Reopens.Insert(ctx, req); err != nil {
				return err
			}

			entry := newActivity(ticket.ID, requester.ID, domain.ActivityReopenRequest, "Reopen requested: "+reason, now)
			entry.NewValue = map[string]any{"request_id": req.ID, "status": string(req.Status)}
			if err := repos.Activity.Append(ctx, entry); err != nil {
				return err
			}

			if ticket.AssigneeID != nil && *ticket.AssigneeID != requester.ID {
				fx.notify(NotifyInput{
					RecipientID: *ticket.AssigneeID,
					Type:        domain.NotificationReopenRequested,
					Title:       "Reopen requested",
					Message:     fmt.Sprintf("A reopen was requested for ticket %s: %s", ticket.TicketNumber, reason),
					TicketID:    ptr(ticket.ID),
					Priority:    notificationPriority(ticket.Priority),
				})
			}
			fx.emit(events.EventReopenRequested, ticket, requester, now, events.ReopenPayload{
				RequestID: req.ID,
				Status:    req.Status,
			})
			result = req
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	release(ctx, s.notifier, s.dispatcher, fx)
	return result, nil
}

// Review approves or rejects a pending request. Approval reopens the ticket in the
// same transaction as the request update, so neither is visible without the other.
func (s *ReopenService) Review(ctx context.Context, requestID, reviewerID string, in ReviewInput) (*domain.ReopenRequest, error) {
	if in.Decision != DecisionApproved && in.Decision != DecisionRejected {
		return nil, apperrors.NewValidationError("decision must be approved or rejected", map[string]any{"decision": in.Decision})
	}
	comment := strings.TrimSpace(in.Comment)

	var (
		result *domain.ReopenRequest
		fx     effects
	)
	err := s.run.do(ctx, "review reopen request", func(ctx context.Context) error {
		fx = effects{}
		return s.store.WithinTx(ctx, func(repos repository.Repositories) error {
			reviewer, err := loadActor(ctx, repos.Users, reviewerID)
			if err != nil {
				return err
			}
			if !reviewer.IsStaff() {
				return apperrors.NewForbidden("only agents or admins may review reopen requests")
			}
			req, err := repos.Reopens.GetByID(ctx, requestID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return apperrors.NewNotFound("reopen request", map[string]any{"request_id": requestID})
				}
				return err
			}
			if !req.IsPending() {
				return apperrors.NewAlreadyReviewed(req.ID, string(req.Status))
			}
			ticket, err := loadTicket(ctx, repos.Tickets, req.TicketID)
			if err != nil {
				return err
			}

			now := s.now()
			if in.Decision == DecisionApproved {
				if !ticket.IsSettled() {
					return apperrors.NewInvalidState("ticket is no longer resolved or closed", statusDetails(ticket))
				}
				meta := TransitionMetadata{Comment: "reopen request approved"}
				if ticket, err = s.status.apply(ctx, repos, &fx, ticket, reviewer, domain.TicketStatusOpen, meta,
					applyOptions{viaReopen: true, authorized: true}); err != nil {
					return err
				}
			}

			reviewed := *req
			reviewed.Status = domain.ReopenStatus(in.Decision)
			reviewed.ReviewerID = ptr(reviewer.ID)
			reviewed.ReviewComment = comment
			reviewed.ReviewedAt = ptr(now)
			if err := repos.Reopens.Update(ctx, &reviewed, req.Version); err != nil {
				return err
			}

			body := fmt.Sprintf("Reopen request %s. Reason: %s", reviewed.Status, req.Reason)
			if comment != "" {
				body += ". Reviewer comment: " + comment
			}
			entry := newActivity(ticket.ID, reviewer.ID, domain.ActivityReopenReview, body, now)
			entry.OldValue = map[string]any{"request_id": req.ID, "status": string(req.Status)}
			entry.NewValue = map[string]any{"request_id": req.ID, "status": string(reviewed.Status)}
			if err := repos.Activity.Append(ctx, entry); err != nil {
				return err
			}

			fx.notify(s.reviewNotice(ticket, &reviewed))
			fx.emit(events.EventReopenReviewed, ticket, reviewer, now, events.ReopenPayload{
				RequestID: reviewed.ID,
				Status:    reviewed.Status,
			})
			result = &reviewed
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("reopen request reviewed",
		zap.String("request_id", result.ID),
		zap.String("ticket_id", result.TicketID),
		zap.String("decision", string(result.Status)))
	release(ctx, s.notifier, s.dispatcher, fx)
	return result, nil
}

// ListForTicket returns every request filed against the ticket, oldest first.
func (s *ReopenService) ListForTicket(ctx context.Context, ticketID string) ([]domain.ReopenRequest, error) {
	var out []domain.ReopenRequest
	err := s.run.do(ctx, "list reopen requests", func(ctx context.Context) error {
		repos := s.store.Repos()
		if _, err := loadTicket(ctx, repos.Tickets, ticketID); err != nil {
			return err
		}
		var err error
		out, err = repos.Reopens.ListByTicket(ctx, ticketID)
		return err
	})
	return out, err
}

func (s *ReopenService) reviewNotice(ticket *domain.Ticket, req *domain.ReopenRequest) NotifyInput {
	in := NotifyInput{
		RecipientID: req.RequesterID,
		Type:        domain.NotificationStatusChanged,
		TicketID:    ptr(ticket.ID),
		Priority:    notificationPriority(ticket.Priority),
	}
	if req.Status == domain.ReopenStatusApproved {
		in.Title = "Your ticket was reopened"
		in.Message = fmt.Sprintf("Your request to reopen ticket %s was approved", ticket.TicketNumber)
	} else {
		in.Title = "Reopen request declined"
		in.Message = fmt.Sprintf("Your request to reopen ticket %s was declined", ticket.TicketNumber)
	}
	if req.ReviewComment != "" {
		in.Message += ": " + req.ReviewComment
	}
	return in
}
