package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-workflow/internal/api/dto"
	"github.com/spec-kit/ticket-workflow/internal/auth"
	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/service"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util"
)

// TicketsHandler serves ticket status, history and SLA endpoints.
type TicketsHandler struct {
	status *service.StatusService
	sla    *service.SLAService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(status *service.StatusService, sla *service.SLAService) *TicketsHandler {
	return &TicketsHandler{status: status, sla: sla}
}

// GetTicket GET /api/tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	ticket, err := h.viewable(c, actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// Transition POST /api/tickets/:id/transitions.
func (h *TicketsHandler) Transition(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.TransitionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Status == "" {
		return apperrors.NewValidationError("status required", map[string]any{"field": "status"})
	}

	ticket, err := h.status.Transition(c.UserContext(), c.Params("id"), actor.ID, req.Status, service.TransitionMetadata{
		ResolutionNotes: req.ResolutionNotes,
		Comment:         req.Comment,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// Activity GET /api/tickets/:id/activity. Customers never see internal entries.
func (h *TicketsHandler) Activity(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	ticket, err := h.viewable(c, actor)
	if err != nil {
		return err
	}
	entries, err := h.status.History(c.UserContext(), ticket.ID)
	if err != nil {
		return err
	}
	items := make([]dto.ActivityResponse, 0, len(entries))
	for _, e := range entries {
		if e.Internal && !actor.IsStaff() {
			continue
		}
		items = append(items, dto.NewActivityResponse(e))
	}
	return c.JSON(fiber.Map{"data": items})
}

// SLA GET /api/tickets/:id/sla.
func (h *TicketsHandler) SLA(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	ticket, err := h.viewable(c, actor)
	if err != nil {
		return err
	}
	entry, err := h.sla.ForTicket(c.UserContext(), ticket.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewSLAResponse(entry)})
}

func (h *TicketsHandler) viewable(c *fiber.Ctx, actor *domain.User) (*domain.Ticket, error) {
	ticket, err := h.status.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return nil, err
	}
	if !actor.IsStaff() && ticket.RequesterID != actor.ID {
		return nil, apperrors.NewForbidden("ticket belongs to another customer")
	}
	return ticket, nil
}

func currentActor(c *fiber.Ctx) (*domain.User, error) {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	return actor, nil
}
