package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-workflow/internal/api/dto"
	"github.com/spec-kit/ticket-workflow/internal/service"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util"
)

// AssignmentHandler exposes assignment endpoints to agents and admins.
type AssignmentHandler struct {
	service *service.AssignmentService
}

// NewAssignmentHandler constructs handler.
func NewAssignmentHandler(assignmentService *service.AssignmentService) *AssignmentHandler {
	return &AssignmentHandler{service: assignmentService}
}

// SelfAssign POST /api/tickets/:id/assignment/self.
func (h *AssignmentHandler) SelfAssign(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.SelfAssign(c.UserContext(), c.Params("id"), actor.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// Transfer POST /api/tickets/:id/assignment/transfer.
func (h *AssignmentHandler) Transfer(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.TransferRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.Transfer(c.UserContext(), c.Params("id"), actor.ID, req.ToAgentID, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// Unassign DELETE /api/tickets/:id/assignment.
func (h *AssignmentHandler) Unassign(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.Unassign(c.UserContext(), c.Params("id"), actor.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}
