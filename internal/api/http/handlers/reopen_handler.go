package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-workflow/internal/api/dto"
	"github.com/spec-kit/ticket-workflow/internal/service"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util"
)

// ReopenHandler manages reopen request endpoints.
type ReopenHandler struct {
	reopen *service.ReopenService
	status *service.StatusService
}

// NewReopenHandler constructs handler.
func NewReopenHandler(reopen *service.ReopenService, status *service.StatusService) *ReopenHandler {
	return &ReopenHandler{reopen: reopen, status: status}
}

// Create POST /api/tickets/:id/reopen-requests.
func (h *ReopenHandler) Create(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.CreateReopenRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	created, err := h.reopen.CreateRequest(c.UserContext(), c.Params("id"), actor.ID, req.Reason)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewReopenRequestResponse(created)})
}

// List GET /api/tickets/:id/reopen-requests.
func (h *ReopenHandler) List(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	if !actor.IsStaff() {
		ticket, err := h.status.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return err
		}
		if ticket.RequesterID != actor.ID {
			return apperrors.NewForbidden("ticket belongs to another customer")
		}
	}
	requests, err := h.reopen.ListForTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.ReopenRequestResponse, 0, len(requests))
	for i := range requests {
		items = append(items, dto.NewReopenRequestResponse(&requests[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Review POST /api/reopen-requests/:id/review.
func (h *ReopenHandler) Review(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.ReviewReopenRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	reviewed, err := h.reopen.Review(c.UserContext(), c.Params("id"), actor.ID, service.ReviewInput{
		Decision: service.ReviewDecision(req.Decision),
		Comment:  req.Comment,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewReopenRequestResponse(reviewed)})
}
