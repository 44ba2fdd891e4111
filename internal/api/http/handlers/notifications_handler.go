package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-workflow/internal/api/dto"
	"github.com/spec-kit/ticket-workflow/internal/service"
)

const defaultInboxLimit = 50

// NotificationsHandler serves the caller's inbox.
type NotificationsHandler struct {
	service *service.NotificationService
}

// NewNotificationsHandler constructs handler.
func NewNotificationsHandler(notificationService *service.NotificationService) *NotificationsHandler {
	return &NotificationsHandler{service: notificationService}
}

// List GET /api/notifications?unread=true&limit=20.
func (h *NotificationsHandler) List(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	limit := c.QueryInt("limit", defaultInboxLimit)
	if limit <= 0 || limit > 200 {
		limit = defaultInboxLimit
	}
	items, err := h.service.ListForRecipient(c.UserContext(), actor.ID, c.QueryBool("unread", false), limit)
	if err != nil {
		return err
	}
	out := make([]dto.NotificationResponse, 0, len(items))
	for _, n := range items {
		out = append(out, dto.NewNotificationResponse(n))
	}
	return c.JSON(fiber.Map{"data": out})
}

// MarkRead POST /api/notifications/:id/read.
func (h *NotificationsHandler) MarkRead(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	if err := h.service.MarkRead(c.UserContext(), c.Params("id"), actor.ID); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
