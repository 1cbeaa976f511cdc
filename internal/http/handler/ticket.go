package handler

import (
	"github.com/gofiber/fiber/v2"

	"liveline/internal/http/middleware"
	"liveline/internal/models"
)

/*
|--------------------------------------------------------------------------
| Visitor Routes (ticket token required)
|--------------------------------------------------------------------------
*/

// GetPosition - GET /api/ticket
func (h *Handler) GetPosition(c *fiber.Ctx) error {
	pos, err := h.engine.Position(c.UserContext(), middleware.VisitorID(c))
	if err != nil {
		return h.fail(c, err)
	}

	return ok(c, fiber.Map{
		"visitor":                pos.Visitor,
		"ahead":                  pos.Ahead,
		"estimated_wait_seconds": int64(pos.EstimatedWait.Seconds()),
	})
}

// ConfirmPresence - POST /api/ticket/confirm
func (h *Handler) ConfirmPresence(c *fiber.Ctx) error {
	v, err := h.engine.ConfirmPresence(c.UserContext(), middleware.VisitorID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, v)
}

// LeaveQueue - POST /api/ticket/leave
func (h *Handler) LeaveQueue(c *fiber.Ctx) error {
	queueID, _ := c.Locals(middleware.LocalQueueID).(string)
	v, err := h.engine.Leave(c.UserContext(), queueID, middleware.VisitorID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, v)
}

// SubmitFeedback - POST /api/ticket/feedback
func (h *Handler) SubmitFeedback(c *fiber.Ctx) error {
	var req models.FeedbackRequest
	if err := h.bind(c, &req); err != nil {
		return h.fail(c, err)
	}

	v, err := h.engine.SubmitFeedback(c.UserContext(), middleware.VisitorID(c), req.Rating, req.Feedback)
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, v)
}
