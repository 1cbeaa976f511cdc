package handler

import (
	"github.com/gofiber/fiber/v2"

	"liveline/internal/models"
)

// JoinQueue - POST /api/queues/:id/join
func (h *Handler) JoinQueue(c *fiber.Ctx) error {
	return h.join(c, c.Params("id"))
}

// JoinQueueByCode - POST /api/join/:code
func (h *Handler) JoinQueueByCode(c *fiber.Ctx) error {
	q, err := h.engine.GetQueueByJoinCode(c.UserContext(), c.Params("code"))
	if err != nil {
		return h.fail(c, err)
	}
	return h.join(c, q.ID)
}

// join takes a ticket and returns it with a token for the visitor routes.
func (h *Handler) join(c *fiber.Ctx, queueID string) error {
	var req models.JoinRequest
	if err := h.bind(c, &req); err != nil {
		return h.fail(c, err)
	}

	v, err := h.engine.Join(c.UserContext(), queueID, req.Name)
	if err != nil {
		return h.fail(c, err)
	}

	token, err := h.signer.GenerateToken(v)
	if err != nil {
		return h.fail(c, err)
	}

	pos, err := h.engine.Position(c.UserContext(), v.ID)
	if err != nil {
		return h.fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "Ticket taken",
		"data": fiber.Map{
			"visitor":                v,
			"token":                  token,
			"ahead":                  pos.Ahead,
			"estimated_wait_seconds": int64(pos.EstimatedWait.Seconds()),
		},
	})
}
