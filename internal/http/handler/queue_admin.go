package handler

import (
	"github.com/gofiber/fiber/v2"

	"liveline/internal/models"
)

// CreateQueue - POST /api/queues
func (h *Handler) CreateQueue(c *fiber.Ctx) error {
	var req models.CreateQueueRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"error":   "Invalid request body",
			})
		}
	}

	settings := models.DefaultQueueSettings(req.Name)
	if req.Settings != nil {
		settings = *req.Settings
		if settings.Name == "" {
			settings.Name = req.Name
		}
	}
	req.Settings = &settings
	if err := h.check(&req); err != nil {
		return h.fail(c, err)
	}

	q, err := h.engine.CreateQueue(c.UserContext(), req.OwnerID, settings)
	if err != nil {
		return h.fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "Queue created",
		"data":    q,
	})
}

// GetQueue - GET /api/queues/:id
func (h *Handler) GetQueue(c *fiber.Ctx) error {
	q, err := h.engine.GetQueue(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, q)
}

// GetQueueByCode - GET /api/queues/code/:code
func (h *Handler) GetQueueByCode(c *fiber.Ctx) error {
	q, err := h.engine.GetQueueByJoinCode(c.UserContext(), c.Params("code"))
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, q)
}

// UpdateSettings - PUT /api/queues/:id/settings
func (h *Handler) UpdateSettings(c *fiber.Ctx) error {
	var req models.QueueSettings
	if err := h.bind(c, &req); err != nil {
		return h.fail(c, err)
	}

	q, err := h.engine.UpdateSettings(c.UserContext(), c.Params("id"), req)
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, q)
}

// SetPaused - PUT /api/queues/:id/pause
func (h *Handler) SetPaused(c *fiber.Ctx) error {
	var req models.PauseQueueRequest
	if err := h.bind(c, &req); err != nil {
		return h.fail(c, err)
	}

	q, err := h.engine.SetPaused(c.UserContext(), c.Params("id"), req.Paused)
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, q)
}

// DeleteQueue - DELETE /api/queues/:id
func (h *Handler) DeleteQueue(c *fiber.Ctx) error {
	if err := h.engine.DeleteQueue(c.UserContext(), c.Params("id")); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Queue deleted",
	})
}
