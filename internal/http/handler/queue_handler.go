package handler

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"liveline/internal/models"
	"liveline/internal/queue"
)

/*
|--------------------------------------------------------------------------
| Counter Actions
|--------------------------------------------------------------------------
*/

// CallNext - POST /api/queues/:id/call-next
func (h *Handler) CallNext(c *fiber.Ctx) error {
	var req models.CallNextRequest
	if err := h.bind(c, &req); err != nil {
		return h.fail(c, err)
	}

	v, found, err := h.engine.CallNext(c.UserContext(), c.Params("id"), req.Counter)
	if err != nil {
		return h.fail(c, err)
	}
	if !found {
		return empty(c, "No one is waiting")
	}
	return ok(c, v)
}

// CallByNumber - POST /api/queues/:id/call
func (h *Handler) CallByNumber(c *fiber.Ctx) error {
	var req models.CallByNumberRequest
	if err := h.bind(c, &req); err != nil {
		return h.fail(c, err)
	}

	v, err := h.engine.CallByNumber(c.UserContext(), c.Params("id"), req.TicketNumber, req.Counter)
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, v)
}

// Recall - POST /api/queues/:id/visitors/:visitorId/recall
func (h *Handler) Recall(c *fiber.Ctx) error {
	v, err := h.engine.Recall(c.UserContext(), c.Params("id"), c.Params("visitorId"))
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, v)
}

// TakeBack - POST /api/queues/:id/take-back
func (h *Handler) TakeBack(c *fiber.Ctx) error {
	var req models.CallNextRequest
	if err := h.bind(c, &req); err != nil {
		return h.fail(c, err)
	}

	v, found, err := h.engine.TakeBack(c.UserContext(), c.Params("id"), req.Counter)
	if err != nil {
		return h.fail(c, err)
	}
	if !found {
		return empty(c, "No one is being served")
	}
	return ok(c, v)
}

// Complete - POST /api/queues/:id/complete
func (h *Handler) Complete(c *fiber.Ctx) error {
	var req models.CallNextRequest
	if err := h.bind(c, &req); err != nil {
		return h.fail(c, err)
	}

	v, found, err := h.engine.Complete(c.UserContext(), c.Params("id"), req.Counter)
	if err != nil {
		return h.fail(c, err)
	}
	if !found {
		return empty(c, "No one is being served")
	}
	return ok(c, v)
}

/*
|--------------------------------------------------------------------------
| Line Management
|--------------------------------------------------------------------------
*/

// Clear - POST /api/queues/:id/clear
func (h *Handler) Clear(c *fiber.Ctx) error {
	n, err := h.engine.Clear(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, fiber.Map{"cancelled": n})
}

// Reorder - PUT /api/queues/:id/order
func (h *Handler) Reorder(c *fiber.Ctx) error {
	var req models.ReorderRequest
	if err := h.bind(c, &req); err != nil {
		return h.fail(c, err)
	}

	queueID := c.Params("id")
	if err := h.engine.Reorder(c.UserContext(), queueID, req.VisitorIDs); err != nil {
		return h.fail(c, err)
	}

	snap, err := h.engine.Snapshot(c.UserContext(), queueID)
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, snap.Waiting)
}

// SetPriority - PUT /api/queues/:id/visitors/:visitorId/priority
func (h *Handler) SetPriority(c *fiber.Ctx) error {
	var req models.PriorityRequest
	if err := h.bind(c, &req); err != nil {
		return h.fail(c, err)
	}

	visitorID := c.Params("visitorId")
	if err := h.visitorInQueue(c, c.Params("id"), visitorID); err != nil {
		return h.fail(c, err)
	}

	v, err := h.engine.TogglePriority(c.UserContext(), visitorID, req.IsPriority)
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, v)
}

// RemoveVisitor - DELETE /api/queues/:id/visitors/:visitorId
func (h *Handler) RemoveVisitor(c *fiber.Ctx) error {
	if err := h.engine.RemoveVisitor(c.UserContext(), c.Params("id"), c.Params("visitorId")); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Visitor removed",
	})
}

func (h *Handler) visitorInQueue(c *fiber.Ctx, queueID, visitorID string) error {
	pos, err := h.engine.Position(c.UserContext(), visitorID)
	if err != nil {
		return err
	}
	if pos.Visitor.QueueID != queueID {
		return fmt.Errorf("visitor %s in queue %s: %w", visitorID, queueID, queue.ErrNotFound)
	}
	return nil
}
