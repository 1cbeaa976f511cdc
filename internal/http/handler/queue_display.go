package handler

import (
	"github.com/gofiber/fiber/v2"

	"liveline/internal/queue"
)

// metricsView adds second-resolution durations for display clients.
type metricsView struct {
	queue.Metrics
	AvgWaitSeconds int64 `json:"avg_wait_seconds"`
}

func viewMetrics(m queue.Metrics) metricsView {
	return metricsView{Metrics: m, AvgWaitSeconds: int64(m.AvgWaitTime.Seconds())}
}

// GetSnapshot - GET /api/queues/:id/snapshot
// This is what displays re-fetch after a queue_changed signal.
func (h *Handler) GetSnapshot(c *fiber.Ctx) error {
	snap, err := h.engine.Snapshot(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}

	return ok(c, fiber.Map{
		"queue":   snap.Queue,
		"serving": snap.Serving,
		"waiting": snap.Waiting,
		"metrics": viewMetrics(snap.Metrics),
	})
}

// GetMetrics - GET /api/queues/:id/metrics
func (h *Handler) GetMetrics(c *fiber.Ctx) error {
	m, err := h.engine.Metrics(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, viewMetrics(m))
}

// GetActivity - GET /api/queues/:id/activity?limit=50
func (h *Handler) GetActivity(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 500 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "limit must be between 1 and 500",
		})
	}

	logs, err := h.engine.Activity(c.UserContext(), c.Params("id"), limit)
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, logs)
}
