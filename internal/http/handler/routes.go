package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"liveline/internal/http/middleware"
)

// Register mounts every route on app.
func (h *Handler) Register(app *fiber.App) {
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message":           "liveline API running",
			"websocket_clients": h.clients.count(),
		})
	})

	api := app.Group("/api")

	// Queue administration
	api.Post("/queues", h.CreateQueue)
	api.Get("/queues/code/:code", h.GetQueueByCode)
	api.Get("/queues/:id", h.GetQueue)
	api.Put("/queues/:id/settings", h.UpdateSettings)
	api.Put("/queues/:id/pause", h.SetPaused)
	api.Delete("/queues/:id", h.DeleteQueue)

	// Joining
	api.Post("/queues/:id/join", h.JoinQueue)
	api.Post("/join/:code", h.JoinQueueByCode)

	// Display
	api.Get("/queues/:id/snapshot", h.GetSnapshot)
	api.Get("/queues/:id/metrics", h.GetMetrics)
	api.Get("/queues/:id/activity", h.GetActivity)

	// Counter
	api.Post("/queues/:id/call-next", h.CallNext)
	api.Post("/queues/:id/call", h.CallByNumber)
	api.Post("/queues/:id/take-back", h.TakeBack)
	api.Post("/queues/:id/complete", h.Complete)
	api.Post("/queues/:id/clear", h.Clear)
	api.Put("/queues/:id/order", h.Reorder)
	api.Post("/queues/:id/visitors/:visitorId/recall", h.Recall)
	api.Put("/queues/:id/visitors/:visitorId/priority", h.SetPriority)
	api.Delete("/queues/:id/visitors/:visitorId", h.RemoveVisitor)

	// Ticket holder
	ticket := middleware.TicketAuth(h.signer)
	api.Get("/ticket", ticket, h.GetPosition)
	api.Post("/ticket/confirm", ticket, h.ConfirmPresence)
	api.Post("/ticket/leave", ticket, h.LeaveQueue)
	api.Post("/ticket/feedback", ticket, h.SubmitFeedback)

	app.Get("/ws/queues/:id", h.UpgradeQueueSocket, websocket.New(h.QueueWebSocket))
}
