package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"liveline/internal/config"
)

// Locals keys set by TicketAuth.
const (
	LocalVisitorID    = "visitor_id"
	LocalQueueID      = "queue_id"
	LocalTicketNumber = "ticket_number"
)

// TicketAuth accepts a visitor ticket token issued on join. It proves the
// caller holds the ticket, nothing more.
func TicketAuth(signer *config.TicketSigner) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "Missing authorization header",
			})
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "Invalid authorization format",
			})
		}

		claims, err := signer.ValidateToken(tokenParts[1])
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "Invalid or expired ticket",
			})
		}

		c.Locals(LocalVisitorID, claims.VisitorID)
		c.Locals(LocalQueueID, claims.QueueID)
		c.Locals(LocalTicketNumber, claims.TicketNumber)

		return c.Next()
	}
}

// VisitorID returns the ticket holder set by TicketAuth.
func VisitorID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalVisitorID).(string)
	return id
}
