package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/solstash/solstash/internal/payout"
)

// RegisterPayoutRoutes wires the service-to-service payout endpoints behind
// the shared-token guard.
func RegisterPayoutRoutes(router fiber.Router, handler *payout.Handler, auth fiber.Handler) {
	group := router.Group("/plans", auth)
	group.Post("/:planId/payout", handler.Trigger)
	group.Post("/:planId/break", handler.Break)
}
