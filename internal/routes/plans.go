package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/solstash/solstash/internal/plan"
)

// RegisterPlanRoutes wires the plan endpoints. Creation goes through the
// idempotency layer when a cache is available so a retried request cannot
// create two plans.
func RegisterPlanRoutes(router fiber.Router, handler *plan.Handler, idem fiber.Handler) {
	group := router.Group("/plans")
	if idem != nil {
		group.Post("/", idem, handler.Create)
	} else {
		group.Post("/", handler.Create)
	}
	group.Get("/:planId", handler.Get)
}
