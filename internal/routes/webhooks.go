package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/solstash/solstash/internal/sweep"
)

// RegisterWebhookRoutes wires the deposit webhook behind the rate limiter.
func RegisterWebhookRoutes(router fiber.Router, handler *sweep.Handler, limiter fiber.Handler) {
	router.Post("/webhooks/deposits", limiter, handler.Receive)
}
