package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/solstash/solstash/internal/sweep"
	"github.com/solstash/solstash/internal/wallet"
)

// RegisterWalletRoutes wires the wallet endpoints. The manual full-balance
// sweep is operator-facing and sits behind the service-token guard.
func RegisterWalletRoutes(router fiber.Router, handler *wallet.Handler, sweepHandler *sweep.Handler, auth fiber.Handler) {
	group := router.Group("/wallets")
	group.Get("/:walletId", handler.Get)
	group.Get("/:walletId/transactions", handler.Transactions)
	group.Post("/:walletId/sweep", auth, sweepHandler.Sweep)
}
