package sweep

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/solstash/solstash/internal/chain"
	"github.com/solstash/solstash/internal/wallet"
)

// Handler receives deposit webhooks from the indexer.
type Handler struct {
	service *Service
	mint    string
	logger  *slog.Logger
}

func NewHandler(service *Service, mint string, logger *slog.Logger) *Handler {
	return &Handler{service: service, mint: mint, logger: logger}
}

// Receive processes a batch of indexed transactions. Handling failures are
// acknowledged anyway: the idempotency register makes redelivery safe and a
// non-2xx response would only trigger a retry storm from the indexer.
func (h *Handler) Receive(c *fiber.Ctx) error {
	events, err := ParseEvents(c.Body(), h.mint)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "malformed webhook payload")
	}

	swept := 0
	for _, ev := range events {
		outcome, err := h.service.HandleDeposit(c.UserContext(), ev)
		if err != nil {
			h.logger.Warn("deposit handling failed", "signature", ev.Signature, "error", err)
			continue
		}
		if outcome == OutcomeSwept {
			swept++
		}
	}
	return c.JSON(fiber.Map{"received": len(events), "swept": swept})
}

// Sweep moves a wallet's full on-chain balance into custody on request.
func (h *Handler) Sweep(c *fiber.Ctx) error {
	outcome, amount, err := h.service.SweepWallet(c.UserContext(), c.Params("walletId"))
	if err != nil {
		switch {
		case errors.Is(err, wallet.ErrNotFound):
			return fiber.NewError(http.StatusNotFound, "wallet not found")
		case errors.Is(err, chain.ErrUndetermined):
			return fiber.NewError(http.StatusBadGateway, "settlement outcome unknown")
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(fiber.Map{"outcome": outcome, "amount": amount})
}
