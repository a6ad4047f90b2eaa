package wallet

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/solstash/solstash/internal/ledger"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Get returns wallet metadata and its current ledger balance.
func (h *Handler) Get(c *fiber.Ctx) error {
	id := c.Params("walletId")

	w, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, "wallet not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	balance, err := h.service.Balance(c.UserContext(), id)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(fiber.Map{
		"id":         w.ID,
		"plan_id":    w.PlanID,
		"address":    w.Address,
		"balance":    balance.Amount,
		"as_of":      balance.AsOf,
		"created_at": w.CreatedAt,
	})
}

// Transactions returns the wallet's most recent ledger entries.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	id := c.Params("walletId")
	limit, _ := strconv.Atoi(c.Query("limit", "50"))

	entries, err := h.service.History(c.UserContext(), id, limit)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound), errors.Is(err, ledger.ErrWalletNotFound):
			return fiber.NewError(http.StatusNotFound, "wallet not found")
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}

	out := make([]fiber.Map, 0, len(entries))
	for _, e := range entries {
		out = append(out, fiber.Map{
			"id":             e.ID,
			"type":           e.Type,
			"amount":         e.Amount,
			"currency":       e.Currency,
			"description":    e.Description,
			"settlement_ref": e.SettlementRef,
			"created_at":     e.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"wallet_id": id, "transactions": out})
}
