package payout

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/solstash/solstash/internal/chain"
	"github.com/solstash/solstash/internal/ledger"
	"github.com/solstash/solstash/internal/plan"
)

// Handler exposes the service-to-service payout endpoints.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Trigger runs one scheduled installment for a plan.
func (h *Handler) Trigger(c *fiber.Ctx) error {
	receipt, err := h.service.Recurring(c.UserContext(), c.Params("planId"))
	if err != nil {
		return payoutError(err)
	}
	return c.JSON(receiptJSON(receipt))
}

// Break closes a plan early and pays out the drained balance minus the fee.
func (h *Handler) Break(c *fiber.Ctx) error {
	receipt, err := h.service.Break(c.UserContext(), c.Params("planId"))
	if err != nil {
		return payoutError(err)
	}
	return c.JSON(receiptJSON(receipt))
}

func receiptJSON(r Receipt) fiber.Map {
	return fiber.Map{
		"plan_id":   r.PlanID,
		"wallet_id": r.WalletID,
		"signature": r.Signature,
		"amount":    r.Amount,
		"fee":       r.Fee,
		"completed": r.Completed,
	}
}

func payoutError(err error) error {
	switch {
	case errors.Is(err, plan.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, "plan not found")
	case errors.Is(err, plan.ErrPlanCompleted):
		return fiber.NewError(http.StatusConflict, "plan is completed")
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return fiber.NewError(http.StatusUnprocessableEntity, "insufficient balance")
	case errors.Is(err, chain.ErrUndetermined):
		return fiber.NewError(http.StatusBadGateway, "settlement outcome unknown")
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
