package plan

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// Handler exposes plan HTTP endpoints.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	Title       string          `json:"title"`
	Schedule    string          `json:"schedule"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	PerPayout   decimal.Decimal `json:"per_payout_amount"`
	Destination string          `json:"destination"`
	StartDate   string          `json:"start_date"`
}

// Create registers a new savings plan and returns it together with the
// deposit address callers should fund.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "start_date must be YYYY-MM-DD")
	}

	p, w, err := h.service.Create(c.UserContext(), CreateInput{
		Title:       req.Title,
		Schedule:    req.Schedule,
		TotalAmount: req.TotalAmount,
		PerPayout:   req.PerPayout,
		Destination: req.Destination,
		StartDate:   start,
	})
	if err != nil {
		if isValidationError(err) {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"id":                p.ID,
		"title":             p.Title,
		"schedule":          p.Schedule,
		"total_amount":      p.TotalAmount,
		"per_payout_amount": p.PerPayout,
		"destination":       p.Destination,
		"status":            p.Status,
		"start_date":        p.StartDate.Format("2006-01-02"),
		"next_payout_at":    p.NextPayoutAt,
		"deposit_address":   w.Address,
		"wallet_id":         w.ID,
	})
}

// Get returns a single plan.
func (h *Handler) Get(c *fiber.Ctx) error {
	p, err := h.service.Get(c.UserContext(), c.Params("planId"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, "plan not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{
		"id":                p.ID,
		"title":             p.Title,
		"schedule":          p.Schedule,
		"total_amount":      p.TotalAmount,
		"per_payout_amount": p.PerPayout,
		"destination":       p.Destination,
		"status":            p.Status,
		"start_date":        p.StartDate.Format("2006-01-02"),
		"last_payout_at":    p.LastPayoutAt,
		"next_payout_at":    p.NextPayoutAt,
		"created_at":        p.CreatedAt,
	})
}

func isValidationError(err error) bool {
	for _, sentinel := range []error{
		ErrInvalidTitle, ErrInvalidSchedule, ErrInvalidAmount,
		ErrPerPayoutTooLarge, ErrInvalidDestination, ErrStartDateInPast,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
