package plan

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// StatusActive marks a plan still accruing and paying out.
	StatusActive = "active"
	// StatusCompleted is terminal: no payout may run against a completed
	// plan and there is no transition back.
	StatusCompleted = "completed"
)

// Plan is a savings plan with a payout cadence and a beneficiary address.
// Each plan owns exactly one custodial deposit wallet.
type Plan struct {
	ID           string
	Title        string
	Schedule     string
	TotalAmount  decimal.Decimal
	PerPayout    decimal.Decimal
	Destination  string
	Status       string
	StartDate    time.Time
	LastPayoutAt *time.Time
	NextPayoutAt *time.Time
	CreatedAt    time.Time
}

// NextRun computes the next payout time for a cadence. An unrecognized
// cadence returns nil, which clears the next-run field and halts recurrence.
func NextRun(from time.Time, schedule string) *time.Time {
	var next time.Time
	switch strings.ToLower(schedule) {
	case "daily":
		next = from.AddDate(0, 0, 1)
	case "weekly":
		next = from.AddDate(0, 0, 7)
	case "monthly":
		next = from.AddDate(0, 1, 0)
	default:
		return nil
	}
	return &next
}
