package plan

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/solstash/solstash/internal/wallet"
)

var (
	ErrInvalidTitle       = errors.New("plan title is required")
	ErrInvalidSchedule    = errors.New("schedule must be daily, weekly or monthly")
	ErrInvalidAmount      = errors.New("amounts must be positive")
	ErrPerPayoutTooLarge  = errors.New("per-payout amount exceeds plan total")
	ErrInvalidDestination = errors.New("destination is not a valid address")
	ErrStartDateInPast    = errors.New("start date must not be in the past")
	ErrPlanCompleted      = errors.New("plan is completed")
)

// CreateInput is the caller-supplied shape of a new plan.
type CreateInput struct {
	Title       string
	Schedule    string
	TotalAmount decimal.Decimal
	PerPayout   decimal.Decimal
	Destination string
	StartDate   time.Time
}

// Walleter provisions the custodial deposit wallet owned by a plan.
type Walleter interface {
	Create(ctx context.Context, planID string) (wallet.Wallet, error)
}

// Service manages savings plans and their deposit wallets.
type Service struct {
	repo    Repository
	wallets Walleter
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(repo Repository, wallets Walleter, logger *slog.Logger) *Service {
	return &Service{repo: repo, wallets: wallets, logger: logger, now: time.Now}
}

// Create validates the input, stores the plan and provisions its deposit
// wallet. The first payout is scheduled one cadence interval after the
// start date.
func (s *Service) Create(ctx context.Context, in CreateInput) (Plan, wallet.Wallet, error) {
	if err := s.validate(in); err != nil {
		return Plan{}, wallet.Wallet{}, err
	}

	start := in.StartDate.UTC()
	p := Plan{
		ID:           uuid.NewString(),
		Title:        strings.TrimSpace(in.Title),
		Schedule:     strings.ToLower(in.Schedule),
		TotalAmount:  in.TotalAmount,
		PerPayout:    in.PerPayout,
		Destination:  in.Destination,
		Status:       StatusActive,
		StartDate:    start,
		NextPayoutAt: NextRun(start, in.Schedule),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return Plan{}, wallet.Wallet{}, err
	}

	w, err := s.wallets.Create(ctx, p.ID)
	if err != nil {
		return Plan{}, wallet.Wallet{}, err
	}

	s.logger.Info("plan created", "plan_id", p.ID, "schedule", p.Schedule, "wallet", w.Address)
	return p, w, nil
}

func (s *Service) Get(ctx context.Context, id string) (Plan, error) {
	return s.repo.Get(ctx, id)
}

// Due lists active plans whose next payout time has passed.
func (s *Service) Due(ctx context.Context, at time.Time) ([]Plan, error) {
	return s.repo.DueBefore(ctx, at)
}

func (s *Service) validate(in CreateInput) error {
	if strings.TrimSpace(in.Title) == "" {
		return ErrInvalidTitle
	}
	if NextRun(s.now(), in.Schedule) == nil {
		return ErrInvalidSchedule
	}
	if !in.TotalAmount.IsPositive() || !in.PerPayout.IsPositive() {
		return ErrInvalidAmount
	}
	if in.PerPayout.GreaterThan(in.TotalAmount) {
		return ErrPerPayoutTooLarge
	}
	if _, err := solana.PublicKeyFromBase58(in.Destination); err != nil {
		return ErrInvalidDestination
	}
	today := s.now().UTC().Truncate(24 * time.Hour)
	if in.StartDate.UTC().Truncate(24 * time.Hour).Before(today) {
		return ErrStartDateInPast
	}
	return nil
}
