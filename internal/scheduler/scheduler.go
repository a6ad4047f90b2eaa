package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/solstash/solstash/internal/ledger"
	"github.com/solstash/solstash/internal/payout"
	"github.com/solstash/solstash/internal/plan"
)

// Payouts is the slice of the payout service the scheduler drives.
type Payouts interface {
	Recurring(ctx context.Context, planID string) (payout.Receipt, error)
}

// Plans lists plans whose next payout time has passed.
type Plans interface {
	Due(ctx context.Context, at time.Time) ([]plan.Plan, error)
}

// Scheduler periodically scans for due plans and runs their payouts. One
// failed plan never stops the rest of the scan; a plan that cannot cover its
// installment is skipped until the next tick.
type Scheduler struct {
	cron    *cron.Cron
	plans   Plans
	payouts Payouts
	logger  *slog.Logger
	spec    string
	timeout time.Duration
}

func New(plans Plans, payouts Payouts, logger *slog.Logger, spec string) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		plans:   plans,
		payouts: payouts,
		logger:  logger,
		spec:    spec,
		timeout: 5 * time.Minute,
	}
}

// Start registers the scan job and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.tick); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("payout scheduler started", "spec", s.spec)
	return nil
}

// Stop halts the cron loop and waits for a running scan to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("payout scheduler stopped")
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	s.Scan(ctx, time.Now().UTC())
}

// Scan pays every plan due at the given time.
func (s *Scheduler) Scan(ctx context.Context, at time.Time) {
	due, err := s.plans.Due(ctx, at)
	if err != nil {
		s.logger.Error("scan for due plans failed", "error", err)
		return
	}

	for _, p := range due {
		receipt, err := s.payouts.Recurring(ctx, p.ID)
		switch {
		case err == nil:
			s.logger.Info("scheduled payout done", "plan", p.ID, "signature", receipt.Signature)
		case errors.Is(err, ledger.ErrInsufficientFunds):
			s.logger.Warn("plan balance short, skipping until next tick", "plan", p.ID)
		case errors.Is(err, plan.ErrPlanCompleted):
			s.logger.Info("plan completed before its payout ran", "plan", p.ID)
		default:
			s.logger.Error("scheduled payout failed", "plan", p.ID, "error", err)
		}
	}
}
