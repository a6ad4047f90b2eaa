package payout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/solstash/solstash/internal/chain"
	"github.com/solstash/solstash/internal/config"
	"github.com/solstash/solstash/internal/idempotency"
	"github.com/solstash/solstash/internal/ledger"
	"github.com/solstash/solstash/internal/notification"
	"github.com/solstash/solstash/internal/plan"
	"github.com/solstash/solstash/internal/wallet"
)

// Payer sends tokens from the pooled holding wallet to a beneficiary and
// returns the settlement signature.
type Payer interface {
	PayOut(ctx context.Context, destination string, amount decimal.Decimal) (string, error)
}

// Receipt summarizes a settled payout.
type Receipt struct {
	PlanID    string
	WalletID  string
	Signature string
	Amount    decimal.Decimal
	Fee       decimal.Decimal
	Completed bool
}

// Service executes scheduled payouts and early plan breaks. Funds are always
// reserved in the ledger before anything is submitted on chain, so a crash
// between the two can strand a reservation but never overdraw a wallet.
type Service struct {
	plans    plan.Repository
	wallets  wallet.Repository
	ledger   ledger.Ledger
	register idempotency.Register
	executor Payer
	notifier notification.Notifier
	logger   *slog.Logger
	feeRate  decimal.Decimal
	decimals int32
	currency string
	now      func() time.Time
}

func NewService(plans plan.Repository, wallets wallet.Repository, led ledger.Ledger, register idempotency.Register, executor Payer, notifier notification.Notifier, logger *slog.Logger, cfg config.Config) *Service {
	return &Service{
		plans:    plans,
		wallets:  wallets,
		ledger:   led,
		register: register,
		executor: executor,
		notifier: notifier,
		logger:   logger,
		feeRate:  cfg.BreakFeeRate,
		decimals: cfg.TokenDecimals,
		currency: cfg.Currency,
		now:      time.Now,
	}
}

// Recurring pays one scheduled installment for the plan. The installment is
// reserved off the ledger balance first; a transfer that never reached the
// chain refunds the reservation, while an unknown outcome keeps it until an
// operator reconciles against the chain.
func (s *Service) Recurring(ctx context.Context, planID string) (Receipt, error) {
	p, err := s.plans.Get(ctx, planID)
	if err != nil {
		return Receipt{}, err
	}
	if p.Status != plan.StatusActive {
		return Receipt{}, plan.ErrPlanCompleted
	}

	if p.Destination == "" || !p.PerPayout.IsPositive() {
		return Receipt{}, fmt.Errorf("plan %s has no payable installment", p.ID)
	}

	w, err := s.wallets.GetByPlan(ctx, p.ID)
	if err != nil {
		return Receipt{}, fmt.Errorf("wallet for plan %s: %w", p.ID, err)
	}

	amount := p.PerPayout
	if _, err := s.ledger.DebitIfSufficient(ctx, w.ID, amount); err != nil {
		return Receipt{}, fmt.Errorf("reserve payout for plan %s: %w", p.ID, err)
	}

	sig, err := s.executor.PayOut(ctx, p.Destination, amount)
	if err != nil {
		return Receipt{}, s.handleTransferFailure(ctx, "payout", p.ID, w.ID, amount, err)
	}

	if err := s.register.Claim(ctx, sig); err != nil {
		if errors.Is(err, idempotency.ErrAlreadyClaimed) {
			// The settlement was processed elsewhere; give the double
			// reservation back and report the payout as done.
			if _, refundErr := s.ledger.Refund(ctx, w.ID, amount); refundErr != nil {
				s.logger.Error("refund duplicate reservation failed", "wallet", w.ID, "error", refundErr)
			}
			return Receipt{PlanID: p.ID, WalletID: w.ID, Signature: sig, Amount: amount}, nil
		}
		s.logger.Warn("claim payout signature failed", "signature", sig, "error", err)
	}

	entry := ledger.Entry{
		WalletID:      w.ID,
		Type:          ledger.EntryDebit,
		Amount:        amount,
		Currency:      s.currency,
		Description:   "scheduled payout",
		SettlementRef: sig,
	}
	if err := s.ledger.Record(ctx, entry); err != nil {
		s.logger.Error("record settled payout failed", "plan", p.ID, "signature", sig, "error", err)
		return Receipt{}, fmt.Errorf("record payout %s: %w (%w)", sig, err, ledger.ErrInconsistency)
	}

	last := s.now().UTC()
	if err := s.plans.AdvanceSchedule(ctx, p.ID, last, plan.NextRun(last, p.Schedule)); err != nil {
		s.logger.Error("advance schedule failed, plan may pay out again", "plan", p.ID, "error", err)
		return Receipt{}, fmt.Errorf("advance schedule for plan %s: %w", p.ID, err)
	}

	s.notify(ctx, notification.KindPayoutSent, p.Destination,
		fmt.Sprintf("Payout of %s %s sent for %q", amount, s.currency, p.Title))

	s.logger.Info("payout settled", "plan", p.ID, "amount", amount, "signature", sig)
	return Receipt{PlanID: p.ID, WalletID: w.ID, Signature: sig, Amount: amount}, nil
}

// Break closes the plan early: the full ledger balance is drained, a break
// fee is withheld and the remainder is sent to the beneficiary.
func (s *Service) Break(ctx context.Context, planID string) (Receipt, error) {
	p, err := s.plans.Get(ctx, planID)
	if err != nil {
		return Receipt{}, err
	}
	if p.Status != plan.StatusActive {
		return Receipt{}, plan.ErrPlanCompleted
	}

	w, err := s.wallets.GetByPlan(ctx, p.ID)
	if err != nil {
		return Receipt{}, fmt.Errorf("wallet for plan %s: %w", p.ID, err)
	}

	total, err := s.ledger.DrainAndReset(ctx, w.ID)
	if err != nil {
		return Receipt{}, fmt.Errorf("drain wallet %s: %w", w.ID, err)
	}
	if total.IsZero() {
		if err := s.plans.MarkCompleted(ctx, p.ID); err != nil {
			return Receipt{}, err
		}
		return Receipt{PlanID: p.ID, WalletID: w.ID, Amount: decimal.Zero, Fee: decimal.Zero, Completed: true}, nil
	}

	fee := total.Mul(s.feeRate).Round(s.decimals)
	net := total.Sub(fee)

	sig, err := s.executor.PayOut(ctx, p.Destination, net)
	if err != nil {
		return Receipt{}, s.handleTransferFailure(ctx, "break", p.ID, w.ID, total, err)
	}

	if err := s.register.Claim(ctx, sig); err != nil {
		if errors.Is(err, idempotency.ErrAlreadyClaimed) {
			s.logger.Error("break settlement already claimed", "plan", p.ID, "signature", sig)
			return Receipt{}, fmt.Errorf("break settlement %s already claimed: %w", sig, ledger.ErrInconsistency)
		}
		s.logger.Warn("claim break signature failed", "signature", sig, "error", err)
	}

	entries := []ledger.Entry{
		{WalletID: w.ID, Type: ledger.EntryDebit, Amount: net, Currency: s.currency, Description: "plan break payout", SettlementRef: sig},
	}
	if fee.IsPositive() {
		entries = append(entries, ledger.Entry{
			WalletID: w.ID, Type: ledger.EntryDebit, Amount: fee, Currency: s.currency, Description: "break fee", SettlementRef: sig,
		})
	}
	for _, entry := range entries {
		if err := s.ledger.Record(ctx, entry); err != nil {
			s.logger.Error("record break entry failed", "plan", p.ID, "signature", sig, "error", err)
			return Receipt{}, fmt.Errorf("record break %s: %w (%w)", sig, err, ledger.ErrInconsistency)
		}
	}

	if err := s.plans.MarkCompleted(ctx, p.ID); err != nil {
		recorded, hasErr := s.ledger.HasEntryForSettlement(ctx, sig)
		if hasErr == nil && !recorded {
			if releaseErr := s.register.Release(ctx, sig); releaseErr != nil {
				s.logger.Error("release break claim failed", "signature", sig, "error", releaseErr)
			}
		}
		s.logger.Error("mark plan completed failed", "plan", p.ID, "error", err)
		return Receipt{}, fmt.Errorf("complete plan %s: %w", p.ID, err)
	}

	s.notify(ctx, notification.KindPlanBroken, p.Destination,
		fmt.Sprintf("Plan %q closed, %s %s sent (fee %s)", p.Title, net, s.currency, fee))

	s.logger.Info("plan broken", "plan", p.ID, "net", net, "fee", fee, "signature", sig)
	return Receipt{PlanID: p.ID, WalletID: w.ID, Signature: sig, Amount: net, Fee: fee, Completed: true}, nil
}

// handleTransferFailure decides what happens to reserved funds after a
// failed transfer. Amounts are only restored when the transaction certainly
// never reached the chain.
func (s *Service) handleTransferFailure(ctx context.Context, kind, planID, walletID string, reserved decimal.Decimal, err error) error {
	var undetermined *chain.UndeterminedError
	if errors.As(err, &undetermined) {
		s.logger.Error(kind+" outcome unknown, reservation kept for reconciliation",
			"plan", planID, "wallet", walletID, "signature", undetermined.Signature, "reserved", reserved)
		return err
	}
	if _, refundErr := s.ledger.Refund(ctx, walletID, reserved); refundErr != nil {
		s.logger.Error("refund failed reservation", "wallet", walletID, "amount", reserved, "error", refundErr)
		return fmt.Errorf("%s failed and refund failed: %w (%w)", kind, err, ledger.ErrInconsistency)
	}
	return fmt.Errorf("%s for plan %s: %w", kind, planID, err)
}

func (s *Service) notify(ctx context.Context, kind, destination, body string) {
	if s.notifier == nil {
		return
	}
	msg := notification.Message{Kind: kind, Destination: destination, Body: body}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("notification failed", "kind", kind, "error", err)
	}
}
