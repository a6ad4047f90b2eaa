package sweep

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
	"github.com/solstash/solstash/internal/wallet"
)

// Outcome reports how a deposit event was handled.
type Outcome string

const (
	// OutcomeSwept means funds were moved to custody and credited.
	OutcomeSwept Outcome = "swept"
	// OutcomeAlreadyProcessed means the settlement was seen before.
	OutcomeAlreadyProcessed Outcome = "already_processed"
	// OutcomeIgnored means the destination is not a wallet we track.
	OutcomeIgnored Outcome = "ignored"
)

// Sweeper moves funds from a user-custody wallet into the pooled holding
// wallet and returns the settlement signature.
type Sweeper interface {
	SweepToCustody(ctx context.Context, source chain.SweepSource, amount decimal.Decimal) (string, error)
	OnChainBalance(ctx context.Context, ownerAddress string) (decimal.Decimal, error)
}

// Service turns confirmed deposit events into custody sweeps and ledger
// credits, exactly once per settlement.
type Service struct {
	wallets  wallet.Repository
	ledger   ledger.Ledger
	register idempotency.Register
	executor Sweeper
	notifier notification.Notifier
	logger   *slog.Logger
	retry    config.RetryPolicy
	currency string
}

func NewService(wallets wallet.Repository, led ledger.Ledger, register idempotency.Register, executor Sweeper, notifier notification.Notifier, logger *slog.Logger, cfg config.Config) *Service {
	return &Service{
		wallets:  wallets,
		ledger:   led,
		register: register,
		executor: executor,
		notifier: notifier,
		logger:   logger,
		retry:    cfg.SweepRetry,
		currency: cfg.Currency,
	}
}

// HandleDeposit sweeps one deposit into custody and credits the owning
// wallet's ledger balance. The deposit signature is claimed before any
// mutation so a redelivered webhook cannot double-credit. On failures before
// the sweep transaction is submitted the claim is released and a redelivery
// retries cleanly; once the outcome on chain is unknown the claim is kept
// and the event is escalated instead.
func (s *Service) HandleDeposit(ctx context.Context, ev Event) (Outcome, error) {
	w, err := s.wallets.GetByAddress(ctx, ev.To)
	if errors.Is(err, wallet.ErrNotFound) {
		s.logger.Debug("deposit to untracked address", "address", ev.To, "signature", ev.Signature)
		return OutcomeIgnored, nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup wallet %s: %w", ev.To, err)
	}

	if err := s.register.Claim(ctx, ev.Signature); err != nil {
		if errors.Is(err, idempotency.ErrAlreadyClaimed) {
			s.logger.Info("deposit already processed", "signature", ev.Signature)
			return OutcomeAlreadyProcessed, nil
		}
		return "", fmt.Errorf("claim deposit %s: %w", ev.Signature, err)
	}

	sweepSig, err := s.sweepWithRetry(ctx, chain.SweepSource{Address: w.Address, SignerRef: w.SignerRef}, ev.Amount)
	if err != nil {
		var undetermined *chain.UndeterminedError
		if errors.As(err, &undetermined) {
			s.logger.Error("sweep outcome unknown, claim kept for reconciliation",
				"deposit", ev.Signature, "sweep", undetermined.Signature, "wallet", w.ID)
			return "", err
		}
		if releaseErr := s.register.Release(ctx, ev.Signature); releaseErr != nil {
			s.logger.Error("release deposit claim failed", "signature", ev.Signature, "error", releaseErr)
		}
		return "", fmt.Errorf("sweep deposit %s: %w", ev.Signature, err)
	}

	if err := s.register.Claim(ctx, sweepSig); err != nil {
		if errors.Is(err, idempotency.ErrAlreadyClaimed) {
			return OutcomeAlreadyProcessed, nil
		}
		s.logger.Warn("claim sweep signature failed", "signature", sweepSig, "error", err)
	}

	entry := ledger.Entry{
		Type:          ledger.EntryCredit,
		Amount:        ev.Amount,
		Currency:      s.currency,
		Description:   "deposit sweep",
		SettlementRef: sweepSig,
	}
	if _, err := s.ledger.Credit(ctx, w.ID, ev.Amount, entry); err != nil {
		s.logger.Error("credit after settled sweep failed",
			"wallet", w.ID, "sweep", sweepSig, "amount", ev.Amount, "error", err)
		return "", fmt.Errorf("credit wallet %s for sweep %s: %w (%w)", w.ID, sweepSig, err, ledger.ErrInconsistency)
	}

	if s.notifier != nil {
		msg := notification.Message{
			Kind:        notification.KindDepositSwept,
			Destination: w.Address,
			Body:        fmt.Sprintf("Deposit of %s %s received", ev.Amount, s.currency),
		}
		if err := s.notifier.Send(ctx, msg); err != nil {
			s.logger.Warn("deposit notification failed", "wallet", w.ID, "error", err)
		}
	}

	s.logger.Info("deposit swept", "wallet", w.ID, "amount", ev.Amount, "deposit", ev.Signature, "sweep", sweepSig)
	return OutcomeSwept, nil
}

// SweepWallet sweeps the wallet's full current on-chain balance into
// custody, for operator-initiated reconciliation when a deposit event was
// lost. Returns the swept amount alongside the outcome.
func (s *Service) SweepWallet(ctx context.Context, walletID string) (Outcome, decimal.Decimal, error) {
	w, err := s.wallets.Get(ctx, walletID)
	if err != nil {
		return "", decimal.Zero, err
	}

	amount, err := s.executor.OnChainBalance(ctx, w.Address)
	if err != nil {
		return "", decimal.Zero, fmt.Errorf("read on-chain balance for %s: %w", w.Address, err)
	}
	if !amount.IsPositive() {
		return OutcomeIgnored, decimal.Zero, nil
	}

	sweepSig, err := s.executor.SweepToCustody(ctx, chain.SweepSource{Address: w.Address, SignerRef: w.SignerRef}, amount)
	if err != nil {
		var undetermined *chain.UndeterminedError
		if errors.As(err, &undetermined) {
			s.logger.Error("manual sweep outcome unknown",
				"wallet", w.ID, "sweep", undetermined.Signature, "amount", amount)
		}
		return "", decimal.Zero, fmt.Errorf("sweep wallet %s: %w", w.ID, err)
	}

	if err := s.register.Claim(ctx, sweepSig); err != nil {
		if errors.Is(err, idempotency.ErrAlreadyClaimed) {
			return OutcomeAlreadyProcessed, decimal.Zero, nil
		}
		s.logger.Warn("claim sweep signature failed", "signature", sweepSig, "error", err)
	}

	entry := ledger.Entry{
		Type:          ledger.EntryCredit,
		Amount:        amount,
		Currency:      s.currency,
		Description:   "manual balance sweep",
		SettlementRef: sweepSig,
	}
	if _, err := s.ledger.Credit(ctx, w.ID, amount, entry); err != nil {
		s.logger.Error("credit after settled sweep failed",
			"wallet", w.ID, "sweep", sweepSig, "amount", amount, "error", err)
		return "", decimal.Zero, fmt.Errorf("credit wallet %s for sweep %s: %w (%w)", w.ID, sweepSig, err, ledger.ErrInconsistency)
	}

	s.logger.Info("wallet swept", "wallet", w.ID, "amount", amount, "sweep", sweepSig)
	return OutcomeSwept, amount, nil
}

// sweepWithRetry retries only when the source token balance lags the
// indexer. Every other failure is surfaced immediately.
func (s *Service) sweepWithRetry(ctx context.Context, source chain.SweepSource, amount decimal.Decimal) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= s.retry.Attempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, s.retry.Delay); err != nil {
				return "", err
			}
			s.logger.Info("retrying sweep", "address", source.Address, "attempt", attempt)
		}
		sig, err := s.executor.SweepToCustody(ctx, source, amount)
		if err == nil {
			return sig, nil
		}
		if !errors.Is(err, chain.ErrInsufficientOnChain) {
			return "", err
		}
		lastErr = err
	}
	return "", lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
