package wallet

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/solstash/solstash/internal/custody"
	"github.com/solstash/solstash/internal/indexer"
	"github.com/solstash/solstash/internal/ledger"
)

// Service exposes wallet operations backed by the ledger and the custody
// provider.
type Service struct {
	repo     Repository
	ledger   ledger.Ledger
	provider custody.Provider
	webhooks indexer.Webhooks
	logger   *slog.Logger
}

// NewService builds a wallet service instance.
func NewService(repo Repository, led ledger.Ledger, provider custody.Provider, webhooks indexer.Webhooks, logger *slog.Logger) *Service {
	if provider == nil {
		provider = custody.StaticProvider{}
	}
	return &Service{repo: repo, ledger: led, provider: provider, webhooks: webhooks, logger: logger}
}

// Create provisions a custody wallet for a plan and registers its address
// with the deposit indexer. Indexer registration is best-effort: a wallet
// without a webhook receives no deposit events but is otherwise functional.
func (s *Service) Create(ctx context.Context, planID string) (Wallet, error) {
	account, err := s.provider.CreateWallet(ctx)
	if err != nil {
		return Wallet{}, err
	}

	w := Wallet{
		ID:        uuid.NewString(),
		PlanID:    planID,
		Address:   account.Address,
		SignerRef: account.SignerRef,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, w); err != nil {
		return Wallet{}, err
	}
	if err := s.ledger.EnsureWallet(ctx, w.ID); err != nil {
		return Wallet{}, err
	}

	if s.webhooks != nil {
		if err := s.webhooks.WatchAddress(ctx, w.Address); err != nil {
			s.logger.Warn("watch address failed", "address", w.Address, "error", err)
		}
	}
	return w, nil
}

// Get retrieves wallet metadata.
func (s *Service) Get(ctx context.Context, id string) (Wallet, error) {
	return s.repo.Get(ctx, id)
}

// GetByAddress retrieves the wallet holding the given chain address.
func (s *Service) GetByAddress(ctx context.Context, address string) (Wallet, error) {
	return s.repo.GetByAddress(ctx, address)
}

// GetByPlan retrieves the wallet owned by the given plan.
func (s *Service) GetByPlan(ctx context.Context, planID string) (Wallet, error) {
	return s.repo.GetByPlan(ctx, planID)
}

// Balance returns the ledger balance for the wallet.
func (s *Service) Balance(ctx context.Context, id string) (Balance, error) {
	w, err := s.repo.Get(ctx, id)
	if err != nil {
		return Balance{}, err
	}
	amount, err := s.ledger.Balance(ctx, w.ID)
	if err != nil {
		return Balance{}, err
	}
	return Balance{WalletID: w.ID, Amount: amount, AsOf: time.Now().UTC()}, nil
}

// History returns the wallet's most recent ledger entries.
func (s *Service) History(ctx context.Context, id string, limit int) ([]ledger.Entry, error) {
	w, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.ledger.History(ctx, w.ID, limit)
}
