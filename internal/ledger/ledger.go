package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrWalletNotFound occurs when the referenced wallet does not exist.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrInsufficientFunds occurs when the wallet balance cannot cover a
	// requested debit.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInconsistency reports a settlement that is claimed in the
	// idempotency register but has no matching ledger entry. State needs
	// operator reconciliation, not an automatic retry.
	ErrInconsistency = errors.New("ledger state inconsistent with settlement claim")
)

// EntryType distinguishes the two directions of a balance mutation.
type EntryType string

const (
	// EntryCredit increases a wallet balance.
	EntryCredit EntryType = "credit"
	// EntryDebit decreases a wallet balance.
	EntryDebit EntryType = "debit"
)

// Entry is an append-only transaction history row. Once written it is never
// updated or deleted; entries plus the wallet's current balance must
// reconcile (sum of credits minus sum of debits equals the balance).
type Entry struct {
	ID            string
	WalletID      string
	Type          EntryType
	Amount        decimal.Decimal
	Currency      string
	Description   string
	SettlementRef string
	CreatedAt     time.Time
}

// Ledger is the authoritative off-chain record of each wallet's spendable
// balance. Every balance mutation is a single atomic store operation; there
// is no read-modify-write from application code.
type Ledger interface {
	// EnsureWallet verifies the wallet is known to the ledger.
	EnsureWallet(ctx context.Context, walletID string) error

	// Credit atomically adds amount to the wallet balance and appends the
	// matching history entry in the same transaction, returning the new
	// balance. The entry's wallet, type, amount and timestamp are filled in.
	Credit(ctx context.Context, walletID string, amount decimal.Decimal, entry Entry) (decimal.Decimal, error)

	// DebitIfSufficient atomically subtracts amount only when the balance
	// covers it, returning the new balance. The conditional update is a
	// single statement so concurrent debits can never overdraw.
	DebitIfSufficient(ctx context.Context, walletID string, amount decimal.Decimal) (decimal.Decimal, error)

	// DrainAndReset atomically reads the current balance, sets it to zero and
	// returns the pre-reset amount. A second concurrent drain observes zero.
	DrainAndReset(ctx context.Context, walletID string) (decimal.Decimal, error)

	// Refund adds amount back without appending a history entry. It reverses
	// a reservation whose transfer never reached the chain, so no entry pair
	// exists for it; using it for anything that settled breaks reconciliation.
	Refund(ctx context.Context, walletID string, amount decimal.Decimal) (decimal.Decimal, error)

	// Record appends a history entry on its own, used when the settlement
	// reference only becomes known after the balance was already reserved.
	Record(ctx context.Context, entry Entry) error

	// Balance returns the wallet's current spendable balance.
	Balance(ctx context.Context, walletID string) (decimal.Decimal, error)

	// History lists the most recent entries for a wallet, newest first.
	History(ctx context.Context, walletID string, limit int) ([]Entry, error)

	// HasEntryForSettlement reports whether any entry references the given
	// on-chain settlement signature.
	HasEntryForSettlement(ctx context.Context, signature string) (bool, error)
}
