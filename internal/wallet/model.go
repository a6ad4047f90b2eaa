package wallet

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet is a per-plan custodial deposit wallet on the chain. Its spendable
// balance lives in the ledger and is never mutated directly.
type Wallet struct {
	ID        string
	PlanID    string
	Address   string
	SignerRef string
	CreatedAt time.Time
}

// Balance encapsulates a wallet's ledger balance at a point in time.
type Balance struct {
	WalletID string
	Amount   decimal.Decimal
	AsOf     time.Time
}
