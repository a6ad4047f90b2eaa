package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InMemory is a concurrency-safe in-memory ledger used by unit tests and the
// development mode wiring.
type InMemory struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	entries  []Entry
}

// NewInMemory creates an empty in-memory ledger.
func NewInMemory() *InMemory {
	return &InMemory{balances: make(map[string]decimal.Decimal)}
}

// EnsureWallet registers the wallet with a zero balance if it is unknown.
func (l *InMemory) EnsureWallet(_ context.Context, walletID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.balances[walletID]; !ok {
		l.balances[walletID] = decimal.Zero
	}
	return nil
}

// Credit adds amount to the balance and appends the history entry.
func (l *InMemory) Credit(_ context.Context, walletID string, amount decimal.Decimal, entry Entry) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("credit amount must be positive")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	balance, ok := l.balances[walletID]
	if !ok {
		return decimal.Zero, ErrWalletNotFound
	}
	balance = balance.Add(amount)
	l.balances[walletID] = balance

	entry.WalletID = walletID
	entry.Type = EntryCredit
	entry.Amount = amount
	l.append(entry)
	return balance, nil
}

// DebitIfSufficient subtracts amount only when the balance covers it.
func (l *InMemory) DebitIfSufficient(_ context.Context, walletID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("debit amount must be positive")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	balance, ok := l.balances[walletID]
	if !ok {
		return decimal.Zero, ErrWalletNotFound
	}
	if balance.LessThan(amount) {
		return decimal.Zero, ErrInsufficientFunds
	}
	balance = balance.Sub(amount)
	l.balances[walletID] = balance
	return balance, nil
}

// DrainAndReset zeroes the balance and returns the previous amount.
func (l *InMemory) DrainAndReset(_ context.Context, walletID string) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	balance, ok := l.balances[walletID]
	if !ok {
		return decimal.Zero, ErrWalletNotFound
	}
	l.balances[walletID] = decimal.Zero
	return balance, nil
}

// Refund restores a reserved amount without writing an entry.
func (l *InMemory) Refund(_ context.Context, walletID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("refund amount must be positive")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	balance, ok := l.balances[walletID]
	if !ok {
		return decimal.Zero, ErrWalletNotFound
	}
	balance = balance.Add(amount)
	l.balances[walletID] = balance
	return balance, nil
}

// Record appends a history entry.
func (l *InMemory) Record(_ context.Context, entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.balances[entry.WalletID]; !ok {
		return ErrWalletNotFound
	}
	l.append(entry)
	return nil
}

// Balance returns the current balance.
func (l *InMemory) Balance(_ context.Context, walletID string) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, ok := l.balances[walletID]
	if !ok {
		return decimal.Zero, ErrWalletNotFound
	}
	return balance, nil
}

// History lists the most recent entries for the wallet, newest first.
func (l *InMemory) History(_ context.Context, walletID string, limit int) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.balances[walletID]; !ok {
		return nil, ErrWalletNotFound
	}
	if limit <= 0 {
		limit = 50
	}
	var out []Entry
	for i := len(l.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if l.entries[i].WalletID == walletID {
			out = append(out, l.entries[i])
		}
	}
	return out, nil
}

// HasEntryForSettlement reports whether any entry references the signature.
func (l *InMemory) HasEntryForSettlement(_ context.Context, signature string) (bool, error) {
	if signature == "" {
		return false, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.SettlementRef == signature {
			return true, nil
		}
	}
	return false, nil
}

// append assumes the caller holds the mutex.
func (l *InMemory) append(entry Entry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	l.entries = append(l.entries, entry)
}
