package ledger

import "github.com/shopspring/decimal"

// Seed is a test helper that registers a wallet with the given balance when
// using the in-memory ledger.
func Seed(l Ledger, walletID string, balance decimal.Decimal) {
	if mem, ok := l.(*InMemory); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.balances[walletID] = balance
	}
}
