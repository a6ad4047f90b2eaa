// Package custody wraps the remote wallet-provisioning service that holds
// user key material. Only the operations this service needs are exposed.
package custody

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Account describes a provisioned custody wallet.
type Account struct {
	// Address is the wallet's chain address.
	Address string
	// SignerRef is the reference the remote signer expects for this wallet.
	SignerRef string
}

// Provider provisions custody wallets.
type Provider interface {
	CreateWallet(ctx context.Context) (Account, error)
}

// StaticProvider generates throwaway local accounts. Used by tests and the
// development mode wiring where no custody service is reachable.
type StaticProvider struct{}

// CreateWallet returns a freshly generated account.
func (StaticProvider) CreateWallet(_ context.Context) (Account, error) {
	w := solana.NewWallet()
	if w == nil {
		return Account{}, fmt.Errorf("generate wallet")
	}
	addr := w.PublicKey().String()
	return Account{Address: addr, SignerRef: "local:" + addr}, nil
}
