package custody

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// LocalProvider generates wallets and keeps their keys in process memory so
// it can also act as the transaction signer. Development mode only; keys are
// lost on restart.
type LocalProvider struct {
	mu   sync.Mutex
	keys map[string]solana.PrivateKey
}

func NewLocalProvider() *LocalProvider {
	return &LocalProvider{keys: make(map[string]solana.PrivateKey)}
}

// CreateWallet generates an account and retains its private key.
func (p *LocalProvider) CreateWallet(_ context.Context) (Account, error) {
	w := solana.NewWallet()
	if w == nil {
		return Account{}, fmt.Errorf("generate wallet")
	}
	addr := w.PublicKey().String()
	ref := "local:" + addr

	p.mu.Lock()
	p.keys[ref] = w.PrivateKey
	p.mu.Unlock()

	return Account{Address: addr, SignerRef: ref}, nil
}

// SignTransaction partially signs the transaction with the retained key for
// the given reference.
func (p *LocalProvider) SignTransaction(_ context.Context, walletRef, txBase64 string) (string, error) {
	p.mu.Lock()
	key, ok := p.keys[walletRef]
	p.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("unknown wallet reference %q", walletRef)
	}

	raw, err := base64.StdEncoding.DecodeString(txBase64)
	if err != nil {
		return "", fmt.Errorf("decode transaction: %w", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return "", fmt.Errorf("deserialize transaction: %w", err)
	}

	if _, err := tx.PartialSign(func(pub solana.PublicKey) *solana.PrivateKey {
		if pub.Equals(key.PublicKey()) {
			return &key
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}
	return tx.ToBase64()
}
