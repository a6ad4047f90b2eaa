// Package chain moves the platform token on the Solana network: it builds and
// signs SPL transfers, submits them, and polls for irreversible confirmation.
package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
)

// ConfirmationState is the reduced view of a transaction's network status.
type ConfirmationState string

const (
	// StatePending means the network has not yet confirmed the transaction.
	StatePending ConfirmationState = "pending"
	// StateConfirmed means the transaction reached a confirmed or finalized
	// commitment and will not be rolled back.
	StateConfirmed ConfirmationState = "confirmed"
	// StateFailed means the transaction executed and failed on-chain.
	StateFailed ConfirmationState = "failed"
)

const rpcCallTimeout = 15 * time.Second

// RPC is the thin boundary over the ledger network used by the executor.
// Implementations must treat call timeouts as "unknown outcome".
type RPC interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	AccountExists(ctx context.Context, account solana.PublicKey) (bool, error)
	TokenBalance(ctx context.Context, tokenAccount solana.PublicKey) (decimal.Decimal, error)
	SendTransaction(ctx context.Context, txBase64 string) (string, error)
	SignatureStatus(ctx context.Context, signature string) (ConfirmationState, error)
}

// Client adapts the solana-go RPC client to the RPC boundary.
type Client struct {
	rpc *rpc.Client
}

// NewClient connects a Client to the given RPC endpoint.
func NewClient(endpoint string) (*Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("rpc endpoint is required")
	}
	return &Client{rpc: rpc.New(endpoint)}, nil
}

// LatestBlockhash fetches a recent blockhash to anchor a transaction.
func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	ctx, cancel := context.WithTimeout(ctx, rpcCallTimeout)
	defer cancel()

	out, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("get latest blockhash: %w", err)
	}
	return out.Value.Blockhash, nil
}

// AccountExists reports whether the account has been created on-chain.
func (c *Client) AccountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, rpcCallTimeout)
	defer cancel()

	_, err := c.rpc.GetAccountInfo(ctx, account)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("get account info: %w", err)
	}
	return true, nil
}

// TokenBalance returns the token-unit balance held by a token account.
func (c *Client) TokenBalance(ctx context.Context, tokenAccount solana.PublicKey) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, rpcCallTimeout)
	defer cancel()

	out, err := c.rpc.GetTokenAccountBalance(ctx, tokenAccount, rpc.CommitmentConfirmed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get token account balance: %w", err)
	}
	if out.Value == nil {
		return decimal.Zero, fmt.Errorf("token account balance missing for %s", tokenAccount)
	}
	raw, err := decimal.NewFromString(out.Value.Amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse token balance %q: %w", out.Value.Amount, err)
	}
	return raw.Shift(-int32(out.Value.Decimals)), nil
}

// SendTransaction submits a fully signed, base64-encoded transaction and
// returns its settlement signature.
func (c *Client) SendTransaction(ctx context.Context, txBase64 string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, rpcCallTimeout)
	defer cancel()

	sig, err := c.rpc.SendEncodedTransaction(ctx, txBase64)
	if err != nil {
		return "", fmt.Errorf("send transaction: %w", err)
	}
	return sig.String(), nil
}

// SignatureStatus returns the reduced confirmation state for a signature,
// searching transaction history so long-settled outcomes are still visible.
func (c *Client) SignatureStatus(ctx context.Context, signature string) (ConfirmationState, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return StatePending, fmt.Errorf("parse signature %q: %w", signature, err)
	}

	ctx, cancel := context.WithTimeout(ctx, rpcCallTimeout)
	defer cancel()

	out, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return StatePending, fmt.Errorf("get signature status: %w", err)
	}
	if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
		return StatePending, nil
	}

	status := out.Value[0]
	if status.Err != nil {
		return StateFailed, nil
	}
	switch status.ConfirmationStatus {
	case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
		return StateConfirmed, nil
	default:
		return StatePending, nil
	}
}
