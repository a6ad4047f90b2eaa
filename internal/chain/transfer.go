package chain

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/shopspring/decimal"

	"github.com/solstash/solstash/internal/config"
)

var (
	// ErrInsufficientOnChain indicates the source token account cannot cover
	// the requested amount. Detected before submission so an obviously
	// doomed transfer never wastes a network round trip.
	ErrInsufficientOnChain = errors.New("insufficient on-chain token balance")

	// ErrUndetermined indicates a submitted transaction never reached a
	// confirmed state within the polling window. The outcome is unknown:
	// callers must re-query the chain for the signature before any retry,
	// never blindly resubmit.
	ErrUndetermined = errors.New("transaction confirmation undetermined")
)

// UndeterminedError carries the signature of a transaction whose outcome
// could not be established. errors.Is(err, ErrUndetermined) matches it.
type UndeterminedError struct {
	Signature string
}

func (e *UndeterminedError) Error() string {
	return fmt.Sprintf("transaction %s confirmation undetermined", e.Signature)
}

// Is lets the typed error satisfy errors.Is against the sentinel.
func (e *UndeterminedError) Is(target error) bool {
	return target == ErrUndetermined
}

// SweepSource identifies a user-custody wallet funds are swept from.
type SweepSource struct {
	// Address is the wallet's chain address.
	Address string
	// SignerRef is the custody signer's reference for the wallet's key.
	SignerRef string
}

// Executor moves the platform token between on-chain addresses and reports
// the settlement signature once the network confirms the transfer.
type Executor struct {
	rpc      RPC
	signer   Signer
	logger   *slog.Logger
	mint     solana.PublicKey
	decimals int32
	holding  solana.PublicKey
	feeKey   solana.PrivateKey
	confirm  config.RetryPolicy
}

// NewExecutor wires an executor from configuration. The fee-payer key signs
// platform-side transfers and pays network fees for sweeps.
func NewExecutor(cfg config.Config, rpcClient RPC, signer Signer, logger *slog.Logger) (*Executor, error) {
	mint, err := solana.PublicKeyFromBase58(cfg.TokenMint)
	if err != nil {
		return nil, fmt.Errorf("parse token mint: %w", err)
	}
	feeKey, err := solana.PrivateKeyFromBase58(cfg.FeePayerKey)
	if err != nil {
		return nil, fmt.Errorf("parse fee payer key: %w", err)
	}
	holding := feeKey.PublicKey()
	if cfg.HoldingWallet != "" {
		holding, err = solana.PublicKeyFromBase58(cfg.HoldingWallet)
		if err != nil {
			return nil, fmt.Errorf("parse holding wallet address: %w", err)
		}
	}
	return &Executor{
		rpc:      rpcClient,
		signer:   signer,
		logger:   logger,
		mint:     mint,
		decimals: cfg.TokenDecimals,
		holding:  holding,
		feeKey:   feeKey,
		confirm:  cfg.ConfirmRetry,
	}, nil
}

// SweepToCustody moves amount from a user-custody wallet into the platform
// holding wallet. The source owner signs remotely; the platform fee payer
// co-signs, so two-party signing is always in play here.
func (e *Executor) SweepToCustody(ctx context.Context, source SweepSource, amount decimal.Decimal) (string, error) {
	owner, err := solana.PublicKeyFromBase58(source.Address)
	if err != nil {
		return "", fmt.Errorf("parse sweep source address: %w", err)
	}

	sourceAccount, _, err := solana.FindAssociatedTokenAddress(owner, e.mint)
	if err != nil {
		return "", fmt.Errorf("derive source token account: %w", err)
	}
	if err := e.checkTokenBalance(ctx, sourceAccount, amount); err != nil {
		return "", err
	}

	instructions, err := e.transferInstructions(ctx, owner, e.holding, e.feeKey.PublicKey(), amount)
	if err != nil {
		return "", err
	}

	tx, err := e.buildTransaction(ctx, instructions, e.feeKey.PublicKey())
	if err != nil {
		return "", err
	}

	unsigned, err := tx.ToBase64()
	if err != nil {
		return "", fmt.Errorf("encode transaction: %w", err)
	}
	signed, err := e.signer.SignTransaction(ctx, source.SignerRef, unsigned)
	if err != nil {
		return "", err
	}

	raw, err := base64.StdEncoding.DecodeString(signed)
	if err != nil {
		return "", fmt.Errorf("%w: signed transaction is not base64: %v", ErrSignerFailure, err)
	}
	tx, err = solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return "", fmt.Errorf("%w: signed transaction undecodable: %v", ErrSignerFailure, err)
	}

	// Add the fee payer signature on top of the custody signature.
	if _, err := tx.PartialSign(e.keyGetter()); err != nil {
		return "", fmt.Errorf("fee payer sign: %w", err)
	}

	return e.submitAndConfirm(ctx, tx)
}

// PayOut moves amount from the platform holding wallet to a beneficiary
// address, signed entirely with the platform key.
func (e *Executor) PayOut(ctx context.Context, destination string, amount decimal.Decimal) (string, error) {
	recipient, err := solana.PublicKeyFromBase58(destination)
	if err != nil {
		return "", fmt.Errorf("parse payout destination: %w", err)
	}

	owner := e.feeKey.PublicKey()
	sourceAccount, _, err := solana.FindAssociatedTokenAddress(owner, e.mint)
	if err != nil {
		return "", fmt.Errorf("derive holding token account: %w", err)
	}
	if err := e.checkTokenBalance(ctx, sourceAccount, amount); err != nil {
		return "", err
	}

	instructions, err := e.transferInstructions(ctx, owner, recipient, owner, amount)
	if err != nil {
		return "", err
	}

	tx, err := e.buildTransaction(ctx, instructions, owner)
	if err != nil {
		return "", err
	}
	if _, err := tx.Sign(e.keyGetter()); err != nil {
		return "", fmt.Errorf("sign payout: %w", err)
	}

	return e.submitAndConfirm(ctx, tx)
}

// OnChainBalance returns the token balance held by the owner's associated
// token account, zero when the account does not exist yet.
func (e *Executor) OnChainBalance(ctx context.Context, ownerAddress string) (decimal.Decimal, error) {
	owner, err := solana.PublicKeyFromBase58(ownerAddress)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse owner address: %w", err)
	}
	account, _, err := solana.FindAssociatedTokenAddress(owner, e.mint)
	if err != nil {
		return decimal.Zero, fmt.Errorf("derive token account: %w", err)
	}
	exists, err := e.rpc.AccountExists(ctx, account)
	if err != nil {
		return decimal.Zero, err
	}
	if !exists {
		return decimal.Zero, nil
	}
	return e.rpc.TokenBalance(ctx, account)
}

// ConfirmationStatus re-queries the network for a signature's outcome. Used
// by escalation paths after an undetermined confirmation, never to decide a
// blind resubmission.
func (e *Executor) ConfirmationStatus(ctx context.Context, signature string) (ConfirmationState, error) {
	return e.rpc.SignatureStatus(ctx, signature)
}

// transferInstructions assembles the instruction set: an associated token
// account creation for the destination when it does not exist yet, then the
// transfer itself in the token's minor unit.
func (e *Executor) transferInstructions(ctx context.Context, sourceOwner, destOwner, accountPayer solana.PublicKey, amount decimal.Decimal) ([]solana.Instruction, error) {
	sourceAccount, _, err := solana.FindAssociatedTokenAddress(sourceOwner, e.mint)
	if err != nil {
		return nil, fmt.Errorf("derive source token account: %w", err)
	}
	destAccount, _, err := solana.FindAssociatedTokenAddress(destOwner, e.mint)
	if err != nil {
		return nil, fmt.Errorf("derive destination token account: %w", err)
	}

	var instructions []solana.Instruction

	exists, err := e.rpc.AccountExists(ctx, destAccount)
	if err != nil {
		return nil, err
	}
	if !exists {
		instructions = append(instructions,
			associatedtokenaccount.NewCreateInstruction(accountPayer, destOwner, e.mint).Build())
	}

	minor, err := e.minorUnits(amount)
	if err != nil {
		return nil, err
	}
	instructions = append(instructions,
		token.NewTransferInstruction(minor, sourceAccount, destAccount, sourceOwner, nil).Build())

	return instructions, nil
}

func (e *Executor) buildTransaction(ctx context.Context, instructions []solana.Instruction, payer solana.PublicKey) (*solana.Transaction, error) {
	blockhash, err := e.rpc.LatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}
	return tx, nil
}

func (e *Executor) checkTokenBalance(ctx context.Context, tokenAccount solana.PublicKey, amount decimal.Decimal) error {
	balance, err := e.rpc.TokenBalance(ctx, tokenAccount)
	if err != nil {
		return fmt.Errorf("verify source balance: %w", err)
	}
	if balance.LessThan(amount) {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientOnChain, balance, amount)
	}
	return nil
}

func (e *Executor) submitAndConfirm(ctx context.Context, tx *solana.Transaction) (string, error) {
	encoded, err := tx.ToBase64()
	if err != nil {
		return "", fmt.Errorf("encode transaction: %w", err)
	}

	signature, err := e.rpc.SendTransaction(ctx, encoded)
	if err != nil {
		return "", err
	}

	if err := e.waitForConfirmation(ctx, signature); err != nil {
		return "", err
	}
	e.logger.Info("transfer confirmed", "signature", signature)
	return signature, nil
}

// waitForConfirmation polls the signature status a bounded number of times.
// No database transaction is ever held across these sleeps.
func (e *Executor) waitForConfirmation(ctx context.Context, signature string) error {
	attempts := e.confirm.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		state, err := e.rpc.SignatureStatus(ctx, signature)
		if err != nil {
			e.logger.Warn("signature status check failed", "signature", signature, "error", err)
		} else {
			switch state {
			case StateConfirmed:
				return nil
			case StateFailed:
				return fmt.Errorf("transaction %s failed on-chain", signature)
			}
		}

		if i == attempts-1 {
			break
		}
		timer := time.NewTimer(e.confirm.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return &UndeterminedError{Signature: signature}
		case <-timer.C:
		}
	}
	return &UndeterminedError{Signature: signature}
}

// minorUnits converts a token-unit amount into the chain's integer minor
// unit, rejecting precision the token cannot represent.
func (e *Executor) minorUnits(amount decimal.Decimal) (uint64, error) {
	if !amount.IsPositive() {
		return 0, fmt.Errorf("transfer amount must be positive")
	}
	shifted := amount.Shift(e.decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("amount %s exceeds token precision of %d decimals", amount, e.decimals)
	}
	return uint64(shifted.IntPart()), nil
}

func (e *Executor) keyGetter() func(key solana.PublicKey) *solana.PrivateKey {
	return func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(e.feeKey.PublicKey()) {
			return &e.feeKey
		}
		return nil
	}
}
