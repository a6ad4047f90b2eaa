package chain

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/solstash/solstash/internal/config"
	"github.com/solstash/solstash/internal/logging"
)

type fakeRPC struct {
	accountExists bool
	balance       decimal.Decimal
	balanceErr    error
	signature     string
	sent          []string
	statuses      []ConfirmationState
	statusIdx     int
}

func (f *fakeRPC) LatestBlockhash(context.Context) (solana.Hash, error) {
	return solana.Hash{}, nil
}

func (f *fakeRPC) AccountExists(context.Context, solana.PublicKey) (bool, error) {
	return f.accountExists, nil
}

func (f *fakeRPC) TokenBalance(context.Context, solana.PublicKey) (decimal.Decimal, error) {
	return f.balance, f.balanceErr
}

func (f *fakeRPC) SendTransaction(_ context.Context, txBase64 string) (string, error) {
	f.sent = append(f.sent, txBase64)
	return f.signature, nil
}

func (f *fakeRPC) SignatureStatus(context.Context, string) (ConfirmationState, error) {
	if f.statusIdx >= len(f.statuses) {
		return StatePending, nil
	}
	state := f.statuses[f.statusIdx]
	f.statusIdx++
	return state, nil
}

// custodySigner mimics the remote signer: it decodes the transaction, signs
// with the user's key, and returns it re-encoded.
type custodySigner struct {
	key solana.PrivateKey
}

func (s *custodySigner) SignTransaction(_ context.Context, _ string, txBase64 string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(txBase64)
	if err != nil {
		return "", err
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return "", err
	}
	if _, err := tx.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(s.key.PublicKey()) {
			return &s.key
		}
		return nil
	}); err != nil {
		return "", err
	}
	return tx.ToBase64()
}

type garbageSigner struct{}

func (garbageSigner) SignTransaction(context.Context, string, string) (string, error) {
	return "not base64 at all!!!", nil
}

func testConfig(t *testing.T, feeKey solana.PrivateKey) config.Config {
	t.Helper()
	mint := solana.NewWallet().PublicKey()
	return config.Config{
		TokenMint:     mint.String(),
		TokenDecimals: 6,
		FeePayerKey:   feeKey.String(),
		ConfirmRetry:  config.RetryPolicy{Attempts: 3, Delay: 0},
	}
}

func TestSweepToCustodyBuildsSignsAndConfirms(t *testing.T) {
	feeKey := solana.NewWallet().PrivateKey
	userKey := solana.NewWallet().PrivateKey

	rpc := &fakeRPC{
		accountExists: false,
		balance:       decimal.RequireFromString("25"),
		signature:     "sweep-sig",
		statuses:      []ConfirmationState{StatePending, StateConfirmed},
	}
	exec, err := NewExecutor(testConfig(t, feeKey), rpc, &custodySigner{key: userKey}, logging.Discard())
	if err != nil {
		t.Fatalf("new executor: %v", err)
	}

	sig, err := exec.SweepToCustody(context.Background(), SweepSource{
		Address:   userKey.PublicKey().String(),
		SignerRef: "wallet-ref-1",
	}, decimal.RequireFromString("10.5"))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if sig != "sweep-sig" {
		t.Fatalf("expected settlement signature sweep-sig, got %s", sig)
	}
	if len(rpc.sent) != 1 {
		t.Fatalf("expected exactly one submission, got %d", len(rpc.sent))
	}

	raw, err := base64.StdEncoding.DecodeString(rpc.sent[0])
	if err != nil {
		t.Fatalf("submitted transaction is not base64: %v", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		t.Fatalf("submitted transaction undecodable: %v", err)
	}
	// Missing destination token account adds a creation instruction ahead of
	// the transfer.
	if got := len(tx.Message.Instructions); got != 2 {
		t.Fatalf("expected 2 instructions (create + transfer), got %d", got)
	}
	if got := len(tx.Signatures); got != 2 {
		t.Fatalf("expected two-party signing, got %d signatures", got)
	}
}

func TestSweepSkipsAccountCreationWhenDestinationExists(t *testing.T) {
	feeKey := solana.NewWallet().PrivateKey
	userKey := solana.NewWallet().PrivateKey

	rpc := &fakeRPC{
		accountExists: true,
		balance:       decimal.RequireFromString("5"),
		signature:     "sig",
		statuses:      []ConfirmationState{StateConfirmed},
	}
	exec, err := NewExecutor(testConfig(t, feeKey), rpc, &custodySigner{key: userKey}, logging.Discard())
	if err != nil {
		t.Fatalf("new executor: %v", err)
	}

	if _, err := exec.SweepToCustody(context.Background(), SweepSource{
		Address:   userKey.PublicKey().String(),
		SignerRef: "ref",
	}, decimal.RequireFromString("5")); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	raw, _ := base64.StdEncoding.DecodeString(rpc.sent[0])
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := len(tx.Message.Instructions); got != 1 {
		t.Fatalf("expected only the transfer instruction, got %d", got)
	}
}

func TestSweepAbortsBeforeSubmissionWhenSourceShort(t *testing.T) {
	feeKey := solana.NewWallet().PrivateKey
	userKey := solana.NewWallet().PrivateKey

	rpc := &fakeRPC{balance: decimal.RequireFromString("1")}
	exec, err := NewExecutor(testConfig(t, feeKey), rpc, &custodySigner{key: userKey}, logging.Discard())
	if err != nil {
		t.Fatalf("new executor: %v", err)
	}

	_, err = exec.SweepToCustody(context.Background(), SweepSource{
		Address:   userKey.PublicKey().String(),
		SignerRef: "ref",
	}, decimal.RequireFromString("2"))
	if !errors.Is(err, ErrInsufficientOnChain) {
		t.Fatalf("expected ErrInsufficientOnChain, got %v", err)
	}
	if len(rpc.sent) != 0 {
		t.Fatal("nothing must be submitted when the source balance is short")
	}
}

func TestPayOutSingleSigner(t *testing.T) {
	feeKey := solana.NewWallet().PrivateKey
	beneficiary := solana.NewWallet().PublicKey()

	rpc := &fakeRPC{
		accountExists: true,
		balance:       decimal.RequireFromString("1000"),
		signature:     "payout-sig",
		statuses:      []ConfirmationState{StateConfirmed},
	}
	exec, err := NewExecutor(testConfig(t, feeKey), rpc, garbageSigner{}, logging.Discard())
	if err != nil {
		t.Fatalf("new executor: %v", err)
	}

	sig, err := exec.PayOut(context.Background(), beneficiary.String(), decimal.RequireFromString("98"))
	if err != nil {
		t.Fatalf("payout: %v", err)
	}
	if sig != "payout-sig" {
		t.Fatalf("expected payout-sig, got %s", sig)
	}

	raw, _ := base64.StdEncoding.DecodeString(rpc.sent[0])
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := len(tx.Signatures); got != 1 {
		t.Fatalf("payouts are platform-signed only, got %d signatures", got)
	}
}

func TestConfirmationTimeoutIsUndetermined(t *testing.T) {
	feeKey := solana.NewWallet().PrivateKey

	rpc := &fakeRPC{
		accountExists: true,
		balance:       decimal.RequireFromString("100"),
		signature:     "slow-sig",
		statuses:      []ConfirmationState{StatePending, StatePending, StatePending},
	}
	exec, err := NewExecutor(testConfig(t, feeKey), rpc, garbageSigner{}, logging.Discard())
	if err != nil {
		t.Fatalf("new executor: %v", err)
	}

	_, err = exec.PayOut(context.Background(), solana.NewWallet().PublicKey().String(), decimal.RequireFromString("1"))
	if !errors.Is(err, ErrUndetermined) {
		t.Fatalf("expected ErrUndetermined, got %v", err)
	}
	var undetermined *UndeterminedError
	if !errors.As(err, &undetermined) || undetermined.Signature != "slow-sig" {
		t.Fatalf("expected signature carried in error, got %v", err)
	}
}

func TestSweepRejectsUndecodableSignerResponse(t *testing.T) {
	feeKey := solana.NewWallet().PrivateKey
	userKey := solana.NewWallet().PrivateKey

	rpc := &fakeRPC{accountExists: true, balance: decimal.RequireFromString("10")}
	exec, err := NewExecutor(testConfig(t, feeKey), rpc, garbageSigner{}, logging.Discard())
	if err != nil {
		t.Fatalf("new executor: %v", err)
	}

	_, err = exec.SweepToCustody(context.Background(), SweepSource{
		Address:   userKey.PublicKey().String(),
		SignerRef: "ref",
	}, decimal.RequireFromString("1"))
	if !errors.Is(err, ErrSignerFailure) {
		t.Fatalf("expected ErrSignerFailure, got %v", err)
	}
	if len(rpc.sent) != 0 {
		t.Fatal("nothing must be submitted when signing fails")
	}
}

func TestMinorUnitsPrecision(t *testing.T) {
	feeKey := solana.NewWallet().PrivateKey
	exec, err := NewExecutor(testConfig(t, feeKey), &fakeRPC{}, garbageSigner{}, logging.Discard())
	if err != nil {
		t.Fatalf("new executor: %v", err)
	}

	minor, err := exec.minorUnits(decimal.RequireFromString("10.5"))
	if err != nil || minor != 10_500_000 {
		t.Fatalf("expected 10500000, got %d err=%v", minor, err)
	}
	if _, err := exec.minorUnits(decimal.RequireFromString("0.0000001")); err == nil {
		t.Fatal("expected precision error for sub-minor-unit amount")
	}
	if _, err := exec.minorUnits(decimal.Zero); err == nil {
		t.Fatal("expected error for non-positive amount")
	}
}
