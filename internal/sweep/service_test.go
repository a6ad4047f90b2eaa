package sweep

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/solstash/solstash/internal/chain"
	"github.com/solstash/solstash/internal/config"
	"github.com/solstash/solstash/internal/idempotency"
	"github.com/solstash/solstash/internal/ledger"
	"github.com/solstash/solstash/internal/logging"
	"github.com/solstash/solstash/internal/wallet"
)

type fakeSweeper struct {
	calls   int
	errs    []error
	sigs    []string
	onChain decimal.Decimal
}

func (f *fakeSweeper) OnChainBalance(_ context.Context, _ string) (decimal.Decimal, error) {
	return f.onChain, nil
}

func (f *fakeSweeper) SweepToCustody(_ context.Context, _ chain.SweepSource, _ decimal.Decimal) (string, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return "", err
		}
	}
	sig := fmt.Sprintf("sweep-sig-%d", f.calls)
	f.sigs = append(f.sigs, sig)
	return sig, nil
}

type fixture struct {
	service  *Service
	sweeper  *fakeSweeper
	ledger   *ledger.InMemory
	register *idempotency.InMemory
	wallet   wallet.Wallet
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	wallets := wallet.NewMemoryRepository()
	w := wallet.Wallet{ID: "w-1", PlanID: "p-1", Address: "DepositAddr111", SignerRef: "ref-1"}
	if err := wallets.Create(context.Background(), w); err != nil {
		t.Fatalf("seed wallet: %v", err)
	}

	led := ledger.NewInMemory()
	if err := led.EnsureWallet(context.Background(), w.ID); err != nil {
		t.Fatalf("ensure wallet: %v", err)
	}
	register := idempotency.NewInMemory()
	sweeper := &fakeSweeper{}
	cfg := config.Config{Currency: "USDC", SweepRetry: config.RetryPolicy{Attempts: 2, Delay: 0}}
	svc := NewService(wallets, led, register, sweeper, nil, logging.Discard(), cfg)
	return &fixture{service: svc, sweeper: sweeper, ledger: led, register: register, wallet: w}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func depositEvent() Event {
	return Event{Signature: "deposit-sig-1", From: "Payer111", To: "DepositAddr111", Amount: dec("25")}
}

func TestHandleDepositCreditsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	outcome, err := f.service.HandleDeposit(ctx, depositEvent())
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if outcome != OutcomeSwept {
		t.Fatalf("outcome = %q, want %q", outcome, OutcomeSwept)
	}

	balance, err := f.ledger.Balance(ctx, f.wallet.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !balance.Equal(dec("25")) {
		t.Fatalf("balance = %s, want 25", balance)
	}

	entries, err := f.ledger.History(ctx, f.wallet.ID, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 1 || entries[0].SettlementRef != "sweep-sig-1" {
		t.Fatalf("entries = %+v, want one entry referencing sweep-sig-1", entries)
	}

	for _, sig := range []string{"deposit-sig-1", "sweep-sig-1"} {
		claimed, err := f.register.IsClaimed(ctx, sig)
		if err != nil || !claimed {
			t.Fatalf("signature %s claimed = %v, err = %v", sig, claimed, err)
		}
	}
}

func TestHandleDepositDuplicateDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.service.HandleDeposit(ctx, depositEvent()); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	outcome, err := f.service.HandleDeposit(ctx, depositEvent())
	if err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if outcome != OutcomeAlreadyProcessed {
		t.Fatalf("outcome = %q, want %q", outcome, OutcomeAlreadyProcessed)
	}
	if f.sweeper.calls != 1 {
		t.Fatalf("sweeps = %d, want 1", f.sweeper.calls)
	}
	balance, _ := f.ledger.Balance(ctx, f.wallet.ID)
	if !balance.Equal(dec("25")) {
		t.Fatalf("balance = %s, want a single 25 credit", balance)
	}
}

func TestHandleDepositUntrackedAddress(t *testing.T) {
	f := newFixture(t)
	ev := depositEvent()
	ev.To = "SomebodyElse111"

	outcome, err := f.service.HandleDeposit(context.Background(), ev)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if outcome != OutcomeIgnored {
		t.Fatalf("outcome = %q, want %q", outcome, OutcomeIgnored)
	}
	if f.sweeper.calls != 0 {
		t.Fatal("sweeper must not run for untracked addresses")
	}
}

func TestHandleDepositRetriesLaggingBalance(t *testing.T) {
	f := newFixture(t)
	f.sweeper.errs = []error{chain.ErrInsufficientOnChain, chain.ErrInsufficientOnChain, nil}

	outcome, err := f.service.HandleDeposit(context.Background(), depositEvent())
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if outcome != OutcomeSwept {
		t.Fatalf("outcome = %q, want %q", outcome, OutcomeSwept)
	}
	if f.sweeper.calls != 3 {
		t.Fatalf("sweeps = %d, want 3", f.sweeper.calls)
	}
}

func TestHandleDepositReleasesClaimOnPreSubmissionFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sweeper.errs = []error{chain.ErrSignerFailure}

	if _, err := f.service.HandleDeposit(ctx, depositEvent()); !errors.Is(err, chain.ErrSignerFailure) {
		t.Fatalf("err = %v, want signer failure", err)
	}
	claimed, _ := f.register.IsClaimed(ctx, "deposit-sig-1")
	if claimed {
		t.Fatal("claim must be released so a redelivery can retry")
	}
	balance, _ := f.ledger.Balance(ctx, f.wallet.ID)
	if !balance.IsZero() {
		t.Fatalf("balance = %s, want 0", balance)
	}

	// Redelivery succeeds cleanly.
	outcome, err := f.service.HandleDeposit(ctx, depositEvent())
	if err != nil || outcome != OutcomeSwept {
		t.Fatalf("redelivery outcome = %q, err = %v", outcome, err)
	}
}

func TestHandleDepositKeepsClaimWhenOutcomeUnknown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sweeper.errs = []error{&chain.UndeterminedError{Signature: "slow-sig"}}

	_, err := f.service.HandleDeposit(ctx, depositEvent())
	if !errors.Is(err, chain.ErrUndetermined) {
		t.Fatalf("err = %v, want undetermined", err)
	}
	claimed, _ := f.register.IsClaimed(ctx, "deposit-sig-1")
	if !claimed {
		t.Fatal("claim must be kept when the on-chain outcome is unknown")
	}
	balance, _ := f.ledger.Balance(ctx, f.wallet.ID)
	if !balance.IsZero() {
		t.Fatalf("balance = %s, want no credit before reconciliation", balance)
	}
}

func TestSweepWalletMovesFullBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sweeper.onChain = dec("17.25")

	outcome, amount, err := f.service.SweepWallet(ctx, f.wallet.ID)
	if err != nil {
		t.Fatalf("sweep wallet: %v", err)
	}
	if outcome != OutcomeSwept || !amount.Equal(dec("17.25")) {
		t.Fatalf("outcome = %q amount = %s", outcome, amount)
	}

	balance, _ := f.ledger.Balance(ctx, f.wallet.ID)
	if !balance.Equal(dec("17.25")) {
		t.Fatalf("balance = %s, want 17.25", balance)
	}
	claimed, _ := f.register.IsClaimed(ctx, "sweep-sig-1")
	if !claimed {
		t.Fatal("sweep signature must be claimed")
	}
}

func TestSweepWalletNothingToMove(t *testing.T) {
	f := newFixture(t)

	outcome, amount, err := f.service.SweepWallet(context.Background(), f.wallet.ID)
	if err != nil {
		t.Fatalf("sweep wallet: %v", err)
	}
	if outcome != OutcomeIgnored || !amount.IsZero() {
		t.Fatalf("outcome = %q amount = %s, want ignored with zero", outcome, amount)
	}
	if f.sweeper.calls != 0 {
		t.Fatal("no transfer for an empty on-chain balance")
	}
}

func TestParseEventsFilters(t *testing.T) {
	body := []byte(`[
        {"signature": "sig-ok", "transactionError": null, "tokenTransfers": [
            {"fromUserAccount": "A", "toUserAccount": "B", "mint": "USDCmint", "tokenAmount": 12.5},
            {"fromUserAccount": "A", "toUserAccount": "B", "mint": "OtherMint", "tokenAmount": 99}
        ]},
        {"signature": "sig-failed", "transactionError": {"InstructionError": [0, "Custom"]}, "tokenTransfers": [
            {"fromUserAccount": "A", "toUserAccount": "B", "mint": "USDCmint", "tokenAmount": 5}
        ]},
        {"signature": "sig-zero", "tokenTransfers": [
            {"fromUserAccount": "A", "toUserAccount": "B", "mint": "USDCmint", "tokenAmount": 0}
        ]}
    ]`)

	events, err := ParseEvents(body, "USDCmint")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %+v, want exactly one", events)
	}
	if events[0].Signature != "sig-ok" || !events[0].Amount.Equal(dec("12.5")) {
		t.Fatalf("event = %+v", events[0])
	}

	if _, err := ParseEvents([]byte(`{"not": "an array"}`), "USDCmint"); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}
