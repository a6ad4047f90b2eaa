package payout

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/solstash/solstash/internal/chain"
	"github.com/solstash/solstash/internal/config"
	"github.com/solstash/solstash/internal/idempotency"
	"github.com/solstash/solstash/internal/ledger"
	"github.com/solstash/solstash/internal/logging"
	"github.com/solstash/solstash/internal/plan"
	"github.com/solstash/solstash/internal/wallet"
)

type fakePayer struct {
	calls        int
	errs         []error
	destinations []string
	amounts      []decimal.Decimal
}

func (f *fakePayer) PayOut(_ context.Context, destination string, amount decimal.Decimal) (string, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return "", err
		}
	}
	f.destinations = append(f.destinations, destination)
	f.amounts = append(f.amounts, amount)
	return fmt.Sprintf("pay-sig-%d", f.calls), nil
}

type fixture struct {
	service  *Service
	payer    *fakePayer
	plans    plan.Repository
	ledger   *ledger.InMemory
	register *idempotency.InMemory
	plan     plan.Plan
	wallet   wallet.Wallet
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newFixture(t *testing.T, balance decimal.Decimal) *fixture {
	t.Helper()
	ctx := context.Background()

	next := time.Now().UTC().Add(-time.Minute)
	p := plan.Plan{
		ID:           "p-1",
		Title:        "Laptop fund",
		Schedule:     "weekly",
		TotalAmount:  dec("500"),
		PerPayout:    dec("30"),
		Destination:  "Beneficiary111",
		Status:       plan.StatusActive,
		StartDate:    time.Now().UTC().AddDate(0, 0, -7),
		NextPayoutAt: &next,
	}
	plans := plan.NewMemoryRepository()
	if err := plans.Create(ctx, p); err != nil {
		t.Fatalf("seed plan: %v", err)
	}

	wallets := wallet.NewMemoryRepository()
	w := wallet.Wallet{ID: "w-1", PlanID: p.ID, Address: "DepositAddr111", SignerRef: "ref-1"}
	if err := wallets.Create(ctx, w); err != nil {
		t.Fatalf("seed wallet: %v", err)
	}

	led := ledger.NewInMemory()
	if err := led.EnsureWallet(ctx, w.ID); err != nil {
		t.Fatalf("ensure wallet: %v", err)
	}
	if balance.IsPositive() {
		ledger.Seed(led, w.ID, balance)
	}

	register := idempotency.NewInMemory()
	payer := &fakePayer{}
	cfg := config.Config{
		Currency:      "USDC",
		TokenDecimals: 6,
		BreakFeeRate:  dec("0.02"),
	}
	svc := NewService(plans, wallets, led, register, payer, nil, logging.Discard(), cfg)
	return &fixture{service: svc, payer: payer, plans: plans, ledger: led, register: register, plan: p, wallet: w}
}

func TestRecurringSettlesAndAdvances(t *testing.T) {
	f := newFixture(t, dec("100"))
	ctx := context.Background()

	receipt, err := f.service.Recurring(ctx, f.plan.ID)
	if err != nil {
		t.Fatalf("recurring: %v", err)
	}
	if !receipt.Amount.Equal(dec("30")) || receipt.Signature != "pay-sig-1" {
		t.Fatalf("receipt = %+v", receipt)
	}

	balance, _ := f.ledger.Balance(ctx, f.wallet.ID)
	if !balance.Equal(dec("70")) {
		t.Fatalf("balance = %s, want 70", balance)
	}

	entries, _ := f.ledger.History(ctx, f.wallet.ID, 10)
	if len(entries) != 1 || entries[0].Type != ledger.EntryDebit || entries[0].SettlementRef != "pay-sig-1" {
		t.Fatalf("entries = %+v, want one debit referencing pay-sig-1", entries)
	}

	claimed, _ := f.register.IsClaimed(ctx, "pay-sig-1")
	if !claimed {
		t.Fatal("settlement signature must be claimed")
	}

	p, _ := f.plans.Get(ctx, f.plan.ID)
	if p.LastPayoutAt == nil {
		t.Fatal("last payout time not set")
	}
	if p.NextPayoutAt == nil || !p.NextPayoutAt.Equal(p.LastPayoutAt.AddDate(0, 0, 7)) {
		t.Fatalf("next payout = %v, want one week after %v", p.NextPayoutAt, p.LastPayoutAt)
	}
	if f.payer.destinations[0] != f.plan.Destination {
		t.Fatalf("destination = %s", f.payer.destinations[0])
	}
}

func TestRecurringInsufficientBalance(t *testing.T) {
	f := newFixture(t, dec("10"))
	ctx := context.Background()

	_, err := f.service.Recurring(ctx, f.plan.ID)
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want insufficient funds", err)
	}
	if f.payer.calls != 0 {
		t.Fatal("no transfer may run without a reservation")
	}
	balance, _ := f.ledger.Balance(ctx, f.wallet.ID)
	if !balance.Equal(dec("10")) {
		t.Fatalf("balance = %s, want untouched 10", balance)
	}
}

func TestRecurringRejectsCompletedPlan(t *testing.T) {
	f := newFixture(t, dec("100"))
	ctx := context.Background()
	if err := f.plans.MarkCompleted(ctx, f.plan.ID); err != nil {
		t.Fatalf("mark completed: %v", err)
	}

	if _, err := f.service.Recurring(ctx, f.plan.ID); !errors.Is(err, plan.ErrPlanCompleted) {
		t.Fatalf("err = %v, want plan completed", err)
	}
	if _, err := f.service.Break(ctx, f.plan.ID); !errors.Is(err, plan.ErrPlanCompleted) {
		t.Fatalf("break err = %v, want plan completed", err)
	}
}

func TestRecurringRefundsOnPreSubmissionFailure(t *testing.T) {
	f := newFixture(t, dec("100"))
	ctx := context.Background()
	f.payer.errs = []error{chain.ErrSignerFailure}

	if _, err := f.service.Recurring(ctx, f.plan.ID); !errors.Is(err, chain.ErrSignerFailure) {
		t.Fatalf("err = %v, want signer failure", err)
	}

	balance, _ := f.ledger.Balance(ctx, f.wallet.ID)
	if !balance.Equal(dec("100")) {
		t.Fatalf("balance = %s, want reservation refunded to 100", balance)
	}
	entries, _ := f.ledger.History(ctx, f.wallet.ID, 10)
	if len(entries) != 0 {
		t.Fatalf("entries = %+v, want none for a transfer that never ran", entries)
	}
}

func TestRecurringKeepsReservationWhenOutcomeUnknown(t *testing.T) {
	f := newFixture(t, dec("100"))
	ctx := context.Background()
	f.payer.errs = []error{&chain.UndeterminedError{Signature: "slow-sig"}}

	if _, err := f.service.Recurring(ctx, f.plan.ID); !errors.Is(err, chain.ErrUndetermined) {
		t.Fatalf("err = %v, want undetermined", err)
	}

	balance, _ := f.ledger.Balance(ctx, f.wallet.ID)
	if !balance.Equal(dec("70")) {
		t.Fatalf("balance = %s, want reservation kept at 70", balance)
	}
	claimed, _ := f.register.IsClaimed(ctx, "slow-sig")
	if claimed {
		t.Fatal("nothing may be claimed while the outcome is unknown")
	}
}

func TestRecurringRefundsDuplicateSettlement(t *testing.T) {
	f := newFixture(t, dec("100"))
	ctx := context.Background()
	if err := f.register.Claim(ctx, "pay-sig-1"); err != nil {
		t.Fatalf("pre-claim: %v", err)
	}

	receipt, err := f.service.Recurring(ctx, f.plan.ID)
	if err != nil {
		t.Fatalf("recurring: %v", err)
	}
	if receipt.Signature != "pay-sig-1" {
		t.Fatalf("receipt = %+v", receipt)
	}
	balance, _ := f.ledger.Balance(ctx, f.wallet.ID)
	if !balance.Equal(dec("100")) {
		t.Fatalf("balance = %s, want duplicate reservation refunded", balance)
	}
}

func TestBreakDrainsWithFee(t *testing.T) {
	f := newFixture(t, dec("100"))
	ctx := context.Background()

	receipt, err := f.service.Break(ctx, f.plan.ID)
	if err != nil {
		t.Fatalf("break: %v", err)
	}
	if !receipt.Amount.Equal(dec("98")) || !receipt.Fee.Equal(dec("2")) || !receipt.Completed {
		t.Fatalf("receipt = %+v, want 98 net, 2 fee, completed", receipt)
	}
	if !f.payer.amounts[0].Equal(dec("98")) {
		t.Fatalf("transferred = %s, want net 98", f.payer.amounts[0])
	}

	balance, _ := f.ledger.Balance(ctx, f.wallet.ID)
	if !balance.IsZero() {
		t.Fatalf("balance = %s, want 0 after drain", balance)
	}

	entries, _ := f.ledger.History(ctx, f.wallet.ID, 10)
	if len(entries) != 2 {
		t.Fatalf("entries = %+v, want payout and fee debits", entries)
	}
	for _, e := range entries {
		if e.Type != ledger.EntryDebit || e.SettlementRef != "pay-sig-1" {
			t.Fatalf("entry = %+v", e)
		}
	}

	p, _ := f.plans.Get(ctx, f.plan.ID)
	if p.Status != plan.StatusCompleted || p.NextPayoutAt != nil {
		t.Fatalf("plan = %+v, want completed with no next payout", p)
	}
}

func TestBreakEmptyWalletCompletesWithoutTransfer(t *testing.T) {
	f := newFixture(t, decimal.Zero)
	ctx := context.Background()

	receipt, err := f.service.Break(ctx, f.plan.ID)
	if err != nil {
		t.Fatalf("break: %v", err)
	}
	if !receipt.Completed || !receipt.Amount.IsZero() {
		t.Fatalf("receipt = %+v", receipt)
	}
	if f.payer.calls != 0 {
		t.Fatal("no transfer for an empty wallet")
	}
	p, _ := f.plans.Get(ctx, f.plan.ID)
	if p.Status != plan.StatusCompleted {
		t.Fatalf("status = %s, want completed", p.Status)
	}
}

func TestBreakRestoresBalanceOnPreSubmissionFailure(t *testing.T) {
	f := newFixture(t, dec("100"))
	ctx := context.Background()
	f.payer.errs = []error{chain.ErrInsufficientOnChain}

	if _, err := f.service.Break(ctx, f.plan.ID); !errors.Is(err, chain.ErrInsufficientOnChain) {
		t.Fatalf("err = %v, want insufficient on chain", err)
	}

	balance, _ := f.ledger.Balance(ctx, f.wallet.ID)
	if !balance.Equal(dec("100")) {
		t.Fatalf("balance = %s, want full drain restored", balance)
	}
	p, _ := f.plans.Get(ctx, f.plan.ID)
	if p.Status != plan.StatusActive {
		t.Fatalf("status = %s, want still active", p.Status)
	}
}
