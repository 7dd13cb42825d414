package outlay_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/outlaylabs/outlay"
	"github.com/outlaylabs/outlay/gateway"
	"github.com/outlaylabs/outlay/gateway/memory"
	"github.com/outlaylabs/outlay/hook"
	"github.com/outlaylabs/outlay/id"
	"github.com/outlaylabs/outlay/journal"
	"github.com/outlaylabs/outlay/txn"
	"github.com/outlaylabs/outlay/types"
	"github.com/outlaylabs/outlay/voucher"
)

func newMeterer(t *testing.T, store *memory.Store, opts ...outlay.Option) *outlay.Meterer {
	t.Helper()
	opts = append([]outlay.Option{outlay.WithMetrics(false)}, opts...)
	return outlay.New(store, opts...)
}

func usageWork(tokens int64, model string) outlay.Work {
	return func(_ context.Context) (outlay.WorkResult, error) {
		return outlay.WorkResult{
			Usage: txn.Usage{PromptTokens: tokens / 2, CompletionTokens: tokens - tokens/2, TotalTokens: tokens},
			Model: model,
		}, nil
	}
}

func TestChargeGateBlocksWork(t *testing.T) {
	store := memory.New()
	m := newMeterer(t, store)
	payer := id.NewAccountID()

	ran := false
	work := func(_ context.Context) (outlay.WorkResult, error) {
		ran = true
		return outlay.WorkResult{}, nil
	}

	// Unknown account reads as zero balance.
	_, err := m.Charge(context.Background(), outlay.ChargeRequest{Payer: payer, Work: work})
	if !errors.Is(err, outlay.ErrInsufficientFunds) {
		t.Fatalf("charge against missing account: %v", err)
	}
	if ran {
		t.Fatal("work ran before the balance gate passed")
	}

	// An overdrawn account is also blocked.
	store.Seed(payer, types.MicrosFromInt(-1))
	_, err = m.Charge(context.Background(), outlay.ChargeRequest{Payer: payer, Work: work})
	if !errors.Is(err, outlay.ErrInsufficientFunds) {
		t.Fatalf("charge against overdrawn account: %v", err)
	}
	if ran {
		t.Fatal("work ran against an overdrawn account")
	}
}

func TestChargeRecordsUsage(t *testing.T) {
	store := memory.New()
	m := newMeterer(t, store)
	payer := id.NewAccountID()
	actor := id.NewAccountID()
	store.Seed(payer, types.FromUnits(10))

	res, err := m.Charge(context.Background(), outlay.ChargeRequest{
		Payer: payer,
		Actor: actor,
		Work:  usageWork(1000, "claude-sonnet-4-5"),
	})
	if err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if res.Transaction == nil {
		t.Fatal("no transaction recorded")
	}
	if res.Transaction.Kind() != txn.KindLLMGeneration {
		t.Fatalf("default family: got %s", res.Transaction.Kind())
	}
	if res.TransactionID.IsNil() {
		t.Fatal("no transaction id returned")
	}

	page, err := store.Statements(context.Background(), payer, "", 1)
	if err != nil {
		t.Fatalf("Statements: %v", err)
	}
	if len(page.Statements) != 1 || page.Statements[0].ID.String() != res.TransactionID.String() {
		t.Fatalf("recorded id mismatch: statements %+v, result %s", page.Statements, res.TransactionID)
	}

	// Default pricing is 10 micros per token: 1000 tokens = 10_000 micros.
	want := types.FromUnits(10).Sub(types.MicrosFromInt(10_000))
	if got := store.Balance(payer); !got.Equal(want) {
		t.Fatalf("balance after charge: got %s, want %s", got, want)
	}
}

func TestChargeRecordsAfterCallerCancel(t *testing.T) {
	store := memory.New()
	m := newMeterer(t, store)
	payer := id.NewAccountID()
	store.Seed(payer, types.FromUnits(5))

	ctx, cancel := context.WithCancel(context.Background())
	work := func(_ context.Context) (outlay.WorkResult, error) {
		// Caller walks away while the vendor call is in flight.
		cancel()
		return outlay.WorkResult{
			Usage: txn.Usage{TotalTokens: 100},
			Model: "gpt-4o",
		}, nil
	}

	res, err := m.Charge(ctx, outlay.ChargeRequest{Payer: payer, Work: work})
	if err != nil {
		t.Fatalf("Charge after cancel: %v", err)
	}
	if res.Transaction == nil {
		t.Fatal("completed work not recorded after caller cancel")
	}
	want := types.FromUnits(5).Sub(types.MicrosFromInt(1_000))
	if got := store.Balance(payer); !got.Equal(want) {
		t.Fatalf("balance: got %s, want %s", got, want)
	}
}

func TestChargeVaultKeySkipsRecording(t *testing.T) {
	store := memory.New()
	m := newMeterer(t, store)
	payer := id.NewAccountID()
	store.Seed(payer, types.FromUnits(5))

	work := func(_ context.Context) (outlay.WorkResult, error) {
		return outlay.WorkResult{
			Usage:    txn.Usage{TotalTokens: 500},
			Model:    "gpt-4o",
			VaultKey: true,
		}, nil
	}

	res, err := m.Charge(context.Background(), outlay.ChargeRequest{
		Payer:      payer,
		Work:       work,
		SkipRecord: true,
	})
	if err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if res.Transaction != nil {
		t.Fatal("vault-key work was recorded despite SkipRecord")
	}
	if got := store.Balance(payer); !got.Equal(types.FromUnits(5)) {
		t.Fatalf("balance moved: %s", got)
	}
}

func TestChargeSkipRecordIgnoredWithoutVaultKey(t *testing.T) {
	store := memory.New()
	m := newMeterer(t, store)
	payer := id.NewAccountID()
	store.Seed(payer, types.FromUnits(5))

	// SkipRecord alone must not suppress billing.
	res, err := m.Charge(context.Background(), outlay.ChargeRequest{
		Payer:      payer,
		Work:       usageWork(100, "gpt-4o"),
		SkipRecord: true,
	})
	if err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if res.Transaction == nil {
		t.Fatal("billable usage skipped recording")
	}
}

func TestChargeWorkFailureMovesNoMoney(t *testing.T) {
	store := memory.New()
	m := newMeterer(t, store)
	payer := id.NewAccountID()
	store.Seed(payer, types.FromUnits(5))

	broken := errors.New("vendor unavailable")
	_, err := m.Charge(context.Background(), outlay.ChargeRequest{
		Payer: payer,
		Work: func(_ context.Context) (outlay.WorkResult, error) {
			return outlay.WorkResult{}, broken
		},
	})
	if !errors.Is(err, broken) {
		t.Fatalf("work error not surfaced: %v", err)
	}
	if got := store.Balance(payer); !got.Equal(types.FromUnits(5)) {
		t.Fatalf("balance moved on failed work: %s", got)
	}
}

func TestChargeWriteFailureJournaled(t *testing.T) {
	store := memory.New()
	j, err := journal.Open(":memory:")
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer j.Close()

	m := newMeterer(t, store, outlay.WithJournal(j))
	payer := id.NewAccountID()
	store.Seed(payer, types.FromUnits(5))
	store.AppendErr = errors.New("ledger unreachable")

	_, err = m.Charge(context.Background(), outlay.ChargeRequest{
		Payer: payer,
		Work:  usageWork(300, "gpt-4o"),
	})
	if !errors.Is(err, outlay.ErrLedgerWriteFailed) {
		t.Fatalf("want ErrLedgerWriteFailed, got %v", err)
	}

	pending, err := j.Pending(context.Background())
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending entries: %d", len(pending))
	}
	entry := pending[0]
	if entry.Reason != journal.ReasonLedgerWriteFailed {
		t.Fatalf("reason: %s", entry.Reason)
	}
	if entry.Payer != payer {
		t.Fatalf("payer: %s", entry.Payer)
	}
	if !strings.Contains(entry.Detail, "tokens=300") {
		t.Fatalf("detail missing usage: %q", entry.Detail)
	}
}

func TestChargeWriteFailureKeepsCause(t *testing.T) {
	store := memory.New()
	m := newMeterer(t, store)
	payer := id.NewAccountID()
	store.Seed(payer, types.FromUnits(5))

	// The work completed, so an unknown model at recording time is a
	// post-effect failure; both sentinels must survive wrapping.
	_, err := m.Charge(context.Background(), outlay.ChargeRequest{
		Payer: payer,
		Work:  usageWork(100, "mystery-model"),
	})
	if !errors.Is(err, outlay.ErrLedgerWriteFailed) {
		t.Fatalf("want ErrLedgerWriteFailed, got %v", err)
	}
	if !errors.Is(err, outlay.ErrUnknownVendor) {
		t.Fatalf("cause lost in wrapping: %v", err)
	}
}

func TestChargeReservedPartialCommit(t *testing.T) {
	store := memory.New()
	m := newMeterer(t, store)
	payer := id.NewAccountID()
	store.Seed(payer, types.FromUnits(100))

	actual := types.FromUnits(30)
	res, err := m.ChargeReserved(context.Background(), outlay.ReserveRequest{
		Payer:    payer,
		Estimate: types.FromUnits(80),
		Work: func(_ context.Context) (outlay.ReservedResult, error) {
			return outlay.ReservedResult{Actual: &actual}, nil
		},
	})
	if err != nil {
		t.Fatalf("ChargeReserved: %v", err)
	}
	if res.Identifier.IsNil() {
		t.Fatal("no hold identifier returned")
	}
	if got := id.Prefix("hold"); res.Identifier.Prefix() != got {
		t.Fatalf("hold prefix: %s", res.Identifier.Prefix())
	}
	if res.CommitID.IsNil() {
		t.Fatal("no settlement id returned")
	}

	committed, ok := store.Committed(res.Identifier)
	if !ok {
		t.Fatal("hold not settled")
	}
	if !committed.Equal(actual) {
		t.Fatalf("committed: got %s, want %s", committed, actual)
	}
	// 100 - 30: the unspent 50 came back with the commit.
	if got := store.Balance(payer); !got.Equal(types.FromUnits(70)) {
		t.Fatalf("balance: got %s", got)
	}
}

func TestChargeReservedFullCommitByDefault(t *testing.T) {
	store := memory.New()
	m := newMeterer(t, store)
	payer := id.NewAccountID()
	store.Seed(payer, types.FromUnits(100))

	res, err := m.ChargeReserved(context.Background(), outlay.ReserveRequest{
		Payer:    payer,
		Estimate: types.FromUnits(40),
		Work: func(_ context.Context) (outlay.ReservedResult, error) {
			return outlay.ReservedResult{}, nil // nil Actual means the full estimate
		},
	})
	if err != nil {
		t.Fatalf("ChargeReserved: %v", err)
	}
	committed, _ := store.Committed(res.Identifier)
	if !committed.Equal(types.FromUnits(40)) {
		t.Fatalf("committed: %s", committed)
	}
	if got := store.Balance(payer); !got.Equal(types.FromUnits(60)) {
		t.Fatalf("balance: %s", got)
	}
}

func TestChargeReservedWorkFailureReleases(t *testing.T) {
	store := memory.New()
	m := newMeterer(t, store)
	payer := id.NewAccountID()
	store.Seed(payer, types.FromUnits(100))

	broken := errors.New("vendor timeout")
	_, err := m.ChargeReserved(context.Background(), outlay.ReserveRequest{
		Payer:    payer,
		Estimate: types.FromUnits(80),
		Work: func(_ context.Context) (outlay.ReservedResult, error) {
			return outlay.ReservedResult{}, broken
		},
	})
	if !errors.Is(err, broken) {
		t.Fatalf("work error not surfaced: %v", err)
	}
	// Zero commit released the full reservation.
	if got := store.Balance(payer); !got.Equal(types.FromUnits(100)) {
		t.Fatalf("reservation not released: balance %s", got)
	}
}

func TestChargeReservedActualExceedsEstimate(t *testing.T) {
	store := memory.New()
	m := newMeterer(t, store)
	payer := id.NewAccountID()
	store.Seed(payer, types.FromUnits(100))

	over := types.FromUnits(90)
	res, err := m.ChargeReserved(context.Background(), outlay.ReserveRequest{
		Payer:    payer,
		Estimate: types.FromUnits(50),
		Work: func(_ context.Context) (outlay.ReservedResult, error) {
			return outlay.ReservedResult{Actual: &over}, nil
		},
	})
	if !errors.Is(err, outlay.ErrInvalidAmount) {
		t.Fatalf("over-report accepted: %v", err)
	}
	// The hold is still settled, at the reserved ceiling.
	committed, ok := store.Committed(res.Identifier)
	if !ok {
		t.Fatal("hold left dangling after bad report")
	}
	if !committed.Equal(types.FromUnits(50)) {
		t.Fatalf("committed: %s", committed)
	}
}

func TestChargeReservedLeakJournaled(t *testing.T) {
	store := memory.New()
	j, err := journal.Open(":memory:")
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer j.Close()

	var leaks []hook.Leak
	spy := &leakSpy{onLeak: func(ev hook.Leak) { leaks = append(leaks, ev) }}
	m := newMeterer(t, store, outlay.WithJournal(j), outlay.WithHook(spy))

	payer := id.NewAccountID()
	store.Seed(payer, types.FromUnits(100))
	store.CommitErr = errors.New("ledger unreachable")

	_, err = m.ChargeReserved(context.Background(), outlay.ReserveRequest{
		Payer:    payer,
		Estimate: types.FromUnits(25),
		Work: func(_ context.Context) (outlay.ReservedResult, error) {
			return outlay.ReservedResult{}, nil
		},
	})
	if !errors.Is(err, outlay.ErrReservationLeaked) {
		t.Fatalf("want ErrReservationLeaked, got %v", err)
	}

	pending, err := j.Pending(context.Background())
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending entries: %d", len(pending))
	}
	if pending[0].Reason != journal.ReasonReservationLeaked {
		t.Fatalf("reason: %s", pending[0].Reason)
	}
	if !pending[0].Amount.Equal(types.FromUnits(25)) {
		t.Fatalf("journaled amount: %s", pending[0].Amount)
	}
	if len(leaks) != 1 {
		t.Fatalf("leak hooks fired: %d", len(leaks))
	}
	if !leaks[0].Reserved.Equal(types.FromUnits(25)) {
		t.Fatalf("leak reserved: %s", leaks[0].Reserved)
	}
}

type leakSpy struct {
	mu     sync.Mutex
	onLeak func(hook.Leak)
}

func (s *leakSpy) Name() string { return "leak-spy" }

func (s *leakSpy) OnReservationLeaked(_ context.Context, ev hook.Leak) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLeak(ev)
	return nil
}

func TestDepositThenSpend(t *testing.T) {
	store := memory.New()
	m := newMeterer(t, store)
	workspace := id.NewAccountID()

	// A customer pays 1500 gross at 25% markup; 1200 lands as credit.
	gross := types.FromUnits(1500)
	net, err := types.InvertMarkup(gross, types.MustPercent("25"))
	if err != nil {
		t.Fatalf("InvertMarkup: %v", err)
	}
	if !net.Equal(types.FromUnits(1200)) {
		t.Fatalf("net: %s", net)
	}
	if err := m.Deposit(context.Background(), workspace, net); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := m.Charge(context.Background(), outlay.ChargeRequest{
			Payer: workspace,
			Work:  usageWork(1000, "gpt-4o-mini"),
		}); err != nil {
			t.Fatalf("charge %d: %v", i, err)
		}
	}

	// 1200 units - 3 * 10_000 micros.
	want := types.FromUnits(1200).Sub(types.MicrosFromInt(30_000))
	got, err := m.Balance(context.Background(), workspace)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if !got.Equal(want) {
		t.Fatalf("balance: got %s, want %s", got, want)
	}
}

func TestTransferMovesFunds(t *testing.T) {
	store := memory.New()
	m := newMeterer(t, store)
	from := id.NewAccountID()
	to := id.NewAccountID()
	store.Seed(from, types.FromUnits(10))

	if err := m.Transfer(context.Background(), from, to, types.FromUnits(4), "monthly split"); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if got := store.Balance(from); !got.Equal(types.FromUnits(6)) {
		t.Fatalf("sender: %s", got)
	}
	if got := store.Balance(to); !got.Equal(types.FromUnits(4)) {
		t.Fatalf("recipient: %s", got)
	}
}

func TestVoucherLifecycleThroughMeterer(t *testing.T) {
	store := memory.New()

	var minted []hook.VoucherEvent
	spy := &voucherSpy{onMint: func(ev hook.VoucherEvent) { minted = append(minted, ev) }}
	m := newMeterer(t, store, outlay.WithHook(spy))

	sponsor := id.NewAccountID()
	claimer := id.NewAccountID()
	store.Seed(sponsor, types.FromUnits(100))

	claim, err := m.CreateVoucher(context.Background(), sponsor, types.FromUnits(40))
	if err != nil {
		t.Fatalf("CreateVoucher: %v", err)
	}
	if got := store.Balance(sponsor); !got.Equal(types.FromUnits(60)) {
		t.Fatalf("sponsor after mint: %s", got)
	}
	if len(minted) != 1 || !minted[0].Amount.Equal(types.FromUnits(40)) {
		t.Fatalf("mint hook: %+v", minted)
	}

	if err := m.RedeemVoucher(context.Background(), claimer, claim.Token); err != nil {
		t.Fatalf("RedeemVoucher: %v", err)
	}
	if got := store.Balance(claimer); !got.Equal(types.FromUnits(40)) {
		t.Fatalf("claimer after redeem: %s", got)
	}

	if err := m.RedeemVoucher(context.Background(), claimer, "not-a-token"); !errors.Is(err, voucher.ErrInvalidVoucher) {
		t.Fatalf("bad token: %v", err)
	}
}

type voucherSpy struct {
	mu     sync.Mutex
	onMint func(hook.VoucherEvent)
}

func (s *voucherSpy) Name() string { return "voucher-spy" }

func (s *voucherSpy) OnVoucherCreated(_ context.Context, ev hook.VoucherEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMint(ev)
	return nil
}

func TestVoucherMintFailureReturnsNoToken(t *testing.T) {
	store := memory.New()
	m := newMeterer(t, store)
	sponsor := id.NewAccountID()
	store.Seed(sponsor, types.FromUnits(100))
	store.AppendErr = fmt.Errorf("ledger unreachable")

	claim, err := m.CreateVoucher(context.Background(), sponsor, types.FromUnits(10))
	if err == nil {
		t.Fatal("mint succeeded against a failing ledger")
	}
	if claim.Token != "" {
		t.Fatal("token handed out before the mint was durable")
	}
}

func TestErrorClassification(t *testing.T) {
	preFlight := []error{
		outlay.ErrInsufficientFunds,
		outlay.ErrInvalidAmount,
		outlay.ErrUnknownVendor,
		outlay.ErrInvalidVoucher,
	}
	for _, err := range preFlight {
		if !outlay.IsPreFlight(err) {
			t.Errorf("IsPreFlight(%v) = false", err)
		}
		if outlay.IsPostEffect(err) {
			t.Errorf("IsPostEffect(%v) = true", err)
		}
	}

	postEffect := []error{
		outlay.ErrLedgerWriteFailed,
		outlay.ErrReservationLeaked,
		fmt.Errorf("wrapped: %w", outlay.ErrLedgerWriteFailed),
	}
	for _, err := range postEffect {
		if !outlay.IsPostEffect(err) {
			t.Errorf("IsPostEffect(%v) = false", err)
		}
		if outlay.IsPreFlight(err) {
			t.Errorf("IsPreFlight(%v) = true", err)
		}
	}
}

var _ gateway.Gateway = (*memory.Store)(nil)
