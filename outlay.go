package outlay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/outlaylabs/outlay/gateway"
	"github.com/outlaylabs/outlay/hook"
	"github.com/outlaylabs/outlay/id"
	"github.com/outlaylabs/outlay/journal"
	"github.com/outlaylabs/outlay/metrics"
	"github.com/outlaylabs/outlay/txn"
	"github.com/outlaylabs/outlay/types"
	"github.com/outlaylabs/outlay/voucher"
)

// Work runs a metered operation against a vendor and reports what it
// consumed. It must not touch the ledger itself.
type Work func(ctx context.Context) (WorkResult, error)

// WorkResult is what a completed piece of metered work reports back.
type WorkResult struct {
	Usage txn.Usage
	Model string
	// VaultKey is set when the work ran against the customer's own
	// vendor key, so the cost never touched our account.
	VaultKey bool
	Metadata map[string]string
}

// ChargeRequest describes a balance-gated charge.
type ChargeRequest struct {
	Payer  id.AccountID
	Actor  id.AccountID
	Family txn.Kind // one of the generation kinds; defaults to LLMGeneration
	Work   Work
	// SkipRecord asks to skip the ledger write. Honored only when the
	// work actually ran on a vault key; billable usage is always
	// recorded.
	SkipRecord bool
}

// ChargeResult reports a completed charge.
type ChargeResult struct {
	Work        WorkResult
	Transaction txn.Transaction // nil when recording was skipped
	// TransactionID is the id the ledger assigned to the recorded
	// charge. Zero when recording was skipped or the service reported
	// no id.
	TransactionID id.TransactionID
}

// ReservedWork runs under a pre-authorization and reports the actual
// cost, which must not exceed the reserved estimate.
type ReservedWork func(ctx context.Context) (ReservedResult, error)

// ReservedResult is the outcome of reserved work. A nil Actual commits
// the full reserved amount.
type ReservedResult struct {
	Actual   *types.Money
	Vendor   txn.Vendor
	Metadata map[string]string
}

// ReserveRequest describes a two-phase reserve/commit charge for work
// whose cost is only known afterwards.
type ReserveRequest struct {
	Payer      id.AccountID
	Estimate   types.Money
	ContractID string
	Metadata   map[string]string
	Work       ReservedWork
}

// ReserveResult reports a completed two-phase charge.
type ReserveResult struct {
	Identifier id.HoldID
	Work       ReservedResult
	// CommitID is the id of the settlement entry the ledger wrote for
	// the commit.
	CommitID id.TransactionID
}

// Meterer is the balance-gated metering engine. It never holds money
// itself: the ledger service is the single source of truth for
// balances, and the store behind it is the concurrency authority.
type Meterer struct {
	gw      gateway.Gateway
	logger  *slog.Logger
	catalog *txn.Catalog
	hooks   *hook.Registry
	journal *journal.Journal
	clock   func() time.Time
	metrics bool
}

// Option configures a Meterer.
type Option func(*Meterer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Meterer) {
		m.logger = logger
		m.hooks.WithLogger(logger)
	}
}

// WithCatalog replaces the vendor catalog.
func WithCatalog(c *txn.Catalog) Option {
	return func(m *Meterer) { m.catalog = c }
}

// WithHook registers a lifecycle hook.
func WithHook(h hook.Hook) Option {
	return func(m *Meterer) {
		_ = m.hooks.Register(h) //nolint:errcheck // best-effort hook registration during init
	}
}

// WithJournal attaches the reconciliation journal. Without it,
// post-effect failures are only logged and counted.
func WithJournal(j *journal.Journal) Option {
	return func(m *Meterer) { m.journal = j }
}

// WithMetrics toggles Prometheus instrumentation.
func WithMetrics(enabled bool) Option {
	return func(m *Meterer) { m.metrics = enabled }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Meterer) { m.clock = now }
}

// New creates a Meterer on top of a ledger gateway.
func New(gw gateway.Gateway, opts ...Option) *Meterer {
	m := &Meterer{
		gw:      gw,
		logger:  slog.Default(),
		catalog: txn.DefaultCatalog(),
		hooks:   hook.NewRegistry(),
		clock:   time.Now,
		metrics: true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Balance fetches the payer's current balance. A missing account reads
// as zero.
func (m *Meterer) Balance(ctx context.Context, payer id.AccountID) (types.Money, error) {
	account, err := m.gw.Account(ctx, payer)
	if errors.Is(err, gateway.ErrAccountNotFound) {
		return types.Zero(), nil
	}
	if err != nil {
		return types.Money{}, err
	}
	return account.Balance, nil
}

// Charge runs the balance gate, the work, and the ledger write, in
// that order. Work never runs when the balance gate fails; the ledger
// write runs even if the caller's context is canceled mid-work.
func (m *Meterer) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	if req.Work == nil {
		return ChargeResult{}, fmt.Errorf("outlay: charge without work")
	}
	family := req.Family
	if family == "" {
		family = txn.KindLLMGeneration
	}

	started := m.clock()

	balance, err := m.Balance(ctx, req.Payer)
	if err != nil {
		return ChargeResult{}, fmt.Errorf("outlay: balance check: %w", err)
	}
	if !balance.IsPositive() {
		m.count(family, "insufficient_funds")
		return ChargeResult{}, fmt.Errorf("payer %s has %s: %w", req.Payer, balance, ErrInsufficientFunds)
	}

	result, err := req.Work(ctx)
	if err != nil {
		m.count(family, "work_failed")
		return ChargeResult{}, fmt.Errorf("outlay: work: %w", err)
	}

	if req.SkipRecord && result.VaultKey {
		// Cost ran on the customer's own key; nothing to bill.
		m.observe(family, started)
		m.count(family, "ok")
		return ChargeResult{Work: result}, nil
	}

	tx, err := m.catalog.BuildUsageTransaction(family, result.Usage, result.Model, req.Payer, req.Actor, result.Metadata)
	if err != nil {
		return ChargeResult{}, m.writeFailed(ctx, req.Payer, nil, family, result, err)
	}

	// The work is done and must be billed even if the caller gave up.
	recordCtx := context.WithoutCancel(ctx)
	txID, err := m.gw.Append(recordCtx, tx)
	if err != nil {
		return ChargeResult{}, m.writeFailed(recordCtx, req.Payer, tx, family, result, err)
	}

	m.hooks.EmitCharge(recordCtx, hook.ChargeEvent{Payer: req.Payer, Transaction: tx})
	m.observe(family, started)
	m.count(family, "ok")
	return ChargeResult{Work: result, Transaction: tx, TransactionID: txID}, nil
}

// ChargeReserved reserves an estimate up front, runs the work, then
// commits the actual cost. The unspent remainder is released by the
// commit; a failed work run releases the full reservation.
func (m *Meterer) ChargeReserved(ctx context.Context, req ReserveRequest) (ReserveResult, error) {
	if req.Work == nil {
		return ReserveResult{}, fmt.Errorf("outlay: reserve without work")
	}

	holdID := id.NewHoldID()
	pre, err := txn.NewPreAuthorization(req.Estimate, req.Payer, holdID)
	if err != nil {
		return ReserveResult{}, err
	}
	pre.Metadata = req.Metadata

	balance, err := m.Balance(ctx, req.Payer)
	if err != nil {
		return ReserveResult{}, fmt.Errorf("outlay: balance check: %w", err)
	}
	if !balance.IsPositive() {
		m.count(txn.KindPreAuthorization, "insufficient_funds")
		return ReserveResult{}, fmt.Errorf("payer %s has %s: %w", req.Payer, balance, ErrInsufficientFunds)
	}

	if _, err := m.gw.Append(ctx, pre); err != nil {
		// Nothing happened yet; the caller may retry.
		m.count(txn.KindPreAuthorization, "write_failed")
		return ReserveResult{}, fmt.Errorf("outlay: reserve: %w", err)
	}

	result, workErr := req.Work(ctx)
	recordCtx := context.WithoutCancel(ctx)

	if workErr != nil {
		// Release the full reservation with a zero commit.
		zero := types.Zero()
		if _, err := m.gw.Commit(recordCtx, holdID, gateway.CommitOpts{Amount: &zero, ContractID: req.ContractID}); err != nil {
			return ReserveResult{}, m.leaked(recordCtx, req.Payer, holdID, req.Estimate, err)
		}
		m.count(txn.KindPreAuthorization, "work_failed")
		return ReserveResult{}, fmt.Errorf("outlay: work: %w", workErr)
	}

	var invalidActual error
	if result.Actual != nil {
		if result.Actual.IsNegative() {
			invalidActual = fmt.Errorf("actual %s: %w", result.Actual, ErrInvalidAmount)
		} else if result.Actual.Cmp(req.Estimate) > 0 {
			invalidActual = fmt.Errorf("actual %s exceeds reserved %s: %w", result.Actual, req.Estimate, ErrInvalidAmount)
		}
		if invalidActual != nil {
			// Settle at the reserved ceiling rather than leave the
			// hold dangling; the caller still sees the bad report.
			result.Actual = nil
		}
	}

	opts := gateway.CommitOpts{
		Amount:     result.Actual,
		ContractID: req.ContractID,
		Vendor:     result.Vendor,
		Metadata:   result.Metadata,
	}
	commitID, err := m.gw.Commit(recordCtx, holdID, opts)
	if err != nil {
		return ReserveResult{}, m.leaked(recordCtx, req.Payer, holdID, req.Estimate, err)
	}

	commit := txn.CommitPreAuthorized{
		Header:     txn.Header{Timestamp: m.clock().UTC()},
		Identifier: holdID,
		ContractID: req.ContractID,
		Amount:     result.Actual,
		Vendor:     result.Vendor,
		Metadata:   result.Metadata,
	}
	m.hooks.EmitCharge(recordCtx, hook.ChargeEvent{Payer: req.Payer, Transaction: commit})
	m.count(txn.KindCommitPreAuthorized, "ok")
	if invalidActual != nil {
		return ReserveResult{Identifier: holdID, Work: result, CommitID: commitID}, invalidActual
	}
	return ReserveResult{Identifier: holdID, Work: result, CommitID: commitID}, nil
}

// Statements pages through the payer's transaction history, most
// recent first. An empty cursor starts at the top.
func (m *Meterer) Statements(ctx context.Context, payer id.AccountID, cursor string, limit int) (gateway.StatementPage, error) {
	return m.gw.Statements(ctx, payer, cursor, limit)
}

// Deposit credits the payer's account.
func (m *Meterer) Deposit(ctx context.Context, actor id.AccountID, amount types.Money) error {
	tx, err := txn.NewCashIn(amount, actor)
	if err != nil {
		return err
	}
	_, err = m.gw.Append(ctx, tx)
	return err
}

// Withdraw debits the actor's account.
func (m *Meterer) Withdraw(ctx context.Context, actor id.AccountID, amount types.Money) error {
	tx, err := txn.NewCashOut(amount, actor)
	if err != nil {
		return err
	}
	_, err = m.gw.Append(ctx, tx)
	return err
}

// Transfer moves funds between two accounts.
func (m *Meterer) Transfer(ctx context.Context, from, to id.AccountID, amount types.Money, description string) error {
	tx, err := txn.NewWiretransfer(amount, from, to, description)
	if err != nil {
		return err
	}
	_, err = m.gw.Append(ctx, tx)
	return err
}

// CreateVoucher mints a claimable voucher against the workspace and
// records it on the ledger. The token is only handed out once the mint
// is durable.
func (m *Meterer) CreateVoucher(ctx context.Context, workspace id.AccountID, amount types.Money) (voucher.Claimable, error) {
	claim, tx, err := voucher.CreateClaimable(amount, workspace)
	if err != nil {
		return voucher.Claimable{}, err
	}
	if _, err := m.gw.Append(ctx, tx); err != nil {
		return voucher.Claimable{}, fmt.Errorf("outlay: voucher mint: %w", err)
	}
	m.hooks.EmitVoucherCreated(ctx, hook.VoucherEvent{
		VoucherID:   claim.ID,
		WorkspaceID: workspace,
		Amount:      amount,
	})
	return claim, nil
}

// RedeemVoucher claims a voucher token for the workspace. The ledger
// store decides the credited amount; the token's hint is only a local
// sanity check.
func (m *Meterer) RedeemVoucher(ctx context.Context, workspace id.AccountID, token string) error {
	tx, err := voucher.Redeem(token, workspace)
	if err != nil {
		return err
	}
	_, err = m.gw.Append(ctx, tx)
	return err
}

// writeFailed journals completed usage the ledger failed to record and
// wraps the cause in ErrLedgerWriteFailed.
func (m *Meterer) writeFailed(ctx context.Context, payer id.AccountID, tx txn.Transaction, family txn.Kind, result WorkResult, cause error) error {
	m.count(family, "write_failed")
	if m.metrics {
		metrics.LedgerWriteFailuresTotal.Inc()
	}

	detail := fmt.Sprintf("model=%s tokens=%d: %v", result.Model, result.Usage.TotalTokens, cause)
	if m.journal != nil {
		if _, err := m.journal.Record(ctx, journal.Entry{
			Reason: journal.ReasonLedgerWriteFailed,
			Payer:  payer,
			Kind:   family,
			Amount: types.Zero(), // cost is priced by the store, unknown here
			Detail: detail,
		}); err != nil {
			m.logger.ErrorContext(ctx, "journal write failed", "payer", payer.String(), "error", err)
		}
	}

	m.hooks.EmitLedgerWriteFailed(ctx, hook.WriteFailure{Payer: payer, Transaction: tx, Err: cause})
	m.logger.ErrorContext(ctx, "completed usage not recorded",
		"payer", payer.String(),
		"kind", string(family),
		"detail", detail)
	return fmt.Errorf("outlay: %w: %w", cause, ErrLedgerWriteFailed)
}

// leaked journals a hold whose release failed and wraps the cause in
// ErrReservationLeaked.
func (m *Meterer) leaked(ctx context.Context, payer id.AccountID, holdID id.HoldID, reserved types.Money, cause error) error {
	if m.metrics {
		metrics.ReservationLeaksTotal.Inc()
	}

	if m.journal != nil {
		if _, err := m.journal.Record(ctx, journal.Entry{
			Reason:     journal.ReasonReservationLeaked,
			Payer:      payer,
			Identifier: holdID,
			Kind:       txn.KindPreAuthorization,
			Amount:     reserved,
			Detail:     cause.Error(),
		}); err != nil {
			m.logger.ErrorContext(ctx, "journal write failed", "hold", holdID.String(), "error", err)
		}
	}

	m.hooks.EmitReservationLeaked(ctx, hook.Leak{Payer: payer, Identifier: holdID, Reserved: reserved, Err: cause})
	m.logger.ErrorContext(ctx, "hold release unconfirmed",
		"payer", payer.String(),
		"hold", holdID.String(),
		"reserved", reserved.String(),
		"error", cause)
	return fmt.Errorf("outlay: hold %s: %w: %w", holdID, cause, ErrReservationLeaked)
}

func (m *Meterer) count(kind txn.Kind, outcome string) {
	if m.metrics {
		metrics.ChargesTotal.WithLabelValues(string(kind), outcome).Inc()
	}
}

func (m *Meterer) observe(kind txn.Kind, started time.Time) {
	if m.metrics {
		metrics.ChargeDuration.WithLabelValues(string(kind)).Observe(m.clock().Sub(started).Seconds())
	}
}
