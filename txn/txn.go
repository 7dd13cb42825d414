// Package txn defines the closed set of ledger transaction variants and
// their wire encoding.
//
// Transaction is a sealed sum type: every variant lives in this package
// and consumers dispatch with a type switch. Adding a variant is a
// compile-visible change at every consumption site, which is the point —
// the ledger wire format admits no open-ended transaction shapes.
package txn

import (
	"fmt"
	"time"

	"github.com/outlaylabs/outlay/id"
	"github.com/outlaylabs/outlay/types"
)

// Kind discriminates transaction variants on the wire.
type Kind string

// Kind constants for all transaction variants.
const (
	KindCashIn                 Kind = "cash_in"
	KindCashOut                Kind = "cash_out"
	KindWorkspaceCashIn        Kind = "workspace_cash_in"
	KindGeneration             Kind = "generation"
	KindAgentGeneration        Kind = "agent_generation"
	KindLLMGeneration          Kind = "llm_generation"
	KindWiretransfer           Kind = "wiretransfer"
	KindWorkspaceCreateVoucher Kind = "workspace_create_voucher"
	KindWorkspaceRedeemVoucher Kind = "workspace_redeem_voucher"
	KindPreAuthorization       Kind = "pre_authorization"
	KindCommitPreAuthorized    Kind = "commit_pre_authorized"
)

// Transaction is the sealed interface implemented by every variant.
// The timestamp is set by the constructing side, never by the store.
type Transaction interface {
	Kind() Kind
	CreatedAt() time.Time

	sealed()
}

// Header carries the fields common to every variant.
type Header struct {
	Timestamp time.Time `json:"timestamp"`
}

func newHeader() Header { return Header{Timestamp: time.Now().UTC()} }

// CreatedAt returns the construction time of the transaction.
func (h Header) CreatedAt() time.Time { return h.Timestamp }

func (Header) sealed() {}

// ──────────────────────────────────────────────────
// Cash movements
// ──────────────────────────────────────────────────

// CashIn credits an actor's wallet.
type CashIn struct {
	Header
	Amount  types.Money  `json:"amount"`
	ActorID id.AccountID `json:"actor_id"`
}

// Kind implements Transaction.
func (CashIn) Kind() Kind { return KindCashIn }

// NewCashIn builds a CashIn. The amount must be strictly positive.
func NewCashIn(amount types.Money, actor id.AccountID) (CashIn, error) {
	if !amount.IsPositive() {
		return CashIn{}, fmt.Errorf("cash in %s: %w", amount, types.ErrInvalidAmount)
	}
	return CashIn{Header: newHeader(), Amount: amount, ActorID: actor}, nil
}

// CashOut debits an actor's wallet.
type CashOut struct {
	Header
	Amount  types.Money  `json:"amount"`
	ActorID id.AccountID `json:"actor_id"`
}

// Kind implements Transaction.
func (CashOut) Kind() Kind { return KindCashOut }

// NewCashOut builds a CashOut. The amount must be strictly positive.
func NewCashOut(amount types.Money, actor id.AccountID) (CashOut, error) {
	if !amount.IsPositive() {
		return CashOut{}, fmt.Errorf("cash out %s: %w", amount, types.ErrInvalidAmount)
	}
	return CashOut{Header: newHeader(), Amount: amount, ActorID: actor}, nil
}

// WorkspaceCashIn credits a workspace account.
type WorkspaceCashIn struct {
	Header
	Amount      types.Money  `json:"amount"`
	WorkspaceID id.AccountID `json:"workspace_id"`
}

// Kind implements Transaction.
func (WorkspaceCashIn) Kind() Kind { return KindWorkspaceCashIn }

// NewWorkspaceCashIn builds a WorkspaceCashIn. The amount must be
// strictly positive.
func NewWorkspaceCashIn(amount types.Money, workspace id.AccountID) (WorkspaceCashIn, error) {
	if !amount.IsPositive() {
		return WorkspaceCashIn{}, fmt.Errorf("workspace cash in %s: %w", amount, types.ErrInvalidAmount)
	}
	return WorkspaceCashIn{Header: newHeader(), Amount: amount, WorkspaceID: workspace}, nil
}

// Wiretransfer moves funds between two accounts.
type Wiretransfer struct {
	Header
	Amount      types.Money  `json:"amount"`
	From        id.AccountID `json:"from"`
	To          id.AccountID `json:"to"`
	Description string       `json:"description,omitempty"`
}

// Kind implements Transaction.
func (Wiretransfer) Kind() Kind { return KindWiretransfer }

// NewWiretransfer builds a Wiretransfer between two accounts.
func NewWiretransfer(amount types.Money, from, to id.AccountID, description string) (Wiretransfer, error) {
	if !amount.IsPositive() {
		return Wiretransfer{}, fmt.Errorf("wiretransfer %s: %w", amount, types.ErrInvalidAmount)
	}
	return Wiretransfer{
		Header:      newHeader(),
		Amount:      amount,
		From:        from,
		To:          to,
		Description: description,
	}, nil
}

// ──────────────────────────────────────────────────
// Metered generations
// ──────────────────────────────────────────────────

// GenerationPayload carries the fields shared by the generation family.
// Usage counts are copied verbatim from the provider; pricing is the
// ledger store's responsibility, never computed here.
type GenerationPayload struct {
	GeneratedBy id.AccountID      `json:"generated_by"`
	Vendor      Vendor            `json:"vendor"`
	Payer       id.AccountID      `json:"payer,omitempty"`
	Usage       Usage             `json:"usage"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Generation records generic metered work.
type Generation struct {
	Header
	GenerationPayload
}

// Kind implements Transaction.
func (Generation) Kind() Kind { return KindGeneration }

// AgentGeneration records metered agent work.
type AgentGeneration struct {
	Header
	GenerationPayload
}

// Kind implements Transaction.
func (AgentGeneration) Kind() Kind { return KindAgentGeneration }

// LLMGeneration records metered LLM work.
type LLMGeneration struct {
	Header
	GenerationPayload
}

// Kind implements Transaction.
func (LLMGeneration) Kind() Kind { return KindLLMGeneration }

// ──────────────────────────────────────────────────
// Vouchers
// ──────────────────────────────────────────────────

// WorkspaceCreateVoucher mints a claimable ledger credit.
type WorkspaceCreateVoucher struct {
	Header
	Amount      types.Money  `json:"amount"`
	VoucherID   string       `json:"voucher_id"`
	WorkspaceID id.AccountID `json:"workspace_id"`
}

// Kind implements Transaction.
func (WorkspaceCreateVoucher) Kind() Kind { return KindWorkspaceCreateVoucher }

// NewWorkspaceCreateVoucher builds a voucher mint. Amount validation
// belongs to the voucher codec, which owns the token format.
func NewWorkspaceCreateVoucher(amount types.Money, voucherID string, workspace id.AccountID) WorkspaceCreateVoucher {
	return WorkspaceCreateVoucher{
		Header:      newHeader(),
		Amount:      amount,
		VoucherID:   voucherID,
		WorkspaceID: workspace,
	}
}

// WorkspaceRedeemVoucher claims a previously minted voucher. The store
// resolves the credited amount by VoucherID; Amount here is the locally
// validated hint carried for observability.
type WorkspaceRedeemVoucher struct {
	Header
	Amount      types.Money  `json:"amount"`
	VoucherID   string       `json:"voucher_id"`
	WorkspaceID id.AccountID `json:"workspace_id"`
}

// Kind implements Transaction.
func (WorkspaceRedeemVoucher) Kind() Kind { return KindWorkspaceRedeemVoucher }

// NewWorkspaceRedeemVoucher builds a voucher claim. The amount is the
// locally parsed hint; the store resolves the real value by VoucherID.
func NewWorkspaceRedeemVoucher(amount types.Money, voucherID string, workspace id.AccountID) WorkspaceRedeemVoucher {
	return WorkspaceRedeemVoucher{
		Header:      newHeader(),
		Amount:      amount,
		VoucherID:   voucherID,
		WorkspaceID: workspace,
	}
}

// ──────────────────────────────────────────────────
// Pre-authorization
// ──────────────────────────────────────────────────

// PreAuthorization reserves funds before the final cost of an operation
// is known.
type PreAuthorization struct {
	Header
	Amount     types.Money       `json:"amount"`
	Payer      id.AccountID      `json:"payer"`
	Identifier id.HoldID         `json:"identifier"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Kind implements Transaction.
func (PreAuthorization) Kind() Kind { return KindPreAuthorization }

// NewPreAuthorization builds a PreAuthorization keyed by a caller-generated
// hold identifier.
func NewPreAuthorization(amount types.Money, payer id.AccountID, identifier id.HoldID) (PreAuthorization, error) {
	if !amount.IsPositive() {
		return PreAuthorization{}, fmt.Errorf("pre-authorization %s: %w", amount, types.ErrInvalidAmount)
	}
	if identifier.IsNil() {
		return PreAuthorization{}, fmt.Errorf("pre-authorization: %w: nil identifier", types.ErrInvalidAmount)
	}
	return PreAuthorization{
		Header:     newHeader(),
		Amount:     amount,
		Payer:      payer,
		Identifier: identifier,
	}, nil
}

// CommitPreAuthorized finalizes a prior PreAuthorization. A nil Amount
// commits the full reserved amount; the store releases any remainder.
type CommitPreAuthorized struct {
	Header
	Identifier id.HoldID         `json:"identifier"`
	ContractID string            `json:"contract_id"`
	Amount     *types.Money      `json:"amount,omitempty"`
	Vendor     Vendor            `json:"vendor"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Kind implements Transaction.
func (CommitPreAuthorized) Kind() Kind { return KindCommitPreAuthorized }
