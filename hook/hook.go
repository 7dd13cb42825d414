// Package hook lets integrations observe billing lifecycle events.
// Hooks implement the base interface plus any subset of the event
// interfaces; the registry discovers what each hook handles at
// registration time.
package hook

import (
	"context"

	"github.com/outlaylabs/outlay/id"
	"github.com/outlaylabs/outlay/txn"
	"github.com/outlaylabs/outlay/types"
)

// Hook is the base interface all hooks must implement.
type Hook interface {
	Name() string
}

// ChargeEvent describes a successfully recorded charge.
type ChargeEvent struct {
	Payer       id.AccountID
	Transaction txn.Transaction
}

// WriteFailure describes completed work the ledger failed to record.
// Money has already effectively moved; someone must be told.
type WriteFailure struct {
	Payer       id.AccountID
	Transaction txn.Transaction
	Err         error
}

// Leak describes a hold whose release could not be confirmed.
type Leak struct {
	Payer      id.AccountID
	Identifier id.HoldID
	Reserved   types.Money
	Err        error
}

// VoucherEvent describes a freshly minted voucher.
type VoucherEvent struct {
	VoucherID   string
	WorkspaceID id.AccountID
	Amount      types.Money
}

// OnCharge is called after a charge was recorded on the ledger.
type OnCharge interface {
	Hook
	OnCharge(ctx context.Context, ev ChargeEvent) error
}

// OnLedgerWriteFailed is called when a completed charge could not be
// recorded.
type OnLedgerWriteFailed interface {
	Hook
	OnLedgerWriteFailed(ctx context.Context, ev WriteFailure) error
}

// OnReservationLeaked is called when a hold release failed.
type OnReservationLeaked interface {
	Hook
	OnReservationLeaked(ctx context.Context, ev Leak) error
}

// OnVoucherCreated is called after a voucher was minted and recorded.
type OnVoucherCreated interface {
	Hook
	OnVoucherCreated(ctx context.Context, ev VoucherEvent) error
}
