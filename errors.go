package outlay

import (
	"errors"

	"github.com/outlaylabs/outlay/gateway"
	"github.com/outlaylabs/outlay/plan"
	"github.com/outlaylabs/outlay/rates"
	"github.com/outlaylabs/outlay/txn"
	"github.com/outlaylabs/outlay/types"
	"github.com/outlaylabs/outlay/voucher"
)

// Sentinel errors for the metering pipeline.
var (
	// ErrInsufficientFunds means the balance gate stopped a charge
	// before any work ran.
	ErrInsufficientFunds = errors.New("outlay: insufficient funds")

	// ErrLedgerWriteFailed means metered work completed but the ledger
	// never recorded it. The usage is journaled for reconciliation.
	ErrLedgerWriteFailed = errors.New("outlay: ledger write failed")

	// ErrReservationLeaked means a hold's release could not be
	// confirmed; reserved funds may still be locked on the ledger.
	ErrReservationLeaked = errors.New("outlay: reservation leaked")
)

// Re-exported sentinels so callers can match every engine error with a
// single import.
var (
	ErrInvalidAmount        = types.ErrInvalidAmount
	ErrInvalidMarkup        = types.ErrInvalidMarkup
	ErrDivisionByZero       = types.ErrDivisionByZero
	ErrInvalidVoucher       = voucher.ErrInvalidVoucher
	ErrUnknownVendor        = txn.ErrUnknownVendor
	ErrCurrencyNotSupported = rates.ErrCurrencyNotSupported
	ErrAccountNotFound      = gateway.ErrAccountNotFound
	ErrPlanNotFound         = plan.ErrPlanNotFound
)

// IsPreFlight reports whether the error occurred before any money
// moved or any vendor work ran. Pre-flight failures are safe to
// surface to the caller and retry freely.
func IsPreFlight(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidMarkup) ||
		errors.Is(err, ErrDivisionByZero) ||
		errors.Is(err, ErrInvalidVoucher) ||
		errors.Is(err, ErrUnknownVendor) ||
		errors.Is(err, ErrCurrencyNotSupported) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrPlanNotFound)
}

// IsPostEffect reports whether real-world work already happened when
// the error surfaced. Post-effect failures must never be blindly
// retried; they are journaled and reconciled out of band.
func IsPostEffect(err error) bool {
	return errors.Is(err, ErrLedgerWriteFailed) ||
		errors.Is(err, ErrReservationLeaked)
}
