// Package outlay provides a balance-gated metering engine for AI usage billing.
//
// Outlay is designed as a library, not a service. It sits between an
// application and a remote ledger service: the ledger owns balances and
// enforces concurrency invariants, while Outlay decides when work is
// allowed to run and guarantees that completed work gets recorded. It
// provides:
//
//   - Balance-gated charges: work never runs against an empty account
//   - Two-phase reserve/commit charges for work whose cost is only
//     known afterwards
//   - Exact micro-unit money arithmetic with no floating point
//   - A reconciliation journal for ledger writes that could not be
//     confirmed
//   - Voucher mint/redeem with tamper-evident tokens
//   - Payment webhook processing with markup inversion and currency
//     conversion
//   - Lifecycle hooks and Prometheus metrics
//
// # Quick Start
//
// Create a Meterer on top of a ledger gateway:
//
//	import (
//	    "github.com/outlaylabs/outlay"
//	    "github.com/outlaylabs/outlay/gateway/httpgw"
//	)
//
//	gw := httpgw.New(baseURL, httpgw.WithToken(token))
//	m := outlay.New(gw, outlay.WithLogger(logger))
//
// Charge a payer for a piece of metered work:
//
//	result, err := m.Charge(ctx, outlay.ChargeRequest{
//	    Payer: payerID,
//	    Actor: userID,
//	    Work: func(ctx context.Context) (outlay.WorkResult, error) {
//	        resp, err := client.Complete(ctx, prompt)
//	        if err != nil {
//	            return outlay.WorkResult{}, err
//	        }
//	        return outlay.WorkResult{Usage: resp.Usage, Model: resp.Model}, nil
//	    },
//	})
//
// # Money
//
// All monetary amounts are integer micro-units: one unit of currency is
// 1,000,000 micros. Arithmetic uses big integers throughout; there is
// no floating point anywhere on the money path. The canonical string
// form separates units from micros with an underscore:
//
//	10_500000  // 10.5 units
//	-1_000000  // -1 unit
//
// # Failure Handling
//
// Pre-flight failures (insufficient funds, unknown vendor, invalid
// amounts) mean no work ran and no money moved; they are safe to
// retry. Post-effect failures (ErrLedgerWriteFailed,
// ErrReservationLeaked) mean completed work or a reservation could not
// be settled; they are journaled for reconciliation and surfaced via
// hooks. IsPreFlight and IsPostEffect classify the two families.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	acct_01h2xcejqtf2nbrexx3vqjhp41  // Account ID
//	hold_01h2xcejqtf2nbrexx3vqjhp41  // Hold ID
//	txn_01h455vb4pex5vsknk084sn02q   // Transaction ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of entities.
package outlay
