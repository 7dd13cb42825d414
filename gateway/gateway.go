// Package gateway defines the client contract against the external
// ledger service. The service owns every balance and every transaction
// record; this side never stores money, it only shapes requests and
// interprets responses.
package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/outlaylabs/outlay/id"
	"github.com/outlaylabs/outlay/txn"
	"github.com/outlaylabs/outlay/types"
)

// ErrAccountNotFound is returned when the ledger has no account for the
// requested id. Callers that treat a missing account as a zero balance
// must do so explicitly.
var ErrAccountNotFound = errors.New("gateway: account not found")

// Account is a point-in-time snapshot of a ledger account. The balance
// is already stale the moment it is returned; it is a gate, not a lock.
type Account struct {
	ID      id.AccountID
	Balance types.Money
}

// Statement is one settled entry on an account's history.
type Statement struct {
	ID        id.TransactionID
	Kind      txn.Kind
	Amount    types.Money
	Timestamp time.Time
	Metadata  map[string]string
}

// StatementPage is one page of an account's history. An empty
// NextCursor means the walk is complete.
type StatementPage struct {
	Statements []Statement
	NextCursor string
}

// CommitOpts finalizes a pre-authorization. A nil Amount commits the
// full reserved amount; a zero Amount releases the hold entirely.
type CommitOpts struct {
	Amount     *types.Money
	ContractID string
	Vendor     txn.Vendor
	Metadata   map[string]string
}

// Gateway is the ledger service client contract.
type Gateway interface {
	// Account fetches the current snapshot for an account.
	Account(ctx context.Context, accountID id.AccountID) (Account, error)

	// Statements pages through an account's history. Pass an empty
	// cursor to start from the most recent entry.
	Statements(ctx context.Context, accountID id.AccountID, cursor string, limit int) (StatementPage, error)

	// Append records a transaction and returns the store-assigned
	// transaction id (zero when the service reports none, e.g. an
	// idempotent replay). The identifier baked into the transaction
	// (voucher id, hold id, event id metadata) is the idempotency key;
	// the service deduplicates on it.
	Append(ctx context.Context, tx txn.Transaction) (id.TransactionID, error)

	// Commit finalizes the pre-authorization registered under
	// identifier, releasing whatever was reserved beyond the committed
	// amount. Returns the id of the settlement entry.
	Commit(ctx context.Context, identifier id.HoldID, opts CommitOpts) (id.TransactionID, error)
}
