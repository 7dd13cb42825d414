// Package memory is an in-memory Gateway for tests. It applies the
// same invariants the real ledger service enforces: balances move only
// through transactions, holds reserve funds up front, and a commit is
// rejected unless its identifier was pre-authorized for at least the
// committed amount.
package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/outlaylabs/outlay/gateway"
	"github.com/outlaylabs/outlay/id"
	"github.com/outlaylabs/outlay/txn"
	"github.com/outlaylabs/outlay/types"
)

type hold struct {
	payer    id.AccountID
	reserved types.Money
}

type voucherState struct {
	amount  types.Money
	claimed bool
}

// Store is a mutex-guarded Gateway fake.
type Store struct {
	mu       sync.Mutex
	balances map[id.AccountID]types.Money
	history  map[id.AccountID][]gateway.Statement
	holds    map[id.HoldID]hold
	vouchers map[string]voucherState
	commits  map[id.HoldID]types.Money

	// Price converts generation usage into a debit. Tests override it
	// to pin exact amounts.
	Price func(u txn.Usage) types.Money

	// AppendErr and CommitErr inject failures into the next calls.
	AppendErr error
	CommitErr error
}

// New returns an empty store with a flat ten-micros-per-token price.
func New() *Store {
	return &Store{
		balances: make(map[id.AccountID]types.Money),
		history:  make(map[id.AccountID][]gateway.Statement),
		holds:    make(map[id.HoldID]hold),
		vouchers: make(map[string]voucherState),
		commits:  make(map[id.HoldID]types.Money),
		Price: func(u txn.Usage) types.Money {
			return types.MicrosFromInt(10 * u.TotalTokens)
		},
	}
}

// Seed creates or overwrites an account balance without a transaction.
func (s *Store) Seed(accountID id.AccountID, balance types.Money) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[accountID] = balance
}

// Balance reads an account balance directly, for assertions.
func (s *Store) Balance(accountID id.AccountID) types.Money {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[accountID]
}

// Committed reports the amount finalized for a hold, and whether the
// hold was ever committed.
func (s *Store) Committed(identifier id.HoldID) (types.Money, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.commits[identifier]
	return m, ok
}

// Account implements gateway.Gateway.
func (s *Store) Account(_ context.Context, accountID id.AccountID) (gateway.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	balance, ok := s.balances[accountID]
	if !ok {
		return gateway.Account{}, fmt.Errorf("%w: %s", gateway.ErrAccountNotFound, accountID)
	}
	return gateway.Account{ID: accountID, Balance: balance}, nil
}

// Statements implements gateway.Gateway. Entries come back most recent
// first; the cursor is an offset into that ordering.
func (s *Store) Statements(_ context.Context, accountID id.AccountID, cursor string, limit int) (gateway.StatementPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.history[accountID]
	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return gateway.StatementPage{}, fmt.Errorf("memory: bad cursor %q", cursor)
		}
		offset = n
	}
	if limit <= 0 {
		limit = 50
	}

	var page gateway.StatementPage
	for i := len(entries) - 1 - offset; i >= 0 && len(page.Statements) < limit; i-- {
		page.Statements = append(page.Statements, entries[i])
	}
	if next := offset + len(page.Statements); next < len(entries) {
		page.NextCursor = strconv.Itoa(next)
	}
	return page, nil
}

// Append implements gateway.Gateway. The returned id is the one carried
// by the primary statement entry; idempotent replays return a zero id.
func (s *Store) Append(_ context.Context, tx txn.Transaction) (id.TransactionID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.AppendErr != nil {
		err := s.AppendErr
		s.AppendErr = nil
		return id.Nil, err
	}

	txID := id.NewTransactionID()

	switch v := tx.(type) {
	case txn.CashIn:
		s.credit(v.ActorID, v.Amount)
		s.recordAs(txID, v.ActorID, v.Kind(), v.Amount, v.CreatedAt(), nil)
	case txn.CashOut:
		s.debit(v.ActorID, v.Amount)
		s.recordAs(txID, v.ActorID, v.Kind(), v.Amount.Neg(), v.CreatedAt(), nil)
	case txn.WorkspaceCashIn:
		s.credit(v.WorkspaceID, v.Amount)
		s.recordAs(txID, v.WorkspaceID, v.Kind(), v.Amount, v.CreatedAt(), nil)
	case txn.Wiretransfer:
		s.debit(v.From, v.Amount)
		s.credit(v.To, v.Amount)
		s.recordAs(txID, v.From, v.Kind(), v.Amount.Neg(), v.CreatedAt(), nil)
		s.record(v.To, v.Kind(), v.Amount, v.CreatedAt(), nil)
	case txn.Generation:
		s.chargeGeneration(txID, v.Kind(), v.GenerationPayload, v.CreatedAt())
	case txn.AgentGeneration:
		s.chargeGeneration(txID, v.Kind(), v.GenerationPayload, v.CreatedAt())
	case txn.LLMGeneration:
		s.chargeGeneration(txID, v.Kind(), v.GenerationPayload, v.CreatedAt())
	case txn.WorkspaceCreateVoucher:
		if _, exists := s.vouchers[v.VoucherID]; exists {
			return id.Nil, nil // idempotent mint
		}
		s.vouchers[v.VoucherID] = voucherState{amount: v.Amount}
		s.debit(v.WorkspaceID, v.Amount)
		s.recordAs(txID, v.WorkspaceID, v.Kind(), v.Amount.Neg(), v.CreatedAt(), map[string]string{"voucher_id": v.VoucherID})
	case txn.WorkspaceRedeemVoucher:
		state, ok := s.vouchers[v.VoucherID]
		if !ok {
			return id.Nil, fmt.Errorf("memory: unknown voucher %q", v.VoucherID)
		}
		if state.claimed {
			return id.Nil, nil // idempotent claim
		}
		state.claimed = true
		s.vouchers[v.VoucherID] = state
		// Credit the stored value, never the token hint.
		s.credit(v.WorkspaceID, state.amount)
		s.recordAs(txID, v.WorkspaceID, v.Kind(), state.amount, v.CreatedAt(), map[string]string{"voucher_id": v.VoucherID})
	case txn.PreAuthorization:
		if _, exists := s.holds[v.Identifier]; exists {
			return id.Nil, fmt.Errorf("memory: duplicate hold %s", v.Identifier)
		}
		s.holds[v.Identifier] = hold{payer: v.Payer, reserved: v.Amount}
		s.debit(v.Payer, v.Amount)
		s.recordAs(txID, v.Payer, v.Kind(), v.Amount.Neg(), v.CreatedAt(), v.Metadata)
	default:
		return id.Nil, fmt.Errorf("memory: unsupported transaction %T", tx)
	}
	return txID, nil
}

// Commit implements gateway.Gateway.
func (s *Store) Commit(_ context.Context, identifier id.HoldID, opts gateway.CommitOpts) (id.TransactionID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.CommitErr != nil {
		err := s.CommitErr
		s.CommitErr = nil
		return id.Nil, err
	}

	h, ok := s.holds[identifier]
	if !ok {
		return id.Nil, fmt.Errorf("memory: commit without pre-authorization: %s", identifier)
	}

	committed := h.reserved
	if opts.Amount != nil {
		committed = *opts.Amount
	}
	if committed.IsNegative() {
		return id.Nil, fmt.Errorf("memory: negative commit %s", committed)
	}
	if committed.Cmp(h.reserved) > 0 {
		return id.Nil, fmt.Errorf("memory: commit %s exceeds reserved %s", committed, h.reserved)
	}

	// Release the unspent remainder back to the payer.
	txID := id.NewTransactionID()
	s.credit(h.payer, h.reserved.Sub(committed))
	s.recordAs(txID, h.payer, txn.KindCommitPreAuthorized, committed.Neg(), time.Now().UTC(), opts.Metadata)

	delete(s.holds, identifier)
	s.commits[identifier] = committed
	return txID, nil
}

func (s *Store) chargeGeneration(txID id.TransactionID, kind txn.Kind, p txn.GenerationPayload, at time.Time) {
	cost := s.Price(p.Usage)
	s.debit(p.Payer, cost)
	s.recordAs(txID, p.Payer, kind, cost.Neg(), at, p.Metadata)
}

func (s *Store) credit(accountID id.AccountID, amount types.Money) {
	s.balances[accountID] = s.balances[accountID].Add(amount)
}

func (s *Store) debit(accountID id.AccountID, amount types.Money) {
	s.balances[accountID] = s.balances[accountID].Sub(amount)
}

func (s *Store) record(accountID id.AccountID, kind txn.Kind, amount types.Money, at time.Time, metadata map[string]string) {
	s.recordAs(id.NewTransactionID(), accountID, kind, amount, at, metadata)
}

func (s *Store) recordAs(txID id.TransactionID, accountID id.AccountID, kind txn.Kind, amount types.Money, at time.Time, metadata map[string]string) {
	s.history[accountID] = append(s.history[accountID], gateway.Statement{
		ID:        txID,
		Kind:      kind,
		Amount:    amount,
		Timestamp: at,
		Metadata:  metadata,
	})
}
