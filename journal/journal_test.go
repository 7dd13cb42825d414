package journal

import (
	"context"
	"testing"

	"github.com/outlaylabs/outlay/id"
	"github.com/outlaylabs/outlay/txn"
	"github.com/outlaylabs/outlay/types"
)

func openTest(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordPendingResolve(t *testing.T) {
	ctx := context.Background()
	j := openTest(t)
	payer := id.NewAccountID()
	holdID := id.NewHoldID()

	first, err := j.Record(ctx, Entry{
		Reason: ReasonLedgerWriteFailed,
		Payer:  payer,
		Kind:   txn.KindLLMGeneration,
		Amount: types.MicrosFromInt(1_250000),
		Detail: "append: connection refused",
	})
	if err != nil {
		t.Fatal(err)
	}
	second, err := j.Record(ctx, Entry{
		Reason:     ReasonReservationLeaked,
		Payer:      payer,
		Identifier: holdID,
		Kind:       txn.KindPreAuthorization,
		Amount:     types.FromUnits(20),
	})
	if err != nil {
		t.Fatal(err)
	}

	pending, err := j.Pending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(pending))
	}
	if pending[0].ID != first || pending[1].ID != second {
		t.Errorf("order = %d,%d, want %d,%d (oldest first)", pending[0].ID, pending[1].ID, first, second)
	}
	if pending[0].Reason != ReasonLedgerWriteFailed {
		t.Errorf("reason = %q", pending[0].Reason)
	}
	if !pending[0].Amount.Equal(types.MicrosFromInt(1_250000)) {
		t.Errorf("amount = %s, want 1_250000", pending[0].Amount)
	}
	if pending[0].Payer != payer {
		t.Errorf("payer = %s, want %s", pending[0].Payer, payer)
	}
	if !pending[0].Identifier.IsNil() {
		t.Errorf("write-failure entry has identifier %s", pending[0].Identifier)
	}
	if pending[1].Identifier != holdID {
		t.Errorf("leak identifier = %s, want %s", pending[1].Identifier, holdID)
	}

	if err := j.Resolve(ctx, first); err != nil {
		t.Fatal(err)
	}
	pending, err = j.Pending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ID != second {
		t.Fatalf("after resolve: pending = %+v", pending)
	}
}

func TestResolveUnknownEntry(t *testing.T) {
	ctx := context.Background()
	j := openTest(t)

	if err := j.Resolve(ctx, 42); err == nil {
		t.Error("resolving unknown entry succeeded")
	}

	entryID, err := j.Record(ctx, Entry{
		Reason: ReasonLedgerWriteFailed,
		Payer:  id.NewAccountID(),
		Kind:   txn.KindGeneration,
		Amount: types.FromUnits(1),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := j.Resolve(ctx, entryID); err != nil {
		t.Fatal(err)
	}
	if err := j.Resolve(ctx, entryID); err == nil {
		t.Error("double resolve succeeded")
	}
}

func TestJournalSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/journal.db"

	j, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := j.Record(ctx, Entry{
		Reason: ReasonReservationLeaked,
		Payer:  id.NewAccountID(),
		Kind:   txn.KindPreAuthorization,
		Amount: types.FromUnits(3),
	}); err != nil {
		t.Fatal(err)
	}
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}

	j, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()
	pending, err := j.Pending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending after reopen = %d, want 1", len(pending))
	}
}
