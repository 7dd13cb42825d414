// Package journal is the append-only record of post-effect failures:
// completed usage the ledger never recorded, and holds whose release
// could not be confirmed. An out-of-band reconciliation job drains it
// against the ledger service. The journal never stores balances.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/outlaylabs/outlay/id"
	"github.com/outlaylabs/outlay/txn"
	"github.com/outlaylabs/outlay/types"
)

// Reason classifies why an entry needs reconciliation.
type Reason string

const (
	ReasonLedgerWriteFailed Reason = "ledger_write_failed"
	ReasonReservationLeaked Reason = "reservation_leaked"
)

// Entry is one unreconciled failure.
type Entry struct {
	ID         int64
	Reason     Reason
	Payer      id.AccountID
	Identifier id.HoldID // zero unless the entry is about a hold
	Kind       txn.Kind
	Amount     types.Money
	Detail     string
	CreatedAt  time.Time
	ResolvedAt *time.Time
}

// Journal is a SQLite-backed store of entries.
type Journal struct {
	db *sql.DB
}

// Open opens (and if needed creates) the journal at path. Use
// ":memory:" for tests.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS reconciliation (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		reason TEXT NOT NULL,
		payer TEXT NOT NULL,
		identifier TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL,
		amount TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		resolved_at DATETIME
	);`
	_, err := j.db.ExecContext(context.Background(), query)
	if err != nil {
		return fmt.Errorf("journal: migrate: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (j *Journal) Close() error { return j.db.Close() }

// Record appends an unresolved entry and returns its id.
func (j *Journal) Record(ctx context.Context, e Entry) (int64, error) {
	identifier := ""
	if !e.Identifier.IsNil() {
		identifier = e.Identifier.String()
	}
	res, err := j.db.ExecContext(ctx, `
		INSERT INTO reconciliation (reason, payer, identifier, kind, amount, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(e.Reason), e.Payer.String(), identifier, string(e.Kind),
		e.Amount.MicroString(), e.Detail, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("journal: record: %w", err)
	}
	entryID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("journal: record: %w", err)
	}
	return entryID, nil
}

// Pending lists unresolved entries, oldest first.
func (j *Journal) Pending(ctx context.Context) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, reason, payer, identifier, kind, amount, detail, created_at
		FROM reconciliation
		WHERE resolved_at IS NULL
		ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("journal: pending: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var payer, identifier, amount string
		if err := rows.Scan(&e.ID, &e.Reason, &payer, &identifier, &e.Kind, &amount, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		if e.Payer, err = id.ParseAny(payer); err != nil {
			return nil, fmt.Errorf("journal: entry %d payer: %w", e.ID, err)
		}
		if identifier != "" {
			if e.Identifier, err = id.ParseAny(identifier); err != nil {
				return nil, fmt.Errorf("journal: entry %d identifier: %w", e.ID, err)
			}
		}
		if e.Amount, err = types.Parse(amount); err != nil {
			return nil, fmt.Errorf("journal: entry %d amount: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: pending: %w", err)
	}
	return entries, nil
}

// Resolve marks an entry as reconciled. Resolving an unknown or
// already-resolved entry is an error; reconciliation must know exactly
// what it settled.
func (j *Journal) Resolve(ctx context.Context, entryID int64) error {
	res, err := j.db.ExecContext(ctx, `
		UPDATE reconciliation SET resolved_at = ? WHERE id = ? AND resolved_at IS NULL`,
		time.Now().UTC(), entryID)
	if err != nil {
		return fmt.Errorf("journal: resolve %d: %w", entryID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("journal: resolve %d: %w", entryID, err)
	}
	if n == 0 {
		return fmt.Errorf("journal: resolve %d: no unresolved entry", entryID)
	}
	return nil
}
