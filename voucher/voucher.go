// Package voucher mints and redeems claimable ledger credits.
//
// A voucher travels as a single opaque token of the form
// "<uuid>-<micros>". The uuid is the voucher's ledger identity; the
// trailing integer is the amount hint in micro-units. The uuid itself
// contains hyphens, so the token is always split on the LAST hyphen.
package voucher

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/outlaylabs/outlay/id"
	"github.com/outlaylabs/outlay/txn"
	"github.com/outlaylabs/outlay/types"
)

// ErrInvalidVoucher is returned for tokens that fail local validation.
var ErrInvalidVoucher = errors.New("voucher: invalid voucher token")

// Claimable is a freshly minted voucher together with the transaction
// that backs it on the ledger.
type Claimable struct {
	ID     string
	Token  string
	Amount types.Money
}

// CreateClaimable mints a voucher for the given workspace. The returned
// transaction must be appended to the ledger before the token is handed
// out; the token alone carries no authority.
func CreateClaimable(amount types.Money, workspace id.AccountID) (Claimable, txn.WorkspaceCreateVoucher, error) {
	if !amount.IsPositive() {
		return Claimable{}, txn.WorkspaceCreateVoucher{}, fmt.Errorf("voucher %s: %w", amount, types.ErrInvalidAmount)
	}

	voucherID := uuid.NewString()
	claim := Claimable{
		ID:     voucherID,
		Token:  voucherID + "-" + amount.Micros().String(),
		Amount: amount,
	}
	tx := txn.NewWorkspaceCreateVoucher(amount, voucherID, workspace)
	return claim, tx, nil
}

// Redeem parses a voucher token and shapes the redeem transaction for
// the claiming workspace. Validation is purely local; the ledger store
// remains the authority on whether the voucher exists, is unclaimed,
// and what it is actually worth.
func Redeem(token string, workspace id.AccountID) (txn.WorkspaceRedeemVoucher, error) {
	voucherID, hint, err := split(token)
	if err != nil {
		return txn.WorkspaceRedeemVoucher{}, err
	}
	return txn.NewWorkspaceRedeemVoucher(hint, voucherID, workspace), nil
}

// split separates a token into its voucher id and amount hint. The hint
// must parse to a strictly positive amount; a zero or negative hint can
// only come from a corrupted or forged token.
func split(token string) (string, types.Money, error) {
	i := strings.LastIndex(token, "-")
	if i <= 0 || i == len(token)-1 {
		return "", types.Money{}, fmt.Errorf("%w: %q", ErrInvalidVoucher, token)
	}

	voucherID, rawHint := token[:i], token[i+1:]
	if _, err := uuid.Parse(voucherID); err != nil {
		return "", types.Money{}, fmt.Errorf("%w: %q: bad id", ErrInvalidVoucher, token)
	}

	hint, err := types.Parse(rawHint)
	if err != nil || !hint.IsPositive() {
		return "", types.Money{}, fmt.Errorf("%w: %q: bad amount", ErrInvalidVoucher, token)
	}
	return voucherID, hint, nil
}
