// Package rates resolves foreign-currency exchange rates against USD,
// the ledger's unit of account.
package rates

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/outlaylabs/outlay/types"
)

// ErrCurrencyNotSupported is returned for a currency code no source
// knows a rate for.
var ErrCurrencyNotSupported = errors.New("rates: currency not supported")

// Rate is the price of one USD in a foreign currency. USD itself is
// implicitly 1.
type Rate struct {
	Code  string
	Value *big.Rat
}

// USDFromLocal converts an amount denominated in the rate's currency
// into its USD equivalent, rounding half away from zero to a whole
// micro-unit.
func (r Rate) USDFromLocal(local types.Money) (types.Money, error) {
	if r.Value == nil || r.Value.Sign() <= 0 {
		return types.Money{}, fmt.Errorf("%w: %q has no positive rate", ErrCurrencyNotSupported, r.Code)
	}

	// local / rate, in micros.
	v := new(big.Rat).SetInt(local.Micros())
	v.Quo(v, r.Value)
	return types.FromMicros(roundRat(v)), nil
}

// roundRat rounds to the nearest integer, half away from zero.
func roundRat(r *big.Rat) *big.Int {
	num := new(big.Int).Abs(r.Num())
	den := r.Denom()
	q, rem := new(big.Int).QuoRem(num, den, new(big.Int))
	rem.Lsh(rem, 1)
	if rem.Cmp(den) >= 0 {
		q.Add(q, big.NewInt(1))
	}
	if r.Sign() < 0 {
		q.Neg(q)
	}
	return q
}

// Source resolves rates for a set of ISO currency codes. Implementations
// must resolve "USD" to 1 without consulting anything.
type Source interface {
	Rates(ctx context.Context, codes []string) (map[string]Rate, error)
}

// Static is a fixed in-memory Source for tests and pinned-rate configs.
type Static struct {
	rates map[string]Rate
}

// NewStatic builds a Static source from code to decimal-string rate,
// e.g. {"EUR": "0.92"}.
func NewStatic(pairs map[string]string) (*Static, error) {
	s := &Static{rates: make(map[string]Rate, len(pairs)+1)}
	for code, raw := range pairs {
		v, ok := new(big.Rat).SetString(raw)
		if !ok || v.Sign() <= 0 {
			return nil, fmt.Errorf("rates: bad rate %q for %s", raw, code)
		}
		code = strings.ToUpper(code)
		s.rates[code] = Rate{Code: code, Value: v}
	}
	s.rates["USD"] = Rate{Code: "USD", Value: big.NewRat(1, 1)}
	return s, nil
}

// Rates implements Source.
func (s *Static) Rates(_ context.Context, codes []string) (map[string]Rate, error) {
	out := make(map[string]Rate, len(codes))
	for _, code := range codes {
		code = strings.ToUpper(code)
		rate, ok := s.rates[code]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrCurrencyNotSupported, code)
		}
		out[code] = rate
	}
	return out, nil
}
