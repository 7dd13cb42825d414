package types

import (
	"errors"
	"fmt"
	"math/big"
)

// ErrInvalidMarkup is returned when a negative percentage is constructed
// or applied. Negative markup is always a caller defect, never clamped.
var ErrInvalidMarkup = errors.New("markup: negative percentage")

var ratHundred = big.NewRat(100, 1)

// Percent is a non-negative rational percentage, e.g. 25 or 33.33.
// The zero value is 0%.
type Percent struct {
	r *big.Rat
}

// PercentFromInt creates a Percent from a whole percentage.
func PercentFromInt(pct int64) (Percent, error) {
	if pct < 0 {
		return Percent{}, fmt.Errorf("%w: %d", ErrInvalidMarkup, pct)
	}
	return Percent{r: new(big.Rat).SetInt64(pct)}, nil
}

// PercentFromFloat creates a Percent from a fractional percentage such
// as 33.33. The float is only an input convenience; the value is held
// exactly as a rational from then on.
func PercentFromFloat(pct float64) (Percent, error) {
	if pct < 0 {
		return Percent{}, fmt.Errorf("%w: %v", ErrInvalidMarkup, pct)
	}
	r := new(big.Rat)
	if r.SetFloat64(pct) == nil {
		return Percent{}, fmt.Errorf("markup: not a finite percentage: %v", pct)
	}
	return Percent{r: r}, nil
}

// PercentFromString parses a decimal percentage string like "25" or "33.33".
func PercentFromString(s string) (Percent, error) {
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return Percent{}, fmt.Errorf("markup: invalid percentage %q", s)
	}
	if r.Sign() < 0 {
		return Percent{}, fmt.Errorf("%w: %s", ErrInvalidMarkup, s)
	}
	return Percent{r: r}, nil
}

// MustPercent is like PercentFromString but panics on error.
func MustPercent(s string) Percent {
	p, err := PercentFromString(s)
	if err != nil {
		panic(fmt.Sprintf("markup: must parse %q: %v", s, err))
	}
	return p
}

func (p Percent) rat() *big.Rat {
	if p.r == nil {
		return new(big.Rat)
	}
	return p.r
}

// IsZero reports whether the percentage is 0.
func (p Percent) IsZero() bool { return p.rat().Sign() == 0 }

// String returns the percentage as a decimal string.
func (p Percent) String() string {
	r := p.rat()
	if r.IsInt() {
		return r.Num().String()
	}
	return r.FloatString(4)
}

// ApplyMarkup returns round(m * (1 + pct/100)), rounding half away from
// zero on the integer micro-unit result. Rounding happens exactly once
// per call: the ledger stores rounded amounts at each hop, and downstream
// entries are compared bit-for-bit against recomputed values.
func ApplyMarkup(m Money, pct Percent) (Money, error) {
	r := pct.rat()
	if r.Sign() < 0 {
		return Money{}, ErrInvalidMarkup
	}

	// m * (100 + pct) / 100
	factor := new(big.Rat).Add(ratHundred, r)
	factor.Quo(factor, ratHundred)
	return roundRat(new(big.Rat).Mul(ratFromMoney(m), factor)), nil
}

// InvertMarkup returns round(m / (1 + pct/100)), the integer-rounding
// inverse of ApplyMarkup. For the curated amounts the ledger produces the
// composition is exact; for adversarial rationals the round-trip may
// drift by at most one micro-unit, which is accepted rather than changing
// the rounding policy downstream entries already depend on.
func InvertMarkup(m Money, pct Percent) (Money, error) {
	r := pct.rat()
	if r.Sign() < 0 {
		return Money{}, ErrInvalidMarkup
	}

	// m * 100 / (100 + pct)
	divisor := new(big.Rat).Add(ratHundred, r)
	factor := new(big.Rat).Quo(ratHundred, divisor)
	return roundRat(new(big.Rat).Mul(ratFromMoney(m), factor)), nil
}

func ratFromMoney(m Money) *big.Rat {
	return new(big.Rat).SetInt(m.value())
}

// roundRat rounds a rational to the nearest integer micro-unit, halves
// away from zero.
func roundRat(r *big.Rat) Money {
	num := new(big.Int).Abs(r.Num())
	den := r.Denom()

	q, rem := new(big.Int).QuoRem(num, den, new(big.Int))

	// 2*rem >= den means the fraction is .5 or more.
	rem.Lsh(rem, 1)
	if rem.Cmp(den) >= 0 {
		q.Add(q, big.NewInt(1))
	}

	if r.Sign() < 0 {
		q.Neg(q)
	}
	return Money{micros: q}
}
