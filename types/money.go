// Package types provides common types used across Outlay.
package types

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// MicrosPerUnit is the fixed sub-unit scale: one currency unit is
// 1,000,000 micro-units.
const MicrosPerUnit = 1_000_000

// Sentinel errors for monetary arithmetic and parsing.
var (
	ErrDivisionByZero = errors.New("money: division by zero")
	ErrInvalidMoney   = errors.New("money: invalid amount string")
	ErrInvalidAmount  = errors.New("money: amount must be positive")
)

var microsPerUnit = big.NewInt(MicrosPerUnit)

// Money is an exact monetary value held as an arbitrary-precision signed
// integer of micro-units. All arithmetic stays in the integer domain;
// floating point appears only at the display boundary and never feeds back.
//
// The zero value is a valid zero amount. Money is immutable: every
// operation returns a new value and the internal integer is never aliased.
type Money struct {
	micros *big.Int
}

// FromUnits creates a Money value from whole currency units.
func FromUnits(units int64) Money {
	m := new(big.Int).SetInt64(units)
	return Money{micros: m.Mul(m, microsPerUnit)}
}

// FromMicros creates a Money value from a micro-unit count. The argument
// is copied; the caller keeps ownership of it.
func FromMicros(micros *big.Int) Money {
	if micros == nil {
		return Money{}
	}
	return Money{micros: new(big.Int).Set(micros)}
}

// MicrosFromInt creates a Money value from an int64 micro-unit count.
func MicrosFromInt(micros int64) Money {
	return Money{micros: big.NewInt(micros)}
}

// Zero returns the zero amount.
func Zero() Money { return Money{} }

// Parse parses the canonical micro-unit string form
// "<units>_<6-digit micros>" (e.g. "10_000000" for 10.00, "-1_500000"
// for -1.50). The underscore is optional, a single leading '-' is
// accepted, and "-0" normalizes to a non-negative zero.
func Parse(s string) (Money, error) {
	raw := s

	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	s = strings.Replace(s, "_", "", 1)

	if s == "" {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidMoney, raw)
	}

	micros, ok := new(big.Int).SetString(s, 10)
	if !ok || micros.Sign() < 0 {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidMoney, raw)
	}
	if neg {
		micros.Neg(micros)
	}

	// big.Int normalizes -0 to 0, so a signed zero never survives parsing.
	return Money{micros: micros}, nil
}

// MustParse is like Parse but panics on error. Use for hardcoded amounts.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("money: must parse %q: %v", s, err))
	}
	return m
}

// value returns the internal integer, treating the zero value as 0.
// Callers must not mutate the result.
func (m Money) value() *big.Int {
	if m.micros == nil {
		return new(big.Int)
	}
	return m.micros
}

// Micros returns a copy of the micro-unit count.
func (m Money) Micros() *big.Int {
	return new(big.Int).Set(m.value())
}

// Arithmetic operations

// Add returns m + other.
func (m Money) Add(other Money) Money {
	return Money{micros: new(big.Int).Add(m.value(), other.value())}
}

// Sub returns m - other.
func (m Money) Sub(other Money) Money {
	return Money{micros: new(big.Int).Sub(m.value(), other.value())}
}

// MulInt returns m scaled by an integer factor.
func (m Money) MulInt(factor int64) Money {
	return Money{micros: new(big.Int).Mul(m.value(), big.NewInt(factor))}
}

// Div returns m divided by an integer divisor, truncated toward zero.
func (m Money) Div(divisor int64) (Money, error) {
	if divisor == 0 {
		return Money{}, ErrDivisionByZero
	}
	return Money{micros: new(big.Int).Quo(m.value(), big.NewInt(divisor))}, nil
}

// Neg returns the negated amount.
func (m Money) Neg() Money {
	return Money{micros: new(big.Int).Neg(m.value())}
}

// Abs returns the absolute amount.
func (m Money) Abs() Money {
	return Money{micros: new(big.Int).Abs(m.value())}
}

// Comparison methods

// Cmp compares two amounts, returning -1, 0 or +1.
func (m Money) Cmp(other Money) int { return m.value().Cmp(other.value()) }

// Equal reports whether the two amounts are equal.
func (m Money) Equal(other Money) bool { return m.Cmp(other) == 0 }

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool { return m.value().Sign() == 0 }

// IsPositive reports whether the amount is greater than zero.
func (m Money) IsPositive() bool { return m.value().Sign() > 0 }

// IsNegative reports whether the amount is less than zero.
func (m Money) IsNegative() bool { return m.value().Sign() < 0 }

// Max returns the larger of two amounts.
func (m Money) Max(other Money) Money {
	if m.Cmp(other) >= 0 {
		return Money{micros: new(big.Int).Set(m.value())}
	}
	return Money{micros: new(big.Int).Set(other.value())}
}

// Min returns the smaller of two amounts.
func (m Money) Min(other Money) Money {
	if m.Cmp(other) <= 0 {
		return Money{micros: new(big.Int).Set(m.value())}
	}
	return Money{micros: new(big.Int).Set(other.value())}
}

// Formatting methods

// MicroString returns the canonical lossless micro-unit form,
// "<units>_<6-digit micros>" with a leading '-' for negative amounts.
// This is the only representation used on the wire.
func (m Money) MicroString() string {
	v := m.value()

	sign := ""
	abs := new(big.Int).Abs(v)
	if v.Sign() < 0 {
		sign = "-"
	}

	units, frac := new(big.Int).QuoRem(abs, microsPerUnit, new(big.Int))
	return fmt.Sprintf("%s%s_%06d", sign, units.String(), frac.Int64())
}

// String returns the canonical micro-unit form.
func (m Money) String() string { return m.MicroString() }

// Units returns the amount as a floating display value. Lossy; the result
// must never round-trip back into the integer domain.
func (m Money) Units() float64 {
	f, _ := new(big.Float).SetInt(m.value()).Float64()
	return f / MicrosPerUnit
}

// Format returns a human-readable decimal string with two fraction digits,
// e.g. "10.50" or "-1.50". Display only.
func (m Money) Format() string {
	v := m.value()

	sign := ""
	abs := new(big.Int).Abs(v)
	if v.Sign() < 0 {
		sign = "-"
	}

	units, frac := new(big.Int).QuoRem(abs, microsPerUnit, new(big.Int))
	cents := frac.Int64() / (MicrosPerUnit / 100)
	return fmt.Sprintf("%s%s.%02d", sign, units.String(), cents)
}

// MarshalText implements encoding.TextMarshaler using the canonical form.
func (m Money) MarshalText() ([]byte, error) {
	return []byte(m.MicroString()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Money) UnmarshalText(data []byte) error {
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Sum returns the sum of multiple amounts.
func Sum(values ...Money) Money {
	total := new(big.Int)
	for _, v := range values {
		total.Add(total, v.value())
	}
	return Money{micros: total}
}
