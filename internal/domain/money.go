package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ─── Money ──────────────────────────────────────────────────────────────────

// Money is an amount in minor currency units (kobo for NGN).
// All ledger arithmetic is integer; decimal is only used at the edges.
type Money int64

// minorDigits is the number of fractional digits of the currency.
const minorDigits = 2

// ParseMoney parses a decimal string such as "12500" or "12,500.50".
// More than two fractional digits is rejected rather than rounded.
func ParseMoney(s string) (Money, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidMoney)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidMoney, s)
	}
	minor := d.Shift(minorDigits)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("%w: %q has more than %d decimal places", ErrInvalidMoney, s, minorDigits)
	}
	return Money(minor.IntPart()), nil
}

// String formats m with two decimal places.
func (m Money) String() string {
	return decimal.New(int64(m), -minorDigits).StringFixed(minorDigits)
}

// Abs returns |m|.
func (m Money) Abs() Money {
	if m < 0 {
		return -m
	}
	return m
}

// Float returns m in major units, for display and JSON only.
func (m Money) Float() float64 {
	f, _ := decimal.New(int64(m), -minorDigits).Float64()
	return f
}

// MarshalText renders m as a decimal string so JSON payloads stay exact.
func (m Money) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText accepts the decimal string form.
func (m *Money) UnmarshalText(b []byte) error {
	v, err := ParseMoney(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
