// Package core holds the typed budget domain: months, fixed-point money,
// ledger records and the pure aggregation engine.
//
// This file is the single home of the decimal parsing and formatting rules.
// Every path that turns a string into cents, or cents back into a string,
// must go through ParseAmountToCents and Money.String so that client-side
// recomputation matches stored totals bit for bit.
package core

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Money is a fixed-point decimal amount with exactly two fractional digits,
// stored as integer cents. Addition on int64 cents is exact, associative and
// commutative, so aggregation order never changes a total.
type Money struct {
	Cents int64
}

// ParseAmountToCents converts a decimal string to cents.
//
// Both dot (12.34) and comma (12,34) decimal separators are accepted, and a
// leading sign is allowed: budget lines may be negative (e.g. a revenue
// correction) or zero. Anything past the second fractional digit is resolved
// by rounding half away from zero on the third digit. Round-half-to-even is
// deliberately NOT used; the away-from-zero rule is the one shared contract
// between server and clients.
//
// Examples:
//
//	ParseAmountToCents("12.34")   -> 1234
//	ParseAmountToCents("-12,34")  -> -1234
//	ParseAmountToCents("12.345")  -> 1235 (half away from zero)
//	ParseAmountToCents("-12.345") -> -1235
func ParseAmountToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")

	negative := false
	switch s[0] {
	case '-':
		negative = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	if s == "" {
		return 0, ErrInvalidAmount
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
		// A separator must be followed by at least one digit.
		if fracPart == "" {
			return 0, ErrInvalidAmount
		}
	}
	if intPart == "" {
		intPart = "0"
	}
	// ASCII digits only; the fractional math below indexes bytes.
	for i := 0; i < len(intPart); i++ {
		if intPart[i] < '0' || intPart[i] > '9' {
			return 0, ErrInvalidAmount
		}
	}
	for i := 0; i < len(fracPart); i++ {
		if fracPart[i] < '0' || fracPart[i] > '9' {
			return 0, ErrInvalidAmount
		}
	}

	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	// iv*100 plus up to 99 fractional cents must stay within int64.
	const maxSafeInt64 = (math.MaxInt64 - 99) / 100
	if iv > maxSafeInt64 {
		return 0, ErrInvalidAmount
	}

	// First two fractional digits, then half-away-from-zero on the third.
	var fracCents int64
	if len(fracPart) > 0 {
		fracCents = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			fracCents += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}

	cents := iv*100 + fracCents
	if negative {
		cents = -cents
	}
	return cents, nil
}

// Add returns the exact sum.
func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

// String formats the amount with exactly two fractional digits and a dot
// separator, e.g. "1234.56" or "-0.05". This is the inverse of
// ParseAmountToCents for every representable value.
func (m Money) String() string {
	cents := m.Cents
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// MarshalJSON emits the decimal as a JSON string so that no reader can lose
// precision through binary floating point.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	cents, err := ParseAmountToCents(s)
	if err != nil {
		return err
	}
	m.Cents = cents
	return nil
}
