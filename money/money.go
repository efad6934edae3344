// Package money provides a fixed-point currency amount with two decimal places.
// Amounts are held as integer cents so that balances never drift the way
// binary floating point does (0.1 + 0.2 != 0.3).
package money

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	centsPerUnit  = 100
	maxFracDigits = 2
)

var (
	// ErrInvalidAmount is returned when a string cannot be parsed as an amount.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrTooPrecise is returned when an amount has more than two decimal places.
	ErrTooPrecise = errors.New("amount has more than two decimal places")
)

// Amount is a monetary value in cents.
type Amount int64

// Zero is the zero amount.
const Zero Amount = 0

// FromCents returns the amount for the given number of cents.
func FromCents(cents int64) Amount {
	return Amount(cents)
}

// Parse parses a decimal string such as "1.50", "2", ".25", "$0.75" or "-1.00".
func Parse(s string) (Amount, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Zero, fmt.Errorf("%w: empty string", ErrInvalidAmount)
	}

	negative := false

	switch raw[0] {
	case '-':
		negative = true
		raw = raw[1:]
	case '+':
		raw = raw[1:]
	}

	raw = strings.TrimPrefix(raw, "$")

	whole, frac, hasDot := strings.Cut(raw, ".")
	if whole == "" && (!hasDot || frac == "") {
		return Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	if !allDigits(whole) || !allDigits(frac) {
		return Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	if len(frac) > maxFracDigits {
		return Zero, fmt.Errorf("%w: %q", ErrTooPrecise, s)
	}

	var units int64

	if whole != "" {
		v, err := strconv.ParseInt(whole, 10, 64)
		if err != nil {
			return Zero, fmt.Errorf("%w: %q: %w", ErrInvalidAmount, s, err)
		}

		units = v
	}

	var cents int64

	if frac != "" {
		for len(frac) < maxFracDigits {
			frac += "0"
		}

		v, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return Zero, fmt.Errorf("%w: %q: %w", ErrInvalidAmount, s, err)
		}

		cents = v
	}

	if units > (math.MaxInt64-cents)/centsPerUnit {
		return Zero, fmt.Errorf("%w: %q is out of range", ErrInvalidAmount, s)
	}

	total := units*centsPerUnit + cents
	if negative {
		total = -total
	}

	return Amount(total), nil
}

// MustParse is like Parse but panics on error. Intended for constants and tests.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}

	return a
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}

	return true
}

// Cents returns the amount in cents.
func (a Amount) Cents() int64 {
	return int64(a)
}

// IsPositive reports whether the amount is greater than zero.
func (a Amount) IsPositive() bool {
	return a > 0
}

// IsZero reports whether the amount is exactly zero.
func (a Amount) IsZero() bool {
	return a == 0
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount {
	return a + b
}

// Sub returns a - b.
func (a Amount) Sub(b Amount) Amount {
	return a - b
}

// Float64 returns the amount in whole currency units. Only for display.
func (a Amount) Float64() float64 {
	return float64(a) / centsPerUnit
}

// String formats the amount with exactly two decimal places, e.g. "1.50".
func (a Amount) String() string {
	sign := ""
	v := int64(a)

	if v < 0 {
		sign = "-"
		v = -v
	}

	return fmt.Sprintf("%s%d.%02d", sign, v/centsPerUnit, v%centsPerUnit)
}

// MarshalText implements encoding.TextMarshaler.
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. It is used by the YAML
// catalog loader and by environment configuration.
func (a *Amount) UnmarshalText(text []byte) error {
	v, err := Parse(string(text))
	if err != nil {
		return err
	}

	*a = v

	return nil
}
