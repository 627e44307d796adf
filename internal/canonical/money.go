// Package canonical defines the canonical extraction record shared by every
// stage of the pipeline and the deterministic external-id derivation that
// makes the pipeline idempotent.
package canonical

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Money is a fixed-point monetary amount, stored as integer cents to avoid
// binary float drift. It always serializes as a dot-decimal string.
type Money struct {
	cents int64
}

// ZeroMoney is the additive identity.
var ZeroMoney = Money{}

// NewMoneyFromCents builds a Money directly from an integer cent count.
func NewMoneyFromCents(cents int64) Money {
	return Money{cents: cents}
}

// ParseMoney parses a decimal string ("11.48", "-3", "10.005") into Money,
// quantizing to two fractional digits using banker's round-half-up at the
// boundary (i.e. exact halves round away from zero, matching the reference
// implementation's ROUND_HALF_UP behaviour for currency amounts).
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, fmt.Errorf("canonical: empty amount")
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}

	intPart, fracPart, hasFrac := strings.Cut(s, ".")
	if intPart == "" {
		intPart = "0"
	}
	whole, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return Money{}, fmt.Errorf("canonical: invalid amount %q: %w", s, err)
	}

	cents := whole * 100
	if hasFrac {
		// Quantize to 2 digits: look at the third digit (if any) to round.
		for len(fracPart) < 3 {
			fracPart += "0"
		}
		twoDigits, err := strconv.ParseInt(fracPart[:2], 10, 64)
		if err != nil {
			return Money{}, fmt.Errorf("canonical: invalid amount %q: %w", s, err)
		}
		roundDigit := fracPart[2]
		if roundDigit >= '5' {
			twoDigits++
		}
		cents += twoDigits
	}

	if neg {
		cents = -cents
	}
	return Money{cents: cents}, nil
}

// MustParseMoney is ParseMoney but panics on error; reserved for constants
// and tests, never for pipeline input.
func MustParseMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

// NewMoneyFromFloat quantizes a float64 amount to Money. Only used at the
// boundary when a strategy (e.g. OCR) hands back a float-typed amount.
func NewMoneyFromFloat(f float64) Money {
	rounded := math.Round(f*100) / 100
	return Money{cents: int64(math.Round(rounded * 100))}
}

// Cents returns the underlying integer cent count.
func (m Money) Cents() int64 { return m.cents }

// IsPositive reports whether the amount is strictly greater than zero.
func (m Money) IsPositive() bool { return m.cents > 0 }

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool { return m.cents == 0 }

// Negative reports whether the amount is strictly less than zero.
func (m Money) Negative() bool { return m.cents < 0 }

// Abs returns the absolute value.
func (m Money) Abs() Money {
	if m.cents < 0 {
		return Money{cents: -m.cents}
	}
	return m
}

// Add returns m + other.
func (m Money) Add(other Money) Money { return Money{cents: m.cents + other.cents} }

// Sub returns m - other.
func (m Money) Sub(other Money) Money { return Money{cents: m.cents - other.cents} }

// Cmp returns -1, 0, or 1 as m is less than, equal to, or greater than other.
func (m Money) Cmp(other Money) int {
	switch {
	case m.cents < other.cents:
		return -1
	case m.cents > other.cents:
		return 1
	default:
		return 0
	}
}

// Equal reports m == other.
func (m Money) Equal(other Money) bool { return m.cents == other.cents }

// RelativeDiff returns |m - other| / |other| as a float, or 1.0 (treated as
// maximally different) when other is zero.
func (m Money) RelativeDiff(other Money) float64 {
	if other.cents == 0 {
		return 1.0
	}
	diff := m.Sub(other).Abs()
	return float64(diff.cents) / math.Abs(float64(other.cents))
}

// String renders the canonical dot-decimal form, e.g. "11.48", "-3.00".
func (m Money) String() string {
	neg := m.cents < 0
	abs := m.cents
	if neg {
		abs = -abs
	}
	whole := abs / 100
	frac := abs % 100
	sign := ""
	if neg {
		sign = "-"
	}
	return fmt.Sprintf("%s%d.%02d", sign, whole, frac)
}

// MarshalJSON renders Money as a dot-decimal JSON string.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(m.String())), nil
}

// UnmarshalJSON parses Money from a dot-decimal JSON string.
func (m *Money) UnmarshalJSON(data []byte) error {
	s, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("canonical: money must be a JSON string: %w", err)
	}
	parsed, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
