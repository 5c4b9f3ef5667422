package ir

import (
	"fmt"
	"math"
	"strconv"
)

// USD is an amount of US dollars held as integer cents. Fixed point keeps
// cost sums exact: three markers at 8.50 plus one at 17.00 is 4250 cents,
// never 42.499999.
type USD int64

// Cents builds a USD amount from a cent count.
func Cents(c int64) USD { return USD(c) }

// Dollars converts a floating dollar amount to USD, rounding to the nearest
// cent. Used at configuration boundaries only.
func Dollars(d float64) USD {
	return USD(math.Round(d * 100))
}

// Float returns the amount in dollars as a float64 for display and for
// backends that only store numbers.
func (u USD) Float() float64 {
	return float64(u) / 100
}

// String renders the amount with exactly two decimals, e.g. "42.50".
func (u USD) String() string {
	sign := ""
	c := int64(u)
	if c < 0 {
		sign = "-"
		c = -c
	}
	return fmt.Sprintf("%s%d.%02d", sign, c/100, c%100)
}

// MarshalJSON encodes the amount as a JSON number with two decimals.
func (u USD) MarshalJSON() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalJSON accepts any JSON number and rounds it to cents.
func (u *USD) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := ParseUSD(s)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// ParseUSD parses a decimal dollar string such as "8.5" or "42.50".
func ParseUSD(s string) (USD, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing dollar amount %q: %w", s, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("parsing dollar amount %q: not a finite number", s)
	}
	return Dollars(f), nil
}
