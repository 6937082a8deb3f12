package core

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an exact positive amount with two decimal places.
type Money struct {
	decimal.Decimal
}

// ParseMoney parses a decimal string into Money.
//
// The decimal separator is a dot. Commas are only accepted as thousands
// separators in well-formed groups of three. The value is rounded half away from
// zero to two places. Zero, negative and signed inputs are rejected with
// ErrInvalidAmount.
//
//	ParseMoney("1,500,000") -> 1500000.00
//	ParseMoney("12,345")    -> 12345.00
//	ParseMoney("12,34")     -> ErrInvalidAmount
//	ParseMoney("-1")        -> ErrInvalidAmount
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return Money{}, ErrInvalidAmount
	}
	s, ok := stripThousands(s)
	if !ok {
		return Money{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	m := Money{Decimal: d.Round(2)}
	if err := m.Validate(); err != nil {
		return Money{}, err
	}
	return m, nil
}

// stripThousands removes comma group separators from the integer part.
func stripThousands(s string) (string, bool) {
	if !strings.Contains(s, ",") {
		return s, true
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	if strings.Contains(frac, ",") {
		return "", false
	}
	groups := strings.Split(whole, ",")
	if n := len(groups[0]); n < 1 || n > 3 {
		return "", false
	}
	for _, g := range groups[1:] {
		if len(g) != 3 {
			return "", false
		}
	}
	out := strings.Join(groups, "")
	if hasFrac {
		out += "." + frac
	}
	return out, true
}

// MustMoney panics on invalid input. Intended for tests and seed data.
func MustMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Money) Validate() error {
	if !m.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

// String renders the amount with exactly two decimals.
func (m Money) String() string {
	return m.StringFixed(2)
}

// MarshalJSON encodes the amount as a string to avoid float rounding on clients.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts either a JSON string or a JSON number.
func (m *Money) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return ErrInvalidAmount
		}
		s = n.String()
	}
	parsed, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
