package types

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Money serialises a decimal as a string with exactly two fractional digits.
// It accepts both JSON strings and numbers on input.
type Money struct {
	decimal.Decimal
}

func NewMoney(d decimal.Decimal) Money {
	return Money{Decimal: d}
}

// MoneyPtr returns nil for a nil decimal.
func MoneyPtr(d *decimal.Decimal) *Money {
	if d == nil {
		return nil
	}
	m := NewMoney(*d)
	return &m
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Decimal.StringFixed(2))
}

func (m *Money) UnmarshalJSON(data []byte) error {
	trimmed := bytes.Trim(bytes.TrimSpace(data), `"`)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		m.Decimal = decimal.Zero
		return nil
	}
	parsed, err := decimal.NewFromString(string(trimmed))
	if err != nil {
		return fmt.Errorf("invalid money value %q: %w", string(trimmed), err)
	}
	m.Decimal = parsed
	return nil
}

// Round2 rounds half away from zero to two decimals. For the non-negative
// amounts handled here that is round half-up.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
