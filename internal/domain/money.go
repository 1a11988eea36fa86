package domain

import (
	"fmt"
	"math"
	"strconv"
)

// Money is an amount in minor currency units (cents).
type Money int64

// MoneyFromFloat converts a major-unit amount, rounding to the nearest cent.
func MoneyFromFloat(v float64) Money {
	return Money(math.Round(v * 100))
}

// Float64 returns the amount in major units.
func (m Money) Float64() float64 {
	return float64(m) / 100
}

// String formats the amount with two decimals.
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// Times multiplies the amount by n.
func (m Money) Times(n int) Money {
	return m * Money(n)
}

// MarshalJSON encodes the amount as a decimal number.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a decimal number.
func (m *Money) UnmarshalJSON(data []byte) error {
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("invalid amount %s: %w", data, err)
	}
	*m = MoneyFromFloat(v)
	return nil
}
