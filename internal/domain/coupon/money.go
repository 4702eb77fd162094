package coupon

import "github.com/shopspring/decimal"

// Cents is an amount in the smallest currency unit.
type Cents int64

var hundred = decimal.NewFromInt(100)

// ToCents converts a major-unit amount to cents, rounding half away from zero.
func ToCents(d decimal.Decimal) Cents {
	return Cents(d.Mul(hundred).Round(0).IntPart())
}

// Decimal converts cents back to a major-unit amount.
func (c Cents) Decimal() decimal.Decimal {
	return decimal.New(int64(c), -2)
}

func (c Cents) decimal() decimal.Decimal {
	return decimal.NewFromInt(int64(c))
}

func minCents(a, b Cents) Cents {
	if a < b {
		return a
	}
	return b
}

// floorAtZero clamps negative values to zero.
func floorAtZero(c Cents) Cents {
	if c < 0 {
		return 0
	}
	return c
}
