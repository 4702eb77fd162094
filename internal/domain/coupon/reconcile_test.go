package coupon

import (
	"math/rand/v2"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paymentTotal(lines []PaymentLine) Cents {
	return lo.SumBy(lines, PaymentLine.Total)
}

func TestReconcile_ExactDivision(t *testing.T) {
	items := []LineItem{item("p1", 5000, 1), item("p2", 2500, 2)}
	allocs := Prorate(1000, items)

	lines, drift := Reconcile(items, allocs)

	assert.Zero(t, drift)
	assert.Equal(t, []PaymentLine{
		{Key: "p1", Quantity: 1, UnitAmount: 4500},
		{Key: "p2", Quantity: 2, UnitAmount: 2250},
	}, lines)
}

func TestReconcile_WholeUnitCorrection(t *testing.T) {
	// p1 carries 5 cents over 2 units: floor(5/2)=2 per unit leaves 1 cent,
	// p2 carries 10 cents over 3 units: floor(10/3)=3 per unit leaves 1 cent.
	items := []LineItem{item("p1", 100, 2), item("p2", 100, 3)}
	allocs := []Allocation{
		{Key: "p1", Total: 200, Discount: 5},
		{Key: "p2", Total: 300, Discount: 10},
	}

	lines, drift := Reconcile(items, allocs)

	assert.Equal(t, Cents(2), drift)
	assert.Equal(t, Cents(500-15), paymentTotal(lines))
	assert.Equal(t, []PaymentLine{
		{Key: "p1", Quantity: 2, UnitAmount: 97},
		{Key: "p2", Quantity: 3, UnitAmount: 97},
	}, lines)
}

func TestReconcile_SplitsALine(t *testing.T) {
	items := []LineItem{item("p1", 100, 3)}
	allocs := []Allocation{{Key: "p1", Total: 300, Discount: 10}}

	lines, drift := Reconcile(items, allocs)

	assert.Equal(t, Cents(1), drift)
	assert.Equal(t, Cents(290), paymentTotal(lines))
	assert.Equal(t, []PaymentLine{
		{Key: "p1", Quantity: 2, UnitAmount: 97},
		{Key: "p1", Quantity: 1, UnitAmount: 96},
	}, lines)
}

func TestReconcile_NeverNegative(t *testing.T) {
	// The last line absorbs a remainder larger than its own total.
	items := []LineItem{item("p1", 1000, 1), item("p2", 1, 1)}
	allocs := []Allocation{
		{Key: "p1", Total: 1000, Discount: 995},
		{Key: "p2", Total: 1, Discount: 5},
	}

	lines, _ := Reconcile(items, allocs)

	assert.Equal(t, Cents(1001-1000), paymentTotal(lines))
	for _, l := range lines {
		assert.GreaterOrEqual(t, l.UnitAmount, Cents(0))
	}
}

func TestReconcile_Conserves(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for range 500 {
		n := 1 + rng.IntN(6)
		items := make([]LineItem, n)
		for i := range items {
			items[i] = item("p", Cents(1+rng.IntN(10_000)), 1+rng.IntN(7))
		}
		discount := Cents(rng.Int64N(int64(subtotal(items)) + 1))

		lines, _ := Reconcile(items, Prorate(discount, items))

		require.Equal(t, subtotal(items)-discount, paymentTotal(lines))
		for _, l := range lines {
			require.GreaterOrEqual(t, l.UnitAmount, Cents(0))
			require.Positive(t, l.Quantity)
		}
	}
}
