package coupon

import (
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func item(id string, price Cents, qty int) LineItem {
	return LineItem{ProductID: id, UnitPrice: price, Quantity: qty}
}

func percent(code string, value string) Meta {
	return Meta{ID: code, Code: code, Kind: KindCoupon, Type: DiscountPercent, Value: d(value), Enabled: true}
}

func fixed(code string, cents int64) Meta {
	return Meta{ID: code, Code: code, Kind: KindCoupon, Type: DiscountFixed, Value: decimal.NewFromInt(cents), Enabled: true}
}

func stackable(m Meta) Meta {
	m.Stackable = true
	return m
}

func TestComputeBreakdown(t *testing.T) {
	tests := []struct {
		name         string
		items        []LineItem
		shipping     Shipping
		metas        []Meta
		codes        []string
		policy       Policy
		wantCodes    []string
		wantTotal    Cents
		wantShipping Cents
		wantClamped  bool
	}{
		{
			name:      "stackable 10% off two items",
			items:     []LineItem{item("p1", 5000, 1), item("p2", 5000, 1)},
			metas:     []Meta{stackable(percent("TEN", "10"))},
			codes:     []string{"ten"},
			wantCodes: []string{"TEN"},
			wantTotal: 1000,
		},
		{
			name:      "fixed 100 off three items",
			items:     []LineItem{item("p1", 100, 1), item("p2", 100, 1), item("p3", 100, 1)},
			metas:     []Meta{fixed("HUNDRED", 100)},
			codes:     []string{"HUNDRED"},
			wantCodes: []string{"HUNDRED"},
			wantTotal: 100,
		},
		{
			name:  "fixed capped at allow-listed subtotal",
			items: []LineItem{item("p1", 1000, 1), item("p2", 4000, 1)},
			metas: []Meta{func() Meta {
				m := fixed("BIG", 1500)
				m.ProductIDs = []string{"p1"}
				return m
			}()},
			codes:     []string{"BIG"},
			wantCodes: []string{"BIG"},
			wantTotal: 1000,
		},
		{
			name:      "two exclusive coupons keep the first submitted",
			items:     []LineItem{item("p1", 10000, 1)},
			metas:     []Meta{percent("A", "50"), percent("B", "10")},
			codes:     []string{"B", "A"},
			wantCodes: []string{"B"},
			wantTotal: 1000,
		},
		{
			name:      "same coupon twice counts once",
			items:     []LineItem{item("p1", 10000, 1)},
			metas:     []Meta{stackable(percent("TEN", "10"))},
			codes:     []string{"TEN", " ten ", "Ten"},
			wantCodes: []string{"TEN"},
			wantTotal: 1000,
		},
		{
			name:  "nsfw voucher excluded without policy",
			items: []LineItem{item("p1", 10000, 1)},
			metas: []Meta{func() Meta {
				m := fixed("SPICY", 9000)
				m.NSFWOnly = true
				return m
			}()},
			codes:     []string{"SPICY"},
			wantCodes: []string{},
			wantTotal: 0,
		},
		{
			name:  "nsfw voucher applied with policy",
			items: []LineItem{item("p1", 10000, 1)},
			metas: []Meta{func() Meta {
				m := fixed("SPICY", 9000)
				m.NSFWOnly = true
				return m
			}()},
			codes:     []string{"SPICY"},
			policy:    Policy{AllowNSFW: true},
			wantCodes: []string{"SPICY"},
			wantTotal: 9000,
		},
		{
			name:     "free shipping capped at fee",
			items:    []LineItem{item("p1", 10000, 1)},
			shipping: Shipping{Provider: "standard", Fee: 499},
			metas: []Meta{func() Meta {
				m := stackable(percent("SHIP", "0"))
				m.FreeShipping = true
				return m
			}()},
			codes:        []string{"SHIP"},
			wantCodes:    []string{"SHIP"},
			wantTotal:    499,
			wantShipping: 499,
		},
		{
			name:     "stacked coupons clamped at subtotal",
			items:    []LineItem{item("p1", 1000, 1)},
			shipping: Shipping{Provider: "standard", Fee: 500},
			metas: []Meta{
				stackable(fixed("A", 800)),
				stackable(fixed("B", 800)),
				func() Meta {
					m := stackable(percent("SHIP", "0"))
					m.FreeShipping = true
					return m
				}(),
			},
			codes:        []string{"A", "B", "SHIP"},
			wantCodes:    []string{"A", "B", "SHIP"},
			wantTotal:    1000,
			wantShipping: 0,
			wantClamped:  true,
		},
		{
			name:      "unknown code ignored",
			items:     []LineItem{item("p1", 1000, 1)},
			metas:     []Meta{percent("TEN", "10")},
			codes:     []string{"NOPE"},
			wantCodes: []string{},
			wantTotal: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeBreakdown(testNow, tt.items, tt.shipping, tt.metas, tt.codes, tt.policy)

			assert.Equal(t, tt.wantCodes, got.NormalizedCodes)
			assert.Equal(t, tt.wantTotal, got.DiscountTotal)
			assert.Equal(t, tt.wantShipping, got.ShippingDiscount)
			assert.Equal(t, tt.wantClamped, got.Clamped)

			assert.GreaterOrEqual(t, got.DiscountTotal, Cents(0))
			assert.LessOrEqual(t, got.DiscountTotal, got.Subtotal)
			assert.LessOrEqual(t, got.ShippingDiscount, tt.shipping.Fee)

			// Per-coupon amounts add up to the reported totals.
			assert.Equal(t, got.DiscountTotal, lo.SumBy(got.Contributions, func(c Contribution) Cents {
				return c.Items + c.Shipping
			}))
			assert.Equal(t, got.ShippingDiscount, lo.SumBy(got.Contributions, func(c Contribution) Cents {
				return c.Shipping
			}))
		})
	}
}

func TestComputeBreakdown_ClampedContributions(t *testing.T) {
	got := ComputeBreakdown(testNow,
		[]LineItem{item("p1", 1000, 1)},
		Shipping{},
		[]Meta{stackable(fixed("A", 1000)), stackable(fixed("B", 1000))},
		[]string{"A", "B"},
		Policy{},
	)

	require.True(t, got.Clamped)
	assert.Equal(t, Cents(1000), got.DiscountTotal)
	assert.Equal(t, []Contribution{{Code: "A", Items: 1000}, {Code: "B", Items: 0}}, got.Contributions)
}

func TestComputeBreakdown_Exclusions(t *testing.T) {
	nsfw := fixed("SPICY", 100)
	nsfw.NSFWOnly = true

	got := ComputeBreakdown(testNow,
		[]LineItem{item("p1", 1000, 1)},
		Shipping{},
		[]Meta{nsfw, percent("A", "10"), percent("B", "20")},
		[]string{"spicy", "A", "B", "missing"},
		Policy{},
	)

	require.Equal(t, []string{"A"}, got.NormalizedCodes)
	assert.ElementsMatch(t, []Exclusion{
		{Code: "SPICY", Reason: ReasonNSFWPolicy},
		{Code: "B", Reason: ReasonNotStackable},
		{Code: "MISSING", Reason: ReasonNotFound},
	}, got.Excluded)
}

func TestComputeBreakdown_Deterministic(t *testing.T) {
	items := []LineItem{item("p1", 1999, 3), item("p2", 4999, 1)}
	metas := []Meta{stackable(percent("A", "12.5")), fixed("B", 700)}
	codes := []string{"a", "b"}

	first := ComputeBreakdown(testNow, items, Shipping{}, metas, codes, Policy{})
	for range 10 {
		assert.Equal(t, first, ComputeBreakdown(testNow, items, Shipping{}, metas, codes, Policy{}))
	}
}
