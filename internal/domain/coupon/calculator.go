package coupon

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Contribution is what a single applied coupon takes off the order.
type Contribution struct {
	Code     string
	Items    Cents
	Shipping Cents
}

// Totals aggregates the contributions of all applied coupons. The item and
// shipping parts of Contributions always sum to Items and Shipping.
type Totals struct {
	Contributions []Contribution
	// Items is the non-shipping discount.
	Items Cents
	// Shipping is the shipping discount, never above the shipping fee.
	Shipping Cents
}

// Discount returns the aggregate discount including shipping.
func (t Totals) Discount() Cents {
	return t.Items + t.Shipping
}

// Calculate computes the contribution of every applied coupon. Item and
// shipping discounts are computed independently; each coupon's item part is
// rounded to a whole cent before it is summed.
func Calculate(applied []Meta, items []LineItem, shipping Shipping) Totals {
	var t Totals
	for _, m := range applied {
		c := Contribution{
			Code:     m.Code,
			Items:    itemContribution(m, items),
			Shipping: shippingContribution(m, shipping),
		}
		t.Contributions = append(t.Contributions, c)
		t.Items += c.Items
		t.Shipping += c.Shipping
	}
	if fee := floorAtZero(shipping.Fee); t.Shipping > fee {
		t.Shipping = fee
		t.Contributions = fitContributions(t.Contributions, t.Items, t.Shipping)
	}
	return t
}

// fitContributions trims contributions, in applied order, so their item parts
// sum to items and their shipping parts to shipping. Earlier coupons keep
// their amount; later ones absorb the cut.
func fitContributions(cs []Contribution, items, shipping Cents) []Contribution {
	out := make([]Contribution, len(cs))
	for i, c := range cs {
		c.Items = minCents(c.Items, items)
		c.Shipping = minCents(c.Shipping, shipping)
		items -= c.Items
		shipping -= c.Shipping
		out[i] = c
	}
	return out
}

func itemContribution(m Meta, items []LineItem) Cents {
	base := subtotal(m.eligibleItems(items))
	amount := amountOff(m.Type, m.Value, base)
	if m.MaxDiscount > 0 {
		amount = minCents(amount, m.MaxDiscount)
	}
	return amount
}

func shippingContribution(m Meta, shipping Shipping) Cents {
	fee := floorAtZero(shipping.Fee)
	switch {
	case fee == 0:
		return 0
	case m.FreeShipping:
		return fee
	case m.Shipping != nil:
		r := m.Shipping
		if r.Provider != "" && !strings.EqualFold(r.Provider, shipping.Provider) {
			return 0
		}
		return amountOff(r.Type, r.Value, fee)
	}
	return 0
}

// amountOff applies a percent or fixed discount to base, never returning
// more than base or less than zero.
func amountOff(t DiscountType, value decimal.Decimal, base Cents) Cents {
	if base <= 0 || !value.IsPositive() {
		return 0
	}
	switch t {
	case DiscountPercent:
		pct := decimal.Min(value, hundred)
		return floorAtZero(Cents(base.decimal().Mul(pct).Div(hundred).Round(0).IntPart()))
	case DiscountFixed:
		return minCents(Cents(value.Round(0).IntPart()), base)
	}
	return 0
}

// Clamp caps the aggregate discount at the order subtotal. The item discount
// keeps priority; the shipping discount is reduced to what room is left.
// clamped reports whether anything was cut, which callers treat as an
// upstream defect worth logging.
func Clamp(t Totals, sub Cents) (out Totals, clamped bool) {
	sub = floorAtZero(sub)
	if t.Discount() <= sub {
		return t, false
	}
	out = t
	out.Items = minCents(t.Items, sub)
	out.Shipping = minCents(t.Shipping, sub-out.Items)
	out.Contributions = fitContributions(t.Contributions, out.Items, out.Shipping)
	return out, true
}
