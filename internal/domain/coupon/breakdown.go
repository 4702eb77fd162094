package coupon

import (
	"slices"
	"time"

	"github.com/samber/lo"
)

// Breakdown is the result of one discount computation.
type Breakdown struct {
	// NormalizedCodes are the codes actually applied, in submission order.
	NormalizedCodes []string
	Subtotal        Cents
	// DiscountTotal includes ShippingDiscount and never exceeds Subtotal.
	DiscountTotal    Cents
	ShippingDiscount Cents
	// Clamped is set when the aggregate discount had to be cut to Subtotal.
	Clamped bool
	// Applied are the coupons behind NormalizedCodes, index-aligned with it
	// and with Contributions.
	Applied       []Meta
	Contributions []Contribution
	// Excluded lists submitted codes that were not applied and why.
	Excluded []Exclusion
}

// NonShipping returns the part of the discount spread over line items.
func (b Breakdown) NonShipping() Cents {
	return b.DiscountTotal - b.ShippingDiscount
}

// ComputeBreakdown runs the whole engine: filter, resolve, calculate, clamp.
// It is pure and deterministic for identical inputs.
func ComputeBreakdown(
	now time.Time,
	items []LineItem,
	shipping Shipping,
	metas []Meta,
	codesOrder []string,
	policy Policy,
) Breakdown {
	submitted := lo.Uniq(lo.Filter(lo.Map(codesOrder, func(c string, _ int) string {
		return NormalizeCode(c)
	}), func(c string, _ int) bool { return c != "" }))

	// Only records for submitted codes take part.
	candidates := lo.Filter(metas, func(m Meta, _ int) bool {
		return slices.Contains(submitted, m.Code)
	})

	eligible, excluded := Filter(now, candidates, items, policy)
	applied := Resolve(submitted, eligible)

	sub := subtotal(items)
	totals, clamped := Clamp(Calculate(applied, items, shipping), sub)

	codes := lo.Map(applied, func(m Meta, _ int) string { return m.Code })
	for _, c := range submitted {
		if slices.Contains(codes, c) {
			continue
		}
		switch {
		case lo.ContainsBy(excluded, func(e Exclusion) bool { return e.Code == c }):
		case lo.ContainsBy(eligible, func(m Meta) bool { return m.Code == c }):
			excluded = append(excluded, Exclusion{Code: c, Reason: ReasonNotStackable})
		default:
			excluded = append(excluded, Exclusion{Code: c, Reason: ReasonNotFound})
		}
	}
	_, shadowed := indexByCode(eligible)
	for _, m := range shadowed {
		excluded = append(excluded, Exclusion{Code: m.Code, Reason: ReasonShadowed})
	}

	return Breakdown{
		NormalizedCodes:  codes,
		Subtotal:         sub,
		DiscountTotal:    totals.Discount(),
		ShippingDiscount: totals.Shipping,
		Clamped:          clamped,
		Applied:          applied,
		Contributions:    totals.Contributions,
		Excluded:         excluded,
	}
}
