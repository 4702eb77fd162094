package coupon

import "github.com/samber/lo"

// Allocation is the part of the non-shipping discount carried by one line.
type Allocation struct {
	Key      string
	Total    Cents
	Discount Cents
}

// Prorate spreads discount over items proportionally to their totals. Every
// line but the last gets floor(discount * lineTotal / cartTotal); the last
// line gets whatever remains, so the shares always sum to discount exactly.
func Prorate(discount Cents, items []LineItem) []Allocation {
	if len(items) == 0 {
		return nil
	}
	cart := subtotal(items)
	last := len(items) - 1

	type acc struct {
		out   []Allocation
		given Cents
	}
	res := lo.Reduce(items, func(a acc, it LineItem, i int) acc {
		share := discount - a.given
		if i != last {
			share = floorShare(discount, it.Total(), cart)
		}
		return acc{
			out:   append(a.out, Allocation{Key: it.Key(), Total: it.Total(), Discount: share}),
			given: a.given + share,
		}
	}, acc{out: make([]Allocation, 0, len(items))})
	return res.out
}

func floorShare(discount, lineTotal, cart Cents) Cents {
	if cart <= 0 || discount <= 0 || lineTotal <= 0 {
		return 0
	}
	num := discount.decimal().Mul(lineTotal.decimal())
	q, _ := num.QuoRem(cart.decimal(), 0)
	return Cents(q.Floor().IntPart())
}

// sumDiscount returns the total discount carried by allocations.
func sumDiscount(allocs []Allocation) Cents {
	return lo.SumBy(allocs, func(a Allocation) Cents { return a.Discount })
}
