package coupon

// PaymentLine is a line as a payment provider receives it: a quantity at a
// discounted unit amount.
type PaymentLine struct {
	Key        string
	Quantity   int
	UnitAmount Cents
}

// Total returns unit amount times quantity.
func (pl PaymentLine) Total() Cents {
	return pl.UnitAmount * Cents(pl.Quantity)
}

// Reconcile turns per-line allocations into per-unit payment amounts.
//
// A line's unit discount is floor(allocation / quantity), which can leave a
// few cents per line undiscounted. Those cents are taken back greedily from
// the first lines that can absorb them without going negative: whole-unit
// reductions first, then by splitting one unit off a line. The returned lines
// always sum to cartTotal - sum(allocations). drift is the number of cents
// corrected, zero when the unit division was exact.
//
// items and allocs must be in the same order, as Prorate returns them.
func Reconcile(items []LineItem, allocs []Allocation) (lines []PaymentLine, drift Cents) {
	lines = make([]PaymentLine, 0, len(items))
	var sum Cents
	for i, it := range items {
		var disc Cents
		if i < len(allocs) {
			disc = allocs[i].Discount
		}
		unit := it.UnitPrice
		if it.Quantity > 0 {
			unit = floorAtZero(it.UnitPrice - disc/Cents(it.Quantity))
		}
		pl := PaymentLine{Key: it.Key(), Quantity: it.Quantity, UnitAmount: unit}
		sum += pl.Total()
		lines = append(lines, pl)
	}

	target := floorAtZero(subtotal(items) - sumDiscount(allocs))
	drift = sum - target
	if drift <= 0 {
		return lines, 0
	}

	left := drift
	for i := range lines {
		q := Cents(lines[i].Quantity)
		if left == 0 {
			break
		}
		if q <= 0 {
			continue
		}
		k := minCents(left/q, lines[i].UnitAmount)
		lines[i].UnitAmount -= k
		left -= k * q
	}
	if left == 0 {
		return lines, drift
	}

	out := make([]PaymentLine, 0, len(lines)+1)
	for _, pl := range lines {
		if left == 0 || pl.UnitAmount == 0 || pl.Quantity <= 0 {
			out = append(out, pl)
			continue
		}
		r := minCents(left, pl.UnitAmount)
		left -= r
		if pl.Quantity == 1 {
			pl.UnitAmount -= r
			out = append(out, pl)
			continue
		}
		out = append(out,
			PaymentLine{Key: pl.Key, Quantity: pl.Quantity - 1, UnitAmount: pl.UnitAmount},
			PaymentLine{Key: pl.Key, Quantity: 1, UnitAmount: pl.UnitAmount - r},
		)
	}
	return out, drift - left
}
