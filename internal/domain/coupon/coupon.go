package coupon

import (
	"time"

	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercent takes a percentage off the eligible subtotal.
	DiscountPercent DiscountType = "PERCENT"
	// DiscountFixed takes a fixed amount of cents off the eligible subtotal.
	DiscountFixed DiscountType = "FIXED"
)

// Kind tells which record a Meta was built from.
type Kind string

const (
	KindCoupon Kind = "coupon"
	KindGrant  Kind = "grant"
)

// ShippingRule is a discount that applies to the shipping fee only.
type ShippingRule struct {
	Type DiscountType
	// Value is percentage points for DiscountPercent and cents for DiscountFixed.
	Value decimal.Decimal
	// Provider restricts the rule to one shipping provider. Empty matches any.
	Provider string
}

// Meta is the discount-eligibility record the engine works with. It is
// immutable for the duration of one computation.
type Meta struct {
	ID   string
	Code string
	Kind Kind

	Type DiscountType
	// Value is percentage points for DiscountPercent and cents for DiscountFixed.
	Value decimal.Decimal
	// MaxDiscount caps the item contribution of this coupon. Zero means no cap.
	MaxDiscount Cents

	Enabled  bool
	StartsAt *time.Time
	EndsAt   *time.Time

	// MaxRedemptions is the global cap, PerUserLimit the per-requester cap.
	// Zero means unlimited.
	MaxRedemptions  int
	Redemptions     int
	PerUserLimit    int
	UserRedemptions int

	MinSubtotal Cents

	ProductIDs            []string
	ExcludedProductIDs    []string
	CollectionIDs         []string
	ExcludedCollectionIDs []string

	Stackable bool
	OneTime   bool
	NSFWOnly  bool

	FreeShipping bool
	Shipping     *ShippingRule
}

// restricted reports whether the coupon narrows the set of line items it
// applies to.
func (m Meta) restricted() bool {
	return len(m.ProductIDs) > 0 || len(m.CollectionIDs) > 0 ||
		len(m.ExcludedProductIDs) > 0 || len(m.ExcludedCollectionIDs) > 0
}

// hasShipping reports whether the coupon discounts shipping.
func (m Meta) hasShipping() bool {
	return m.FreeShipping || m.Shipping != nil
}

// LineItem is a cart line as seen by the engine.
type LineItem struct {
	ProductID   string
	SKU         string
	VariantID   string
	Name        string
	Collections []string
	Quantity    int
	UnitPrice   Cents
}

// Key returns the line identity: product id, then sku, then variant, then name.
func (li LineItem) Key() string {
	switch {
	case li.ProductID != "":
		return li.ProductID
	case li.SKU != "":
		return li.SKU
	case li.VariantID != "":
		return li.VariantID
	default:
		return li.Name
	}
}

// Total returns unit price times quantity.
func (li LineItem) Total() Cents {
	return li.UnitPrice * Cents(li.Quantity)
}

// Shipping is the shipping context of an order.
type Shipping struct {
	Provider string
	Fee      Cents
}

// Policy carries requester-derived switches.
type Policy struct {
	// AllowNSFW is true when the requester passed age verification.
	AllowNSFW bool
}

func subtotal(items []LineItem) Cents {
	var sum Cents
	for _, it := range items {
		sum += it.Total()
	}
	return sum
}
