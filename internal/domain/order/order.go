package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/petalcraft/checkout/internal/domain/coupon"
)

// Order represents a placed customer order with pricing and discount details.
type Order struct {
	ID     string
	UserID string
	Quote
	CreatedAt time.Time
}

// Quote is the priced form of a cart. All amounts are in major units.
type Quote struct {
	Lines            []Line
	PaymentLines     []PaymentLine
	Subtotal         decimal.Decimal
	ShippingProvider string
	ShippingFee      decimal.Decimal
	ShippingDiscount decimal.Decimal
	DiscountTotal    decimal.Decimal
	Total            decimal.Decimal
	// CouponCodes are the normalized codes that were applied.
	CouponCodes []string
	Applied     []AppliedCoupon
}

// Line is one cart line with the share of the discount it carries.
type Line struct {
	ProductID string
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
	Discount  decimal.Decimal
}

// PaymentLine is what a payment provider charges for a line: Quantity units
// at UnitAmount. A cart line may be split into two payment lines.
type PaymentLine struct {
	ProductID  string
	Quantity   int
	UnitAmount decimal.Decimal
}

// AppliedCoupon identifies a redeemed coupon or grant.
type AppliedCoupon struct {
	Kind     coupon.Kind
	ID       string
	Code     string
	Discount decimal.Decimal
}

// Item is a requested cart line.
type Item struct {
	ProductID string
	Quantity  int
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create persists the order, its lines and the redemption of every
	// applied coupon atomically.
	Create(ctx context.Context, order *Order) error
}
