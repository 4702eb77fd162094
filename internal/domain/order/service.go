package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/petalcraft/checkout/internal/domain/auth"
	"github.com/petalcraft/checkout/internal/domain/coupon"
	"github.com/petalcraft/checkout/internal/domain/product"
	"github.com/petalcraft/checkout/internal/domain/shipping"
)

// MaxQuantity is the largest quantity accepted for a single line.
const MaxQuantity = 10_000

// maxSubtotal bounds the cart subtotal in major units, far below the range
// of int64 cents.
var maxSubtotal = decimal.New(1, 12)

// Sentinel errors for order validation.
var (
	ErrEmptyItems              = errors.New("items required")
	ErrUnknownShippingProvider = shipping.ErrUnknownProvider
	ErrOrderTooLarge           = errors.New("order amount too large")
	// ErrCouponUnavailable is returned by a Repository when an applied coupon
	// was used up by a concurrent order.
	ErrCouponUnavailable = errors.New("coupon no longer available")
)

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InvalidQuantityError indicates a line item quantity outside
// [1, MaxQuantity].
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be between 1 and %d for product %s", MaxQuantity, e.ProductID)
}

// FeeTable resolves the shipping fee of a provider.
type FeeTable interface {
	Fee(provider string) (decimal.Decimal, error)
}

// Request holds the input for quoting or placing an order.
type Request struct {
	Principal        auth.Principal
	Items            []Item
	CouponCodes      []string
	ShippingProvider string
}

// Service prices carts with the coupon engine and places orders.
type Service struct {
	products product.Repository
	coupons  coupon.Lookup
	orders   Repository
	fees     FeeTable
	now      func() time.Time

	tracer   trace.Tracer
	clamped  metric.Int64Counter
	excluded metric.Int64Counter
	drift    metric.Int64Counter
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	products product.Repository,
	coupons coupon.Lookup,
	orders Repository,
	fees FeeTable,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
) (*Service, error) {
	meter := mp.Meter("petal/checkout/order")

	clamped, err := meter.Int64Counter("checkout.discount.clamped",
		metric.WithDescription("Orders whose aggregate discount was cut to the subtotal"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "clamped counter")
	}
	excluded, err := meter.Int64Counter("checkout.coupon.excluded",
		metric.WithDescription("Submitted coupon codes that were not applied"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "excluded counter")
	}
	drift, err := meter.Int64Counter("checkout.payment.drift_cents",
		metric.WithDescription("Cents corrected when deriving per-unit payment amounts"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "drift counter")
	}

	return &Service{
		products: products,
		coupons:  coupons,
		orders:   orders,
		fees:     fees,
		now:      time.Now,
		tracer:   tp.Tracer("petal/checkout/order"),
		clamped:  clamped,
		excluded: excluded,
		drift:    drift,
	}, nil
}

// Quote validates the request, prices every line, applies the submitted
// coupon codes and derives the payment lines. Nothing is persisted.
func (s *Service) Quote(ctx context.Context, req Request) (*Quote, error) {
	ctx, span := s.tracer.Start(ctx, "order.Quote",
		trace.WithAttributes(
			attribute.Int("order.items", len(req.Items)),
			attribute.Int("order.coupon_codes", len(req.CouponCodes)),
		),
	)
	defer span.End()

	q, err := s.quote(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.StringSlice("order.applied_codes", q.CouponCodes))
	return q, nil
}

func (s *Service) quote(ctx context.Context, req Request) (*Quote, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	for _, item := range req.Items {
		if item.Quantity <= 0 || item.Quantity > MaxQuantity {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
	}

	products, err := s.fetchProducts(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	if err := checkSubtotal(req.Items, products); err != nil {
		return nil, err
	}

	fee, err := s.fees.Fee(req.ShippingProvider)
	if err != nil {
		return nil, errors.Wrap(err, "shipping fee")
	}

	metas, err := s.coupons.Lookup(ctx, req.Principal.UserID, req.CouponCodes)
	if err != nil {
		return nil, errors.Wrap(err, "lookup coupons")
	}

	items := make([]coupon.LineItem, len(req.Items))
	for i, item := range req.Items {
		p := products[i]
		items[i] = coupon.LineItem{
			ProductID:   p.ID,
			SKU:         p.SKU,
			Name:        p.Name,
			Collections: p.Collections,
			Quantity:    item.Quantity,
			UnitPrice:   coupon.ToCents(p.Price),
		}
	}
	ship := coupon.Shipping{Provider: req.ShippingProvider, Fee: coupon.ToCents(fee)}

	b := coupon.ComputeBreakdown(s.now(), items, ship, metas, req.CouponCodes,
		coupon.Policy{AllowNSFW: req.Principal.AgeVerified})
	s.observe(ctx, req, b)

	allocs := coupon.Prorate(b.NonShipping(), items)
	payLines, drift := coupon.Reconcile(items, allocs)
	if drift > 0 {
		s.drift.Add(ctx, int64(drift))
		zctx.From(ctx).Debug("Reconciled payment line drift",
			zap.Int64("drift_cents", int64(drift)),
			zap.Int("payment_lines", len(payLines)),
		)
	}

	q := &Quote{
		Subtotal:         b.Subtotal.Decimal(),
		ShippingProvider: req.ShippingProvider,
		ShippingFee:      ship.Fee.Decimal(),
		ShippingDiscount: b.ShippingDiscount.Decimal(),
		DiscountTotal:    b.DiscountTotal.Decimal(),
		Total:            (b.Subtotal + ship.Fee - b.DiscountTotal).Decimal(),
		CouponCodes:      b.NormalizedCodes,
	}
	for i, item := range items {
		q.Lines = append(q.Lines, Line{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.Decimal(),
			Discount:  allocs[i].Discount.Decimal(),
		})
	}
	for _, pl := range payLines {
		q.PaymentLines = append(q.PaymentLines, PaymentLine{
			ProductID:  pl.Key,
			Quantity:   pl.Quantity,
			UnitAmount: pl.UnitAmount.Decimal(),
		})
	}
	q.Applied = appliedCoupons(b)

	return q, nil
}

// PlaceOrder quotes the request and persists the resulting order together
// with the redemption of every applied coupon.
func (s *Service) PlaceOrder(ctx context.Context, req Request) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder")
	defer span.End()

	q, err := s.quote(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	o := &Order{
		ID:        uuid.New().String(),
		UserID:    req.Principal.UserID,
		Quote:     *q,
		CreatedAt: s.now().UTC(),
	}
	if err := s.orders.Create(ctx, o); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, errors.Wrap(err, "create order")
	}

	span.SetAttributes(attribute.String("order.id", o.ID))
	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", o.ID),
		zap.String("user_id", o.UserID),
		zap.Stringer("total", o.Total),
		zap.Strings("coupon_codes", o.CouponCodes),
	)
	return o, nil
}

// fetchProducts loads every requested product in one batch and returns them
// in request order.
func (s *Service) fetchProducts(ctx context.Context, items []Item) ([]product.Product, error) {
	ids := lo.Uniq(lo.Map(items, func(it Item, _ int) string { return it.ProductID }))

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := lo.KeyBy(fetched, func(p product.Product) string { return p.ID })

	out := make([]product.Product, 0, len(items))
	for _, item := range items {
		p, ok := byID[item.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: item.ProductID}
		}
		out = append(out, p)
	}
	return out, nil
}

// checkSubtotal keeps the cart inside the range the cents engine can add up.
func checkSubtotal(items []Item, products []product.Product) error {
	sum := decimal.Zero
	for i, item := range items {
		if products[i].Price.IsNegative() {
			return errors.Errorf("product %s has a negative price", products[i].ID)
		}
		sum = sum.Add(products[i].Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	if sum.GreaterThan(maxSubtotal) {
		return ErrOrderTooLarge
	}
	return nil
}

// observe reports exclusions and clamping. Neither fails the checkout.
func (s *Service) observe(ctx context.Context, req Request, b coupon.Breakdown) {
	lg := zctx.From(ctx)
	for _, e := range b.Excluded {
		s.excluded.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(e.Reason))))
		if e.Reason == coupon.ReasonNSFWPolicy {
			lg.Info("Coupon excluded by content policy",
				zap.String("code", e.Code),
				zap.String("user_id", req.Principal.UserID),
			)
			continue
		}
		lg.Debug("Coupon not applied", zap.String("code", e.Code), zap.String("reason", string(e.Reason)))
	}
	if b.Clamped {
		s.clamped.Add(ctx, 1)
		lg.Warn("Discount exceeded subtotal, clamped",
			zap.Strings("coupon_codes", b.NormalizedCodes),
			zap.Int64("subtotal_cents", int64(b.Subtotal)),
			zap.Int64("discount_cents", int64(b.DiscountTotal)),
		)
	}
}

func appliedCoupons(b coupon.Breakdown) []AppliedCoupon {
	return lo.Map(b.Applied, func(m coupon.Meta, i int) AppliedCoupon {
		c := b.Contributions[i]
		return AppliedCoupon{
			Kind:     m.Kind,
			ID:       m.ID,
			Code:     m.Code,
			Discount: (c.Items + c.Shipping).Decimal(),
		}
	})
}
