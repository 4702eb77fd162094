package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/petalcraft/checkout/internal/domain/coupon"
	"github.com/petalcraft/checkout/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders (id, user_id, subtotal, shipping_provider, shipping_fee,
		shipping_discount, discount_total, total, coupon_codes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	lockCouponSQL = `SELECT id FROM coupons WHERE id = $1 FOR UPDATE`

	// Inserts nothing when either limit is already reached.
	redeemCouponSQL = `INSERT INTO coupon_redemptions (coupon_id, user_id, order_id)
		SELECT c.id, $2, $3 FROM coupons c
		WHERE c.id = $1
			AND (c.max_redemptions = 0 OR
				(SELECT COUNT(*) FROM coupon_redemptions r WHERE r.coupon_id = c.id) < c.max_redemptions)
			AND (c.per_user_limit = 0 OR
				(SELECT COUNT(*) FROM coupon_redemptions r WHERE r.coupon_id = c.id AND r.user_id = $2) < c.per_user_limit)`

	consumeGrantSQL = `UPDATE grants SET consumed_at = NOW(), order_id = $3
		WHERE id = $1 AND user_id = $2 AND consumed_at IS NULL`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists the order with its lines and payment lines and redeems
// every applied coupon in one transaction. It returns
// order.ErrCouponUnavailable when a coupon was used up in the meantime.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, createOrderSQL,
			o.ID, o.UserID, o.Subtotal, o.ShippingProvider, o.ShippingFee,
			o.ShippingDiscount, o.DiscountTotal, o.Total, nonNil(o.CouponCodes), o.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting order: %w", err)
		}

		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"order_lines"},
			[]string{"order_id", "position", "product_id", "name", "quantity", "unit_price", "discount"},
			pgx.CopyFromSlice(len(o.Lines), func(i int) ([]any, error) {
				l := o.Lines[i]
				return []any{o.ID, i, l.ProductID, l.Name, l.Quantity, l.UnitPrice, l.Discount}, nil
			}),
		); err != nil {
			return fmt.Errorf("copying order lines: %w", err)
		}

		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"order_payment_lines"},
			[]string{"order_id", "position", "product_id", "quantity", "unit_amount"},
			pgx.CopyFromSlice(len(o.PaymentLines), func(i int) ([]any, error) {
				l := o.PaymentLines[i]
				return []any{o.ID, i, l.ProductID, l.Quantity, l.UnitAmount}, nil
			}),
		); err != nil {
			return fmt.Errorf("copying payment lines: %w", err)
		}

		for _, a := range o.Applied {
			if err := redeem(ctx, tx, o, a); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

func redeem(ctx context.Context, tx pgx.Tx, o *order.Order, a order.AppliedCoupon) error {
	switch a.Kind {
	case coupon.KindGrant:
		tag, err := tx.Exec(ctx, consumeGrantSQL, a.ID, o.UserID, o.ID)
		if err != nil {
			return fmt.Errorf("consuming grant %q: %w", a.Code, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("grant %q: %w", a.Code, order.ErrCouponUnavailable)
		}
	default:
		if _, err := tx.Exec(ctx, lockCouponSQL, a.ID); err != nil {
			return fmt.Errorf("locking coupon %q: %w", a.Code, err)
		}
		tag, err := tx.Exec(ctx, redeemCouponSQL, a.ID, o.UserID, o.ID)
		if err != nil {
			return fmt.Errorf("redeeming coupon %q: %w", a.Code, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("coupon %q: %w", a.Code, order.ErrCouponUnavailable)
		}
	}
	return nil
}
