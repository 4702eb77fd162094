package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/petalcraft/checkout/internal/domain/coupon"
)

const (
	findCouponsSQL = `SELECT c.id, c.code, c.discount_type, c.value, c.max_discount, c.active,
		c.starts_at, c.ends_at, c.max_redemptions, c.per_user_limit, c.min_subtotal,
		c.product_ids, c.excluded_product_ids, c.collection_ids, c.excluded_collection_ids,
		c.stackable, c.one_time, c.nsfw_only, c.free_shipping,
		c.shipping_type, c.shipping_value, c.shipping_provider,
		(SELECT COUNT(*) FROM coupon_redemptions r WHERE r.coupon_id = c.id),
		(SELECT COUNT(*) FROM coupon_redemptions r WHERE r.coupon_id = c.id AND r.user_id = $2)
		FROM coupons c WHERE c.code = ANY($1)`

	findGrantsSQL = `SELECT id, user_id, code, discount_type, value, stackable, nsfw_only,
		consumed_at IS NOT NULL, expires_at, created_at
		FROM grants WHERE user_id = $1 AND code = ANY($2)
		ORDER BY created_at`

	upsertCouponSQL = `INSERT INTO coupons (id, code, discount_type, value, max_discount, active,
		starts_at, ends_at, max_redemptions, per_user_limit, min_subtotal,
		product_ids, excluded_product_ids, collection_ids, excluded_collection_ids,
		stackable, one_time, nsfw_only, free_shipping,
		shipping_type, shipping_value, shipping_provider)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		ON CONFLICT (code) DO UPDATE SET
			discount_type = EXCLUDED.discount_type, value = EXCLUDED.value,
			max_discount = EXCLUDED.max_discount, active = EXCLUDED.active,
			starts_at = EXCLUDED.starts_at, ends_at = EXCLUDED.ends_at,
			max_redemptions = EXCLUDED.max_redemptions, per_user_limit = EXCLUDED.per_user_limit,
			min_subtotal = EXCLUDED.min_subtotal,
			product_ids = EXCLUDED.product_ids, excluded_product_ids = EXCLUDED.excluded_product_ids,
			collection_ids = EXCLUDED.collection_ids, excluded_collection_ids = EXCLUDED.excluded_collection_ids,
			stackable = EXCLUDED.stackable, one_time = EXCLUDED.one_time,
			nsfw_only = EXCLUDED.nsfw_only, free_shipping = EXCLUDED.free_shipping,
			shipping_type = EXCLUDED.shipping_type, shipping_value = EXCLUDED.shipping_value,
			shipping_provider = EXCLUDED.shipping_provider`

	// importVoucherSQL refreshes a voucher imported earlier under the same
	// stable id but never touches another coupon holding the code.
	importVoucherSQL = `INSERT INTO coupons (id, code, discount_type, value, max_discount, active,
		starts_at, ends_at, max_redemptions, per_user_limit, min_subtotal,
		product_ids, excluded_product_ids, collection_ids, excluded_collection_ids,
		stackable, one_time, nsfw_only, free_shipping,
		shipping_type, shipping_value, shipping_provider)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		ON CONFLICT (code) DO UPDATE SET
			discount_type = EXCLUDED.discount_type, value = EXCLUDED.value,
			active = EXCLUDED.active, ends_at = EXCLUDED.ends_at,
			nsfw_only = EXCLUDED.nsfw_only
		WHERE coupons.one_time AND coupons.id = EXCLUDED.id`

	insertGrantSQL = `INSERT INTO grants (id, user_id, code, discount_type, value, stackable, nsfw_only, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, code) DO NOTHING`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindSources returns the coupons matching codes, with their global and
// per-user redemption counts, followed by the user's grants matching codes.
// Consumed grants are included so the eligibility filter can report them.
func (r *CouponRepository) FindSources(ctx context.Context, userID string, codes []string) ([]coupon.Source, error) {
	if len(codes) == 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, findCouponsSQL, codes, userID)
	if err != nil {
		return nil, fmt.Errorf("finding coupons: %w", err)
	}
	coupons, err := pgx.CollectRows(rows, scanCoupon)
	if err != nil {
		return nil, fmt.Errorf("scanning coupons: %w", err)
	}

	srcs := make([]coupon.Source, 0, len(coupons))
	for _, c := range coupons {
		srcs = append(srcs, c)
	}

	if userID == "" {
		return srcs, nil
	}

	rows, err = r.pool.Query(ctx, findGrantsSQL, userID, codes)
	if err != nil {
		return nil, fmt.Errorf("finding grants: %w", err)
	}
	grants, err := pgx.CollectRows(rows, scanGrant)
	if err != nil {
		return nil, fmt.Errorf("scanning grants: %w", err)
	}
	for _, g := range grants {
		srcs = append(srcs, g)
	}

	return srcs, nil
}

// Upsert inserts or replaces the coupon with the same code. The code must be
// normalized by the caller.
func (r *CouponRepository) Upsert(ctx context.Context, c *coupon.Coupon) error {
	_, err := r.pool.Exec(ctx, upsertCouponSQL, couponArgs(c)...)
	if err != nil {
		return fmt.Errorf("upserting coupon %q: %w", c.Code, err)
	}
	return nil
}

// ImportVouchers writes one-time vouchers in a single round trip and returns
// how many were written. A voucher whose code already belongs to a different
// coupon is skipped; one imported before with the same id is refreshed.
func (r *CouponRepository) ImportVouchers(ctx context.Context, vouchers []*coupon.Coupon) (int, error) {
	batch := &pgx.Batch{}
	for _, v := range vouchers {
		batch.Queue(importVoucherSQL, couponArgs(v)...)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()

	written := 0
	for _, v := range vouchers {
		tag, err := br.Exec()
		if err != nil {
			return written, fmt.Errorf("importing voucher %q: %w", v.Code, err)
		}
		written += int(tag.RowsAffected())
	}
	if err := br.Close(); err != nil {
		return written, fmt.Errorf("importing %d vouchers: %w", len(vouchers), err)
	}
	return written, nil
}

// InsertGrant stores a grant for its user. A grant with the same code for
// the same user is left untouched.
func (r *CouponRepository) InsertGrant(ctx context.Context, g *coupon.Grant) error {
	_, err := r.pool.Exec(ctx, insertGrantSQL,
		g.ID, g.UserID, g.Code, string(g.Type), g.Value, g.Stackable, g.NSFWOnly, g.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("inserting grant %q: %w", g.Code, err)
	}
	return nil
}

func couponArgs(c *coupon.Coupon) []any {
	var (
		shipType  *string
		shipValue decimal.NullDecimal
		provider  string
	)
	if c.Shipping != nil {
		t := string(c.Shipping.Type)
		shipType = &t
		shipValue = decimal.NewNullDecimal(c.Shipping.Value)
		provider = c.Shipping.Provider
	}
	return []any{
		c.ID, c.Code, string(c.Type), c.Value, c.MaxDiscount, c.Active,
		c.StartsAt, c.EndsAt, c.MaxRedemptions, c.PerUserLimit, c.MinSubtotal,
		nonNil(c.ProductIDs), nonNil(c.ExcludedProductIDs),
		nonNil(c.CollectionIDs), nonNil(c.ExcludedCollectionIDs),
		c.Stackable, c.OneTime, c.NSFWOnly, c.FreeShipping,
		shipType, shipValue, provider,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func scanCoupon(row pgx.CollectableRow) (*coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		discountType string
		shipType     *string
		shipValue    decimal.NullDecimal
		shipProvider string
		redemptions  int64
		userRedeemed int64
	)
	err := row.Scan(
		&c.ID, &c.Code, &discountType, &c.Value, &c.MaxDiscount, &c.Active,
		&c.StartsAt, &c.EndsAt, &c.MaxRedemptions, &c.PerUserLimit, &c.MinSubtotal,
		&c.ProductIDs, &c.ExcludedProductIDs, &c.CollectionIDs, &c.ExcludedCollectionIDs,
		&c.Stackable, &c.OneTime, &c.NSFWOnly, &c.FreeShipping,
		&shipType, &shipValue, &shipProvider,
		&redemptions, &userRedeemed,
	)
	if err != nil {
		return nil, err
	}
	c.Type = coupon.DiscountType(discountType)
	c.Redemptions = int(redemptions)
	c.UserRedemptions = int(userRedeemed)
	if shipType != nil && shipValue.Valid {
		c.Shipping = &coupon.ShippingRule{
			Type:     coupon.DiscountType(*shipType),
			Value:    shipValue.Decimal,
			Provider: shipProvider,
		}
	}
	return &c, nil
}

func scanGrant(row pgx.CollectableRow) (*coupon.Grant, error) {
	var (
		g            coupon.Grant
		discountType string
		expiresAt    *time.Time
	)
	err := row.Scan(
		&g.ID, &g.UserID, &g.Code, &discountType, &g.Value, &g.Stackable, &g.NSFWOnly,
		&g.Consumed, &expiresAt, &g.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	g.Type = coupon.DiscountType(discountType)
	g.ExpiresAt = expiresAt
	return &g, nil
}
