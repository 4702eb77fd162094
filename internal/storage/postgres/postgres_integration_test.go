//go:build integration

package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/petalcraft/checkout/internal/domain/auth"
	"github.com/petalcraft/checkout/internal/domain/coupon"
	"github.com/petalcraft/checkout/internal/domain/order"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	ctr, err := testcontainers.Run(ctx, "postgres:17-alpine",
		testcontainers.WithExposedPorts("5432/tcp"),
		testcontainers.WithEnv(map[string]string{
			"POSTGRES_USER":     "petal",
			"POSTGRES_PASSWORD": "petal",
			"POSTGRES_DB":       "petal",
		}),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "start postgres: %v\n", err)
		return 1
	}
	defer func() { _ = testcontainers.TerminateContainer(ctr) }()

	host, err := ctr.Host(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "host: %v\n", err)
		return 1
	}
	port, err := ctr.MappedPort(ctx, "5432/tcp")
	if err != nil {
		fmt.Fprintf(os.Stderr, "mapped port: %v\n", err)
		return 1
	}

	dsn := fmt.Sprintf("postgres://petal:petal@%s:%s/petal?sslmode=disable", host, port.Port())
	testPool, err = NewPool(ctx, dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pool: %v\n", err)
		return 1
	}
	defer testPool.Close()

	if err := RunMigrations(ctx, testPool); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		return 1
	}
	if err := seed(ctx, testPool); err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		return 1
	}

	return m.Run()
}

func seed(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO products (id, sku, name, price, collections, nsfw) VALUES
			('p1', 'TOTE-1', 'Canvas Tote', 24.00, '{bags}', FALSE),
			('p2', 'ZINE-1', 'After Dark Zine', 12.50, '{zines}', TRUE);
		INSERT INTO api_keys (id, key_hash, name, user_id, age_verified) VALUES
			('k1', 'hash-1', 'test', 'u1', TRUE);
		INSERT INTO coupons (id, code, discount_type, value, max_redemptions, collection_ids,
			shipping_type, shipping_value, shipping_provider) VALUES
			('c1', 'BAGS10', 'PERCENT', 10, 1, '{bags}', 'FIXED', 2.00, 'standard');
		INSERT INTO grants (id, user_id, code, discount_type, value) VALUES
			('g1', 'u1', 'PETAL-ABC', 'FIXED', 5.00);
	`)
	return err
}

func TestProductRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewProductRepository(testPool)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "p1", all[0].ID)
	assert.Equal(t, []string{"bags"}, all[0].Collections)
	assert.True(t, decimal.RequireFromString("24").Equal(all[0].Price))
	assert.True(t, all[1].NSFW)

	got, err := repo.GetByIDs(ctx, []string{"p2", "missing"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ZINE-1", got[0].SKU)
}

func TestAPIKeyRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewAPIKeyRepository(testPool)

	info, err := repo.FindByHash(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, "u1", info.UserID)
	assert.True(t, info.AgeVerified)

	_, err = repo.FindByHash(ctx, "nope")
	require.ErrorIs(t, err, auth.ErrKeyNotFound)
}

func TestCouponRepository_FindSources(t *testing.T) {
	ctx := context.Background()
	repo := NewCouponRepository(testPool)

	srcs, err := repo.FindSources(ctx, "u1", []string{"BAGS10", "PETAL-ABC", "UNKNOWN"})
	require.NoError(t, err)
	require.Len(t, srcs, 2)

	c, ok := srcs[0].(*coupon.Coupon)
	require.True(t, ok)
	assert.Equal(t, "BAGS10", c.Code)
	assert.Equal(t, 1, c.MaxRedemptions)
	require.NotNil(t, c.Shipping)
	assert.Equal(t, "standard", c.Shipping.Provider)

	g, ok := srcs[1].(*coupon.Grant)
	require.True(t, ok)
	assert.Equal(t, "g1", g.ID)
	assert.False(t, g.Consumed)

	// Grants belong to their user only.
	srcs, err = repo.FindSources(ctx, "u2", []string{"PETAL-ABC"})
	require.NoError(t, err)
	assert.Empty(t, srcs)
}

func TestCouponRepository_Upsert(t *testing.T) {
	ctx := context.Background()
	repo := NewCouponRepository(testPool)

	for _, c := range []*coupon.Coupon{
		{ID: "v1", Code: "DROP-1", Type: coupon.DiscountFixed, Value: decimal.NewFromInt(3), Active: true, OneTime: true},
		{ID: "v2", Code: "DROP-2", Type: coupon.DiscountFixed, Value: decimal.NewFromInt(3), Active: true, OneTime: true},
	} {
		require.NoError(t, repo.Upsert(ctx, c))
	}

	err := repo.Upsert(ctx, &coupon.Coupon{ID: "v1", Code: "DROP-1", Type: coupon.DiscountFixed, Value: decimal.NewFromInt(4), Active: true, OneTime: true})
	require.NoError(t, err)

	srcs, err := repo.FindSources(ctx, "", []string{"DROP-1", "DROP-2"})
	require.NoError(t, err)
	require.Len(t, srcs, 2)
	for _, s := range srcs {
		c := s.(*coupon.Coupon)
		if c.Code == "DROP-1" {
			assert.True(t, decimal.NewFromInt(4).Equal(c.Value))
		}
	}
}

func TestCouponRepository_ImportVouchers(t *testing.T) {
	ctx := context.Background()
	repo := NewCouponRepository(testPool)

	voucher := func(id, code, value string) *coupon.Coupon {
		return &coupon.Coupon{
			ID: id, Code: code, Type: coupon.DiscountFixed, Value: decimal.RequireFromString(value),
			Active: true, OneTime: true, MaxRedemptions: 1, PerUserLimit: 1,
		}
	}

	n, err := repo.ImportVouchers(ctx, []*coupon.Coupon{
		voucher("iv1", "IMPORT-1", "5"),
		voucher("iv-bags", "BAGS10", "5"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Re-import refreshes the voucher in place.
	n, err = repo.ImportVouchers(ctx, []*coupon.Coupon{voucher("iv1", "IMPORT-1", "7")})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	srcs, err := repo.FindSources(ctx, "", []string{"IMPORT-1", "BAGS10"})
	require.NoError(t, err)
	require.Len(t, srcs, 2)
	for _, s := range srcs {
		c := s.(*coupon.Coupon)
		switch c.Code {
		case "IMPORT-1":
			assert.True(t, decimal.NewFromInt(7).Equal(c.Value))
		case "BAGS10":
			assert.Equal(t, "c1", c.ID)
			assert.False(t, c.OneTime, "admin coupon left untouched")
			assert.Equal(t, coupon.DiscountPercent, c.Type)
		}
	}
}

func newTestOrder(id string, applied ...order.AppliedCoupon) *order.Order {
	return &order.Order{
		ID:     id,
		UserID: "u1",
		Quote: order.Quote{
			Lines: []order.Line{{
				ProductID: "p1", Name: "Canvas Tote", Quantity: 1,
				UnitPrice: decimal.RequireFromString("24.00"), Discount: decimal.RequireFromString("2.40"),
			}},
			PaymentLines: []order.PaymentLine{{
				ProductID: "p1", Quantity: 1, UnitAmount: decimal.RequireFromString("21.60"),
			}},
			Subtotal:      decimal.RequireFromString("24.00"),
			DiscountTotal: decimal.RequireFromString("2.40"),
			Total:         decimal.RequireFromString("21.60"),
			CouponCodes:   []string{"BAGS10"},
			Applied:       applied,
		},
		CreatedAt: time.Now().UTC(),
	}
}

func TestOrderRepository_CreateRedeems(t *testing.T) {
	ctx := context.Background()
	orders := NewOrderRepository(testPool)
	coupons := NewCouponRepository(testPool)

	bags := order.AppliedCoupon{Kind: coupon.KindCoupon, ID: "c1", Code: "BAGS10"}
	grant := order.AppliedCoupon{Kind: coupon.KindGrant, ID: "g1", Code: "PETAL-ABC"}

	require.NoError(t, orders.Create(ctx, newTestOrder("o1", bags, grant)))

	var lines, payLines int
	require.NoError(t, testPool.QueryRow(ctx, `SELECT COUNT(*) FROM order_lines WHERE order_id = 'o1'`).Scan(&lines))
	require.NoError(t, testPool.QueryRow(ctx, `SELECT COUNT(*) FROM order_payment_lines WHERE order_id = 'o1'`).Scan(&payLines))
	assert.Equal(t, 1, lines)
	assert.Equal(t, 1, payLines)

	srcs, err := coupons.FindSources(ctx, "u1", []string{"BAGS10", "PETAL-ABC"})
	require.NoError(t, err)
	require.Len(t, srcs, 2)
	assert.Equal(t, 1, srcs[0].(*coupon.Coupon).Redemptions)
	assert.Equal(t, 1, srcs[0].(*coupon.Coupon).UserRedemptions)
	assert.True(t, srcs[1].(*coupon.Grant).Consumed)

	// Both are used up now; the second order rolls back entirely.
	err = orders.Create(ctx, newTestOrder("o2", bags))
	require.ErrorIs(t, err, order.ErrCouponUnavailable)

	err = orders.Create(ctx, newTestOrder("o3", grant))
	require.ErrorIs(t, err, order.ErrCouponUnavailable)

	var n int
	require.NoError(t, testPool.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE id IN ('o2', 'o3')`).Scan(&n))
	assert.Zero(t, n)
}
