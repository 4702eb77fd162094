package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/petalcraft/checkout/internal/domain/auth"
	"github.com/petalcraft/checkout/internal/domain/coupon"
	"github.com/petalcraft/checkout/internal/domain/product"
	"github.com/petalcraft/checkout/internal/handler"
	"github.com/petalcraft/checkout/internal/storage/postgres"
)

const demoUserID = "demo-user"

type productJSON struct {
	ID          string          `json:"id"`
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Collections []string        `json:"collections"`
	NSFW        bool            `json:"nsfw"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKey       string
		apiKeyPepper string
		ageVerified  bool
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or PETAL_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or PETAL_API_KEY_PEPPER env)")
	flag.BoolVar(&ageVerified, "age-verified", true, "mark the demo user as age verified")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("PETAL_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or PETAL_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("PETAL_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	key := auth.APIKeyInfo{
		ID:          "demo",
		KeyHash:     handler.HashKey([]byte(apiKeyPepper), apiKey),
		UserID:      demoUserID,
		AgeVerified: ageVerified,
	}
	if err := run(ctx, databaseURL, productsFile, key); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile string, key auth.APIKeyInfo) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, postgres.NewProductRepository(pool), productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedCoupons(ctx, pool); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	slog.Info("seeding demo API key")
	if err := postgres.NewAPIKeyRepository(pool).Upsert(ctx, key, "Demo key"); err != nil {
		return errors.Wrap(err, "upsert demo API key")
	}
	slog.Info("upserted API key",
		slog.String("id", key.ID),
		slog.String("user_id", key.UserID),
		slog.Bool("age_verified", key.AgeVerified),
	)

	return nil
}

func seedProducts(ctx context.Context, repo *postgres.ProductRepository, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		if err := repo.Upsert(ctx, product.Product{
			ID:          p.ID,
			SKU:         p.SKU,
			Name:        p.Name,
			Price:       p.Price,
			Collections: p.Collections,
			NSFW:        p.NSFW,
		}); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

// demoCoupons covers each stacking mode: stackable, exclusive, collection
// restricted, shipping and age gated.
func demoCoupons(now time.Time) []*coupon.Coupon {
	springEnds := now.AddDate(0, 3, 0)
	return []*coupon.Coupon{
		{
			ID:           "cpn-welcome10",
			Code:         "WELCOME10",
			Type:         coupon.DiscountPercent,
			Value:        decimal.NewFromInt(10),
			Active:       true,
			Stackable:    true,
			PerUserLimit: 1,
		},
		{
			ID:            "cpn-spring",
			Code:          "SPRING25",
			Type:          coupon.DiscountPercent,
			Value:         decimal.NewFromInt(25),
			MaxDiscount:   decimal.NewFromInt(30),
			Active:        true,
			EndsAt:        &springEnds,
			CollectionIDs: []string{"spring"},
		},
		{
			ID:          "cpn-fiver",
			Code:        "FIVEOFF",
			Type:        coupon.DiscountFixed,
			Value:       decimal.NewFromInt(5),
			Active:      true,
			MinSubtotal: decimal.NewFromInt(30),
		},
		{
			ID:           "cpn-shipfree",
			Code:         "SHIPFREE",
			Type:         coupon.DiscountFixed,
			Value:        decimal.Zero,
			Active:       true,
			Stackable:    true,
			FreeShipping: true,
			MinSubtotal:  decimal.NewFromInt(40),
		},
		{
			ID:        "cpn-express",
			Code:      "EXPRESSHALF",
			Type:      coupon.DiscountFixed,
			Value:     decimal.Zero,
			Active:    true,
			Stackable: true,
			Shipping:  &coupon.ShippingRule{Type: coupon.DiscountPercent, Value: decimal.NewFromInt(50), Provider: "express"},
		},
		{
			ID:            "cpn-afterdark",
			Code:          "AFTERDARK",
			Type:          coupon.DiscountPercent,
			Value:         decimal.NewFromInt(20),
			Active:        true,
			NSFWOnly:      true,
			CollectionIDs: []string{"after-dark"},
		},
	}
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding demo coupons")

	repo := postgres.NewCouponRepository(pool)
	for _, c := range demoCoupons(time.Now().UTC()) {
		if err := repo.Upsert(ctx, c); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.Code)
		}
		slog.Info("upserted coupon", slog.String("code", c.Code), slog.Bool("stackable", c.Stackable))
	}

	grant := &coupon.Grant{
		ID:     "grant-demo-petals",
		UserID: demoUserID,
		Code:   "PETALS-DEMO",
		Type:   coupon.DiscountFixed,
		Value:  decimal.NewFromInt(3),
	}
	if err := repo.InsertGrant(ctx, grant); err != nil {
		return errors.Wrap(err, "insert demo grant")
	}
	slog.Info("inserted grant", slog.String("code", grant.Code), slog.String("user_id", grant.UserID))

	return nil
}
