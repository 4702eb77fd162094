// Command voucher-import loads one-time voucher codes from gzip files.
//
// Codes are one per line. A code occurring more than once, in one file or
// across files, cannot be a one-time voucher and is skipped.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/petalcraft/checkout/internal/domain/coupon"
	"github.com/petalcraft/checkout/internal/storage/postgres"
)

// voucherNamespace derives stable coupon IDs from codes so re-imports update
// rows in place.
var voucherNamespace = uuid.MustParse("6f1c7a52-6c1e-4a8e-9d8b-4d7f3f0c2e11")

type options struct {
	databaseURL string
	discount    coupon.DiscountType
	value       decimal.Decimal
	endsAt      *time.Time
	nsfwOnly    bool
	expected    uint
	fpr         float64
	batchSize   int
	files       []string
}

func main() {
	var (
		opts                options
		discountType, value string
		endsAt              string
	)

	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&discountType, "type", string(coupon.DiscountFixed), "discount type: FIXED or PERCENT")
	flag.StringVar(&value, "value", "5", "discount value: amount for FIXED, percentage points for PERCENT")
	flag.StringVar(&endsAt, "ends-at", "", "optional expiry, RFC 3339")
	flag.BoolVar(&opts.nsfwOnly, "nsfw-only", false, "restrict vouchers to age-verified customers")
	flag.UintVar(&opts.expected, "expected-codes", 10_000_000, "expected codes per file, sizes the bloom filters")
	flag.Float64Var(&opts.fpr, "false-positive-rate", 0.001, "bloom filter false positive rate")
	flag.IntVar(&opts.batchSize, "batch-size", 1000, "coupons per database batch")
	flag.Parse()
	opts.files = flag.Args()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if err := opts.parse(discountType, value, endsAt); err != nil {
		slog.Error("invalid arguments", slog.String("error", err.Error()))
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("voucher import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("voucher import completed successfully")
}

func (o *options) parse(discountType, value, endsAt string) error {
	if o.databaseURL == "" {
		return errors.New("database URL is required: set --database-url or DATABASE_URL")
	}
	if len(o.files) == 0 {
		return errors.New("at least one gzip file is required")
	}
	switch t := coupon.DiscountType(discountType); t {
	case coupon.DiscountFixed, coupon.DiscountPercent:
		o.discount = t
	default:
		return errors.Errorf("unknown discount type %q", discountType)
	}
	v, err := decimal.NewFromString(value)
	if err != nil {
		return errors.Wrap(err, "parse value")
	}
	if !v.IsPositive() {
		return errors.New("value must be positive")
	}
	o.value = v
	if endsAt != "" {
		ts, err := time.Parse(time.RFC3339, endsAt)
		if err != nil {
			return errors.Wrap(err, "parse ends-at")
		}
		o.endsAt = &ts
	}
	if o.batchSize <= 0 {
		o.batchSize = 1000
	}
	return nil
}

func run(ctx context.Context, opts options) error {
	slog.Info("finding repeated codes", slog.Int("files", len(opts.files)))

	collisions, err := findCollisions(ctx, opts.files, opts.expected, opts.fpr)
	if err != nil {
		return errors.Wrap(err, "find collisions")
	}
	slog.Info("repeated codes skipped", slog.Int("count", len(collisions)))

	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	res, err := writeVouchers(ctx, opts, collisions, postgres.NewCouponRepository(pool).ImportVouchers)
	if err != nil {
		return errors.Wrap(err, "write vouchers")
	}
	slog.Info("vouchers written",
		slog.Int("count", res.written),
		slog.Int("skipped_existing", res.skipped),
	)
	return nil
}

type writeResult struct {
	written int
	// skipped counts codes already held by another coupon.
	skipped int
}

// writeVouchers streams the files again and imports every code that is not
// a collision, batchSize at a time. importBatch reports how many vouchers of
// a batch it actually wrote.
func writeVouchers(
	ctx context.Context,
	opts options,
	collisions map[string]int,
	importBatch func(context.Context, []*coupon.Coupon) (int, error),
) (writeResult, error) {
	var (
		batch = make([]*coupon.Coupon, 0, opts.batchSize)
		res   writeResult
		werr  error
	)
	flush := func() {
		if len(batch) == 0 || werr != nil {
			return
		}
		var n int
		n, werr = importBatch(ctx, batch)
		res.written += n
		if werr == nil {
			res.skipped += len(batch) - n
			batch = batch[:0]
		}
	}

	for _, path := range opts.files {
		err := streamCodes(ctx, path, func(code string) {
			if _, dup := collisions[code]; dup || werr != nil {
				return
			}
			batch = append(batch, opts.voucher(code))
			if len(batch) == opts.batchSize {
				flush()
			}
		})
		if err != nil {
			return res, err
		}
		if werr != nil {
			return res, werr
		}
	}
	flush()
	return res, werr
}

func (o options) voucher(code string) *coupon.Coupon {
	return &coupon.Coupon{
		ID:             uuid.NewSHA1(voucherNamespace, []byte(code)).String(),
		Code:           code,
		Type:           o.discount,
		Value:          o.value,
		Active:         true,
		EndsAt:         o.endsAt,
		MaxRedemptions: 1,
		PerUserLimit:   1,
		OneTime:        true,
		NSFWOnly:       o.nsfwOnly,
	}
}
