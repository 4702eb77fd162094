package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Source is a stored discount record: either *Coupon or *Grant.
type Source interface {
	sourceKind() Kind
}

// Coupon is an admin-defined, possibly multi-use discount code.
type Coupon struct {
	ID          string
	Code        string
	Type        DiscountType
	Value       decimal.Decimal
	MaxDiscount decimal.Decimal
	Active      bool
	StartsAt    *time.Time
	EndsAt      *time.Time

	MaxRedemptions  int
	Redemptions     int
	PerUserLimit    int
	UserRedemptions int

	MinSubtotal decimal.Decimal

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

func (*Coupon) sourceKind() Kind { return KindCoupon }

// Grant is a single-use discount credit owned by one user, for example one
// bought with in-app currency.
type Grant struct {
	ID        string
	UserID    string
	Code      string
	Type      DiscountType
	Value     decimal.Decimal
	Stackable bool
	NSFWOnly  bool
	Consumed  bool
	ExpiresAt *time.Time
	CreatedAt time.Time
}

func (*Grant) sourceKind() Kind { return KindGrant }

// Repository loads the discount records a requester submitted.
type Repository interface {
	// FindSources returns coupons matching codes and the user's grants
	// matching codes. Codes are already normalized. Unknown codes are
	// simply absent from the result.
	FindSources(ctx context.Context, userID string, codes []string) ([]Source, error)
}

// FromSource maps a stored record to the engine's Meta.
//
// Money fields on sources are in major units; FIXED values become cents.
func FromSource(src Source) (Meta, error) {
	switch s := src.(type) {
	case *Coupon:
		return Meta{
			ID:                    s.ID,
			Code:                  NormalizeCode(s.Code),
			Kind:                  KindCoupon,
			Type:                  s.Type,
			Value:                 amountValue(s.Type, s.Value),
			MaxDiscount:           ToCents(s.MaxDiscount),
			Enabled:               s.Active,
			StartsAt:              s.StartsAt,
			EndsAt:                s.EndsAt,
			MaxRedemptions:        s.MaxRedemptions,
			Redemptions:           s.Redemptions,
			PerUserLimit:          s.PerUserLimit,
			UserRedemptions:       s.UserRedemptions,
			MinSubtotal:           ToCents(s.MinSubtotal),
			ProductIDs:            s.ProductIDs,
			ExcludedProductIDs:    s.ExcludedProductIDs,
			CollectionIDs:         s.CollectionIDs,
			ExcludedCollectionIDs: s.ExcludedCollectionIDs,
			Stackable:             s.Stackable,
			OneTime:               s.OneTime,
			NSFWOnly:              s.NSFWOnly,
			FreeShipping:          s.FreeShipping,
			Shipping:              shippingRule(s.Shipping),
		}, nil
	case *Grant:
		used := 0
		if s.Consumed {
			used = 1
		}
		return Meta{
			ID:              s.ID,
			Code:            NormalizeCode(s.Code),
			Kind:            KindGrant,
			Type:            s.Type,
			Value:           amountValue(s.Type, s.Value),
			Enabled:         true,
			EndsAt:          s.ExpiresAt,
			PerUserLimit:    1,
			UserRedemptions: used,
			Stackable:       s.Stackable,
			OneTime:         true,
			NSFWOnly:        s.NSFWOnly,
		}, nil
	case nil:
		return Meta{}, errors.New("nil coupon source")
	default:
		return Meta{}, errors.Errorf("unsupported coupon source %T", src)
	}
}

// FromSources maps every source, failing on the first unsupported one.
func FromSources(srcs []Source) ([]Meta, error) {
	metas := make([]Meta, 0, len(srcs))
	for _, src := range srcs {
		m, err := FromSource(src)
		if err != nil {
			return nil, err
		}
		metas = append(metas, m)
	}
	return metas, nil
}

func amountValue(t DiscountType, v decimal.Decimal) decimal.Decimal {
	if t == DiscountFixed {
		return ToCents(v).decimal()
	}
	return v
}

func shippingRule(r *ShippingRule) *ShippingRule {
	if r == nil {
		return nil
	}
	out := *r
	out.Value = amountValue(r.Type, r.Value)
	return &out
}
