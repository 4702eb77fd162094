package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID          string
	SKU         string
	Name        string
	Price       decimal.Decimal
	Collections []string
	NSFW        bool
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}

// Visible returns the products a requester may see. NSFW products are
// hidden unless allowNSFW is set.
func Visible(products []Product, allowNSFW bool) []Product {
	if allowNSFW {
		return products
	}
	return lo.Filter(products, func(p Product, _ int) bool { return !p.NSFW })
}
