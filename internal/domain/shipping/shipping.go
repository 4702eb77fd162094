// Package shipping resolves shipping fees for checkout.
package shipping

import (
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// ErrUnknownProvider is returned for a provider missing from the rate table.
var ErrUnknownProvider = errors.New("unknown shipping provider")

// Rates is a static provider to fee table. Provider names are case-insensitive.
type Rates struct {
	fees map[string]decimal.Decimal
}

// ParseRates parses entries of the form "provider=fee", e.g. "standard=4.99".
func ParseRates(entries []string) (*Rates, error) {
	r := &Rates{fees: make(map[string]decimal.Decimal, len(entries))}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		name, fee, ok := strings.Cut(e, "=")
		if !ok {
			return nil, errors.Errorf("shipping rate %q: want provider=fee", e)
		}
		v, err := decimal.NewFromString(strings.TrimSpace(fee))
		if err != nil {
			return nil, errors.Wrapf(err, "shipping rate %q", e)
		}
		if v.IsNegative() {
			return nil, errors.Errorf("shipping rate %q: negative fee", e)
		}
		r.fees[strings.ToLower(strings.TrimSpace(name))] = v
	}
	return r, nil
}

// Fee returns the fee for provider. An empty provider means no shipping.
func (r *Rates) Fee(provider string) (decimal.Decimal, error) {
	if provider == "" {
		return decimal.Zero, nil
	}
	fee, ok := r.fees[strings.ToLower(provider)]
	if !ok {
		return decimal.Zero, errors.Wrap(ErrUnknownProvider, provider)
	}
	return fee, nil
}

// Providers returns the known provider names, sorted.
func (r *Rates) Providers() []string {
	out := lo.Keys(r.fees)
	slices.Sort(out)
	return out
}
