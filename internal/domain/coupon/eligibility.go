package coupon

import (
	"slices"
	"time"
)

// Reason explains why the filter dropped a coupon.
type Reason string

const (
	ReasonDisabled        Reason = "disabled"
	ReasonNotStarted      Reason = "not_started"
	ReasonExpired         Reason = "expired"
	ReasonRedemptionLimit Reason = "redemption_limit"
	ReasonPerUserLimit    Reason = "per_user_limit"
	ReasonMinSubtotal     Reason = "min_subtotal"
	ReasonNSFWPolicy      Reason = "nsfw_policy"
	ReasonNoMatchingItems Reason = "no_matching_items"
	ReasonNotFound        Reason = "not_found"
	ReasonNotStackable    Reason = "not_stackable"
	// ReasonShadowed marks an admin coupon hidden by the user's own grant
	// with the same code.
	ReasonShadowed Reason = "shadowed"
)

// Exclusion records a dropped code. It is diagnostic only: callers use it
// for logging, never to fail a checkout.
type Exclusion struct {
	Code   string
	Reason Reason
}

// Filter splits metas into the ones usable for this cart and the ones that
// are not. The order of eligible metas follows the input order.
func Filter(now time.Time, metas []Meta, items []LineItem, policy Policy) (eligible []Meta, excluded []Exclusion) {
	sub := subtotal(items)
	for _, m := range metas {
		if reason, ok := check(now, m, items, sub, policy); !ok {
			excluded = append(excluded, Exclusion{Code: m.Code, Reason: reason})
			continue
		}
		eligible = append(eligible, m)
	}
	return eligible, excluded
}

func check(now time.Time, m Meta, items []LineItem, sub Cents, policy Policy) (Reason, bool) {
	switch {
	case !m.Enabled:
		return ReasonDisabled, false
	case m.StartsAt != nil && now.Before(*m.StartsAt):
		return ReasonNotStarted, false
	case m.EndsAt != nil && !now.Before(*m.EndsAt):
		return ReasonExpired, false
	case m.MaxRedemptions > 0 && m.Redemptions >= m.MaxRedemptions:
		return ReasonRedemptionLimit, false
	case m.PerUserLimit > 0 && m.UserRedemptions >= m.PerUserLimit:
		return ReasonPerUserLimit, false
	case sub < m.MinSubtotal:
		return ReasonMinSubtotal, false
	case m.NSFWOnly && !policy.AllowNSFW:
		return ReasonNSFWPolicy, false
	case m.restricted() && !m.hasShipping() && len(m.eligibleItems(items)) == 0:
		return ReasonNoMatchingItems, false
	}
	return "", true
}

// Applies reports whether the coupon's allow and deny lists admit the item.
// Deny lists win over allow lists.
func (m Meta) Applies(item LineItem) bool {
	if slices.Contains(m.ExcludedProductIDs, item.ProductID) {
		return false
	}
	for _, c := range item.Collections {
		if slices.Contains(m.ExcludedCollectionIDs, c) {
			return false
		}
	}
	if len(m.ProductIDs) == 0 && len(m.CollectionIDs) == 0 {
		return true
	}
	if slices.Contains(m.ProductIDs, item.ProductID) {
		return true
	}
	for _, c := range item.Collections {
		if slices.Contains(m.CollectionIDs, c) {
			return true
		}
	}
	return false
}

func (m Meta) eligibleItems(items []LineItem) []LineItem {
	if !m.restricted() {
		return items
	}
	var out []LineItem
	for _, it := range items {
		if m.Applies(it) {
			out = append(out, it)
		}
	}
	return out
}
