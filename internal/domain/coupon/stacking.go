package coupon

import "github.com/samber/lo"

// Resolve decides which eligible coupons apply, walking codesOrder in
// submission order:
//   - stackable coupons always apply;
//   - at most one exclusive (non-stackable) coupon applies, the first one
//     submitted wins;
//   - at most one one-time voucher applies, and a non-stackable voucher also
//     takes the exclusive slot.
//
// A coupon submitted twice is counted once. Codes without an eligible coupon
// are skipped. When a grant and an admin coupon share a code, the grant is
// used.
func Resolve(codesOrder []string, eligible []Meta) []Meta {
	byCode, _ := indexByCode(eligible)

	var (
		applied       []Meta
		seen          = make(map[string]struct{})
		exclusiveUsed bool
		oneTimeUsed   bool
	)
	for _, raw := range lo.Uniq(lo.Map(codesOrder, func(c string, _ int) string {
		return NormalizeCode(c)
	})) {
		m, ok := byCode[raw]
		if !ok || raw == "" {
			continue
		}
		if _, dup := seen[identity(m)]; dup {
			continue
		}

		switch {
		case m.OneTime:
			if oneTimeUsed || (!m.Stackable && exclusiveUsed) {
				continue
			}
			oneTimeUsed = true
			if !m.Stackable {
				exclusiveUsed = true
			}
		case m.Stackable:
		default:
			if exclusiveUsed {
				continue
			}
			exclusiveUsed = true
		}

		seen[identity(m)] = struct{}{}
		applied = append(applied, m)
	}
	return applied
}

// indexByCode maps each code to the meta used for it. A user grant wins over
// an admin coupon with the same code, otherwise the first meta wins. The
// metas left out are returned as shadowed, in input order.
func indexByCode(metas []Meta) (byCode map[string]Meta, shadowed []Meta) {
	byCode = make(map[string]Meta, len(metas))
	for _, m := range metas {
		cur, ok := byCode[m.Code]
		switch {
		case !ok:
			byCode[m.Code] = m
		case m.Kind == KindGrant && cur.Kind != KindGrant:
			byCode[m.Code] = m
			shadowed = append(shadowed, cur)
		default:
			shadowed = append(shadowed, m)
		}
	}
	return byCode, shadowed
}

func identity(m Meta) string {
	if m.ID == "" {
		return string(m.Kind) + ":" + m.Code
	}
	return string(m.Kind) + ":" + m.ID
}
