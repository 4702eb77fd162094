package coupon

import (
	"strings"
	"unicode"
)

// NormalizeCode canonicalizes a user-supplied code: surrounding and inner
// whitespace is removed and letters are upper-cased. It never fails; an
// empty result simply matches nothing.
func NormalizeCode(raw string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, raw)
}
