package coupon

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
)

func voucher(code string, stack bool) Meta {
	m := fixed(code, 100)
	m.Kind = KindGrant
	m.OneTime = true
	m.Stackable = stack
	return m
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		eligible []Meta
		codes    []string
		want     []string
	}{
		{
			name:     "stackables all apply in submission order",
			eligible: []Meta{stackable(percent("A", "5")), stackable(percent("B", "5"))},
			codes:    []string{"B", "A"},
			want:     []string{"B", "A"},
		},
		{
			name:     "first exclusive wins",
			eligible: []Meta{percent("BIG", "90"), percent("SMALL", "5")},
			codes:    []string{"SMALL", "BIG"},
			want:     []string{"SMALL"},
		},
		{
			name:     "one exclusive combines with stackables",
			eligible: []Meta{stackable(percent("S1", "5")), percent("X", "10"), stackable(percent("S2", "5"))},
			codes:    []string{"S1", "X", "S2"},
			want:     []string{"S1", "X", "S2"},
		},
		{
			name:     "two vouchers never combine",
			eligible: []Meta{voucher("V1", true), voucher("V2", true)},
			codes:    []string{"V1", "V2"},
			want:     []string{"V1"},
		},
		{
			name:     "stackable voucher combines with exclusive coupon",
			eligible: []Meta{percent("X", "10"), voucher("V1", true)},
			codes:    []string{"X", "V1"},
			want:     []string{"X", "V1"},
		},
		{
			name:     "non-stackable voucher takes the exclusive slot",
			eligible: []Meta{voucher("V1", false), percent("X", "10"), stackable(percent("S", "5"))},
			codes:    []string{"V1", "X", "S"},
			want:     []string{"V1", "S"},
		},
		{
			name:     "duplicate codes count once",
			eligible: []Meta{stackable(percent("A", "5"))},
			codes:    []string{"a", "A", " a"},
			want:     []string{"A"},
		},
		{
			name:     "unknown and empty codes skipped",
			eligible: []Meta{stackable(percent("A", "5"))},
			codes:    []string{"", "Z", "A"},
			want:     []string{"A"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.codes, tt.eligible)
			assert.Equal(t, tt.want, lo.Map(got, func(m Meta, _ int) string { return m.Code }))
		})
	}
}

func TestResolve_SameIdentityUnderTwoCodes(t *testing.T) {
	a := stackable(percent("ALIAS1", "10"))
	b := a
	b.Code = "ALIAS2"

	got := Resolve([]string{"ALIAS1", "ALIAS2"}, []Meta{a, b})
	assert.Len(t, got, 1)
}

func TestResolve_GrantWinsSharedCode(t *testing.T) {
	admin := stackable(fixed("PETAL", 500))
	grant := voucher("PETAL", true)
	grant.ID = "g1"

	for _, eligible := range [][]Meta{{admin, grant}, {grant, admin}} {
		got := Resolve([]string{"petal"}, eligible)
		if assert.Len(t, got, 1) {
			assert.Equal(t, KindGrant, got[0].Kind)
			assert.Equal(t, "g1", got[0].ID)
		}
	}
}

func TestComputeBreakdown_ShadowedCouponReported(t *testing.T) {
	admin := stackable(fixed("PETAL", 500))
	grant := voucher("PETAL", true)
	grant.ID = "g1"

	got := ComputeBreakdown(testNow, []LineItem{item("p1", 1000, 1)}, Shipping{},
		[]Meta{admin, grant}, []string{"PETAL"}, Policy{})

	assert.Equal(t, []string{"PETAL"}, got.NormalizedCodes)
	assert.Equal(t, Cents(100), got.DiscountTotal)
	assert.Equal(t, []Exclusion{{Code: "PETAL", Reason: ReasonShadowed}}, got.Excluded)
}
