package bonds

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quantfolio/quantfolio/pkg/timeseries"
)

func date(s string) timeseries.Date { return timeseries.MustParseDate(s) }

func semiAnnualBond() *Position {
	return &Position{
		ID:               "b1",
		Name:             "Treasury 5% 2030",
		FaceValue:        1000,
		PurchaseQuantity: 10,
		CouponRate:       5,
		PaymentFrequency: SemiAnnual,
		PurchaseDate:     date("2024-03-01"),
		MaturityDate:     date("2030-01-15"),
		PurchasePrice:    98,
	}
}

func TestDays30360(t *testing.T) {
	tests := []struct {
		name  string
		start string
		end   string
		want  int
	}{
		{"same month", "2024-01-15", "2024-01-20", 5},
		{"month boundary", "2024-01-15", "2024-02-15", 30},
		{"full year", "2024-01-15", "2025-01-15", 360},
		{"start day 31 clamps", "2024-01-31", "2024-02-28", 28},
		{"end day 31 kept when start below 30", "2024-01-15", "2024-03-31", 76},
		{"both days 31 clamp", "2024-01-31", "2024-03-31", 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Days30360(date(tt.start), date(tt.end)))
		})
	}
}

func TestCouponDatesLatticeAnchoredAtMaturity(t *testing.T) {
	dates := CouponDates(date("2030-01-15"), SemiAnnual, date("2024-03-01"), date("2025-12-31"))

	var got []string
	for _, d := range dates {
		got = append(got, d.String())
	}
	assert.Equal(t, []string{"2024-07-15", "2025-01-15", "2025-07-15"}, got)
}

func TestCouponDatesZeroCoupon(t *testing.T) {
	assert.Nil(t, CouponDates(date("2030-01-15"), ZeroCoupon, date("2024-01-01"), date("2030-01-15")))
}

func TestLastAndNextCouponDate(t *testing.T) {
	maturity := date("2030-01-15")

	last, ok := LastCouponDate(maturity, SemiAnnual, date("2024-09-01"))
	assert.True(t, ok)
	assert.Equal(t, "2024-07-15", last.String())

	next, ok := NextCouponDate(maturity, SemiAnnual, date("2024-09-01"))
	assert.True(t, ok)
	assert.Equal(t, "2025-01-15", next.String())

	// Past maturity there is no next coupon.
	_, ok = NextCouponDate(maturity, SemiAnnual, date("2030-01-15"))
	assert.False(t, ok)
}

func TestAccruedInterestResetsAfterCoupon(t *testing.T) {
	bond := semiAnnualBond()

	// On a coupon date the accrual is exactly zero.
	assert.Equal(t, 0.0, AccruedInterestPer100(bond, date("2024-07-15")))

	// One 30/360 month later: 5% * 30/360.
	assert.InDelta(t, 5.0*30/360, AccruedInterestPer100(bond, date("2024-08-15")), 1e-12)

	// At maturity accrual stops.
	assert.Equal(t, 0.0, AccruedInterestPer100(bond, date("2030-01-15")))
}

func TestBondValueRoundTripAtMaturity(t *testing.T) {
	bond := semiAnnualBond()

	assert.Equal(t, bond.FaceValue*bond.PurchaseQuantity, Value(bond, date("2030-01-15"), nil))
	assert.Equal(t, bond.FaceValue*bond.PurchaseQuantity, Value(bond, date("2031-06-01"), nil))
	assert.Equal(t, 0.0, Value(bond, date("2024-02-29"), nil))
}

func TestBondValuePriceFallbackChain(t *testing.T) {
	bond := semiAnnualBond()
	on := date("2024-07-15") // coupon date, zero accrual

	// Purchase price when nothing else is set.
	assert.InDelta(t, 98.0/100*1000*10, Value(bond, on, nil), 1e-9)

	current := 101.0
	bond.CurrentPrice = &current
	assert.InDelta(t, 101.0/100*1000*10, Value(bond, on, nil), 1e-9)

	override := 99.5
	assert.InDelta(t, 99.5/100*1000*10, Value(bond, on, &override), 1e-9)
}

func TestCostBasisUsesDirtyPrice(t *testing.T) {
	bond := semiAnnualBond()

	// Last coupon before 2024-03-01 is 2024-01-15: 46 days of 30/360 accrual.
	accrued := 5.0 * 46 / 360
	want := (98 + accrued) / 100 * 1000 * 10
	assert.InDelta(t, want, CostBasis(bond), 1e-9)
}

func TestCouponPaymentsFilteredByPurchaseDate(t *testing.T) {
	bond := semiAnnualBond()

	payments := CouponPayments(bond, date("2024-01-01"), date("2025-01-31"))
	assert.Len(t, payments, 2) // 2024-01-15 dropped, before purchase
	assert.Equal(t, "2024-07-15", payments[0].Date.String())
	assert.Equal(t, "2025-01-15", payments[1].Date.String())

	perPeriod := 1000 * 0.05 * 10 / 2
	assert.InDelta(t, perPeriod, payments[0].Amount, 1e-12)
}
