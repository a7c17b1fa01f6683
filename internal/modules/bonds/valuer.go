// Package bonds values fixed-rate and zero-coupon bond positions using the
// 30/360 day-count convention for accrued interest.
package bonds

import (
	"sort"

	"github.com/quantfolio/quantfolio/pkg/timeseries"
)

// CouponDates generates all coupon payment dates within [start, end].
// The lattice is anchored at maturity and walks backward in fixed month steps.
func CouponDates(maturity timeseries.Date, frequency PaymentFrequency, start, end timeseries.Date) []timeseries.Date {
	months := frequency.MonthsPerPeriod()
	if months == 0 {
		return nil
	}

	current := maturity
	for current.After(start) {
		current = current.AddMonths(-months)
	}
	if current.Before(start) {
		current = current.AddMonths(months)
	}

	var dates []timeseries.Date
	for !current.After(end) {
		if !current.Before(start) && !current.After(maturity) {
			dates = append(dates, current)
		}
		current = current.AddMonths(months)
	}

	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// LastCouponDate returns the most recent coupon date on or before the
// reference date; ok is false for zero-coupon bonds.
func LastCouponDate(maturity timeseries.Date, frequency PaymentFrequency, reference timeseries.Date) (timeseries.Date, bool) {
	months := frequency.MonthsPerPeriod()
	if months == 0 {
		return timeseries.Date{}, false
	}

	current := maturity
	for current.After(reference) {
		current = current.AddMonths(-months)
	}
	return current, true
}

// NextCouponDate returns the first coupon date strictly after the reference
// date, capped at maturity; ok is false for zero-coupon bonds or when the
// reference is already at/past maturity.
func NextCouponDate(maturity timeseries.Date, frequency PaymentFrequency, reference timeseries.Date) (timeseries.Date, bool) {
	months := frequency.MonthsPerPeriod()
	if months == 0 {
		return timeseries.Date{}, false
	}
	if !reference.Before(maturity) {
		return timeseries.Date{}, false
	}

	last, ok := LastCouponDate(maturity, frequency, reference)
	if !ok {
		return timeseries.Date{}, false
	}

	next := last.AddMonths(months)
	if next.After(maturity) {
		return maturity, true
	}
	return next, true
}

// Days30360 counts days between two dates under the 30/360 convention.
// The start day is clamped to 30; the end day is clamped only when the start
// day was clamped.
func Days30360(start, end timeseries.Date) int {
	d1 := start.Day()
	if d1 > 30 {
		d1 = 30
	}
	d2 := end.Day()
	if d1 >= 30 && d2 > 30 {
		d2 = 30
	}

	return 360*(end.Year()-start.Year()) + 30*(int(end.Month())-int(start.Month())) + (d2 - d1)
}

// AccruedInterestPer100 returns accrued interest per 100 of face value since
// the last coupon, 0 for zero-coupon bonds or at/after maturity.
func AccruedInterestPer100(bond *Position, valuation timeseries.Date) float64 {
	if bond.PaymentFrequency.MonthsPerPeriod() == 0 {
		return 0
	}
	if !valuation.Before(bond.MaturityDate) {
		return 0
	}

	last, ok := LastCouponDate(bond.MaturityDate, bond.PaymentFrequency, valuation)
	if !ok {
		return 0
	}

	days := Days30360(last, valuation)
	return bond.CouponRate * float64(days) / 360.0
}

// AccruedInterest returns the total accrued interest for the position.
func AccruedInterest(bond *Position, valuation timeseries.Date) float64 {
	per100 := AccruedInterestPer100(bond, valuation)
	return per100 / 100.0 * bond.FaceValue * bond.PurchaseQuantity
}

// IsMatured reports whether the bond has reached maturity.
func IsMatured(bond *Position, valuation timeseries.Date) bool {
	return !valuation.Before(bond.MaturityDate)
}

// Value returns the market value of the position at the valuation date using
// the dirty price. cleanPrice overrides the bond's current price when non-nil.
// The value is 0 before purchase and exactly face*qty at or after maturity.
func Value(bond *Position, valuation timeseries.Date, cleanPrice *float64) float64 {
	if valuation.Before(bond.PurchaseDate) {
		return 0
	}
	if IsMatured(bond, valuation) {
		return bond.FaceValue * bond.PurchaseQuantity
	}

	price := bond.PurchasePrice
	if cleanPrice != nil {
		price = *cleanPrice
	} else if bond.CurrentPrice != nil {
		price = *bond.CurrentPrice
	}

	dirty := price + AccruedInterestPer100(bond, valuation)
	return dirty / 100.0 * bond.FaceValue * bond.PurchaseQuantity
}

// CostBasis returns the cash outlay at purchase: the dirty price at the
// purchase date scaled by face value and quantity.
func CostBasis(bond *Position) float64 {
	dirty := bond.PurchasePrice + AccruedInterestPer100(bond, bond.PurchaseDate)
	return dirty / 100.0 * bond.FaceValue * bond.PurchaseQuantity
}

// CouponPayments lists the coupon cash flows due within [start, end],
// excluding coupons scheduled before the bond was purchased.
func CouponPayments(bond *Position, start, end timeseries.Date) []CouponPayment {
	months := bond.PaymentFrequency.MonthsPerPeriod()
	if months == 0 {
		return nil
	}

	perPeriod := bond.FaceValue * (bond.CouponRate / 100.0) * bond.PurchaseQuantity / float64(bond.PaymentFrequency)

	var payments []CouponPayment
	for _, d := range CouponDates(bond.MaturityDate, bond.PaymentFrequency, start, end) {
		if d.Before(bond.PurchaseDate) {
			continue
		}
		payments = append(payments, CouponPayment{Date: d, Amount: perPeriod})
	}
	return payments
}
