package bonds

import (
	"time"

	"github.com/quantfolio/quantfolio/pkg/timeseries"
)

// PaymentFrequency is the number of coupon payments per year.
// Zero means a zero-coupon bond.
type PaymentFrequency int

const (
	ZeroCoupon PaymentFrequency = 0
	Annual     PaymentFrequency = 1
	SemiAnnual PaymentFrequency = 2
	Quarterly  PaymentFrequency = 4
	Monthly    PaymentFrequency = 12
)

// MonthsPerPeriod returns the number of months between coupon payments,
// 0 for zero-coupon bonds.
func (f PaymentFrequency) MonthsPerPeriod() int {
	switch f {
	case Annual, SemiAnnual, Quarterly, Monthly:
		return 12 / int(f)
	default:
		return 0
	}
}

// Position is a fixed-rate or zero-coupon bond holding. Prices are clean
// prices quoted as a percentage of face value.
type Position struct {
	ID               string           `json:"id"`
	PortfolioID      string           `json:"portfolio_id"`
	Name             string           `json:"name"`
	FaceValue        float64          `json:"face_value"`
	PurchaseQuantity float64          `json:"purchase_quantity"`
	CouponRate       float64          `json:"coupon_rate"` // percent of face per year
	PaymentFrequency PaymentFrequency `json:"payment_frequency"`
	PurchaseDate     timeseries.Date  `json:"purchase_date"`
	MaturityDate     timeseries.Date  `json:"maturity_date"`
	PurchasePrice    float64          `json:"purchase_price"`
	CurrentPrice     *float64         `json:"current_price,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

// CouponPayment is a scheduled cash flow from a bond position.
type CouponPayment struct {
	Date   timeseries.Date `json:"date"`
	Amount float64         `json:"amount"`
}
