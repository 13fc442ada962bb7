package services

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// currencyPrecision is the decimal scale of all monetary amounts.
const currencyPrecision = 2

var oneHundred = decimal.NewFromInt(100)

// SplitFee divides an order total into the platform's cut and the
// seller's payout. Only the fee is rounded; the seller amount is the
// exact remainder, so fee + seller == total always holds.
func SplitFee(total, commissionRatePercent decimal.Decimal) (platformFee, sellerAmount decimal.Decimal, err error) {
	if total.IsNegative() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: total %s is negative", ErrInvalidAmount, total)
	}
	if commissionRatePercent.IsNegative() || commissionRatePercent.GreaterThan(oneHundred) {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: commission rate %s%% out of range", ErrInvalidAmount, commissionRatePercent)
	}
	platformFee = total.Mul(commissionRatePercent).Div(oneHundred).Round(currencyPrecision)
	sellerAmount = total.Sub(platformFee)
	return platformFee, sellerAmount, nil
}
