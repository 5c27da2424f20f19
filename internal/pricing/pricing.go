// Package pricing computes the platform fee, subtotal and total of a proposed trade.
//
// All functions are pure and deterministic. Rounding happens once, at the
// end: the fee is derived from the exact subtotal, each is rounded half-up
// to the currency's minor unit, and the total is the exact sum of the two
// rounded values, so Total == Subtotal + Fee always holds.
package pricing

import (
	"fmt"

	"unlisted_go/internal/domain"

	"github.com/shopspring/decimal"
)

// DefaultPlaces is the minor-unit precision of INR (paise).
const DefaultPlaces int32 = 2

// DefaultFeeRate is the platform fee observed on the marketplace (2%).
var DefaultFeeRate = decimal.RequireFromString("0.02")

// Calculator prices trades at a fixed minor-unit precision.
type Calculator struct {
	Places int32
}

// NewCalculator returns a calculator rounding to places decimal digits.
func NewCalculator(places int32) Calculator {
	return Calculator{Places: places}
}

// ComputeFee returns amount * feeRate. The result is not rounded.
func ComputeFee(amount, feeRate decimal.Decimal) (decimal.Decimal, error) {
	if feeRate.IsNegative() {
		return decimal.Zero, &domain.ConfigError{
			Field: "fee_rate",
			Err:   fmt.Errorf("must be >= 0, got %s", feeRate.String()),
		}
	}
	return amount.Mul(feeRate), nil
}

// ComputeTotals prices unitPrice x quantity at DefaultPlaces.
func ComputeTotals(unitPrice decimal.Decimal, quantity int64, feeRate decimal.Decimal) (domain.PricingResult, error) {
	return Calculator{Places: DefaultPlaces}.Totals(unitPrice, quantity, feeRate)
}

// Totals computes the breakdown for unitPrice x quantity.
func (c Calculator) Totals(unitPrice decimal.Decimal, quantity int64, feeRate decimal.Decimal) (domain.PricingResult, error) {
	if !unitPrice.IsPositive() {
		return domain.PricingResult{}, &domain.NegotiationError{Op: "price", Err: domain.ErrInvalidInput, Field: "unitPrice", Limit: "0"}
	}
	if quantity <= 0 {
		return domain.PricingResult{}, &domain.NegotiationError{Op: "price", Err: domain.ErrInvalidInput, Field: "quantity", Limit: "0"}
	}

	exact := unitPrice.Mul(decimal.NewFromInt(quantity))

	// Fee first, from the unrounded subtotal
	rawFee, err := ComputeFee(exact, feeRate)
	if err != nil {
		return domain.PricingResult{}, err
	}
	fee := roundHalfUp(rawFee, c.Places)
	subtotal := roundHalfUp(exact, c.Places)

	return domain.PricingResult{
		Subtotal: subtotal,
		Fee:      fee,
		Total:    subtotal.Add(fee),
		FeeRate:  feeRate,
	}, nil
}

// roundHalfUp rounds non-negative amounts half-up. decimal.Round rounds half
// away from zero, which is the same thing for the amounts priced here.
func roundHalfUp(d decimal.Decimal, places int32) decimal.Decimal {
	return d.Round(places)
}
