// Package offer validates a proposed bid/offer against the limits of a listing.
package offer

import (
	"strconv"

	"unlisted_go/internal/domain"
	"unlisted_go/internal/pricing"

	"github.com/shopspring/decimal"
)

// Result is what a successful validation hands back for display and confirmation.
type Result struct {
	Pricing    domain.PricingResult `json:"pricing"`
	Comparison domain.Comparison    `json:"comparison"`
	Delta      decimal.Decimal      `json:"delta"` // proposed - listed
}

// Validator checks proposals and prices them with its Calculator.
type Validator struct {
	Calculator pricing.Calculator
}

// NewValidator returns a validator pricing at the given minor-unit precision.
func NewValidator(places int32) Validator {
	return Validator{Calculator: pricing.NewCalculator(places)}
}

// ValidateProposal validates with the default precision.
func ValidateProposal(listing domain.Listing, price decimal.Decimal, quantity int64, feeRate decimal.Decimal) (Result, error) {
	return NewValidator(pricing.DefaultPlaces).Validate(listing, price, quantity, feeRate)
}

// Validate checks quantity against [listing.MinLot, listing.Quantity] and then the price,
// in that order. listing must be the current state of the listing, not a snapshot.
func (v Validator) Validate(listing domain.Listing, price decimal.Decimal, quantity int64, feeRate decimal.Decimal) (Result, error) {
	if quantity < listing.MinLot {
		return Result{}, &domain.NegotiationError{
			Op: "validate", Err: domain.ErrBelowMinimumLot,
			Field: "quantity", Limit: strconv.FormatInt(listing.MinLot, 10),
		}
	}
	if quantity > listing.Quantity {
		return Result{}, &domain.NegotiationError{
			Op: "validate", Err: domain.ErrExceedsAvailableQuantity,
			Field: "quantity", Limit: strconv.FormatInt(listing.Quantity, 10),
		}
	}
	if err := domain.CheckPrice("validate", price); err != nil {
		return Result{}, err
	}

	totals, err := v.Calculator.Totals(price, quantity, feeRate)
	if err != nil {
		return Result{}, err
	}

	cmp, delta := domain.ComparePrice(price, listing.Price)
	return Result{
		Pricing:    totals,
		Comparison: cmp,
		Delta:      delta,
	}, nil
}
