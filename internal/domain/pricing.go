package domain

import "github.com/shopspring/decimal"

// PricingResult is the derived money breakdown of a proposed trade. Never stored.
type PricingResult struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Fee      decimal.Decimal `json:"fee"`
	Total    decimal.Decimal `json:"total"`
	FeeRate  decimal.Decimal `json:"feeRate"`
}

// Prices are stored in numeric(20,4) columns, which SQLite keeps as REAL.
// Within PriceScale places and below MaxPrice a price round-trips exactly in both.
const PriceScale int32 = 4

var MaxPrice = decimal.New(1, 11)

// CheckPrice rejects prices that are not positive or would not survive storage unchanged.
func CheckPrice(op string, price decimal.Decimal) error {
	switch {
	case !price.IsPositive():
		return &NegotiationError{Op: op, Err: ErrInvalidPrice, Field: "price", Limit: "0"}
	case !price.Equal(price.Truncate(PriceScale)):
		return &NegotiationError{Op: op, Err: ErrInvalidPrice, Field: "priceScale", Limit: formatInt(int64(PriceScale))}
	case price.GreaterThanOrEqual(MaxPrice):
		return &NegotiationError{Op: op, Err: ErrInvalidPrice, Field: "priceMax", Limit: MaxPrice.String()}
	}
	return nil
}

// Comparison tags a proposed price relative to the listed price.
type Comparison string

const (
	PriceAbove Comparison = "above"
	PriceBelow Comparison = "below"
	PriceEqual Comparison = "equal"
)

// ComparePrice returns the tag and the signed delta (proposed - listed).
func ComparePrice(proposed, listed decimal.Decimal) (Comparison, decimal.Decimal) {
	delta := proposed.Sub(listed)
	switch {
	case delta.IsPositive():
		return PriceAbove, delta
	case delta.IsNegative():
		return PriceBelow, delta
	default:
		return PriceEqual, delta
	}
}
