package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// ListingStore gives read access to listings. GetListing must reflect the
// current quantity, never a cached snapshot.
type ListingStore interface {
	GetListing(ctx context.Context, id string) (*Listing, error)
}

// FeeRateSource provides the platform fee as a fraction (0.02 for 2%).
type FeeRateSource interface {
	GetRate() decimal.Decimal
}
