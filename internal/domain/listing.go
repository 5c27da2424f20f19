package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ListingType tells whether the owner is selling or buying shares.
type ListingType string

const (
	ListingSell ListingType = "sell"
	ListingBuy  ListingType = "buy"
)

// Valid reports whether t is a known listing type.
func (t ListingType) Valid() bool {
	return t == ListingSell || t == ListingBuy
}

// OwnerParty returns the party the listing owner plays in a negotiation.
func (t ListingType) OwnerParty() Party {
	if t == ListingBuy {
		return PartyBuyer
	}
	return PartySeller
}

// ProposerParty returns the party of whoever bids (sell post) or offers (buy request).
func (t ListingType) ProposerParty() Party {
	return t.OwnerParty().Other()
}

// Listing is a sell post or buy request for shares of one company.
type Listing struct {
	ID            string          `gorm:"primaryKey" json:"id"`
	Type          ListingType     `gorm:"size:8;index" json:"type"`
	CompanySymbol string          `gorm:"index" json:"companySymbol"`
	OwnerID       string          `gorm:"index" json:"ownerId"`
	Price         decimal.Decimal `gorm:"type:numeric(20,4)" json:"price"`
	Quantity      int64           `json:"quantity"`
	MinLot        int64           `json:"minLot"`
	BoostedUntil  *time.Time      `json:"boostedUntil,omitempty"`
	CreatedAt     time.Time       `gorm:"autoCreateTime:false" json:"createdAt"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime:false" json:"updatedAt"`
}

// Validate checks the listing invariants: a storable price and 0 < minLot <= quantity.
func (l *Listing) Validate() error {
	if !l.Type.Valid() {
		return &NegotiationError{Op: "listing", Err: ErrInvalidInput, Field: "type", Limit: string(l.Type)}
	}
	if l.OwnerID == "" {
		return &NegotiationError{Op: "listing", Err: ErrInvalidInput, Field: "ownerId"}
	}
	if err := CheckPrice("listing", l.Price); err != nil {
		return err
	}
	if l.Quantity <= 0 {
		return &NegotiationError{Op: "listing", Err: ErrInvalidInput, Field: "quantity"}
	}
	if l.MinLot <= 0 || l.MinLot > l.Quantity {
		return &NegotiationError{Op: "listing", Err: ErrInvalidInput, Field: "minLot", Limit: formatInt(l.Quantity)}
	}
	return nil
}

// IsBoosted reports whether the listing is inside its boost window at now.
func (l *Listing) IsBoosted(now time.Time) bool {
	return l.BoostedUntil != nil && now.Before(*l.BoostedUntil)
}

// Boost extends the visibility window by d, starting from now or from the
// current boost expiry, whichever is later.
func (l *Listing) Boost(now time.Time, d time.Duration) time.Time {
	from := now
	if l.BoostedUntil != nil && l.BoostedUntil.After(now) {
		from = *l.BoostedUntil
	}
	until := from.Add(d)
	l.BoostedUntil = &until
	return until
}
