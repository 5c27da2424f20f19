package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Party is one side of a negotiation.
type Party string

const (
	PartyBuyer  Party = "buyer"
	PartySeller Party = "seller"
)

// Valid reports whether p is buyer or seller.
func (p Party) Valid() bool {
	return p == PartyBuyer || p == PartySeller
}

// Other returns the opposite party.
func (p Party) Other() Party {
	if p == PartyBuyer {
		return PartySeller
	}
	return PartyBuyer
}

// Status is the lifecycle state of a Proposal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCountered Status = "countered"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusExpired   Status = "expired"
)

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusAccepted || s == StatusRejected || s == StatusExpired
}

// IsOpen reports whether the proposal can still be accepted, rejected or countered.
func (s Status) IsOpen() bool {
	return s == StatusPending || s == StatusCountered
}

// CounterRecord is one round of a negotiation.
type CounterRecord struct {
	ID         uint            `gorm:"primaryKey" json:"-"`
	ProposalID string          `gorm:"not null;uniqueIndex:idx_counter_round" json:"-"`
	Round      int             `gorm:"not null;uniqueIndex:idx_counter_round" json:"round"`
	By         Party           `gorm:"size:8" json:"by"`
	Price      decimal.Decimal `gorm:"type:numeric(20,4)" json:"price"`
	Message    string          `json:"message,omitempty"`
	At         time.Time       `json:"at"`
}

// Proposal is a bid (against a sell listing) or an offer (against a buy listing).
// Quantity is fixed at submission; counters only move the price.
type Proposal struct {
	ID             string          `gorm:"primaryKey" json:"id"`
	ListingID      string          `gorm:"index" json:"listingId"`
	ProposerID     string          `gorm:"index" json:"proposerId"`
	ProposerParty  Party           `gorm:"size:8" json:"proposerParty"`
	Price          decimal.Decimal `gorm:"type:numeric(20,4)" json:"price"`
	Quantity       int64           `json:"quantity"`
	Message        string          `json:"message"`
	Status         Status          `gorm:"size:16;index" json:"status"`
	CounterHistory []CounterRecord `gorm:"foreignKey:ProposalID;constraint:OnDelete:CASCADE" json:"counterHistory"`
	ResolvedBy     Party           `gorm:"size:8" json:"resolvedBy,omitempty"`
	CreatedAt      time.Time       `gorm:"autoCreateTime:false" json:"createdAt"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime:false" json:"updatedAt"`
}

// CurrentPrice is the price on the table: the latest counter, or the original bid.
func (p *Proposal) CurrentPrice() decimal.Decimal {
	if n := len(p.CounterHistory); n > 0 {
		return p.CounterHistory[n-1].Price
	}
	return p.Price
}

// LastAuthor is the party that put the current terms on the table.
func (p *Proposal) LastAuthor() Party {
	if n := len(p.CounterHistory); n > 0 {
		return p.CounterHistory[n-1].By
	}
	return p.ProposerParty
}

// NextRound returns the round number the next counter gets.
func (p *Proposal) NextRound() int {
	if n := len(p.CounterHistory); n > 0 {
		return p.CounterHistory[n-1].Round + 1
	}
	return 1
}

// LastActivity is the time of the latest counter, or the creation time.
func (p *Proposal) LastActivity() time.Time {
	if n := len(p.CounterHistory); n > 0 {
		return p.CounterHistory[n-1].At
	}
	return p.CreatedAt
}

// Clone returns a deep copy so a transition can be applied without touching the original.
func (p *Proposal) Clone() *Proposal {
	c := *p
	if p.CounterHistory != nil {
		c.CounterHistory = make([]CounterRecord, len(p.CounterHistory))
		copy(c.CounterHistory, p.CounterHistory)
	}
	return &c
}
