// Package event defines the journal record written for every committed
// negotiation transition.
package event

import (
	"time"

	"unlisted_go/internal/domain"

	"github.com/shopspring/decimal"
)

// Kind names the transition that was applied.
type Kind string

const (
	KindSubmitted Kind = "submitted"
	KindCountered Kind = "countered"
	KindAccepted  Kind = "accepted"
	KindRejected  Kind = "rejected"
	KindExpired   Kind = "expired"
)

// Transition is one append-only journal entry. It is saved in the same
// transaction as the proposal state it describes.
type Transition struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	ProposalID string          `gorm:"index;not null" json:"proposalId"`
	ListingID  string          `gorm:"index" json:"listingId"`
	Kind       Kind            `gorm:"size:16" json:"kind"`
	From       domain.Status   `gorm:"size:16" json:"from,omitempty"`
	To         domain.Status   `gorm:"size:16" json:"to"`
	Round      int             `json:"round,omitempty"`
	By         domain.Party    `gorm:"size:8" json:"by,omitempty"`
	Price      decimal.Decimal `gorm:"type:numeric(20,4)" json:"price"`
	At         time.Time       `gorm:"index" json:"at"`
}

func (Transition) TableName() string {
	return "negotiation_events"
}

// New records p moving from status from into its current status. Price is
// the price on the table after the transition.
func New(kind Kind, from domain.Status, p *domain.Proposal, by domain.Party) Transition {
	t := Transition{
		ProposalID: p.ID,
		ListingID:  p.ListingID,
		Kind:       kind,
		From:       from,
		To:         p.Status,
		By:         by,
		Price:      p.CurrentPrice(),
		At:         p.UpdatedAt,
	}
	if kind == KindCountered {
		t.Round = p.CounterHistory[len(p.CounterHistory)-1].Round
	}
	return t
}
