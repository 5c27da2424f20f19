// Package negotiation is the lifecycle of a single bid/offer:
//
//	pending -> countered (any number of rounds) -> accepted | rejected | expired
//
// Every function here either applies the whole transition to the proposal or
// returns an error and leaves it untouched. Nothing here does I/O; callers
// persist and notify after a successful transition.
package negotiation

import (
	"strconv"
	"time"
	"unicode/utf8"

	"unlisted_go/internal/domain"
	"unlisted_go/internal/offer"

	"github.com/shopspring/decimal"
)

// DefaultMaxMessageLen matches the 200 character limit of the bid/offer form.
const DefaultMaxMessageLen = 200

// Rules carries what a transition needs besides the proposal itself. FeeRate
// is read once by the caller and stays fixed for the transition.
type Rules struct {
	Validator     offer.Validator
	FeeRate       decimal.Decimal
	MaxMessageLen int
}

// NewRules builds rules pricing at places decimal digits.
func NewRules(feeRate decimal.Decimal, places int32, maxMessageLen int) Rules {
	return Rules{
		Validator:     offer.NewValidator(places),
		FeeRate:       feeRate,
		MaxMessageLen: maxMessageLen,
	}
}

// SubmitInput is a new bid/offer as entered by the proposer.
type SubmitInput struct {
	ID         string
	ProposerID string
	Price      decimal.Decimal
	Quantity   int64
	Message    string
	At         time.Time
}

// Submit creates a pending proposal against listing. Nothing is created when
// validation fails.
func (r Rules) Submit(listing domain.Listing, in SubmitInput) (*domain.Proposal, offer.Result, error) {
	if in.ProposerID == "" {
		return nil, offer.Result{}, &domain.NegotiationError{Op: "submit", Err: domain.ErrInvalidInput, Field: "proposerId"}
	}
	if in.ProposerID == listing.OwnerID {
		return nil, offer.Result{}, &domain.NegotiationError{Op: "submit", Err: domain.ErrInvalidInput, Field: "proposerId", Limit: "not listing owner"}
	}
	if err := r.checkMessage("submit", in.Message); err != nil {
		return nil, offer.Result{}, err
	}

	res, err := r.Validator.Validate(listing, in.Price, in.Quantity, r.FeeRate)
	if err != nil {
		return nil, offer.Result{}, relabel("submit", err)
	}

	p := &domain.Proposal{
		ID:            in.ID,
		ListingID:     listing.ID,
		ProposerID:    in.ProposerID,
		ProposerParty: listing.Type.ProposerParty(),
		Price:         in.Price,
		Quantity:      in.Quantity,
		Message:       in.Message,
		Status:        domain.StatusPending,
		CreatedAt:     in.At,
		UpdatedAt:     in.At,
	}
	return p, res, nil
}

// Counter appends the next round with a new price from party by. The quantity
// stays as submitted and is checked against the listing's current quantity.
func (r Rules) Counter(p *domain.Proposal, listing domain.Listing, by domain.Party, price decimal.Decimal, message string, at time.Time) (offer.Result, error) {
	if err := checkOpen("counter", p); err != nil {
		return offer.Result{}, err
	}
	if err := checkTurn("counter", p, by); err != nil {
		return offer.Result{}, err
	}
	if err := checkListing("counter", p, listing); err != nil {
		return offer.Result{}, err
	}
	if err := r.checkMessage("counter", message); err != nil {
		return offer.Result{}, err
	}

	res, err := r.Validator.Validate(listing, price, p.Quantity, r.FeeRate)
	if err != nil {
		return offer.Result{}, relabel("counter", err)
	}

	p.CounterHistory = append(p.CounterHistory, domain.CounterRecord{
		ProposalID: p.ID,
		Round:      p.NextRound(),
		By:         by,
		Price:      price,
		Message:    message,
		At:         at,
	})
	p.Status = domain.StatusCountered
	p.UpdatedAt = at
	return res, nil
}

// Accept closes the deal on the current terms. The accepting party must not
// be the one who put those terms on the table, and the terms must still fit
// the listing as it is now.
func (r Rules) Accept(p *domain.Proposal, listing domain.Listing, by domain.Party, at time.Time) (offer.Result, error) {
	if err := checkOpen("accept", p); err != nil {
		return offer.Result{}, err
	}
	if err := checkTurn("accept", p, by); err != nil {
		return offer.Result{}, err
	}
	if err := checkListing("accept", p, listing); err != nil {
		return offer.Result{}, err
	}

	res, err := r.Validator.Validate(listing, p.CurrentPrice(), p.Quantity, r.FeeRate)
	if err != nil {
		return offer.Result{}, relabel("accept", err)
	}

	p.Status = domain.StatusAccepted
	p.ResolvedBy = by
	p.UpdatedAt = at
	return res, nil
}

// Reject closes the negotiation without a deal. Either party may reject;
// the proposer rejecting is a withdrawal.
func Reject(p *domain.Proposal, by domain.Party, at time.Time) error {
	if err := checkOpen("reject", p); err != nil {
		return err
	}
	if !by.Valid() {
		return &domain.NegotiationError{Op: "reject", Err: domain.ErrInvalidInput, Field: "by", Limit: string(by)}
	}
	p.Status = domain.StatusRejected
	p.ResolvedBy = by
	p.UpdatedAt = at
	return nil
}

// Expire is driven from outside (TTL policy of the host).
func Expire(p *domain.Proposal, at time.Time) error {
	if err := checkOpen("expire", p); err != nil {
		return err
	}
	p.Status = domain.StatusExpired
	p.UpdatedAt = at
	return nil
}

func checkOpen(op string, p *domain.Proposal) error {
	if p.Status.IsTerminal() {
		return &domain.NegotiationError{Op: op, Err: domain.ErrTerminalStateViolation, Field: "status", Limit: string(p.Status)}
	}
	if !p.Status.IsOpen() {
		return &domain.NegotiationError{Op: op, Err: domain.ErrIllegalTransition, Field: "status", Limit: string(p.Status)}
	}
	return nil
}

// checkTurn enforces alternation: nobody answers their own terms.
func checkTurn(op string, p *domain.Proposal, by domain.Party) error {
	if !by.Valid() {
		return &domain.NegotiationError{Op: op, Err: domain.ErrInvalidInput, Field: "by", Limit: string(by)}
	}
	if by == p.LastAuthor() {
		return &domain.NegotiationError{Op: op, Err: domain.ErrOutOfTurn, Field: "by", Limit: string(by.Other())}
	}
	return nil
}

func checkListing(op string, p *domain.Proposal, listing domain.Listing) error {
	if listing.ID != p.ListingID {
		return &domain.NegotiationError{Op: op, Err: domain.ErrInvalidInput, Field: "listingId", Limit: p.ListingID}
	}
	return nil
}

func (r Rules) checkMessage(op, message string) error {
	limit := r.MaxMessageLen
	if limit <= 0 {
		limit = DefaultMaxMessageLen
	}
	if utf8.RuneCountInString(message) > limit {
		return &domain.NegotiationError{Op: op, Err: domain.ErrInvalidInput, Field: "message", Limit: strconv.Itoa(limit)}
	}
	return nil
}

// relabel attributes a validator error to the transition that ran it.
func relabel(op string, err error) error {
	if ne, ok := err.(*domain.NegotiationError); ok {
		c := *ne
		c.Op = op
		return &c
	}
	return err
}
