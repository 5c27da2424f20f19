package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"unlisted_go/internal/domain"
	"unlisted_go/internal/event"
	"unlisted_go/internal/infra"
	"unlisted_go/internal/negotiation"
	"unlisted_go/internal/offer"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProposalStore persists proposals together with their journal.
type ProposalStore interface {
	GetProposal(ctx context.Context, id string) (*domain.Proposal, error)
	SaveProposal(ctx context.Context, p *domain.Proposal, tr *event.Transition) error
	ListProposalsByListing(ctx context.Context, listingID string) ([]domain.Proposal, error)
	ListProposalsByProposer(ctx context.Context, proposerID string) ([]domain.Proposal, error)
}

// Serializer runs fn exclusively for key; satisfied by *engine.Sequencer.
type Serializer interface {
	Do(ctx context.Context, key string, fn func() error) error
}

// DeskOptions tunes a Desk. Zero values fall back to defaults.
type DeskOptions struct {
	Places        int32
	MaxMessageLen int
	Metrics       *infra.Metrics
	Now           func() time.Time
	NewID         func() string

	// OnTransition is called after every committed transition, in commit
	// order per proposal. It runs on the proposal's shard and must not block.
	OnTransition func(p domain.Proposal, tr event.Transition)
}

// Desk is the negotiation service: it loads a proposal and its listing,
// applies one state machine transition on a copy, and commits the copy with
// its journal entry. Transitions of one proposal never interleave.
type Desk struct {
	listings  domain.ListingStore
	proposals ProposalStore
	fees      domain.FeeRateSource
	seq       Serializer

	places        int32
	maxMessageLen int
	metrics       *infra.Metrics
	now           func() time.Time
	newID         func() string
	onTransition  func(domain.Proposal, event.Transition)
}

// NewDesk creates a Desk
func NewDesk(listings domain.ListingStore, proposals ProposalStore, fees domain.FeeRateSource, seq Serializer, opts DeskOptions) *Desk {
	d := &Desk{
		listings:      listings,
		proposals:     proposals,
		fees:          fees,
		seq:           seq,
		places:        opts.Places,
		maxMessageLen: opts.MaxMessageLen,
		metrics:       opts.Metrics,
		now:           opts.Now,
		newID:         opts.NewID,
		onTransition:  opts.OnTransition,
	}
	if d.places <= 0 {
		d.places = 2
	}
	if d.maxMessageLen <= 0 {
		d.maxMessageLen = negotiation.DefaultMaxMessageLen
	}
	if d.metrics == nil {
		d.metrics = infra.GlobalMetrics
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.newID == nil {
		d.newID = uuid.NewString
	}
	return d
}

// rules snapshots the fee rate so one operation prices with one rate.
func (d *Desk) rules() negotiation.Rules {
	return negotiation.NewRules(d.fees.GetRate(), d.places, d.maxMessageLen)
}

// SubmitRequest is a new bid/offer.
type SubmitRequest struct {
	ListingID  string
	ProposerID string
	Price      decimal.Decimal
	Quantity   int64
	Message    string
}

// Quote validates and prices a prospective bid/offer without creating it.
func (d *Desk) Quote(ctx context.Context, listingID string, price decimal.Decimal, quantity int64) (offer.Result, error) {
	listing, err := d.listings.GetListing(ctx, listingID)
	if err != nil {
		return offer.Result{}, err
	}
	r := d.rules()
	return r.Validator.Validate(*listing, price, quantity, r.FeeRate)
}

// Submit creates a pending proposal.
func (d *Desk) Submit(ctx context.Context, req SubmitRequest) (domain.Proposal, offer.Result, error) {
	start := time.Now()
	listing, err := d.listings.GetListing(ctx, req.ListingID)
	if err != nil {
		d.fail("submit", req.ListingID, err)
		return domain.Proposal{}, offer.Result{}, err
	}

	p, res, err := d.rules().Submit(*listing, negotiation.SubmitInput{
		ID:         d.newID(),
		ProposerID: req.ProposerID,
		Price:      req.Price,
		Quantity:   req.Quantity,
		Message:    req.Message,
		At:         d.now(),
	})
	if err != nil {
		d.fail("submit", req.ListingID, err)
		return domain.Proposal{}, offer.Result{}, err
	}

	var tr event.Transition
	err = d.seq.Do(ctx, p.ID, func() error {
		tr = event.New(event.KindSubmitted, "", p, p.ProposerParty)
		if err := d.proposals.SaveProposal(context.WithoutCancel(ctx), p, &tr); err != nil {
			return fmt.Errorf("submit %s: %w", p.ID, err)
		}
		d.notify(*p, tr)
		return nil
	})
	if err != nil {
		d.fail("submit", req.ListingID, err)
		return domain.Proposal{}, offer.Result{}, err
	}

	d.metrics.RecordTransition(event.KindSubmitted, time.Since(start))
	slog.Info("Proposal submitted",
		slog.String("proposal_id", p.ID),
		slog.String("listing_id", p.ListingID),
		slog.String("price", p.Price.String()),
		slog.Int64("quantity", p.Quantity),
		slog.String("comparison", string(res.Comparison)),
	)
	return *p.Clone(), res, nil
}

// Counter puts a new price on the table for party by.
func (d *Desk) Counter(ctx context.Context, id string, by domain.Party, price decimal.Decimal, message string) (domain.Proposal, offer.Result, error) {
	p, res, _, err := d.transition(ctx, id, event.KindCountered, by, func(p *domain.Proposal, listing *domain.Listing, r negotiation.Rules, at time.Time) (offer.Result, error) {
		return r.Counter(p, *listing, by, price, message, at)
	})
	return p, res, err
}

// Accept closes the deal on the current terms.
func (d *Desk) Accept(ctx context.Context, id string, by domain.Party) (domain.Proposal, offer.Result, error) {
	p, res, _, err := d.transition(ctx, id, event.KindAccepted, by, func(p *domain.Proposal, listing *domain.Listing, r negotiation.Rules, at time.Time) (offer.Result, error) {
		return r.Accept(p, *listing, by, at)
	})
	return p, res, err
}

// Reject closes the negotiation without a deal.
func (d *Desk) Reject(ctx context.Context, id string, by domain.Party) (domain.Proposal, error) {
	p, _, _, err := d.transition(ctx, id, event.KindRejected, by, func(p *domain.Proposal, _ *domain.Listing, _ negotiation.Rules, at time.Time) (offer.Result, error) {
		return offer.Result{}, negotiation.Reject(p, by, at)
	})
	return p, err
}

// Expire expires an open proposal unconditionally.
func (d *Desk) Expire(ctx context.Context, id string) (domain.Proposal, error) {
	p, _, err := d.ExpireIf(ctx, id, nil)
	return p, err
}

// ExpireIf expires proposal id when due reports true for its state at the
// moment the transition runs. A nil due always expires.
func (d *Desk) ExpireIf(ctx context.Context, id string, due func(domain.Proposal) bool) (domain.Proposal, bool, error) {
	p, _, ok, err := d.transition(ctx, id, event.KindExpired, "", func(p *domain.Proposal, _ *domain.Listing, _ negotiation.Rules, at time.Time) (offer.Result, error) {
		if due != nil && p.Status.IsOpen() && !due(*p) {
			return offer.Result{}, errNotDue
		}
		return offer.Result{}, negotiation.Expire(p, at)
	})
	return p, ok, err
}

// Get returns a proposal with its counter history.
func (d *Desk) Get(ctx context.Context, id string) (domain.Proposal, error) {
	p, err := d.proposals.GetProposal(ctx, id)
	if err != nil {
		return domain.Proposal{}, err
	}
	return *p, nil
}

// ListByListing returns the bids/offers received on a listing.
func (d *Desk) ListByListing(ctx context.Context, listingID string) ([]domain.Proposal, error) {
	return d.proposals.ListProposalsByListing(ctx, listingID)
}

// ListByProposer returns the bids/offers a user made.
func (d *Desk) ListByProposer(ctx context.Context, proposerID string) ([]domain.Proposal, error) {
	return d.proposals.ListProposalsByProposer(ctx, proposerID)
}

var errNotDue = errors.New("not due")

type applyFunc func(p *domain.Proposal, listing *domain.Listing, r negotiation.Rules, at time.Time) (offer.Result, error)

// transition runs apply on a copy of the stored proposal inside the
// proposal's shard and commits the copy only if apply succeeded.
func (d *Desk) transition(ctx context.Context, id string, kind event.Kind, by domain.Party, apply applyFunc) (domain.Proposal, offer.Result, bool, error) {
	start := time.Now()
	op := string(kind)

	var (
		out       domain.Proposal
		res       offer.Result
		committed bool
	)
	err := d.seq.Do(ctx, id, func() error {
		// Started jobs finish even if the caller goes away.
		jobCtx := context.WithoutCancel(ctx)

		cur, err := d.proposals.GetProposal(jobCtx, id)
		if err != nil {
			return err
		}

		var listing *domain.Listing
		if kind == event.KindCountered || kind == event.KindAccepted {
			if !cur.Status.IsTerminal() {
				if listing, err = d.listings.GetListing(jobCtx, cur.ListingID); err != nil {
					return err
				}
			} else {
				listing = &domain.Listing{ID: cur.ListingID}
			}
		}

		next := cur.Clone()
		r, err := apply(next, listing, d.rules(), d.now())
		if errors.Is(err, errNotDue) {
			out = *cur
			return nil
		}
		if err != nil {
			return err
		}

		tr := event.New(kind, cur.Status, next, by)
		if err := d.proposals.SaveProposal(jobCtx, next, &tr); err != nil {
			return fmt.Errorf("%s %s: %w", op, id, err)
		}

		out, res, committed = *next.Clone(), r, true
		d.notify(out, tr)
		return nil
	})
	if err != nil {
		d.fail(op, id, err)
		return domain.Proposal{}, offer.Result{}, false, err
	}
	if !committed {
		return out, res, false, nil
	}

	d.metrics.RecordTransition(kind, time.Since(start))
	attrs := []any{
		slog.String("proposal_id", id),
		slog.String("status", string(out.Status)),
		slog.String("price", out.CurrentPrice().String()),
	}
	if by != "" {
		attrs = append(attrs, slog.String("by", string(by)))
	}
	if kind == event.KindCountered {
		attrs = append(attrs, slog.Int("round", out.CounterHistory[len(out.CounterHistory)-1].Round))
	}
	slog.Info("Proposal "+op, attrs...)
	return out, res, true, nil
}

func (d *Desk) notify(p domain.Proposal, tr event.Transition) {
	if d.onTransition == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Transition observer panic recovered", slog.String("proposal_id", p.ID), slog.Any("panic", r))
		}
	}()
	d.onTransition(p, tr)
}

func (d *Desk) fail(op, id string, err error) {
	d.metrics.RecordFailure(err)
	switch domain.KindOf(err) {
	case domain.KindInternal:
		slog.Error("Negotiation operation failed", slog.String("op", op), slog.String("id", id), slog.Any("error", err))
	default:
		slog.Debug("Negotiation operation refused", slog.String("op", op), slog.String("id", id), slog.Any("error", err))
	}
}
