package negotiation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"unlisted_go/internal/domain"
	"unlisted_go/internal/pricing"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func testRules() Rules {
	return NewRules(pricing.DefaultFeeRate, pricing.DefaultPlaces, DefaultMaxMessageLen)
}

func sellListing() domain.Listing {
	return domain.Listing{
		ID:       "listing-1",
		Type:     domain.ListingSell,
		OwnerID:  "seller-1",
		Price:    decimal.NewFromInt(100),
		Quantity: 500,
		MinLot:   10,
	}
}

func submit(t *testing.T, r Rules, l domain.Listing) *domain.Proposal {
	t.Helper()
	p, _, err := r.Submit(l, SubmitInput{
		ID:         "proposal-1",
		ProposerID: "buyer-1",
		Price:      decimal.NewFromInt(110),
		Quantity:   50,
		Message:    "interested",
		At:         t0,
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	return p
}

func TestSubmit(t *testing.T) {
	r := testRules()

	t.Run("creates pending proposal", func(t *testing.T) {
		p, res, err := r.Submit(sellListing(), SubmitInput{
			ID: "p", ProposerID: "buyer-1", Price: decimal.NewFromInt(110), Quantity: 50, At: t0,
		})
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		if p.Status != domain.StatusPending {
			t.Errorf("Expected pending, got %s", p.Status)
		}
		if p.ProposerParty != domain.PartyBuyer {
			t.Errorf("Expected buyer proposer on a sell post, got %s", p.ProposerParty)
		}
		if len(p.CounterHistory) != 0 {
			t.Errorf("Expected no counters, got %d", len(p.CounterHistory))
		}
		if !res.Pricing.Total.Equal(decimal.NewFromInt(5610)) || res.Comparison != domain.PriceAbove {
			t.Errorf("Unexpected validation result: %+v", res)
		}
	})

	t.Run("offer on a buy request comes from the seller", func(t *testing.T) {
		l := sellListing()
		l.Type = domain.ListingBuy
		p, _, err := r.Submit(l, SubmitInput{ID: "p", ProposerID: "seller-9", Price: decimal.NewFromInt(90), Quantity: 10, At: t0})
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		if p.ProposerParty != domain.PartySeller {
			t.Errorf("Expected seller, got %s", p.ProposerParty)
		}
	})

	t.Run("below minimum lot creates nothing", func(t *testing.T) {
		p, _, err := r.Submit(sellListing(), SubmitInput{ID: "p", ProposerID: "buyer-1", Price: decimal.NewFromInt(110), Quantity: 5, At: t0})
		if !errors.Is(err, domain.ErrBelowMinimumLot) {
			t.Fatalf("Expected ErrBelowMinimumLot, got %v", err)
		}
		if p != nil {
			t.Error("No proposal should be created on failure")
		}
		var ne *domain.NegotiationError
		if !errors.As(err, &ne) || ne.Op != "submit" {
			t.Errorf("Expected error attributed to submit, got %v", err)
		}
	})

	t.Run("owner cannot bid on own listing", func(t *testing.T) {
		_, _, err := r.Submit(sellListing(), SubmitInput{ID: "p", ProposerID: "seller-1", Price: decimal.NewFromInt(110), Quantity: 50, At: t0})
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("Expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("message limit counts characters", func(t *testing.T) {
		ok := strings.Repeat("₹", 200)
		if _, _, err := r.Submit(sellListing(), SubmitInput{ID: "p", ProposerID: "b", Price: decimal.NewFromInt(110), Quantity: 50, Message: ok, At: t0}); err != nil {
			t.Errorf("200 characters should be accepted, got %v", err)
		}
		_, _, err := r.Submit(sellListing(), SubmitInput{ID: "p", ProposerID: "b", Price: decimal.NewFromInt(110), Quantity: 50, Message: ok + "!", At: t0})
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("Expected ErrInvalidInput for 201 characters, got %v", err)
		}
	})
}

func TestNegotiationScenario(t *testing.T) {
	r := testRules()
	l := sellListing()
	p := submit(t, r, l)

	// Seller (non-proposing party) counters at 105
	if _, err := r.Counter(p, l, domain.PartySeller, decimal.NewFromInt(105), "meet me here", t0.Add(time.Hour)); err != nil {
		t.Fatalf("Counter failed: %v", err)
	}
	if p.Status != domain.StatusCountered {
		t.Errorf("Expected countered, got %s", p.Status)
	}
	if len(p.CounterHistory) != 1 || p.CounterHistory[0].Round != 1 || p.CounterHistory[0].By != domain.PartySeller {
		t.Fatalf("Unexpected counter history: %+v", p.CounterHistory)
	}

	// Buyer accepts the counter
	res, err := r.Accept(p, l, domain.PartyBuyer, t0.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	if p.Status != domain.StatusAccepted || p.ResolvedBy != domain.PartyBuyer {
		t.Errorf("Expected accepted by buyer, got %s by %s", p.Status, p.ResolvedBy)
	}
	// 105 * 50 = 5250, fee 105
	if !res.Pricing.Total.Equal(decimal.NewFromInt(5355)) {
		t.Errorf("Expected total 5355 at the countered price, got %v", res.Pricing.Total)
	}

	// Any further counter violates the terminal state
	_, err = r.Counter(p, l, domain.PartySeller, decimal.NewFromInt(120), "", t0.Add(3*time.Hour))
	if !errors.Is(err, domain.ErrTerminalStateViolation) {
		t.Fatalf("Expected ErrTerminalStateViolation, got %v", err)
	}
}

func TestCounter_Alternation(t *testing.T) {
	r := testRules()
	l := sellListing()

	t.Run("proposer cannot counter own bid", func(t *testing.T) {
		p := submit(t, r, l)
		_, err := r.Counter(p, l, domain.PartyBuyer, decimal.NewFromInt(108), "", t0)
		if !errors.Is(err, domain.ErrOutOfTurn) || !errors.Is(err, domain.ErrIllegalTransition) {
			t.Fatalf("Expected out-of-turn illegal transition, got %v", err)
		}
		if p.Status != domain.StatusPending || len(p.CounterHistory) != 0 {
			t.Error("Failed counter must not change the proposal")
		}
	})

	t.Run("no party counters twice in a row", func(t *testing.T) {
		p := submit(t, r, l)
		if _, err := r.Counter(p, l, domain.PartySeller, decimal.NewFromInt(106), "", t0); err != nil {
			t.Fatalf("Counter failed: %v", err)
		}
		if _, err := r.Counter(p, l, domain.PartySeller, decimal.NewFromInt(105), "", t0); !errors.Is(err, domain.ErrOutOfTurn) {
			t.Fatalf("Expected ErrOutOfTurn, got %v", err)
		}
		if _, err := r.Counter(p, l, domain.PartyBuyer, decimal.NewFromInt(104), "", t0); err != nil {
			t.Fatalf("Buyer counter failed: %v", err)
		}
		if p.CounterHistory[1].Round != 2 || p.CounterHistory[1].By != domain.PartyBuyer {
			t.Errorf("Unexpected second round: %+v", p.CounterHistory[1])
		}
	})

	t.Run("accepting own terms is out of turn", func(t *testing.T) {
		p := submit(t, r, l)
		if _, err := r.Accept(p, l, domain.PartyBuyer, t0); !errors.Is(err, domain.ErrOutOfTurn) {
			t.Fatalf("Expected ErrOutOfTurn, got %v", err)
		}
		if p.Status != domain.StatusPending {
			t.Error("Failed accept must not change the proposal")
		}
	})

	t.Run("unknown party", func(t *testing.T) {
		p := submit(t, r, l)
		if _, err := r.Counter(p, l, "broker", decimal.NewFromInt(105), "", t0); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("Expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestCounter_ValidatesAgainstCurrentListing(t *testing.T) {
	r := testRules()
	l := sellListing()
	p := submit(t, r, l)

	// Listing shrank below the proposal's quantity between rounds
	shrunk := l
	shrunk.Quantity = 40
	shrunk.MinLot = 10

	before := p.Clone()
	_, err := r.Counter(p, shrunk, domain.PartySeller, decimal.NewFromInt(105), "", t0)
	if !errors.Is(err, domain.ErrExceedsAvailableQuantity) {
		t.Fatalf("Expected ErrExceedsAvailableQuantity, got %v", err)
	}
	if !reflect.DeepEqual(before, p) {
		t.Error("Failed counter must leave the proposal unchanged")
	}

	if _, err := r.Accept(p, shrunk, domain.PartySeller, t0); !errors.Is(err, domain.ErrExceedsAvailableQuantity) {
		t.Fatalf("Accept should re-check the current listing, got %v", err)
	}

	_, err = r.Counter(p, l, domain.PartySeller, decimal.Zero, "", t0)
	if !errors.Is(err, domain.ErrInvalidPrice) {
		t.Errorf("Expected ErrInvalidPrice, got %v", err)
	}

	other := l
	other.ID = "listing-2"
	if _, err := r.Counter(p, other, domain.PartySeller, decimal.NewFromInt(105), "", t0); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for a foreign listing, got %v", err)
	}
}

func TestTerminalImmutability(t *testing.T) {
	r := testRules()
	l := sellListing()

	closers := map[domain.Status]func(p *domain.Proposal) error{
		domain.StatusAccepted: func(p *domain.Proposal) error {
			_, err := r.Accept(p, l, domain.PartySeller, t0)
			return err
		},
		domain.StatusRejected: func(p *domain.Proposal) error { return Reject(p, domain.PartySeller, t0) },
		domain.StatusExpired:  func(p *domain.Proposal) error { return Expire(p, t0) },
	}

	for status, closeFn := range closers {
		t.Run(string(status), func(t *testing.T) {
			p := submit(t, r, l)
			if err := closeFn(p); err != nil {
				t.Fatalf("closing failed: %v", err)
			}
			if p.Status != status {
				t.Fatalf("Expected %s, got %s", status, p.Status)
			}
			snapshot := p.Clone()

			attempts := []error{
				func() error { _, err := r.Accept(p, l, domain.PartySeller, t0); return err }(),
				func() error { _, err := r.Accept(p, l, domain.PartyBuyer, t0); return err }(),
				Reject(p, domain.PartyBuyer, t0),
				func() error {
					_, err := r.Counter(p, l, domain.PartySeller, decimal.NewFromInt(1), "", t0)
					return err
				}(),
				Expire(p, t0),
			}
			for i, err := range attempts {
				if !errors.Is(err, domain.ErrTerminalStateViolation) {
					t.Errorf("attempt %d: expected ErrTerminalStateViolation, got %v", i, err)
				}
			}
			if !reflect.DeepEqual(snapshot, p) {
				t.Error("Terminal proposal changed")
			}
		})
	}
}

func TestIllegalTransitionFromUnknownStatus(t *testing.T) {
	p := &domain.Proposal{Status: "draft"}
	if err := Expire(p, t0); !errors.Is(err, domain.ErrIllegalTransition) {
		t.Errorf("Expected ErrIllegalTransition, got %v", err)
	}
}

func TestReject_Withdrawal(t *testing.T) {
	r := testRules()
	p := submit(t, r, sellListing())
	if err := Reject(p, domain.PartyBuyer, t0); err != nil {
		t.Fatalf("Proposer should be able to withdraw, got %v", err)
	}
	if p.Status != domain.StatusRejected || p.ResolvedBy != domain.PartyBuyer {
		t.Errorf("Expected rejected by buyer, got %s by %s", p.Status, p.ResolvedBy)
	}
}

func TestProperty_MonotonicRounds(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		r := testRules()
		l := sellListing()
		p, _, err := r.Submit(l, SubmitInput{ID: "p", ProposerID: "buyer-1", Price: decimal.NewFromInt(100), Quantity: 10, At: t0})
		if err != nil {
			rt.Fatalf("Submit failed: %v", err)
		}

		steps := rapid.IntRange(1, 40).Draw(rt, "steps")
		successes := 0
		for i := 0; i < steps; i++ {
			by := rapid.SampledFrom([]domain.Party{domain.PartyBuyer, domain.PartySeller}).Draw(rt, fmt.Sprintf("by-%d", i))
			price := rapid.Int64Range(-5, 200).Draw(rt, fmt.Sprintf("price-%d", i))
			if _, err := r.Counter(p, l, by, decimal.NewFromInt(price), "", t0.Add(time.Duration(i)*time.Minute)); err == nil {
				successes++
			}
		}

		if len(p.CounterHistory) != successes {
			rt.Fatalf("expected %d counters, got %d", successes, len(p.CounterHistory))
		}
		last := p.ProposerParty
		for i, c := range p.CounterHistory {
			if c.Round != i+1 {
				rt.Fatalf("round %d at index %d", c.Round, i)
			}
			if c.By == last {
				rt.Fatalf("party %s countered twice in a row at round %d", c.By, c.Round)
			}
			last = c.By
		}
	})
}
