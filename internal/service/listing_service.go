package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"unlisted_go/internal/domain"
	"unlisted_go/internal/infra/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ListingRepository is the listing side of the store.
type ListingRepository interface {
	CreateListing(ctx context.Context, l *domain.Listing) error
	GetListing(ctx context.Context, id string) (*domain.Listing, error)
	BoostListing(ctx context.Context, id string, until, now time.Time) error
	ListListings(ctx context.Context, f storage.ListingFilter) ([]domain.Listing, error)
}

// CompanyDirectory resolves company metadata; nil result means unknown.
type CompanyDirectory interface {
	GetCompany(symbol string) (*domain.CompanyInfo, error)
}

// ListingService manages sell posts and buy requests
type ListingService struct {
	repo      ListingRepository
	companies CompanyDirectory
	seq       Serializer
	boost     time.Duration
	now       func() time.Time
	newID     func() string
}

// NewListingService creates a ListingService. companies may be nil to skip
// the company check.
func NewListingService(repo ListingRepository, companies CompanyDirectory, seq Serializer, boost time.Duration) *ListingService {
	return &ListingService{
		repo:      repo,
		companies: companies,
		seq:       seq,
		boost:     boost,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// CreateListingRequest is a new sell post or buy request. MinLot 0 means 1.
type CreateListingRequest struct {
	Type          domain.ListingType
	CompanySymbol string
	OwnerID       string
	Price         decimal.Decimal
	Quantity      int64
	MinLot        int64
}

// Create validates and stores a listing
func (s *ListingService) Create(ctx context.Context, req CreateListingRequest) (domain.Listing, error) {
	if s.companies != nil {
		c, err := s.companies.GetCompany(req.CompanySymbol)
		if err != nil {
			return domain.Listing{}, err
		}
		if c == nil || !c.IsActive {
			return domain.Listing{}, &domain.NegotiationError{Op: "listing", Err: domain.ErrInvalidInput, Field: "companySymbol", Limit: req.CompanySymbol}
		}
	}

	minLot := req.MinLot
	if minLot == 0 {
		minLot = 1
	}
	now := s.now()
	l := domain.Listing{
		ID:            s.newID(),
		Type:          req.Type,
		CompanySymbol: req.CompanySymbol,
		OwnerID:       req.OwnerID,
		Price:         req.Price,
		Quantity:      req.Quantity,
		MinLot:        minLot,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := l.Validate(); err != nil {
		return domain.Listing{}, err
	}
	if err := s.repo.CreateListing(ctx, &l); err != nil {
		return domain.Listing{}, fmt.Errorf("create listing: %w", err)
	}

	slog.Info("Listing created",
		slog.String("listing_id", l.ID),
		slog.String("type", string(l.Type)),
		slog.String("company", l.CompanySymbol),
		slog.String("price", l.Price.String()),
		slog.Int64("quantity", l.Quantity),
	)
	return l, nil
}

// Boost extends the listing's visibility window. Only the owner may boost.
func (s *ListingService) Boost(ctx context.Context, id, ownerID string) (domain.Listing, error) {
	var out domain.Listing
	err := s.seq.Do(ctx, "listing:"+id, func() error {
		l, err := s.repo.GetListing(ctx, id)
		if err != nil {
			return err
		}
		if l.OwnerID != ownerID {
			return &domain.NegotiationError{Op: "boost", Err: domain.ErrInvalidInput, Field: "ownerId"}
		}
		now := s.now()
		until := l.Boost(now, s.boost)
		if err := s.repo.BoostListing(ctx, id, until, now); err != nil {
			return fmt.Errorf("boost listing %s: %w", id, err)
		}
		slog.Info("Listing boosted", slog.String("listing_id", id), slog.Time("until", until))

		// Re-read so the caller sees quantity as settled, not as of the first read.
		cur, err := s.repo.GetListing(ctx, id)
		if err != nil {
			return err
		}
		out = *cur
		return nil
	})
	return out, err
}

// Get returns one listing
func (s *ListingService) Get(ctx context.Context, id string) (domain.Listing, error) {
	l, err := s.repo.GetListing(ctx, id)
	if err != nil {
		return domain.Listing{}, err
	}
	return *l, nil
}

// List returns matching listings, boosted ones first, then newest first.
func (s *ListingService) List(ctx context.Context, f storage.ListingFilter) ([]domain.Listing, error) {
	listings, err := s.repo.ListListings(ctx, f)
	if err != nil {
		return nil, err
	}
	now := s.now()
	sort.SliceStable(listings, func(i, j int) bool {
		return listings[i].IsBoosted(now) && !listings[j].IsBoosted(now)
	})
	return listings, nil
}
