package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"unlisted_go/internal/domain"
	"unlisted_go/internal/event"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Options selects the database. Driver is "sqlite" (Path) or "postgres" (DSN).
type Options struct {
	Driver string
	Path   string
	DSN    string
}

// Storage persists listings, proposals with their counter history, the
// transition journal and company metadata.
type Storage struct {
	db *gorm.DB
}

// NewStorage opens the database and migrates the schema.
func NewStorage(opts Options) (*Storage, error) {
	var dialector gorm.Dialector
	switch opts.Driver {
	case "", "sqlite":
		if opts.Path == "" {
			return nil, &domain.ConfigError{Field: "storage.path", Err: errors.New("empty")}
		}
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create DB directory: %w", err)
		}
		// Pure Go SQLite; foreign keys on so counters cascade with their proposal
		dialector = sqlite.Open(opts.Path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	case "postgres":
		dialector = postgres.Open(opts.DSN)
	default:
		return nil, &domain.ConfigError{Field: "storage.driver", Err: fmt.Errorf("unsupported driver %q", opts.Driver)}
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if opts.Driver != "postgres" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get database handle: %w", err)
		}
		// SQLite allows a single writer
		sqlDB.SetMaxOpenConns(1)
	}

	if err := migrate(db); err != nil {
		return nil, err
	}

	return &Storage{db: db}, nil
}

func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&domain.Listing{},
		&domain.Proposal{},
		&domain.CounterRecord{},
		&event.Transition{},
		&domain.CompanyInfo{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ======================================================================================
// Listing Operations
// ======================================================================================

// ListingFilter narrows ListListings. Zero values match everything.
type ListingFilter struct {
	Type          domain.ListingType
	CompanySymbol string
	OwnerID       string
}

// CreateListing inserts a new listing
func (s *Storage) CreateListing(ctx context.Context, l *domain.Listing) error {
	return s.db.WithContext(ctx).Create(l).Error
}

// GetListing reads the listing as it is now.
func (s *Storage) GetListing(ctx context.Context, id string) (*domain.Listing, error) {
	var l domain.Listing
	err := s.db.WithContext(ctx).First(&l, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrListingNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// ListListings returns listings matching f, newest first.
func (s *Storage) ListListings(ctx context.Context, f ListingFilter) ([]domain.Listing, error) {
	q := s.db.WithContext(ctx).Model(&domain.Listing{})
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.CompanySymbol != "" {
		q = q.Where("company_symbol = ?", f.CompanySymbol)
	}
	if f.OwnerID != "" {
		q = q.Where("owner_id = ?", f.OwnerID)
	}
	var listings []domain.Listing
	err := q.Order("created_at DESC").Find(&listings).Error
	return listings, err
}

// BoostListing writes the boost window of listing id and nothing else.
// Quantity is owned by trade settlement and must not be written back from a read.
func (s *Storage) BoostListing(ctx context.Context, id string, until, now time.Time) error {
	res := s.db.WithContext(ctx).Model(&domain.Listing{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{"boosted_until": until, "updated_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrListingNotFound, id)
	}
	return nil
}

// ReduceListingQuantity takes qty shares off a listing after a trade settles.
// It fails with ErrExceedsAvailableQuantity rather than going negative.
func (s *Storage) ReduceListingQuantity(ctx context.Context, id string, qty int64) error {
	if qty <= 0 {
		return &domain.NegotiationError{Op: "reduce", Err: domain.ErrInvalidInput, Field: "quantity"}
	}
	res := s.db.WithContext(ctx).Model(&domain.Listing{}).
		Where("id = ? AND quantity >= ?", id, qty).
		Update("quantity", gorm.Expr("quantity - ?", qty))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		l, err := s.GetListing(ctx, id)
		if err != nil {
			return err
		}
		return &domain.NegotiationError{Op: "reduce", Err: domain.ErrExceedsAvailableQuantity, Field: "quantity", Limit: fmt.Sprint(l.Quantity)}
	}
	return nil
}

// ======================================================================================
// Proposal Operations
// ======================================================================================

// SaveProposal writes p, any counter rounds not yet stored, and the journal
// entry tr in one transaction. Stored counters are never rewritten.
func (s *Storage) SaveProposal(ctx context.Context, p *domain.Proposal, tr *event.Transition) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(p).Error; err != nil {
			return fmt.Errorf("save proposal %s: %w", p.ID, err)
		}
		for i := range p.CounterHistory {
			c := &p.CounterHistory[i]
			if c.ID != 0 {
				continue
			}
			c.ProposalID = p.ID
			if err := tx.Create(c).Error; err != nil {
				return fmt.Errorf("save round %d of %s: %w", c.Round, p.ID, err)
			}
		}
		if tr != nil {
			if err := tx.Create(tr).Error; err != nil {
				return fmt.Errorf("journal %s of %s: %w", tr.Kind, p.ID, err)
			}
		}
		return nil
	})
}

func preloadRounds(db *gorm.DB) *gorm.DB {
	return db.Preload("CounterHistory", func(db *gorm.DB) *gorm.DB {
		return db.Order("round ASC")
	})
}

// GetProposal loads a proposal with its rounds in order.
func (s *Storage) GetProposal(ctx context.Context, id string) (*domain.Proposal, error) {
	var p domain.Proposal
	err := preloadRounds(s.db.WithContext(ctx)).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrProposalNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProposalsByListing returns every proposal against a listing, newest first.
func (s *Storage) ListProposalsByListing(ctx context.Context, listingID string) ([]domain.Proposal, error) {
	var ps []domain.Proposal
	err := preloadRounds(s.db.WithContext(ctx)).
		Where("listing_id = ?", listingID).
		Order("created_at DESC").
		Find(&ps).Error
	return ps, err
}

// ListProposalsByProposer returns every proposal a user made, newest first.
func (s *Storage) ListProposalsByProposer(ctx context.Context, proposerID string) ([]domain.Proposal, error) {
	var ps []domain.Proposal
	err := preloadRounds(s.db.WithContext(ctx)).
		Where("proposer_id = ?", proposerID).
		Order("created_at DESC").
		Find(&ps).Error
	return ps, err
}

// ListOpenProposals returns every pending or countered proposal.
func (s *Storage) ListOpenProposals(ctx context.Context) ([]domain.Proposal, error) {
	var ps []domain.Proposal
	err := preloadRounds(s.db.WithContext(ctx)).
		Where("status IN ?", []domain.Status{domain.StatusPending, domain.StatusCountered}).
		Order("created_at ASC").
		Find(&ps).Error
	return ps, err
}

// ListTransitions returns the journal of one proposal in commit order.
func (s *Storage) ListTransitions(ctx context.Context, proposalID string) ([]event.Transition, error) {
	var ts []event.Transition
	err := s.db.WithContext(ctx).Where("proposal_id = ?", proposalID).Order("id ASC").Find(&ts).Error
	return ts, err
}

// ======================================================================================
// Company Operations
// ======================================================================================

// UpsertCompany creates or updates company metadata
func (s *Storage) UpsertCompany(c *domain.CompanyInfo) error {
	return s.db.Save(c).Error
}

// GetCompany retrieves company metadata by symbol
func (s *Storage) GetCompany(symbol string) (*domain.CompanyInfo, error) {
	var c domain.CompanyInfo
	err := s.db.First(&c, "symbol = ?", symbol).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // Not found is not an error
	}
	return &c, err
}

// GetAllCompanies retrieves all companies
func (s *Storage) GetAllCompanies() ([]domain.CompanyInfo, error) {
	var companies []domain.CompanyInfo
	err := s.db.Order("symbol ASC").Find(&companies).Error
	return companies, err
}

// SetCompanyActive opens or closes a company for new listings
func (s *Storage) SetCompanyActive(symbol string, active bool) error {
	res := s.db.Model(&domain.CompanyInfo{}).Where("symbol = ?", symbol).Update("is_active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("company %s not found", symbol)
	}
	return nil
}
