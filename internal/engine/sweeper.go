package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"unlisted_go/internal/domain"
	"unlisted_go/internal/policy"
)

// OpenProposalLister returns every proposal still pending or countered.
type OpenProposalLister interface {
	ListOpenProposals(ctx context.Context) ([]domain.Proposal, error)
}

// Expirer expires proposal id if due still holds for its state at the time
// the expiry is applied. expired is false when due said no.
type Expirer interface {
	ExpireIf(ctx context.Context, id string, due func(domain.Proposal) bool) (p domain.Proposal, expired bool, err error)
}

// Sweeper periodically expires open proposals the policy considers stale.
type Sweeper struct {
	lister   OpenProposalLister
	expirer  Expirer
	policy   policy.ExpiryPolicy
	interval time.Duration
	now      func() time.Time
}

func NewSweeper(lister OpenProposalLister, expirer Expirer, pol policy.ExpiryPolicy, interval time.Duration) *Sweeper {
	return &Sweeper{
		lister:   lister,
		expirer:  expirer,
		policy:   pol,
		interval: interval,
		now:      time.Now,
	}
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	slog.Info("Expiry sweeper started", slog.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Expiry sweeper stopping...")
			return
		case <-ticker.C:
			n, err := s.SweepOnce(ctx)
			if err != nil {
				slog.Warn("Expiry sweep incomplete", slog.Int("expired", n), slog.Any("error", err))
			} else if n > 0 {
				slog.Info("Expired stale proposals", slog.Int("count", n))
			}
		}
	}
}

// SweepOnce expires every open proposal due under the policy and returns how
// many were expired. A proposal closed by someone else in the meantime is
// skipped; other failures are collected and returned together.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	open, err := s.lister.ListOpenProposals(ctx)
	if err != nil {
		return 0, fmt.Errorf("list open proposals: %w", err)
	}

	now := s.now()
	due := func(p domain.Proposal) bool { return s.policy.ShouldExpire(p, now) }

	var errs []error
	expired := 0
	for _, p := range open {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if !due(p) {
			continue
		}
		_, ok, err := s.expirer.ExpireIf(ctx, p.ID, due)
		switch {
		case errors.Is(err, domain.ErrTerminalStateViolation):
			continue
		case err != nil:
			errs = append(errs, fmt.Errorf("expire %s: %w", p.ID, err))
		case ok:
			expired++
		}
	}
	return expired, errors.Join(errs...)
}
