// Package policy holds the hosting system's rules for when an open
// bid/offer stops being negotiable.
package policy

import (
	"time"

	"unlisted_go/internal/domain"
)

// ExpiryPolicy decides whether an open proposal should be expired at now.
// It is called by the Sweeper for every open proposal and must be pure.
type ExpiryPolicy interface {
	ShouldExpire(p domain.Proposal, now time.Time) bool
}

// ExpiryFunc adapts a plain function to ExpiryPolicy.
type ExpiryFunc func(p domain.Proposal, now time.Time) bool

func (f ExpiryFunc) ShouldExpire(p domain.Proposal, now time.Time) bool {
	return f(p, now)
}
