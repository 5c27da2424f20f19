package policy

import (
	"time"

	"unlisted_go/internal/domain"
)

// TTLPolicy expires a proposal once TTL has passed since its last activity
// (the latest counter, or submission). Every counter restarts the clock.
type TTLPolicy struct {
	TTL time.Duration
}

// NewTTLPolicy panics on a non-positive ttl; config validation rejects those first.
func NewTTLPolicy(ttl time.Duration) *TTLPolicy {
	if ttl <= 0 {
		panic("TTLPolicy: ttl must be positive")
	}
	return &TTLPolicy{TTL: ttl}
}

func (p *TTLPolicy) ShouldExpire(prop domain.Proposal, now time.Time) bool {
	if !prop.Status.IsOpen() {
		return false
	}
	return !now.Before(prop.LastActivity().Add(p.TTL))
}

// Deadline returns when prop expires under this policy.
func (p *TTLPolicy) Deadline(prop domain.Proposal) time.Time {
	return prop.LastActivity().Add(p.TTL)
}
