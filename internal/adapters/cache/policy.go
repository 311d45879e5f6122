package cache

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Amund211/warmstart/internal/domain"
)

const DefaultExpiration = 30 * time.Minute

type policyKind int

const (
	absoluteExpiration policyKind = iota + 1
	slidingExpiration
)

func (k policyKind) String() string {
	switch k {
	case absoluteExpiration:
		return "absolute"
	case slidingExpiration:
		return "sliding"
	}
	return "unknown"
}

// Policy describes when a cached entry becomes stale.
//
// An absolute policy fixes a deadline at insertion time. A sliding policy pushes the deadline
// forward on every successful read, so the entry only expires after a full period of idleness.
type Policy struct {
	kind     policyKind
	duration time.Duration
}

func NewAbsolutePolicy(offset time.Duration) (Policy, error) {
	if offset <= 0 {
		return Policy{}, fmt.Errorf("%w: absolute expiration must be greater than 0, got %s", domain.ErrInvalidConfiguration, offset)
	}
	return Policy{kind: absoluteExpiration, duration: offset}, nil
}

func NewSlidingPolicy(duration time.Duration) (Policy, error) {
	if duration <= 0 {
		return Policy{}, fmt.Errorf("%w: sliding expiration must be greater than 0, got %s", domain.ErrInvalidConfiguration, duration)
	}
	return Policy{kind: slidingExpiration, duration: duration}, nil
}

func (p Policy) IsSliding() bool {
	return p.kind == slidingExpiration
}

func (p Policy) Duration() time.Duration {
	return p.duration
}

func (p Policy) String() string {
	return fmt.Sprintf("%s(%s)", p.kind, p.duration)
}

func (p Policy) valid() bool {
	return p.kind != 0 && p.duration > 0
}

// Start the policy state of an entry inserted at now
func (p Policy) start(now time.Time) *policyState {
	state := &policyState{kind: p.kind, duration: p.duration}
	state.mark.Store(now.UnixNano())
	return state
}

// policyState is the per-entry expiration bookkeeping.
//
// mark holds the insertion time for absolute entries and the last access for sliding ones.
type policyState struct {
	kind     policyKind
	duration time.Duration
	mark     atomic.Int64
}

func (s *policyState) expiredAt(mark int64, now time.Time) bool {
	return now.UnixNano()-mark >= int64(s.duration)
}

func (s *policyState) expired(now time.Time) bool {
	return s.expiredAt(s.mark.Load(), now)
}

// Report whether the entry is still fresh at now, renewing sliding entries.
//
// The renewal is published before touch returns, so a concurrent expiration check
// observes either the old or the renewed mark, never a stale entry that was just served.
func (s *policyState) touch(now time.Time) bool {
	for {
		mark := s.mark.Load()
		if s.expiredAt(mark, now) {
			return false
		}
		if s.kind != slidingExpiration {
			return true
		}
		if now.UnixNano() <= mark {
			// Someone renewed with a later clock read
			return true
		}
		if s.mark.CompareAndSwap(mark, now.UnixNano()) {
			return true
		}
	}
}

func (s *policyState) expiresAt() time.Time {
	return time.Unix(0, s.mark.Load()).Add(s.duration)
}
