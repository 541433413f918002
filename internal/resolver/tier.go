package resolver

// TierState carries the bookkeeping half of a Backend: identity, rank, and
// readiness with idempotent initialization. Capability backends embed it and
// implement only their domain operations plus Health.
type TierState struct {
	tier string
	rank int

	attempted bool
	initErr   error
}

// NewTierState names a tier and fixes its rank.
func NewTierState(tier string, rank int) TierState {
	return TierState{tier: tier, rank: rank}
}

func (s *TierState) Tier() string { return s.tier }
func (s *TierState) Rank() int    { return s.rank }

// Ready reports whether initialization was attempted and succeeded.
func (s *TierState) Ready() bool { return s.attempted && s.initErr == nil }

// InitOnce runs fn on the first call and records the result. Later calls
// return the recorded result without re-running fn: a failed initialization
// leaves the tier not-ready until the chain is rebuilt.
func (s *TierState) InitOnce(fn func() error) error {
	if s.attempted {
		return s.initErr
	}
	s.attempted = true
	s.initErr = fn()
	return s.initErr
}
