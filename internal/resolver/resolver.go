// Package resolver implements the degradation-chain engine that decides which
// backend tier serves a capability call. Each capability (lists, retrieval,
// calendar) builds one Chain of ranked backends at facade construction; every
// facade operation performs a single Walk over that chain and returns an
// Envelope instead of an error, so nothing below the facade boundary ever
// surfaces a failure to the caller.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
)

// Outcome classifies who (if anyone) served a chain walk.
type Outcome string

const (
	// Success means the preferred (rank-0) tier served the call.
	Success Outcome = "success"
	// Degraded means a fallback tier served the call.
	Degraded Outcome = "degraded"
	// Failure means no tier could serve the call.
	Failure Outcome = "failure"
)

// ErrNotFound is a terminal per-tier result. An id minted by one tier is
// meaningless to every other tier, so a walk stops instead of advancing when
// a backend reports it.
var ErrNotFound = errors.New("not found")

// Backend is one ranked implementation of a capability.
//
// Initialize is idempotent: calling it again after a success is a no-op, and
// a failure demotes the backend to not-ready until the chain is rebuilt
// (config reload). Operation-level failures must be returned from the
// capability call itself, never by flipping readiness.
type Backend interface {
	// Tier identifies the backend in envelopes and status output
	// (e.g. "remote", "local", "mock").
	Tier() string

	// Rank orders the backend within its chain. Lower is preferred.
	// Fixed at construction; rank is the only ordering criterion.
	Rank() int

	// Ready reports whether the backend can serve calls.
	Ready() bool

	// Initialize stands the backend up (open a client, verify a credential).
	Initialize(ctx context.Context) error

	// Health is a cheap, side-effect-free re-check used by status surfaces.
	Health(ctx context.Context) bool
}

// Chain is an ordered fallback sequence of backends for one capability.
// It is built once at facade construction and immutable thereafter; adding a
// tier means rebuilding the facade.
type Chain struct {
	capability string
	backends   []Backend
	log        *slog.Logger
}

// NewChain builds a chain for the named capability, ordering backends by
// ascending rank. An empty chain is valid: every walk over it fails
// immediately.
func NewChain(capability string, log *slog.Logger, backends ...Backend) *Chain {
	if log == nil {
		log = slog.Default()
	}
	sorted := make([]Backend, len(backends))
	copy(sorted, backends)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Rank() < sorted[j].Rank()
	})
	return &Chain{capability: capability, backends: sorted, log: log}
}

// Capability returns the capability name the chain serves.
func (c *Chain) Capability() string { return c.capability }

// Backends returns the chain's backends in rank order.
func (c *Chain) Backends() []Backend { return c.backends }

// Initialize stands up every backend in rank order. A backend that fails to
// initialize stays not-ready for the chain's lifetime; the walk will skip it.
func (c *Chain) Initialize(ctx context.Context) {
	for _, b := range c.backends {
		if err := b.Initialize(ctx); err != nil {
			c.log.Warn("backend initialization failed",
				"capability", c.capability, "tier", b.Tier(), "error", err)
			continue
		}
		c.log.Info("backend ready", "capability", c.capability, "tier", b.Tier())
	}
}

// TierStatus describes one backend for status/debug surfaces.
type TierStatus struct {
	Tier    string `json:"tier"`
	Rank    int    `json:"rank"`
	Ready   bool   `json:"ready"`
	Healthy bool   `json:"healthy"`
}

// Status re-checks backend health off the hot path and reports per-tier state.
func (c *Chain) Status(ctx context.Context) []TierStatus {
	statuses := make([]TierStatus, len(c.backends))
	for i, b := range c.backends {
		statuses[i] = TierStatus{
			Tier:    b.Tier(),
			Rank:    b.Rank(),
			Ready:   b.Ready(),
			Healthy: b.Ready() && b.Health(ctx),
		}
	}
	return statuses
}

// Envelope is the uniform result of a chain walk. ServedBy always names the
// tier that actually produced Payload; callers never guess which backend
// answered.
type Envelope[T any] struct {
	Outcome    Outcome `json:"outcome"`
	ServedBy   string  `json:"served_by"`
	Payload    T       `json:"payload"`
	Diagnostic string  `json:"diagnostic,omitempty"`
}

// OK reports whether any tier served the call.
func (e Envelope[T]) OK() bool { return e.Outcome != Failure }

// Walk tries each ready backend in rank order until one serves the call.
//
// A transient operation failure is logged and the walk advances; it never
// flips the backend's readiness. errors matching ErrNotFound are terminal:
// the walk stops at that tier and reports failure, because ids are not
// portable across tiers. An exhausted or empty chain yields a failure
// envelope carrying the last diagnostic.
func Walk[T any](ctx context.Context, c *Chain, op string, call func(ctx context.Context, b Backend) (T, error)) Envelope[T] {
	var zero T
	if len(c.backends) == 0 {
		return Envelope[T]{
			Outcome:    Failure,
			Payload:    zero,
			Diagnostic: fmt.Sprintf("%s: no backend implements %s", c.capability, op),
		}
	}

	lastDiag := fmt.Sprintf("%s: no ready backend for %s", c.capability, op)
	for i, b := range c.backends {
		if !b.Ready() {
			continue
		}

		payload, err := call(ctx, b)
		if err == nil {
			outcome := Success
			if i > 0 {
				outcome = Degraded
			}
			return Envelope[T]{Outcome: outcome, ServedBy: b.Tier(), Payload: payload}
		}

		if errors.Is(err, ErrNotFound) {
			return Envelope[T]{
				Outcome:    Failure,
				ServedBy:   b.Tier(),
				Payload:    zero,
				Diagnostic: fmt.Sprintf("%s %s: %v", c.capability, op, err),
			}
		}

		lastDiag = fmt.Sprintf("%s %s on tier %s: %v", c.capability, op, b.Tier(), err)
		c.log.Warn("operation failed, advancing to next tier",
			"capability", c.capability, "op", op, "tier", b.Tier(), "error", err)
	}

	return Envelope[T]{Outcome: Failure, Payload: zero, Diagnostic: lastDiag}
}
