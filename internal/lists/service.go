// Package lists implements the list-storage capability: user-owned named
// lists served by a degradation chain of a remote document store and a local
// SQLite tier.
//
// Ids are minted by the tier that created the list and are not portable
// across tiers: a list created while degraded to the local tier cannot be
// addressed on the remote tier after it recovers.
package lists

import (
	"context"
	"log/slog"
	"time"

	"github.com/penny-assistant/penny/internal/resolver"
)

// List is the capability's view of a stored list.
type List struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	Items     []string  `json:"items"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Backend is one tier of the list-storage capability.
type Backend interface {
	resolver.Backend

	CreateList(ctx context.Context, ownerID, name string) (string, error)
	Lists(ctx context.Context, ownerID string) ([]List, error)
	UpdateItems(ctx context.Context, id string, items []string) error
	DeleteList(ctx context.Context, id string) error
}

// Service is the list-storage facade. Every operation performs one chain
// walk and returns an envelope; callers always receive a value.
type Service struct {
	chain *resolver.Chain
	log   *slog.Logger
}

// NewService builds the facade over the given tiers. The chain is fixed for
// the service's lifetime; a config reload means constructing a new Service.
func NewService(log *slog.Logger, backends ...Backend) *Service {
	rb := make([]resolver.Backend, len(backends))
	for i, b := range backends {
		rb[i] = b
	}
	return &Service{
		chain: resolver.NewChain("lists", log, rb...),
		log:   log,
	}
}

// Initialize stands up every tier. Failed tiers stay demoted until rebuild.
func (s *Service) Initialize(ctx context.Context) {
	s.chain.Initialize(ctx)
}

// Status reports per-tier readiness for debug surfaces.
func (s *Service) Status(ctx context.Context) []resolver.TierStatus {
	return s.chain.Status(ctx)
}

// Create makes a new empty list for the owner and returns its id.
func (s *Service) Create(ctx context.Context, ownerID, name string) resolver.Envelope[string] {
	return resolver.Walk(ctx, s.chain, "create", func(ctx context.Context, b resolver.Backend) (string, error) {
		return b.(Backend).CreateList(ctx, ownerID, name)
	})
}

// ForOwner returns all of the owner's lists on the serving tier.
func (s *Service) ForOwner(ctx context.Context, ownerID string) resolver.Envelope[[]List] {
	return resolver.Walk(ctx, s.chain, "forOwner", func(ctx context.Context, b resolver.Backend) ([]List, error) {
		return b.(Backend).Lists(ctx, ownerID)
	})
}

// UpdateItems replaces a list's items. A not-found is terminal for the tier
// that reported it: the id cannot exist on any other tier.
func (s *Service) UpdateItems(ctx context.Context, id string, items []string) resolver.Envelope[string] {
	return resolver.Walk(ctx, s.chain, "updateItems", func(ctx context.Context, b resolver.Backend) (string, error) {
		if err := b.(Backend).UpdateItems(ctx, id, items); err != nil {
			return "", err
		}
		return id, nil
	})
}

// Delete removes a list. Not-found is terminal, as with UpdateItems.
func (s *Service) Delete(ctx context.Context, id string) resolver.Envelope[string] {
	return resolver.Walk(ctx, s.chain, "delete", func(ctx context.Context, b resolver.Backend) (string, error) {
		if err := b.(Backend).DeleteList(ctx, id); err != nil {
			return "", err
		}
		return id, nil
	})
}
