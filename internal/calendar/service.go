// Package calendar implements the calendar capability: listing upcoming
// events and creating new ones. The remote tier talks to Google Calendar;
// the local tier serves events persisted in SQLite, padded with generated
// placeholders so schedule views always have content.
package calendar

import (
	"context"
	"log/slog"
	"time"

	"github.com/penny-assistant/penny/internal/resolver"
)

// Event is a calendar entry.
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Location    string    `json:"location,omitempty"`
	Description string    `json:"description,omitempty"`
}

// Backend is one tier of the calendar capability. Upcoming returns events
// strictly in the future, ordered by ascending start time.
type Backend interface {
	resolver.Backend

	Upcoming(ctx context.Context, ownerID string, max int) ([]Event, error)
	CreateEvent(ctx context.Context, ownerID string, ev Event) (Event, error)
}

// Service is the calendar facade.
type Service struct {
	chain *resolver.Chain
	log   *slog.Logger
}

// NewService builds the facade over the given tiers.
func NewService(log *slog.Logger, backends ...Backend) *Service {
	rb := make([]resolver.Backend, len(backends))
	for i, b := range backends {
		rb[i] = b
	}
	return &Service{
		chain: resolver.NewChain("calendar", log, rb...),
		log:   log,
	}
}

// Initialize stands up every tier.
func (s *Service) Initialize(ctx context.Context) {
	s.chain.Initialize(ctx)
}

// Status reports per-tier readiness for debug surfaces.
func (s *Service) Status(ctx context.Context) []resolver.TierStatus {
	return s.chain.Status(ctx)
}

// Upcoming lists the owner's next events, ascending by start time.
func (s *Service) Upcoming(ctx context.Context, ownerID string, max int) resolver.Envelope[[]Event] {
	return resolver.Walk(ctx, s.chain, "upcoming", func(ctx context.Context, b resolver.Backend) ([]Event, error) {
		return b.(Backend).Upcoming(ctx, ownerID, max)
	})
}

// Create adds an event on the serving tier and returns it with its ID set.
func (s *Service) Create(ctx context.Context, ownerID string, ev Event) resolver.Envelope[Event] {
	return resolver.Walk(ctx, s.chain, "create_event", func(ctx context.Context, b resolver.Backend) (Event, error) {
		return b.(Backend).CreateEvent(ctx, ownerID, ev)
	})
}
