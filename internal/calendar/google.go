package calendar

import (
	"context"
	"fmt"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/penny-assistant/penny/internal/resolver"
)

// GoogleConfig carries everything the Google Calendar tier needs.
type GoogleConfig struct {
	// CredentialsFile is the path to a service-account JSON key.
	CredentialsFile string
	// CalendarID is the calendar to read and write. "primary" by default.
	CalendarID string
}

// GoogleBackend serves the calendar capability from the Google Calendar API.
type GoogleBackend struct {
	resolver.TierState
	cfg GoogleConfig
	svc *gcal.Service
}

var _ Backend = (*GoogleBackend)(nil)

// NewGoogleBackend builds the preferred calendar tier from config. The API
// client is not created until Initialize.
func NewGoogleBackend(cfg GoogleConfig) *GoogleBackend {
	if cfg.CalendarID == "" {
		cfg.CalendarID = "primary"
	}
	return &GoogleBackend{
		TierState: resolver.NewTierState("remote", 0),
		cfg:       cfg,
	}
}

// Initialize builds the Calendar API client. Missing or invalid credentials
// demote the tier until the next config reload.
func (b *GoogleBackend) Initialize(ctx context.Context) error {
	return b.InitOnce(func() error {
		if b.cfg.CredentialsFile == "" {
			return fmt.Errorf("no credentials file configured")
		}
		svc, err := gcal.NewService(ctx,
			option.WithCredentialsFile(b.cfg.CredentialsFile),
			option.WithScopes(gcal.CalendarScope),
		)
		if err != nil {
			return fmt.Errorf("creating calendar client: %w", err)
		}
		b.svc = svc
		return nil
	})
}

func (b *GoogleBackend) Health(ctx context.Context) bool {
	if b.svc == nil {
		return false
	}
	_, err := b.svc.CalendarList.Get(b.cfg.CalendarID).Context(ctx).Do()
	return err == nil
}

// Upcoming lists the next events on the configured calendar. The API returns
// them ordered by start time when singleEvents is set.
func (b *GoogleBackend) Upcoming(ctx context.Context, ownerID string, max int) ([]Event, error) {
	resp, err := b.svc.Events.List(b.cfg.CalendarID).
		TimeMin(time.Now().UTC().Format(time.RFC3339)).
		MaxResults(int64(max)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("listing calendar events: %w", err)
	}

	events := make([]Event, 0, len(resp.Items))
	for _, item := range resp.Items {
		start, err := parseEventTime(item.Start)
		if err != nil {
			return nil, fmt.Errorf("parsing start of event %s: %w", item.Id, err)
		}
		end, err := parseEventTime(item.End)
		if err != nil {
			return nil, fmt.Errorf("parsing end of event %s: %w", item.Id, err)
		}
		events = append(events, Event{
			ID:          item.Id,
			Title:       item.Summary,
			Start:       start,
			End:         end,
			Location:    item.Location,
			Description: item.Description,
		})
	}
	return events, nil
}

// CreateEvent inserts the event into the configured calendar.
func (b *GoogleBackend) CreateEvent(ctx context.Context, ownerID string, ev Event) (Event, error) {
	if ev.End.IsZero() {
		ev.End = ev.Start.Add(time.Hour)
	}
	created, err := b.svc.Events.Insert(b.cfg.CalendarID, &gcal.Event{
		Summary:     ev.Title,
		Location:    ev.Location,
		Description: ev.Description,
		Start:       &gcal.EventDateTime{DateTime: ev.Start.Format(time.RFC3339)},
		End:         &gcal.EventDateTime{DateTime: ev.End.Format(time.RFC3339)},
	}).Context(ctx).Do()
	if err != nil {
		return Event{}, fmt.Errorf("inserting calendar event: %w", err)
	}
	ev.ID = created.Id
	return ev, nil
}

// parseEventTime handles both timed events (DateTime) and all-day events
// (Date only).
func parseEventTime(t *gcal.EventDateTime) (time.Time, error) {
	if t == nil {
		return time.Time{}, fmt.Errorf("missing event time")
	}
	if t.DateTime != "" {
		return time.Parse(time.RFC3339, t.DateTime)
	}
	return time.Parse("2006-01-02", t.Date)
}
