package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// List is a user-owned named list. Items is a JSON array stored as text.
type List struct {
	ID        string
	OwnerID   string
	Name      string
	Items     string // JSON array stored as text
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Job is a queued unit of background work (document ingestion).
type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}

// Event is a calendar event persisted by the local calendar tier.
type Event struct {
	ID          string
	OwnerID     string
	Title       string
	Start       time.Time
	End         time.Time
	Location    string
	Description string
	CreatedAt   time.Time
}
