package storage

import (
	"errors"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// migrations are not re-applied.
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

func TestListRoundTrip(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	l := List{ID: "l1", OwnerID: "alice", Name: "groceries", Items: `["milk"]`, CreatedAt: now, UpdatedAt: now}
	if err := s.CreateList(l); err != nil {
		t.Fatalf("CreateList: %v", err)
	}

	got, err := s.ListsForOwner("alice")
	if err != nil {
		t.Fatalf("ListsForOwner: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d lists, want 1", len(got))
	}
	if got[0].Name != "groceries" || got[0].Items != `["milk"]` {
		t.Errorf("round trip mismatch: %+v", got[0])
	}

	// Other owners see nothing.
	other, err := s.ListsForOwner("bob")
	if err != nil {
		t.Fatalf("ListsForOwner(bob): %v", err)
	}
	if len(other) != 0 {
		t.Errorf("bob sees %d of alice's lists", len(other))
	}
}

func TestListsOrderedByCreation(t *testing.T) {
	s := openTestStore(t)
	base := time.Now().UTC()

	for i, name := range []string{"first", "second", "third"} {
		l := List{
			ID: name, OwnerID: "alice", Name: name, Items: "[]",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
			UpdatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := s.CreateList(l); err != nil {
			t.Fatalf("CreateList(%s): %v", name, err)
		}
	}

	got, err := s.ListsForOwner("alice")
	if err != nil {
		t.Fatalf("ListsForOwner: %v", err)
	}
	if len(got) != 3 || got[0].Name != "first" || got[2].Name != "third" {
		t.Errorf("lists out of order: %+v", got)
	}
}

func TestUpdateListItems(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()

	if err := s.CreateList(List{ID: "l1", OwnerID: "alice", Name: "x", Items: "[]", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("CreateList: %v", err)
	}

	if err := s.UpdateListItems("l1", `["a","b"]`); err != nil {
		t.Fatalf("UpdateListItems: %v", err)
	}
	got, _ := s.ListsForOwner("alice")
	if got[0].Items != `["a","b"]` {
		t.Errorf("items = %q", got[0].Items)
	}

	if err := s.UpdateListItems("missing", "[]"); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateListItems(missing) = %v, want ErrNotFound", err)
	}
}

func TestDeleteList(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()

	if err := s.CreateList(List{ID: "l1", OwnerID: "alice", Name: "x", Items: "[]", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("CreateList: %v", err)
	}
	if err := s.DeleteList("l1"); err != nil {
		t.Fatalf("DeleteList: %v", err)
	}
	if err := s.DeleteList("l1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteList = %v, want ErrNotFound", err)
	}
}

func TestUpcomingEvents(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	events := []Event{
		{ID: "past", OwnerID: "alice", Title: "past", Start: now.Add(-time.Hour), End: now.Add(-30 * time.Minute), CreatedAt: now},
		{ID: "soon", OwnerID: "alice", Title: "soon", Start: now.Add(time.Hour), End: now.Add(2 * time.Hour), CreatedAt: now},
		{ID: "later", OwnerID: "alice", Title: "later", Start: now.Add(48 * time.Hour), End: now.Add(49 * time.Hour), CreatedAt: now},
		{ID: "other", OwnerID: "bob", Title: "other", Start: now.Add(time.Hour), End: now.Add(2 * time.Hour), CreatedAt: now},
	}
	for _, e := range events {
		if err := s.SaveEvent(e); err != nil {
			t.Fatalf("SaveEvent(%s): %v", e.ID, err)
		}
	}

	got, err := s.UpcomingEvents("alice", now, 10)
	if err != nil {
		t.Fatalf("UpcomingEvents: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2 (future, alice only)", len(got))
	}
	if got[0].ID != "soon" || got[1].ID != "later" {
		t.Errorf("events out of order: %s, %s", got[0].ID, got[1].ID)
	}
}

func TestJobQueueRoundTrip(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j1", Type: "ingest_document", PayloadJSON: `{"path":"a.pdf"}`}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	got, err := s.ClaimNextJob([]string{"ingest_document"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got == nil {
		t.Fatal("ClaimNextJob returned nil")
	}
	if got.Status != "running" || got.PayloadJSON != `{"path":"a.pdf"}` {
		t.Errorf("claimed job = %+v", got)
	}

	// A claimed job is not claimable again.
	again, err := s.ClaimNextJob([]string{"ingest_document"})
	if err != nil {
		t.Fatalf("second ClaimNextJob: %v", err)
	}
	if again != nil {
		t.Errorf("claimed a running job: %+v", again)
	}

	if err := s.CompleteJob("j1"); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}
}

func TestClaimNextJobEmpty(t *testing.T) {
	s := openTestStore(t)

	got, err := s.ClaimNextJob([]string{"ingest_document"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got != nil {
		t.Errorf("claimed from empty queue: %+v", got)
	}
}

func TestFailJobRetriesThenFails(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j1", Type: "ingest_document", PayloadJSON: "{}", MaxAttempts: 2}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := s.ClaimNextJob([]string{"ingest_document"}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}

	// First failure: back to pending with backoff.
	if err := s.FailJob("j1", "boom"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}
	var status string
	if err := s.db.QueryRow(`SELECT status FROM jobs WHERE id = 'j1'`).Scan(&status); err != nil {
		t.Fatalf("reading status: %v", err)
	}
	if status != "pending" {
		t.Errorf("status after first failure = %q, want pending", status)
	}

	// Second failure exhausts max_attempts.
	if err := s.FailJob("j1", "boom again"); err != nil {
		t.Fatalf("second FailJob: %v", err)
	}
	if err := s.db.QueryRow(`SELECT status FROM jobs WHERE id = 'j1'`).Scan(&status); err != nil {
		t.Fatalf("reading status: %v", err)
	}
	if status != "failed" {
		t.Errorf("status after exhausting attempts = %q, want failed", status)
	}
}
