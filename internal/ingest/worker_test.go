package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/penny-assistant/penny/internal/resolver"
	"github.com/penny-assistant/penny/internal/retrieval"
	"github.com/penny-assistant/penny/internal/storage"
)

// fakeRetriever records what the worker embeds and stores.
type fakeRetriever struct {
	embedded   []string
	storedMeta []retrieval.Meta
	embedFail  bool
	storeFail  bool
}

func (f *fakeRetriever) Embed(ctx context.Context, chunks []string) resolver.Envelope[[]retrieval.Vector] {
	if f.embedFail {
		return resolver.Envelope[[]retrieval.Vector]{Outcome: resolver.Failure, Diagnostic: "embed down"}
	}
	f.embedded = append(f.embedded, chunks...)
	vectors := make([]retrieval.Vector, len(chunks))
	for i := range vectors {
		vectors[i] = retrieval.Vector{ID: chunks[i], Values: []float32{1}}
	}
	return resolver.Envelope[[]retrieval.Vector]{Outcome: resolver.Success, ServedBy: "fake", Payload: vectors}
}

func (f *fakeRetriever) Store(ctx context.Context, vectors []retrieval.Vector, meta []retrieval.Meta) resolver.Envelope[retrieval.StoreResult] {
	if f.storeFail {
		return resolver.Envelope[retrieval.StoreResult]{Outcome: resolver.Failure, Diagnostic: "store down"}
	}
	f.storedMeta = append(f.storedMeta, meta...)
	return resolver.Envelope[retrieval.StoreResult]{
		Outcome:  resolver.Success,
		ServedBy: "fake",
		Payload:  retrieval.StoreResult{StoredCount: len(vectors)},
	}
}

// fixedRetriever is a RetrieverSource that always hands out the same fake.
func fixedRetriever(f *fakeRetriever) RetrieverSource {
	return func() Retriever { return f }
}

func openTestQueue(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func writeDoc(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing doc: %v", err)
	}
	return path
}

func jobStatus(t *testing.T, s *storage.Store, id string) string {
	t.Helper()
	var status string
	if err := s.DB().QueryRow(`SELECT status FROM jobs WHERE id = ?`, id).Scan(&status); err != nil {
		t.Fatalf("reading job status: %v", err)
	}
	return status
}

func TestRunOnceProcessesDocument(t *testing.T) {
	store := openTestQueue(t)
	ret := &fakeRetriever{}
	w := NewWorker(store, fixedRetriever(ret), 0)

	path := writeDoc(t, "First fact.\n\nSecond fact.")
	jobID, err := EnqueueDocument(store, path, "alice")
	if err != nil {
		t.Fatalf("EnqueueDocument: %v", err)
	}

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !done {
		t.Fatal("RunOnce claimed nothing")
	}

	if len(ret.embedded) == 0 {
		t.Fatal("nothing was embedded")
	}
	if len(ret.storedMeta) != len(ret.embedded) {
		t.Errorf("stored %d meta for %d chunks", len(ret.storedMeta), len(ret.embedded))
	}
	for _, m := range ret.storedMeta {
		if m.OwnerID != "alice" || m.Source != path {
			t.Errorf("meta = %+v", m)
		}
	}
	if got := jobStatus(t, store, jobID); got != "completed" {
		t.Errorf("job status = %q, want completed", got)
	}
}

func TestRunOnceEmptyQueue(t *testing.T) {
	w := NewWorker(openTestQueue(t), fixedRetriever(&fakeRetriever{}), 0)

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if done {
		t.Error("RunOnce reported work on an empty queue")
	}
}

func TestRunOnceMissingFileFailsJob(t *testing.T) {
	store := openTestQueue(t)
	w := NewWorker(store, fixedRetriever(&fakeRetriever{}), 0)

	jobID, err := EnqueueDocument(store, "/no/such/file.txt", "alice")
	if err != nil {
		t.Fatalf("EnqueueDocument: %v", err)
	}

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !done {
		t.Fatal("RunOnce claimed nothing")
	}
	// Back to pending for retry, not done.
	if got := jobStatus(t, store, jobID); got != "pending" {
		t.Errorf("job status = %q, want pending", got)
	}
}

func TestRunOnceEmbedFailureFailsJob(t *testing.T) {
	store := openTestQueue(t)
	ret := &fakeRetriever{embedFail: true}
	w := NewWorker(store, fixedRetriever(ret), 0)

	path := writeDoc(t, "Some content.")
	jobID, err := EnqueueDocument(store, path, "alice")
	if err != nil {
		t.Fatalf("EnqueueDocument: %v", err)
	}

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if got := jobStatus(t, store, jobID); got == "completed" {
		t.Error("job completed despite embed failure")
	}
}

func TestRunOnceStoreFailureFailsJob(t *testing.T) {
	store := openTestQueue(t)
	ret := &fakeRetriever{storeFail: true}
	w := NewWorker(store, fixedRetriever(ret), 0)

	path := writeDoc(t, "Some content.")
	jobID, err := EnqueueDocument(store, path, "alice")
	if err != nil {
		t.Fatalf("EnqueueDocument: %v", err)
	}

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if got := jobStatus(t, store, jobID); got == "completed" {
		t.Error("job completed despite store failure")
	}
}

func TestRunOnceEmptyDocumentCompletes(t *testing.T) {
	store := openTestQueue(t)
	ret := &fakeRetriever{}
	w := NewWorker(store, fixedRetriever(ret), 0)

	path := writeDoc(t, "   \n\n  ")
	jobID, err := EnqueueDocument(store, path, "alice")
	if err != nil {
		t.Fatalf("EnqueueDocument: %v", err)
	}

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(ret.embedded) != 0 {
		t.Errorf("embedded %d chunks from a blank document", len(ret.embedded))
	}
	if got := jobStatus(t, store, jobID); got != "completed" {
		t.Errorf("job status = %q, want completed", got)
	}
}

// The daemon swaps the retrieval facade on config reload; the worker must
// fetch from its source per job, not hold the facade it started with.
func TestWorkerFollowsRetrieverSwap(t *testing.T) {
	store := openTestQueue(t)
	before := &fakeRetriever{}
	after := &fakeRetriever{}
	current := before
	w := NewWorker(store, func() Retriever { return current }, 0)

	path := writeDoc(t, "First document.")
	if _, err := EnqueueDocument(store, path, "alice"); err != nil {
		t.Fatalf("EnqueueDocument: %v", err)
	}
	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(before.embedded) == 0 {
		t.Fatal("first job did not reach the initial retriever")
	}

	current = after

	path = writeDoc(t, "Second document.")
	if _, err := EnqueueDocument(store, path, "alice"); err != nil {
		t.Fatalf("EnqueueDocument: %v", err)
	}
	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(after.embedded) == 0 {
		t.Error("job after the swap still used the old retriever")
	}
	if len(before.embedded) != 1 {
		t.Errorf("old retriever saw %d chunks after the swap, want 1", len(before.embedded))
	}
}

func TestWorkerUsesCustomExtractor(t *testing.T) {
	store := openTestQueue(t)
	ret := &fakeRetriever{}
	w := NewWorker(store, fixedRetriever(ret), 0)
	w.extract = func(path string) (string, error) {
		if path == "boom" {
			return "", errors.New("extractor boom")
		}
		return "stub text", nil
	}

	if _, err := EnqueueDocument(store, "anything", "alice"); err != nil {
		t.Fatalf("EnqueueDocument: %v", err)
	}
	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(ret.embedded) != 1 || ret.embedded[0] != "stub text" {
		t.Errorf("embedded = %v", ret.embedded)
	}
}
