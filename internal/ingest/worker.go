// Package ingest runs background document ingestion: extracting text from
// user files, chunking it, and pushing the chunks through the retrieval
// capability. Jobs queue in SQLite so a crash mid-ingest is retried.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/penny-assistant/penny/internal/document"
	"github.com/penny-assistant/penny/internal/resolver"
	"github.com/penny-assistant/penny/internal/retrieval"
	"github.com/penny-assistant/penny/internal/storage"
)

// JobTypeDocument is the queue type for document ingestion jobs.
const JobTypeDocument = "ingest_document"

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
}

// Retriever is the slice of the retrieval facade the worker needs.
type Retriever interface {
	Embed(ctx context.Context, chunks []string) resolver.Envelope[[]retrieval.Vector]
	Store(ctx context.Context, vectors []retrieval.Vector, meta []retrieval.Meta) resolver.Envelope[retrieval.StoreResult]
}

// RetrieverSource returns the retrieval facade to use for one job. The daemon
// swaps facades on config reload, so the worker fetches per job rather than
// holding one across its lifetime.
type RetrieverSource func() Retriever

// Extractor turns a file path into plain text. document.ExtractText in
// production; stubbed in tests.
type Extractor func(path string) (string, error)

// Worker processes ingest_document jobs from the SQLite job queue.
type Worker struct {
	store     JobStore
	retriever RetrieverSource
	extract   Extractor
	chunker   document.Chunker
	poll      time.Duration
	logger    *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, retriever RetrieverSource, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:     store,
		retriever: retriever,
		extract:   document.ExtractText,
		poll:      pollInterval,
		logger:    slog.Default(),
	}
}

// documentPayload is the JSON payload of an ingest_document job.
type documentPayload struct {
	Path    string `json:"path"`
	OwnerID string `json:"owner_id"`
}

// EnqueueDocument queues a file for ingestion and returns the job ID.
func EnqueueDocument(store interface{ EnqueueJob(storage.Job) error }, path, ownerID string) (string, error) {
	payload, err := json.Marshal(documentPayload{Path: path, OwnerID: ownerID})
	if err != nil {
		return "", fmt.Errorf("encoding payload: %w", err)
	}
	job := storage.Job{
		ID:          uuid.New().String(),
		Type:        JobTypeDocument,
		PayloadJSON: string(payload),
	}
	if err := store.EnqueueJob(job); err != nil {
		return "", fmt.Errorf("enqueueing job: %w", err)
	}
	return job.ID, nil
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single ingest_document job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobTypeDocument})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload documentPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	text, err := w.extract(payload.Path)
	if err != nil {
		return fmt.Errorf("extracting %s: %w", payload.Path, err)
	}

	chunks := w.chunker.Split(text)
	if len(chunks) == 0 {
		w.logger.Info("document produced no chunks", "path", payload.Path)
		return nil
	}

	retriever := w.retriever()
	embedded := retriever.Embed(ctx, chunks)
	if !embedded.OK() {
		return fmt.Errorf("embedding %d chunks: %s", len(chunks), embedded.Diagnostic)
	}

	meta := make([]retrieval.Meta, len(embedded.Payload))
	for i := range meta {
		meta[i] = retrieval.Meta{OwnerID: payload.OwnerID, Source: payload.Path}
	}

	stored := retriever.Store(ctx, embedded.Payload, meta)
	if !stored.OK() {
		return fmt.Errorf("storing vectors: %s", stored.Diagnostic)
	}

	w.logger.Info("document ingested",
		"path", payload.Path,
		"chunks", len(chunks),
		"stored", stored.Payload.StoredCount,
		"served_by", stored.ServedBy,
	)
	return nil
}
