// Package retrieval implements the document-retrieval capability: embedding
// text chunks, storing vectors, and answering questions over stored context.
// Three tiers serve it: a remote tier (OpenAI embeddings + Weaviate), a local
// tier (deterministic embeddings + SQLite cosine search), and a mock tier
// that never fails, so the chain is never empty.
package retrieval

import (
	"context"
	"log/slog"

	"github.com/penny-assistant/penny/internal/resolver"
)

// Vector is an embedding tagged with the chunk it came from.
type Vector struct {
	ID     string    `json:"id"`
	Text   string    `json:"text"`
	Values []float32 `json:"values"`
}

// Meta carries per-vector storage metadata.
type Meta struct {
	OwnerID string `json:"owner_id"`
	Source  string `json:"source"`
}

// StoreResult reports how many vectors the serving tier persisted.
type StoreResult struct {
	StoredCount int `json:"stored_count"`
}

// QueryResult is an answer with its supporting context. Answer is never
// empty: degraded tiers still synthesize contextually relevant text.
type QueryResult struct {
	Answer  string   `json:"answer"`
	Context []string `json:"context"`
	Sources []string `json:"sources"`
}

// Backend is one tier of the retrieval capability.
type Backend interface {
	resolver.Backend

	Embed(ctx context.Context, chunks []string) ([]Vector, error)
	Store(ctx context.Context, vectors []Vector, meta []Meta) (StoreResult, error)
	Query(ctx context.Context, question, ownerID string) (QueryResult, error)
}

// Service is the retrieval facade.
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
		chain: resolver.NewChain("retrieval", log, rb...),
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

// Embed converts text chunks into vectors tagged by source chunk.
func (s *Service) Embed(ctx context.Context, chunks []string) resolver.Envelope[[]Vector] {
	return resolver.Walk(ctx, s.chain, "embed", func(ctx context.Context, b resolver.Backend) ([]Vector, error) {
		return b.(Backend).Embed(ctx, chunks)
	})
}

// Store persists vectors with their metadata on the serving tier.
func (s *Service) Store(ctx context.Context, vectors []Vector, meta []Meta) resolver.Envelope[StoreResult] {
	return resolver.Walk(ctx, s.chain, "store", func(ctx context.Context, b resolver.Backend) (StoreResult, error) {
		return b.(Backend).Store(ctx, vectors, meta)
	})
}

// Query answers a question from the owner's stored context.
func (s *Service) Query(ctx context.Context, question, ownerID string) resolver.Envelope[QueryResult] {
	return resolver.Walk(ctx, s.chain, "query", func(ctx context.Context, b resolver.Backend) (QueryResult, error) {
		return b.(Backend).Query(ctx, question, ownerID)
	})
}
