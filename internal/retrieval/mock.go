package retrieval

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/penny-assistant/penny/internal/resolver"
)

// MockBackend is the terminal retrieval tier. It is always ready, never
// fails, and answers from canned context, so a query against a fully
// degraded system still produces a usable response.
type MockBackend struct {
	resolver.TierState
	embedder HashEmbedder
}

var _ Backend = (*MockBackend)(nil)

// NewMockBackend builds the always-ready terminal tier.
func NewMockBackend() *MockBackend {
	b := &MockBackend{
		TierState: resolver.NewTierState("mock", 2),
	}
	// The mock tier can never be demoted.
	b.InitOnce(func() error { return nil })
	return b
}

func (b *MockBackend) Initialize(ctx context.Context) error {
	return b.InitOnce(func() error { return nil })
}

func (b *MockBackend) Health(ctx context.Context) bool { return true }

// Embed produces deterministic vectors so the same chunk always embeds to
// the same values across calls.
func (b *MockBackend) Embed(ctx context.Context, chunks []string) ([]Vector, error) {
	values, err := b.embedder.Embed(ctx, chunks)
	if err != nil {
		return nil, err
	}
	vectors := make([]Vector, len(chunks))
	for i, chunk := range chunks {
		vectors[i] = Vector{
			ID:     uuid.New().String(),
			Text:   chunk,
			Values: values[i],
		}
	}
	return vectors, nil
}

// Store acknowledges the vectors without persisting anything.
func (b *MockBackend) Store(ctx context.Context, vectors []Vector, meta []Meta) (StoreResult, error) {
	return StoreResult{StoredCount: len(vectors)}, nil
}

// Query returns a canned answer that references the question, so callers
// can tell mock output apart from real retrieval.
func (b *MockBackend) Query(ctx context.Context, question, ownerID string) (QueryResult, error) {
	context := []string{
		"This is placeholder context served while the retrieval backends are unavailable.",
	}
	return QueryResult{
		Answer:  fmt.Sprintf("I can't reach my knowledge base right now, so here is a placeholder answer for %q.", question),
		Context: context,
		Sources: []string{"mock"},
	}, nil
}
