package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/penny-assistant/penny/internal/resolver"
	"github.com/penny-assistant/penny/internal/storage"
)

// localTopK bounds how many chunks the local tier retrieves per query.
const localTopK = 4

// LocalBackend serves retrieval from the embedded SQLite database using
// deterministic embeddings and brute-force cosine search. It works with no
// network at all.
type LocalBackend struct {
	resolver.TierState
	vectors  *SQLiteVectorStore
	embedder HashEmbedder
}

var _ Backend = (*LocalBackend)(nil)

// NewLocalBackend wraps the shared store as the local retrieval tier.
func NewLocalBackend(store *storage.Store) *LocalBackend {
	b := &LocalBackend{
		TierState: resolver.NewTierState("local", 1),
	}
	if store != nil {
		b.vectors = NewSQLiteVectorStore(store.DB())
	}
	return b
}

func (b *LocalBackend) Initialize(ctx context.Context) error {
	return b.InitOnce(func() error {
		if b.vectors == nil {
			return fmt.Errorf("no storage configured")
		}
		return nil
	})
}

func (b *LocalBackend) Health(ctx context.Context) bool {
	if b.vectors == nil {
		return false
	}
	_, err := b.vectors.Count("health-check")
	return err == nil
}

func (b *LocalBackend) Embed(ctx context.Context, chunks []string) ([]Vector, error) {
	values, err := b.embedder.Embed(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("embedding chunks: %w", err)
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

func (b *LocalBackend) Store(ctx context.Context, vectors []Vector, meta []Meta) (StoreResult, error) {
	records := make([]Record, len(vectors))
	now := time.Now().UTC()
	for i, v := range vectors {
		r := Record{
			ID:        v.ID,
			TextChunk: v.Text,
			Embedding: v.Values,
			CreatedAt: now,
		}
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		if i < len(meta) {
			r.OwnerID = meta[i].OwnerID
			r.Source = meta[i].Source
		}
		records[i] = r
	}
	if err := b.vectors.Insert(records); err != nil {
		return StoreResult{}, fmt.Errorf("storing vectors: %w", err)
	}
	return StoreResult{StoredCount: len(records)}, nil
}

// Query embeds the question with the same deterministic embedder used at
// ingest time and searches the owner's vectors. No stored context is an
// error: the chain then falls through to the mock tier, which always
// answers.
func (b *LocalBackend) Query(ctx context.Context, question, ownerID string) (QueryResult, error) {
	queryVec := hashVector(question)

	hits, err := b.vectors.Search(queryVec, ownerID, localTopK)
	if err != nil {
		return QueryResult{}, fmt.Errorf("searching vectors: %w", err)
	}
	if len(hits) == 0 {
		return QueryResult{}, fmt.Errorf("no stored context for owner %s", ownerID)
	}

	context := make([]string, len(hits))
	sources := make([]string, 0, len(hits))
	seen := make(map[string]bool)
	for i, h := range hits {
		context[i] = h.TextChunk
		if h.Source != "" && !seen[h.Source] {
			seen[h.Source] = true
			sources = append(sources, h.Source)
		}
	}

	return QueryResult{
		Answer:  synthesizeAnswer(question, context),
		Context: context,
		Sources: sources,
	}, nil
}
