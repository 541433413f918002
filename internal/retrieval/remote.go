package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/penny-assistant/penny/internal/resolver"
)

// remoteTopK bounds how many chunks the remote tier retrieves per query.
const remoteTopK = 4

// RemoteConfig carries everything the remote retrieval tier needs.
type RemoteConfig struct {
	// WeaviateURL is the vector store endpoint, e.g. "http://localhost:8080".
	WeaviateURL string
	// Class is the Weaviate class chunks are stored under.
	Class string
	// APIKey authenticates against OpenAI for embeddings and chat.
	APIKey string
	// EmbedModel is the OpenAI embedding model name.
	EmbedModel string
	// ChatModel, when set, enables LLM answer synthesis. Empty means
	// answers are assembled from retrieved context directly.
	ChatModel string
}

// RemoteBackend serves retrieval from OpenAI embeddings and a Weaviate
// vector store, with optional chat-based answer synthesis.
type RemoteBackend struct {
	resolver.TierState
	cfg      RemoteConfig
	weaviate *weaviate.Client
	embedder Embedder
	chat     *openai.Client
}

var _ Backend = (*RemoteBackend)(nil)

// NewRemoteBackend builds the preferred retrieval tier from config. The
// Weaviate client is not created until Initialize.
func NewRemoteBackend(cfg RemoteConfig) *RemoteBackend {
	if cfg.Class == "" {
		cfg.Class = "PennyChunk"
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = "text-embedding-3-small"
	}
	return &RemoteBackend{
		TierState: resolver.NewTierState("remote", 0),
		cfg:       cfg,
	}
}

// Initialize builds the OpenAI and Weaviate clients and verifies Weaviate
// is ready. Any failure here demotes the tier until the next config reload.
func (b *RemoteBackend) Initialize(ctx context.Context) error {
	return b.InitOnce(func() error {
		if b.cfg.WeaviateURL == "" {
			return fmt.Errorf("no weaviate endpoint configured")
		}
		if b.cfg.APIKey == "" {
			return fmt.Errorf("no OpenAI API key configured")
		}

		u, err := url.Parse(b.cfg.WeaviateURL)
		if err != nil {
			return fmt.Errorf("parsing weaviate endpoint: %w", err)
		}
		scheme := u.Scheme
		if scheme == "" {
			scheme = "http"
		}
		host := u.Host
		if host == "" {
			host = u.Path
		}

		client, err := weaviate.NewClient(weaviate.Config{Host: host, Scheme: scheme})
		if err != nil {
			return fmt.Errorf("creating weaviate client: %w", err)
		}

		readyCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		ready, err := client.Misc().ReadyChecker().Do(readyCtx)
		if err != nil {
			return fmt.Errorf("checking weaviate readiness: %w", err)
		}
		if !ready {
			return fmt.Errorf("weaviate at %s is not ready", b.cfg.WeaviateURL)
		}

		oa := openai.NewClient(b.cfg.APIKey)
		b.weaviate = client
		b.embedder = NewOpenAIEmbedder(oa, b.cfg.EmbedModel)
		if b.cfg.ChatModel != "" {
			b.chat = oa
		}
		return nil
	})
}

func (b *RemoteBackend) Health(ctx context.Context) bool {
	if b.weaviate == nil {
		return false
	}
	ready, err := b.weaviate.Misc().ReadyChecker().Do(ctx)
	return err == nil && ready
}

func (b *RemoteBackend) Embed(ctx context.Context, chunks []string) ([]Vector, error) {
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

// Store batch-imports vectors into the configured Weaviate class.
func (b *RemoteBackend) Store(ctx context.Context, vectors []Vector, meta []Meta) (StoreResult, error) {
	if len(vectors) == 0 {
		return StoreResult{}, nil
	}

	objects := make([]*models.Object, len(vectors))
	for i, v := range vectors {
		id := v.ID
		if id == "" {
			id = uuid.New().String()
		}
		props := map[string]interface{}{
			"content": v.Text,
		}
		if i < len(meta) {
			props["owner_id"] = meta[i].OwnerID
			props["source"] = meta[i].Source
		}
		objects[i] = &models.Object{
			Class:      b.cfg.Class,
			ID:         strfmt.UUID(id),
			Vector:     v.Values,
			Properties: props,
		}
	}

	resp, err := b.weaviate.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return StoreResult{}, fmt.Errorf("batch import: %w", err)
	}

	stored := 0
	for _, item := range resp {
		if item.Result != nil && item.Result.Errors != nil && len(item.Result.Errors.Error) > 0 {
			return StoreResult{}, fmt.Errorf("batch import: %s", item.Result.Errors.Error[0].Message)
		}
		stored++
	}
	return StoreResult{StoredCount: stored}, nil
}

// chunkHit mirrors the fields requested in the GraphQL query.
type chunkHit struct {
	Content    string `json:"content"`
	Source     string `json:"source"`
	Additional struct {
		Certainty float64 `json:"certainty"`
	} `json:"_additional"`
}

// Query embeds the question, runs a near-vector search filtered to the
// owner, and synthesizes an answer. No hits is an error so the chain can
// fall through to a tier that still answers.
func (b *RemoteBackend) Query(ctx context.Context, question, ownerID string) (QueryResult, error) {
	values, err := b.embedder.Embed(ctx, []string{question})
	if err != nil {
		return QueryResult{}, fmt.Errorf("embedding question: %w", err)
	}

	where := filters.Where().
		WithPath([]string{"owner_id"}).
		WithOperator(filters.Equal).
		WithValueString(ownerID)

	nearVector := b.weaviate.GraphQL().NearVectorArgBuilder().
		WithVector(values[0])

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "source"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "certainty"},
		}},
	}

	resp, err := b.weaviate.GraphQL().Get().
		WithClassName(b.cfg.Class).
		WithFields(fields...).
		WithWhere(where).
		WithNearVector(nearVector).
		WithLimit(remoteTopK).
		Do(ctx)
	if err != nil {
		return QueryResult{}, fmt.Errorf("searching weaviate: %w", err)
	}
	if len(resp.Errors) > 0 {
		return QueryResult{}, fmt.Errorf("searching weaviate: %s", resp.Errors[0].Message)
	}

	hits, err := parseChunkHits(resp, b.cfg.Class)
	if err != nil {
		return QueryResult{}, err
	}
	if len(hits) == 0 {
		return QueryResult{}, fmt.Errorf("no stored context for owner %s", ownerID)
	}

	chunks := make([]string, len(hits))
	sources := make([]string, 0, len(hits))
	seen := make(map[string]bool)
	for i, h := range hits {
		chunks[i] = h.Content
		if h.Source != "" && !seen[h.Source] {
			seen[h.Source] = true
			sources = append(sources, h.Source)
		}
	}

	answer, err := b.answer(ctx, question, chunks)
	if err != nil {
		return QueryResult{}, err
	}

	return QueryResult{
		Answer:  answer,
		Context: chunks,
		Sources: sources,
	}, nil
}

// answer asks the chat model to ground a response in the retrieved chunks,
// falling back to plain synthesis when no chat model is configured.
func (b *RemoteBackend) answer(ctx context.Context, question string, chunks []string) (string, error) {
	if b.chat == nil {
		return synthesizeAnswer(question, chunks), nil
	}

	resp, err := b.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: b.cfg.ChatModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a personal assistant. Answer the question using only the provided context. Be concise.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf("Context:\n%s\n\nQuestion: %s", strings.Join(chunks, "\n---\n"), question),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return synthesizeAnswer(question, chunks), nil
	}
	return resp.Choices[0].Message.Content, nil
}

// parseChunkHits unpacks a GraphQL Get response for the given class.
func parseChunkHits(resp *models.GraphQLResponse, class string) ([]chunkHit, error) {
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("marshaling graphql data: %w", err)
	}
	var parsed struct {
		Get map[string][]chunkHit `json:"Get"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decoding graphql data: %w", err)
	}
	return parsed.Get[class], nil
}
