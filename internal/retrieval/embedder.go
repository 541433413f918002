package retrieval

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"
)

// Embedder turns texts into vectors. The remote tier uses OpenAI; the local
// and mock tiers use the deterministic hash embedder so they work with no
// external dependency.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// openaiBatchSize bounds a single embeddings request.
const openaiBatchSize = 64

// OpenAIEmbedder calls the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an embedder for the given model name.
func NewOpenAIEmbedder(client *openai.Client, model string) *OpenAIEmbedder {
	return &OpenAIEmbedder{client: client, model: model}
}

// Embed returns embedding vectors for the texts, batching requests and
// bounding concurrency. Returns nil (not error) for empty input.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4) // Bound concurrency to avoid hammering the API.

	for start := 0; start < len(texts); start += openaiBatchSize {
		start := start
		end := start + openaiBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		g.Go(func() error {
			resp, err := e.client.CreateEmbeddings(gCtx, openai.EmbeddingRequestStrings{
				Input: batch,
				Model: openai.EmbeddingModel(e.model),
			})
			if err != nil {
				return fmt.Errorf("embedding batch at %d: %w", start, err)
			}
			if len(resp.Data) != len(batch) {
				return fmt.Errorf("embedding batch at %d: got %d vectors for %d texts", start, len(resp.Data), len(batch))
			}
			for i, d := range resp.Data {
				results[start+i] = d.Embedding
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// hashDim is the dimensionality of the deterministic embedder. Kept small:
// these vectors only need to be stable and roughly similarity-preserving.
const hashDim = 256

// HashEmbedder produces deterministic bag-of-words vectors with no external
// dependency. The same text always embeds to the same vector, which keeps
// local-tier round trips and tests reproducible.
type HashEmbedder struct{}

var _ Embedder = (*HashEmbedder)(nil)

func (HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	results := make([][]float32, len(texts))
	for i, text := range texts {
		results[i] = hashVector(text)
	}
	return results, nil
}

func hashVector(text string) []float32 {
	v := make([]float32, hashDim)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(token))
		v[h.Sum32()%hashDim]++
	}

	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	if sum == 0 {
		return v
	}
	n := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= n
	}
	return v
}
