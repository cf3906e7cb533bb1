package retrieval

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	logx "github.com/freshcart/support-agent/pkg/logger"
)

// ErrUnavailable means the embedding backend could not be reached. Callers
// treat this as a signal to answer without retrieved grounding rather than
// failing the turn.
var ErrUnavailable = errors.New("retrieval unavailable")

// Config tunes the retriever.
type Config struct {
	EmbeddingModel string  `envconfig:"RETRIEVAL_EMBEDDING_MODEL" default:"gemini-embedding-001"`
	TopK           int     `envconfig:"RETRIEVAL_TOP_K" default:"3"`
	MinScore       float64 `envconfig:"RETRIEVAL_MIN_SCORE" default:"0.45"`
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// GeminiEmbedder embeds text via the Gemini embedding endpoint.
type GeminiEmbedder struct {
	client *genai.Client
	model  string
}

func NewGeminiEmbedder(client *genai.Client, model string) *GeminiEmbedder {
	return &GeminiEmbedder{client: client, model: model}
}

func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("%w: empty embedding response", ErrUnavailable)
	}
	return resp.Embeddings[0].Values, nil
}

// Retriever answers similarity queries against the indexed knowledge base.
type Retriever struct {
	embedder Embedder
	store    *Store
	topK     int
	minScore float64
}

func NewRetriever(embedder Embedder, store *Store, cfg Config) *Retriever {
	topK := cfg.TopK
	if topK <= 0 {
		topK = 3
	}
	return &Retriever{
		embedder: embedder,
		store:    store,
		topK:     topK,
		minScore: cfg.MinScore,
	}
}

// Retrieve embeds the query and returns the best-matching documents. An empty
// result with a nil error means nothing relevant was indexed; ErrUnavailable
// means the embedding call itself failed.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]Scored, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	hits := r.store.Search(vec, r.topK, r.minScore)
	logx.Debug().
		Str("query", query).
		Int("hits", len(hits)).
		Msg("retrieval")
	return hits, nil
}
