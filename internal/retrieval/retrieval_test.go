package retrieval_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freshcart/support-agent/internal/retrieval"
)

// stubEmbedder maps texts containing a keyword onto axis-aligned vectors so
// cosine scores are deterministic.
type stubEmbedder struct {
	axes map[string]int
	dim  int
	err  error
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	vec := make([]float32, s.dim)
	lower := strings.ToLower(text)
	for kw, axis := range s.axes {
		if strings.Contains(lower, kw) {
			vec[axis] = 1
		}
	}
	return vec, nil
}

func TestStoreSearch_RanksByScore(t *testing.T) {
	t.Parallel()

	store := retrieval.NewStore()
	store.Add(retrieval.Document{ID: "d1"}, []float32{1, 0, 0})
	store.Add(retrieval.Document{ID: "d2"}, []float32{1, 1, 0})
	store.Add(retrieval.Document{ID: "d3"}, []float32{0, 0, 1})

	hits := store.Search([]float32{1, 0, 0}, 2, 0.1)
	require.Len(t, hits, 2)
	assert.Equal(t, "d1", hits[0].Document.ID)
	assert.InDelta(t, 1.0, hits[0].Score, 0.001)
	assert.Equal(t, "d2", hits[1].Document.ID)
}

func TestStoreSearch_MinScoreFiltersWeakMatches(t *testing.T) {
	t.Parallel()

	store := retrieval.NewStore()
	store.Add(retrieval.Document{ID: "strong"}, []float32{1, 0})
	store.Add(retrieval.Document{ID: "weak"}, []float32{0, 1})

	hits := store.Search([]float32{1, 0}, 5, 0.5)
	require.Len(t, hits, 1)
	assert.Equal(t, "strong", hits[0].Document.ID)
}

func TestRetrieve_ReturnsRelevantDocuments(t *testing.T) {
	t.Parallel()

	emb := &stubEmbedder{dim: 3, axes: map[string]int{
		"delivery": 0,
		"refund":   1,
	}}

	store := retrieval.NewStore()
	for _, doc := range []retrieval.Document{
		{ID: "faq-delivery", Content: "delivery hours and areas"},
		{ID: "faq-refund", Content: "refund policy for orders"},
	} {
		vec, err := emb.Embed(context.Background(), doc.Content)
		require.NoError(t, err)
		store.Add(doc, vec)
	}

	r := retrieval.NewRetriever(emb, store, retrieval.Config{TopK: 2, MinScore: 0.5})
	hits, err := r.Retrieve(context.Background(), "when is delivery available")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "faq-delivery", hits[0].Document.ID)
}

func TestRetrieve_NoMatchReturnsEmptyNotError(t *testing.T) {
	t.Parallel()

	emb := &stubEmbedder{dim: 2, axes: map[string]int{"delivery": 0}}
	store := retrieval.NewStore()
	store.Add(retrieval.Document{ID: "d"}, []float32{1, 0})

	r := retrieval.NewRetriever(emb, store, retrieval.Config{TopK: 3, MinScore: 0.5})
	hits, err := r.Retrieve(context.Background(), "something entirely unrelated")
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestRetrieve_EmbedderFailurePropagates(t *testing.T) {
	t.Parallel()

	emb := &stubEmbedder{err: retrieval.ErrUnavailable}
	r := retrieval.NewRetriever(emb, retrieval.NewStore(), retrieval.Config{TopK: 3})

	_, err := r.Retrieve(context.Background(), "anything")
	require.Error(t, err)
	assert.True(t, errors.Is(err, retrieval.ErrUnavailable))
}

func TestIngestFiles_IndexesFAQAndProducts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	faqPath := filepath.Join(dir, "faqs.json")
	productsPath := filepath.Join(dir, "products.json")

	require.NoError(t, os.WriteFile(faqPath, []byte(`[
		{"id": "faq-1", "question": "What are your delivery hours?", "answer": "Daily 8am to 10pm.", "category": "delivery"}
	]`), 0o644))
	require.NoError(t, os.WriteFile(productsPath, []byte(`[
		{"id": "P001", "name": "Organic Milk", "category": "dairy", "price": 2.50, "description": "1L organic whole milk", "in_stock": true}
	]`), 0o644))

	emb := &stubEmbedder{dim: 2, axes: map[string]int{"delivery": 0, "milk": 1}}
	store := retrieval.NewStore()
	require.NoError(t, retrieval.IngestFiles(context.Background(), emb, store, faqPath, productsPath))
	assert.Equal(t, 2, store.Len())

	hits := store.Search([]float32{0, 1}, 1, 0.5)
	require.Len(t, hits, 1)
	assert.Equal(t, "P001", hits[0].Document.ID)
	assert.Equal(t, "catalog", hits[0].Document.Source)
}

func TestIngestFiles_MissingFileFails(t *testing.T) {
	t.Parallel()

	emb := &stubEmbedder{dim: 1}
	err := retrieval.IngestFiles(context.Background(), emb, retrieval.NewStore(), "/nonexistent/faqs.json", "/nonexistent/products.json")
	require.Error(t, err)
}
