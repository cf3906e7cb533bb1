package retrieval

import (
	"math"
	"sort"
	"sync"
)

// Document is one retrievable knowledge-base entry.
type Document struct {
	ID      string
	Title   string
	Content string
	Source  string
}

// Scored pairs a document with its similarity to a query.
type Scored struct {
	Document Document
	Score    float64
}

// Store is an in-memory vector index over embedded documents. Lookups are
// brute-force cosine similarity, which is fine at knowledge-base scale.
type Store struct {
	mu   sync.RWMutex
	docs []Document
	vecs [][]float32
}

func NewStore() *Store {
	return &Store{}
}

// Add indexes a document under its embedding vector.
func (s *Store) Add(doc Document, vec []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, doc)
	s.vecs = append(s.vecs, vec)
}

// Len reports the number of indexed documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Search returns the topK most similar documents with score >= minScore,
// ordered best first.
func (s *Store) Search(query []float32, topK int, minScore float64) []Scored {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if topK <= 0 {
		return nil
	}

	scored := make([]Scored, 0, len(s.docs))
	for i, vec := range s.vecs {
		score := cosine(query, vec)
		if score < minScore {
			continue
		}
		scored = append(scored, Scored{Document: s.docs[i], Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
