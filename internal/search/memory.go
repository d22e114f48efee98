package search

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MemoryBackend implements VectorBackend with an in-process cosine
// similarity scan. It is the default when no Qdrant URL is configured
// and the backend used by most tests. Contents are lost on restart,
// which is acceptable: the index is a disposable projection rebuilt
// from the store.
type MemoryBackend struct {
	mu     sync.Mutex
	points map[string]memoryPoint // keyed by document source
}

type memoryPoint struct {
	doc    Document
	vector []float32
}

// NewMemoryBackend creates an empty in-process vector backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{points: make(map[string]memoryPoint)}
}

// Upsert stores one point per document, overwriting previous points for
// the same source.
func (m *MemoryBackend) Upsert(_ context.Context, docs []Document, vectors [][]float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, d := range docs {
		m.points[d.Source] = memoryPoint{doc: d, vector: vectors[i]}
	}
	return nil
}

// Query ranks all stored points by cosine similarity and returns the
// top limit documents.
func (m *MemoryBackend) Query(_ context.Context, vector []float32, limit int) ([]Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	type scored struct {
		doc   Document
		score float64
	}
	results := make([]scored, 0, len(m.points))
	for _, p := range m.points {
		results = append(results, scored{doc: p.doc, score: cosine(vector, p.vector)})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].score > results[j].score })

	if len(results) > limit {
		results = results[:limit]
	}
	docs := make([]Document, len(results))
	for i, r := range results {
		docs[i] = r.doc
	}
	return docs, nil
}

// Count reports the number of stored points.
func (m *MemoryBackend) Count(context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint64(len(m.points)), nil
}

// Reset drops all stored points.
func (m *MemoryBackend) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = make(map[string]memoryPoint)
	return nil
}

// Healthy always returns nil.
func (m *MemoryBackend) Healthy(context.Context) error {
	return nil
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
