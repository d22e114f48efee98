package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ashita-ai/hoken/internal/service/embedding"
)

// SemanticIndex implements Index on top of an embedding provider and a
// vector backend.
//
// The embedding client handle is constructed lazily on first use and
// cached for the lifetime of the index (or until Reset). The fallback
// buffer holds every document ever added in-process; it is not
// persisted, so fallback results after a restart only cover documents
// added since.
type SemanticIndex struct {
	newProvider func() (embedding.Provider, error)
	backend     VectorBackend
	logger      *slog.Logger

	mu       sync.Mutex
	provider embedding.Provider
	fallback []Document
}

// NewSemanticIndex creates an index. newProvider is called at most once
// per index lifetime (again after Reset) to build the embedding client.
func NewSemanticIndex(newProvider func() (embedding.Provider, error), backend VectorBackend, logger *slog.Logger) *SemanticIndex {
	return &SemanticIndex{
		newProvider: newProvider,
		backend:     backend,
		logger:      logger,
	}
}

func (s *SemanticIndex) providerHandle() (embedding.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.provider != nil {
		return s.provider, nil
	}
	p, err := s.newProvider()
	if err != nil {
		return nil, fmt.Errorf("search: initialize embedding client: %w", err)
	}
	s.provider = p
	return p, nil
}

// AddDocuments appends docs to the fallback buffer, embeds them, and
// upserts them into the vector backend. The buffer append happens first
// and survives a failed upsert, so fallback search still covers the
// documents even when the semantic path errored.
func (s *SemanticIndex) AddDocuments(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	s.mu.Lock()
	s.fallback = append(s.fallback, docs...)
	s.mu.Unlock()

	provider, err := s.providerHandle()
	if err != nil {
		return err
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	vectors, err := provider.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("search: embed %d documents: %w", len(docs), err)
	}

	if err := s.backend.Upsert(ctx, docs, vectors); err != nil {
		return err
	}
	s.logger.Debug("search: documents indexed", "count", len(docs))
	return nil
}

// Retrieve returns up to TopK documents ranked by semantic similarity.
// Any failure on the semantic path (client init, embedding call, vector
// query) degrades to a substring scan of the fallback buffer. The
// caller never sees a retrieval error, only possibly lower-quality
// results.
func (s *SemanticIndex) Retrieve(ctx context.Context, query string) ([]Document, error) {
	// The fallback buffer only covers documents added by this process,
	// but a persistent backend may hold points from earlier runs. So
	// with an empty buffer, emptiness is the backend's call.
	s.mu.Lock()
	buffered := len(s.fallback)
	s.mu.Unlock()
	if buffered == 0 {
		n, err := s.backend.Count(ctx)
		if err != nil {
			s.logger.Warn("search: count failed, treating index as empty", "error", err)
			return []Document{}, nil
		}
		if n == 0 {
			// Nothing indexed anywhere: skip the embedding call.
			return []Document{}, nil
		}
	}

	provider, err := s.providerHandle()
	if err != nil {
		s.logger.Warn("search: embedding client unavailable, using substring fallback", "error", err)
		return s.fallbackScan(query), nil
	}

	vector, err := provider.Embed(ctx, query)
	if err != nil {
		s.logger.Warn("search: embedding failed, using substring fallback", "query", query, "error", err)
		return s.fallbackScan(query), nil
	}

	docs, err := s.backend.Query(ctx, vector, TopK)
	if err != nil {
		s.logger.Warn("search: vector query failed, using substring fallback", "query", query, "error", err)
		return s.fallbackScan(query), nil
	}
	return docs, nil
}

// fallbackScan returns every buffered document whose content contains
// query as a case-insensitive substring. Unranked and unlimited: the
// degraded path mirrors what a plain text filter would give.
func (s *SemanticIndex) fallbackScan(query string) []Document {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := strings.ToLower(query)
	matches := []Document{}
	for _, d := range s.fallback {
		if strings.Contains(strings.ToLower(d.Content), q) {
			matches = append(matches, d)
		}
	}
	return matches
}

// Reset clears the fallback buffer, drops the cached embedding client
// so the next call rebuilds it, and wipes the vector backend.
func (s *SemanticIndex) Reset(ctx context.Context) error {
	s.mu.Lock()
	s.fallback = nil
	s.provider = nil
	s.mu.Unlock()

	return s.backend.Reset(ctx)
}

// Healthy reports the vector backend's reachability.
func (s *SemanticIndex) Healthy(ctx context.Context) error {
	return s.backend.Healthy(ctx)
}
