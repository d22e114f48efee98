// Package search provides the semantic index over insurance card text,
// with transparent fallback to substring matching when the embedding
// backend is unavailable.
//
// The index holds a disposable projection: each document is the card's
// name and detail tagged with the card id as source. Postgres remains
// the source of truth: the caller hydrates full cards from the store
// and drops documents whose source no longer resolves.
package search

import "context"

// TopK is the number of documents retrieved per query.
const TopK = 5

// Document is an indexed text projection of a single card.
type Document struct {
	// Content is the indexed free text (card name + "\n" + detail).
	Content string
	// Source is the id of the card this document was derived from.
	Source string
}

// Index is the capability contract the coordinator writes and reads
// against. Implementations must be safe for concurrent use.
type Index interface {
	// AddDocuments ingests documents for later retrieval. Ingestion is
	// at-least-once: re-adding a document for the same source is
	// harmless. Documents are always also appended to an in-process
	// fallback buffer before the semantic backend is attempted.
	AddDocuments(ctx context.Context, docs []Document) error

	// Retrieve returns up to TopK documents ranked by semantic
	// similarity to the query. If the embedding backend or the vector
	// store fails, it degrades to a case-insensitive substring match
	// over the fallback buffer and reports no error. An index whose
	// vector backend holds no points returns an empty result without
	// an embedding call.
	Retrieve(ctx context.Context, query string) ([]Document, error)

	// Reset clears the fallback buffer and re-initializes the
	// embedding client handle. Operator escape hatch; never called on
	// a request path.
	Reset(ctx context.Context) error
}

// VectorBackend stores and queries embedding vectors. Implementations:
// QdrantBackend (production) and MemoryBackend (dev/tests).
type VectorBackend interface {
	// Upsert writes one point per document, keyed by the document
	// source so repeated ingestion of the same card overwrites rather
	// than duplicates.
	Upsert(ctx context.Context, docs []Document, vectors [][]float32) error

	// Query returns up to limit documents ranked by similarity.
	Query(ctx context.Context, vector []float32, limit int) ([]Document, error)

	// Count reports how many points the backend currently holds. For
	// persistent backends this includes points written by earlier
	// processes.
	Count(ctx context.Context) (uint64, error)

	// Reset drops all stored points.
	Reset(ctx context.Context) error

	// Healthy returns nil if the backend is reachable.
	Healthy(ctx context.Context) error
}
