// Package docstore defines the vector document store used for
// retrieval-augmented answering over study materials.
//
// A [Document] is a pre-embedded chunk of course content (a page fragment of a
// PDF, a section of a markdown file) tagged with its source file, page number,
// and language. Retrieval is embedding-based nearest-neighbour search scoped
// to a named collection, so several courses can share one database.
//
// The interface is public so that external packages can supply alternative
// backends (Postgres/pgvector, in-memory, …). Every implementation must be
// safe for concurrent use.
package docstore

import (
	"context"
	"time"
)

// Document is a pre-embedded chunk of study material.
type Document struct {
	// ID is the unique, deterministic identifier for this chunk
	// (derived from source file, page, and chunk index so re-ingesting the
	// same material produces the same IDs).
	ID string

	// Collection is the named document set this chunk belongs to
	// (e.g., "study_materials", "algorithms_course").
	Collection string

	// Content is the raw chunk text.
	Content string

	// Embedding is the vector representation of Content. Dimension must match
	// the store configuration (e.g., 768 for nomic-embed-text, 1024 for bge-m3).
	Embedding []float32

	// FileName is the source file this chunk was extracted from.
	FileName string

	// Page is the 1-based page number within the source file, or 0 for
	// sources without page structure (plain text, markdown).
	Page int

	// Language is the detected content language ("en" or "bn").
	Language string

	// CreatedAt is when this chunk was first stored.
	CreatedAt time.Time
}

// SearchResult pairs a retrieved document with its vector-space distance from
// the query embedding. Lower Distance values indicate higher similarity.
type SearchResult struct {
	// Document is the retrieved chunk.
	Document Document

	// Distance is the cosine distance to the query embedding.
	Distance float64
}

// Filter narrows a search to a subset of stored documents.
// All non-zero fields are applied as AND conditions.
type Filter struct {
	// Collection restricts results to a single collection.
	// An empty string searches across all collections.
	Collection string

	// Language restricts results to documents in this language.
	// An empty string matches all languages.
	Language string
}

// CollectionInfo summarises one named collection for listing endpoints.
type CollectionInfo struct {
	// Name is the collection name.
	Name string `json:"name"`

	// Documents is the number of chunks stored in the collection.
	Documents int64 `json:"documents"`
}

// Store is the vector document store.
//
// Mutating operations that act on a primary key (Upsert) must behave as
// upserts rather than returning an error on duplicates. Deletions of
// non-existent records are not errors.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Upsert stores a single pre-embedded document. If a document with the
	// same ID already exists it is completely replaced.
	Upsert(ctx context.Context, doc Document) error

	// AddBatch stores the given documents, skipping any whose ID is already
	// present. It returns the number of documents actually inserted. Use this
	// for ingestion, where re-running a load must not duplicate or re-embed
	// existing chunks.
	AddBatch(ctx context.Context, docs []Document) (int, error)

	// Search finds the topK documents whose embeddings are closest to the
	// query embedding, filtered by filter. Results are ordered by ascending
	// Distance (most similar first).
	// Returns an empty (non-nil) slice when no documents match.
	Search(ctx context.Context, embedding []float32, topK int, filter Filter) ([]SearchResult, error)

	// Count returns the number of documents in the given collection.
	// An empty collection name counts all documents.
	Count(ctx context.Context, collection string) (int64, error)

	// Collections lists all collections present in the store with their
	// document counts. Returns an empty (non-nil) slice for an empty store.
	Collections(ctx context.Context) ([]CollectionInfo, error)

	// DeleteByIDs removes the documents with the given IDs. Missing IDs are
	// silently ignored.
	DeleteByIDs(ctx context.Context, ids []string) error
}
