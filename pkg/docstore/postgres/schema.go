package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ddlDocuments returns the documents DDL with the embedding dimension
// substituted. The vector dimension is baked into the column type at schema
// creation time.
func ddlDocuments(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS documents (
    id          TEXT         PRIMARY KEY,
    collection  TEXT         NOT NULL,
    content     TEXT         NOT NULL,
    embedding   vector(%d),
    file_name   TEXT         NOT NULL DEFAULT '',
    page        INTEGER      NOT NULL DEFAULT 0,
    language    TEXT         NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_documents_collection
    ON documents (collection);

CREATE INDEX IF NOT EXISTS idx_documents_language
    ON documents (language);

CREATE INDEX IF NOT EXISTS idx_documents_embedding
    ON documents USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures the documents table, its indexes, and the
// pgvector extension exist. It is idempotent and safe to call on every
// application start.
//
// embeddingDimensions must match the vector model configured for your
// deployment (e.g., 768 for nomic-embed-text, 1024 for bge-m3). Changing this
// value after the first migration requires a manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if _, err := pool.Exec(ctx, ddlDocuments(embeddingDimensions)); err != nil {
		return fmt.Errorf("docstore migrate: %w", err)
	}
	return nil
}

// nullableTime maps the zero time to nil so the column default applies.
func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
