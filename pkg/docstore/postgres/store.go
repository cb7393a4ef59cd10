// Package postgres provides a PostgreSQL-backed implementation of
// [docstore.Store] using the pgvector extension for similarity search.
//
// The pgvector extension must be available in the target database; [Migrate]
// installs it automatically via CREATE EXTENSION IF NOT EXISTS and creates an
// HNSW cosine index over the embedding column.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, 768)
//	if err != nil { … }
//	defer store.Close()
//
//	added, _ := store.AddBatch(ctx, docs)
//	results, _ := store.Search(ctx, queryEmbedding, 3, docstore.Filter{Collection: "study_materials"})
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/banglarag/banglarag/pkg/docstore"
)

// Compile-time interface check.
var _ docstore.Store = (*Store)(nil)

// Store is the PostgreSQL-backed document store. It holds a single
// [pgxpool.Pool]; all operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store, establishes a connection pool to the
// PostgreSQL database at dsn, registers pgvector types on every connection,
// and runs [Migrate] to ensure the documents table and extension exist.
//
// embeddingDimensions must match the output dimension of the embedding model
// used to produce [docstore.Document.Embedding] values (e.g., 768 for
// nomic-embed-text, 1024 for bge-m3). Changing this value after the first
// migration requires a manual schema change.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("docstore postgres: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so that vector columns
	// can be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("docstore postgres: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("docstore postgres: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("docstore postgres: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Ping verifies the database connection. Suitable as a readiness check.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Upsert implements [docstore.Store]. If a document with the same ID already
// exists it is completely replaced.
func (s *Store) Upsert(ctx context.Context, doc docstore.Document) error {
	const q = `
		INSERT INTO documents
		    (id, collection, content, embedding, file_name, page, language, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, now()))
		ON CONFLICT (id) DO UPDATE SET
		    collection = EXCLUDED.collection,
		    content    = EXCLUDED.content,
		    embedding  = EXCLUDED.embedding,
		    file_name  = EXCLUDED.file_name,
		    page       = EXCLUDED.page,
		    language   = EXCLUDED.language`

	_, err := s.pool.Exec(ctx, q,
		doc.ID,
		doc.Collection,
		doc.Content,
		pgvector.NewVector(doc.Embedding),
		doc.FileName,
		doc.Page,
		doc.Language,
		nullableTime(doc.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("docstore postgres: upsert: %w", err)
	}
	return nil
}

// AddBatch implements [docstore.Store]. It first filters out documents whose
// IDs already exist, then inserts the remainder in a single pipelined batch.
// It returns the number of documents actually inserted.
func (s *Store) AddBatch(ctx context.Context, docs []docstore.Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}

	rows, err := s.pool.Query(ctx, `SELECT id FROM documents WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("docstore postgres: check existing: %w", err)
	}
	existingIDs, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return 0, fmt.Errorf("docstore postgres: scan existing: %w", err)
	}
	existing := make(map[string]struct{}, len(existingIDs))
	for _, id := range existingIDs {
		existing[id] = struct{}{}
	}

	const insert = `
		INSERT INTO documents
		    (id, collection, content, embedding, file_name, page, language, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, now()))
		ON CONFLICT (id) DO NOTHING`

	batch := &pgx.Batch{}
	queued := 0
	for _, d := range docs {
		if _, ok := existing[d.ID]; ok {
			continue
		}
		batch.Queue(insert,
			d.ID, d.Collection, d.Content, pgvector.NewVector(d.Embedding),
			d.FileName, d.Page, d.Language, nullableTime(d.CreatedAt))
		queued++
	}
	if queued == 0 {
		return 0, nil
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	added := 0
	for i := 0; i < queued; i++ {
		tag, err := br.Exec()
		if err != nil {
			return added, fmt.Errorf("docstore postgres: batch insert: %w", err)
		}
		added += int(tag.RowsAffected())
	}
	return added, nil
}

// Search implements [docstore.Store]. It finds the topK documents whose
// embeddings are closest (cosine distance) to the query embedding, optionally
// filtered by collection and language.
func (s *Store) Search(ctx context.Context, embedding []float32, topK int, filter docstore.Filter) ([]docstore.SearchResult, error) {
	args := []any{pgvector.NewVector(embedding)} // $1 = query vector
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var conditions []string
	if filter.Collection != "" {
		conditions = append(conditions, "collection = "+next(filter.Collection))
	}
	if filter.Language != "" {
		conditions = append(conditions, "language = "+next(filter.Language))
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, "\n  AND ")
	}

	args = append(args, topK)
	limitArg := fmt.Sprintf("$%d", len(args))

	q := fmt.Sprintf(`
		SELECT id, collection, content, embedding, file_name, page, language, created_at,
		       embedding <=> $1 AS distance
		FROM   documents
		%s
		ORDER  BY distance
		LIMIT  %s`, whereClause, limitArg)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("docstore postgres: search: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (docstore.SearchResult, error) {
		var (
			sr  docstore.SearchResult
			vec pgvector.Vector
		)
		if err := row.Scan(
			&sr.Document.ID,
			&sr.Document.Collection,
			&sr.Document.Content,
			&vec,
			&sr.Document.FileName,
			&sr.Document.Page,
			&sr.Document.Language,
			&sr.Document.CreatedAt,
			&sr.Distance,
		); err != nil {
			return docstore.SearchResult{}, err
		}
		sr.Document.Embedding = vec.Slice()
		return sr, nil
	})
	if err != nil {
		return nil, fmt.Errorf("docstore postgres: scan rows: %w", err)
	}
	if results == nil {
		results = []docstore.SearchResult{}
	}
	return results, nil
}

// Count implements [docstore.Store].
func (s *Store) Count(ctx context.Context, collection string) (int64, error) {
	var (
		n   int64
		err error
	)
	if collection == "" {
		err = s.pool.QueryRow(ctx, `SELECT count(*) FROM documents`).Scan(&n)
	} else {
		err = s.pool.QueryRow(ctx, `SELECT count(*) FROM documents WHERE collection = $1`, collection).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("docstore postgres: count: %w", err)
	}
	return n, nil
}

// Collections implements [docstore.Store].
func (s *Store) Collections(ctx context.Context) ([]docstore.CollectionInfo, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT collection, count(*)
		FROM   documents
		GROUP  BY collection
		ORDER  BY collection`)
	if err != nil {
		return nil, fmt.Errorf("docstore postgres: collections: %w", err)
	}

	infos, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (docstore.CollectionInfo, error) {
		var ci docstore.CollectionInfo
		err := row.Scan(&ci.Name, &ci.Documents)
		return ci, err
	})
	if err != nil {
		return nil, fmt.Errorf("docstore postgres: scan collections: %w", err)
	}
	if infos == nil {
		infos = []docstore.CollectionInfo{}
	}
	return infos, nil
}

// DeleteByIDs implements [docstore.Store]. Missing IDs are silently ignored.
func (s *Store) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("docstore postgres: delete: %w", err)
	}
	return nil
}
