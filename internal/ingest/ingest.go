// Package ingest loads study material (PDF, plain text, markdown) into the
// document store: page-wise extraction, language-aware chunking, embedding,
// and batch insertion with duplicate skipping.
//
// Chunk IDs are deterministic functions of (source file, page, chunk index),
// so re-ingesting the same file is idempotent: the store's batch add skips
// every chunk that already exists.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/banglarag/banglarag/internal/observe"
	"github.com/banglarag/banglarag/internal/transcribe"
	"github.com/banglarag/banglarag/pkg/docstore"
	"github.com/banglarag/banglarag/pkg/provider/embeddings"
)

const (
	defaultCollection = "default"
	defaultBatchSize  = 32
)

// Stats summarises one ingestion run.
type Stats struct {
	Files   int
	Pages   int
	Chunks  int
	Added   int
	Skipped int
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithCollection sets the target collection. Default: "default".
func WithCollection(name string) Option {
	return func(in *Ingestor) { in.collection = name }
}

// WithBanglaEmbedder routes Bangla chunks to a multilingual embedder.
// Without it, all chunks use the default embedder.
func WithBanglaEmbedder(p embeddings.Provider) Option {
	return func(in *Ingestor) { in.embedBN = p }
}

// WithChunker overrides the chunking parameters.
func WithChunker(c Chunker) Option {
	return func(in *Ingestor) { in.chunker = c }
}

// WithBatchSize sets how many chunks are embedded and inserted per call.
// Default: 32.
func WithBatchSize(n int) Option {
	return func(in *Ingestor) {
		if n > 0 {
			in.batchSize = n
		}
	}
}

// WithLogger sets the logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(in *Ingestor) { in.logger = l }
}

// WithMetrics attaches metrics instruments. Default: no metrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(in *Ingestor) { in.metrics = m }
}

// Ingestor loads source files into the document store.
type Ingestor struct {
	store      docstore.Store
	embedder   embeddings.Provider
	embedBN    embeddings.Provider
	chunker    Chunker
	collection string
	batchSize  int
	logger     *slog.Logger
	metrics    *observe.Metrics
}

// New creates an Ingestor writing to store with embeddings from embedder.
func New(store docstore.Store, embedder embeddings.Provider, opts ...Option) (*Ingestor, error) {
	if store == nil {
		return nil, fmt.Errorf("ingest: store must not be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("ingest: embedder must not be nil")
	}
	in := &Ingestor{
		store:      store,
		embedder:   embedder,
		chunker:    DefaultChunker(),
		collection: defaultCollection,
		batchSize:  defaultBatchSize,
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(in)
	}
	return in, nil
}

// IngestFile loads, chunks, embeds, and stores one file. Chunks whose IDs
// already exist in the store are skipped by the batch insert and reported in
// Stats.Skipped.
func (in *Ingestor) IngestFile(ctx context.Context, path string) (Stats, error) {
	pages, err := Load(path)
	if err != nil {
		return Stats{}, err
	}
	source := filepath.Base(path)

	docs := in.chunkPages(source, pages)
	stats := Stats{Files: 1, Pages: len(pages), Chunks: len(docs)}
	if len(docs) == 0 {
		in.logger.Warn("file produced no chunks", "source", source)
		return stats, nil
	}

	if err := in.embedAll(ctx, docs); err != nil {
		return stats, err
	}

	for start := 0; start < len(docs); start += in.batchSize {
		end := min(start+in.batchSize, len(docs))
		added, err := in.store.AddBatch(ctx, docs[start:end])
		if err != nil {
			return stats, fmt.Errorf("ingest: store batch for %s: %w", source, err)
		}
		stats.Added += added
	}
	stats.Skipped = stats.Chunks - stats.Added

	if in.metrics != nil && stats.Added > 0 {
		in.metrics.DocumentsStored.Add(ctx, int64(stats.Added))
	}
	in.logger.Info("file ingested",
		"source", source,
		"collection", in.collection,
		"pages", stats.Pages,
		"chunks", stats.Chunks,
		"added", stats.Added,
		"skipped", stats.Skipped)
	return stats, nil
}

// IngestDir ingests every supported file under dir, recursively. Unsupported
// files are ignored; a file that fails aborts the run with its error.
func (in *Ingestor) IngestDir(ctx context.Context, dir string) (Stats, error) {
	var total Stats
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !supportedExt(path) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		stats, err := in.IngestFile(ctx, path)
		if err != nil {
			return err
		}
		total.Files += stats.Files
		total.Pages += stats.Pages
		total.Chunks += stats.Chunks
		total.Added += stats.Added
		total.Skipped += stats.Skipped
		return nil
	})
	if err != nil {
		return total, fmt.Errorf("ingest: walk %s: %w", dir, err)
	}
	return total, nil
}

// chunkPages converts loaded pages into unembedded documents. Language is
// detected per page so a mixed PDF chunks each page by its own script.
func (in *Ingestor) chunkPages(source string, pages []Page) []docstore.Document {
	var docs []docstore.Document
	now := time.Now()
	for _, page := range pages {
		lang := transcribe.DetectLanguage(page.Text)
		if lang == "" {
			lang = transcribe.LangEnglish
		}
		for idx, chunk := range in.chunker.Chunk(page.Text, lang) {
			docs = append(docs, docstore.Document{
				ID:         chunkID(source, page.Number, idx),
				Collection: in.collection,
				Content:    chunk,
				FileName:   source,
				Page:       page.Number,
				Language:   lang,
				CreatedAt:  now,
			})
		}
	}
	return docs
}

// embedAll fills in document embeddings, routing each language group to its
// embedder in batches.
func (in *Ingestor) embedAll(ctx context.Context, docs []docstore.Document) error {
	byLang := map[string][]int{}
	for i, d := range docs {
		byLang[d.Language] = append(byLang[d.Language], i)
	}
	for lang, indices := range byLang {
		provider := in.embedder
		if lang == transcribe.LangBangla && in.embedBN != nil {
			provider = in.embedBN
		}
		for start := 0; start < len(indices); start += in.batchSize {
			end := min(start+in.batchSize, len(indices))
			batch := indices[start:end]
			texts := make([]string, len(batch))
			for j, i := range batch {
				texts[j] = docs[i].Content
			}
			began := time.Now()
			vectors, err := provider.EmbedBatch(ctx, texts)
			if err != nil {
				return fmt.Errorf("ingest: embed batch (%s, %s): %w", lang, provider.ModelID(), err)
			}
			if in.metrics != nil {
				in.metrics.EmbeddingDuration.Record(ctx, time.Since(began).Seconds())
			}
			if len(vectors) != len(batch) {
				return fmt.Errorf("ingest: embedder returned %d vectors for %d texts", len(vectors), len(batch))
			}
			for j, i := range batch {
				docs[i].Embedding = vectors[j]
			}
		}
	}
	return nil
}

// chunkID derives a stable document ID from the chunk's position in its
// source file. Content is deliberately excluded: a re-export of the same
// file maps onto the same IDs and is skipped wholesale.
func chunkID(source string, page, index int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%d", source, page, index)))
	return hex.EncodeToString(sum[:12])
}

func supportedExt(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".txt", ".md", ".markdown":
		return true
	}
	return false
}
