// Package rag answers questions over the ingested study materials.
//
// The [Processor] is the retrieval-augmented generation pipeline: it detects
// the question language, embeds the question with the matching model,
// retrieves the closest document chunks, builds a query-type-specific prompt,
// and generates an answer through the configured LLM chain. Retrieval and
// generation results are cached with independent TTLs so repeated questions
// during a study session do not re-hit the database or the model.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jellydator/ttlcache/v3"

	"github.com/banglarag/banglarag/internal/observe"
	"github.com/banglarag/banglarag/internal/transcribe"
	"github.com/banglarag/banglarag/pkg/docstore"
	"github.com/banglarag/banglarag/pkg/provider/embeddings"
	"github.com/banglarag/banglarag/pkg/provider/llm"
)

const (
	defaultRetrievalK       = 3
	defaultQueryCacheTTL    = 10 * time.Minute
	defaultResponseCacheTTL = 30 * time.Minute
	maxContextLength        = 2000
)

// Citation points a generated answer back at its source material.
type Citation struct {
	// Title is the source file name.
	Title string `json:"title"`

	// Page is the 1-based page number, 0 for unpaged sources.
	Page int `json:"page"`
}

// Answer is a finished response to a question.
type Answer struct {
	// Text is the generated answer (or a polite "nothing found" message when
	// retrieval came back empty).
	Text string `json:"answer"`

	// Citations lists the retrieved chunks that grounded the answer.
	Citations []Citation `json:"citations"`

	// Language is the detected question language ("en" or "bn").
	Language string `json:"language"`

	// Model is the model that generated the answer, empty when no model ran.
	Model string `json:"model,omitempty"`

	// QueryType is the detected question category.
	QueryType QueryType `json:"query_type"`
}

// Option is a functional option for configuring a [Processor].
type Option func(*Processor)

// WithBanglaEmbedder sets a separate embedding provider for Bangla questions.
// Without one, the default embedder serves both languages (it should then be
// a multilingual model such as bge-m3).
func WithBanglaEmbedder(p embeddings.Provider) Option {
	return func(pr *Processor) { pr.embedBN = p }
}

// WithCollection restricts retrieval to the named collection. Default: all
// collections.
func WithCollection(name string) Option {
	return func(pr *Processor) { pr.collection = name }
}

// WithRetrievalK sets the number of chunks retrieved per question. Default: 3.
func WithRetrievalK(k int) Option {
	return func(pr *Processor) {
		if k > 0 {
			pr.retrievalK = k
		}
	}
}

// WithQueryCacheTTL sets the retrieval cache TTL. Default: 10 minutes.
func WithQueryCacheTTL(ttl time.Duration) Option {
	return func(pr *Processor) { pr.queryTTL = ttl }
}

// WithResponseCacheTTL sets the generated-answer cache TTL. Default: 30 minutes.
func WithResponseCacheTTL(ttl time.Duration) Option {
	return func(pr *Processor) { pr.responseTTL = ttl }
}

// WithLogger sets the logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(pr *Processor) { pr.logger = l }
}

// WithMetrics attaches metrics instruments. Default: no metrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(pr *Processor) { pr.metrics = m }
}

// Processor is the RAG pipeline. Safe for concurrent use.
type Processor struct {
	store      docstore.Store
	generator  llm.Provider
	embedEN    embeddings.Provider
	embedBN    embeddings.Provider
	collection string
	retrievalK int

	queryTTL    time.Duration
	responseTTL time.Duration
	queries     *ttlcache.Cache[string, []docstore.SearchResult]
	responses   *ttlcache.Cache[string, Answer]

	logger  *slog.Logger
	metrics *observe.Metrics
}

// New creates a Processor. embedder is the default embedding provider, used
// for English questions and, absent [WithBanglaEmbedder], Bangla ones too.
func New(store docstore.Store, generator llm.Provider, embedder embeddings.Provider, opts ...Option) (*Processor, error) {
	if store == nil || generator == nil || embedder == nil {
		return nil, fmt.Errorf("rag: store, generator, and embedder must not be nil")
	}
	p := &Processor{
		store:       store,
		generator:   generator,
		embedEN:     embedder,
		retrievalK:  defaultRetrievalK,
		queryTTL:    defaultQueryCacheTTL,
		responseTTL: defaultResponseCacheTTL,
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	p.queries = ttlcache.New[string, []docstore.SearchResult](
		ttlcache.WithTTL[string, []docstore.SearchResult](p.queryTTL),
	)
	p.responses = ttlcache.New[string, Answer](
		ttlcache.WithTTL[string, Answer](p.responseTTL),
	)
	go p.queries.Start()
	go p.responses.Start()
	return p, nil
}

// Close stops the cache expiration janitors.
func (p *Processor) Close() {
	p.queries.Stop()
	p.responses.Stop()
}

// notFound is the per-language answer when retrieval returns nothing.
var notFound = map[string]string{
	"en": "I couldn't find relevant information in the documents for your question. " +
		"Please try rephrasing or ask about topics covered in the loaded documents.",
	"bn": "আপনার প্রশ্নের জন্য ডকুমেন্টে প্রাসঙ্গিক তথ্য খুঁজে পাইনি। " +
		"অনুগ্রহ করে প্রশ্নটি অন্যভাবে করুন বা লোড করা ডকুমেন্টের বিষয়ে জিজ্ঞাসা করুন।",
}

// Answer runs the full pipeline for one question against the configured
// collection.
//
// An empty retrieval is a successful answer carrying the "nothing found"
// message and no model attribution. A generation failure is an error; the
// caller decides how to surface it.
func (p *Processor) Answer(ctx context.Context, question string) (Answer, error) {
	return p.AnswerIn(ctx, question, p.collection)
}

// AnswerIn is [Processor.Answer] with a per-call collection override. An
// empty collection searches all collections. The web API uses this to serve
// multiple course collections through one processor; caches are keyed by
// collection so answers never leak across courses.
func (p *Processor) AnswerIn(ctx context.Context, question, collection string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, fmt.Errorf("rag: question must not be empty")
	}

	lang := transcribe.DetectLanguage(question)
	cacheKey := lang + "|" + collection + "|" + strings.ToLower(question)

	if item := p.responses.Get(cacheKey); item != nil {
		p.recordCacheHit(ctx, "response")
		return item.Value(), nil
	}

	results, err := p.retrieve(ctx, question, lang, collection, cacheKey, p.retrievalK)
	if err != nil {
		return Answer{}, err
	}

	qt := DetectQueryType(question)
	if len(results) == 0 {
		p.logger.Info("no relevant chunks retrieved", "language", lang)
		return Answer{Text: notFound[orEnglish(lang)], Language: lang, QueryType: qt, Citations: []Citation{}}, nil
	}

	prompt := BuildPrompt(question, buildContext(results), qt, lang)

	llmStart := time.Now()
	resp, err := p.generator.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages:     []llm.Message{{Role: "user", Content: prompt}},
	})
	if p.metrics != nil {
		p.metrics.LLMDuration.Record(ctx, time.Since(llmStart).Seconds())
	}
	if err != nil {
		return Answer{}, fmt.Errorf("rag: generate: %w", err)
	}

	answer := Answer{
		Text:      strings.TrimSpace(resp.Content),
		Citations: extractCitations(results),
		Language:  lang,
		Model:     p.generator.Model(),
		QueryType: qt,
	}

	p.responses.Set(cacheKey, answer, ttlcache.DefaultTTL)
	if p.metrics != nil {
		p.metrics.RecordQuestionAnswered(ctx, orEnglish(lang))
	}
	return answer, nil
}

// retrieve embeds the question and searches the docstore for the k closest
// chunks, short-circuiting through the query cache.
func (p *Processor) retrieve(ctx context.Context, question, lang, collection, cacheKey string, k int) ([]docstore.SearchResult, error) {
	if item := p.queries.Get(cacheKey); item != nil {
		p.recordCacheHit(ctx, "query")
		return item.Value(), nil
	}

	embedder := p.embedEN
	if lang == transcribe.LangBangla && p.embedBN != nil {
		embedder = p.embedBN
	}

	embedStart := time.Now()
	vector, err := embedder.Embed(ctx, question)
	if p.metrics != nil {
		p.metrics.EmbeddingDuration.Record(ctx, time.Since(embedStart).Seconds())
	}
	if err != nil {
		return nil, fmt.Errorf("rag: embed question: %w", err)
	}

	searchStart := time.Now()
	results, err := p.store.Search(ctx, vector, k, docstore.Filter{Collection: collection})
	if p.metrics != nil {
		p.metrics.RetrievalDuration.Record(ctx, time.Since(searchStart).Seconds())
	}
	if err != nil {
		return nil, fmt.Errorf("rag: retrieve: %w", err)
	}

	p.queries.Set(cacheKey, results, ttlcache.DefaultTTL)
	return results, nil
}

func (p *Processor) recordCacheHit(ctx context.Context, cache string) {
	if p.metrics != nil {
		p.metrics.RecordCacheHit(ctx, cache)
	}
}

// buildContext concatenates retrieved chunks with page attributions, capped
// at maxContextLength characters so small-model context windows are not
// overrun.
func buildContext(results []docstore.SearchResult) string {
	var parts []string
	length := 0
	for _, r := range results {
		part := r.Document.Content
		if r.Document.Page > 0 {
			part = fmt.Sprintf("%s (Page %d)", part, r.Document.Page)
		}
		if length+len(part) > maxContextLength {
			remaining := maxContextLength - length
			if remaining > 100 {
				// Back up to a rune boundary so Bangla text is never cut
				// mid-character.
				cut := remaining - 3
				for cut > 0 && !utf8.RuneStart(part[cut]) {
					cut--
				}
				parts = append(parts, part[:cut]+"...")
			}
			break
		}
		parts = append(parts, part)
		length += len(part)
	}
	return strings.Join(parts, "\n\n")
}

// extractCitations maps retrieved chunks to citations, deduplicated by
// (title, page) in retrieval order.
func extractCitations(results []docstore.SearchResult) []Citation {
	seen := make(map[Citation]struct{}, len(results))
	citations := []Citation{}
	for _, r := range results {
		c := Citation{Title: r.Document.FileName, Page: r.Document.Page}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		citations = append(citations, c)
	}
	return citations
}

func orEnglish(lang string) string {
	if lang == "" {
		return "en"
	}
	return lang
}
