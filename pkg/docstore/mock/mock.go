// Package mock provides an in-memory [docstore.Store] for testing.
package mock

import (
	"context"
	"sort"
	"sync"

	"github.com/banglarag/banglarag/pkg/docstore"
)

// Compile-time interface check.
var _ docstore.Store = (*Store)(nil)

// Store is an in-memory [docstore.Store]. Search ranks documents by squared
// euclidean distance, which preserves cosine ordering for normalised
// embeddings and is close enough for tests.
//
// The zero value is ready to use. Err, when set, is returned by every method.
type Store struct {
	// Err, when non-nil, is returned by all methods.
	Err error

	mu   sync.Mutex
	docs map[string]docstore.Document

	searchCalls int
}

// Upsert implements [docstore.Store].
func (s *Store) Upsert(_ context.Context, doc docstore.Document) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.docs == nil {
		s.docs = make(map[string]docstore.Document)
	}
	s.docs[doc.ID] = doc
	return nil
}

// AddBatch implements [docstore.Store]. Existing IDs are skipped.
func (s *Store) AddBatch(_ context.Context, docs []docstore.Document) (int, error) {
	if s.Err != nil {
		return 0, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.docs == nil {
		s.docs = make(map[string]docstore.Document)
	}
	added := 0
	for _, d := range docs {
		if _, exists := s.docs[d.ID]; exists {
			continue
		}
		s.docs[d.ID] = d
		added++
	}
	return added, nil
}

// Search implements [docstore.Store].
func (s *Store) Search(_ context.Context, embedding []float32, topK int, filter docstore.Filter) ([]docstore.SearchResult, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchCalls++

	results := []docstore.SearchResult{}
	for _, d := range s.docs {
		if filter.Collection != "" && d.Collection != filter.Collection {
			continue
		}
		if filter.Language != "" && d.Language != filter.Language {
			continue
		}
		results = append(results, docstore.SearchResult{
			Document: d,
			Distance: sqDist(embedding, d.Embedding),
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Count implements [docstore.Store].
func (s *Store) Count(_ context.Context, collection string) (int64, error) {
	if s.Err != nil {
		return 0, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, d := range s.docs {
		if collection == "" || d.Collection == collection {
			n++
		}
	}
	return n, nil
}

// Collections implements [docstore.Store].
func (s *Store) Collections(_ context.Context) ([]docstore.CollectionInfo, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[string]int64{}
	for _, d := range s.docs {
		counts[d.Collection]++
	}
	infos := []docstore.CollectionInfo{}
	for name, n := range counts {
		infos = append(infos, docstore.CollectionInfo{Name: name, Documents: n})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// DeleteByIDs implements [docstore.Store].
func (s *Store) DeleteByIDs(_ context.Context, ids []string) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.docs, id)
	}
	return nil
}

// SearchCalls returns how many times Search has been invoked.
func (s *Store) SearchCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searchCalls
}

func sqDist(a, b []float32) float64 {
	var sum float64
	for i := 0; i < len(a) && i < len(b); i++ {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return sum
}
