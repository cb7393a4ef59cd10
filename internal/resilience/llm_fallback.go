package resilience

import (
	"context"
	"fmt"

	"github.com/banglarag/banglarag/pkg/provider/llm"
)

// LLMFallback implements [llm.Provider] with automatic failover across multiple
// LLM backends. Each backend has its own circuit breaker; when the preferred
// backend fails or its breaker is open, the next healthy fallback is tried.
// The model that last answered successfully is preferred on subsequent calls.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

// Compile-time interface assertion.
var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional LLM provider as a fallback.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Complete sends the request to the first healthy provider and returns its
// response.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(ctx, f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// StreamCompletion sends the request to the first healthy provider and returns
// a streaming chunk channel. Note: only the initial connection attempt is
// covered by failover; once a stream is established, mid-stream errors are the
// caller's responsibility.
func (f *LLMFallback) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return ExecuteWithResult(ctx, f.group, func(p llm.Provider) (<-chan llm.Chunk, error) {
		return p.StreamCompletion(ctx, req)
	})
}

// Entries returns the registered backend names in registration order.
func (f *LLMFallback) Entries() []string { return f.group.Names() }

// ActiveIndex returns the index of the backend tried first on the next call.
func (f *LLMFallback) ActiveIndex() int { return f.group.Preferred() }

// SetPreferred makes the named backend the first one tried. Used by the model
// switch endpoint; failover still applies when the preferred backend is down.
func (f *LLMFallback) SetPreferred(name string) error {
	for i, n := range f.group.Names() {
		if n == name {
			return f.group.SetPreferred(i)
		}
	}
	return fmt.Errorf("resilience: unknown model %q", name)
}

// Model returns the model identifier of the entry that last succeeded, so that
// answers report the model that actually produced them.
func (f *LLMFallback) Model() string {
	i := int(f.group.lastGood.Load())
	if i < 0 || i >= len(f.group.entries) {
		i = 0
	}
	return f.group.entries[i].value.Model()
}
