package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/banglarag/banglarag/internal/observe"
)

// ErrAllFailed is returned when every entry in a [FallbackGroup] fails or has an
// open circuit breaker.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig configures a [FallbackGroup].
type FallbackConfig struct {
	// CircuitBreaker is the per-entry breaker configuration. The entry name
	// overrides the breaker name.
	CircuitBreaker CircuitBreakerConfig

	// Kind labels the provider kind ("llm", "stt") on recorded metrics.
	Kind string

	// Metrics, when set, receives a provider request counter per attempt and
	// an error counter per failed attempt. Skipped entries (open breaker) are
	// not counted as requests.
	Metrics *observe.Metrics
}

// fallbackEntry pairs a provider value with its dedicated circuit breaker.
type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup wraps a primary and zero or more fallback instances of the same
// provider type. When the preferred entry fails (or its circuit breaker is
// open), the next healthy entry is tried in registration order.
//
// The group remembers which entry last succeeded and tries it first on
// subsequent calls. With a chain of local models this avoids paying a failed
// load attempt on every request when only a later model is installed; the
// primary is retried naturally once the sticky entry fails or its breaker
// opens.
//
// FallbackGroup is safe for concurrent use after registration is complete.
// AddFallback must not be called concurrently with Execute.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig

	// lastGood is the index of the most recently successful entry.
	lastGood atomic.Int32
}

// NewFallbackGroup creates a [FallbackGroup] with primary as the first entry.
// Additional fallbacks are registered via [FallbackGroup.AddFallback].
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	cbCfg := cfg.CircuitBreaker
	cbCfg.Name = primaryName
	return &FallbackGroup[T]{
		entries: []fallbackEntry[T]{
			{
				name:    primaryName,
				value:   primary,
				breaker: NewCircuitBreaker(cbCfg),
			},
		},
		cfg: cfg,
	}
}

// AddFallback appends a fallback provider. Fallbacks are tried in the order
// they are added, after the primary.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.entries = append(fg.entries, fallbackEntry[T]{
		name:    name,
		value:   fallback,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// tryOrder returns entry indices in attempt order: the sticky last-good entry
// first, then everything else in registration order.
func (fg *FallbackGroup[T]) tryOrder() []int {
	sticky := int(fg.lastGood.Load())
	if sticky < 0 || sticky >= len(fg.entries) {
		sticky = 0
	}
	order := make([]int, 0, len(fg.entries))
	order = append(order, sticky)
	for i := range fg.entries {
		if i != sticky {
			order = append(order, i)
		}
	}
	return order
}

// Names returns the entry names in registration order.
func (fg *FallbackGroup[T]) Names() []string {
	names := make([]string, len(fg.entries))
	for i, e := range fg.entries {
		names[i] = e.name
	}
	return names
}

// Preferred returns the index of the entry that will be tried first on the
// next call.
func (fg *FallbackGroup[T]) Preferred() int {
	i := int(fg.lastGood.Load())
	if i < 0 || i >= len(fg.entries) {
		return 0
	}
	return i
}

// SetPreferred makes the entry at index i the first one tried on subsequent
// calls. The usual sticky behavior resumes from there: a failure falls
// through the rest of the chain in registration order.
func (fg *FallbackGroup[T]) SetPreferred(i int) error {
	if i < 0 || i >= len(fg.entries) {
		return fmt.Errorf("resilience: no entry at index %d (have %d)", i, len(fg.entries))
	}
	fg.lastGood.Store(int32(i))
	return nil
}

// recordAttempt counts one provider call on the configured metrics. Open
// breakers never reach the provider, so those rejections are not recorded.
func (fg *FallbackGroup[T]) recordAttempt(ctx context.Context, name string, err error) {
	if fg.cfg.Metrics == nil || errors.Is(err, ErrCircuitOpen) {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
		fg.cfg.Metrics.RecordProviderError(ctx, name, fg.cfg.Kind)
	}
	fg.cfg.Metrics.RecordProviderRequest(ctx, name, fg.cfg.Kind, status)
}

// Execute tries fn against each entry until one succeeds, starting with the
// last entry that succeeded. Circuit-breaker-open entries are skipped. Returns
// [ErrAllFailed] wrapped with the last error if every entry fails.
func (fg *FallbackGroup[T]) Execute(ctx context.Context, fn func(T) error) error {
	var lastErr error
	for _, i := range fg.tryOrder() {
		entry := &fg.entries[i]
		err := entry.breaker.Execute(func() error {
			return fn(entry.value)
		})
		fg.recordAttempt(ctx, entry.name, err)
		if err == nil {
			fg.lastGood.Store(int32(i))
			return nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping provider (circuit open)", "provider", entry.name)
		} else {
			slog.Warn("provider failed, trying next",
				"provider", entry.name, "error", err)
		}
	}
	return fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}

// ExecuteWithResult tries fn against each entry in the group until one
// succeeds, returning both the result value and error. This is a package-level
// function because Go does not support method-level type parameters.
func ExecuteWithResult[T any, R any](ctx context.Context, fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	for _, i := range fg.tryOrder() {
		entry := &fg.entries[i]
		var result R
		err := entry.breaker.Execute(func() error {
			var innerErr error
			result, innerErr = fn(entry.value)
			return innerErr
		})
		fg.recordAttempt(ctx, entry.name, err)
		if err == nil {
			fg.lastGood.Store(int32(i))
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping provider (circuit open)", "provider", entry.name)
		} else {
			slog.Warn("provider failed, trying next",
				"provider", entry.name, "error", err)
		}
	}
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
