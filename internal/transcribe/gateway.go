// Package transcribe turns complete utterances into verified-language text.
//
// The [Gateway] sits between the voice loop and the speech-to-text backends:
// it picks a language hint via a pluggable routing [Policy], calls the
// configured [stt.Provider] once per utterance, verifies the result language
// with script and statistical detection, and optionally runs a phonetic
// vocabulary [Corrector] over the transcript.
package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/banglarag/banglarag/internal/observe"
	"github.com/banglarag/banglarag/pkg/provider/stt"
)

// Policy selects the language hint passed to the speech-to-text backend.
// Implementations must be safe for concurrent use.
type Policy interface {
	// Hint returns the whisper language hint ("en", "bn", or "" for
	// backend auto-detection).
	Hint() string

	// Name identifies the policy in logs.
	Name() string
}

// byHint always hints the configured language. The result language is still
// verified by detection, so a wrong hint degrades quality but not correctness.
type byHint struct{ lang string }

func (p byHint) Hint() string { return p.lang }
func (p byHint) Name() string { return "by_hint(" + p.lang + ")" }

// ByHint returns the default routing policy: always hint lang.
func ByHint(lang string) Policy { return byHint{lang: lang} }

// autoDetect passes no hint and lets the backend pick the language.
type autoDetect struct{}

func (autoDetect) Hint() string { return "" }
func (autoDetect) Name() string { return "auto" }

// AutoDetect returns a policy that defers language choice to the backend.
func AutoDetect() Policy { return autoDetect{} }

// Result is a finished transcription.
type Result struct {
	// Text is the transcript after optional vocabulary correction.
	Text string

	// Language is the verified content language ("en" or "bn"), decided by
	// detection on the transcript rather than trusted from the backend.
	Language string

	// Duration is the audio duration of the transcribed utterance.
	Duration time.Duration
}

// Option is a functional option for configuring a [Gateway].
type Option func(*Gateway)

// WithPolicy sets the language routing policy. Default: [ByHint] English.
func WithPolicy(p Policy) Option {
	return func(g *Gateway) { g.policy = p }
}

// WithCorrector attaches a vocabulary [Corrector] applied to English
// transcripts. When nil (the default), correction is skipped.
func WithCorrector(c *Corrector) Option {
	return func(g *Gateway) { g.corrector = c }
}

// WithLogger sets the logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// WithMetrics enables recording of transcription latency. When nil (the
// default), no metrics are recorded.
func WithMetrics(m *observe.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// Gateway transcribes complete utterances. Safe for concurrent use when the
// underlying provider is.
type Gateway struct {
	provider   stt.Provider
	sampleRate int
	policy     Policy
	corrector  *Corrector
	logger     *slog.Logger
	metrics    *observe.Metrics
}

// New creates a Gateway over provider. sampleRate is the PCM sample rate of
// the utterances handed to [Gateway.Transcribe].
func New(provider stt.Provider, sampleRate int, opts ...Option) (*Gateway, error) {
	if provider == nil {
		return nil, fmt.Errorf("transcribe: provider must not be nil")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("transcribe: sample rate must be positive, got %d", sampleRate)
	}
	g := &Gateway{
		provider:   provider,
		sampleRate: sampleRate,
		policy:     ByHint(LangEnglish),
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

// Transcribe converts one complete utterance of 16-bit mono PCM into text.
//
// An empty transcript is not an error: callers distinguish "backend failed"
// from "nothing intelligible was said" by checking Result.Text.
func (g *Gateway) Transcribe(ctx context.Context, pcm []byte) (Result, error) {
	hint := g.policy.Hint()

	start := time.Now()
	res, err := g.provider.Transcribe(ctx, pcm, stt.Config{
		SampleRate: g.sampleRate,
		Language:   hint,
	})
	if g.metrics != nil {
		g.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		return Result{}, fmt.Errorf("transcribe: %w", err)
	}

	text := strings.TrimSpace(res.Text)
	lang := DetectLanguage(text)
	if lang != "" && hint != "" && lang != hint {
		g.logger.Debug("transcript language differs from hint",
			"hint", hint, "detected", lang, "policy", g.policy.Name())
	}

	if g.corrector != nil && lang == LangEnglish {
		corrected, corrections := g.corrector.Correct(text)
		if len(corrections) > 0 {
			g.logger.Debug("applied vocabulary corrections", "count", len(corrections))
			text = corrected
		}
	}

	return Result{Text: text, Language: lang, Duration: res.Duration}, nil
}
