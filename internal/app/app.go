// Package app wires all BanglaRAG subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the web server and the voice session, and
// Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithStore, WithLLM, WithCapture, etc.). When an option is not provided,
// New creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"golang.org/x/sync/errgroup"

	"github.com/banglarag/banglarag/internal/config"
	"github.com/banglarag/banglarag/internal/health"
	"github.com/banglarag/banglarag/internal/ingest"
	"github.com/banglarag/banglarag/internal/observe"
	"github.com/banglarag/banglarag/internal/rag"
	"github.com/banglarag/banglarag/internal/resilience"
	"github.com/banglarag/banglarag/internal/transcribe"
	"github.com/banglarag/banglarag/internal/voice"
	"github.com/banglarag/banglarag/internal/web"
	"github.com/banglarag/banglarag/pkg/audio"
	"github.com/banglarag/banglarag/pkg/docstore"
	docpg "github.com/banglarag/banglarag/pkg/docstore/postgres"
	"github.com/banglarag/banglarag/pkg/provider/embeddings"
	ollamaembed "github.com/banglarag/banglarag/pkg/provider/embeddings/ollama"
	oaembed "github.com/banglarag/banglarag/pkg/provider/embeddings/openai"
	"github.com/banglarag/banglarag/pkg/provider/llm"
	"github.com/banglarag/banglarag/pkg/provider/llm/anyllm"
	"github.com/banglarag/banglarag/pkg/provider/stt"
	"github.com/banglarag/banglarag/pkg/provider/stt/whisper"
	"github.com/banglarag/banglarag/pkg/provider/vad"
	energyvad "github.com/banglarag/banglarag/pkg/provider/vad/energy"
	webrtcvad "github.com/banglarag/banglarag/pkg/provider/vad/webrtc"
)

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a document store instead of connecting to Postgres.
func WithStore(s docstore.Store) Option {
	return func(a *App) { a.store = s }
}

// WithLLM injects a generation provider instead of building the model chain.
func WithLLM(p llm.Provider) Option {
	return func(a *App) { a.generator = p }
}

// WithSTT injects a transcription provider.
func WithSTT(p stt.Provider) Option {
	return func(a *App) { a.sttProvider = p }
}

// WithEmbedder injects the default embedding provider.
func WithEmbedder(p embeddings.Provider) Option {
	return func(a *App) { a.embedder = p }
}

// WithBanglaEmbedder injects a multilingual embedder for Bangla content.
func WithBanglaEmbedder(p embeddings.Provider) Option {
	return func(a *App) { a.embedBN = p }
}

// WithVAD injects a voice activity detector.
func WithVAD(d vad.Detector) Option {
	return func(a *App) { a.detector = d }
}

// WithCapture injects an audio source instead of opening the microphone.
func WithCapture(c voice.FrameReader) Option {
	return func(a *App) { a.capture = c }
}

// WithCallbacks sets the conversation progress callbacks.
func WithCallbacks(cb voice.Callbacks) Option {
	return func(a *App) { a.callbacks = cb }
}

// WithLogger sets the logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithMetrics attaches metrics instruments. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// App owns all subsystem lifetimes: document store, provider chains, the RAG
// pipeline, the web API, and the voice conversation loop.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observe.Metrics

	store     docstore.Store
	generator llm.Provider
	chain     *resilience.LLMFallback

	embedder    embeddings.Provider
	embedBN     embeddings.Provider
	sttProvider stt.Provider
	gateway     *transcribe.Gateway
	detector    vad.Detector
	capture     voice.FrameReader

	processor  *rag.Processor
	controller *voice.Controller
	health     *health.Handler
	httpServer *http.Server

	callbacks voice.Callbacks

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// New creates an App by wiring all subsystems together. Initialisation is
// synchronous except provider warm-up, which runs in the background so a
// cold Ollama does not stall startup.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: config must not be nil")
	}
	a := &App{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initEmbeddings(); err != nil {
		return nil, fmt.Errorf("app: init embeddings: %w", err)
	}
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init docstore: %w", err)
	}
	if err := a.initLLM(); err != nil {
		return nil, fmt.Errorf("app: init llm: %w", err)
	}
	if err := a.initTranscription(); err != nil {
		return nil, fmt.Errorf("app: init transcription: %w", err)
	}
	if err := a.initRAG(); err != nil {
		return nil, fmt.Errorf("app: init rag: %w", err)
	}
	if err := a.initVoice(); err != nil {
		return nil, fmt.Errorf("app: init voice: %w", err)
	}
	a.initHealth()
	a.initServer()

	return a, nil
}

// initEmbeddings builds the embedding provider named in config.
func (a *App) initEmbeddings() error {
	if a.embedder != nil {
		return nil
	}
	entry := a.cfg.Providers.Embeddings
	switch entry.Name {
	case "ollama":
		p, err := ollamaembed.New(entry.BaseURL, entry.Model)
		if err != nil {
			return err
		}
		a.embedder = p
	case "openai":
		var embedOpts []oaembed.Option
		if entry.BaseURL != "" {
			embedOpts = append(embedOpts, oaembed.WithBaseURL(entry.BaseURL))
		}
		p, err := oaembed.New(entry.APIKey, entry.Model, embedOpts...)
		if err != nil {
			return err
		}
		a.embedder = p
	default:
		return fmt.Errorf("unknown embeddings provider %q", entry.Name)
	}
	a.logger.Info("provider created", "kind", "embeddings", "name", entry.Name, "model", entry.Model)
	return nil
}

// initStore connects the pgvector document store or uses an injected one.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	dsn := a.cfg.Docstore.PostgresDSN
	if dsn == "" {
		return fmt.Errorf("docstore.postgres_dsn is required when no store is injected")
	}
	dims := a.cfg.Docstore.EmbeddingDimensions
	if dims == 0 {
		dims = a.embedder.Dimensions()
	}
	store, err := docpg.NewStore(ctx, dsn, dims)
	if err != nil {
		return err
	}
	a.store = store
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	return nil
}

// initLLM builds the model failover chain from the configured model list.
func (a *App) initLLM() error {
	if a.generator != nil {
		// Injected providers bypass the chain; the model endpoints then
		// report a single-entry configuration if the provider is a chain.
		if chain, ok := a.generator.(*resilience.LLMFallback); ok {
			a.chain = chain
		}
		return nil
	}
	entry := a.cfg.Providers.LLM
	if len(entry.Models) == 0 {
		return fmt.Errorf("providers.llm.models must not be empty")
	}

	var llmOpts []anyllmlib.Option
	if entry.APIKey != "" {
		llmOpts = append(llmOpts, anyllmlib.WithAPIKey(entry.APIKey))
	}
	if entry.BaseURL != "" {
		llmOpts = append(llmOpts, anyllmlib.WithBaseURL(entry.BaseURL))
	}

	primary, err := anyllm.New(entry.Name, entry.Models[0], llmOpts...)
	if err != nil {
		return fmt.Errorf("create llm provider %q model %q: %w", entry.Name, entry.Models[0], err)
	}
	chain := resilience.NewLLMFallback(primary, entry.Models[0], resilience.FallbackConfig{
		Kind:    "llm",
		Metrics: a.metrics,
	})
	for _, model := range entry.Models[1:] {
		p, err := anyllm.New(entry.Name, model, llmOpts...)
		if err != nil {
			return fmt.Errorf("create llm provider %q model %q: %w", entry.Name, model, err)
		}
		chain.AddFallback(model, p)
	}
	a.chain = chain
	a.generator = chain
	a.logger.Info("provider created", "kind", "llm", "name", entry.Name, "models", entry.Models)
	return nil
}

// initTranscription builds the STT provider and the transcription gateway.
func (a *App) initTranscription() error {
	if a.sttProvider == nil {
		entry := a.cfg.Providers.STT
		switch entry.Name {
		case "whisper":
			var whisperOpts []whisper.Option
			if entry.Model != "" {
				whisperOpts = append(whisperOpts, whisper.WithModel(entry.Model))
			}
			p, err := whisper.New(entry.BaseURL, whisperOpts...)
			if err != nil {
				return err
			}
			a.sttProvider = p

			// A model_path next to a server URL makes the in-process model
			// the fallback for when the server is unreachable.
			if entry.ModelPath != "" {
				native, err := whisper.NewNative(entry.ModelPath)
				if err != nil {
					return err
				}
				a.closers = append(a.closers, native.Close)
				chain := resilience.NewSTTFallback(p, "whisper-server", resilience.FallbackConfig{
					Kind:    "stt",
					Metrics: a.metrics,
				})
				chain.AddFallback("whisper-native", native)
				a.sttProvider = chain
			}
		case "whisper-native":
			var nativeOpts []whisper.NativeOption
			if entry.Language != "" {
				nativeOpts = append(nativeOpts, whisper.WithNativeLanguage(entry.Language))
			}
			p, err := whisper.NewNative(entry.ModelPath, nativeOpts...)
			if err != nil {
				return err
			}
			a.sttProvider = p
			a.closers = append(a.closers, p.Close)
		default:
			return fmt.Errorf("unknown stt provider %q", entry.Name)
		}
		a.logger.Info("provider created", "kind", "stt", "name", entry.Name)
	}

	policy := transcribe.AutoDetect()
	if lang := a.cfg.Providers.STT.Language; lang != "" {
		policy = transcribe.ByHint(lang)
	}
	gateway, err := transcribe.New(a.sttProvider, a.cfg.Session.SampleRate,
		transcribe.WithPolicy(policy),
		transcribe.WithCorrector(transcribe.NewCorrector(transcribe.DefaultVocabulary)),
		transcribe.WithLogger(a.logger),
		transcribe.WithMetrics(a.metrics),
	)
	if err != nil {
		return err
	}
	a.gateway = gateway
	return nil
}

// initRAG builds the question-answering pipeline.
func (a *App) initRAG() error {
	processor, err := rag.New(a.store, a.generator, a.embedder,
		rag.WithBanglaEmbedder(a.embedBN),
		rag.WithCollection(a.cfg.Docstore.Collection),
		rag.WithRetrievalK(a.cfg.RAG.RetrievalK),
		rag.WithQueryCacheTTL(a.cfg.RAG.QueryCacheTTL()),
		rag.WithResponseCacheTTL(a.cfg.RAG.ResponseCacheTTL()),
		rag.WithLogger(a.logger),
		rag.WithMetrics(a.metrics),
	)
	if err != nil {
		return err
	}
	a.processor = processor
	a.closers = append(a.closers, func() error {
		processor.Close()
		return nil
	})
	return nil
}

// initVoice builds the VAD, opens the microphone, and wires the conversation
// controller. A missing input device disables the voice session; the web API
// still serves.
func (a *App) initVoice() error {
	if a.detector == nil {
		vadCfg := vad.Config{
			SampleRate:      a.cfg.Session.SampleRate,
			FrameDurationMs: a.cfg.Session.FrameDurationMs,
		}
		energy, err := energyvad.New(vadCfg, energyvad.WithThreshold(a.cfg.Providers.VAD.EnergyThreshold))
		if err != nil {
			return err
		}
		switch a.cfg.Providers.VAD.Name {
		case "energy":
			a.detector = energy
		case "webrtc":
			primary, err := webrtcvad.New(vadCfg, webrtcvad.WithMode(a.cfg.Providers.VAD.Mode))
			if err != nil {
				return err
			}
			a.detector = vad.NewFallback(primary, energy, a.logger)
		default:
			return fmt.Errorf("unknown vad provider %q", a.cfg.Providers.VAD.Name)
		}
	}

	if a.capture == nil {
		capture, err := audio.OpenCapture(audio.CaptureConfig{
			SampleRate:      a.cfg.Session.SampleRate,
			FrameDurationMs: a.cfg.Session.FrameDurationMs,
		})
		if errors.Is(err, audio.ErrDeviceUnavailable) {
			a.logger.Warn("no audio input device, voice session disabled", "error", err)
			return nil
		}
		if err != nil {
			return err
		}
		a.capture = capture
	}

	controller, err := voice.NewController(
		a.capture, a.detector, a.gateway, a.processor,
		voice.SegmenterConfig{
			SilenceThreshold: a.cfg.Session.SilenceThreshold(),
			MinSpeech:        a.cfg.Session.MinSpeech(),
			MaxUtterance:     a.cfg.Session.MaxUtterance(),
			SampleRate:       a.cfg.Session.SampleRate,
		},
		voice.WithCallbacks(a.callbacks),
		voice.WithControllerLogger(a.logger),
		voice.WithControllerMetrics(a.metrics),
	)
	if err != nil {
		return err
	}
	a.controller = controller
	return nil
}

// initHealth assembles the readiness checkers for the configured backends.
func (a *App) initHealth() {
	checkers := []health.Checker{}

	if pg, ok := a.store.(*docpg.Store); ok {
		checkers = append(checkers, health.Checker{
			Name:  "database",
			Check: pg.Ping,
		})
	}
	checkers = append(checkers, health.Checker{
		Name: "embeddings",
		Check: func(ctx context.Context) error {
			_, err := a.embedder.Embed(ctx, "ping")
			return err
		},
	})
	checkers = append(checkers, health.Checker{
		Name: "llm",
		Check: func(ctx context.Context) error {
			_, err := a.generator.Complete(ctx, llm.CompletionRequest{
				Messages:  []llm.Message{{Role: "user", Content: "ping"}},
				MaxTokens: 1,
			})
			return err
		},
	})

	a.health = health.New(checkers...)
}

// initServer assembles the web API around the pipeline.
func (a *App) initServer() {
	serverOpts := []web.Option{
		web.WithQuestionGenerator(a.processor),
		web.WithCollections(a.store),
		web.WithHealth(a.health),
		web.WithMetrics(a.metrics),
		web.WithLogger(a.logger),
	}
	if a.chain != nil {
		serverOpts = append(serverOpts, web.WithModelChain(a.chain))
	}
	server := web.New(a.processor, serverOpts...)

	a.httpServer = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// NewIngestor builds a document ingestor sharing the app's store and
// embedders. collection may be empty to use the configured default.
func (a *App) NewIngestor(collection string) (*ingest.Ingestor, error) {
	if collection == "" {
		collection = a.cfg.Docstore.Collection
	}
	return ingest.New(a.store, a.embedder,
		ingest.WithBanglaEmbedder(a.embedBN),
		ingest.WithCollection(collection),
		ingest.WithChunker(ingest.Chunker{
			EnglishSize: a.cfg.RAG.ChunkSizeEnglish,
			BanglaSize:  a.cfg.RAG.ChunkSizeBangla,
			Overlap:     a.cfg.RAG.ChunkOverlap,
		}),
		ingest.WithLogger(a.logger),
		ingest.WithMetrics(a.metrics),
	)
}

// History returns the conversation history, nil when voice is disabled.
func (a *App) History() *voice.History {
	if a.controller == nil {
		return nil
	}
	return a.controller.History()
}

// Run starts the web server and, when a microphone is available, the voice
// conversation loop. It blocks until ctx is cancelled or a subsystem fails.
func (a *App) Run(ctx context.Context) error {
	a.warmUp()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("web api listening", "addr", a.httpServer.Addr)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.httpServer.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.httpServer.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(shutdownCtx)
	})

	if a.controller != nil {
		g.Go(func() error {
			err := a.controller.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		a.logger.Info("running web-only, no voice session")
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// warmUp runs every health check once in the background so the first real
// question does not pay for model loading. Failures are logged, not fatal:
// /readyz keeps reporting the live state.
func (a *App) warmUp() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		began := time.Now()
		for name, err := range a.health.Probe(ctx) {
			a.logger.Warn("warm-up probe failed", "check", name, "error", err)
		}
		a.logger.Info("warm-up finished", "took", time.Since(began))
	}()
}

// Shutdown tears down all subsystems in init order. It respects the context
// deadline: if ctx expires, remaining closers are skipped.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.logger.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.logger.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.logger.Warn("closer error", "index", i, "error", err)
			}
		}
		a.logger.Info("shutdown complete")
	})
	return shutdownErr
}
