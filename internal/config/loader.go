package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"ollama", "openai", "anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":        {"whisper", "whisper-native"},
	"embeddings": {"ollama", "openai"},
	"vad":        {"webrtc", "energy"},
}

// DefaultModelChain is the LLM failover order used when providers.llm.models
// is not set. Small models first, so a machine that can only run the smallest
// still answers.
var DefaultModelChain = []string{"qwen2:1.5b", "phi3", "mistral", "llama2"}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields with their documented defaults.
// It is idempotent.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	if cfg.Providers.LLM.Name == "" {
		cfg.Providers.LLM.Name = "ollama"
	}
	if len(cfg.Providers.LLM.Models) == 0 {
		cfg.Providers.LLM.Models = slices.Clone(DefaultModelChain)
	}
	if cfg.Providers.LLM.Temperature == 0 {
		cfg.Providers.LLM.Temperature = 0.3
	}
	if cfg.Providers.STT.Name == "" {
		cfg.Providers.STT.Name = "whisper"
	}
	if cfg.Providers.Embeddings.Name == "" {
		cfg.Providers.Embeddings.Name = "ollama"
	}
	if cfg.Providers.Embeddings.Model == "" {
		cfg.Providers.Embeddings.Model = "nomic-embed-text"
	}
	if cfg.Providers.VAD.Name == "" {
		cfg.Providers.VAD.Name = "webrtc"
	}
	if cfg.Providers.VAD.Mode == 0 {
		cfg.Providers.VAD.Mode = 2
	}
	if cfg.Providers.VAD.EnergyThreshold == 0 {
		cfg.Providers.VAD.EnergyThreshold = 0.01
	}

	if cfg.Session.SilenceThresholdSec == 0 {
		cfg.Session.SilenceThresholdSec = 2.0
	}
	if cfg.Session.MinSpeechSec == 0 {
		cfg.Session.MinSpeechSec = 0.5
	}
	if cfg.Session.MaxUtteranceSec == 0 {
		cfg.Session.MaxUtteranceSec = 30.0
	}
	if cfg.Session.SampleRate == 0 {
		cfg.Session.SampleRate = 16000
	}
	if cfg.Session.FrameDurationMs == 0 {
		cfg.Session.FrameDurationMs = 30
	}

	if cfg.Docstore.Collection == "" {
		cfg.Docstore.Collection = "study_materials"
	}

	if cfg.RAG.RetrievalK == 0 {
		cfg.RAG.RetrievalK = 3
	}
	if cfg.RAG.ChunkSizeEnglish == 0 {
		cfg.RAG.ChunkSizeEnglish = 1000
	}
	if cfg.RAG.ChunkSizeBangla == 0 {
		cfg.RAG.ChunkSizeBangla = 800
	}
	if cfg.RAG.ChunkOverlap == 0 {
		cfg.RAG.ChunkOverlap = 100
	}
	if cfg.RAG.QueryCacheTTLSec == 0 {
		cfg.RAG.QueryCacheTTLSec = 600
	}
	if cfg.RAG.ResponseCacheTTLSec == 0 {
		cfg.RAG.ResponseCacheTTLSec = 1800
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Provider name validation, warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)
	validateProviderName("vad", cfg.Providers.VAD.Name)

	// STT provider-specific requirements.
	switch cfg.Providers.STT.Name {
	case "whisper":
		if cfg.Providers.STT.BaseURL == "" {
			errs = append(errs, errors.New("providers.stt.base_url is required for the whisper provider"))
		}
	case "whisper-native":
		if cfg.Providers.STT.ModelPath == "" {
			errs = append(errs, errors.New("providers.stt.model_path is required for the whisper-native provider"))
		}
	}
	if lang := cfg.Providers.STT.Language; lang != "" && !Language(lang).IsValid() {
		errs = append(errs, fmt.Errorf("providers.stt.language %q is invalid; valid values: en, bn", lang))
	}

	// VAD
	if cfg.Providers.VAD.Mode < 0 || cfg.Providers.VAD.Mode > 3 {
		errs = append(errs, fmt.Errorf("providers.vad.mode %d is out of range [0, 3]", cfg.Providers.VAD.Mode))
	}
	if t := cfg.Providers.VAD.EnergyThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("providers.vad.energy_threshold %v is out of range [0, 1]", t))
	}

	// Session tuning
	s := cfg.Session
	if s.SilenceThresholdSec <= 0 {
		errs = append(errs, fmt.Errorf("session.silence_threshold %.2f must be positive", s.SilenceThresholdSec))
	}
	if s.MinSpeechSec < 0 {
		errs = append(errs, fmt.Errorf("session.min_speech_duration %.2f must not be negative", s.MinSpeechSec))
	}
	if s.MaxUtteranceSec <= s.SilenceThresholdSec {
		errs = append(errs, fmt.Errorf("session.max_utterance_duration %.2f must exceed session.silence_threshold %.2f", s.MaxUtteranceSec, s.SilenceThresholdSec))
	}
	switch s.SampleRate {
	case 8000, 16000, 32000, 48000:
	default:
		errs = append(errs, fmt.Errorf("session.sample_rate %d is unsupported; valid values: 8000, 16000, 32000, 48000", s.SampleRate))
	}
	switch s.FrameDurationMs {
	case 10, 20, 30:
	default:
		errs = append(errs, fmt.Errorf("session.frame_duration_ms %d is unsupported; valid values: 10, 20, 30", s.FrameDurationMs))
	}

	// Docstore availability
	if cfg.Docstore.PostgresDSN == "" {
		slog.Warn("docstore.postgres_dsn is empty; retrieval will not be available and answers fall back to model knowledge")
	}
	if cfg.Providers.Embeddings.Name != "" && cfg.Docstore.EmbeddingDimensions <= 0 {
		slog.Warn("providers.embeddings is configured but docstore.embedding_dimensions is not set; the store will probe the model on startup")
	}

	// RAG tuning
	if cfg.RAG.RetrievalK < 1 {
		errs = append(errs, fmt.Errorf("rag.retrieval_k %d must be at least 1", cfg.RAG.RetrievalK))
	}
	if cfg.RAG.ChunkOverlap >= cfg.RAG.ChunkSizeBangla || cfg.RAG.ChunkOverlap >= cfg.RAG.ChunkSizeEnglish {
		errs = append(errs, fmt.Errorf("rag.chunk_overlap %d must be smaller than both chunk sizes", cfg.RAG.ChunkOverlap))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
