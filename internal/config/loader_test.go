package config_test

import (
	"strings"
	"testing"

	"github.com/banglarag/banglarag/internal/config"
)

const minimalYAML = `
providers:
  stt:
    name: whisper
    base_url: http://localhost:8081
docstore:
  postgres_dsn: postgres://localhost:5432/banglarag
`

func TestLoadFromReader_MinimalConfig(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want default :8080", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("LogLevel = %q, want info", cfg.Server.LogLevel)
	}
	if got := cfg.Providers.LLM.Models; len(got) != 4 || got[0] != "qwen2:1.5b" {
		t.Errorf("LLM.Models = %v, want default chain starting with qwen2:1.5b", got)
	}
	if cfg.Session.SilenceThresholdSec != 2.0 {
		t.Errorf("SilenceThresholdSec = %v, want 2.0", cfg.Session.SilenceThresholdSec)
	}
	if cfg.Session.MinSpeechSec != 0.5 {
		t.Errorf("MinSpeechSec = %v, want 0.5", cfg.Session.MinSpeechSec)
	}
	if cfg.Session.MaxUtteranceSec != 30.0 {
		t.Errorf("MaxUtteranceSec = %v, want 30.0", cfg.Session.MaxUtteranceSec)
	}
	if cfg.Session.SampleRate != 16000 || cfg.Session.FrameDurationMs != 30 {
		t.Errorf("sample_rate/frame = %d/%d, want 16000/30", cfg.Session.SampleRate, cfg.Session.FrameDurationMs)
	}
	if cfg.Providers.VAD.Name != "webrtc" || cfg.Providers.VAD.Mode != 2 {
		t.Errorf("VAD = %+v, want webrtc mode 2", cfg.Providers.VAD)
	}
	if cfg.Docstore.Collection != "study_materials" {
		t.Errorf("Collection = %q, want study_materials", cfg.Docstore.Collection)
	}
	if cfg.RAG.RetrievalK != 3 || cfg.RAG.ChunkSizeEnglish != 1000 || cfg.RAG.ChunkSizeBangla != 800 {
		t.Errorf("RAG defaults = %+v", cfg.RAG)
	}
}

func TestLoadFromReader_RejectsUnknownFields(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_addr: ":9090"
  not_a_field: true
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestLoadFromReader_ExplicitValuesWin(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  stt:
    name: whisper-native
    model_path: /models/ggml-small.bin
  llm:
    models: [mistral]
session:
  silence_threshold: 1.5
  min_speech_duration: 0.3
  max_utterance_duration: 20
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Providers.LLM.Models) != 1 || cfg.Providers.LLM.Models[0] != "mistral" {
		t.Errorf("Models = %v, want [mistral]", cfg.Providers.LLM.Models)
	}
	if cfg.Session.SilenceThresholdSec != 1.5 {
		t.Errorf("SilenceThresholdSec = %v, want 1.5", cfg.Session.SilenceThresholdSec)
	}
	if cfg.Session.SilenceThreshold().Milliseconds() != 1500 {
		t.Errorf("SilenceThreshold() = %v, want 1.5s", cfg.Session.SilenceThreshold())
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	t.Parallel()
	if _, err := config.Load("/does/not/exist.yaml"); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}
