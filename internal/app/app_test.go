package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/banglarag/banglarag/internal/app"
	"github.com/banglarag/banglarag/internal/config"
	"github.com/banglarag/banglarag/pkg/audio"
	docmock "github.com/banglarag/banglarag/pkg/docstore/mock"
	embmock "github.com/banglarag/banglarag/pkg/provider/embeddings/mock"
	"github.com/banglarag/banglarag/pkg/provider/llm"
	llmmock "github.com/banglarag/banglarag/pkg/provider/llm/mock"
	sttmock "github.com/banglarag/banglarag/pkg/provider/stt/mock"
	vadmock "github.com/banglarag/banglarag/pkg/provider/vad/mock"
)

// testConfig returns a config with defaults applied and an ephemeral listen
// address so parallel tests never collide on a port.
func testConfig() *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Server.ListenAddr = "127.0.0.1:0"
	return cfg
}

// closedCapture is a FrameReader whose microphone is already gone. The
// conversation loop treats this as a clean end of input.
type closedCapture struct{}

func (closedCapture) ReadFrame() (audio.Frame, error) {
	return audio.Frame{}, audio.ErrCaptureClosed
}

func (closedCapture) Close() error { return nil }

// testOptions injects a full set of mock collaborators.
func testOptions() []app.Option {
	return []app.Option{
		app.WithStore(&docmock.Store{}),
		app.WithLLM(&llmmock.Provider{
			CompleteResponse: &llm.CompletionResponse{Content: "42."},
		}),
		app.WithSTT(&sttmock.Provider{}),
		app.WithEmbedder(&embmock.Provider{DimensionsValue: 4}),
		app.WithVAD(&vadmock.Detector{}),
		app.WithCapture(closedCapture{}),
	}
}

func TestNew_WithMocks(t *testing.T) {
	t.Parallel()

	application, err := app.New(context.Background(), testConfig(), testOptions()...)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	if application == nil {
		t.Fatal("New() returned nil app")
	}
	if application.History() == nil {
		t.Error("History() = nil, want conversation history when a capture is injected")
	}
}

func TestNew_NilConfig(t *testing.T) {
	t.Parallel()

	if _, err := app.New(context.Background(), nil); err == nil {
		t.Fatal("New(nil config) expected error, got nil")
	}
}

func TestNew_RequiresDSNWithoutStore(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Docstore.PostgresDSN = ""

	_, err := app.New(context.Background(), cfg,
		app.WithLLM(&llmmock.Provider{}),
		app.WithSTT(&sttmock.Provider{}),
		app.WithEmbedder(&embmock.Provider{DimensionsValue: 4}),
		app.WithVAD(&vadmock.Detector{}),
		app.WithCapture(closedCapture{}),
	)
	if err == nil {
		t.Fatal("New() without store or DSN expected error, got nil")
	}
}

func TestNew_UnknownProviders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"embeddings", func(cfg *config.Config) { cfg.Providers.Embeddings.Name = "bogus" }},
		{"stt", func(cfg *config.Config) { cfg.Providers.STT.Name = "bogus" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := testConfig()
			tt.mutate(cfg)

			// Only inject what sits before the provider under test, so the
			// config path for it is actually exercised.
			opts := []app.Option{
				app.WithStore(&docmock.Store{}),
				app.WithLLM(&llmmock.Provider{}),
				app.WithVAD(&vadmock.Detector{}),
				app.WithCapture(closedCapture{}),
			}
			if tt.name != "embeddings" {
				opts = append(opts, app.WithEmbedder(&embmock.Provider{DimensionsValue: 4}))
			}
			if tt.name != "stt" {
				opts = append(opts, app.WithSTT(&sttmock.Provider{}))
			}

			if _, err := app.New(context.Background(), cfg, opts...); err == nil {
				t.Fatalf("New() with unknown %s provider expected error, got nil", tt.name)
			}
		})
	}
}

func TestNewIngestor_UsesConfiguredCollection(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Docstore.Collection = "physics_101"

	application, err := app.New(context.Background(), cfg, testOptions()...)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ing, err := application.NewIngestor("")
	if err != nil {
		t.Fatalf("NewIngestor() error: %v", err)
	}
	if ing == nil {
		t.Fatal("NewIngestor() returned nil")
	}
}

func TestApp_Shutdown(t *testing.T) {
	t.Parallel()

	application, err := app.New(context.Background(), testConfig(), testOptions()...)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := application.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}

	// A second Shutdown is a no-op.
	if err := application.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown() error: %v", err)
	}
}

func TestApp_RunAndShutdown(t *testing.T) {
	t.Parallel()

	application, err := app.New(context.Background(), testConfig(), testOptions()...)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- application.Run(ctx)
	}()

	// Give Run a moment to set up goroutines.
	time.Sleep(50 * time.Millisecond)

	cancel()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("Run() returned unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return within 5s after context cancellation")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
}
