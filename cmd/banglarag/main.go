// Command banglarag runs the bilingual voice study assistant: a microphone
// conversation loop plus a web API, answering Bangla and English questions
// from ingested course material.
//
// With -ingest it runs in one-shot mode instead, loading the documents from
// the given directory into the vector store and exiting.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banglarag/banglarag/internal/app"
	"github.com/banglarag/banglarag/internal/config"
	"github.com/banglarag/banglarag/internal/observe"
)

// version is set via -ldflags at build time.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	ingestDir := flag.String("ingest", "", "ingest documents from this directory and exit")
	collection := flag.String("collection", "", "target collection for -ingest (default: the configured collection)")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "banglarag: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "banglarag: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("banglarag starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	shutdownApp := func() int {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := application.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "err", err)
			return 1
		}
		return 0
	}

	// ── One-shot ingestion mode ───────────────────────────────────────────────
	if *ingestDir != "" {
		code := runIngest(ctx, application, *ingestDir, *collection)
		if rc := shutdownApp(); rc != 0 {
			return rc
		}
		return code
	}

	// ── Serve ─────────────────────────────────────────────────────────────────
	printStartupSummary(cfg)
	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		shutdownApp()
		return 1
	}

	slog.Info("shutdown signal received, stopping…")
	if rc := shutdownApp(); rc != 0 {
		return rc
	}
	slog.Info("goodbye")
	return 0
}

// runIngest loads every supported document under dir into the vector store.
func runIngest(ctx context.Context, application *app.App, dir, collection string) int {
	ingestor, err := application.NewIngestor(collection)
	if err != nil {
		slog.Error("failed to create ingestor", "err", err)
		return 1
	}

	began := time.Now()
	stats, err := ingestor.IngestDir(ctx, dir)
	if err != nil {
		slog.Error("ingestion failed", "dir", dir, "err", err)
		return 1
	}

	slog.Info("ingestion complete",
		"dir", dir,
		"files", stats.Files,
		"pages", stats.Pages,
		"chunks", stats.Chunks,
		"added", stats.Added,
		"skipped", stats.Skipped,
		"took", time.Since(began),
	)
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       BanglaRAG — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	llmModel := ""
	if len(cfg.Providers.LLM.Models) > 0 {
		llmModel = cfg.Providers.LLM.Models[0]
	}
	printProvider("LLM", cfg.Providers.LLM.Name, llmModel)
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("Embeddings", cfg.Providers.Embeddings.Name, cfg.Providers.Embeddings.Model)
	printProvider("VAD", cfg.Providers.VAD.Name, "")
	printRow("Collection", cfg.Docstore.Collection)
	printRow("Sample rate", fmt.Sprintf("%d Hz", cfg.Session.SampleRate))
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	printRow(kind, value)
}

func printRow(label, value string) {
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:16]) + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
